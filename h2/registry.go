package h2

// Registry tracks every remote-initiated stream of one connection and
// enforces spec.md §4.4's admission rules and MAX_CONCURRENT_STREAMS
// bound. Like streamMachine, it is mutated only from the connection
// arbiter's goroutine and needs no internal locking.
type Registry struct {
	streams map[uint32]*Stream

	// highestRemoteID is the highest stream ID ever admitted, i.e.
	// spec.md's last_stream_id as seen so far — the value the arbiter
	// reports back in GOAWAY.
	highestRemoteID uint32

	activeRemoteCount   uint32
	maxConcurrentRemote uint32
}

func NewRegistry(maxConcurrentRemote uint32) *Registry {
	return &Registry{
		streams:             make(map[uint32]*Stream),
		maxConcurrentRemote: maxConcurrentRemote,
	}
}

func (r *Registry) Get(id uint32) (*Stream, bool) {
	s, ok := r.streams[id]
	return s, ok
}

func (r *Registry) HighestRemoteID() uint32 { return r.highestRemoteID }

func (r *Registry) ActiveCount() uint32 { return r.activeRemoteCount }

func (r *Registry) Len() int { return len(r.streams) }

type admitResult int

const (
	admitCreated admitResult = iota
	admitRouteExisting
	admitRefused
)

// Admit applies steps 2-5 of spec.md §4.4's admission algorithm to an
// inbound HEADERS frame's stream ID (step 1, id == 0, is a connection
// error already rejected by frame parsing before Admit is ever
// called; step 6, the listener's own refusal, is applied afterward by
// the caller via Refuse once Listener.ServeStream has decided):
//
//  2. An even id from the peer is invalid — only the client may open
//     streams, and it must use odd IDs. A strict reading calls for a
//     connection error here, but the core pragmatically degrades to a
//     stream-level STREAM_CLOSED because it cannot prove the ID was
//     never legitimately used by a prior, now-retired stream.
//  3. A known id routes to the existing stream (trailers, or a
//     duplicate of an already-open request).
//  4. An id at or below highestRemoteID that's unknown names a stream
//     that has already run to completion and been retired —
//     STREAM_CLOSED, not a fresh admission.
//  5. At the concurrency limit — REFUSED_STREAM.
//
// Otherwise a new Stream is created and counted as admitted.
func (r *Registry) Admit(id uint32) (*Stream, admitResult, error) {
	if id%2 == 0 {
		return nil, admitRefused, streamError(id, ErrCodeStreamClosed)
	}
	if s, ok := r.streams[id]; ok {
		return s, admitRouteExisting, nil
	}
	if id <= r.highestRemoteID {
		return nil, admitRefused, streamError(id, ErrCodeStreamClosed)
	}
	if r.activeRemoteCount >= r.maxConcurrentRemote {
		return nil, admitRefused, streamError(id, ErrCodeRefusedStream)
	}
	s := newStream(id)
	r.streams[id] = s
	r.highestRemoteID = id
	r.activeRemoteCount++
	return s, admitCreated, nil
}

// Refuse tears down a tentatively-admitted stream that the Listener
// declined (ServeStream returned false), releasing its concurrency
// slot. It is a no-op if id was never admitted or was already retired.
func (r *Registry) Refuse(id uint32) {
	if _, ok := r.streams[id]; ok {
		delete(r.streams, id)
		r.release()
	}
}

// Retire drops a stream that has reached a terminal state (Closed or
// Reset) and released every resource the handler needed from it.
func (r *Registry) Retire(id uint32) {
	if _, ok := r.streams[id]; ok {
		delete(r.streams, id)
		r.release()
	}
}

func (r *Registry) release() {
	if r.activeRemoteCount > 0 {
		r.activeRemoteCount--
	}
}
