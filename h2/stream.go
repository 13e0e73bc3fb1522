package h2

import (
	"bytes"
	"fmt"
	"sync"
)

// StreamState is one of the eight lifecycle states from spec.md §4.3.
// Reset is kept observably distinct from Closed so callers can tell
// "we cancelled" from "we finished".
type StreamState uint8

const (
	StateIdle StreamState = iota
	StateReservedLocal
	StateReservedRemote
	StateOpen
	StateHalfClosedRemote
	StateHalfClosedLocal
	StateClosed
	StateReset
)

var stateName = [...]string{
	StateIdle:             "Idle",
	StateReservedLocal:    "ReservedLocal",
	StateReservedRemote:   "ReservedRemote",
	StateOpen:             "Open",
	StateHalfClosedRemote: "HalfClosedRemote",
	StateHalfClosedLocal:  "HalfClosedLocal",
	StateClosed:           "Closed",
	StateReset:            "Reset",
}

func (s StreamState) String() string {
	if int(s) < len(stateName) {
		return stateName[s]
	}
	return fmt.Sprintf("StreamState(%d)", uint8(s))
}

func (s StreamState) terminal() bool { return s == StateClosed || s == StateReset }

// isActiveRemoteSlot reports whether a stream in this state still
// counts against active_remote_count, per spec.md §4.4: "the set in
// states {Idle, Open, HalfClosedLocal, HalfClosedRemote,
// ReservedRemote}".
func (s StreamState) isActiveRemoteSlot() bool {
	switch s {
	case StateIdle, StateOpen, StateHalfClosedLocal, StateHalfClosedRemote, StateReservedRemote:
		return true
	}
	return false
}

// streamMachine implements the per-stream state transitions of
// spec.md §4.3. All remote-event methods are called only from the
// connection arbiter's goroutine (see conn.go); all local-event
// methods are called only via the arbiter's localOpCh, so in both
// cases a streamMachine is mutated from exactly one goroutine at a
// time and needs no internal locking of its own.
type streamMachine struct {
	id    uint32
	state StreamState

	recvOpened bool // remote has sent its initial (request) HEADERS

	sentFinalHeaders bool // local wrote non-1xx response headers
	sentData         bool // local wrote at least one body chunk after final headers
}

func newStreamMachine(id uint32) *streamMachine {
	return &streamMachine{id: id, state: StateIdle}
}

// remoteClose applies the "peer signaled end of stream" half of a
// transition; localClose applies "we signaled end of stream". Driving
// both directions through these two tiny helpers is what lets every
// row of spec.md §4.3's table collapse into the few event methods
// below instead of one branch per (state, event) pair.
func (m *streamMachine) remoteClose() {
	switch m.state {
	case StateOpen:
		m.state = StateHalfClosedRemote
	case StateHalfClosedLocal:
		m.state = StateClosed
	}
}

func (m *streamMachine) localClose() {
	switch m.state {
	case StateIdle:
		m.state = StateHalfClosedLocal
	case StateOpen:
		m.state = StateHalfClosedLocal
	case StateHalfClosedRemote:
		m.state = StateClosed
	}
}

// onRemoteHeaders handles both the stream-creating HEADERS (state ==
// Idle) and any subsequent HEADERS, which can only be legal as
// trailers (state == Open or HalfClosedLocal, endStream required).
func (m *streamMachine) onRemoteHeaders(endStream bool) error {
	switch m.state {
	case StateIdle:
		m.recvOpened = true
		m.state = StateOpen
		if endStream {
			m.remoteClose()
		}
		return nil
	case StateOpen, StateHalfClosedLocal:
		if !endStream {
			return streamError(m.id, ErrCodeProtocol)
		}
		m.remoteClose()
		return nil
	case StateHalfClosedRemote, StateClosed, StateReset:
		return streamError(m.id, ErrCodeStreamClosed)
	default:
		return streamError(m.id, ErrCodeProtocol)
	}
}

// onRemoteData handles an inbound DATA frame's state transition only;
// it takes no byte count. Callers debit flow-control windows with the
// full wire length separately, since padding counts toward flow
// control even though it is never delivered as content (spec.md
// §4.5/§9).
func (m *streamMachine) onRemoteData(endStream bool) error {
	switch m.state {
	case StateOpen, StateHalfClosedLocal:
		if endStream {
			m.remoteClose()
		}
		return nil
	case StateHalfClosedRemote, StateClosed, StateReset:
		return streamError(m.id, ErrCodeStreamClosed)
	default:
		return streamError(m.id, ErrCodeProtocol)
	}
}

// onRemoteReset applies a received RST_STREAM. It never itself returns
// an error: it is the terminal event, not a rule violation.
func (m *streamMachine) onRemoteReset() {
	if !m.state.terminal() {
		m.state = StateReset
	}
}

// onLocalHeaders validates and applies a local HEADERS write.
// Informational (1xx, != 101) responses may be written any number of
// times before the final headers and never transition state.
func (m *streamMachine) onLocalHeaders(final, endStream bool) error {
	if m.sentFinalHeaders {
		return ErrHeadersAfterFinal
	}
	if !final {
		return nil
	}
	m.sentFinalHeaders = true
	if endStream {
		m.localClose()
	}
	return nil
}

// canWriteData is the non-mutating half of onLocalData's checks, used
// by StreamHandle.Write to decide whether it's worth computing a flow
// control grant before actually emitting a frame.
func (m *streamMachine) canWriteData() error {
	if !m.sentFinalHeaders {
		return ErrWriteBeforeHeaders
	}
	if m.state == StateClosed || m.state == StateReset || m.state == StateHalfClosedLocal {
		return ErrStreamClosed
	}
	return nil
}

// onLocalData validates and applies a local DATA write.
func (m *streamMachine) onLocalData(endStream bool) error {
	if !m.sentFinalHeaders {
		return ErrWriteBeforeHeaders
	}
	if m.state == StateClosed || m.state == StateReset || m.state == StateHalfClosedLocal {
		return ErrStreamClosed
	}
	m.sentData = true
	if endStream {
		m.localClose()
	}
	return nil
}

// onLocalTrailers validates and applies a local trailers write.
// Trailers always carry an implicit end_of_stream.
func (m *streamMachine) onLocalTrailers() error {
	if !m.sentData {
		return ErrTrailersWithoutData
	}
	if m.state == StateClosed || m.state == StateReset || m.state == StateHalfClosedLocal {
		return ErrStreamClosed
	}
	m.localClose()
	return nil
}

// onLocalCancel applies a local cancellation request.
func (m *streamMachine) onLocalCancel() {
	if !m.state.terminal() {
		m.state = StateReset
	}
}

// pipe is a byte buffer handed off between the arbiter goroutine,
// which only ever appends to it, and a stream's handler goroutine,
// which only ever reads from it. Unlike io.Pipe, Write never blocks —
// it cannot, since it runs on the connection's single arbiter
// goroutine — relying instead on HTTP/2 flow control to bound how
// much unread data the peer is permitted to have in flight at once,
// which keeps buf's growth bounded without any cooperation from the
// reader.
type pipe struct {
	mu       sync.Mutex
	c        sync.Cond
	buf      bytes.Buffer
	err      error // sticky; set once the stream ends (io.EOF) or is reset
	trailers *MetaHeaders
}

func newPipe() *pipe {
	p := &pipe{}
	p.c.L = &p.mu
	return p
}

func (p *pipe) Write(b []byte) {
	if len(b) == 0 {
		return
	}
	p.mu.Lock()
	p.buf.Write(b)
	p.mu.Unlock()
	p.c.Signal()
}

// CloseWithError marks the pipe as ended. Only the first call has any
// effect: once a stream has a terminal error, nothing overrides it.
func (p *pipe) CloseWithError(err error, trailers *MetaHeaders) {
	p.mu.Lock()
	if p.err == nil {
		p.err = err
		p.trailers = trailers
	}
	p.mu.Unlock()
	p.c.Signal()
}

func (p *pipe) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.buf.Len() == 0 && p.err == nil {
		p.c.Wait()
	}
	if p.buf.Len() > 0 {
		return p.buf.Read(b)
	}
	return 0, p.err
}

// Trailers blocks until the pipe has ended and returns whatever
// trailers (possibly nil) accompanied end of stream.
func (p *pipe) Trailers() (*MetaHeaders, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.err == nil {
		p.c.Wait()
	}
	return p.trailers, p.err
}

// Stream is the data-model Stream of spec.md §3: one HTTP/2 stream's
// state machine, flow-control windows, and the inbound body pipe that
// lets a Listener's handler goroutine read what the arbiter receives
// without ever touching the arbiter's own state directly.
//
// sm and flow are mutated only by the arbiter goroutine. body
// synchronizes its own access internally (see pipe, above).
type Stream struct {
	id   uint32
	sm   *streamMachine
	flow *streamFlow

	// headers is set exactly once, before the arbiter hands the stream
	// to Listener.ServeStream, and is never mutated afterward — safe
	// to read from the handler goroutine without synchronization.
	headers *MetaHeaders

	body *pipe

	// credit is signaled (non-blocking) by the arbiter whenever this
	// stream's or the connection's send window may have grown, so a
	// handler goroutine blocked in Write can wake up and recheck.
	credit chan struct{}
}

func newStream(id uint32) *Stream {
	return &Stream{
		id:     id,
		sm:     newStreamMachine(id),
		body:   newPipe(),
		credit: make(chan struct{}, 1),
	}
}

func (s *Stream) ID() uint32 { return s.id }

func (s *Stream) State() StreamState { return s.sm.state }

// notifyCredit wakes up a handler goroutine that may be blocked
// waiting for send-side flow-control credit. The send is non-blocking
// since credit is only ever used as a "something changed, recheck"
// signal, not a count.
func (s *Stream) notifyCredit() {
	select {
	case s.credit <- struct{}{}:
	default:
	}
}
