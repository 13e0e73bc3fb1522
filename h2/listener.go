package h2

import "io"

// Listener is the application-facing entry point of spec.md §6: the
// arbiter calls ServeStream once per admitted remote stream, passing a
// handle whose methods are the only way the listener's own goroutine
// ever touches connection state.
type Listener interface {
	// ServeStream is invoked synchronously from the arbiter goroutine
	// once a stream is admitted and its initial header block is
	// complete. It must return quickly: accept (true) to keep serving
	// the stream, or refuse (false) to have it torn down with
	// RST_STREAM(REFUSED_STREAM). Implementations that accept are
	// expected to hand h off to their own goroutine for the rest of
	// the exchange rather than blocking the caller.
	ServeStream(h *StreamHandle) (accept bool)
}

// StreamHandle is the capability an application holds for one stream.
// Every method that touches shared connection state (the registry,
// either flow-control window, the HPACK encoder) does so by submitting
// a closure to the arbiter goroutine rather than locking anything
// itself, per spec.md §9's ownership note.
type StreamHandle struct {
	c *connArbiter
	s *Stream
}

func newStreamHandle(c *connArbiter, s *Stream) *StreamHandle {
	return &StreamHandle{c: c, s: s}
}

func (h *StreamHandle) ID() uint32 { return h.s.id }

// State reports the stream's current lifecycle state. It is a
// snapshot: by the time it returns, the arbiter may already have
// moved the stream on.
func (h *StreamHandle) State() StreamState {
	var st StreamState
	_ = h.c.submitLocalOp(func() error {
		st = h.s.State()
		return nil
	})
	return st
}

// ReadHeaders returns the already-decoded initial header block. It
// never blocks: by the time Listener.ServeStream is invoked, the
// headers are guaranteed to already be attached to the stream (see
// admitNewStream in conn.go).
func (h *StreamHandle) ReadHeaders() *MetaHeaders { return h.s.headers }

// Read reads body bytes received from the peer, returning io.EOF once
// the stream has ended cleanly. A non-EOF error means the stream ended
// abnormally (reset, locally or remotely) before the body was fully
// delivered.
func (h *StreamHandle) Read(p []byte) (int, error) { return h.s.body.Read(p) }

// ReadTrailers blocks until the stream has ended and returns whatever
// trailers accompanied it. A stream that ends without a trailing
// HEADERS block (the common case: a DATA frame carrying end_of_stream)
// reports nil trailers, not an error.
func (h *StreamHandle) ReadTrailers() (*MetaHeaders, error) {
	trailers, err := h.s.body.Trailers()
	if err == io.EOF {
		return trailers, nil
	}
	return trailers, err
}

// WriteHeaders writes a response header block. Pass final=false for
// an informational (1xx, never 101) response, which may be written any
// number of times and never transitions stream state; pass final=true
// exactly once for the real response headers. endStream is only
// meaningful when final is true, and closes the stream immediately
// (a response with no body).
func (h *StreamHandle) WriteHeaders(fields []HeaderField, final, endStream bool) error {
	return h.c.submitLocalOp(func() error {
		if err := h.s.sm.onLocalHeaders(final, endStream); err != nil {
			return err
		}
		block, err := encodeHeaderList(h.c.henc, &h.c.hbuf, fields)
		if err != nil {
			return err
		}
		h.c.scheduleWrite(func(fr *Framer) error {
			return fr.WriteHeaders(HeadersFrameParam{
				StreamID:      h.s.id,
				BlockFragment: block,
				EndStream:     final && endStream,
				EndHeaders:    true,
			})
		})
		if h.s.sm.state.terminal() {
			h.c.registry.Retire(h.s.id)
		}
		return nil
	})
}

// Write streams body bytes, blocking on this stream's (or the
// connection's) send-side flow-control window as needed. It never
// itself ends the stream — use WriteTrailers for that, even to signal
// "no trailers, just end of body".
func (h *StreamHandle) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		n, err := h.writeChunk(p)
		if err != nil {
			return total, err
		}
		if n == 0 {
			select {
			case <-h.s.credit:
			case <-h.c.closeCh:
				return total, h.c.closeErrOrDefault()
			}
			continue
		}
		p = p[n:]
		total += n
	}
	return total, nil
}

func (h *StreamHandle) writeChunk(p []byte) (int, error) {
	var n int
	err := h.c.submitLocalOp(func() error {
		if err := h.s.sm.canWriteData(); err != nil {
			return err
		}
		avail := h.s.flow.send.available()
		if cAvail := h.c.connFlow.send.available(); cAvail < avail {
			avail = cAvail
		}
		if avail <= 0 {
			return nil
		}
		take := len(p)
		if int32(take) > avail {
			take = int(avail)
		}
		if maxFrame := int(h.c.peer.maxFrameSize); take > maxFrame {
			take = maxFrame
		}
		h.s.flow.send.debit(int32(take))
		h.c.connFlow.send.debit(int32(take))
		_ = h.s.sm.onLocalData(false)
		chunk := make([]byte, take)
		copy(chunk, p[:take])
		h.c.scheduleWrite(func(fr *Framer) error {
			return fr.WriteData(h.s.id, false, chunk)
		})
		n = take
		return nil
	})
	return n, err
}

// WriteTrailers ends the stream. With no fields, it does so the way
// spec.md §8 scenario 9 expects a body-less close to look on the wire:
// a zero-length DATA frame carrying end_of_stream, not an empty HEADERS
// block — so ending a stream that never wrote a body never trips the
// "trailers without data" rule. With fields, it writes an actual
// trailing HEADERS block, which per spec.md §4.3 requires the body
// phase to have already been established by at least one prior Write.
func (h *StreamHandle) WriteTrailers(fields []HeaderField) error {
	return h.c.submitLocalOp(func() error {
		if len(fields) == 0 {
			if err := h.s.sm.onLocalData(true); err != nil {
				return err
			}
			h.c.scheduleWrite(func(fr *Framer) error {
				return fr.WriteData(h.s.id, true, nil)
			})
		} else {
			if err := h.s.sm.onLocalTrailers(); err != nil {
				return err
			}
			block, err := encodeHeaderList(h.c.henc, &h.c.hbuf, fields)
			if err != nil {
				return err
			}
			h.c.scheduleWrite(func(fr *Framer) error {
				return fr.WriteHeaders(HeadersFrameParam{
					StreamID:      h.s.id,
					BlockFragment: block,
					EndStream:     true,
					EndHeaders:    true,
				})
			})
		}
		if h.s.sm.state.terminal() {
			h.c.registry.Retire(h.s.id)
		}
		return nil
	})
}

// Cancel aborts the stream locally, sending RST_STREAM(CANCEL) and
// unblocking any pending Read/ReadTrailers with ErrStreamClosed.
func (h *StreamHandle) Cancel() error {
	return h.c.submitLocalOp(func() error {
		h.s.sm.onLocalCancel()
		h.s.body.CloseWithError(ErrStreamClosed, nil)
		h.s.notifyCredit()
		h.c.registry.Retire(h.s.id)
		h.c.scheduleWrite(func(fr *Framer) error {
			return fr.WriteRSTStream(h.s.id, ErrCodeCancel)
		})
		return nil
	})
}
