package h2

import "fmt"

// flowWindow is a signed HTTP/2 flow-control credit counter. Per
// spec.md §3, it lives in [-2^31, 2^31-1]: a SETTINGS-driven shrink of
// INITIAL_WINDOW_SIZE can legally drive it negative, but no further
// debit may be attempted while negative, and add() must refuse to push
// the window above the positive end of the range.
type flowWindow struct {
	n int32
}

const maxWindowSize = (1 << 31) - 1

// add credits the window by n, returning a FLOW_CONTROL_ERROR if doing
// so would overflow past 2^31-1.
func (w *flowWindow) add(n int32) error {
	sum := int64(w.n) + int64(n)
	if sum > int64(maxWindowSize) {
		return fmt.Errorf("http2: flow control window overflow")
	}
	w.n = int32(sum)
	return nil
}

// debit consumes n bytes of credit unconditionally; callers must have
// already checked available() >= n. Used on the send side, where the
// write path waits until credit exists, and on the receive side via
// takeRecv, after handleData has checked the window.
func (w *flowWindow) debit(n int32) { w.n -= n }

// shrink applies a SETTINGS-driven reduction (or growth) of the window
// by delta, which may legally drive it negative per spec.md §3.
func (w *flowWindow) shrink(delta int32) { w.n += delta }

func (w *flowWindow) available() int32 { return w.n }

// streamFlow bundles the send and receive windows for one stream.
type streamFlow struct {
	send flowWindow
	recv flowWindow

	// recvAdvertised is the window size we last told the peer about
	// (via the initial SETTINGS or an explicit WINDOW_UPDATE), used to
	// compute the half-consumed refill threshold.
	recvAdvertised int32
	recvConsumed   int32
}

func newStreamFlow(initialSend, initialRecv int32) *streamFlow {
	sf := &streamFlow{recvAdvertised: initialRecv}
	sf.send.n = initialSend
	sf.recv.n = initialRecv
	return sf
}

// connFlow bundles the connection-scoped send/receive windows.
type connFlow struct {
	send flowWindow
	recv flowWindow

	recvAdvertised int32
	recvConsumed   int32
}

func newConnFlow(initial int32) *connFlow {
	cf := &connFlow{recvAdvertised: initial}
	cf.send.n = initial
	cf.recv.n = initial
	return cf
}

// takeRecv debits n bytes from the receive window (connection-level or
// per-stream, whichever calls this) and reports how much credit should
// be refunded to the peer right now under the classical "refill once
// at least half has been consumed" policy described in spec.md §4.5.
func takeRecv(w *flowWindow, advertised *int32, consumed *int32, n int32) (refund uint32) {
	w.debit(n)
	*consumed += n
	if *consumed*2 >= *advertised && *advertised > 0 {
		refund = uint32(*consumed)
		*consumed = 0
		w.add(int32(refund))
	}
	return refund
}
