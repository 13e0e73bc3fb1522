package h2

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/http2/hpack"

	"github.com/h2stack/engine/internal/log"
)

// frameResult is what the background reader hands to the arbiter for
// each frame it reads. done is closed by the arbiter once it is safe
// for the reader to fetch the next frame — in particular, only after
// any CONTINUATION frames belonging to a HEADERS block have already
// been consumed directly by the arbiter's own call into readMetaHeaders,
// which shares the same *Framer. This gate is what lets one background
// goroutine and the arbiter goroutine take turns on a single Framer
// without a data race, while still letting the arbiter interleave
// local operations between frames.
type frameResult struct {
	f    Frame
	err  error
	done chan struct{}
}

// frameWriteRequest is one unit of outbound work for writeLoop, which
// calls write with exclusive access to the Framer.
type frameWriteRequest struct {
	write func(fr *Framer) error
}

// connArbiter is the connection arbiter of spec.md §4.6: the single
// point of mutation for the stream registry and every flow-control
// window on a connection. Exactly one goroutine — the one running
// serve() — ever touches registry, peer, or connFlow; a second
// goroutine running writeLoop() owns the Framer's write side. Per-
// stream application code runs on goroutines the Listener spawns,
// reaching the arbiter only through localOpCh (see listener.go).
type connArbiter struct {
	fr  *Framer
	cfg Config

	listener Listener

	registry *Registry
	peer     peerSettings
	connFlow *connFlow

	hdec *hpack.Decoder
	henc *hpack.Encoder
	hbuf bytes.Buffer

	readFrameCh chan frameResult
	writeCh     chan frameWriteRequest
	localOpCh   chan func()

	closeOnce sync.Once
	closeCh   chan struct{}
	closeErr  error

	// lastStreamID mirrors registry.HighestRemoteID so that shutdown,
	// which can run on whichever goroutine first observes a fatal
	// error (serve, writeLoop, or the idle timer), never reads the
	// registry itself — registry is arbiter-goroutine-only.
	lastStreamID uint32

	idleTimer *time.Timer
}

// newConnArbiter wires up one connection's worth of state. cfg must
// already have every zero field defaulted (see NewServer).
func newConnArbiter(fr *Framer, cfg Config, listener Listener) *connArbiter {
	c := &connArbiter{
		fr:          fr,
		cfg:         cfg,
		listener:    listener,
		registry:    NewRegistry(cfg.MaxConcurrentStreams),
		peer:        defaultPeerSettings(),
		connFlow:    newConnFlow(cfg.InitialConnRecvWindow),
		readFrameCh: make(chan frameResult),
		writeCh:     make(chan frameWriteRequest, 256),
		localOpCh:   make(chan func()),
		closeCh:     make(chan struct{}),
	}
	c.hdec = newDecoder(4096, cfg.MaxHeaderListSize, nil)
	c.henc = hpack.NewEncoder(&c.hbuf)
	fr.MaxReadFrameSize = cfg.MaxReadFrameSize
	fr.MaxHeaderListSize = cfg.MaxHeaderListSize
	return c
}

// serve is the read/dispatch loop: it runs on the goroutine that
// calls it (Server.ServeConn's caller, per spec.md §6), reading frames
// via readFrames' handoff and interleaving local operations submitted
// by StreamHandle methods, exactly as described in SPEC_FULL.md §5.
func (c *connArbiter) serve() error {
	go c.readFrames()
	go c.writeLoop()

	c.scheduleWrite(func(fr *Framer) error {
		return fr.WriteSettings(c.localSettings()...)
	})

	if c.cfg.IdleTimeout > 0 {
		c.idleTimer = time.AfterFunc(c.cfg.IdleTimeout, func() {
			c.shutdown(connError(ErrCodeNo, "idle timeout"))
		})
		defer c.idleTimer.Stop()
	}

	for {
		select {
		case res, ok := <-c.readFrameCh:
			if !ok {
				return c.closeErr
			}
			if c.idleTimer != nil {
				c.idleTimer.Reset(c.cfg.IdleTimeout)
			}
			err := c.dispatch(res.f, res.err)
			if res.done != nil {
				close(res.done)
			}
			if err != nil {
				c.shutdown(err)
				return err
			}
			if res.err != nil {
				c.shutdown(nil)
				return nil
			}
		case op := <-c.localOpCh:
			op()
		case <-c.closeCh:
			return c.closeErr
		}
	}
}

func (c *connArbiter) localSettings() []Setting {
	return []Setting{
		{ID: SettingMaxConcurrentStreams, Val: c.cfg.MaxConcurrentStreams},
		{ID: SettingInitialWindowSize, Val: uint32(c.cfg.InitialStreamRecvWindow)},
		{ID: SettingMaxFrameSize, Val: c.cfg.MaxFrameSize},
		{ID: SettingMaxHeaderListSize, Val: c.cfg.MaxHeaderListSize},
	}
}

// readFrames is the background goroutine that turns blocking
// Framer.ReadFrame calls into channel sends, gated so the arbiter can
// safely interleave its own direct reads (CONTINUATION frames) between
// handing off one frameResult and the next.
func (c *connArbiter) readFrames() {
	defer close(c.readFrameCh)
	for {
		f, err := c.fr.ReadFrame()
		done := make(chan struct{})
		select {
		case c.readFrameCh <- frameResult{f: f, err: err, done: done}:
		case <-c.closeCh:
			return
		}
		select {
		case <-done:
		case <-c.closeCh:
			return
		}
		if err != nil {
			return
		}
	}
}

// writeLoop owns the Framer's write side exclusively: serve() never
// calls a Framer.Write* method directly, only through scheduleWrite,
// so that a slow peer (backed-up TCP send buffer) blocks writeLoop
// without ever blocking serve() from answering a PING or crediting a
// WINDOW_UPDATE, per SPEC_FULL.md §5.
func (c *connArbiter) writeLoop() {
	for {
		select {
		case wr := <-c.writeCh:
			err := wr.write(c.fr)
			if err != nil {
				c.shutdown(err)
				return
			}
		case <-c.closeCh:
			return
		}
	}
}

// scheduleWrite enqueues a fire-and-forget protocol frame (SETTINGS
// ACK, WINDOW_UPDATE, RST_STREAM, GOAWAY, PING ACK). Safe to call from
// any goroutine: writeCh only ever has one consumer, writeLoop, which
// is what actually owns the Framer's write side.
func (c *connArbiter) scheduleWrite(write func(fr *Framer) error) {
	select {
	case c.writeCh <- frameWriteRequest{write: write}:
	case <-c.closeCh:
	}
}

// submitLocalOp runs op on the arbiter goroutine and waits for it to
// finish, giving StreamHandle methods exclusive access to registry and
// per-stream state machines without their own locking. See listener.go.
func (c *connArbiter) submitLocalOp(op func() error) error {
	result := make(chan error, 1)
	wrapped := func() { result <- op() }
	select {
	case c.localOpCh <- wrapped:
	case <-c.closeCh:
		return c.closeErrOrDefault()
	}
	select {
	case err := <-result:
		return err
	case <-c.closeCh:
		return c.closeErrOrDefault()
	}
}

func (c *connArbiter) closeErrOrDefault() error {
	if c.closeErr != nil {
		return c.closeErr
	}
	return ErrConnClosed
}

// ErrConnClosed is returned to StreamHandle callers once the
// connection has shut down and can no longer accept local operations.
var ErrConnClosed = errors.New("http2: connection closed")

// dispatch classifies and applies one frame (or a read failure) and
// returns non-nil only for a connection-fatal outcome: a protocol
// violation scoped to a single stream is handled internally by
// resetting that stream and returning nil, per spec.md §7.
func (c *connArbiter) dispatch(f Frame, readErr error) error {
	if readErr != nil {
		if readErr == io.EOF || errors.Is(readErr, io.ErrUnexpectedEOF) {
			return nil
		}
		var ce ConnectionError
		if errors.As(readErr, &ce) {
			return ce
		}
		return nil // other transport errors: treat as an ordinary close
	}

	var err error
	switch fr := f.(type) {
	case *HeadersFrame:
		err = c.handleHeaders(fr)
	case *DataFrame:
		err = c.handleData(fr)
	case *PriorityFrame:
		err = c.handlePriority(fr)
	case *RSTStreamFrame:
		err = c.handleRSTStream(fr)
	case *SettingsFrame:
		err = c.handleSettings(fr)
	case *PingFrame:
		err = c.handlePing(fr)
	case *GoAwayFrame:
		err = c.handleGoAway(fr)
	case *WindowUpdateFrame:
		err = c.handleWindowUpdate(fr)
	case *ContinuationFrame:
		// checkFrameOrder only lets a CONTINUATION through when
		// lastHeaderStream was already set, which readMetaHeaders
		// always clears by consuming the chain itself; reaching here
		// means that invariant broke.
		err = connError(ErrCodeInternal, "unexpected standalone CONTINUATION reached dispatch")
	case *UnknownFrame:
		// ignored per spec.md §4.1
	}
	return c.classify(err)
}

// classify turns a StreamError into an RST_STREAM plus a nil return
// (the connection survives), and passes a ConnectionError through
// unchanged so the caller tears the whole connection down.
func (c *connArbiter) classify(err error) error {
	if err == nil {
		return nil
	}
	var se StreamError
	if errors.As(err, &se) {
		c.resetStream(se.StreamID, se.Code, se)
		return nil
	}
	var ce ConnectionError
	if errors.As(err, &ce) {
		return ce
	}
	return err
}

func (c *connArbiter) resetStream(id uint32, code ErrCode, cause error) {
	if s, ok := c.registry.Get(id); ok {
		s.sm.onRemoteReset()
		s.body.CloseWithError(cause, nil)
		s.notifyCredit()
		c.registry.Retire(id)
	}
	c.scheduleWrite(func(fr *Framer) error {
		return fr.WriteRSTStream(id, code)
	})
}

// shutdown tears the connection down exactly once: it enqueues a
// GOAWAY best-effort (whatever err is) and stops readFrames/writeLoop
// via closeCh. It does not touch live streams: their body pipes are
// not closed, so a handler blocked in StreamHandle.Read or
// ReadTrailers is not woken, and no RST_STREAM(CANCEL) is sent.
func (c *connArbiter) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.closeErr = err
		var ce ConnectionError
		code := ErrCodeNo
		reason := ""
		isConnErr := errors.As(err, &ce)
		if isConnErr {
			code = ce.Code
			reason = ce.Reason
		}
		lastStreamID := atomic.LoadUint32(&c.lastStreamID)
		log.Error("connection closing: %v (last_stream_id=%d code=%v)", reason, lastStreamID, code)

		// Best-effort: enqueue GOAWAY non-blocking rather than writing
		// the Framer directly, since shutdown can race with writeLoop
		// draining a frame concurrently, and the Framer's write side is
		// only safe from one goroutine at a time.
		select {
		case c.writeCh <- frameWriteRequest{write: func(fr *Framer) error {
			return fr.WriteGoAway(lastStreamID, code, []byte(reason))
		}}:
		default:
		}
		close(c.closeCh)
	})
}

// --- frame handlers ------------------------------------------------------

func (c *connArbiter) handleHeaders(hf *HeadersFrame) error {
	result, admitted, aerr := c.registry.Admit(hf.StreamID)
	if aerr != nil {
		// Even a refused stream's header block must still be decoded,
		// to keep the HPACK dynamic table in sync with the peer.
		if _, derr := readMetaHeaders(c.fr, hf, c.hdec, c.cfg.MaxHeaderListSize); derr != nil {
			return derr
		}
		return aerr
	}

	mh, derr := readMetaHeaders(c.fr, hf, c.hdec, c.cfg.MaxHeaderListSize)
	if derr != nil {
		return derr
	}

	switch admitted {
	case admitRouteExisting:
		return c.routeTrailers(result, mh)
	case admitCreated:
		return c.admitNewStream(result, mh)
	default:
		return nil
	}
}

// routeTrailers applies a second HEADERS block on an already-known
// stream, which per spec.md §4.3 can only be legal as trailers.
func (c *connArbiter) routeTrailers(s *Stream, mh *MetaHeaders) error {
	if err := s.sm.onRemoteHeaders(mh.EndStream); err != nil {
		return err
	}
	s.body.CloseWithError(io.EOF, mh)
	s.notifyCredit()
	if s.sm.state.terminal() {
		c.registry.Retire(s.id)
	}
	return nil
}

// admitNewStream finishes step 7 of spec.md §4.4: it applies the
// stream-creating HEADERS event, then hands the stream to the
// Listener synchronously, on this goroutine — the accept/refuse
// decision must land before dispatch moves on to the next frame, per
// spec.md §5's ordering rule. A refusal at this point releases the
// concurrency slot that Admit reserved (via Registry.Refuse), but the
// stream ID stays used up: highestRemoteID has already advanced past
// it.
func (c *connArbiter) admitNewStream(s *Stream, mh *MetaHeaders) error {
	if err := s.sm.onRemoteHeaders(mh.EndStream); err != nil {
		c.registry.Retire(s.id)
		return err
	}
	atomic.StoreUint32(&c.lastStreamID, s.id)
	s.headers = mh
	s.flow = newStreamFlow(int32(c.peer.initialWindowSize), c.cfg.InitialStreamRecvWindow)
	if mh.EndStream {
		s.body.CloseWithError(io.EOF, nil)
	}

	handle := newStreamHandle(c, s)
	if !c.listener.ServeStream(handle) {
		c.registry.Refuse(s.id)
		c.scheduleWrite(func(fr *Framer) error {
			return fr.WriteRSTStream(s.id, ErrCodeRefusedStream)
		})
	}
	return nil
}

func (c *connArbiter) handleData(df *DataFrame) error {
	wireLen := int32(df.Length)
	if wireLen > c.connFlow.recv.available() {
		return connError(ErrCodeFlowControl, "peer sent more DATA than the connection receive window allows")
	}

	s, ok := c.registry.Get(df.StreamID)
	if !ok {
		if df.StreamID <= c.registry.HighestRemoteID() {
			c.refundConnOnly(wireLen)
			return nil
		}
		return connError(ErrCodeProtocol, "DATA frame for a stream that was never opened")
	}
	if wireLen > s.flow.recv.available() {
		c.refundConnOnly(wireLen)
		return streamError(df.StreamID, ErrCodeFlowControl)
	}
	if err := s.sm.onRemoteData(df.StreamEnded()); err != nil {
		c.refundConnOnly(wireLen)
		return err
	}

	refundConn := takeRecv(&c.connFlow.recv, &c.connFlow.recvAdvertised, &c.connFlow.recvConsumed, wireLen)
	refundStream := takeRecv(&s.flow.recv, &s.flow.recvAdvertised, &s.flow.recvConsumed, wireLen)
	if refundConn > 0 {
		c.scheduleWrite(func(fr *Framer) error { return fr.WriteWindowUpdate(0, refundConn) })
	}
	if refundStream > 0 {
		c.scheduleWrite(func(fr *Framer) error { return fr.WriteWindowUpdate(s.id, refundStream) })
	}

	s.body.Write(df.Data())
	if df.StreamEnded() {
		s.body.CloseWithError(io.EOF, nil)
	}
	if s.sm.state.terminal() {
		c.registry.Retire(s.id)
	}
	return nil
}

// refundConnOnly keeps the connection-level window's arithmetic
// correct for DATA arriving on a stream we've already retired, by
// crediting the window straight back since there is no longer a
// handler around to consume it.
func (c *connArbiter) refundConnOnly(n int32) {
	refund := takeRecv(&c.connFlow.recv, &c.connFlow.recvAdvertised, &c.connFlow.recvConsumed, n)
	if refund > 0 {
		c.scheduleWrite(func(fr *Framer) error { return fr.WriteWindowUpdate(0, refund) })
	}
}

// handlePriority acknowledges PRIORITY frames without acting on them:
// per spec.md §1's stated depth, this engine parses but does not
// implement a priority tree.
func (c *connArbiter) handlePriority(pf *PriorityFrame) error {
	if _, ok := c.registry.Get(pf.StreamID); !ok && pf.StreamID > c.registry.HighestRemoteID() {
		// PRIORITY may legally reference an idle stream to pre-seed its
		// place in a priority tree we don't build; nothing to validate.
		return nil
	}
	return nil
}

func (c *connArbiter) handleRSTStream(rf *RSTStreamFrame) error {
	s, ok := c.registry.Get(rf.StreamID)
	if !ok {
		if rf.StreamID > c.registry.HighestRemoteID() {
			return connError(ErrCodeProtocol, "RST_STREAM for an idle stream")
		}
		return nil
	}
	s.sm.onRemoteReset()
	s.body.CloseWithError(streamError(rf.StreamID, rf.ErrCode), nil)
	s.notifyCredit()
	c.registry.Retire(rf.StreamID)
	return nil
}

func (c *connArbiter) handleSettings(sf *SettingsFrame) error {
	if sf.IsAck() {
		return nil
	}
	var changedInitialWindow bool
	var oldInitial uint32
	if err := sf.ForEachSetting(func(s Setting) error {
		if s.ID == SettingInitialWindowSize {
			oldInitial = c.peer.initialWindowSize
			changedInitialWindow = true
		}
		return c.peer.apply(s)
	}); err != nil {
		return err
	}
	if changedInitialWindow {
		delta := int32(c.peer.initialWindowSize) - int32(oldInitial)
		c.applySendWindowDelta(delta)
	}
	c.scheduleWrite(func(fr *Framer) error { return fr.WriteSettingsAck() })
	return nil
}

// applySendWindowDelta implements the SETTINGS-driven resize from
// spec.md §3: every currently open stream's send window shifts by the
// same signed delta, which may legally drive it negative.
func (c *connArbiter) applySendWindowDelta(delta int32) {
	for id := uint32(1); id <= c.registry.HighestRemoteID(); id += 2 {
		if s, ok := c.registry.Get(id); ok && s.flow != nil {
			s.flow.send.shrink(delta)
			if delta > 0 {
				s.notifyCredit()
			}
		}
	}
}

func (c *connArbiter) handlePing(pf *PingFrame) error {
	if pf.IsAck() {
		return nil
	}
	data := pf.Data
	c.scheduleWrite(func(fr *Framer) error { return fr.WritePing(true, data) })
	return nil
}

func (c *connArbiter) handleGoAway(gf *GoAwayFrame) error {
	log.Debug("peer sent GOAWAY last_stream_id=%d code=%v", gf.LastStreamID, gf.ErrCode)
	return io.EOF
}

func (c *connArbiter) handleWindowUpdate(wf *WindowUpdateFrame) error {
	if wf.StreamID == 0 {
		if err := c.connFlow.send.add(int32(wf.Increment)); err != nil {
			return connError(ErrCodeFlowControl, "connection-level WINDOW_UPDATE overflow")
		}
		for id := uint32(1); id <= c.registry.HighestRemoteID(); id += 2 {
			if s, ok := c.registry.Get(id); ok {
				s.notifyCredit()
			}
		}
		return nil
	}
	s, ok := c.registry.Get(wf.StreamID)
	if !ok {
		if wf.StreamID > c.registry.HighestRemoteID() {
			return connError(ErrCodeProtocol, "WINDOW_UPDATE for an idle stream")
		}
		return nil
	}
	if s.flow == nil {
		return nil
	}
	if err := s.flow.send.add(int32(wf.Increment)); err != nil {
		return streamError(wf.StreamID, ErrCodeFlowControl)
	}
	s.notifyCredit()
	return nil
}
