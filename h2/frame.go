package h2

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	log "github.com/h2stack/engine/internal/log"
)

const frameHeaderLen = 9

var padZeros = make([]byte, 255)

// FrameType is a registered HTTP/2 frame type, RFC 7540 §11.2.
type FrameType uint8

const (
	FrameData         FrameType = 0x0
	FrameHeaders      FrameType = 0x1
	FramePriority     FrameType = 0x2
	FrameRSTStream    FrameType = 0x3
	FrameSettings     FrameType = 0x4
	FramePushPromise  FrameType = 0x5
	FramePing         FrameType = 0x6
	FrameGoAway       FrameType = 0x7
	FrameWindowUpdate FrameType = 0x8
	FrameContinuation FrameType = 0x9
)

var frameName = map[FrameType]string{
	FrameData:         "DATA",
	FrameHeaders:      "HEADERS",
	FramePriority:     "PRIORITY",
	FrameRSTStream:    "RST_STREAM",
	FrameSettings:     "SETTINGS",
	FramePushPromise:  "PUSH_PROMISE",
	FramePing:         "PING",
	FrameGoAway:       "GOAWAY",
	FrameWindowUpdate: "WINDOW_UPDATE",
	FrameContinuation: "CONTINUATION",
}

func (t FrameType) String() string {
	if s, ok := frameName[t]; ok {
		return s
	}
	return fmt.Sprintf("UNKNOWN_FRAME_TYPE_%d", uint8(t))
}

// Flags is a bitmask of frame-specific flag bits.
type Flags uint8

func (f Flags) Has(v Flags) bool { return f&v == v }

const (
	FlagDataEndStream Flags = 0x1
	FlagDataPadded    Flags = 0x8

	FlagHeadersEndStream  Flags = 0x1
	FlagHeadersEndHeaders Flags = 0x4
	FlagHeadersPadded     Flags = 0x8
	FlagHeadersPriority   Flags = 0x20

	FlagSettingsAck Flags = 0x1

	FlagPingAck Flags = 0x1

	FlagContinuationEndHeaders Flags = 0x4
)

// FrameHeader is the 9-octet header shared by every HTTP/2 frame.
//
//	+-----------------------------------------------+
//	|                 Length (24)                   |
//	+---------------+---------------+---------------+
//	|   Type (8)    |   Flags (8)   |
//	+-+-------------+---------------+-------------------------------+
//	|R|                 Stream Identifier (31)                      |
//	+=+=============================================================+
//	|                   Frame Payload (0...)                      ...
//	+---------------------------------------------------------------+
type FrameHeader struct {
	Type     FrameType
	Flags    Flags
	Length   uint32 // 24 bits on the wire
	StreamID uint32 // 31 bits on the wire; the reserved high bit is always read as 0
}

func (h FrameHeader) Header() FrameHeader { return h }

func (h FrameHeader) String() string {
	var buf bytes.Buffer
	h.writeDebug(&buf)
	return buf.String()
}

func (h FrameHeader) writeDebug(buf *bytes.Buffer) {
	buf.WriteString(h.Type.String())
	if h.Flags != 0 {
		fmt.Fprintf(buf, " flags=0x%x", uint8(h.Flags))
	}
	if h.StreamID != 0 {
		fmt.Fprintf(buf, " stream=%d", h.StreamID)
	}
	fmt.Fprintf(buf, " len=%d", h.Length)
}

// ReadFrameHeader reads exactly 9 octets from r. A short read surfaces
// as io.ErrUnexpectedEOF (for a partial header) or io.EOF (if the
// transport was already closed before any bytes arrived); callers map
// either to the engine's notion of a closed transport.
func ReadFrameHeader(r io.Reader) (FrameHeader, error) {
	var buf [frameHeaderLen]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return FrameHeader{}, err
	}
	return FrameHeader{
		Length:   uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2]),
		Type:     FrameType(buf[3]),
		Flags:    Flags(buf[4]),
		StreamID: binary.BigEndian.Uint32(buf[5:9]) & (1<<31 - 1),
	}, nil
}

// A Frame is the base interface implemented by all parsed frame types.
// Frames are only valid until the next call to Framer.ReadFrame.
type Frame interface {
	Header() FrameHeader
}

// frameParser parses a frame given its header and exactly fh.Length
// bytes of payload.
type frameParser func(fh FrameHeader, payload []byte) (Frame, error)

var frameParsers = map[FrameType]frameParser{
	FrameData:         parseDataFrame,
	FrameHeaders:      parseHeadersFrame,
	FramePriority:     parsePriorityFrame,
	FrameRSTStream:    parseRSTStreamFrame,
	FrameSettings:     parseSettingsFrame,
	FramePing:         parsePingFrame,
	FrameGoAway:       parseGoAwayFrame,
	FrameWindowUpdate: parseWindowUpdateFrame,
	FrameContinuation: parseContinuationFrame,
}

func typeFrameParser(t FrameType) frameParser {
	if p := frameParsers[t]; p != nil {
		return p
	}
	return parseUnknownFrame
}

// ErrFrameTooLarge is returned by Framer.WriteRawFrame family methods
// when the assembled payload would overflow the 24-bit length field.
var ErrFrameTooLarge = errors.New("http2: frame too large")

// A Framer reads and writes HTTP/2 frames over an already-negotiated
// transport (TLS/ALPN and the connection preface are handled upstream;
// see Server.ServeConn). It is not safe for concurrent use: the
// connection arbiter (conn.go) is the framer's sole owner, letting its
// background reader and its own goroutine take turns on the read side
// (see frameResult) and serializing writes via the write loop.
type Framer struct {
	r io.Reader
	w io.Writer

	// MaxReadFrameSize bounds the length field accepted from the
	// peer. A frame whose Length exceeds this is a connection error
	// (FRAME_SIZE_ERROR). The arbiter sets it from
	// Config.MaxReadFrameSize, which is not the MAX_FRAME_SIZE it
	// advertises in SETTINGS (Config.MaxFrameSize); frames longer than
	// the advertised value but within this bound are accepted.
	MaxReadFrameSize uint32

	// MaxHeaderListSize bounds the decoded size of a single header
	// block (spec.md's max_header_fields_size). 0 means the sane
	// default of 16MB used throughout this package.
	MaxHeaderListSize uint32

	lastHeaderStream uint32 // non-zero while a HEADERS/CONTINUATION chain is in progress
	lastFrameType    FrameType
	sawFirstFrame    bool

	headerBuf [frameHeaderLen]byte
	readBuf   []byte // reused payload buffer for ReadFrame

	wbuf []byte // reused buffer for assembling outgoing frames
}

// NewFramer returns a Framer that reads frames from r and writes frames
// to w. Either may be nil if the Framer will only be used in the other
// direction (as golang-net/http2's debug framer does internally).
func NewFramer(w io.Writer, r io.Reader) *Framer {
	fr := &Framer{w: w, r: r}
	fr.readBuf = make([]byte, 4096)
	fr.wbuf = make([]byte, 0, 4096)
	fr.MaxReadFrameSize = maxFrameSizeDefault
	return fr
}

const maxFrameSizeDefault = 16384

func (fr *Framer) maxHeaderListSize() uint32 {
	if fr.MaxHeaderListSize == 0 {
		return 16 << 20
	}
	return fr.MaxHeaderListSize
}

// ReadFrame reads a single frame. The returned Frame is only valid
// until the next call to ReadFrame, since its payload aliases fr's
// internal read buffer.
func (fr *Framer) ReadFrame() (Frame, error) {
	fh, err := readFrameHeaderInto(fr.headerBuf[:], fr.r)
	if err != nil {
		return nil, err
	}
	if fh.Length > fr.MaxReadFrameSize {
		return nil, connError(ErrCodeFrameSize, fmt.Sprintf("frame length %d exceeds MAX_FRAME_SIZE %d", fh.Length, fr.MaxReadFrameSize))
	}
	if int(fh.Length) > len(fr.readBuf) {
		fr.readBuf = make([]byte, fh.Length)
	}
	payload := fr.readBuf[:fh.Length]
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		return nil, err
	}

	if err := fr.checkFrameOrder(fh); err != nil {
		return nil, err
	}

	f, err := typeFrameParser(fh.Type)(fh, payload)
	if err != nil {
		return nil, err
	}
	log.Frame("read %v", f.Header())
	return f, nil
}

func readFrameHeaderInto(buf []byte, r io.Reader) (FrameHeader, error) {
	if _, err := io.ReadFull(r, buf[:frameHeaderLen]); err != nil {
		return FrameHeader{}, err
	}
	return FrameHeader{
		Length:   uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2]),
		Type:     FrameType(buf[3]),
		Flags:    Flags(buf[4]),
		StreamID: binary.BigEndian.Uint32(buf[5:9]) & (1<<31 - 1),
	}, nil
}

// checkFrameOrder enforces that a HEADERS/CONTINUATION chain on one
// stream is never interleaved with a frame of a different type or a
// different stream, per spec.md §4.2's continuation loop and §8's
// "never interleaved" invariant.
func (fr *Framer) checkFrameOrder(fh FrameHeader) error {
	defer func() {
		fr.lastFrameType = fh.Type
		fr.sawFirstFrame = true
	}()

	if fr.lastHeaderStream == 0 {
		if fh.Type == FrameContinuation {
			return connError(ErrCodeProtocol, "unexpected CONTINUATION frame with no preceding HEADERS")
		}
		if fh.Type == FrameHeaders && !Flags(fh.Flags).Has(FlagHeadersEndHeaders) {
			fr.lastHeaderStream = fh.StreamID
		}
		return nil
	}

	// We are mid-block: only CONTINUATION on the same stream is legal.
	if fh.Type != FrameContinuation {
		return connError(ErrCodeProtocol, fmt.Sprintf("got %v while expecting CONTINUATION for stream %d", fh.Type, fr.lastHeaderStream))
	}
	if fh.StreamID != fr.lastHeaderStream {
		return connError(ErrCodeProtocol, fmt.Sprintf("CONTINUATION for stream %d, want %d", fh.StreamID, fr.lastHeaderStream))
	}
	if Flags(fh.Flags).Has(FlagContinuationEndHeaders) {
		fr.lastHeaderStream = 0
	}
	return nil
}

// --- write side -------------------------------------------------------

func (f *Framer) startWrite(ftype FrameType, flags Flags, streamID uint32) {
	f.wbuf = append(f.wbuf[:0],
		0, 0, 0, // length, filled in by endWrite
		byte(ftype),
		byte(flags),
		byte(streamID>>24),
		byte(streamID>>16),
		byte(streamID>>8),
		byte(streamID),
	)
}

func (f *Framer) endWrite() error {
	length := len(f.wbuf) - frameHeaderLen
	if length >= 1<<24 {
		return ErrFrameTooLarge
	}
	f.wbuf[0] = byte(length >> 16)
	f.wbuf[1] = byte(length >> 8)
	f.wbuf[2] = byte(length)
	n, err := f.w.Write(f.wbuf)
	if err == nil && n != len(f.wbuf) {
		err = io.ErrShortWrite
	}
	if err == nil {
		log.Frame("wrote %v len=%d", FrameType(f.wbuf[3]), length)
	}
	return err
}

func (f *Framer) writeByte(v byte)    { f.wbuf = append(f.wbuf, v) }
func (f *Framer) writeBytes(v []byte) { f.wbuf = append(f.wbuf, v...) }

func (f *Framer) writeUint32(v uint32) {
	f.wbuf = append(f.wbuf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func validStreamID(id uint32) bool { return id != 0 && id&(1<<31) == 0 }

// --- DATA --------------------------------------------------------------

// DataFrame carries a stream's body octets.
type DataFrame struct {
	FrameHeader
	data []byte
}

func (f *DataFrame) StreamEnded() bool { return f.Flags.Has(FlagDataEndStream) }

// Data returns the frame's payload, excluding any pad-length octet and
// padding. The caller must not retain it past the next ReadFrame call.
func (f *DataFrame) Data() []byte { return f.data }

func parseDataFrame(fh FrameHeader, payload []byte) (Frame, error) {
	if fh.StreamID == 0 {
		return nil, connError(ErrCodeProtocol, "DATA frame with stream ID 0")
	}
	f := &DataFrame{FrameHeader: fh}
	var err error
	f.data, err = stripPadding(fh.Flags.Has(FlagDataPadded), payload)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// stripPadding consumes the optional leading pad-length octet (when
// padded is set) and validates that the trailing pad_length bytes of
// payload exist, returning the content octets in between. The padding
// bytes themselves still count toward flow control at the caller.
func stripPadding(padded bool, payload []byte) ([]byte, error) {
	if !padded {
		return payload, nil
	}
	if len(payload) == 0 {
		return nil, connError(ErrCodeProtocol, "PADDED flag set but frame is empty")
	}
	padLen := int(payload[0])
	payload = payload[1:]
	if padLen > len(payload) {
		return nil, connError(ErrCodeProtocol, "pad length exceeds frame payload")
	}
	return payload[:len(payload)-padLen], nil
}

func (f *Framer) WriteData(streamID uint32, endStream bool, data []byte) error {
	return f.WriteDataPadded(streamID, endStream, data, nil)
}

func (f *Framer) WriteDataPadded(streamID uint32, endStream bool, data, pad []byte) error {
	if !validStreamID(streamID) {
		return fmt.Errorf("http2: invalid stream ID %d for DATA", streamID)
	}
	if len(pad) > 0 {
		if len(pad) > 255 {
			return fmt.Errorf("http2: pad length %d too large", len(pad))
		}
	}
	var flags Flags
	if endStream {
		flags |= FlagDataEndStream
	}
	padded := pad != nil
	if padded {
		flags |= FlagDataPadded
	}
	f.startWrite(FrameData, flags, streamID)
	if padded {
		f.writeByte(byte(len(pad)))
	}
	f.writeBytes(data)
	if padded {
		f.writeBytes(pad)
	}
	return f.endWrite()
}

// --- HEADERS -------------------------------------------------------------

// HeadersFrame is the first frame of a header block, possibly followed
// by zero or more CONTINUATION frames (see headers.go).
type HeadersFrame struct {
	FrameHeader
	Priority      PriorityParam
	headerFragBuf []byte
}

func (f *HeadersFrame) HeaderBlockFragment() []byte { return f.headerFragBuf }
func (f *HeadersFrame) HeadersEnded() bool           { return f.Flags.Has(FlagHeadersEndHeaders) }
func (f *HeadersFrame) StreamEnded() bool            { return f.Flags.Has(FlagHeadersEndStream) }
func (f *HeadersFrame) HasPriority() bool            { return f.Flags.Has(FlagHeadersPriority) }

func parseHeadersFrame(fh FrameHeader, p []byte) (Frame, error) {
	if fh.StreamID == 0 {
		return nil, connError(ErrCodeProtocol, "HEADERS frame with stream ID 0")
	}
	f := &HeadersFrame{FrameHeader: fh}

	var padLength uint8
	if fh.Flags.Has(FlagHeadersPadded) {
		if len(p) == 0 {
			return nil, connError(ErrCodeProtocol, "PADDED HEADERS with empty payload")
		}
		padLength = p[0]
		p = p[1:]
	}

	if fh.Flags.Has(FlagHeadersPriority) {
		if len(p) < 5 {
			return nil, connError(ErrCodeProtocol, "HEADERS PRIORITY flag set but payload too short")
		}
		v := binary.BigEndian.Uint32(p[:4])
		f.Priority.StreamDep = v & 0x7fffffff
		f.Priority.Exclusive = v&0x80000000 != 0
		f.Priority.Weight = p[4]
		p = p[5:]
	}

	if int(padLength) > len(p) {
		return nil, connError(ErrCodeProtocol, "HEADERS pad length exceeds remaining payload")
	}
	f.headerFragBuf = p[:len(p)-int(padLength)]
	return f, nil
}

// HeadersFrameParam is the set of parameters for Framer.WriteHeaders.
type HeadersFrameParam struct {
	StreamID      uint32
	BlockFragment []byte
	EndStream     bool
	EndHeaders    bool
	Priority      PriorityParam
}

func (f *Framer) WriteHeaders(p HeadersFrameParam) error {
	if !validStreamID(p.StreamID) {
		return fmt.Errorf("http2: invalid stream ID %d for HEADERS", p.StreamID)
	}
	var flags Flags
	if p.EndStream {
		flags |= FlagHeadersEndStream
	}
	if p.EndHeaders {
		flags |= FlagHeadersEndHeaders
	}
	if !p.Priority.IsZero() {
		flags |= FlagHeadersPriority
	}
	f.startWrite(FrameHeaders, flags, p.StreamID)
	if !p.Priority.IsZero() {
		v := p.Priority.StreamDep
		if p.Priority.Exclusive {
			v |= 1 << 31
		}
		f.writeUint32(v)
		f.writeByte(p.Priority.Weight)
	}
	f.writeBytes(p.BlockFragment)
	return f.endWrite()
}

// --- PRIORITY ------------------------------------------------------------

// PriorityParam is the priority-related fields optionally carried on a
// HEADERS frame, or the sole payload of a standalone PRIORITY frame.
type PriorityParam struct {
	StreamDep uint32
	Exclusive bool
	Weight    uint8
}

func (p PriorityParam) IsZero() bool { return p == PriorityParam{} }

type PriorityFrame struct {
	FrameHeader
	PriorityParam
}

func parsePriorityFrame(fh FrameHeader, payload []byte) (Frame, error) {
	if fh.StreamID == 0 {
		return nil, connError(ErrCodeProtocol, "PRIORITY frame with stream ID 0")
	}
	if len(payload) != 5 {
		return nil, connError(ErrCodeFrameSize, fmt.Sprintf("PRIORITY payload length %d, want 5", len(payload)))
	}
	v := binary.BigEndian.Uint32(payload[:4])
	return &PriorityFrame{
		FrameHeader: fh,
		PriorityParam: PriorityParam{
			StreamDep: v & 0x7fffffff,
			Exclusive: v&0x80000000 != 0,
			Weight:    payload[4],
		},
	}, nil
}

func (f *Framer) WritePriority(streamID uint32, p PriorityParam) error {
	if !validStreamID(streamID) {
		return fmt.Errorf("http2: invalid stream ID %d for PRIORITY", streamID)
	}
	f.startWrite(FramePriority, 0, streamID)
	v := p.StreamDep
	if p.Exclusive {
		v |= 1 << 31
	}
	f.writeUint32(v)
	f.writeByte(p.Weight)
	return f.endWrite()
}

// --- RST_STREAM ----------------------------------------------------------

type RSTStreamFrame struct {
	FrameHeader
	ErrCode ErrCode
}

func parseRSTStreamFrame(fh FrameHeader, p []byte) (Frame, error) {
	if fh.StreamID == 0 {
		return nil, connError(ErrCodeProtocol, "RST_STREAM frame with stream ID 0")
	}
	if len(p) != 4 {
		return nil, connError(ErrCodeFrameSize, "RST_STREAM payload must be 4 bytes")
	}
	return &RSTStreamFrame{fh, ErrCode(binary.BigEndian.Uint32(p))}, nil
}

func (f *Framer) WriteRSTStream(streamID uint32, code ErrCode) error {
	if !validStreamID(streamID) {
		return fmt.Errorf("http2: invalid stream ID %d for RST_STREAM", streamID)
	}
	f.startWrite(FrameRSTStream, 0, streamID)
	f.writeUint32(uint32(code))
	return f.endWrite()
}

// --- SETTINGS --------------------------------------------------------------

type SettingsFrame struct {
	FrameHeader
	p []byte
}

func (f *SettingsFrame) IsAck() bool { return f.Flags.Has(FlagSettingsAck) }

func parseSettingsFrame(fh FrameHeader, p []byte) (Frame, error) {
	if fh.StreamID != 0 {
		return nil, connError(ErrCodeProtocol, "SETTINGS frame with non-zero stream ID")
	}
	if fh.Flags.Has(FlagSettingsAck) {
		if len(p) > 0 {
			return nil, connError(ErrCodeFrameSize, "SETTINGS ACK must be empty")
		}
		return &SettingsFrame{fh, nil}, nil
	}
	if len(p)%6 != 0 {
		return nil, connError(ErrCodeFrameSize, "SETTINGS payload not a multiple of 6")
	}
	return &SettingsFrame{fh, p}, nil
}

func (f *SettingsFrame) NumSettings() int { return len(f.p) / 6 }

func (f *SettingsFrame) Setting(i int) Setting {
	off := i * 6
	return Setting{
		ID:  SettingID(binary.BigEndian.Uint16(f.p[off : off+2])),
		Val: binary.BigEndian.Uint32(f.p[off+2 : off+6]),
	}
}

func (f *SettingsFrame) ForEachSetting(fn func(Setting) error) error {
	for i := 0; i < f.NumSettings(); i++ {
		if err := fn(f.Setting(i)); err != nil {
			return err
		}
	}
	return nil
}

func (f *Framer) WriteSettings(settings ...Setting) error {
	f.startWrite(FrameSettings, 0, 0)
	for _, s := range settings {
		f.wbuf = append(f.wbuf, byte(s.ID>>8), byte(s.ID))
		f.writeUint32(s.Val)
	}
	return f.endWrite()
}

func (f *Framer) WriteSettingsAck() error {
	f.startWrite(FrameSettings, FlagSettingsAck, 0)
	return f.endWrite()
}

// --- PING -------------------------------------------------------------

type PingFrame struct {
	FrameHeader
	Data [8]byte
}

func (f *PingFrame) IsAck() bool { return f.Flags.Has(FlagPingAck) }

func parsePingFrame(fh FrameHeader, payload []byte) (Frame, error) {
	if fh.StreamID != 0 {
		return nil, connError(ErrCodeProtocol, "PING frame with non-zero stream ID")
	}
	if len(payload) != 8 {
		return nil, connError(ErrCodeFrameSize, "PING payload must be 8 bytes")
	}
	f := &PingFrame{FrameHeader: fh}
	copy(f.Data[:], payload)
	return f, nil
}

func (f *Framer) WritePing(ack bool, data [8]byte) error {
	var flags Flags
	if ack {
		flags = FlagPingAck
	}
	f.startWrite(FramePing, flags, 0)
	f.writeBytes(data[:])
	return f.endWrite()
}

// --- GOAWAY -------------------------------------------------------------

type GoAwayFrame struct {
	FrameHeader
	LastStreamID uint32
	ErrCode      ErrCode
	debugData    []byte
}

func (f *GoAwayFrame) DebugData() []byte { return f.debugData }

func parseGoAwayFrame(fh FrameHeader, p []byte) (Frame, error) {
	if fh.StreamID != 0 {
		return nil, connError(ErrCodeProtocol, "GOAWAY frame with non-zero stream ID")
	}
	if len(p) < 8 {
		return nil, connError(ErrCodeFrameSize, "GOAWAY payload shorter than 8 bytes")
	}
	return &GoAwayFrame{
		FrameHeader:  fh,
		LastStreamID: binary.BigEndian.Uint32(p[:4]) & (1<<31 - 1),
		ErrCode:      ErrCode(binary.BigEndian.Uint32(p[4:8])),
		debugData:    p[8:],
	}, nil
}

func (f *Framer) WriteGoAway(maxStreamID uint32, code ErrCode, debugData []byte) error {
	f.startWrite(FrameGoAway, 0, 0)
	f.writeUint32(maxStreamID & (1<<31 - 1))
	f.writeUint32(uint32(code))
	f.writeBytes(debugData)
	return f.endWrite()
}

// --- WINDOW_UPDATE -------------------------------------------------------

type WindowUpdateFrame struct {
	FrameHeader
	Increment uint32
}

func parseWindowUpdateFrame(fh FrameHeader, p []byte) (Frame, error) {
	if len(p) != 4 {
		return nil, connError(ErrCodeFrameSize, "WINDOW_UPDATE payload must be 4 bytes")
	}
	inc := binary.BigEndian.Uint32(p) & (1<<31 - 1)
	if inc == 0 {
		if fh.StreamID == 0 {
			return nil, connError(ErrCodeProtocol, "zero WINDOW_UPDATE increment on connection")
		}
		return nil, streamError(fh.StreamID, ErrCodeProtocol)
	}
	return &WindowUpdateFrame{FrameHeader: fh, Increment: inc}, nil
}

func (f *Framer) WriteWindowUpdate(streamID, incr uint32) error {
	if incr < 1 || incr > 2147483647 {
		return errors.New("http2: windowupdate increment out of range")
	}
	f.startWrite(FrameWindowUpdate, 0, streamID)
	f.writeUint32(incr)
	return f.endWrite()
}

// --- CONTINUATION --------------------------------------------------------

type ContinuationFrame struct {
	FrameHeader
	headerFragBuf []byte
}

func parseContinuationFrame(fh FrameHeader, p []byte) (Frame, error) {
	if fh.StreamID == 0 {
		return nil, connError(ErrCodeProtocol, "CONTINUATION frame with stream ID 0")
	}
	return &ContinuationFrame{FrameHeader: fh, headerFragBuf: p}, nil
}

func (f *ContinuationFrame) HeaderBlockFragment() []byte { return f.headerFragBuf }
func (f *ContinuationFrame) HeadersEnded() bool           { return f.Flags.Has(FlagContinuationEndHeaders) }

func (f *Framer) WriteContinuation(streamID uint32, endHeaders bool, headerBlockFragment []byte) error {
	if !validStreamID(streamID) {
		return fmt.Errorf("http2: invalid stream ID %d for CONTINUATION", streamID)
	}
	var flags Flags
	if endHeaders {
		flags |= FlagContinuationEndHeaders
	}
	f.startWrite(FrameContinuation, flags, streamID)
	f.writeBytes(headerBlockFragment)
	return f.endWrite()
}

// --- unknown / raw -------------------------------------------------------

// UnknownFrame is returned for any FrameType this package does not
// recognize. Per spec.md §4.1, such frames are still framed correctly
// and simply skipped by the caller.
type UnknownFrame struct {
	FrameHeader
	p []byte
}

func (f *UnknownFrame) Payload() []byte { return f.p }

func parseUnknownFrame(fh FrameHeader, p []byte) (Frame, error) {
	return &UnknownFrame{FrameHeader: fh, p: p}, nil
}

func (f *Framer) WriteRawFrame(t FrameType, flags Flags, streamID uint32, payload []byte) error {
	f.startWrite(t, flags, streamID)
	f.writeBytes(payload)
	return f.endWrite()
}
