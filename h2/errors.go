package h2

import "fmt"

// ErrCode is an HTTP/2 error code, as defined in RFC 7540 §11.4.
type ErrCode uint32

const (
	ErrCodeNo                 ErrCode = 0x0
	ErrCodeProtocol           ErrCode = 0x1
	ErrCodeInternal           ErrCode = 0x2
	ErrCodeFlowControl        ErrCode = 0x3
	ErrCodeSettingsTimeout    ErrCode = 0x4
	ErrCodeStreamClosed       ErrCode = 0x5
	ErrCodeFrameSize          ErrCode = 0x6
	ErrCodeRefusedStream      ErrCode = 0x7
	ErrCodeCancel             ErrCode = 0x8
	ErrCodeCompression        ErrCode = 0x9
	ErrCodeConnect            ErrCode = 0xa
	ErrCodeEnhanceYourCalm    ErrCode = 0xb
	ErrCodeInadequateSecurity ErrCode = 0xc
	ErrCodeHTTP11Required     ErrCode = 0xd
)

var errCodeName = map[ErrCode]string{
	ErrCodeNo:                 "NO_ERROR",
	ErrCodeProtocol:           "PROTOCOL_ERROR",
	ErrCodeInternal:           "INTERNAL_ERROR",
	ErrCodeFlowControl:        "FLOW_CONTROL_ERROR",
	ErrCodeSettingsTimeout:    "SETTINGS_TIMEOUT",
	ErrCodeStreamClosed:       "STREAM_CLOSED",
	ErrCodeFrameSize:          "FRAME_SIZE_ERROR",
	ErrCodeRefusedStream:      "REFUSED_STREAM",
	ErrCodeCancel:             "CANCEL",
	ErrCodeCompression:        "COMPRESSION_ERROR",
	ErrCodeConnect:            "CONNECT_ERROR",
	ErrCodeEnhanceYourCalm:    "ENHANCE_YOUR_CALM",
	ErrCodeInadequateSecurity: "INADEQUATE_SECURITY",
	ErrCodeHTTP11Required:     "HTTP_1_1_REQUIRED",
}

func (e ErrCode) String() string {
	if s, ok := errCodeName[e]; ok {
		return s
	}
	return fmt.Sprintf("UNKNOWN_ERROR_CODE_%d", uint32(e))
}

// ConnectionError is a connection-fatal error: the arbiter stops
// reading, emits GOAWAY with this code and the highest accepted
// remote stream ID, and returns from Server.ServeConn. The arbiter
// does not close the transport itself (Transport has no Close
// method); that is left to ServeConn's caller.
type ConnectionError struct {
	Code   ErrCode
	Reason string
}

func (e ConnectionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("http2: connection error: %v", e.Code)
	}
	return fmt.Sprintf("http2: connection error: %v: %s", e.Code, e.Reason)
}

// connError is a convenience constructor mirroring the reference
// implementation's internal helper of the same shape.
func connError(code ErrCode, reason string) ConnectionError {
	return ConnectionError{Code: code, Reason: reason}
}

// StreamError affects a single stream only: the arbiter resets that
// stream with RST_STREAM(Code) and continues serving the connection.
type StreamError struct {
	StreamID uint32
	Code     ErrCode
	Cause    error // optional additional detail, never sent on the wire
}

func (e StreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("http2: stream error on stream %d: %v (%v)", e.StreamID, e.Code, e.Cause)
	}
	return fmt.Sprintf("http2: stream error on stream %d: %v", e.StreamID, e.Code)
}

func streamError(id uint32, code ErrCode) StreamError {
	return StreamError{StreamID: id, Code: code}
}

// Application errors surfaced synchronously to StreamHandle callers.
// These never affect wire state by themselves (see spec §7): the stream
// stays exactly where it was before the failed call.
var (
	ErrWriteBeforeHeaders  = fmt.Errorf("http2: attempted to write data before headers")
	ErrTrailersWithoutData = fmt.Errorf("http2: attempted to write trailers without data")
	ErrHeadersAfterFinal   = fmt.Errorf("http2: attempted to write headers after final response headers")
	ErrStreamClosed        = fmt.Errorf("http2: stream is closed")
)
