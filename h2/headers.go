package h2

import (
	"fmt"
	"strings"

	"golang.org/x/net/http/httpguts"
	"golang.org/x/net/http2/hpack"
)

// MetaHeaders is the CompleteHeaderBlock of spec.md §3: the fused,
// fully-decoded result of one HEADERS frame and its CONTINUATION
// chain. It is produced atomically — the caller never observes it
// partially built, since readMetaHeaders only returns once the whole
// chain has been read and decoded (or failed).
type MetaHeaders struct {
	Priority    PriorityParam
	HasPriority bool
	Fields      []HeaderField
	EndStream   bool
	Truncated   bool
}

func (mh *MetaHeaders) PseudoFields() []HeaderField {
	for i, hf := range mh.Fields {
		if !hf.IsPseudo() {
			return mh.Fields[:i]
		}
	}
	return mh.Fields
}

func (mh *MetaHeaders) RegularFields() []HeaderField {
	for i, hf := range mh.Fields {
		if !hf.IsPseudo() {
			return mh.Fields[i:]
		}
	}
	return nil
}

var (
	errPseudoAfterRegular = fmt.Errorf("http2: pseudo header field after regular header field")
	errMixPseudoTypes     = fmt.Errorf("http2: mix of request and response pseudo headers")
)

func pseudoHeaderError(name string) error {
	return fmt.Errorf("http2: invalid pseudo header %q", name)
}

func duplicatePseudoHeaderError(name string) error {
	return fmt.Errorf("http2: duplicate pseudo header %q", name)
}

func headerFieldNameError(name string) error {
	return fmt.Errorf("http2: invalid header field name %q", name)
}

func headerFieldValueError(name string) error {
	return fmt.Errorf("http2: invalid header field value for %q", name)
}

// checkPseudos validates pseudo-header ordering, rejects unknown
// pseudo headers, duplicate pseudo headers, and a block that mixes
// request- and response-style pseudo headers.
func checkPseudos(fields []HeaderField) error {
	var isRequest, isResponse bool
	pf := (&MetaHeaders{Fields: fields}).PseudoFields()
	for i, hf := range pf {
		switch hf.Name {
		case ":method", ":path", ":scheme", ":authority":
			isRequest = true
		case ":status":
			isResponse = true
		default:
			return pseudoHeaderError(hf.Name)
		}
		for _, hf2 := range pf[:i] {
			if hf.Name == hf2.Name {
				return duplicatePseudoHeaderError(hf.Name)
			}
		}
	}
	if isRequest && isResponse {
		return errMixPseudoTypes
	}
	return nil
}

// readMetaHeaders drives the CONTINUATION loop described in spec.md
// §4.2: it feeds hf's fragment and then every subsequent CONTINUATION
// frame's fragment to dec, enforcing frame-order, size, and pseudo
// header rules along the way. fr is used only to read the CONTINUATION
// frames themselves; the initial HEADERS frame (hf) has already been
// read by the caller (the arbiter's dispatch loop).
//
// maxHeaderListSize is spec.md's max_header_fields_size: the running
// sum of (name.len + value.len + 32) across every decoded field. Once
// exceeded, decoding continues (to keep HPACK dynamic-table state in
// sync with the peer) but Truncated is set and no more fields are
// appended. Once the whole chain has been decoded, a truncated block
// makes readMetaHeaders itself return a connection error with
// PROTOCOL_ERROR, since the limit is connection-fatal per spec.md §4.2.
func readMetaHeaders(fr *Framer, hf *HeadersFrame, dec *hpack.Decoder, maxHeaderListSize uint32) (*MetaHeaders, error) {
	mh := &MetaHeaders{
		Priority:    hf.Priority,
		HasPriority: hf.HasPriority(),
		EndStream:   hf.StreamEnded(),
	}

	if maxHeaderListSize == 0 {
		maxHeaderListSize = 16 << 20
	}
	remain := maxHeaderListSize
	var sawRegular bool
	var invalid error

	dec.SetEmitEnabled(true)
	dec.SetEmitFunc(func(hf HeaderField) {
		if invalid != nil {
			return
		}
		if !httpguts.ValidHeaderFieldValue(hf.Value) {
			invalid = headerFieldValueError(hf.Name)
			dec.SetEmitEnabled(false)
			return
		}
		isPseudo := strings.HasPrefix(hf.Name, ":")
		if isPseudo {
			if sawRegular {
				invalid = errPseudoAfterRegular
				dec.SetEmitEnabled(false)
				return
			}
		} else {
			sawRegular = true
			if !httpguts.ValidHeaderFieldName(hf.Name) {
				invalid = headerFieldNameError(hf.Name)
				dec.SetEmitEnabled(false)
				return
			}
		}

		size := hf.Size()
		if size > remain {
			mh.Truncated = true
			dec.SetEmitEnabled(false)
			return
		}
		remain -= size
		mh.Fields = append(mh.Fields, hf)
	})
	defer dec.SetEmitFunc(func(HeaderField) {})

	frag := hf.HeaderBlockFragment()
	endHeaders := hf.HeadersEnded()
	for {
		if _, err := dec.Write(frag); err != nil {
			return nil, connError(ErrCodeCompression, "hpack decode failed")
		}
		if endHeaders {
			break
		}
		f, err := fr.ReadFrame()
		if err != nil {
			return nil, err
		}
		cf, ok := f.(*ContinuationFrame)
		if !ok {
			// checkFrameOrder already guarantees this can't happen in
			// production use, but keep the assertion for safety.
			return nil, connError(ErrCodeProtocol, "expected CONTINUATION frame")
		}
		frag = cf.HeaderBlockFragment()
		endHeaders = cf.HeadersEnded()
	}

	// Open question resolved per spec.md §4.2/§9: if EndHeaders was set
	// but the decoder is still mid-field, the block is truncated at the
	// HPACK layer, which leaves dynamic-table state undefined —
	// COMPRESSION_ERROR, not PROTOCOL_ERROR.
	if err := dec.Close(); err != nil {
		return nil, connError(ErrCodeCompression, "header block ended mid-field")
	}

	if invalid != nil {
		return nil, StreamError{StreamID: hf.StreamID, Code: ErrCodeProtocol, Cause: invalid}
	}
	if err := checkPseudos(mh.Fields); err != nil {
		return nil, StreamError{StreamID: hf.StreamID, Code: ErrCodeProtocol, Cause: err}
	}
	if mh.Truncated {
		return nil, connError(ErrCodeProtocol, "header list exceeds max_header_fields_size")
	}
	return mh, nil
}
