package h2

import (
	"bytes"
	"errors"
	"testing"

	"golang.org/x/net/http2/hpack"
)

func encodeFields(t *testing.T, fields []HeaderField) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := hpack.NewEncoder(&buf)
	for _, f := range fields {
		if err := enc.WriteField(f); err != nil {
			t.Fatal(err)
		}
	}
	return buf.Bytes()
}

func newTestDecoder() *hpack.Decoder {
	return newDecoder(4096, 0, nil)
}

func TestReadMetaHeadersSingleFrame(t *testing.T) {
	want := []HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":scheme", Value: "http"},
		{Name: ":path", Value: "/"},
		{Name: "abc", Value: "def"},
	}
	block := encodeFields(t, want)

	var wireBuf bytes.Buffer
	w := NewFramer(&wireBuf, nil)
	if err := w.WriteHeaders(HeadersFrameParam{StreamID: 1, BlockFragment: block, EndHeaders: true}); err != nil {
		t.Fatal(err)
	}
	r := NewFramer(nil, &wireBuf)
	f, err := r.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	hf := f.(*HeadersFrame)

	mh, err := readMetaHeaders(r, hf, newTestDecoder(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(mh.Fields) != len(want) {
		t.Fatalf("got %d fields, want %d", len(mh.Fields), len(want))
	}
	for i, f := range want {
		if mh.Fields[i] != f {
			t.Fatalf("field %d = %+v, want %+v", i, mh.Fields[i], f)
		}
	}
}

func TestReadMetaHeadersFollowsContinuationChain(t *testing.T) {
	want := []HeaderField{
		{Name: ":method", Value: "POST"},
		{Name: ":path", Value: "/upload"},
		{Name: "content-type", Value: "application/octet-stream"},
	}
	block := encodeFields(t, want)
	split := len(block) / 2

	var wireBuf bytes.Buffer
	w := NewFramer(&wireBuf, nil)
	if err := w.WriteHeaders(HeadersFrameParam{StreamID: 1, BlockFragment: block[:split], EndHeaders: false, EndStream: true}); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteContinuation(1, true, block[split:]); err != nil {
		t.Fatal(err)
	}

	r := NewFramer(nil, &wireBuf)
	f, err := r.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	hf := f.(*HeadersFrame)

	mh, err := readMetaHeaders(r, hf, newTestDecoder(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if !mh.EndStream {
		t.Fatal("EndStream not carried over from the initial HEADERS frame")
	}
	if len(mh.Fields) != len(want) {
		t.Fatalf("got %d fields, want %d", len(mh.Fields), len(want))
	}
}

func TestReadMetaHeadersRejectsPseudoAfterRegular(t *testing.T) {
	block := encodeFields(t, []HeaderField{
		{Name: "abc", Value: "def"},
		{Name: ":method", Value: "GET"},
	})
	var wireBuf bytes.Buffer
	w := NewFramer(&wireBuf, nil)
	w.WriteHeaders(HeadersFrameParam{StreamID: 1, BlockFragment: block, EndHeaders: true})
	r := NewFramer(nil, &wireBuf)
	f, _ := r.ReadFrame()
	hf := f.(*HeadersFrame)

	_, err := readMetaHeaders(r, hf, newTestDecoder(), 0)
	var se StreamError
	if !errors.As(err, &se) || se.Code != ErrCodeProtocol {
		t.Fatalf("err = %v, want StreamError{PROTOCOL_ERROR}", err)
	}
}

func TestReadMetaHeadersRejectsMixedPseudoTypes(t *testing.T) {
	block := encodeFields(t, []HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":status", Value: "200"},
	})
	var wireBuf bytes.Buffer
	w := NewFramer(&wireBuf, nil)
	w.WriteHeaders(HeadersFrameParam{StreamID: 1, BlockFragment: block, EndHeaders: true})
	r := NewFramer(nil, &wireBuf)
	f, _ := r.ReadFrame()
	hf := f.(*HeadersFrame)

	_, err := readMetaHeaders(r, hf, newTestDecoder(), 0)
	var se StreamError
	if !errors.As(err, &se) || se.Code != ErrCodeProtocol {
		t.Fatalf("err = %v, want StreamError{PROTOCOL_ERROR}", err)
	}
}

func TestReadMetaHeadersRejectsUnknownPseudo(t *testing.T) {
	block := encodeFields(t, []HeaderField{{Name: ":bogus", Value: "x"}})
	var wireBuf bytes.Buffer
	w := NewFramer(&wireBuf, nil)
	w.WriteHeaders(HeadersFrameParam{StreamID: 1, BlockFragment: block, EndHeaders: true})
	r := NewFramer(nil, &wireBuf)
	f, _ := r.ReadFrame()
	hf := f.(*HeadersFrame)

	_, err := readMetaHeaders(r, hf, newTestDecoder(), 0)
	var se StreamError
	if !errors.As(err, &se) || se.Code != ErrCodeProtocol {
		t.Fatalf("err = %v, want StreamError{PROTOCOL_ERROR}", err)
	}
}

func TestReadMetaHeadersTruncatesOverMaxHeaderListSize(t *testing.T) {
	block := encodeFields(t, []HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: "x", Value: "a-fairly-long-header-value-to-exceed-the-tiny-limit-below"},
	})
	var wireBuf bytes.Buffer
	w := NewFramer(&wireBuf, nil)
	w.WriteHeaders(HeadersFrameParam{StreamID: 1, BlockFragment: block, EndHeaders: true})
	r := NewFramer(nil, &wireBuf)
	f, _ := r.ReadFrame()
	hf := f.(*HeadersFrame)

	_, err := readMetaHeaders(r, hf, newTestDecoder(), 40)
	var ce ConnectionError
	if !errors.As(err, &ce) || ce.Code != ErrCodeProtocol {
		t.Fatalf("err = %v, want ConnectionError{PROTOCOL_ERROR}", err)
	}
}
