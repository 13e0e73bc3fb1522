package h2

import (
	"bytes"
	"testing"

	"golang.org/x/net/http2/hpack"
)

func TestEncodeDecodeHeaderListRoundTrip(t *testing.T) {
	fields := []HeaderField{
		{Name: ":status", Value: "200"},
		{Name: "content-type", Value: "text/plain"},
		{Name: "x-custom", Value: "value-with-some-length-to-it"},
	}

	var buf bytes.Buffer
	enc := hpack.NewEncoder(&buf)
	block, err := encodeHeaderList(enc, &buf, fields)
	if err != nil {
		t.Fatal(err)
	}

	var got []HeaderField
	dec := hpack.NewDecoder(4096, func(f hpack.HeaderField) {
		got = append(got, f)
	})
	if _, err := dec.Write(block); err != nil {
		t.Fatal(err)
	}
	if len(got) != len(fields) {
		t.Fatalf("got %d fields, want %d", len(got), len(fields))
	}
	for i, f := range fields {
		if got[i] != f {
			t.Fatalf("field %d = %+v, want %+v", i, got[i], f)
		}
	}
}

// TestEncodeHeaderListReturnsAFreshCopy guards against the buffer-
// aliasing hazard: the caller's block from the first call must survive
// a second call reusing (and resetting) the same shared buffer.
func TestEncodeHeaderListReturnsAFreshCopy(t *testing.T) {
	var buf bytes.Buffer
	enc := hpack.NewEncoder(&buf)

	first, err := encodeHeaderList(enc, &buf, []HeaderField{{Name: "a", Value: "111"}})
	if err != nil {
		t.Fatal(err)
	}
	firstCopy := append([]byte(nil), first...)

	if _, err := encodeHeaderList(enc, &buf, []HeaderField{{Name: "b", Value: "222222222"}}); err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(first, firstCopy) {
		t.Fatalf("first block mutated by a later encodeHeaderList call: got %x, want %x", first, firstCopy)
	}
}
