package h2

import (
	"bytes"

	"golang.org/x/net/http2/hpack"
)

// HeaderField re-exports the hpack package's representation so callers
// of this package (StreamHandle.ReadHeaders, Listener implementations)
// never need to import golang.org/x/net/http2/hpack themselves.
type HeaderField = hpack.HeaderField

// newDecoder returns an HPACK decoder sized to maxDynamicTableSize,
// configured the way the assembler in headers.go expects: string
// lengths bounded by maxHeaderListSize so a single field can't exhaust
// memory before the running-size check in readMetaHeaders ever runs.
func newDecoder(maxDynamicTableSize uint32, maxHeaderListSize uint32, emit func(hpack.HeaderField)) *hpack.Decoder {
	dec := hpack.NewDecoder(maxDynamicTableSize, emit)
	if maxHeaderListSize > 0 && uint32(int(maxHeaderListSize)) == maxHeaderListSize {
		dec.SetMaxStringLength(int(maxHeaderListSize))
	}
	return dec
}

// encodeHeaderList HPACK-encodes fields in order into buf (which enc
// writes to) and returns the result as a fresh slice, for use by StreamHandle.WriteHeaders/WriteTrailers. The connection's
// encoder (and its dynamic table) is owned by the arbiter; see conn.go.
// The returned slice is a fresh copy, not an alias of buf's backing
// array: buf is reused (and Reset) by the very next call, but the
// caller's frame write is often deferred to the write loop, which runs
// on a different goroutine and may not run before that next call.
func encodeHeaderList(enc *hpack.Encoder, buf *bytes.Buffer, fields []HeaderField) ([]byte, error) {
	buf.Reset()
	for _, f := range fields {
		if err := enc.WriteField(f); err != nil {
			return nil, err
		}
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}
