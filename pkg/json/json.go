// Package json provides JSON encoding and decoding for Ferry on top of
// goccy/go-json, with pooled buffers for hot paths. All JSON handling in the
// codebase goes through this package so the underlying library can be tuned
// in one place.
package json

import (
	"bytes"
	"io"
	"sync"

	gojson "github.com/goccy/go-json"
)

var bufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 4096))
	},
}

// Marshal encodes v as JSON.
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal decodes JSON data into v.
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// MarshalIndent encodes v as indented JSON.
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return gojson.MarshalIndent(v, prefix, indent)
}

// NewEncoder returns a streaming encoder writing to w.
func NewEncoder(w io.Writer) *gojson.Encoder {
	return gojson.NewEncoder(w)
}

// NewDecoder returns a streaming decoder reading from w.
func NewDecoder(r io.Reader) *gojson.Decoder {
	return gojson.NewDecoder(r)
}

// MarshalToBuffer encodes v into a pooled buffer. The caller must return the
// buffer with ReleaseBuffer once the bytes have been consumed.
func MarshalToBuffer(v interface{}) (*bytes.Buffer, error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	enc := gojson.NewEncoder(buf)
	if err := enc.Encode(v); err != nil {
		bufferPool.Put(buf)
		return nil, err
	}
	return buf, nil
}

// ReleaseBuffer returns a buffer obtained from MarshalToBuffer to the pool.
func ReleaseBuffer(buf *bytes.Buffer) {
	if buf != nil {
		bufferPool.Put(buf)
	}
}
