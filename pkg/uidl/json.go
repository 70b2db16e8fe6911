package uidl

import (
	"bytes"
	"encoding/json"
	"io"
)

// member is one key/value pair of an ordered JSON object.
type member struct {
	Key   string
	Value any
}

// object is a JSON object that keeps insertion order.
type object []member

func (o *object) set(key string, value any) {
	*o = append(*o, member{Key: key, Value: value})
}

// MarshalJSON encodes the members in order.
func (o object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(m.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(m.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// countingWriter counts bytes written through it.
type countingWriter struct {
	w io.Writer
	n int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += n
	return n, err
}

// streamWriter writes the top level response object one field at a time
// so fields reach the client in a fixed order.
type streamWriter struct {
	w     io.Writer
	first bool
	err   error
}

func newStreamWriter(w io.Writer) *streamWriter {
	s := &streamWriter{w: w, first: true}
	s.write([]byte{'{'})
	return s
}

func (s *streamWriter) write(p []byte) {
	if s.err != nil {
		return
	}
	_, s.err = s.w.Write(p)
}

// field encodes value under key. Encoding failures stick and are
// reported by close.
func (s *streamWriter) field(key string, value any) {
	if s.err != nil {
		return
	}
	v, err := json.Marshal(value)
	if err != nil {
		s.err = err
		return
	}
	s.rawField(key, v)
}

func (s *streamWriter) rawField(key string, raw []byte) {
	if s.err != nil {
		return
	}
	if !s.first {
		s.write([]byte{','})
	}
	s.first = false
	k, _ := json.Marshal(key)
	s.write(k)
	s.write([]byte{':'})
	s.write(raw)
}

func (s *streamWriter) close() error {
	s.write([]byte{'}'})
	return s.err
}
