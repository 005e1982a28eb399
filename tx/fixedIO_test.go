package tx_test

import (
	"io"
)

// fixedWriter implements the io.Writer interface and intentionally allows
// testing of error paths by forcing short writes.
type fixedWriter struct {
	b   []byte
	pos int
}

// Write writes p unless it would overflow the fixed buffer.
func (w *fixedWriter) Write(p []byte) (n int, err error) {
	lenp := len(p)
	if w.pos+lenp > cap(w.b) {
		return 0, io.ErrShortWrite
	}
	n = lenp
	w.pos += copy(w.b[w.pos:], p)
	return
}

// Bytes returns the bytes written so far.
func (w *fixedWriter) Bytes() []byte {
	return w.b[:w.pos]
}

// newFixedWriter returns a writer that accepts at most max bytes.
func newFixedWriter(max int64) *fixedWriter {
	b := make([]byte, max)
	fw := fixedWriter{b, 0}
	return &fw
}
