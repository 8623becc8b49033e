// Package output implements the pluggable output sink and buffering
// stack (spec.md §4.7): echo/print write through zero or more nested
// buffers (ob_start/ob_get_clean) before reaching the final sink, and
// send_headers/finish mark the point after which header mutation is no
// longer allowed.
package output

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// Sink is the final destination for output once every buffer level has
// been flushed — a process's stdout, an HTTP response writer, or (in
// tests) an in-memory recorder.
type Sink interface {
	io.Writer
}

// Stdout returns the default sink, writing directly to the process's
// standard output.
func Stdout() Sink { return os.Stdout }

// Buffer implements the ob_start()-style nested output buffering stack
// on top of a final Sink.
type Buffer struct {
	sink    Sink
	stack   []*bytes.Buffer
	headersSent bool
	headers     []string
}

// NewBuffer creates a Buffer with no levels pushed; writes go straight to
// sink until Start is called.
func NewBuffer(sink Sink) *Buffer {
	return &Buffer{sink: sink}
}

// Start pushes a new buffering level (ob_start()).
func (b *Buffer) Start() {
	b.stack = append(b.stack, &bytes.Buffer{})
}

// Write sends s to the innermost open buffer level, or directly to the
// sink if no level is open.
func (b *Buffer) Write(s string) {
	if n := len(b.stack); n > 0 {
		b.stack[n-1].WriteString(s)
		return
	}
	fmt.Fprint(b.sink, s)
}

// GetClean pops the innermost buffer level and returns its accumulated
// contents without writing them anywhere further (ob_get_clean()).
func (b *Buffer) GetClean() (string, bool) {
	n := len(b.stack)
	if n == 0 {
		return "", false
	}
	top := b.stack[n-1]
	b.stack = b.stack[:n-1]
	return top.String(), true
}

// EndFlush pops the innermost buffer level, writing its contents to the
// next level down (or the sink) instead of discarding them
// (ob_end_flush()).
func (b *Buffer) EndFlush() bool {
	content, ok := b.GetClean()
	if !ok {
		return false
	}
	b.Write(content)
	return true
}

// Level reports how many buffering levels are currently open.
func (b *Buffer) Level() int {
	return len(b.stack)
}

// SendHeaders marks headers committed; subsequent SetHeader calls are a
// caller error under strict usage (spec.md §4.7: "headers cannot change
// after the first byte of body output is sent").
func (b *Buffer) SendHeaders() {
	b.headersSent = true
}

// HeadersSent reports whether SendHeaders has been called; Write does not
// commit headers on its own.
func (b *Buffer) HeadersSent() bool {
	return b.headersSent
}

// SetHeader records a header on the Buffer. Returns false if headers were
// already sent. SendHeaders does not write recorded headers to the sink.
func (b *Buffer) SetHeader(h string) bool {
	if b.headersSent {
		return false
	}
	b.headers = append(b.headers, h)
	return true
}

// Flush forces every remaining buffer level out to the sink, in
// innermost-to-outermost write order (each level's content becomes input to the level below it), and clears
// the stack. Called once at request shutdown so no script output is ever
// silently dropped.
func (b *Buffer) Flush() {
	for len(b.stack) > 0 {
		b.EndFlush()
	}
}
