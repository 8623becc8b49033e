// Package errsurface implements the closed error-kind/error-level model
// (spec.md §4.4): the fixed set of non-exception diagnostics a script can
// raise (warnings, deprecations, notices), the handler-stack mechanism
// that lets script code intercept them, and the last-error slot that
// survives even when no handler is installed.
//
// This has no real analogue in smog, which only has panics surfaced as
// Go errors (pkg/vm/errors.go's RuntimeError) — smog's language has no
// warning/notice distinction. The shape (closed enum of levels, a
// handler stack instead of a single global handler, a structured
// "current error" record) is grounded on RuntimeError's StackFrame-chain
// design, generalized from "one fatal kind" to the full level set.
package errsurface

import "fmt"

// Level is a closed set of non-fatal diagnostic severities.
type Level int

const (
	LevelNotice Level = iota
	LevelWarning
	LevelDeprecated
	LevelStrict
)

func (l Level) String() string {
	switch l {
	case LevelNotice:
		return "Notice"
	case LevelWarning:
		return "Warning"
	case LevelDeprecated:
		return "Deprecated"
	case LevelStrict:
		return "Strict"
	default:
		return "Unknown"
	}
}

// Report is one raised diagnostic.
type Report struct {
	Level   Level
	Message string
	File    string
	Line    int
}

func (r Report) String() string {
	return fmt.Sprintf("%s: %s in %s on line %d", r.Level, r.Message, r.File, r.Line)
}

// Handler manages the handler stack and last-error slot for one request.
type Handler struct {
	stack []HandlerFunc
	last  *Report
	sink  func(Report)
}

// HandlerFunc is the callback type installed via Push; named separately
// from Handler (the request-scoped registry) to keep "a handler" and
// "the handler stack" from colliding.
type HandlerFunc = func(r Report) (suppress bool)

// New creates a registry whose default sink does nothing; callers that
// want diagnostics surfaced somewhere (stderr, the output buffer) set
// SetDefaultSink explicitly, mirroring spec.md's "no diagnostic is ever
// silently dropped, but where it goes is configurable" requirement.
func New() *Handler {
	return &Handler{}
}

// SetDefaultSink installs the fallback reporter used when no handler on
// the stack suppresses a report.
func (h *Handler) SetDefaultSink(sink func(Report)) {
	h.sink = sink
}

// Push installs a new top-of-stack handler (set_error_handler).
func (h *Handler) Push(fn HandlerFunc) {
	h.stack = append(h.stack, fn)
}

// Pop removes the top-of-stack handler (restore_error_handler).
func (h *Handler) Pop() {
	if len(h.stack) > 0 {
		h.stack = h.stack[:len(h.stack)-1]
	}
}

// Raise reports r to the topmost handler; if it returns false (or there
// is no handler), falls through to the default sink. The last-error slot
// is always updated regardless of suppression (spec.md §4.4: "last-error
// reflects every raise, handled or not").
func (h *Handler) Raise(r Report) {
	cp := r
	h.last = &cp

	if len(h.stack) > 0 {
		top := h.stack[len(h.stack)-1]
		if top(r) {
			return
		}
	}
	if h.sink != nil {
		h.sink(r)
	}
}

// LastError returns the most recently raised report, if any.
func (h *Handler) LastError() (Report, bool) {
	if h.last == nil {
		return Report{}, false
	}
	return *h.last, true
}
