// Package runtimectx assembles one request's runtime state (spec.md §4.7):
// the class registry, global function table, global variables, defined
// constants, the symbol interner shared by every other package, and the
// per-request correlation id written to the request start and finish log
// lines.
//
// Grounded on smog's VM struct (pkg/vm/vm.go), which bundles globals,
// classes, and the operand stack into one object constructed once per
// run. phpvm splits that bundle into a builder (EngineBuilder, the
// functional-options pattern cmd/smog/main.go's flag handling hints at
// but never formalizes) producing a Context that internal/executor
// drives.
package runtimectx

import (
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/kristofer/phpvm/internal/class"
	"github.com/kristofer/phpvm/internal/errsurface"
	"github.com/kristofer/phpvm/internal/heap"
	"github.com/kristofer/phpvm/internal/interner"
	"github.com/kristofer/phpvm/internal/output"
	"github.com/kristofer/phpvm/internal/resource"
	"github.com/kristofer/phpvm/pkg/bytecode"
)

// Context is the assembled runtime state for one request/script
// execution. A running executor mutates it: the heap, output buffer,
// resource table, globals, function table and static-local table change
// during execution, and classes are registered into the class registry.
type Context struct {
	RequestID string

	Interner *interner.Interner
	Heap     *heap.Heap
	Classes  *class.Registry
	Output   *output.Buffer
	Errors   *errsurface.Handler
	Resources *resource.Manager

	Functions map[interner.Symbol]*FunctionDef
	Globals   map[interner.Symbol]heap.Handle
	Constants map[string]interface{}

	// StaticLocals backs `static $x` declarations: keyed by the defining
	// chunk (every call to the same function shares one chunk pointer) and
	// by local slot index, so the value set on one invocation is still
	// there on the next (spec.md §4.3).
	StaticLocals map[*bytecode.Chunk]map[int]heap.Handle

	Logger *log.Logger

	negativeCacheSize int
	heapCapacityHint  int
}

// FunctionDef is a top-level (non-method) function, stored the same shape
// as a class method minus visibility/Static, since spec.md's invocation
// protocol treats both uniformly once dispatch has picked a Chunk.
type FunctionDef struct {
	Name interner.Symbol
	Code *bytecode.Chunk
}

// Option configures a Context via EngineBuilder, following the
// functional-options idiom (spec.md's ambient-stack expansion calls for
// this in place of smog's positional vm.New() constructor, since phpvm
// has many more optional knobs: negative-cache size, log destination,
// output sink, preloaded constants).
type Option func(*EngineBuilder)

// WithLogger overrides the default stderr logger.
func WithLogger(l *log.Logger) Option {
	return func(b *EngineBuilder) { b.logger = l }
}

// WithNegativeCacheSize bounds the autoload negative-lookup cache
// (internal/class.Registry); 0 disables caching.
func WithNegativeCacheSize(n int) Option {
	return func(b *EngineBuilder) { b.negativeCacheSize = n }
}

// WithOutputSink redirects script output away from the default
// os.Stdout-backed buffer.
func WithOutputSink(sink output.Sink) Option {
	return func(b *EngineBuilder) { b.outputSink = sink }
}

// WithConstant predefines a global constant before the script runs.
func WithConstant(name string, v interface{}) Option {
	return func(b *EngineBuilder) { b.constants[name] = v }
}

// EngineBuilder accumulates Options before producing a Context.
type EngineBuilder struct {
	logger            *log.Logger
	negativeCacheSize int
	outputSink        output.Sink
	constants         map[string]interface{}
}

// NewEngineBuilder starts a builder with the defaults spec.md's ambient
// stack calls for: a stderr logger, a 256-entry autoload negative cache,
// and a stdout-backed output sink.
func NewEngineBuilder() *EngineBuilder {
	return &EngineBuilder{
		logger:            log.New(os.Stderr, "phpvm: ", log.LstdFlags),
		negativeCacheSize: 256,
		constants:         make(map[string]interface{}),
	}
}

// Build applies opts and assembles a fresh Context, stamping it with a
// new request-correlation UUID (spec.md's ambient-stack expansion), which
// is written to the request logger when the request starts (here) and
// finishes (Shutdown).
func Build(opts ...Option) *Context {
	b := NewEngineBuilder()
	for _, opt := range opts {
		opt(b)
	}

	in := interner.New()
	sink := b.outputSink
	if sink == nil {
		sink = output.Stdout()
	}

	ctx := &Context{
		RequestID: uuid.New().String(),
		Interner:  in,
		Heap:      heap.New(),
		Classes:   class.NewRegistry(in, b.negativeCacheSize),
		Output:    output.NewBuffer(sink),
		Errors:    errsurface.New(),
		Resources: resource.NewManager(),
		Functions:    make(map[interner.Symbol]*FunctionDef),
		Globals:      make(map[interner.Symbol]heap.Handle),
		Constants:    b.constants,
		StaticLocals: make(map[*bytecode.Chunk]map[int]heap.Handle),
		Logger:       b.logger,
	}
	ctx.Errors.SetDefaultSink(func(r errsurface.Report) {
		ctx.Logger.Printf("%s", r.String())
	})
	ctx.Logger.Printf("request %s starting", ctx.RequestID)
	return ctx
}

// Shutdown flushes buffered output and releases any resources the
// request opened but never closed (spec.md §4.7: "resources are released
// deterministically at request end even if the script never closes
// them").
func (c *Context) Shutdown() {
	c.Output.Flush()
	c.Resources.ReleaseAll()
	c.Logger.Printf("request %s finished", c.RequestID)
}
