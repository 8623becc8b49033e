// Package interner implements the symbol table: every class name, method
// name, property name, parameter name, and local-variable name in a
// request is stored once and referred to everywhere else by a small
// integer Symbol (spec.md §3).
//
// smog has no equivalent — pkg/vm keeps locals in a map[string]int built
// fresh per compile (pkg/compiler/compiler.go's Compiler.symbols) and
// globals in a map[string]interface{} keyed directly by the Go string.
// That is fine for a toy language but means every local/global/property
// access in the hot path does a string comparison or a string-keyed map
// lookup. The interner generalizes smog's per-compile symbol table into a
// request-lifetime one shared by the bytecode decoder, the class table,
// and the executor, so all of those become integer-keyed.
package interner

// Symbol is a 32-bit interned identifier.
type Symbol uint32

// Interner maps byte strings to Symbols. It is append-only per request:
// once a name is interned it keeps the same Symbol for the life of the
// RuntimeContext that owns this Interner (spec.md §3, "Request-local
// entities").
type Interner struct {
	names []string
	index map[string]Symbol
}

// New creates an empty interner.
func New() *Interner {
	return &Interner{index: make(map[string]Symbol)}
}

// Intern returns the Symbol for name, assigning a new one on first sight.
func (in *Interner) Intern(name string) Symbol {
	if sym, ok := in.index[name]; ok {
		return sym
	}
	sym := Symbol(len(in.names))
	in.names = append(in.names, name)
	in.index[name] = sym
	return sym
}

// Lookup returns the Symbol for name without creating one, and whether
// it was already interned.
func (in *Interner) Lookup(name string) (Symbol, bool) {
	sym, ok := in.index[name]
	return sym, ok
}

// Name returns the original string for a Symbol. Panics on an out-of-range
// Symbol since that can only happen from a corrupted constant pool or a
// Symbol minted by a different Interner — both host bugs, not user errors.
func (in *Interner) Name(sym Symbol) string {
	return in.names[sym]
}

// Len reports how many distinct names have been interned.
func (in *Interner) Len() int {
	return len(in.names)
}
