// Package class implements class registration and resolution (spec.md
// §4.6): inheritance, trait flattening, method/property lookup with
// visibility enforcement, late static binding's "called scope", readonly
// properties, and enums as classes with singleton cases.
//
// Grounded on smog's class model in pkg/vm/vm.go (Instance.Class,
// ClassDefinition.Methods/ClassMethods, the method lookup walk up
// SuperClass) generalized from a single-inheritance-only, no-visibility,
// no-trait shape to the fuller PHP-family one the spec calls for, and on
// pkg/bytecode/format.go's ClassDefinition as the wire shape a Record is
// built from.
package class

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/kristofer/phpvm/internal/interner"
	"github.com/kristofer/phpvm/pkg/bytecode"
)

// Method is a resolved method: its defining class (for self:: inside the
// body) and compiled body.
type Method struct {
	Selector    string
	Visibility  bytecode.Visibility
	Static      bool
	Abstract    bool
	Final       bool
	Code        *bytecode.Chunk
	DeclaringClass interner.Symbol
}

// Property is a resolved instance or static property declaration.
type Property struct {
	Name       interner.Symbol
	Visibility bytecode.Visibility
	Readonly   bool
	Default    interface{} // the constant-pool value, nil if none
	DeclaringClass interner.Symbol
}

// EnumCase is one singleton case value of an enum class (spec.md §4.6
// "enums are classes with singleton case instances").
type EnumCase struct {
	Name      string
	BackedVal interface{}
}

// Record is a fully-linked, registered class: inheritance and traits
// already flattened, method table already built. Records are immutable
// once registered (spec.md §3 invariant 5).
type Record struct {
	Name  interner.Symbol
	Super *Record // nil for a root class

	Interfaces []interner.Symbol
	Methods    map[string]*Method // flattened: own + trait + inherited, own wins
	Statics    map[string]Property
	StaticVals map[string]interface{} // current static-property values, mutable
	Fields     []Property              // declared instance fields, in declaration order
	Constants  map[string]interface{}

	Final, Abstract, Readonly bool
	IsInterface, IsTrait      bool
	IsEnum, BackedEnum        bool
	AllowDynamicProperties    bool
	EnumCases                 []EnumCase

	mu sync.Mutex
}

// IsSubclassOf reports whether r is class, or a subclass of it, or
// implements it as an interface (spec.md's instanceof semantics).
func (r *Record) IsSubclassOf(name interner.Symbol) bool {
	for c := r; c != nil; c = c.Super {
		if c.Name == name {
			return true
		}
		for _, iface := range c.Interfaces {
			if iface == name {
				return true
			}
		}
	}
	return false
}

// ResolveMethod looks up selector in r's method table. Build has already
// flattened inherited and trait methods into that table, so no walk up
// Super happens here; the returned Method's DeclaringClass names the
// class that defined it (which may differ from r for inherited methods,
// and is what callers keep apart from the dispatching class for static::
// resolution).
func (r *Record) ResolveMethod(selector string) (*Method, bool) {
	m, ok := r.Methods[selector]
	return m, ok
}

// StaticValue reads a static property's current value, walking up Super
// since static properties are inherited (but not re-copied: PHP-family
// semantics share one slot across subclasses unless redeclared).
func (r *Record) StaticValue(name string) (interface{}, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for c := r; c != nil; c = c.Super {
		if v, ok := c.StaticVals[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// SetStaticValue writes a static property, walking up to the declaring
// class's slot the same way StaticValue reads it.
func (r *Record) SetStaticValue(name string, v interface{}) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for c := r; c != nil; c = c.Super {
		if _, ok := c.StaticVals[name]; ok {
			c.StaticVals[name] = v
			return true
		}
	}
	return false
}

// VisibilityError reports why access to a member is disallowed, for
// error surface translation into an Error/throw (spec.md §4.6: "private
// and protected access violations are structured runtime errors, not
// silent coercion to null").
type VisibilityError struct {
	Member, Class string
	Visibility    bytecode.Visibility
}

func (e *VisibilityError) Error() string {
	vis := "private"
	if e.Visibility == bytecode.Protected {
		vis = "protected"
	}
	return fmt.Sprintf("cannot access %s member %s::%s", vis, e.Class, e.Member)
}

// CheckMethodVisibility enforces spec.md §4.6's call-site visibility
// rule: public is always reachable; protected requires callerClass to be
// r or one of its relatives in the same hierarchy; private requires
// callerClass to be exactly m.DeclaringClass.
func CheckMethodVisibility(m *Method, r *Record, callerClass interner.Symbol, in *interner.Interner) error {
	switch m.Visibility {
	case bytecode.Public:
		return nil
	case bytecode.Protected:
		if callerClass == m.DeclaringClass || r.IsSubclassOf(callerClass) || sameHierarchy(r, callerClass) {
			return nil
		}
	case bytecode.Private:
		if callerClass == m.DeclaringClass {
			return nil
		}
	}
	return &VisibilityError{Member: m.Selector, Class: in.Name(r.Name), Visibility: m.Visibility}
}

func sameHierarchy(r *Record, class interner.Symbol) bool {
	for c := r; c != nil; c = c.Super {
		if c.Name == class {
			return true
		}
	}
	return false
}

// Registry holds every registered class for one request lifecycle
// (spec.md §4.7 runtime context), plus the autoloader chain and a bounded
// negative-lookup cache for the autoload chain so a repeatedly-missed
// class name doesn't re-walk every registered autoloader on every
// reference within the same request.
type Registry struct {
	mu      sync.RWMutex
	classes map[interner.Symbol]*Record
	interner *interner.Interner

	autoloaders []func(name string) bool
	negative    *lru.Cache // name -> struct{}, classes confirmed absent after autoloading
}

// NewRegistry creates an empty registry. negativeCacheSize bounds the
// autoload negative cache (spec.md's "autoloaders are tried in
// registration order, and a class name that still resolves to nothing is
// not retried" — the cache makes "not retried" cheap instead of merely
// correct).
func NewRegistry(in *interner.Interner, negativeCacheSize int) *Registry {
	cache, _ := lru.New(negativeCacheSize)
	return &Registry{
		classes:  make(map[interner.Symbol]*Record),
		interner: in,
		negative: cache,
	}
}

// Register adds a fully-built Record. Re-registering the same name is a
// caller error (class definitions are load-once, spec.md §4.6).
func (reg *Registry) Register(r *Record) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, exists := reg.classes[r.Name]; exists {
		return fmt.Errorf("class %q already declared", reg.interner.Name(r.Name))
	}
	reg.classes[r.Name] = r
	return nil
}

// RegisterAutoloader appends a loader to the spl_autoload_register chain.
// Each loader returns true if it successfully defined the class.
func (reg *Registry) RegisterAutoloader(fn func(name string) bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.autoloaders = append(reg.autoloaders, fn)
}

// Lookup finds a registered class by symbol, running the autoload chain
// (in registration order, per spec.md §4.6) on a miss before giving up.
// A name previously confirmed absent via the negative cache skips the
// chain entirely.
func (reg *Registry) Lookup(name interner.Symbol) (*Record, bool) {
	reg.mu.RLock()
	r, ok := reg.classes[name]
	reg.mu.RUnlock()
	if ok {
		return r, true
	}

	nameStr := reg.interner.Name(name)
	if reg.negative != nil {
		if _, missed := reg.negative.Get(nameStr); missed {
			return nil, false
		}
	}

	reg.mu.RLock()
	loaders := append([]func(name string) bool{}, reg.autoloaders...)
	reg.mu.RUnlock()

	for _, load := range loaders {
		if load(nameStr) {
			reg.mu.RLock()
			r, ok = reg.classes[name]
			reg.mu.RUnlock()
			if ok {
				return r, true
			}
		}
	}

	if reg.negative != nil {
		reg.negative.Add(nameStr, struct{}{})
	}
	return nil, false
}

// Build flattens a bytecode.ClassDef into a registered Record: resolves
// Super and Interfaces against already-registered classes, flattens
// trait methods in declared order (own methods always win over a trait's,
// matching spec.md §4.6's "a class's own method shadows any trait method
// of the same name"), and copies static property defaults into fresh
// per-class storage.
func Build(def *bytecode.ClassDef, constants []interface{}, reg *Registry, in *interner.Interner) (*Record, error) {
	r := &Record{
		Name:       in.Intern(def.Name),
		Methods:    make(map[string]*Method),
		Statics:    make(map[string]Property),
		StaticVals: make(map[string]interface{}),
		Constants:  def.Constants,
		Final:      def.Final, Abstract: def.Abstract, Readonly: def.Readonly,
		IsInterface: def.IsInterface, IsTrait: def.IsTrait,
		IsEnum: def.IsEnum, BackedEnum: def.BackedEnum,
		AllowDynamicProperties: def.AllowDynamicProperties,
	}

	if def.Super != "" {
		super, ok := reg.Lookup(in.Intern(def.Super))
		if !ok {
			return nil, fmt.Errorf("unknown parent class %q for %q", def.Super, def.Name)
		}
		if super.Final {
			return nil, fmt.Errorf("class %q cannot extend final class %q", def.Name, def.Super)
		}
		r.Super = super
		for sel, m := range super.Methods {
			r.Methods[sel] = m
		}
		for name, p := range super.Statics {
			r.Statics[name] = p
		}
	}

	for _, ifaceName := range def.Interfaces {
		r.Interfaces = append(r.Interfaces, in.Intern(ifaceName))
	}

	for _, traitName := range def.Traits {
		trait, ok := reg.Lookup(in.Intern(traitName))
		if !ok {
			return nil, fmt.Errorf("unknown trait %q for %q", traitName, def.Name)
		}
		for sel, m := range trait.Methods {
			r.Methods[sel] = m
		}
	}

	for _, md := range def.Methods {
		r.Methods[md.Selector] = &Method{
			Selector: md.Selector, Visibility: md.Visibility, Static: md.Static,
			Abstract: md.Abstract, Final: md.Final, Code: md.Code, DeclaringClass: r.Name,
		}
	}

	for _, fd := range def.Fields {
		var defVal interface{}
		if fd.DefaultIdx >= 0 && fd.DefaultIdx < len(constants) {
			defVal = constants[fd.DefaultIdx]
		}
		r.Fields = append(r.Fields, Property{
			Name: in.Intern(fd.Name), Visibility: fd.Visibility,
			Readonly: fd.Readonly, Default: defVal, DeclaringClass: r.Name,
		})
	}

	for _, sp := range def.StaticProps {
		r.Statics[sp.Name] = Property{
			Name: in.Intern(sp.Name), Visibility: sp.Visibility, DeclaringClass: r.Name,
		}
		r.StaticVals[sp.Name] = nil
	}

	for _, ec := range def.EnumCases {
		r.EnumCases = append(r.EnumCases, EnumCase{Name: ec.Name, BackedVal: ec.BackedVal})
	}

	if err := reg.Register(r); err != nil {
		return nil, err
	}
	return r, nil
}
