// Package builtin implements the global function registry and the
// standard-library surface spec.md §4.7 calls out as always available:
// type inspection (gettype, is_array, ...), string/array utilities
// (strlen, count), serialization (json_encode/json_decode), debug
// dumping (var_dump via internal/debug), class_exists, and fopen/fclose.
// spl_autoload_register is not installed by this package;
// internal/executor adds it through Register.
//
// Grounded on smog's primitive dispatch in pkg/vm/primitives.go (a
// map[string]func(*VM, []Value) (Value, error) keyed by selector) —
// phpvm keeps that exact registry shape and calling convention, keyed by
// PHP-family function name instead of Smalltalk selector, and backed by
// *value.Value/heap.Handle instead of smog's raw interface{}.
package builtin

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kristofer/phpvm/internal/class"
	"github.com/kristofer/phpvm/internal/debug"
	"github.com/kristofer/phpvm/internal/heap"
	"github.com/kristofer/phpvm/internal/interner"
	"github.com/kristofer/phpvm/internal/resource"
	"github.com/kristofer/phpvm/internal/value"
)

// Env is the subset of runtime state a builtin needs, kept narrow (rather
// than the full *runtimectx.Context) so builtin does not import
// runtimectx and create a cycle back through internal/class.
type Env struct {
	Heap      *heap.Heap
	Interner  *interner.Interner
	Classes   *class.Registry
	Resources *resource.Manager
}

// Func is a global function's Go implementation: arguments already
// resolved to heap handles, dereferenced past any reference wrapper by
// the caller.
type Func func(env *Env, args []heap.Handle) (value.Value, error)

// Registry maps function name to implementation.
type Registry struct {
	funcs map[string]Func
}

// NewRegistry builds the standard registry with every builtin in this
// file installed.
func NewRegistry() *Registry {
	r := &Registry{funcs: make(map[string]Func)}
	r.install()
	return r
}

// Lookup returns the implementation for name, case-sensitively (spec.md
// leaves builtin-name casing to the compiler's normalization pass, not
// this registry).
func (r *Registry) Lookup(name string) (Func, bool) {
	fn, ok := r.funcs[name]
	return fn, ok
}

// Register adds or overrides a builtin, used by internal/executor to
// wire closures that need executor state a free function signature can't
// reach (spl_autoload_register, which calls back into the executor).
func (r *Registry) Register(name string, fn Func) {
	r.funcs[name] = fn
}

func (r *Registry) install() {
	r.funcs["strlen"] = biStrlen
	r.funcs["count"] = biCount
	r.funcs["sizeof"] = biCount
	r.funcs["gettype"] = biGettype
	r.funcs["is_array"] = biIsKind(value.KindArray)
	r.funcs["is_string"] = biIsKind(value.KindString)
	r.funcs["is_int"] = biIsKind(value.KindInt)
	r.funcs["is_integer"] = biIsKind(value.KindInt)
	r.funcs["is_float"] = biIsKind(value.KindFloat)
	r.funcs["is_bool"] = biIsKind(value.KindBool)
	r.funcs["is_null"] = biIsKind(value.KindNull)
	r.funcs["is_object"] = biIsKind(value.KindObject)
	r.funcs["var_dump"] = biVarDump
	r.funcs["json_encode"] = biJSONEncode
	r.funcs["json_decode"] = biJSONDecode
	r.funcs["class_exists"] = biClassExists
	r.funcs["is_resource"] = biIsKind(value.KindResource)
	r.funcs["fopen"] = biFopen
	r.funcs["fclose"] = biFclose
}

func arg(env *Env, args []heap.Handle, i int) value.Value {
	if i >= len(args) {
		return value.Null()
	}
	v, _ := env.Heap.Get(args[i]).(value.Value)
	return v
}

func biStrlen(env *Env, args []heap.Handle) (value.Value, error) {
	s := arg(env, args, 0)
	return value.Int(int64(len(s.Str))), nil
}

func biCount(env *Env, args []heap.Handle) (value.Value, error) {
	v := arg(env, args, 0)
	if v.Kind != value.KindArray {
		return value.Value{}, fmt.Errorf("count(): argument must be an array")
	}
	return value.Int(int64(v.Arr.Len())), nil
}

func biGettype(env *Env, args []heap.Handle) (value.Value, error) {
	return value.Str(arg(env, args, 0).TypeName()), nil
}

func biIsKind(k value.Kind) Func {
	return func(env *Env, args []heap.Handle) (value.Value, error) {
		return value.Bool(arg(env, args, 0).Kind == k), nil
	}
}

func biVarDump(env *Env, args []heap.Handle) (value.Value, error) {
	for _, a := range args {
		v, _ := env.Heap.Get(a).(value.Value)
		fmt.Println(debug.DumpValue(env.Heap, env.Interner, v))
	}
	return value.Null(), nil
}

// toJSONable converts a Value into plain Go data json.Marshal understands,
// the boundary between phpvm's tagged-union model and the stdlib's
// interface{}-based encoder (no JSON library appears anywhere in the
// retrieval pack, so encoding/json is used directly here; see DESIGN.md).
func toJSONable(h *heap.Heap, v value.Value) interface{} {
	switch v.Kind {
	case value.KindNull:
		return nil
	case value.KindBool:
		return v.Bool
	case value.KindInt:
		return v.Int
	case value.KindFloat:
		return v.Float
	case value.KindString:
		return v.Str
	case value.KindArray:
		if isList(v.Arr) {
			out := make([]interface{}, 0, v.Arr.Len())
			for _, e := range v.Arr.Entries() {
				inner, _ := h.Get(e.Handle).(value.Value)
				out = append(out, toJSONable(h, inner))
			}
			return out
		}
		out := make(map[string]interface{}, v.Arr.Len())
		for _, e := range v.Arr.Entries() {
			key := e.Key.Str
			if e.Key.IsInt {
				key = fmt.Sprintf("%d", e.Key.Int)
			}
			inner, _ := h.Get(e.Handle).(value.Value)
			out[key] = toJSONable(h, inner)
		}
		return out
	default:
		return nil
	}
}

// isList reports whether arr's keys are exactly 0..n-1 in order, PHP's
// rule for "encode as a JSON array instead of an object".
func isList(arr *value.Array) bool {
	for i, k := range arr.Keys() {
		if !k.IsInt || k.Int != int64(i) {
			return false
		}
	}
	return true
}

func biJSONEncode(env *Env, args []heap.Handle) (value.Value, error) {
	v := arg(env, args, 0)
	b, err := json.Marshal(toJSONable(env.Heap, v))
	if err != nil {
		return value.Bool(false), nil
	}
	return value.Str(string(b)), nil
}

func biJSONDecode(env *Env, args []heap.Handle) (value.Value, error) {
	s := arg(env, args, 0)
	var decoded interface{}
	if err := json.Unmarshal([]byte(s.Str), &decoded); err != nil {
		return value.Null(), nil
	}
	return fromJSONable(env.Heap, decoded), nil
}

func fromJSONable(h *heap.Heap, v interface{}) value.Value {
	switch t := v.(type) {
	case nil:
		return value.Null()
	case bool:
		return value.Bool(t)
	case float64:
		if t == float64(int64(t)) {
			return value.Int(int64(t))
		}
		return value.Float(t)
	case string:
		return value.Str(t)
	case []interface{}:
		arr := value.NewArray()
		for _, elem := range t {
			arr.Append(h.Alloc(fromJSONable(h, elem)))
		}
		return value.Value{Kind: value.KindArray, Arr: arr}
	case map[string]interface{}:
		arr := value.NewArray()
		for k, elem := range t {
			arr.Set(value.StrKey(k), h.Alloc(fromJSONable(h, elem)))
		}
		return value.Value{Kind: value.KindArray, Arr: arr}
	default:
		return value.Null()
	}
}

func biClassExists(env *Env, args []heap.Handle) (value.Value, error) {
	name := arg(env, args, 0).Str
	_, ok := env.Classes.Lookup(env.Interner.Intern(name))
	return value.Bool(ok), nil
}

// fopenFlags maps PHP's fopen mode strings to the os.OpenFile flags and
// permission bits that produce equivalent behavior for the common cases
// (spec.md's resource manager Non-goals exclude stream filters and
// wrappers, so only plain local-file modes are handled here).
func fopenFlags(mode string) (int, os.FileMode) {
	switch mode {
	case "w", "wb":
		return os.O_WRONLY | os.O_CREATE | os.O_TRUNC, 0644
	case "a", "ab":
		return os.O_WRONLY | os.O_CREATE | os.O_APPEND, 0644
	case "x", "xb":
		return os.O_WRONLY | os.O_CREATE | os.O_EXCL, 0644
	default:
		return os.O_RDONLY, 0
	}
}

// biFopen opens a local file and registers it with the resource manager
// (spec.md §4.7: "users MAY close earlier via explicit close built-ins";
// this is that built-in's acquisition half).
func biFopen(env *Env, args []heap.Handle) (value.Value, error) {
	path := arg(env, args, 0).Str
	mode := arg(env, args, 1).Str
	flag, perm := fopenFlags(mode)
	f, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return value.Bool(false), nil
	}
	key := env.Resources.Open("stream", f)
	return value.Value{Kind: value.KindResource, Res: &value.Resource{Key: key, Type: "stream"}}, nil
}

// biFclose releases a resource early; ReleaseAll at request shutdown
// still catches anything the script never closes explicitly.
func biFclose(env *Env, args []heap.Handle) (value.Value, error) {
	v := arg(env, args, 0)
	if v.Kind != value.KindResource {
		return value.Bool(false), nil
	}
	err := env.Resources.Close(v.Res.Key)
	return value.Bool(err == nil), nil
}
