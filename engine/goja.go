package engine

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/modforge/scriptrt/errors"
	"github.com/modforge/scriptrt/internal/keyvec"
	"github.com/modforge/scriptrt/interop"
	"github.com/modforge/scriptrt/registry"
	"github.com/modforge/scriptrt/vecqueue"
)

// hostGlobal is the object the registry is published on inside scripts.
const hostGlobal = "host"

type jsExport struct {
	name string
	fn   goja.Callable
}

// JSEngine executes dynamic-script units through goja. Every Load gets a
// fresh interpreter; nothing leaks between reloads. Host functions surface
// on the global host object: bare names as direct properties,
// "Class:method" on a constructor-style class table with a synthesized new,
// "Class.method" on a plain method table.
type JSEngine struct {
	vm      *goja.Runtime
	queue   *vecqueue.Queue
	log     *zap.Logger
	exports keyvec.KeyVec[jsExport]

	versions map[string]uint64
	fastFns  [2]goja.Callable
	loaded   bool
}

// NewJSEngine creates an engine with no unit loaded.
func NewJSEngine() *JSEngine {
	return &JSEngine{log: zap.NewNop()}
}

// Load evaluates the script with the registry published, then scans globals
// for exports, fast-path callbacks and version declarations.
func (e *JSEngine) Load(ctx context.Context, source []byte, cfg LoadConfig) error {
	if cfg.Log != nil {
		e.log = cfg.Log
	}
	e.queue = cfg.Queue
	if e.queue == nil {
		e.queue = vecqueue.New()
	}

	vm := goja.New()
	if err := e.publishHost(vm, cfg); err != nil {
		return err
	}

	if _, err := vm.RunString(string(source)); err != nil {
		if jsErr, ok := err.(*goja.Exception); ok {
			return errors.Load(jsErr.String(), nil)
		}
		return errors.Load("evaluate script", err)
	}

	e.vm = vm
	e.exports.Clear()
	e.versions = make(map[string]uint64)
	e.fastFns = [2]goja.Callable{}
	e.loaded = true

	if err := e.scanGlobals(); err != nil {
		e.vm = nil
		e.loaded = false
		return err
	}
	return nil
}

// publishHost builds the host object from the registry.
func (e *JSEngine) publishHost(vm *goja.Runtime, cfg LoadConfig) error {
	host := vm.NewObject()

	// Class tables keyed by lowercased qualifier, shared between a class's
	// static and instance methods.
	tables := make(map[string]*goja.Object)
	table := func(q registry.QualifiedName) (*goja.Object, error) {
		t, ok := tables[q.Qualifier]
		if !ok {
			t = vm.NewObject()
			tables[q.Qualifier] = t
			if err := host.Set(q.Qualifier, t); err != nil {
				return nil, errors.Load("publish host class table", err)
			}
		}
		return t, nil
	}

	var bindErr error
	cfg.Registry.Each(func(q registry.QualifiedName, md *registry.Metadata) bool {
		wrapper := e.hostCallback(vm, q.String(), md, cfg.Capabilities)
		switch q.Class {
		case registry.NameBare:
			bindErr = host.Set(q.Method, wrapper)
		case registry.NameStatic:
			t, err := table(q)
			if err != nil {
				bindErr = err
				return false
			}
			bindErr = t.Set(q.Method, wrapper)
			if bindErr == nil && q.Method == "create" && t.Get("new") == nil {
				// Constructor-shaped alias so scripts can write
				// host.counter.new() uniformly.
				bindErr = t.Set("new", wrapper)
			}
		case registry.NameInstance:
			t, err := table(q)
			if err != nil {
				bindErr = err
				return false
			}
			bindErr = t.Set(q.Method, wrapper)
		}
		return bindErr == nil
	})
	if bindErr != nil {
		if se, ok := bindErr.(*errors.Error); ok {
			return se
		}
		return errors.Load("publish host functions", bindErr)
	}

	if err := vm.Set(hostGlobal, host); err != nil {
		return errors.Load("publish host object", err)
	}
	return nil
}

// hostCallback adapts one registry callback into a JS function. Failures
// are thrown as JS exceptions carrying the structured error.
func (e *JSEngine) hostCallback(vm *goja.Runtime, name string, md *registry.Metadata, caps map[string]bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if cap := md.Capability(); cap != "" && !caps[cap] {
			panic(vm.NewGoError(errors.New(errors.PhaseEngine, errors.KindUnregistered).
				Path(name).
				Detail("capability %q was not declared at load", cap).
				Build()))
		}

		kinds := md.ParamKinds()
		if len(call.Arguments) != len(kinds) {
			panic(vm.NewGoError(errors.Signature(name, fmt.Sprintf(
				"takes %d arguments, got %d", len(kinds), len(call.Arguments)))))
		}

		params := interop.NewParams(len(kinds))
		for i, k := range kinds {
			v, err := liftJS(call.Arguments[i], k)
			if err != nil {
				panic(vm.NewGoError(err))
			}
			params.Push(v)
		}

		out := md.Callback()(params)
		if msg, ok := out.AsError(); ok {
			panic(vm.NewGoError(errors.Callee(name, fmt.Errorf("%s", msg))))
		}
		if md.ReturnKind() == interop.KindVoid {
			return goja.Undefined()
		}
		if out.Kind() != md.ReturnKind() {
			panic(vm.NewGoError(errors.Signature(name, fmt.Sprintf(
				"callback returned %s, registered return kind is %s",
				out.Kind(), md.ReturnKind()))))
		}
		return lowerJS(vm, out)
	}
}

// liftJS converts a script value into a tagged value of the expected kind.
func liftJS(arg goja.Value, k interop.Kind) (interop.Value, error) {
	switch k {
	case interop.KindI8:
		return interop.I8(int8(arg.ToInteger())), nil
	case interop.KindI16:
		return interop.I16(int16(arg.ToInteger())), nil
	case interop.KindI32:
		return interop.I32(int32(arg.ToInteger())), nil
	case interop.KindI64:
		return interop.I64(arg.ToInteger()), nil
	case interop.KindU8:
		return interop.U8(uint8(arg.ToInteger())), nil
	case interop.KindU16:
		return interop.U16(uint16(arg.ToInteger())), nil
	case interop.KindU32:
		return interop.U32(uint32(arg.ToInteger())), nil
	case interop.KindU64:
		return interop.U64(uint64(arg.ToInteger())), nil
	case interop.KindF32:
		return interop.F32(float32(arg.ToFloat())), nil
	case interop.KindF64:
		return interop.F64(arg.ToFloat()), nil
	case interop.KindBool:
		return interop.Bool(arg.ToBoolean()), nil
	case interop.KindRuntimeString, interop.KindHostString:
		return interop.RuntimeString(arg.String()), nil
	case interop.KindObject:
		return interop.Object(uint64(arg.ToInteger())), nil
	case interop.KindVec2, interop.KindVec3, interop.KindVec4, interop.KindQuat, interop.KindMat4:
		comps, err := exportFloats(arg)
		if err != nil {
			return interop.Value{}, err
		}
		return interop.Aggregate(k, comps)
	}
	return interop.Value{}, errors.InvalidInput(errors.PhaseEngine,
		fmt.Sprintf("kind %s cannot cross the script boundary", k))
}

// exportFloats reads a JS array of numbers.
func exportFloats(arg goja.Value) ([]float32, error) {
	exported := arg.Export()
	switch vals := exported.(type) {
	case []interface{}:
		out := make([]float32, len(vals))
		for i, v := range vals {
			f, ok := asFloat(v)
			if !ok {
				return nil, errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
					Detail("aggregate component %d is not a number", i).
					Build()
			}
			out[i] = f
		}
		return out, nil
	case []float64:
		out := make([]float32, len(vals))
		for i, v := range vals {
			out[i] = float32(v)
		}
		return out, nil
	default:
		return nil, errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
			Detail("expected an array of numbers, got %T", exported).
			Build()
	}
}

func asFloat(v interface{}) (float32, bool) {
	switch n := v.(type) {
	case float64:
		return float32(n), true
	case int64:
		return float32(n), true
	}
	return 0, false
}

// lowerJS converts a tagged value into a script value.
func lowerJS(vm *goja.Runtime, v interop.Value) goja.Value {
	k := v.Kind()
	switch {
	case k == interop.KindVoid:
		return goja.Undefined()
	case k.IsAggregate():
		comps, _ := v.Components()
		arr := make([]float64, len(comps))
		for i, c := range comps {
			arr[i] = float64(c)
		}
		return vm.ToValue(arr)
	default:
		// Decode cannot fail when the expected kind is the discriminant.
		native, _ := interop.Decode(v, k)
		return vm.ToValue(native)
	}
}

// scanGlobals walks the script's global scope for callable exports, the
// fast-path callbacks and version declarations.
func (e *JSEngine) scanGlobals() error {
	global := e.vm.GlobalObject()
	for _, name := range global.Keys() {
		val := global.Get(name)
		fn, ok := goja.AssertFunction(val)
		if !ok {
			continue
		}
		e.exports.Push(jsExport{name: name, fn: fn})

		switch name {
		case FastUpdateExport:
			e.fastFns[FastUpdate] = fn
		case FastFixedUpdateExport:
			e.fastFns[FastFixedUpdate] = fn
		}

		if cap := versionCapability(name); cap != "" {
			res, err := fn(goja.Undefined())
			if err != nil {
				return errors.Load(fmt.Sprintf("evaluate version export %s", name), err)
			}
			packed, err := jsVersion(res)
			if err != nil {
				e.log.Warn("ignoring malformed version export",
					zap.String("export", name), zap.Error(err))
				continue
			}
			e.versions[cap] = packed
		}
	}
	return nil
}

// jsVersion accepts either a packed number or a "major.minor.patch" string.
func jsVersion(v goja.Value) (uint64, error) {
	switch x := v.Export().(type) {
	case int64:
		return uint64(x), nil
	case float64:
		return uint64(x), nil
	case string:
		sv, err := interop.ParseSemver(strings.TrimSpace(x))
		if err != nil {
			return 0, err
		}
		return sv.Packed(), nil
	default:
		return 0, errors.InvalidInput(errors.PhaseLoad,
			fmt.Sprintf("version export returned %T", x))
	}
}

// Lookup resolves a global function once; the key stays valid until the
// next Load.
func (e *JSEngine) Lookup(name string) (FnKey, bool) {
	k, ok := e.exports.KeyOf(func(x jsExport) bool { return x.name == name })
	if !ok {
		return FnKeyInvalid, false
	}
	return FnKey(k), true
}

// Exports lists the script's global function names.
func (e *JSEngine) Exports() []string {
	out := make([]string, 0, e.exports.Len())
	e.exports.Each(func(_ keyvec.Key, x jsExport) bool {
		out = append(out, x.name)
		return true
	})
	return out
}

// Invoke calls a cached export. Arguments are converted to natural script
// values; the result is converted back by the expected kind.
func (e *JSEngine) Invoke(ctx context.Context, key FnKey, params *interop.Params, ret interop.Kind) (interop.Value, error) {
	if !e.loaded {
		return interop.Value{}, errors.NotLoaded(errors.PhaseEngine)
	}
	exp, ok := e.exports.Get(keyvec.Key(key))
	if !ok {
		return interop.Value{}, errors.NotFound(errors.PhaseDispatch, "function key", fmt.Sprintf("%d", key))
	}

	vals := params.Values()
	args := make([]goja.Value, len(vals))
	for i, v := range vals {
		if v.Kind().IsError() || v.Kind() == interop.KindVoid {
			return interop.Value{}, errors.InvalidInput(errors.PhaseEncode,
				fmt.Sprintf("%s cannot be passed as an argument", v.Kind()))
		}
		args[i] = lowerJS(e.vm, v)
	}

	res, err := exp.fn(goja.Undefined(), args...)
	if err != nil {
		return interop.Value{}, liftJSError(exp.name, err)
	}

	if ret == interop.KindVoid {
		return interop.Void(), nil
	}
	out, lerr := liftJS(res, ret)
	if lerr != nil {
		return interop.Value{}, lerr
	}
	return out, nil
}

// liftJSError unwraps structured errors thrown through the host bridge and
// wraps plain script exceptions.
func liftJSError(name string, err error) error {
	if jsErr, ok := err.(*goja.Exception); ok {
		// NewGoError carries the original Go error on the value property.
		if obj, ok := jsErr.Value().(*goja.Object); ok {
			if v := obj.Get("value"); v != nil {
				if se, ok := v.Export().(*errors.Error); ok {
					return se
				}
			}
		}
		return errors.Callee(name, fmt.Errorf("%s", jsErr.String()))
	}
	if se, ok := err.(*errors.Error); ok {
		return se
	}
	return errors.Callee(name, err)
}

// Fast invokes a per-frame callback. A script that does not define the
// callback is a no-op, not an error.
func (e *JSEngine) Fast(ctx context.Context, which FastCall, deltaTime float32) error {
	if !e.loaded {
		return errors.NotLoaded(errors.PhaseEngine)
	}
	fn := e.fastFns[which]
	if fn == nil {
		return nil
	}
	name := FastUpdateExport
	if which == FastFixedUpdate {
		name = FastFixedUpdateExport
	}
	// NaN deltas are a host bug; surface them before the script sees one.
	if math.IsNaN(float64(deltaTime)) {
		return errors.InvalidInput(errors.PhaseDispatch, "delta time is NaN")
	}
	if _, err := fn(goja.Undefined(), e.vm.ToValue(float64(deltaTime))); err != nil {
		return liftJSError(name, err)
	}
	return nil
}

// Versions returns the capability versions declared by the loaded script.
func (e *JSEngine) Versions() map[string]uint64 { return e.versions }

// Close drops the interpreter.
func (e *JSEngine) Close(ctx context.Context) error {
	if e.vm != nil {
		e.vm.Interrupt("runtime closed")
	}
	e.vm = nil
	e.loaded = false
	e.exports.Clear()
	return nil
}
