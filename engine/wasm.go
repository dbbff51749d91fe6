package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/modforge/scriptrt/errors"
	"github.com/modforge/scriptrt/internal/keyvec"
	"github.com/modforge/scriptrt/interop"
	"github.com/modforge/scriptrt/registry"
	"github.com/modforge/scriptrt/vecqueue"
)

// hostModule is the import namespace guest modules link host functions from.
const hostModule = "env"

// Utility imports every guest sees alongside the registry functions.
const (
	strcpyImport  = "_host_strcpy"
	vecPopImport  = "_vec_pop"
	vecPushImport = "_vec_push"
)

type wasmExport struct {
	name string
	fn   api.Function
}

// WasmEngine executes compiled-bytecode units through wazero. Strings cross
// the boundary via a pending-string queue plus the _host_strcpy import: the
// host answers a string-valued call with the buffer length, the guest
// allocates and fetches. Fixed-shape aggregates ride the vector queue with
// one i32 size token per aggregate in the call frame.
type WasmEngine struct {
	rt      wazero.Runtime
	mod     api.Module
	queue   *vecqueue.Queue
	log     *zap.Logger
	exports keyvec.KeyVec[wasmExport]

	// strQueue holds strings the guest has been told the length of but has
	// not yet fetched. Consumed in strict order by _host_strcpy.
	strQueue []string

	versions  map[string]uint64
	fastFns   [2]api.Function
	loaded    bool
}

// NewWasmEngine creates an engine with no unit loaded.
func NewWasmEngine() *WasmEngine {
	return &WasmEngine{log: zap.NewNop()}
}

func isComponentBinary(source []byte) bool {
	// Core modules carry version 0x1 with a zero layer byte; component-model
	// binaries use layer 0x1 at offset 6.
	return len(source) >= 8 && source[4] == 0x0d && source[6] == 0x01
}

// Load instantiates the unit with the registry bound under "env".
func (e *WasmEngine) Load(ctx context.Context, source []byte, cfg LoadConfig) error {
	if isComponentBinary(source) {
		return errors.Load("component-model binaries are not supported; provide a core module", nil)
	}
	if cfg.Log != nil {
		e.log = cfg.Log
	}
	e.queue = cfg.Queue
	if e.queue == nil {
		e.queue = vecqueue.New()
	}

	rt := wazero.NewRuntime(ctx)

	if err := e.bindHost(ctx, rt, cfg); err != nil {
		_ = rt.Close(ctx)
		return err
	}

	mod, err := rt.Instantiate(ctx, source)
	if err != nil {
		_ = rt.Close(ctx)
		return errors.Load("instantiate module", err)
	}

	e.rt = rt
	e.mod = mod
	e.exports.Clear()
	e.strQueue = nil
	e.versions = make(map[string]uint64)
	e.fastFns = [2]api.Function{}
	e.loaded = true

	if err := e.scanExports(ctx); err != nil {
		_ = e.Close(ctx)
		return err
	}
	return nil
}

// bindHost registers the utility imports and every registry function.
func (e *WasmEngine) bindHost(ctx context.Context, rt wazero.Runtime, cfg LoadConfig) error {
	b := rt.NewHostModuleBuilder(hostModule)

	b.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(e.hostStrcpy),
			[]api.ValueType{api.ValueTypeI32, api.ValueTypeI32},
			[]api.ValueType{api.ValueTypeI32}).
		Export(strcpyImport)

	b.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, stack []uint64) {
			f, err := e.queue.PopFloat()
			if err != nil {
				panic(err)
			}
			stack[0] = uint64(math.Float32bits(f))
		}),
			nil, []api.ValueType{api.ValueTypeF32}).
		Export(vecPopImport)

	b.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, stack []uint64) {
			e.queue.PushFloat(math.Float32frombits(uint32(stack[0])))
		}),
			[]api.ValueType{api.ValueTypeF32}, nil).
		Export(vecPushImport)

	cfg.Registry.Each(func(q registry.QualifiedName, md *registry.Metadata) bool {
		paramTypes := make([]api.ValueType, len(md.ParamKinds()))
		for i, k := range md.ParamKinds() {
			paramTypes[i] = kindValType(k)
		}
		var resultTypes []api.ValueType
		if md.ReturnKind() != interop.KindVoid {
			resultTypes = []api.ValueType{kindValType(md.ReturnKind())}
		}

		b.NewFunctionBuilder().
			WithGoModuleFunction(e.hostCallback(q.String(), md, cfg.Capabilities), paramTypes, resultTypes).
			Export(q.String())
		return true
	})

	if _, err := b.Instantiate(ctx); err != nil {
		return errors.Load("bind host functions", err)
	}
	return nil
}

// hostCallback adapts one registry callback into a guest-callable import.
// Failures trap the guest; wazero surfaces them from the outer call.
func (e *WasmEngine) hostCallback(name string, md *registry.Metadata, caps map[string]bool) api.GoModuleFunc {
	return func(_ context.Context, mod api.Module, stack []uint64) {
		if cap := md.Capability(); cap != "" && !caps[cap] {
			panic(errors.New(errors.PhaseEngine, errors.KindUnregistered).
				Path(name).
				Detail("capability %q was not declared at load", cap).
				Build())
		}

		kinds := md.ParamKinds()
		params := interop.NewParams(len(kinds))
		for i, k := range kinds {
			v, err := e.liftArg(mod, k, stack[i])
			if err != nil {
				panic(err)
			}
			params.Push(v)
		}

		out := md.Callback()(params)
		if msg, ok := out.AsError(); ok {
			panic(errors.Callee(name, fmt.Errorf("%s", msg)))
		}
		if md.ReturnKind() == interop.KindVoid {
			return
		}
		if out.Kind() != md.ReturnKind() {
			panic(errors.Signature(name, fmt.Sprintf(
				"callback returned %s, registered return kind is %s",
				out.Kind(), md.ReturnKind())))
		}
		bits, err := e.lowerResult(out)
		if err != nil {
			panic(err)
		}
		stack[0] = bits
	}
}

// liftArg converts one stack slot from the guest into a tagged value.
func (e *WasmEngine) liftArg(mod api.Module, k interop.Kind, raw uint64) (interop.Value, error) {
	switch k {
	case interop.KindI8:
		return interop.I8(int8(uint32(raw))), nil
	case interop.KindI16:
		return interop.I16(int16(uint32(raw))), nil
	case interop.KindI32:
		return interop.I32(int32(uint32(raw))), nil
	case interop.KindI64:
		return interop.I64(int64(raw)), nil
	case interop.KindU8:
		return interop.U8(uint8(raw)), nil
	case interop.KindU16:
		return interop.U16(uint16(raw)), nil
	case interop.KindU32:
		return interop.U32(uint32(raw)), nil
	case interop.KindU64:
		return interop.U64(raw), nil
	case interop.KindF32:
		return interop.F32(math.Float32frombits(uint32(raw))), nil
	case interop.KindF64:
		return interop.F64(math.Float64frombits(raw)), nil
	case interop.KindBool:
		return interop.Bool(uint32(raw) != 0), nil
	case interop.KindRuntimeString, interop.KindHostString:
		s, err := readCString(mod.Memory(), uint32(raw))
		if err != nil {
			return interop.Value{}, err
		}
		// Copied out of guest memory, so the runtime owns this buffer.
		return interop.RuntimeString(s), nil
	case interop.KindObject:
		return interop.Object(raw), nil
	case interop.KindVec2, interop.KindVec3, interop.KindVec4, interop.KindQuat, interop.KindMat4:
		n := k.AggregateSize()
		if int(uint32(raw)) != n {
			return interop.Value{}, errors.Signature(k.String(), fmt.Sprintf(
				"size token %d does not match %s", uint32(raw), k))
		}
		comps, err := e.queue.PopFloats(n)
		if err != nil {
			return interop.Value{}, err
		}
		return interop.Aggregate(k, comps)
	}
	return interop.Value{}, errors.InvalidInput(errors.PhaseEngine,
		fmt.Sprintf("kind %s cannot cross the bytecode boundary", k))
}

// lowerResult flattens a callback result for the guest.
func (e *WasmEngine) lowerResult(v interop.Value) (uint64, error) {
	k := v.Kind()
	switch {
	case k.IsString():
		s, _ := v.AsString()
		e.strQueue = append(e.strQueue, s)
		return uint64(len(s) + 1), nil
	case k.IsAggregate():
		comps, _ := v.Components()
		e.queue.Enqueue(comps)
		return uint64(len(comps)), nil
	default:
		return v.Bits(), nil
	}
}

// hostStrcpy serves the guest's string fetches: the guest allocates the
// announced length and passes (ptr, size); a size that does not exactly
// match the pending string returns 0 with the string left queued.
func (e *WasmEngine) hostStrcpy(_ context.Context, mod api.Module, stack []uint64) {
	ptr := uint32(stack[0])
	size := uint32(stack[1])

	if len(e.strQueue) == 0 {
		stack[0] = 0
		return
	}
	s := e.strQueue[0]
	if size != uint32(len(s)+1) {
		stack[0] = 0
		return
	}
	e.strQueue = e.strQueue[1:]

	buf := make([]byte, len(s)+1)
	copy(buf, s)
	if !mod.Memory().Write(ptr, buf) {
		stack[0] = 0
		return
	}
	stack[0] = uint64(ptr)
}

// scanExports caches exported functions, captures the fast-path entry
// points, and evaluates version exports.
func (e *WasmEngine) scanExports(ctx context.Context) error {
	for name, def := range e.mod.ExportedFunctionDefinitions() {
		fn := e.mod.ExportedFunction(name)
		if fn == nil {
			continue
		}
		e.exports.Push(wasmExport{name: name, fn: fn})

		switch name {
		case FastUpdateExport:
			e.fastFns[FastUpdate] = fn
		case FastFixedUpdateExport:
			e.fastFns[FastFixedUpdate] = fn
		}

		if cap := versionCapability(name); cap != "" {
			if len(def.ParamTypes()) != 0 || len(def.ResultTypes()) != 1 ||
				def.ResultTypes()[0] != api.ValueTypeI64 {
				e.log.Warn("ignoring malformed version export",
					zap.String("export", name))
				continue
			}
			res, err := fn.Call(ctx)
			if err != nil {
				return errors.Load(fmt.Sprintf("evaluate version export %s", name), err)
			}
			e.versions[cap] = res[0]
		}
	}
	return nil
}

// Lookup resolves an exported function once; the key stays valid until the
// next Load.
func (e *WasmEngine) Lookup(name string) (FnKey, bool) {
	k, ok := e.exports.KeyOf(func(x wasmExport) bool { return x.name == name })
	if !ok {
		return FnKeyInvalid, false
	}
	return FnKey(k), true
}

// Exports lists the unit's exported function names.
func (e *WasmEngine) Exports() []string {
	out := make([]string, 0, e.exports.Len())
	e.exports.Each(func(_ keyvec.Key, x wasmExport) bool {
		out = append(out, x.name)
		return true
	})
	return out
}

// Invoke calls a cached export with flattened arguments.
func (e *WasmEngine) Invoke(ctx context.Context, key FnKey, params *interop.Params, ret interop.Kind) (interop.Value, error) {
	if !e.loaded {
		return interop.Value{}, errors.NotLoaded(errors.PhaseEngine)
	}
	exp, ok := e.exports.Get(keyvec.Key(key))
	if !ok {
		return interop.Value{}, errors.NotFound(errors.PhaseDispatch, "function key", fmt.Sprintf("%d", key))
	}

	// Strings queued for this call that the guest never fetched must not
	// linger into the next call's _host_strcpy.
	defer func() { e.strQueue = e.strQueue[:0] }()

	def := exp.fn.Definition()
	vals := params.Values()
	if len(def.ParamTypes()) != len(vals) {
		return interop.Value{}, errors.Signature(exp.name, fmt.Sprintf(
			"callee takes %d arguments, got %d", len(def.ParamTypes()), len(vals)))
	}

	args := make([]uint64, len(vals))
	for i, v := range vals {
		bits, vt, err := e.lowerArg(v)
		if err != nil {
			return interop.Value{}, err
		}
		if def.ParamTypes()[i] != vt {
			return interop.Value{}, errors.Signature(exp.name, fmt.Sprintf(
				"argument %d: callee expects %s, got %s (%s)",
				i, api.ValueTypeName(def.ParamTypes()[i]), api.ValueTypeName(vt), v.Kind()))
		}
		args[i] = bits
	}

	if ret == interop.KindVoid {
		if len(def.ResultTypes()) != 0 {
			return interop.Value{}, errors.Signature(exp.name, "callee returns a value, expected void")
		}
	} else {
		if len(def.ResultTypes()) != 1 || def.ResultTypes()[0] != kindValType(ret) {
			return interop.Value{}, errors.Signature(exp.name, fmt.Sprintf(
				"callee result does not flatten to %s", ret))
		}
	}

	res, err := exp.fn.Call(ctx, args...)
	if err != nil {
		// Host callback failures trap the guest as structured errors;
		// surface those directly instead of double-wrapping.
		var se *errors.Error
		if stderrors.As(err, &se) {
			return interop.Value{}, se
		}
		return interop.Value{}, errors.Callee(exp.name, err)
	}

	if ret == interop.KindVoid {
		return interop.Void(), nil
	}
	return e.liftResult(ret, res[0])
}

// lowerArg flattens a host argument for the guest call frame.
func (e *WasmEngine) lowerArg(v interop.Value) (uint64, api.ValueType, error) {
	k := v.Kind()
	switch {
	case k.IsString():
		s, _ := v.AsString()
		e.strQueue = append(e.strQueue, s)
		return uint64(len(s) + 1), api.ValueTypeI32, nil
	case k.IsAggregate():
		comps, _ := v.Components()
		e.queue.Enqueue(comps)
		return uint64(len(comps)), api.ValueTypeI32, nil
	case k.IsError() || k == interop.KindVoid:
		return 0, 0, errors.InvalidInput(errors.PhaseEncode,
			fmt.Sprintf("%s cannot be passed as an argument", k))
	default:
		return v.Bits(), kindValType(k), nil
	}
}

// liftResult converts the single guest result by the expected kind.
func (e *WasmEngine) liftResult(ret interop.Kind, raw uint64) (interop.Value, error) {
	switch {
	case ret.IsString():
		s, err := readCString(e.mod.Memory(), uint32(raw))
		if err != nil {
			return interop.Value{}, err
		}
		return interop.RuntimeString(s), nil
	case ret.IsAggregate():
		n := ret.AggregateSize()
		if int(uint32(raw)) != n {
			return interop.Value{}, errors.Signature(ret.String(), fmt.Sprintf(
				"returned size token %d does not match %s", uint32(raw), ret))
		}
		comps, err := e.queue.PopFloats(n)
		if err != nil {
			return interop.Value{}, err
		}
		return interop.Aggregate(ret, comps)
	default:
		return e.liftArg(e.mod, ret, raw)
	}
}

// Fast invokes a per-frame entry point. A unit that does not export the
// callback is a no-op, not an error.
func (e *WasmEngine) Fast(ctx context.Context, which FastCall, deltaTime float32) error {
	if !e.loaded {
		return errors.NotLoaded(errors.PhaseEngine)
	}
	fn := e.fastFns[which]
	if fn == nil {
		return nil
	}
	defer func() { e.strQueue = e.strQueue[:0] }()
	if _, err := fn.Call(ctx, uint64(math.Float32bits(deltaTime))); err != nil {
		return errors.Callee(fn.Definition().Name(), err)
	}
	return nil
}

// Versions returns the capability versions declared by the loaded unit.
func (e *WasmEngine) Versions() map[string]uint64 { return e.versions }

// Close releases the wazero runtime and the loaded unit.
func (e *WasmEngine) Close(ctx context.Context) error {
	if e.rt == nil {
		return nil
	}
	err := e.rt.Close(ctx)
	e.rt = nil
	e.mod = nil
	e.loaded = false
	e.exports.Clear()
	e.strQueue = nil
	return err
}

// kindValType maps a tagged kind to its flat wasm value type.
func kindValType(k interop.Kind) api.ValueType {
	switch k {
	case interop.KindI64, interop.KindU64, interop.KindObject:
		return api.ValueTypeI64
	case interop.KindF32:
		return api.ValueTypeF32
	case interop.KindF64:
		return api.ValueTypeF64
	default:
		// Narrow ints, bool, string length tokens, aggregate size tokens.
		return api.ValueTypeI32
	}
}

// readCString copies a NUL-terminated string out of guest memory.
func readCString(mem api.Memory, ptr uint32) (string, error) {
	var out []byte
	for off := ptr; ; off++ {
		b, ok := mem.ReadByte(off)
		if !ok {
			return "", errors.New(errors.PhaseDecode, errors.KindInvalidData).
				Detail("unterminated string at guest offset %d", ptr).
				Build()
		}
		if b == 0 {
			break
		}
		out = append(out, b)
	}
	return string(out), nil
}
