package runtime

import (
	"context"
	"testing"

	"github.com/modforge/scriptrt/errors"
	"github.com/modforge/scriptrt/interop"
	"github.com/modforge/scriptrt/registry"
)

func sumRegistry(t *testing.T) *registry.Map {
	t.Helper()
	reg := registry.NewMap()
	b := registry.NewBuilder("core", func(p *interop.Params) interop.Value {
		a, _ := p.Get(0)
		bv, _ := p.Get(1)
		x, _ := a.AsI32()
		y, _ := bv.AsI32()
		return interop.I32(x + y)
	})
	b.AddParamKind(interop.KindI32)
	b.AddParamKind(interop.KindI32)
	b.SetReturnKind(interop.KindI32)
	reg.Add("host_sum", b.Build())
	return reg
}

func newTestInstance(t *testing.T, reg *registry.Map) *Instance {
	t.Helper()
	if reg == nil {
		reg = registry.NewMap()
	}
	res := NewInstance(reg, Hooks{})
	if res.Err() != nil {
		t.Fatalf("NewInstance failed: %v", res.Err())
	}
	inst := res.Unwrap()
	t.Cleanup(func() { inst.Close(context.Background()) })
	return inst
}

func loadJSUnit(t *testing.T, inst *Instance, source string, caps []string) *VersionTable {
	t.Helper()
	table, err := inst.LoadScript(context.Background(), Source{
		Locator: "unit.js",
		Bytes:   []byte(source),
	}, caps)
	if err != nil {
		t.Fatalf("LoadScript failed: %v", err)
	}
	return table
}

func TestEndToEndSum(t *testing.T) {
	ctx := context.Background()
	inst := newTestInstance(t, sumRegistry(t))

	table := loadJSUnit(t, inst, `function sum(a, b) { return a + b; }`, []string{"core:1.0.0"})

	if !table.Contains("core") {
		t.Fatal("core capability not in version table")
	}
	sv := interop.UnpackVersion(table.Version("core"))
	if sv.Major != 1 || sv.Minor != 0 || sv.Patch != 0 {
		t.Fatalf("core version = %v, want 1.0.0", sv)
	}

	h, err := inst.CreateParams(2)
	if err != nil {
		t.Fatalf("CreateParams failed: %v", err)
	}
	defer inst.DestroyParams(h)
	inst.PushParam(h, interop.I32(2))
	inst.PushParam(h, interop.I32(3))

	out, err := inst.Call(ctx, "sum", h, interop.KindI32)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if n, _ := out.AsI32(); n != 5 {
		t.Fatalf("sum = %v, want i32:5", out)
	}
}

func TestEndToEndHostRoundTrip(t *testing.T) {
	ctx := context.Background()
	inst := newTestInstance(t, sumRegistry(t))
	loadJSUnit(t, inst, `function run(a, b) { return host.host_sum(a, b); }`, []string{"core"})

	h, _ := inst.CreateParams(2)
	defer inst.DestroyParams(h)
	inst.PushParam(h, interop.I32(20))
	inst.PushParam(h, interop.I32(22))

	out, err := inst.Call(ctx, "run", h, interop.KindI32)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if n, _ := out.AsI32(); n != 42 {
		t.Fatalf("run = %v, want 42", out)
	}
}

// sumUnit is a compiled unit exporting add(i32, i32) -> i32 and
// _core_semver() -> i64 returning the packed version 1.0.0.
var sumUnit = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x0b, 0x02,
	0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f,
	0x60, 0x00, 0x01, 0x7e,
	0x03, 0x03, 0x02, 0x00, 0x01,
	0x07, 0x16, 0x02,
	0x03, 'a', 'd', 'd', 0x00, 0x00,
	0x0c, '_', 'c', 'o', 'r', 'e', '_', 's', 'e', 'm', 'v', 'e', 'r', 0x00, 0x01,
	0x0a, 0x12, 0x02,
	0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b,
	0x08, 0x00, 0x42, 0x80, 0x80, 0x80, 0x80, 0x10, 0x0b,
}

func TestEndToEndBytecode(t *testing.T) {
	ctx := context.Background()
	inst := newTestInstance(t, nil)

	table, err := inst.LoadScript(ctx, Source{
		Locator: "unit.wasm",
		Bytes:   sumUnit,
	}, nil)
	if err != nil {
		t.Fatalf("LoadScript failed: %v", err)
	}
	if inst.UnitType().String() != "bytecode" {
		t.Fatalf("unit type = %v, want bytecode", inst.UnitType())
	}

	// The unit declares core 1.0.0 through its version export.
	if !table.Contains("core") {
		t.Fatal("core capability not in version table")
	}
	if sv := interop.UnpackVersion(table.Version("core")); sv.Major != 1 {
		t.Fatalf("core version = %v", sv)
	}

	h, _ := inst.CreateParams(2)
	defer inst.DestroyParams(h)
	inst.PushParam(h, interop.I32(2))
	inst.PushParam(h, interop.I32(3))

	out, err := inst.Call(ctx, "add", h, interop.KindI32)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if n, _ := out.AsI32(); n != 5 {
		t.Fatalf("add = %v, want i32:5", out)
	}
}

func TestReentrancyViolation(t *testing.T) {
	ctx := context.Background()

	var inst *Instance
	var nestedErr error

	reg := registry.NewMap()
	b := registry.NewBuilder("", func(p *interop.Params) interop.Value {
		h, err := inst.CreateParams(0)
		if err != nil {
			nestedErr = err
			return interop.Void()
		}
		defer inst.DestroyParams(h)
		_, nestedErr = inst.Call(ctx, "noop", h, interop.KindVoid)
		return interop.Void()
	})
	reg.Add("nest", b.Build())

	inst = newTestInstance(t, reg)
	loadJSUnit(t, inst, `
function noop() {}
function outer() { host.nest(); return 1; }`, nil)

	h, _ := inst.CreateParams(0)
	defer inst.DestroyParams(h)

	out, err := inst.Call(ctx, "outer", h, interop.KindI32)
	if err != nil {
		t.Fatalf("outer call failed: %v", err)
	}
	if n, _ := out.AsI32(); n != 1 {
		t.Fatalf("outer = %v, want 1", out)
	}
	if !errors.IsKind(nestedErr, errors.KindReentrancy) {
		t.Fatalf("nested call error = %v, want reentrancy_violation", nestedErr)
	}

	// The guard must be cleared; the next call succeeds.
	if _, err := inst.Call(ctx, "noop", h, interop.KindVoid); err != nil {
		t.Fatalf("call after reentrancy violation failed: %v", err)
	}
}

func TestGuardClearedAfterCalleeFailure(t *testing.T) {
	ctx := context.Background()
	inst := newTestInstance(t, nil)
	loadJSUnit(t, inst, `
function boom() { throw new Error("kaput"); }
function ok() { return 1; }`, nil)

	h, _ := inst.CreateParams(0)
	defer inst.DestroyParams(h)

	if _, err := inst.Call(ctx, "boom", h, interop.KindVoid); err == nil {
		t.Fatal("expected callee failure")
	}
	if _, err := inst.Call(ctx, "ok", h, interop.KindI32); err != nil {
		t.Fatalf("call after failure: %v", err)
	}
}

func TestCallUnknownFunction(t *testing.T) {
	ctx := context.Background()
	inst := newTestInstance(t, nil)
	loadJSUnit(t, inst, `function f() {}`, nil)

	h, _ := inst.CreateParams(0)
	defer inst.DestroyParams(h)

	_, err := inst.Call(ctx, "missing", h, interop.KindVoid)
	if !errors.IsKind(err, errors.KindNotFound) {
		t.Fatalf("unknown function: %v", err)
	}
}

func TestCallWithoutUnit(t *testing.T) {
	ctx := context.Background()
	inst := newTestInstance(t, nil)

	h, _ := inst.CreateParams(0)
	_, err := inst.Call(ctx, "f", h, interop.KindVoid)
	if !errors.IsKind(err, errors.KindNotLoaded) {
		t.Fatalf("call without unit: %v", err)
	}
}

func TestCallStaleParamsHandle(t *testing.T) {
	ctx := context.Background()
	inst := newTestInstance(t, nil)
	loadJSUnit(t, inst, `function f() {}`, nil)

	h, _ := inst.CreateParams(0)
	inst.DestroyParams(h)

	_, err := inst.Call(ctx, "f", h, interop.KindVoid)
	if !errors.IsKind(err, errors.KindStaleHandle) {
		t.Fatalf("stale params handle: %v", err)
	}
}

func TestVersionTableStaleAfterReload(t *testing.T) {
	inst := newTestInstance(t, nil)
	table := loadJSUnit(t, inst, `function f() {}`, []string{"core:1.0.0"})

	if !table.Contains("core") {
		t.Fatal("fresh table missing core")
	}

	loadJSUnit(t, inst, `function g() {}`, []string{"other:2.0.0"})

	if table.Contains("core") {
		t.Fatal("stale table still answers")
	}
	if table.Version("core") != 0 {
		t.Fatal("stale table returns a version")
	}
	if _, err := table.Name(0); !errors.IsKind(err, errors.KindStaleHandle) {
		t.Fatalf("stale table Name: %v", err)
	}

	fresh, err := inst.Versions()
	if err != nil {
		t.Fatalf("Versions failed: %v", err)
	}
	if !fresh.Contains("other") {
		t.Fatal("fresh table missing other")
	}
}

func TestUnitVersionExportWinsOverDeclaration(t *testing.T) {
	inst := newTestInstance(t, nil)
	table := loadJSUnit(t, inst, `function _core_semver() { return "2.5.0"; }`, []string{"core:1.0.0"})

	sv := interop.UnpackVersion(table.Version("core"))
	if sv.Major != 2 || sv.Minor != 5 {
		t.Fatalf("core version = %v, want 2.5.0", sv)
	}
}

func TestVersionTableEnumeration(t *testing.T) {
	inst := newTestInstance(t, nil)
	table := loadJSUnit(t, inst, `function f() {}`, []string{"b:2.0.0", "a:1.0.0"})

	if table.Len() != 2 {
		t.Fatalf("Len = %d, want 2", table.Len())
	}
	// Names come back sorted.
	first, err := table.Name(0)
	if err != nil || first != "a" {
		t.Fatalf("Name(0) = %q, %v", first, err)
	}
	v, err := table.VersionAt(1)
	if err != nil {
		t.Fatalf("VersionAt failed: %v", err)
	}
	if interop.UnpackVersion(v).Major != 2 {
		t.Fatalf("VersionAt(1) = %v", v)
	}
	if _, err := table.Name(5); !errors.IsKind(err, errors.KindOutOfBounds) {
		t.Fatalf("Name out of range: %v", err)
	}
}

func TestReloadRejectedDuringCall(t *testing.T) {
	ctx := context.Background()

	var inst *Instance
	var reloadErr error

	reg := registry.NewMap()
	b := registry.NewBuilder("", func(p *interop.Params) interop.Value {
		_, reloadErr = inst.LoadScript(ctx, Source{
			Locator: "other.js",
			Bytes:   []byte(`function g() {}`),
		}, nil)
		return interop.Void()
	})
	reg.Add("swap", b.Build())

	inst = newTestInstance(t, reg)
	loadJSUnit(t, inst, `function run() { host.swap(); }`, nil)

	h, _ := inst.CreateParams(0)
	defer inst.DestroyParams(h)

	if _, err := inst.Call(ctx, "run", h, interop.KindVoid); err != nil {
		t.Fatalf("outer call failed: %v", err)
	}
	if !errors.IsKind(reloadErr, errors.KindReentrancy) {
		t.Fatalf("reload during call = %v, want reentrancy_violation", reloadErr)
	}
}

func TestNewInstanceValidation(t *testing.T) {
	if res := NewInstance(nil, Hooks{}); res.Err() == nil {
		t.Fatal("nil registry accepted")
	}

	reg := registry.NewMap()
	reg.Add("bad", registry.NewBuilder("", nil).Build())
	res := NewInstance(reg, Hooks{})
	if !errors.IsKind(res.Err(), errors.KindInitFailure) {
		t.Fatalf("nil callback: %v", res.Err())
	}
	if res.Unwrap() != nil {
		t.Fatal("failed result unwraps to an instance")
	}
}

func TestHookSinksReachable(t *testing.T) {
	ctx := context.Background()

	var logged []string
	res := NewInstance(registry.NewMap(), Hooks{
		Info: func(msg string) { logged = append(logged, "info:"+msg) },
		Warn: func(msg string) { logged = append(logged, "warn:"+msg) },
	})
	if res.Err() != nil {
		t.Fatalf("NewInstance failed: %v", res.Err())
	}
	inst := res.Unwrap()
	defer inst.Close(ctx)

	_, err := inst.LoadScript(ctx, Source{
		Locator: "unit.js",
		Bytes:   []byte(`function run() { host.log_info("hello"); host.log_warn("uh oh"); }`),
	}, nil)
	if err != nil {
		t.Fatalf("LoadScript failed: %v", err)
	}

	h, _ := inst.CreateParams(0)
	defer inst.DestroyParams(h)
	if _, err := inst.Call(ctx, "run", h, interop.KindVoid); err != nil {
		t.Fatalf("Call failed: %v", err)
	}

	if len(logged) != 2 || logged[0] != "info:hello" || logged[1] != "warn:uh oh" {
		t.Fatalf("logged = %v", logged)
	}
}

func TestFastCallGuards(t *testing.T) {
	ctx := context.Background()
	inst := newTestInstance(t, nil)

	if err := inst.FastCallUpdate(ctx, 0.016); !errors.IsKind(err, errors.KindNotLoaded) {
		t.Fatalf("fast call without unit: %v", err)
	}

	loadJSUnit(t, inst, `
var n = 0;
function on_update(dt) { n++; }
function count() { return n; }`, nil)

	if err := inst.FastCallUpdate(ctx, 0.016); err != nil {
		t.Fatalf("FastCallUpdate failed: %v", err)
	}
	if err := inst.FastCallFixedUpdate(ctx, 0.02); err != nil {
		t.Fatalf("FastCallFixedUpdate failed: %v", err)
	}

	h, _ := inst.CreateParams(0)
	defer inst.DestroyParams(h)
	out, err := inst.Call(ctx, "count", h, interop.KindI32)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n, _ := out.AsI32(); n != 1 {
		t.Fatalf("count = %v, want 1 (fixed update has no callback)", out)
	}
}

func TestResetReturnsToReady(t *testing.T) {
	ctx := context.Background()
	inst := newTestInstance(t, nil)
	loadJSUnit(t, inst, `function f() {}`, nil)

	if !inst.Loaded() {
		t.Fatal("instance not loaded after LoadScript")
	}
	if err := inst.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if inst.Loaded() {
		t.Fatal("instance still loaded after Reset")
	}

	h, _ := inst.CreateParams(0)
	if _, err := inst.Call(ctx, "f", h, interop.KindVoid); !errors.IsKind(err, errors.KindNotLoaded) {
		t.Fatalf("call after reset: %v", err)
	}
}

func TestCloseIsTerminal(t *testing.T) {
	ctx := context.Background()
	res := NewInstance(registry.NewMap(), Hooks{})
	if res.Err() != nil {
		t.Fatalf("NewInstance failed: %v", res.Err())
	}
	inst := res.Unwrap()

	if err := inst.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := inst.CreateParams(0); !errors.IsKind(err, errors.KindClosed) {
		t.Fatalf("create after close: %v", err)
	}
	if _, err := inst.LoadScript(ctx, Source{Locator: "f.js", Bytes: []byte("1")}, nil); !errors.IsKind(err, errors.KindClosed) {
		t.Fatalf("load after close: %v", err)
	}
	// Double close is a no-op.
	if err := inst.Close(ctx); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestFnKeyStaleAfterReload(t *testing.T) {
	ctx := context.Background()
	inst := newTestInstance(t, nil)
	loadJSUnit(t, inst, `function f() { return 1; }`, nil)

	key, err := inst.FnKey("f")
	if err != nil {
		t.Fatalf("FnKey failed: %v", err)
	}

	// The replacement unit exports a function at the same slot; the old key
	// must fail stale instead of resolving into it.
	loadJSUnit(t, inst, `function g() { return 2; }`, nil)

	h, _ := inst.CreateParams(0)
	defer inst.DestroyParams(h)
	if _, err := inst.CallKey(ctx, key, h, interop.KindI32); !errors.IsKind(err, errors.KindStaleHandle) {
		t.Fatalf("stale key call: %v", err)
	}

	fresh, err := inst.FnKey("g")
	if err != nil {
		t.Fatalf("FnKey after reload failed: %v", err)
	}
	out, err := inst.CallKey(ctx, fresh, h, interop.KindI32)
	if err != nil {
		t.Fatalf("CallKey after reload failed: %v", err)
	}
	if n, _ := out.AsI32(); n != 2 {
		t.Fatalf("g = %v, want 2", out)
	}
}

func TestFnKeyCache(t *testing.T) {
	ctx := context.Background()
	inst := newTestInstance(t, nil)
	loadJSUnit(t, inst, `function sum(a, b) { return a + b; }`, nil)

	key, err := inst.FnKey("sum")
	if err != nil {
		t.Fatalf("FnKey failed: %v", err)
	}

	h, _ := inst.CreateParams(2)
	defer inst.DestroyParams(h)
	inst.PushParam(h, interop.I32(4))
	inst.PushParam(h, interop.I32(6))

	out, err := inst.CallKey(ctx, key, h, interop.KindI32)
	if err != nil {
		t.Fatalf("CallKey failed: %v", err)
	}
	if n, _ := out.AsI32(); n != 10 {
		t.Fatalf("CallKey = %v, want 10", out)
	}
}
