// Package runtime provides the high-level API for hosting script units.
//
// # Quick Start
//
//	reg := registry.NewMap()
//	b := registry.NewBuilder("core", sumCallback)
//	b.AddParamKind(interop.KindI32)
//	b.AddParamKind(interop.KindI32)
//	b.SetReturnKind(interop.KindI32)
//	reg.Add("sum", b.Build())
//
//	res := runtime.NewInstance(reg, runtime.Hooks{})
//	if res.Err() != nil {
//	    log.Fatal(res.Err())
//	}
//	inst := res.Unwrap()
//	defer inst.Close(ctx)
//
//	table, err := inst.LoadScript(ctx, runtime.Source{
//	    Locator: "unit.js",
//	    Bytes:   source,
//	}, []string{"core:1.0.0"})
//
//	h, _ := inst.CreateParams(2)
//	inst.PushParam(h, interop.I32(2))
//	inst.PushParam(h, interop.I32(3))
//	result, err := inst.Call(ctx, "sum", h, interop.KindI32)
//	inst.DestroyParams(h)
//
// # Engines
//
// The unit type is selected from the source locator: a .wasm path or a
// wasm-magic prefix loads the bytecode engine, anything else with script
// text loads the dynamic engine. At most one unit is active per instance;
// loading another replaces it and invalidates function keys and version
// tables from the previous load.
//
// # Host Callbacks
//
// The Hooks passed at creation fill the well-known callback slots (abort,
// the four leveled log sinks, string deallocation). Unset slots fall back
// to the package logger; nothing has to be registered to get a working
// instance.
//
// # Reentrancy
//
// Calls into a unit must not trigger another call into the same instance
// while still on the stack. The dispatcher enforces this with a per-call
// flag and fails nested calls with a reentrancy_violation error; the flag
// is cleared on every exit path.
//
// # Thread Safety
//
// Instance is NOT thread-safe. Each goroutine should have its own
// instance, or access must be synchronized externally.
package runtime
