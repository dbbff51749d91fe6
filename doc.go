// Package scriptrt is an embeddable scripting runtime: typed values cross
// the host/script boundary through a fixed tagged union, host functions are
// exposed through a committed registry, and calls are dispatched to one of
// two execution engines selected by the loaded unit's type.
//
// # Architecture Overview
//
//	scriptrt/            Root package with the boundary-facing interfaces
//	├── runtime/         Instance lifecycle, dispatch, version tables
//	├── engine/          Bytecode (wazero) and dynamic-script (goja) engines
//	├── interop/         Tagged values, kinds, parameter lists, versions
//	├── registry/        Host function metadata and name parsing
//	├── arena/           Handle-indexed parameter list storage
//	├── vecqueue/        Float queue fast path for fixed-shape aggregates
//	├── manifest/        YAML unit manifest for the CLI harness
//	└── errors/          Structured error types for debugging
//
// # Quick Start
//
//	reg := registry.NewMap()
//	b := registry.NewBuilder("core", sum)
//	b.AddParamKind(interop.KindI32)
//	b.AddParamKind(interop.KindI32)
//	b.SetReturnKind(interop.KindI32)
//	reg.Add("sum", b.Build())
//
//	inst := runtime.NewInstance(reg, runtime.Hooks{}).Unwrap()
//	defer inst.Close(ctx)
//
//	table, err := inst.LoadScript(ctx, runtime.Source{Locator: "unit.js", Bytes: src},
//	    []string{"core:1.0.0"})
//
// See the runtime package for the full hosting API.
package scriptrt
