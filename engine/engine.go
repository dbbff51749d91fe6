package engine

import (
	"bytes"
	"context"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/modforge/scriptrt/interop"
	"github.com/modforge/scriptrt/registry"
	"github.com/modforge/scriptrt/vecqueue"
)

// FnKey is a cached export lookup. Keys are only meaningful for the engine
// and load that produced them; a reload invalidates all keys.
type FnKey uint32

// FnKeyInvalid is returned when an export does not exist.
const FnKeyInvalid FnKey = ^FnKey(0)

// FastCall selects one of the two well-known per-frame entry points.
type FastCall uint8

const (
	FastUpdate FastCall = iota
	FastFixedUpdate
)

// Export names for the fast-path callbacks.
const (
	FastUpdateExport      = "on_update"
	FastFixedUpdateExport = "on_fixed_update"
)

// versionExportPrefix/Suffix frame the niladic exports that declare a
// capability version, e.g. _core_semver.
const (
	versionExportPrefix = "_"
	versionExportSuffix = "_semver"
)

// LoadConfig carries everything an engine needs to bind host functions.
type LoadConfig struct {
	// Registry is the committed host function table.
	Registry *registry.Map
	// Capabilities are the capability tags declared at load time. Host
	// functions whose capability is not declared fail when called.
	Capabilities map[string]bool
	// Queue is the instance's vector queue channel.
	Queue *vecqueue.Queue
	// Log receives engine diagnostics.
	Log *zap.Logger
}

// Engine is the capability interface both execution engines implement. The
// dispatcher is agnostic to which variant is active.
type Engine interface {
	// Load binds the host table and evaluates/instantiates the unit.
	Load(ctx context.Context, source []byte, cfg LoadConfig) error
	// Lookup resolves an exported function name to a reusable key.
	Lookup(name string) (FnKey, bool)
	// Exports lists the loaded unit's exported function names.
	Exports() []string
	// Invoke calls a cached export, converting arguments and the result.
	Invoke(ctx context.Context, key FnKey, params *interop.Params, ret interop.Kind) (interop.Value, error)
	// Fast invokes one of the per-frame entry points with no marshalling.
	Fast(ctx context.Context, which FastCall, deltaTime float32) error
	// Versions returns capability name -> packed version for the loaded unit.
	Versions() map[string]uint64
	// Close tears down the loaded unit.
	Close(ctx context.Context) error
}

// UnitType identifies which engine a script unit targets.
type UnitType uint8

const (
	UnitUnknown UnitType = iota
	UnitBytecode
	UnitScript
)

func (u UnitType) String() string {
	switch u {
	case UnitBytecode:
		return "bytecode"
	case UnitScript:
		return "script"
	default:
		return "unknown"
	}
}

// wasmMagic is the core module preamble.
var wasmMagic = []byte{0x00, 0x61, 0x73, 0x6d}

// DetectUnitType selects an engine from a source locator and its contents.
// The path extension wins when present; inline sources are sniffed.
func DetectUnitType(locator string, source []byte) UnitType {
	switch strings.ToLower(path.Ext(locator)) {
	case ".wasm":
		return UnitBytecode
	case ".js":
		return UnitScript
	}
	if bytes.HasPrefix(source, wasmMagic) {
		return UnitBytecode
	}
	if len(bytes.TrimSpace(source)) > 0 {
		return UnitScript
	}
	return UnitUnknown
}

// versionCapability extracts the capability name from a version export name,
// or "" if the name is not a version export.
func versionCapability(export string) string {
	if !strings.HasPrefix(export, versionExportPrefix) ||
		!strings.HasSuffix(export, versionExportSuffix) {
		return ""
	}
	name := strings.TrimPrefix(export, versionExportPrefix)
	name = strings.TrimSuffix(name, versionExportSuffix)
	return name
}
