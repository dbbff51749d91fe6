package runtime

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/modforge/scriptrt/arena"
	"github.com/modforge/scriptrt/engine"
	"github.com/modforge/scriptrt/errors"
	"github.com/modforge/scriptrt/interop"
)

// Source locates a script unit: a path-like locator used for unit-type
// selection, plus the unit's bytes.
type Source struct {
	Locator string
	Bytes   []byte
}

// LoadScript loads a script unit into the instance, replacing any active
// unit. declaredCaps entries are "name" or "name:major.minor.patch"; the
// unit's own version exports override declared versions. Reloading while a
// call is on the stack is rejected.
func (i *Instance) LoadScript(ctx context.Context, src Source, declaredCaps []string) (*VersionTable, error) {
	if err := i.guardAlive(); err != nil {
		return nil, err
	}
	if i.inCall {
		return nil, errors.Reentrancy("load")
	}

	unitType := engine.DetectUnitType(src.Locator, src.Bytes)
	if unitType == engine.UnitUnknown {
		return nil, errors.Load(fmt.Sprintf("cannot determine unit type from locator %q", src.Locator), nil)
	}

	caps := make(map[string]bool, len(declaredCaps))
	versions := make(map[string]uint64, len(declaredCaps))
	for _, decl := range declaredCaps {
		name, ver, err := parseCapability(decl)
		if err != nil {
			return nil, err
		}
		caps[name] = true
		versions[name] = ver
	}

	var eng engine.Engine
	switch unitType {
	case engine.UnitBytecode:
		eng = engine.NewWasmEngine()
	case engine.UnitScript:
		eng = engine.NewJSEngine()
	}

	cfg := engine.LoadConfig{
		Registry:     i.registry,
		Capabilities: caps,
		Queue:        i.queue,
		Log:          i.log,
	}
	if err := eng.Load(ctx, src.Bytes, cfg); err != nil {
		_ = eng.Close(ctx)
		return nil, err
	}

	// Unit-declared versions win over load-time declarations.
	for name, packed := range eng.Versions() {
		caps[name] = true
		versions[name] = packed
	}

	if err := i.closeEngine(ctx); err != nil {
		i.log.Warn("closing replaced unit failed", zap.Error(err))
	}
	i.eng = eng
	i.unitType = unitType
	i.caps = caps
	i.versions = versions
	i.loadGen++
	i.state = stateLoaded

	i.log.Debug("script unit loaded",
		zap.String("locator", src.Locator),
		zap.String("type", unitType.String()),
		zap.Int("capabilities", len(caps)))

	return newVersionTable(i, versions), nil
}

// parseCapability splits "name" or "name:1.2.3".
func parseCapability(decl string) (string, uint64, error) {
	name, ver, found := strings.Cut(decl, ":")
	name = strings.TrimSpace(name)
	if name == "" {
		return "", 0, errors.InvalidInput(errors.PhaseLoad,
			fmt.Sprintf("malformed capability declaration %q", decl))
	}
	if !found {
		return name, 0, nil
	}
	sv, err := interop.ParseSemver(ver)
	if err != nil {
		return "", 0, err
	}
	return name, sv.Packed(), nil
}

// Versions returns a table for the currently loaded unit. The table goes
// stale on the next load or reset.
func (i *Instance) Versions() (*VersionTable, error) {
	if err := i.guardAlive(); err != nil {
		return nil, err
	}
	if i.state != stateLoaded {
		return nil, errors.NotLoaded(errors.PhaseDispatch)
	}
	return newVersionTable(i, i.versions), nil
}

func (i *Instance) guardCall() error {
	if err := i.guardAlive(); err != nil {
		return err
	}
	if i.state != stateLoaded {
		return errors.NotLoaded(errors.PhaseDispatch)
	}
	return nil
}

// Exports lists the loaded unit's exported function names.
func (i *Instance) Exports() ([]string, error) {
	if err := i.guardCall(); err != nil {
		return nil, err
	}
	return i.eng.Exports(), nil
}

// FnKey identifies an export resolved by a particular load. Keys carry the
// load generation, so a key from before a reload or reset fails stale
// instead of resolving into the replacement unit's table.
type FnKey struct {
	key engine.FnKey
	gen uint64
}

// FnKey resolves an exported function name to a key valid until the next
// load. Callers on hot paths resolve once and use CallKey.
func (i *Instance) FnKey(name string) (FnKey, error) {
	if err := i.guardCall(); err != nil {
		return FnKey{}, err
	}
	key, ok := i.eng.Lookup(name)
	if !ok {
		return FnKey{}, errors.NotFound(errors.PhaseDispatch, "function", name)
	}
	return FnKey{key: key, gen: i.loadGen}, nil
}

// Call invokes an exported function by name with the arena list behind
// paramsHandle, expecting a result of the given kind.
func (i *Instance) Call(ctx context.Context, name string, paramsHandle arena.Handle, expected interop.Kind) (interop.Value, error) {
	key, err := i.FnKey(name)
	if err != nil {
		return interop.Value{}, err
	}
	return i.CallKey(ctx, key, paramsHandle, expected)
}

// CallKey invokes a previously resolved function key. The reentrancy guard
// is set for the duration of the call and cleared on every exit path, and
// the vector queue is drained so a failed call cannot poison the next one.
func (i *Instance) CallKey(ctx context.Context, key FnKey, paramsHandle arena.Handle, expected interop.Kind) (interop.Value, error) {
	if err := i.guardCall(); err != nil {
		return interop.Value{}, err
	}
	if key.gen != i.loadGen {
		return interop.Value{}, errors.New(errors.PhaseDispatch, errors.KindStaleHandle).
			Detail("function key predates the current load").
			Build()
	}
	if !expected.ValidReturn() {
		return interop.Value{}, errors.InvalidInput(errors.PhaseDispatch,
			fmt.Sprintf("kind %s is not a valid return kind", expected))
	}
	if i.inCall {
		return interop.Value{}, errors.Reentrancy(fmt.Sprintf("key %d", key.key))
	}

	params, err := i.arena.Resolve(paramsHandle)
	if err != nil {
		return interop.Value{}, err
	}

	i.inCall = true
	defer func() {
		i.inCall = false
		i.queue.Reset()
	}()

	return i.eng.Invoke(ctx, key.key, params, expected)
}

// FastCallUpdate invokes the unit's on_update callback with no
// marshalling. Units without the callback are a no-op.
func (i *Instance) FastCallUpdate(ctx context.Context, deltaTime float32) error {
	return i.fastCall(ctx, engine.FastUpdate, deltaTime)
}

// FastCallFixedUpdate invokes the unit's on_fixed_update callback.
func (i *Instance) FastCallFixedUpdate(ctx context.Context, deltaTime float32) error {
	return i.fastCall(ctx, engine.FastFixedUpdate, deltaTime)
}

func (i *Instance) fastCall(ctx context.Context, which engine.FastCall, deltaTime float32) error {
	if err := i.guardCall(); err != nil {
		return err
	}
	if i.inCall {
		return errors.Reentrancy("fast call")
	}

	i.inCall = true
	defer func() {
		i.inCall = false
		i.queue.Reset()
	}()

	return i.eng.Fast(ctx, which, deltaTime)
}
