package runtime

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/modforge/scriptrt/arena"
	"github.com/modforge/scriptrt/engine"
	"github.com/modforge/scriptrt/errors"
	"github.com/modforge/scriptrt/interop"
	"github.com/modforge/scriptrt/registry"
	"github.com/modforge/scriptrt/vecqueue"
)

type instanceState uint8

const (
	stateReady instanceState = iota
	stateLoaded
	stateDestroyed
)

// Instance owns one execution context: a committed registry, a parameter
// arena, the vector queue and at most one loaded script unit. Instances are
// single-threaded; all methods must be called from one goroutine.
type Instance struct {
	hooks    Hooks
	registry *registry.Map
	arena    *arena.Table
	queue    *vecqueue.Queue
	log      *zap.Logger

	eng      engine.Engine
	unitType engine.UnitType
	caps     map[string]bool
	versions map[string]uint64

	// loadGen increments on every successful load, invalidating version
	// tables and function keys from earlier loads.
	loadGen uint64
	state   instanceState
	inCall  bool
}

// InstanceResult is the fallible outcome of instance creation. Inspect Err
// before Unwrap; unwrapping a failed result returns nil.
type InstanceResult struct {
	inst *Instance
	err  error
}

// Err returns the creation error, nil on success.
func (r InstanceResult) Err() error { return r.err }

// Unwrap returns the created instance, nil if creation failed.
func (r InstanceResult) Unwrap() *Instance { return r.inst }

// NewInstance validates the registry and creates a ready instance with no
// script unit loaded. The registry is cloned; later mutation of the
// caller's map does not reach the instance.
func NewInstance(reg *registry.Map, hooks Hooks) InstanceResult {
	if reg == nil {
		return InstanceResult{err: errors.Init("registry is nil", nil)}
	}

	var invalid error
	reg.Each(func(q registry.QualifiedName, md *registry.Metadata) bool {
		if md.Callback() == nil {
			invalid = errors.Init(fmt.Sprintf("function %q has a nil callback", q), nil)
			return false
		}
		for _, k := range md.ParamKinds() {
			if !k.ValidParam() {
				invalid = errors.Init(fmt.Sprintf("function %q declares invalid parameter kind %s", q, k), nil)
				return false
			}
		}
		if !md.ReturnKind().ValidReturn() {
			invalid = errors.Init(fmt.Sprintf("function %q declares invalid return kind %s", q, md.ReturnKind()), nil)
			return false
		}
		return true
	})
	if invalid != nil {
		return InstanceResult{err: invalid}
	}

	hooks = hooks.normalized()
	cloned := reg.Clone()
	installHooks(cloned, hooks)

	return InstanceResult{inst: &Instance{
		hooks:    hooks,
		registry: cloned,
		arena:    arena.NewTable(),
		queue:    vecqueue.New(),
		log:      Logger(),
		state:    stateReady,
	}}
}

// installHooks registers the well-known host callback slots so script code
// can always reach abort, the leveled log sinks and string deallocation.
// Host-registered functions of the same name win.
func installHooks(m *registry.Map, h Hooks) {
	sink := func(fn func(string)) registry.Callback {
		return func(p *interop.Params) interop.Value {
			v, err := p.Get(0)
			if err != nil {
				return interop.RuntimeErr(err.Error())
			}
			s, err := v.AsString()
			if err != nil {
				return interop.RuntimeErr(err.Error())
			}
			fn(s)
			return interop.Void()
		}
	}

	add := func(name string, cb registry.Callback) {
		if _, ok := m.Lookup(name); ok {
			return
		}
		b := registry.NewBuilder("", cb)
		if err := b.AddParamKind(interop.KindRuntimeString); err != nil {
			return
		}
		m.Add(name, b.Build())
	}

	add("abort", sink(h.Abort))
	add("log_info", sink(h.Info))
	add("log_warn", sink(h.Warn))
	add("log_critical", sink(h.Critical))
	add("log_debug", sink(h.Debug))
	// String buffers are collected; the slot exists so units built against
	// explicit-free hosts still link.
	add("free_string", func(p *interop.Params) interop.Value {
		return interop.Void()
	})
}

// Loaded reports whether a script unit is active.
func (i *Instance) Loaded() bool { return i.state == stateLoaded }

// UnitType returns the type of the loaded unit, UnitUnknown when none.
func (i *Instance) UnitType() engine.UnitType {
	if i.state != stateLoaded {
		return engine.UnitUnknown
	}
	return i.unitType
}

func (i *Instance) guardAlive() error {
	if i.state == stateDestroyed {
		return errors.New(errors.PhaseDispatch, errors.KindClosed).
			Detail("instance is destroyed").
			Build()
	}
	return nil
}

// Parameter arena surface. Handles are scoped to this instance.

// CreateParams allocates an empty parameter list.
func (i *Instance) CreateParams(capacityHint int) (arena.Handle, error) {
	if err := i.guardAlive(); err != nil {
		return arena.Nil, err
	}
	return i.arena.Create(capacityHint), nil
}

// PushParam appends a value to a parameter list.
func (i *Instance) PushParam(h arena.Handle, v interop.Value) error {
	if err := i.guardAlive(); err != nil {
		return err
	}
	return i.arena.Push(h, v)
}

// SetParam replaces the value at index.
func (i *Instance) SetParam(h arena.Handle, index int, v interop.Value) error {
	if err := i.guardAlive(); err != nil {
		return err
	}
	return i.arena.Set(h, index, v)
}

// GetParam returns the value at index.
func (i *Instance) GetParam(h arena.Handle, index int) (interop.Value, error) {
	if err := i.guardAlive(); err != nil {
		return interop.Value{}, err
	}
	return i.arena.Get(h, index)
}

// ParamCount returns the length of a parameter list.
func (i *Instance) ParamCount(h arena.Handle) (int, error) {
	if err := i.guardAlive(); err != nil {
		return 0, err
	}
	return i.arena.Len(h)
}

// DestroyParams releases a parameter list and invalidates its handle.
func (i *Instance) DestroyParams(h arena.Handle) error {
	if err := i.guardAlive(); err != nil {
		return err
	}
	return i.arena.Destroy(h)
}

// Registry returns the instance's committed registry.
func (i *Instance) Registry() *registry.Map { return i.registry }

// Reset unloads the current script unit, returning the instance to the
// ready state. Arena contents survive; function keys and version tables do
// not.
func (i *Instance) Reset(ctx context.Context) error {
	if err := i.guardAlive(); err != nil {
		return err
	}
	if i.inCall {
		return errors.Reentrancy("reset")
	}
	if err := i.closeEngine(ctx); err != nil {
		return err
	}
	i.loadGen++
	i.state = stateReady
	return nil
}

// Close destroys the instance. Terminal; every later call fails.
func (i *Instance) Close(ctx context.Context) error {
	if i.state == stateDestroyed {
		return nil
	}
	if i.inCall {
		return errors.Reentrancy("close")
	}
	err := i.closeEngine(ctx)
	i.arena.Clear()
	i.queue.Reset()
	i.state = stateDestroyed
	return err
}

func (i *Instance) closeEngine(ctx context.Context) error {
	if i.eng == nil {
		return nil
	}
	err := i.eng.Close(ctx)
	i.eng = nil
	i.unitType = engine.UnitUnknown
	i.caps = nil
	i.versions = nil
	return err
}
