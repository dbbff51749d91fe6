package runtime

import (
	"sort"

	"github.com/modforge/scriptrt/errors"
	"github.com/modforge/scriptrt/interop"
)

// VersionTable maps capability names to packed versions for the currently
// loaded script unit. Tables are snapshots: reloading a unit invalidates
// every table obtained before the reload, and queries on a stale table fail
// instead of answering from dead data.
type VersionTable struct {
	inst    *Instance
	loadGen uint64
	names   []string
	packed  map[string]uint64
}

func newVersionTable(inst *Instance, packed map[string]uint64) *VersionTable {
	names := make([]string, 0, len(packed))
	for name := range packed {
		names = append(names, name)
	}
	sort.Strings(names)
	return &VersionTable{
		inst:    inst,
		loadGen: inst.loadGen,
		names:   names,
		packed:  packed,
	}
}

func (t *VersionTable) stale() bool {
	return t.inst == nil || t.inst.loadGen != t.loadGen
}

// Contains reports whether the capability is declared by the loaded unit.
// A stale table contains nothing.
func (t *VersionTable) Contains(name string) bool {
	if t.stale() {
		return false
	}
	_, ok := t.packed[name]
	return ok
}

// Version returns the packed version for a capability, zero when absent or
// the table is stale.
func (t *VersionTable) Version(name string) uint64 {
	if t.stale() {
		return 0
	}
	return t.packed[name]
}

// Semver returns the unpacked version for a capability.
func (t *VersionTable) Semver(name string) (interop.Semver, error) {
	if t.stale() {
		return interop.Semver{}, errors.New(errors.PhaseDispatch, errors.KindStaleHandle).
			Detail("version table predates the current load").
			Build()
	}
	v, ok := t.packed[name]
	if !ok {
		return interop.Semver{}, errors.NotFound(errors.PhaseDispatch, "capability", name)
	}
	return interop.UnpackVersion(v), nil
}

// Len returns the number of declared capabilities, zero when stale.
func (t *VersionTable) Len() int {
	if t.stale() {
		return 0
	}
	return len(t.names)
}

// Name returns the i-th capability name in sorted order.
func (t *VersionTable) Name(i int) (string, error) {
	if t.stale() {
		return "", errors.New(errors.PhaseDispatch, errors.KindStaleHandle).
			Detail("version table predates the current load").
			Build()
	}
	if i < 0 || i >= len(t.names) {
		return "", errors.OutOfBounds(errors.PhaseDispatch, i, len(t.names))
	}
	return t.names[i], nil
}

// VersionAt returns the packed version of the i-th capability.
func (t *VersionTable) VersionAt(i int) (uint64, error) {
	name, err := t.Name(i)
	if err != nil {
		return 0, err
	}
	return t.packed[name], nil
}

// Free detaches the table. Queries after Free behave as stale. Freeing is
// optional; tables hold no engine resources.
func (t *VersionTable) Free() {
	t.inst = nil
	t.names = nil
	t.packed = nil
}
