package interop

import "github.com/modforge/scriptrt/errors"

// Params is an ordered, mutable list of tagged values. Lists are addressed
// across the boundary by arena handles; this type is the storage behind one
// handle and never aliases another list.
type Params struct {
	vals []Value
}

// NewParams creates an empty list with room for capacityHint values.
func NewParams(capacityHint int) *Params {
	if capacityHint < 0 {
		capacityHint = 0
	}
	return &Params{vals: make([]Value, 0, capacityHint)}
}

// Push appends a value.
func (p *Params) Push(v Value) {
	p.vals = append(p.vals, v)
}

// Set replaces the value at index. Index must be within the current length;
// use Push to grow the list.
func (p *Params) Set(index int, v Value) error {
	if index < 0 || index >= len(p.vals) {
		return errors.OutOfBounds(errors.PhaseArena, index, len(p.vals))
	}
	p.vals[index] = v
	return nil
}

// Get returns the value at index.
func (p *Params) Get(index int) (Value, error) {
	if index < 0 || index >= len(p.vals) {
		return Value{}, errors.OutOfBounds(errors.PhaseArena, index, len(p.vals))
	}
	return p.vals[index], nil
}

// Len returns the number of values in the list.
func (p *Params) Len() int { return len(p.vals) }

// Values returns the backing slice for iteration. Callers must not mutate.
func (p *Params) Values() []Value { return p.vals }

// Clone returns an independent copy.
func (p *Params) Clone() *Params {
	out := make([]Value, len(p.vals))
	copy(out, p.vals)
	return &Params{vals: out}
}

// ReleaseOwned drops runtime-owned string and error payloads and clears the
// list. Host-owned payloads and object handles are left to the host, which
// exclusively owns their referents.
func (p *Params) ReleaseOwned() {
	p.vals = nil
}
