// Package arena provides the handle-indexed registry of parameter lists.
// Handles are opaque to the host, unique for the lifetime of the table, and
// explicitly destroyed; use after destroy is a stale_handle error rather than
// silent aliasing.
package arena

import (
	"github.com/modforge/scriptrt/errors"
	"github.com/modforge/scriptrt/interop"
)

// Handle identifies one parameter list. The low 32 bits are a slot index and
// the high 32 bits a generation counter, so a recycled slot never revives a
// destroyed handle.
type Handle uint64

// Nil is never a valid handle.
const Nil Handle = 0

type entry struct {
	params *interop.Params
	gen    uint32
	live   bool
}

// Table owns every parameter list for one instance.
type Table struct {
	entries  []entry
	freeList []uint32
}

// NewTable creates an empty arena.
func NewTable() *Table {
	return &Table{
		entries:  make([]entry, 0, 16),
		freeList: make([]uint32, 0, 8),
	}
}

func makeHandle(slot, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(slot+1))
}

func splitHandle(h Handle) (slot, gen uint32) {
	return uint32(h) - 1, uint32(uint64(h) >> 32)
}

// Create allocates a new empty list and returns its handle.
func (t *Table) Create(capacityHint int) Handle {
	p := interop.NewParams(capacityHint)

	if n := len(t.freeList); n > 0 {
		slot := t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		e := &t.entries[slot]
		e.params = p
		e.gen++
		e.live = true
		return makeHandle(slot, e.gen)
	}

	t.entries = append(t.entries, entry{params: p, live: true})
	return makeHandle(uint32(len(t.entries)-1), 0)
}

func (t *Table) lookup(h Handle) (*interop.Params, error) {
	if h == Nil {
		return nil, errors.StaleHandle(errors.PhaseArena, uint64(h))
	}
	slot, gen := splitHandle(h)
	if int(slot) >= len(t.entries) {
		return nil, errors.StaleHandle(errors.PhaseArena, uint64(h))
	}
	e := &t.entries[slot]
	if !e.live || e.gen != gen {
		return nil, errors.StaleHandle(errors.PhaseArena, uint64(h))
	}
	return e.params, nil
}

// Push appends a value to the list behind h.
func (t *Table) Push(h Handle, v interop.Value) error {
	p, err := t.lookup(h)
	if err != nil {
		return err
	}
	p.Push(v)
	return nil
}

// Set replaces the value at index, failing with out_of_bounds past the end.
func (t *Table) Set(h Handle, index int, v interop.Value) error {
	p, err := t.lookup(h)
	if err != nil {
		return err
	}
	return p.Set(index, v)
}

// Get returns the value at index.
func (t *Table) Get(h Handle, index int) (interop.Value, error) {
	p, err := t.lookup(h)
	if err != nil {
		return interop.Value{}, err
	}
	return p.Get(index)
}

// Len returns the length of the list behind h.
func (t *Table) Len(h Handle) (int, error) {
	p, err := t.lookup(h)
	if err != nil {
		return 0, err
	}
	return p.Len(), nil
}

// Resolve returns the list behind h for read access during dispatch.
func (t *Table) Resolve(h Handle) (*interop.Params, error) {
	return t.lookup(h)
}

// Destroy releases the list's runtime-owned values and invalidates the
// handle. Object handles inside the list stay host-owned and untouched.
func (t *Table) Destroy(h Handle) error {
	p, err := t.lookup(h)
	if err != nil {
		return err
	}
	p.ReleaseOwned()

	slot, _ := splitHandle(h)
	e := &t.entries[slot]
	e.params = nil
	e.live = false
	t.freeList = append(t.freeList, slot)
	return nil
}

// Live returns the number of lists not yet destroyed.
func (t *Table) Live() int {
	n := 0
	for i := range t.entries {
		if t.entries[i].live {
			n++
		}
	}
	return n
}

// Clear destroys every live list. Used by instance teardown; the host is
// still expected to destroy handles it owns explicitly.
func (t *Table) Clear() {
	for i := range t.entries {
		if t.entries[i].live {
			t.entries[i].params.ReleaseOwned()
			t.entries[i].params = nil
			t.entries[i].live = false
			t.freeList = append(t.freeList, uint32(i))
		}
	}
}
