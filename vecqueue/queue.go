// Package vecqueue implements the shared float channel used to move
// fixed-shape numeric aggregates (vectors, quaternions, matrices) across the
// boundary without per-field marshalling. The channel is one ordered queue of
// scalar floats plus a parallel queue of size tokens, one token per
// aggregate. Producer and consumer must agree on order: the dispatcher
// enqueues in declared parameter order and the callee dequeues in that same
// order, so a mis-ordered dequeue is detected by its size token.
package vecqueue

import (
	"github.com/modforge/scriptrt/errors"
)

// Queue is a single-call float channel. One queue exists per instance; it is
// drained between calls so a failed call cannot poison the next one.
type Queue struct {
	floats []float32
	sizes  []uint32
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{}
}

// Enqueue appends one aggregate's components and its size token.
func (q *Queue) Enqueue(components []float32) {
	q.floats = append(q.floats, components...)
	q.sizes = append(q.sizes, uint32(len(components)))
}

// Dequeue pops the next aggregate, which must have exactly n components.
// A token mismatch means producer and consumer disagreed on call order.
func (q *Queue) Dequeue(n int) ([]float32, error) {
	if len(q.sizes) == 0 {
		return nil, errors.New(errors.PhaseDecode, errors.KindQueueOrder).
			Detail("dequeue of %d components from an empty queue", n).
			Build()
	}
	size := q.sizes[0]
	if int(size) != n {
		return nil, errors.New(errors.PhaseDecode, errors.KindQueueOrder).
			Detail("size token %d does not match expected %d components", size, n).
			Build()
	}
	q.sizes = q.sizes[1:]
	out := make([]float32, n)
	copy(out, q.floats[:n])
	q.floats = q.floats[n:]
	return out, nil
}

// PushFloat appends a single component without a size token. Used by guest
// code that streams a result aggregate before returning its size.
func (q *Queue) PushFloat(f float32) {
	q.floats = append(q.floats, f)
}

// PopFloat removes the next single component, bypassing size tokens. Used by
// guest code consuming an argument aggregate component-wise.
func (q *Queue) PopFloat() (float32, error) {
	if len(q.floats) == 0 {
		return 0, errors.New(errors.PhaseDecode, errors.KindQueueOrder).
			Detail("float pop from an empty queue").
			Build()
	}
	f := q.floats[0]
	q.floats = q.floats[1:]
	if len(q.sizes) > 0 {
		if q.sizes[0] == 1 {
			q.sizes = q.sizes[1:]
		} else if q.sizes[0] > 1 {
			q.sizes[0]--
		}
	}
	return f, nil
}

// PopFloats removes the next n components, bypassing token verification.
// Used by the host when the callee already reported the aggregate size
// through its return value.
func (q *Queue) PopFloats(n int) ([]float32, error) {
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		f, err := q.PopFloat()
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

// PendingFloats returns the number of queued components.
func (q *Queue) PendingFloats() int { return len(q.floats) }

// PendingAggregates returns the number of queued size tokens.
func (q *Queue) PendingAggregates() int { return len(q.sizes) }

// Reset drains the queue. Called on every call exit path.
func (q *Queue) Reset() {
	q.floats = q.floats[:0]
	q.sizes = q.sizes[:0]
}
