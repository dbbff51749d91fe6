package vecqueue

import (
	"testing"

	"github.com/modforge/scriptrt/errors"
)

func TestEnqueueDequeueOrder(t *testing.T) {
	q := New()
	q.Enqueue([]float32{1, 2})
	q.Enqueue([]float32{3, 4, 5})

	a, err := q.Dequeue(2)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if a[0] != 1 || a[1] != 2 {
		t.Fatalf("first aggregate = %v", a)
	}

	b, err := q.Dequeue(3)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if b[2] != 5 {
		t.Fatalf("second aggregate = %v", b)
	}

	if q.PendingFloats() != 0 || q.PendingAggregates() != 0 {
		t.Fatal("queue not empty after draining")
	}
}

func TestDequeueSizeMismatch(t *testing.T) {
	q := New()
	q.Enqueue([]float32{1, 2, 3})

	if _, err := q.Dequeue(2); !errors.IsKind(err, errors.KindQueueOrder) {
		t.Fatalf("mismatched dequeue: %v", err)
	}
	// The aggregate stays queued for a correct dequeue.
	if _, err := q.Dequeue(3); err != nil {
		t.Fatalf("correct dequeue after mismatch failed: %v", err)
	}
}

func TestDequeueEmpty(t *testing.T) {
	q := New()
	if _, err := q.Dequeue(2); !errors.IsKind(err, errors.KindQueueOrder) {
		t.Fatalf("empty dequeue: %v", err)
	}
}

func TestPopFloatStreamsAggregate(t *testing.T) {
	q := New()
	q.Enqueue([]float32{7, 8})

	f1, err := q.PopFloat()
	if err != nil || f1 != 7 {
		t.Fatalf("PopFloat = %v, %v", f1, err)
	}
	f2, err := q.PopFloat()
	if err != nil || f2 != 8 {
		t.Fatalf("PopFloat = %v, %v", f2, err)
	}
	if q.PendingAggregates() != 0 {
		t.Fatal("size token not consumed by component-wise pops")
	}
	if _, err := q.PopFloat(); !errors.IsKind(err, errors.KindQueueOrder) {
		t.Fatalf("pop from empty: %v", err)
	}
}

func TestPushFloatThenPopFloats(t *testing.T) {
	q := New()
	q.PushFloat(1)
	q.PushFloat(2)
	q.PushFloat(3)

	out, err := q.PopFloats(3)
	if err != nil {
		t.Fatalf("PopFloats failed: %v", err)
	}
	if out[0] != 1 || out[2] != 3 {
		t.Fatalf("PopFloats = %v", out)
	}
}

func TestReset(t *testing.T) {
	q := New()
	q.Enqueue([]float32{1, 2})
	q.PushFloat(9)
	q.Reset()

	if q.PendingFloats() != 0 || q.PendingAggregates() != 0 {
		t.Fatal("Reset left data behind")
	}
}
