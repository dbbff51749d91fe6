package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormat(t *testing.T) {
	err := New(PhaseDispatch, KindSignature).
		Path("sum").
		Detail("takes %d arguments, got %d", 2, 3).
		Build()

	msg := err.Error()
	if !strings.Contains(msg, "[dispatch]") {
		t.Fatalf("missing phase: %q", msg)
	}
	if !strings.Contains(msg, "signature_mismatch") {
		t.Fatalf("missing kind: %q", msg)
	}
	if !strings.Contains(msg, "at sum") {
		t.Fatalf("missing path: %q", msg)
	}
	if !strings.Contains(msg, "takes 2 arguments, got 3") {
		t.Fatalf("missing detail: %q", msg)
	}
}

func TestCauseChain(t *testing.T) {
	root := fmt.Errorf("root cause")
	err := Load("instantiate module", root)

	if !strings.Contains(err.Error(), "caused by: root cause") {
		t.Fatalf("cause not rendered: %q", err.Error())
	}
	if !stderrors.Is(err, root) {
		t.Fatal("errors.Is does not reach the cause")
	}
}

func TestIsKind(t *testing.T) {
	err := StaleHandle(PhaseArena, 42)
	if !IsKind(err, KindStaleHandle) {
		t.Fatal("IsKind missed")
	}
	if IsKind(err, KindNotFound) {
		t.Fatal("IsKind matched the wrong kind")
	}
	if IsKind(fmt.Errorf("plain"), KindStaleHandle) {
		t.Fatal("IsKind matched a plain error")
	}
}

func TestIsMatchesPhaseAndKind(t *testing.T) {
	a := NotFound(PhaseDispatch, "function", "f")
	b := NotFound(PhaseDispatch, "function", "g")
	if !stderrors.Is(a, b) {
		t.Fatal("same phase and kind do not match")
	}
	c := NotFound(PhaseRegistry, "function", "f")
	if stderrors.Is(a, c) {
		t.Fatal("different phases match")
	}
}

func TestConstructors(t *testing.T) {
	if err := Reentrancy("sum"); err.Kind != KindReentrancy || err.Phase != PhaseDispatch {
		t.Fatalf("Reentrancy = %+v", err)
	}
	if err := OutOfBounds(PhaseArena, 5, 2); err.Value != 5 {
		t.Fatalf("OutOfBounds value = %v", err.Value)
	}
	if err := TypeMismatch(PhaseDecode, "i32", "i64"); !strings.Contains(err.Detail, "expected i32, got i64") {
		t.Fatalf("TypeMismatch detail = %q", err.Detail)
	}
	if err := Signature("f", "bad arity"); err.Kind != KindSignature {
		t.Fatalf("Signature kind = %v", err.Kind)
	}
}
