package interop

import (
	"fmt"
	"math"

	"github.com/modforge/scriptrt/errors"
)

// Ownership records which side of the boundary allocated a string or error
// payload. Releasing a buffer on the wrong side is a fatal-class host bug;
// the tag exists so both sides can check before freeing.
type Ownership uint8

const (
	// OwnedNone applies to kinds with no allocated payload.
	OwnedNone Ownership = iota
	// OwnedRuntime buffers are released through the runtime.
	OwnedRuntime
	// OwnedHost buffers must never be released by the runtime.
	OwnedHost
)

// Value is the tagged union crossing the host/script boundary. The
// discriminant always matches the payload: values are only produced by the
// typed constructors or Encode, so a mismatched decode is detectable instead
// of undefined.
type Value struct {
	kind Kind
	num  uint64
	str  string
	vec  []float32
}

// Kind returns the discriminant.
func (v Value) Kind() Kind { return v.kind }

// Owned returns the ownership tag for string and error payloads.
func (v Value) Owned() Ownership {
	switch v.kind {
	case KindRuntimeString, KindRuntimeError:
		return OwnedRuntime
	case KindHostString, KindHostError:
		return OwnedHost
	default:
		return OwnedNone
	}
}

// Typed constructors. Each pins the discriminant to the payload.

func I8(v int8) Value    { return Value{kind: KindI8, num: uint64(uint8(v))} }
func I16(v int16) Value  { return Value{kind: KindI16, num: uint64(uint16(v))} }
func I32(v int32) Value  { return Value{kind: KindI32, num: uint64(uint32(v))} }
func I64(v int64) Value  { return Value{kind: KindI64, num: uint64(v)} }
func U8(v uint8) Value   { return Value{kind: KindU8, num: uint64(v)} }
func U16(v uint16) Value { return Value{kind: KindU16, num: uint64(v)} }
func U32(v uint32) Value { return Value{kind: KindU32, num: uint64(v)} }
func U64(v uint64) Value { return Value{kind: KindU64, num: v} }
func F32(v float32) Value {
	return Value{kind: KindF32, num: uint64(math.Float32bits(v))}
}
func F64(v float64) Value {
	return Value{kind: KindF64, num: math.Float64bits(v)}
}
func Bool(v bool) Value {
	var n uint64
	if v {
		n = 1
	}
	return Value{kind: KindBool, num: n}
}

// RuntimeString tags s as allocated by the runtime.
func RuntimeString(s string) Value { return Value{kind: KindRuntimeString, str: s} }

// HostString tags s as allocated by the host.
func HostString(s string) Value { return Value{kind: KindHostString, str: s} }

// Object wraps an opaque host object key. The runtime never dereferences it.
func Object(key uint64) Value { return Value{kind: KindObject, num: key} }

// RuntimeErr wraps a runtime-owned error message value.
func RuntimeErr(msg string) Value { return Value{kind: KindRuntimeError, str: msg} }

// HostErr wraps a host-owned error message value.
func HostErr(msg string) Value { return Value{kind: KindHostError, str: msg} }

// Void is the unit value.
func Void() Value { return Value{kind: KindVoid} }

func Vec2(v [2]float32) Value  { return Value{kind: KindVec2, vec: v[:]} }
func Vec3(v [3]float32) Value  { return Value{kind: KindVec3, vec: v[:]} }
func Vec4(v [4]float32) Value  { return Value{kind: KindVec4, vec: v[:]} }
func Quat(v [4]float32) Value  { return Value{kind: KindQuat, vec: v[:]} }
func Mat4(v [16]float32) Value { return Value{kind: KindMat4, vec: v[:]} }

// Aggregate constructs an aggregate value of kind k from raw components.
func Aggregate(k Kind, components []float32) (Value, error) {
	n := k.AggregateSize()
	if n == 0 {
		return Value{}, errors.InvalidInput(errors.PhaseEncode,
			fmt.Sprintf("kind %s is not an aggregate", k))
	}
	if len(components) != n {
		return Value{}, errors.New(errors.PhaseEncode, errors.KindInvalidData).
			Detail("%s needs %d components, got %d", k, n, len(components)).
			Build()
	}
	vec := make([]float32, n)
	copy(vec, components)
	return Value{kind: k, vec: vec}, nil
}

// Encode converts a native Go value to a tagged Value of the requested kind.
// The native type must match the kind exactly; no implicit numeric coercion.
func Encode(native any, kind Kind) (Value, error) {
	switch kind {
	case KindI8:
		if v, ok := native.(int8); ok {
			return I8(v), nil
		}
	case KindI16:
		if v, ok := native.(int16); ok {
			return I16(v), nil
		}
	case KindI32:
		if v, ok := native.(int32); ok {
			return I32(v), nil
		}
	case KindI64:
		if v, ok := native.(int64); ok {
			return I64(v), nil
		}
	case KindU8:
		if v, ok := native.(uint8); ok {
			return U8(v), nil
		}
	case KindU16:
		if v, ok := native.(uint16); ok {
			return U16(v), nil
		}
	case KindU32:
		if v, ok := native.(uint32); ok {
			return U32(v), nil
		}
	case KindU64:
		if v, ok := native.(uint64); ok {
			return U64(v), nil
		}
	case KindF32:
		if v, ok := native.(float32); ok {
			return F32(v), nil
		}
	case KindF64:
		if v, ok := native.(float64); ok {
			return F64(v), nil
		}
	case KindBool:
		if v, ok := native.(bool); ok {
			return Bool(v), nil
		}
	case KindRuntimeString:
		if v, ok := native.(string); ok {
			return RuntimeString(v), nil
		}
	case KindHostString:
		if v, ok := native.(string); ok {
			return HostString(v), nil
		}
	case KindObject:
		if v, ok := native.(uint64); ok {
			return Object(v), nil
		}
	case KindRuntimeError:
		if v, ok := native.(string); ok {
			return RuntimeErr(v), nil
		}
	case KindHostError:
		if v, ok := native.(string); ok {
			return HostErr(v), nil
		}
	case KindVoid:
		if native == nil {
			return Void(), nil
		}
	case KindVec2, KindVec3, KindVec4, KindQuat, KindMat4:
		if v, ok := native.([]float32); ok {
			return Aggregate(kind, v)
		}
	default:
		return Value{}, errors.InvalidInput(errors.PhaseEncode,
			fmt.Sprintf("unknown kind %d", kind))
	}
	return Value{}, errors.TypeMismatch(errors.PhaseEncode,
		kind.String(), fmt.Sprintf("%T", native))
}

// Decode extracts the native value, failing with a type_mismatch error when
// the expected kind disagrees with the discriminant. The two string kinds are
// distinct for decoding purposes; ownership is part of the contract.
func Decode(v Value, expected Kind) (any, error) {
	if v.kind != expected {
		return nil, errors.TypeMismatch(errors.PhaseDecode,
			expected.String(), v.kind.String())
	}
	switch v.kind {
	case KindI8:
		return int8(v.num), nil
	case KindI16:
		return int16(v.num), nil
	case KindI32:
		return int32(v.num), nil
	case KindI64:
		return int64(v.num), nil
	case KindU8:
		return uint8(v.num), nil
	case KindU16:
		return uint16(v.num), nil
	case KindU32:
		return uint32(v.num), nil
	case KindU64:
		return v.num, nil
	case KindF32:
		return math.Float32frombits(uint32(v.num)), nil
	case KindF64:
		return math.Float64frombits(v.num), nil
	case KindBool:
		return v.num != 0, nil
	case KindRuntimeString, KindHostString, KindRuntimeError, KindHostError:
		return v.str, nil
	case KindObject:
		return v.num, nil
	case KindVoid:
		return nil, nil
	case KindVec2, KindVec3, KindVec4, KindQuat, KindMat4:
		out := make([]float32, len(v.vec))
		copy(out, v.vec)
		return out, nil
	}
	return nil, errors.InvalidInput(errors.PhaseDecode,
		fmt.Sprintf("unknown kind %d", v.kind))
}

// Typed accessors used on hot paths where the caller already knows the kind.

func (v Value) AsI32() (int32, error) {
	if v.kind != KindI32 {
		return 0, errors.TypeMismatch(errors.PhaseDecode, KindI32.String(), v.kind.String())
	}
	return int32(v.num), nil
}

func (v Value) AsI64() (int64, error) {
	if v.kind != KindI64 {
		return 0, errors.TypeMismatch(errors.PhaseDecode, KindI64.String(), v.kind.String())
	}
	return int64(v.num), nil
}

func (v Value) AsF32() (float32, error) {
	if v.kind != KindF32 {
		return 0, errors.TypeMismatch(errors.PhaseDecode, KindF32.String(), v.kind.String())
	}
	return math.Float32frombits(uint32(v.num)), nil
}

func (v Value) AsF64() (float64, error) {
	if v.kind != KindF64 {
		return 0, errors.TypeMismatch(errors.PhaseDecode, KindF64.String(), v.kind.String())
	}
	return math.Float64frombits(v.num), nil
}

func (v Value) AsBool() (bool, error) {
	if v.kind != KindBool {
		return false, errors.TypeMismatch(errors.PhaseDecode, KindBool.String(), v.kind.String())
	}
	return v.num != 0, nil
}

// AsString accepts either string ownership kind.
func (v Value) AsString() (string, error) {
	if !v.kind.IsString() {
		return "", errors.TypeMismatch(errors.PhaseDecode, "string", v.kind.String())
	}
	return v.str, nil
}

// AsObject returns the opaque object key.
func (v Value) AsObject() (uint64, error) {
	if v.kind != KindObject {
		return 0, errors.TypeMismatch(errors.PhaseDecode, KindObject.String(), v.kind.String())
	}
	return v.num, nil
}

// AsError returns the error message for either error ownership kind.
func (v Value) AsError() (string, bool) {
	if !v.kind.IsError() {
		return "", false
	}
	return v.str, true
}

// Components returns the float components of an aggregate value. The slice
// is a copy; mutating it does not reach the value's payload.
func (v Value) Components() ([]float32, error) {
	if !v.kind.IsAggregate() {
		return nil, errors.TypeMismatch(errors.PhaseDecode, "aggregate", v.kind.String())
	}
	out := make([]float32, len(v.vec))
	copy(out, v.vec)
	return out, nil
}

// Bits returns the raw 64-bit payload for scalar kinds. Used by the bytecode
// engine when flattening arguments.
func (v Value) Bits() uint64 { return v.num }

// Equal reports payload equality including the discriminant.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	if v.kind.IsAggregate() {
		if len(v.vec) != len(o.vec) {
			return false
		}
		for i := range v.vec {
			if v.vec[i] != o.vec[i] {
				return false
			}
		}
		return true
	}
	return v.num == o.num && v.str == o.str
}

func (v Value) String() string {
	switch {
	case v.kind.IsString():
		return fmt.Sprintf("%s(%q)", v.kind, v.str)
	case v.kind.IsError():
		return fmt.Sprintf("%s(%q)", v.kind, v.str)
	case v.kind == KindVoid:
		return "void"
	case v.kind.IsAggregate():
		return fmt.Sprintf("%s%v", v.kind, v.vec)
	case v.kind == KindF32:
		return fmt.Sprintf("%s(%v)", v.kind, math.Float32frombits(uint32(v.num)))
	case v.kind == KindF64:
		return fmt.Sprintf("%s(%v)", v.kind, math.Float64frombits(v.num))
	default:
		return fmt.Sprintf("%s(%d)", v.kind, v.num)
	}
}
