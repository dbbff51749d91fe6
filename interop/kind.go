package interop

// Kind is the wire discriminant for a tagged value. The numeric values are a
// fixed catalog and part of the boundary contract; never reorder them.
type Kind uint32

const (
	KindInvalid Kind = 0

	KindI8   Kind = 1
	KindI16  Kind = 2
	KindI32  Kind = 3
	KindI64  Kind = 4
	KindU8   Kind = 5
	KindU16  Kind = 6
	KindU32  Kind = 7
	KindU64  Kind = 8
	KindF32  Kind = 9
	KindF64  Kind = 10
	KindBool Kind = 11

	// KindRuntimeString is a string whose backing buffer the runtime allocated
	// and must release. KindHostString was allocated by the host and must never
	// be released by the runtime.
	KindRuntimeString Kind = 12
	KindHostString    Kind = 13

	// KindObject is an opaque handle into a host-owned table. The runtime
	// stores and forwards the key, never dereferences it.
	KindObject Kind = 14

	KindRuntimeError Kind = 15
	KindHostError    Kind = 16
	KindVoid         Kind = 17

	// Fixed-shape numeric aggregates. These bypass general marshalling and
	// travel over the vector queue channel as raw float components.
	KindVec2 Kind = 18
	KindVec3 Kind = 19
	KindVec4 Kind = 20
	KindQuat Kind = 21
	KindMat4 Kind = 22
)

var kindNames = map[Kind]string{
	KindI8:            "i8",
	KindI16:           "i16",
	KindI32:           "i32",
	KindI64:           "i64",
	KindU8:            "u8",
	KindU16:           "u16",
	KindU32:           "u32",
	KindU64:           "u64",
	KindF32:           "f32",
	KindF64:           "f64",
	KindBool:          "bool",
	KindRuntimeString: "runtime_string",
	KindHostString:    "host_string",
	KindObject:        "object",
	KindRuntimeError:  "runtime_error",
	KindHostError:     "host_error",
	KindVoid:          "void",
	KindVec2:          "vec2",
	KindVec3:          "vec3",
	KindVec4:          "vec4",
	KindQuat:          "quat",
	KindMat4:          "mat4",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// IsString reports whether k is one of the two string ownership kinds.
func (k Kind) IsString() bool {
	return k == KindRuntimeString || k == KindHostString
}

// IsError reports whether k is one of the two error ownership kinds.
func (k Kind) IsError() bool {
	return k == KindRuntimeError || k == KindHostError
}

// IsAggregate reports whether k travels over the vector queue channel.
func (k Kind) IsAggregate() bool {
	return k >= KindVec2 && k <= KindMat4
}

// AggregateSize returns the float component count for an aggregate kind,
// or 0 for non-aggregates.
func (k Kind) AggregateSize() int {
	switch k {
	case KindVec2:
		return 2
	case KindVec3:
		return 3
	case KindVec4, KindQuat:
		return 4
	case KindMat4:
		return 16
	default:
		return 0
	}
}

// ValidParam reports whether k may appear in a function parameter signature.
func (k Kind) ValidParam() bool {
	switch k {
	case KindI8, KindI16, KindI32, KindI64,
		KindU8, KindU16, KindU32, KindU64,
		KindF32, KindF64, KindBool,
		KindRuntimeString, KindHostString, KindObject,
		KindVec2, KindVec3, KindVec4, KindQuat, KindMat4:
		return true
	}
	return false
}

// ValidReturn reports whether k may appear as a function return kind.
// Void is a valid return but not a valid parameter.
func (k Kind) ValidReturn() bool {
	return k == KindVoid || k.ValidParam()
}
