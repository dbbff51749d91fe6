package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/modforge/scriptrt/interop"
)

var kindNames = map[string]interop.Kind{
	"i8":     interop.KindI8,
	"i16":    interop.KindI16,
	"i32":    interop.KindI32,
	"i64":    interop.KindI64,
	"u8":     interop.KindU8,
	"u16":    interop.KindU16,
	"u32":    interop.KindU32,
	"u64":    interop.KindU64,
	"f32":    interop.KindF32,
	"f64":    interop.KindF64,
	"bool":   interop.KindBool,
	"str":    interop.KindRuntimeString,
	"object": interop.KindObject,
	"void":   interop.KindVoid,
	"vec2":   interop.KindVec2,
	"vec3":   interop.KindVec3,
	"vec4":   interop.KindVec4,
	"quat":   interop.KindQuat,
	"mat4":   interop.KindMat4,
}

// parseKind resolves a kind name like "i32".
func parseKind(s string) (interop.Kind, error) {
	k, ok := kindNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown kind %q", s)
	}
	return k, nil
}

// parseValue parses "kind:literal", e.g. "i32:5", "str:hello",
// "vec2:1.5,2.5". A bare integer defaults to i32.
func parseValue(s string) (interop.Value, error) {
	kindStr, lit, found := strings.Cut(s, ":")
	if !found {
		kindStr, lit = "i32", s
	}
	k, err := parseKind(kindStr)
	if err != nil {
		return interop.Value{}, err
	}

	switch k {
	case interop.KindI8, interop.KindI16, interop.KindI32, interop.KindI64:
		n, err := strconv.ParseInt(lit, 10, 64)
		if err != nil {
			return interop.Value{}, fmt.Errorf("parse %q as %s: %w", lit, kindStr, err)
		}
		switch k {
		case interop.KindI8:
			return interop.I8(int8(n)), nil
		case interop.KindI16:
			return interop.I16(int16(n)), nil
		case interop.KindI32:
			return interop.I32(int32(n)), nil
		default:
			return interop.I64(n), nil
		}
	case interop.KindU8, interop.KindU16, interop.KindU32, interop.KindU64, interop.KindObject:
		n, err := strconv.ParseUint(lit, 10, 64)
		if err != nil {
			return interop.Value{}, fmt.Errorf("parse %q as %s: %w", lit, kindStr, err)
		}
		switch k {
		case interop.KindU8:
			return interop.U8(uint8(n)), nil
		case interop.KindU16:
			return interop.U16(uint16(n)), nil
		case interop.KindU32:
			return interop.U32(uint32(n)), nil
		case interop.KindObject:
			return interop.Object(n), nil
		default:
			return interop.U64(n), nil
		}
	case interop.KindF32, interop.KindF64:
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return interop.Value{}, fmt.Errorf("parse %q as %s: %w", lit, kindStr, err)
		}
		if k == interop.KindF32 {
			return interop.F32(float32(f)), nil
		}
		return interop.F64(f), nil
	case interop.KindBool:
		return interop.Bool(lit == "true" || lit == "1"), nil
	case interop.KindRuntimeString:
		return interop.RuntimeString(lit), nil
	case interop.KindVoid:
		return interop.Void(), nil
	case interop.KindVec2, interop.KindVec3, interop.KindVec4, interop.KindQuat, interop.KindMat4:
		parts := strings.Split(lit, ",")
		comps := make([]float32, len(parts))
		for i, p := range parts {
			f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
			if err != nil {
				return interop.Value{}, fmt.Errorf("parse component %d of %q: %w", i, lit, err)
			}
			comps[i] = float32(f)
		}
		return interop.Aggregate(k, comps)
	}
	return interop.Value{}, fmt.Errorf("kind %q cannot be written as a literal", kindStr)
}

// parseValues parses a space-separated argument list.
func parseValues(s string) ([]interop.Value, error) {
	fields := strings.Fields(s)
	out := make([]interop.Value, 0, len(fields))
	for _, f := range fields {
		v, err := parseValue(f)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
