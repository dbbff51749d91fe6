package interop

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/modforge/scriptrt/errors"
)

// Semver is a semantic version packed for the boundary as
// major:u32 | minor:u16 | patch:u16, major in the high bits.
type Semver struct {
	Major uint32
	Minor uint16
	Patch uint16
}

// PackVersion packs a version into its 64-bit boundary form.
func PackVersion(major uint32, minor, patch uint16) uint64 {
	return uint64(major)<<32 | uint64(minor)<<16 | uint64(patch)
}

// UnpackVersion is the inverse of PackVersion.
func UnpackVersion(v uint64) Semver {
	return Semver{
		Major: uint32(v >> 32),
		Minor: uint16(v >> 16),
		Patch: uint16(v),
	}
}

// Packed returns the 64-bit boundary form.
func (s Semver) Packed() uint64 {
	return PackVersion(s.Major, s.Minor, s.Patch)
}

func (s Semver) String() string {
	return fmt.Sprintf("%d.%d.%d", s.Major, s.Minor, s.Patch)
}

// ParseSemver parses "major.minor.patch". Minor and patch may be omitted and
// default to zero.
func ParseSemver(s string) (Semver, error) {
	parts := strings.Split(s, ".")
	if len(parts) == 0 || len(parts) > 3 {
		return Semver{}, errors.InvalidInput(errors.PhaseDecode,
			fmt.Sprintf("malformed version %q", s))
	}
	nums := [3]uint64{}
	limits := [3]uint64{1<<32 - 1, 1<<16 - 1, 1<<16 - 1}
	for i, p := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil || n > limits[i] {
			return Semver{}, errors.InvalidInput(errors.PhaseDecode,
				fmt.Sprintf("malformed version %q", s))
		}
		nums[i] = n
	}
	return Semver{Major: uint32(nums[0]), Minor: uint16(nums[1]), Patch: uint16(nums[2])}, nil
}
