package interop

import "testing"

func TestPackVersionRoundTrip(t *testing.T) {
	packed := PackVersion(1, 2, 3)
	got := UnpackVersion(packed)
	if got.Major != 1 || got.Minor != 2 || got.Patch != 3 {
		t.Fatalf("unpacked to %v, want 1.2.3", got)
	}
}

func TestPackVersionBitLayout(t *testing.T) {
	// Major occupies the high 32 bits, minor the next 16, patch the low 16.
	packed := PackVersion(1, 0, 0)
	if packed != 1<<32 {
		t.Fatalf("packed 1.0.0 = %#x, want %#x", packed, uint64(1)<<32)
	}
	packed = PackVersion(0, 1, 0)
	if packed != 1<<16 {
		t.Fatalf("packed 0.1.0 = %#x, want %#x", packed, uint64(1)<<16)
	}
	if PackVersion(0, 0, 7) != 7 {
		t.Fatal("patch is not the low 16 bits")
	}
}

func TestPackVersionExtremes(t *testing.T) {
	s := UnpackVersion(PackVersion(1<<32-1, 1<<16-1, 1<<16-1))
	if s.Major != 1<<32-1 || s.Minor != 1<<16-1 || s.Patch != 1<<16-1 {
		t.Fatalf("extremes did not round-trip: %v", s)
	}
}

func TestParseSemver(t *testing.T) {
	cases := []struct {
		in   string
		want Semver
		ok   bool
	}{
		{"1.2.3", Semver{1, 2, 3}, true},
		{"1.0.0", Semver{1, 0, 0}, true},
		{"2", Semver{Major: 2}, true},
		{"2.5", Semver{Major: 2, Minor: 5}, true},
		{"", Semver{}, false},
		{"a.b.c", Semver{}, false},
		{"1.2.3.4", Semver{}, false},
		{"1.70000.0", Semver{}, false},
	}
	for _, tc := range cases {
		got, err := ParseSemver(tc.in)
		if tc.ok && err != nil {
			t.Fatalf("ParseSemver(%q) failed: %v", tc.in, err)
		}
		if !tc.ok {
			if err == nil {
				t.Fatalf("ParseSemver(%q) should fail", tc.in)
			}
			continue
		}
		if got != tc.want {
			t.Fatalf("ParseSemver(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestSemverString(t *testing.T) {
	if s := (Semver{1, 2, 3}).String(); s != "1.2.3" {
		t.Fatalf("String = %q", s)
	}
}
