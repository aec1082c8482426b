package domain

import "testing"

func TestNextVersion(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{1.0, 1.1},
		{1.1, 1.2},
		{1.9, 2.0},
		{2.3, 2.4},
		{0.1, 0.2},
	}
	for _, tc := range cases {
		if got := NextVersion(tc.in); got != tc.want {
			t.Errorf("NextVersion(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNextMajorVersion(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{1.0, 2.0},
		{1.3, 2.0},
		{2.9, 3.0},
		{0.4, 1.0},
	}
	for _, tc := range cases {
		if got := NextMajorVersion(tc.in); got != tc.want {
			t.Errorf("NextMajorVersion(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestVersionMonotonicity(t *testing.T) {
	v := InitialVersion
	for i := 0; i < 25; i++ {
		next := NextVersion(v)
		if next <= v {
			t.Fatalf("minor bump not monotonic: %v -> %v", v, next)
		}
		v = next
	}
	if major := NextMajorVersion(v); major <= v {
		t.Fatalf("major bump not monotonic: %v -> %v", v, major)
	}
}
