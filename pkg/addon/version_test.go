// SPDX-License-Identifier: MPL-2.0

package addon

import (
	"errors"
	"testing"
)

func TestParseVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		major   int
		minor   int
		patch   int
		pre     string
		wantErr bool
	}{
		{in: "1.2.3", want: "1.2.3", major: 1, minor: 2, patch: 3},
		{in: "v2.0.1", want: "v2.0.1", major: 2, patch: 1},
		{in: "3", want: "3", major: 3},
		{in: "1.4", want: "1.4", major: 1, minor: 4},
		{in: "1.0.0-beta.2+build.7", want: "1.0.0-beta.2+build.7", major: 1, pre: "beta.2"},
		{in: "", wantErr: true},
		{in: "one.two", wantErr: true},
		{in: "1.2.3.4", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			v, err := ParseVersion(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidVersion) {
					t.Fatalf("ParseVersion(%q) error = %v, want ErrInvalidVersion", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseVersion(%q) unexpected error: %v", tt.in, err)
			}
			if v.Major != tt.major || v.Minor != tt.minor || v.Patch != tt.patch || v.Prerelease != tt.pre {
				t.Errorf("ParseVersion(%q) = %+v", tt.in, v)
			}
			if v.String() != tt.want {
				t.Errorf("String() = %q, want %q", v.String(), tt.want)
			}
		})
	}
}

func TestVersionCompare(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0", "1.0.0", 0},
		{"1.0.1", "1.0.0", 1},
		{"1.2.0", "1.10.0", -1},
		{"2.0.0", "1.99.99", 1},
		{"1.0.0-alpha", "1.0.0", -1},
		{"1.0.0-alpha", "1.0.0-beta", -1},
		{"1.0.0+a", "1.0.0+b", 0},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			t.Parallel()
			a, b := MustParseVersion(tt.a), MustParseVersion(tt.b)
			if got := a.Compare(b); got != tt.want {
				t.Errorf("Compare() = %d, want %d", got, tt.want)
			}
			if got := b.Compare(a); got != -tt.want {
				t.Errorf("reverse Compare() = %d, want %d", got, -tt.want)
			}
		})
	}
}

func TestVersionIsNewerThanNil(t *testing.T) {
	t.Parallel()

	if !MustParseVersion("0.0.1").IsNewerThan(nil) {
		t.Error("every version should be newer than nil")
	}
	if MustParseVersion("1.0.0").IsNewerThan(MustParseVersion("1.0.0")) {
		t.Error("a version must not be newer than itself")
	}
}

func TestParseRangeMatches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rng     string
		match   []string
		noMatch []string
	}{
		{rng: "", match: []string{"0.0.1", "99.0.0"}},
		{rng: ">=1.0.0", match: []string{"1.0.0", "3.1.0"}, noMatch: []string{"0.9.9"}},
		{rng: ">= 1.0.0 <2.0.0", match: []string{"1.0.0", "1.9.9"}, noMatch: []string{"2.0.0", "0.1.0"}},
		{rng: ">=1.0.0, <2", match: []string{"1.5.0"}, noMatch: []string{"2.0.0"}},
		{rng: "^1.2.0", match: []string{"1.2.0", "1.9.0"}, noMatch: []string{"2.0.0", "1.1.9"}},
		{rng: "^0.2.3", match: []string{"0.2.9"}, noMatch: []string{"0.3.0"}},
		{rng: "^0.0.3", match: []string{"0.0.3"}, noMatch: []string{"0.0.4"}},
		{rng: "~1.2.0", match: []string{"1.2.5"}, noMatch: []string{"1.3.0"}},
		{rng: "1.2.3", match: []string{"1.2.3"}, noMatch: []string{"1.2.4"}},
		{rng: "<=1", match: []string{"1.0.0", "0.5.0"}, noMatch: []string{"1.0.1"}},
		{rng: ">1", match: []string{"1.0.1"}, noMatch: []string{"1.0.0"}},
	}

	for _, tt := range tests {
		t.Run(tt.rng, func(t *testing.T) {
			t.Parallel()

			r, err := ParseRange(tt.rng)
			if err != nil {
				t.Fatalf("ParseRange(%q) unexpected error: %v", tt.rng, err)
			}
			if r.IsAny() != (tt.rng == "") {
				t.Errorf("IsAny() = %v", r.IsAny())
			}
			for _, v := range tt.match {
				if !r.Matches(MustParseVersion(v)) {
					t.Errorf("%q should match %s", tt.rng, v)
				}
			}
			for _, v := range tt.noMatch {
				if r.Matches(MustParseVersion(v)) {
					t.Errorf("%q should not match %s", tt.rng, v)
				}
			}
		})
	}
}

func TestParseRangeErrors(t *testing.T) {
	t.Parallel()

	for _, in := range []string{">=", "abc", ">=1.0 <", "!1.0"} {
		if _, err := ParseRange(in); !errors.Is(err, ErrInvalidRange) {
			t.Errorf("ParseRange(%q) error = %v, want ErrInvalidRange", in, err)
		}
	}
}

func TestRangeMatchesNilVersion(t *testing.T) {
	t.Parallel()

	if (Range{}).Matches(nil) {
		t.Error("a nil version never satisfies a range")
	}
}

func TestRangeTextRoundTrip(t *testing.T) {
	t.Parallel()

	var r Range
	if err := r.UnmarshalText([]byte(">=1.0.0 <2.0.0")); err != nil {
		t.Fatalf("UnmarshalText() error: %v", err)
	}
	b, err := r.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText() error: %v", err)
	}
	if string(b) != ">=1.0.0 <2.0.0" {
		t.Errorf("MarshalText() = %q", b)
	}
}
