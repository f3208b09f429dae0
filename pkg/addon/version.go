// SPDX-License-Identifier: MPL-2.0

package addon

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrInvalidVersion is returned when a version string is not a semantic version.
	ErrInvalidVersion = errors.New("invalid version")
	// ErrInvalidRange is returned when a version range cannot be parsed.
	ErrInvalidRange = errors.New("invalid version range")

	versionRegex    = regexp.MustCompile(`^v?(\d+)(?:\.(\d+))?(?:\.(\d+))?(?:-([0-9A-Za-z\-\.]+))?(?:\+([0-9A-Za-z\-\.]+))?$`)
	constraintRegex = regexp.MustCompile(`^([~^]|>=|<=|>|<|=)?v?(\d+(?:\.\d+)?(?:\.\d+)?(?:-[0-9A-Za-z\-\.]+)?)$`)
)

type (
	// Version is a parsed semantic version. Build metadata is accepted but
	// ignored for ordering.
	Version struct {
		Major      int
		Minor      int
		Patch      int
		Prerelease string
		original   string
	}

	// Constraint is a single comparison against a version, e.g. ">=1.2.0".
	Constraint struct {
		// Op is one of =, ^, ~, >, >=, <, <=.
		Op      string
		Version *Version
	}

	// Range is a conjunction of constraints. The zero Range matches every version.
	Range struct {
		constraints []Constraint
		original    string
	}
)

// ParseVersion parses s ("1", "1.2", "v1.2.3-beta.1+build" ...).
func ParseVersion(s string) (*Version, error) {
	s = strings.TrimSpace(s)
	m := versionRegex.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}

	v := &Version{original: s, Prerelease: m[4]}
	var err error
	if v.Major, err = strconv.Atoi(m[1]); err != nil {
		return nil, fmt.Errorf("%w: major component of %q: %w", ErrInvalidVersion, s, err)
	}
	if m[2] != "" {
		if v.Minor, err = strconv.Atoi(m[2]); err != nil {
			return nil, fmt.Errorf("%w: minor component of %q: %w", ErrInvalidVersion, s, err)
		}
	}
	if m[3] != "" {
		if v.Patch, err = strconv.Atoi(m[3]); err != nil {
			return nil, fmt.Errorf("%w: patch component of %q: %w", ErrInvalidVersion, s, err)
		}
	}
	return v, nil
}

// MustParseVersion is like ParseVersion but panics on error. Intended for
// constants and tests.
func MustParseVersion(s string) *Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version as originally written.
func (v *Version) String() string {
	if v == nil {
		return ""
	}
	if v.original != "" {
		return v.original
	}
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		s += "-" + v.Prerelease
	}
	return s
}

// Compare returns -1, 0 or 1 when v is lower than, equal to or greater than other.
// Pre-release versions sort below the matching release.
func (v *Version) Compare(other *Version) int {
	if c := cmpInt(v.Major, other.Major); c != 0 {
		return c
	}
	if c := cmpInt(v.Minor, other.Minor); c != 0 {
		return c
	}
	if c := cmpInt(v.Patch, other.Patch); c != 0 {
		return c
	}

	switch {
	case v.Prerelease == other.Prerelease:
		return 0
	case v.Prerelease == "":
		return 1
	case other.Prerelease == "":
		return -1
	case v.Prerelease < other.Prerelease:
		return -1
	default:
		return 1
	}
}

// IsNewerThan reports whether v is strictly greater than other. A nil other
// is treated as "no version", which every version is newer than.
func (v *Version) IsNewerThan(other *Version) bool {
	if other == nil {
		return true
	}
	return v.Compare(other) > 0
}

// Equal reports whether both versions have the same precedence.
func (v *Version) Equal(other *Version) bool {
	if v == nil || other == nil {
		return v == other
	}
	return v.Compare(other) == 0
}

// MarshalText implements encoding.TextMarshaler.
func (v *Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(b []byte) error {
	parsed, err := ParseVersion(string(b))
	if err != nil {
		return err
	}
	*v = *parsed
	return nil
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// ParseConstraint parses a single constraint such as "^1.2" or ">= 2.0.0".
func ParseConstraint(s string) (Constraint, error) {
	s = strings.Join(strings.Fields(s), "")
	m := constraintRegex.FindStringSubmatch(s)
	if m == nil {
		return Constraint{}, fmt.Errorf("%w: %q", ErrInvalidRange, s)
	}
	op := m[1]
	if op == "" {
		op = "="
	}
	v, err := ParseVersion(m[2])
	if err != nil {
		return Constraint{}, fmt.Errorf("%w: %w", ErrInvalidRange, err)
	}
	return Constraint{Op: op, Version: v}, nil
}

// Matches reports whether v satisfies the constraint.
func (c Constraint) Matches(v *Version) bool {
	switch c.Op {
	case "=":
		return v.Compare(c.Version) == 0
	case "^":
		// ^1.2.3 := >=1.2.3 <2.0.0, ^0.2.3 := >=0.2.3 <0.3.0, ^0.0.3 := >=0.0.3 <0.0.4
		if v.Compare(c.Version) < 0 {
			return false
		}
		if c.Version.Major != 0 {
			return v.Major == c.Version.Major
		}
		if c.Version.Minor != 0 {
			return v.Major == 0 && v.Minor == c.Version.Minor
		}
		return v.Major == 0 && v.Minor == 0 && v.Patch == c.Version.Patch
	case "~":
		if v.Compare(c.Version) < 0 {
			return false
		}
		return v.Major == c.Version.Major && v.Minor == c.Version.Minor
	case ">":
		return v.Compare(c.Version) > 0
	case ">=":
		return v.Compare(c.Version) >= 0
	case "<":
		return v.Compare(c.Version) < 0
	case "<=":
		return v.Compare(c.Version) <= 0
	default:
		return false
	}
}

// String renders the constraint.
func (c Constraint) String() string {
	return c.Op + c.Version.String()
}

// ParseRange parses a conjunction of constraints separated by commas or
// whitespace, e.g. ">=1.0.0 <2.0.0". A bare operator followed by a space
// (">= 1.0") is joined with the next token. The empty string yields a range
// that matches every version.
func ParseRange(s string) (Range, error) {
	r := Range{original: strings.TrimSpace(s)}
	if r.original == "" {
		return r, nil
	}

	tokens := strings.FieldsFunc(r.original, func(c rune) bool {
		return c == ',' || c == ' ' || c == '\t'
	})
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if isOperator(tok) {
			if i+1 >= len(tokens) {
				return Range{}, fmt.Errorf("%w: dangling operator in %q", ErrInvalidRange, s)
			}
			i++
			tok += tokens[i]
		}
		c, err := ParseConstraint(tok)
		if err != nil {
			return Range{}, err
		}
		r.constraints = append(r.constraints, c)
	}
	return r, nil
}

// MustParseRange is like ParseRange but panics on error.
func MustParseRange(s string) Range {
	r, err := ParseRange(s)
	if err != nil {
		panic(err)
	}
	return r
}

func isOperator(tok string) bool {
	switch tok {
	case "=", "^", "~", ">", ">=", "<", "<=":
		return true
	}
	return false
}

// Matches reports whether v satisfies every constraint in the range.
func (r Range) Matches(v *Version) bool {
	if v == nil {
		return false
	}
	for _, c := range r.constraints {
		if !c.Matches(v) {
			return false
		}
	}
	return true
}

// IsAny reports whether the range has no constraints.
func (r Range) IsAny() bool { return len(r.constraints) == 0 }

// String returns the range as originally written.
func (r Range) String() string {
	if r.original == "" && len(r.constraints) > 0 {
		parts := make([]string, len(r.constraints))
		for i, c := range r.constraints {
			parts[i] = c.String()
		}
		return strings.Join(parts, " ")
	}
	return r.original
}

// MarshalText implements encoding.TextMarshaler.
func (r Range) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Range) UnmarshalText(b []byte) error {
	parsed, err := ParseRange(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
