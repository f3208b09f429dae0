// SPDX-License-Identifier: MPL-2.0

package addon

import (
	"errors"
	"testing"
)

func TestCompatibleWith(t *testing.T) {
	t.Parallel()

	a := &AddOn{
		ID:        "fuzzer",
		Version:   MustParseVersion("1.0.0"),
		NotBefore: MustParseVersion("2.10.0"),
		NotFrom:   MustParseVersion("2.12.0"),
	}

	tests := []struct {
		host string
		want bool
	}{
		{"2.9.9", false},
		{"2.10.0", true},
		{"2.11.5", true},
		{"2.12.0", false},
		{"3.0.0", false},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			t.Parallel()
			host := MustParseVersion(tt.host)
			if got := a.CompatibleWith(host); got != tt.want {
				t.Errorf("CompatibleWith(%s) = %v, want %v", tt.host, got, tt.want)
			}
			err := a.CheckCompatible(host)
			if tt.want && err != nil {
				t.Errorf("CheckCompatible(%s) unexpected error: %v", tt.host, err)
			}
			if !tt.want && !errors.Is(err, ErrHostVersionIncompatible) {
				t.Errorf("CheckCompatible(%s) error = %v, want ErrHostVersionIncompatible", tt.host, err)
			}
		})
	}
}

func TestCompatibleWithUnbounded(t *testing.T) {
	t.Parallel()

	a := &AddOn{ID: "any", Version: MustParseVersion("1.0.0")}
	if !a.CompatibleWith(MustParseVersion("0.1.0")) || !a.CompatibleWith(MustParseVersion("99.0.0")) {
		t.Error("an add-on without bounds is compatible with every host")
	}
}

func TestAddOnIsNewerThan(t *testing.T) {
	t.Parallel()

	base := &AddOn{ID: "x", Version: MustParseVersion("1.0.0"), FileVersion: 3}
	tests := []struct {
		name  string
		other *AddOn
		want  bool
	}{
		{"nil", nil, true},
		{"higher version", &AddOn{ID: "x", Version: MustParseVersion("0.9.0"), FileVersion: 10}, true},
		{"same version higher file", &AddOn{ID: "x", Version: MustParseVersion("1.0.0"), FileVersion: 2}, true},
		{"same release", &AddOn{ID: "x", Version: MustParseVersion("1.0.0"), FileVersion: 3}, false},
		{"older", &AddOn{ID: "x", Version: MustParseVersion("1.1.0"), FileVersion: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := base.IsNewerThan(tt.other); got != tt.want {
				t.Errorf("IsNewerThan() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAddOnDependencies(t *testing.T) {
	t.Parallel()

	a := &AddOn{
		ID:      "b",
		Version: MustParseVersion("1.0.0"),
		Dependencies: []Dependency{
			{ID: "a", Range: MustParseRange(">=1.0.0")},
		},
	}
	if !a.DependsOn("a") || a.DependsOn("c") {
		t.Error("DependsOn mismatch")
	}
	if !a.DependsOnAny([]*AddOn{{ID: "c"}, {ID: "a"}}) {
		t.Error("DependsOnAny should find a")
	}
	d, ok := a.Dependency("a")
	if !ok || !d.Range.Matches(MustParseVersion("1.2.0")) {
		t.Errorf("Dependency(a) = %+v, %v", d, ok)
	}
}

func TestAddOnClone(t *testing.T) {
	t.Parallel()

	a := &AddOn{ID: "a", Version: MustParseVersion("1.0.0"), Files: []string{"lib/a.txt"}}
	c := a.Clone()
	c.Files[0] = "changed"
	if a.Files[0] != "lib/a.txt" {
		t.Error("Clone must deep copy slices")
	}
}

func TestIsScanRulesAddOn(t *testing.T) {
	t.Parallel()

	if !(&AddOn{ID: "ascanrulesBeta"}).IsScanRulesAddOn() {
		t.Error("ascanrulesBeta is a scan rules add-on")
	}
	if (&AddOn{ID: "spider"}).IsScanRulesAddOn() {
		t.Error("spider is not a scan rules add-on")
	}
}
