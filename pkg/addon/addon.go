// SPDX-License-Identifier: MPL-2.0

package addon

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

const (
	// MaturityAlpha marks experimental add-ons.
	MaturityAlpha Maturity = "alpha"
	// MaturityBeta marks add-ons that are feature complete but not yet stable.
	MaturityBeta Maturity = "beta"
	// MaturityRelease marks stable add-ons.
	MaturityRelease Maturity = "release"
)

// ErrHostVersionIncompatible is returned when an add-on cannot be loaded by
// the running host version.
var ErrHostVersionIncompatible = errors.New("add-on is not compatible with the host version")

type (
	// Maturity is the release quality level of an add-on.
	Maturity string

	// Dependency is a mandatory requirement on another add-on.
	Dependency struct {
		ID    string
		Range Range
	}

	// BundleDescriptor names the message bundle shipped with an add-on.
	// Prefix is the namespace under which the messages are registered; an
	// empty BaseName means the add-on declares no bundle.
	BundleDescriptor struct {
		BaseName string
		Prefix   string
	}

	// AddOn describes one version of an add-on. Values held by a Catalog must
	// be treated as read-only; use Clone before changing a field.
	AddOn struct {
		ID          string
		Name        string
		Description string
		Author      string
		Version     *Version
		// FileVersion increases with every published archive of the add-on.
		FileVersion  int
		Maturity     Maturity
		Status       Status
		Dependencies []Dependency

		// NotBefore and NotFrom bound the host versions able to load the
		// add-on: NotBefore <= host < NotFrom. Nil means unbounded.
		NotBefore *Version
		NotFrom   *Version

		Files            []string
		Extensions       []string
		ActiveScanRules  []string
		PassiveScanRules []string
		Bundle           BundleDescriptor

		// Remote fetch metadata.
		URL  string
		Size int64
		Hash string

		// LocalPath is the archive location once it is present on disk.
		LocalPath string
	}

	// IncompatibleError reports an add-on that the host cannot load.
	IncompatibleError struct {
		ID        string
		Host      *Version
		NotBefore *Version
		NotFrom   *Version
	}
)

// Error implements the error interface.
func (e *IncompatibleError) Error() string {
	return fmt.Sprintf("add-on %s cannot be loaded by host %s (not before %s, not from %s)",
		e.ID, e.Host, orUnbounded(e.NotBefore), orUnbounded(e.NotFrom))
}

// Unwrap returns ErrHostVersionIncompatible.
func (e *IncompatibleError) Unwrap() error { return ErrHostVersionIncompatible }

func orUnbounded(v *Version) string {
	if v == nil {
		return "-"
	}
	return v.String()
}

// String identifies the add-on and its version.
func (a *AddOn) String() string {
	return fmt.Sprintf("%s@%s", a.ID, a.Version)
}

// CompatibleWith reports whether host lies within [NotBefore, NotFrom).
func (a *AddOn) CompatibleWith(host *Version) bool {
	if host == nil {
		return true
	}
	if a.NotBefore != nil && host.Compare(a.NotBefore) < 0 {
		return false
	}
	if a.NotFrom != nil && host.Compare(a.NotFrom) >= 0 {
		return false
	}
	return true
}

// CheckCompatible returns an *IncompatibleError when the host cannot load a.
func (a *AddOn) CheckCompatible(host *Version) error {
	if a.CompatibleWith(host) {
		return nil
	}
	return &IncompatibleError{ID: a.ID, Host: host, NotBefore: a.NotBefore, NotFrom: a.NotFrom}
}

// IsNewerThan reports whether a supersedes other: a higher version, or the
// same version published with a higher file version.
func (a *AddOn) IsNewerThan(other *AddOn) bool {
	if other == nil {
		return true
	}
	if c := a.Version.Compare(other.Version); c != 0 {
		return c > 0
	}
	return a.FileVersion > other.FileVersion
}

// SameRelease reports whether both values describe the same published archive.
func (a *AddOn) SameRelease(other *AddOn) bool {
	if a == nil || other == nil {
		return a == other
	}
	return a.ID == other.ID && a.Version.Equal(other.Version) && a.FileVersion == other.FileVersion
}

// Dependency returns the declared dependency on id, if any.
func (a *AddOn) Dependency(id string) (Dependency, bool) {
	for _, d := range a.Dependencies {
		if d.ID == id {
			return d, true
		}
	}
	return Dependency{}, false
}

// DependsOn reports whether a declares a dependency on id.
func (a *AddOn) DependsOn(id string) bool {
	_, ok := a.Dependency(id)
	return ok
}

// DependsOnAny reports whether a declares a dependency on any of the given add-ons.
func (a *AddOn) DependsOnAny(others []*AddOn) bool {
	for _, o := range others {
		if a.DependsOn(o.ID) {
			return true
		}
	}
	return false
}

// DeclaresFile reports whether path is one of the add-on's declared files.
func (a *AddOn) DeclaresFile(path string) bool {
	return slices.Contains(a.Files, path)
}

// IsScanRulesAddOn reports whether the add-on only ships scan rules, which by
// convention carry "scanrules" in their identifier.
func (a *AddOn) IsScanRulesAddOn() bool {
	return strings.Contains(a.ID, "scanrules")
}

// HasBundle reports whether a message bundle is declared.
func (a *AddOn) HasBundle() bool {
	return a.Bundle.BaseName != ""
}

// Clone returns a deep copy of a.
func (a *AddOn) Clone() *AddOn {
	c := *a
	c.Dependencies = slices.Clone(a.Dependencies)
	c.Files = slices.Clone(a.Files)
	c.Extensions = slices.Clone(a.Extensions)
	c.ActiveScanRules = slices.Clone(a.ActiveScanRules)
	c.PassiveScanRules = slices.Clone(a.PassiveScanRules)
	return &c
}

// WithStatus returns a copy of a with the status changed, or a
// *TransitionError if the change is not allowed.
func (a *AddOn) WithStatus(s Status) (*AddOn, error) {
	if !a.Status.CanTransition(s) {
		return nil, &TransitionError{ID: a.ID, From: a.Status, To: s}
	}
	c := a.Clone()
	c.Status = s
	return c, nil
}

// IsValid reports whether m is a known maturity level.
func (m Maturity) IsValid() bool {
	switch m {
	case MaturityAlpha, MaturityBeta, MaturityRelease:
		return true
	}
	return false
}

// String returns the maturity name.
func (m Maturity) String() string { return string(m) }
