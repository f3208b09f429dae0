// SPDX-License-Identifier: MPL-2.0

package depcheck

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/invowk/addonctl/pkg/addon"
)

// Mode selects how Requested is interpreted.
const (
	// ModeInstall installs the requested add-ons and their dependencies.
	ModeInstall Mode = iota
	// ModeUpdate replaces the requested installed add-ons with newer candidates.
	// An empty Requested list means every installed add-on.
	ModeUpdate
	// ModeUninstall removes the requested add-ons and their dependents.
	ModeUninstall
)

var (
	// ErrUnsatisfiableDependency is returned when a mandatory dependency has
	// no acceptable version among installed add-ons and candidates.
	ErrUnsatisfiableDependency = errors.New("unsatisfiable dependency")

	// ErrDisplacesDependents marks an upgrade that would leave installed
	// dependents without an acceptable version of the upgraded add-on.
	ErrDisplacesDependents = errors.New("upgrade displaces installed dependents")

	// ErrNotInstalled is returned when an uninstall names an add-on that is
	// not installed.
	ErrNotInstalled = errors.New("add-on is not installed")
)

type (
	// Mode is the kind of operation being planned.
	Mode int

	// Input is everything Compute looks at.
	Input struct {
		// Installed is the local catalog. Only entries whose status has loaded
		// components count as installed.
		Installed *addon.Catalog
		// Candidates holds the versions that may be installed, usually the
		// latest remote catalog.
		Candidates *addon.Catalog
		// Host is the running host version. Nil disables host checks.
		Host      *addon.Version
		Requested []string
		Mode      Mode
		// AllowUninstalls confirms that installed dependents may be removed
		// when an upgrade leaves them without an acceptable dependency.
		AllowUninstalls bool
	}

	// Hold is an add-on that is not installed or upgraded in this pass.
	Hold struct {
		AddOn  *addon.AddOn
		Reason error
		// Displaced lists the installed add-ons the upgrade would remove.
		Displaced []*addon.AddOn
	}

	// ChangeSet is the result of Compute. Installs and NewVersions are in
	// dependency order, Uninstalls lists dependents before their dependencies.
	// OldVersions holds, in the order of NewVersions, the installed add-ons
	// being replaced.
	ChangeSet struct {
		Installs          []*addon.AddOn
		Uninstalls        []*addon.AddOn
		OldVersions       []*addon.AddOn
		NewVersions       []*addon.AddOn
		RequiresNewerHost bool
		// Incompatible lists add-ons that cannot be loaded by the host.
		Incompatible []*addon.AddOn
		Held         []Hold
		// Confirmed is true when the change-set was computed with
		// AllowUninstalls and may be applied as is.
		Confirmed bool

		requested map[string]bool
	}

	// UnsatisfiableError names the add-on whose dependency cannot be met.
	UnsatisfiableError struct {
		AddOn      string
		Dependency addon.Dependency
	}

	// DisplacementError names the installed add-ons an upgrade would displace.
	DisplacementError struct {
		AddOn     *addon.AddOn
		Displaced []*addon.AddOn
	}
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeInstall:
		return "install"
	case ModeUpdate:
		return "update"
	case ModeUninstall:
		return "uninstall"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Error implements the error interface.
func (e *UnsatisfiableError) Error() string {
	rng := e.Dependency.Range.String()
	if rng == "" {
		rng = "any version"
	}
	if e.AddOn == "" {
		return fmt.Sprintf("no candidate for add-on %s (%s)", e.Dependency.ID, rng)
	}
	return fmt.Sprintf("add-on %s requires %s (%s), which is not available", e.AddOn, e.Dependency.ID, rng)
}

// Unwrap returns ErrUnsatisfiableDependency.
func (e *UnsatisfiableError) Unwrap() error { return ErrUnsatisfiableDependency }

// Error implements the error interface.
func (e *DisplacementError) Error() string {
	names := make([]string, len(e.Displaced))
	for i, d := range e.Displaced {
		names[i] = d.String()
	}
	return fmt.Sprintf("upgrading to %s would uninstall %s", e.AddOn, strings.Join(names, ", "))
}

// Unwrap returns ErrDisplacesDependents.
func (e *DisplacementError) Unwrap() error { return ErrDisplacesDependents }

// NeedsConfirmation reports whether the user must approve the change-set:
// it removes add-ons that were not explicitly requested, or some add-on
// needs a newer host.
func (cs *ChangeSet) NeedsConfirmation() bool {
	return cs.RequiresNewerHost || cs.hasUnrequestedRemovals()
}

// Removals returns the uninstalls that may be applied. Until the change-set
// is confirmed, removals nobody asked for are only a preview and none of the
// uninstalls are returned.
func (cs *ChangeSet) Removals() []*addon.AddOn {
	if cs.Confirmed || !cs.hasUnrequestedRemovals() {
		return cs.Uninstalls
	}
	return nil
}

func (cs *ChangeSet) hasUnrequestedRemovals() bool {
	return slices.ContainsFunc(cs.Uninstalls, func(a *addon.AddOn) bool {
		return !cs.requested[a.ID]
	})
}

// IsEmpty reports whether applying the change-set would change nothing.
func (cs *ChangeSet) IsEmpty() bool {
	return len(cs.Installs) == 0 && len(cs.Uninstalls) == 0 && len(cs.NewVersions) == 0
}

// Downloads returns the add-ons whose archives must be fetched: installs
// followed by new versions.
func (cs *ChangeSet) Downloads() []*addon.AddOn {
	out := make([]*addon.AddOn, 0, len(cs.Installs)+len(cs.NewVersions))
	out = append(out, cs.Installs...)
	return append(out, cs.NewVersions...)
}

// HeldIDs returns the IDs of held add-ons.
func (cs *ChangeSet) HeldIDs() []string {
	out := make([]string, len(cs.Held))
	for i, h := range cs.Held {
		out[i] = h.AddOn.ID
	}
	return out
}
