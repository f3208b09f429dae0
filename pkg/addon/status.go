// SPDX-License-Identifier: MPL-2.0

package addon

import (
	"errors"
	"fmt"
)

const (
	// StatusAvailable means the add-on is known (usually remotely) but not present locally.
	StatusAvailable Status = "available"
	// StatusDownloading means an archive transfer is in progress.
	StatusDownloading Status = "downloading"
	// StatusDownloaded means a validated archive is present but not installed.
	StatusDownloaded Status = "downloaded"
	// StatusInstalled means every component of the add-on is loaded.
	StatusInstalled Status = "installed"
	// StatusSoftUninstalled means code components were unloaded while files
	// and the resource bundle were kept.
	StatusSoftUninstalled Status = "soft_uninstalled"
	// StatusUninstalled means the add-on was fully removed.
	StatusUninstalled Status = "uninstalled"
)

// ErrInvalidTransition is returned when a status change is not an edge of the
// installation status graph.
var ErrInvalidTransition = errors.New("invalid installation status transition")

type (
	// Status is the installation status of an add-on.
	Status string

	// TransitionError describes a rejected status change.
	TransitionError struct {
		ID   string
		From Status
		To   Status
	}
)

//nolint:gochecknoglobals // Static transition table.
var transitions = map[Status][]Status{
	StatusAvailable:       {StatusDownloading, StatusDownloaded},
	StatusDownloading:     {StatusDownloaded, StatusAvailable},
	StatusDownloaded:      {StatusInstalled},
	StatusInstalled:       {StatusSoftUninstalled, StatusUninstalled},
	StatusSoftUninstalled: {StatusInstalled, StatusUninstalled},
	StatusUninstalled:     nil,
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("add-on %s: cannot change status from %s to %s", e.ID, e.From, e.To)
}

// Unwrap returns ErrInvalidTransition.
func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// CanTransition reports whether s may change to next. Staying in the same
// status is always allowed.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// HasLoadedComponents reports whether an add-on in this status may hold
// loaded extensions or scan rules.
func (s Status) HasLoadedComponents() bool {
	return s == StatusInstalled || s == StatusSoftUninstalled
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// String returns the status name.
func (s Status) String() string { return string(s) }
