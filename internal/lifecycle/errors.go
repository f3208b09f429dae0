// SPDX-License-Identifier: MPL-2.0

package lifecycle

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrFileConflict is returned when a declared file cannot be placed at
	// its path: the path leaves the managed root or names a directory.
	ErrFileConflict = errors.New("add-on file conflict")

	// ErrPartialUninstall is returned when some components of an add-on could
	// not be removed.
	ErrPartialUninstall = errors.New("add-on only partially uninstalled")

	errIsDirectory = errors.New("path is a directory")
)

type (
	// FileConflictError names the file that could not be installed.
	FileConflictError struct {
		AddOn string
		Path  string
		Err   error
	}

	// PartialUninstallError lists the components left loaded and the
	// failures met while removing the rest.
	PartialUninstallError struct {
		AddOn string
		Kept  []string
		Err   error
	}
)

// Error implements the error interface.
func (e *FileConflictError) Error() string {
	return fmt.Sprintf("add-on %s: file %s: %v", e.AddOn, e.Path, e.Err)
}

// Unwrap returns ErrFileConflict and the underlying cause.
func (e *FileConflictError) Unwrap() []error { return []error{ErrFileConflict, e.Err} }

// Error implements the error interface.
func (e *PartialUninstallError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "add-on %s only partially uninstalled", e.AddOn)
	if len(e.Kept) > 0 {
		fmt.Fprintf(&b, " (still loaded: %s)", strings.Join(e.Kept, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns ErrPartialUninstall and the underlying failures.
func (e *PartialUninstallError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrPartialUninstall}
	}
	return []error{ErrPartialUninstall, e.Err}
}
