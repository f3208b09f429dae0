// SPDX-License-Identifier: MPL-2.0

package hostenv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned when a path resolves outside the managed root.
var ErrOutsideRoot = errors.New("path resolves outside the managed root")

type (
	// ManagedRoot is the directory under which add-on files are installed.
	// Every path it hands out, and every directory it removes, lies inside it
	// after symlinks are resolved.
	ManagedRoot struct {
		dir string
	}

	// OutsideRootError names the offending path.
	OutsideRootError struct {
		Path string
		Root string
	}
)

// Error implements the error interface.
func (e *OutsideRootError) Error() string {
	return fmt.Sprintf("%s resolves outside the managed root %s", e.Path, e.Root)
}

// Unwrap returns ErrOutsideRoot.
func (e *OutsideRootError) Unwrap() error { return ErrOutsideRoot }

// NewManagedRoot creates dir if needed and resolves it to its real path.
func NewManagedRoot(dir string) (*ManagedRoot, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating managed root: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving managed root: %w", err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolving managed root: %w", err)
	}
	return &ManagedRoot{dir: real}, nil
}

// Dir returns the absolute, symlink-free root directory.
func (r *ManagedRoot) Dir() string { return r.dir }

// Resolve maps a root-relative, slash-separated path to an absolute path
// inside the root. Absolute paths, ".." traversal and symlinked parents that
// lead outside the root fail with an *OutsideRootError.
func (r *ManagedRoot) Resolve(rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", errors.New("empty path")
	}
	native := filepath.FromSlash(rel)
	if filepath.IsAbs(native) {
		return "", &OutsideRootError{Path: rel, Root: r.dir}
	}

	full := filepath.Join(r.dir, native)
	if !within(r.dir, full) || full == r.dir {
		return "", &OutsideRootError{Path: rel, Root: r.dir}
	}
	if err := r.checkReal(full); err != nil {
		return "", err
	}
	return full, nil
}

// Contains reports whether p, after resolving symlinks of its existing
// part, lies inside the root.
func (r *ManagedRoot) Contains(p string) bool {
	abs, err := filepath.Abs(p)
	if err != nil || !within(r.dir, abs) {
		return false
	}
	return r.checkReal(abs) == nil
}

// RemoveEmptyDirs removes dir and then each parent that is left empty,
// stopping at the first non-empty directory and never removing the root
// itself. A directory that resolves outside the root aborts the walk with an
// *OutsideRootError.
func (r *ManagedRoot) RemoveEmptyDirs(dir string) error {
	cur, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", dir, err)
	}

	for {
		if !within(r.dir, cur) {
			return &OutsideRootError{Path: cur, Root: r.dir}
		}
		if cur == r.dir {
			return nil
		}

		real, err := filepath.EvalSymlinks(cur)
		switch {
		case errors.Is(err, os.ErrNotExist):
			cur = filepath.Dir(cur)
			continue
		case err != nil:
			return fmt.Errorf("resolving %s: %w", cur, err)
		}
		if !within(r.dir, real) {
			return &OutsideRootError{Path: cur, Root: r.dir}
		}
		if real == r.dir {
			return nil
		}

		entries, err := os.ReadDir(real)
		if err != nil {
			return fmt.Errorf("reading %s: %w", real, err)
		}
		if len(entries) > 0 {
			return nil
		}
		if err := os.Remove(real); err != nil {
			return fmt.Errorf("removing %s: %w", real, err)
		}
		cur = filepath.Dir(cur)
	}
}

// checkReal resolves the deepest existing ancestor of p and verifies it is
// still inside the root.
func (r *ManagedRoot) checkReal(p string) error {
	existing := p
	for {
		real, err := filepath.EvalSymlinks(existing)
		if err == nil {
			if !within(r.dir, real) {
				return &OutsideRootError{Path: p, Root: r.dir}
			}
			return nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("resolving %s: %w", existing, err)
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return nil
		}
		existing = parent
	}
}

// within reports whether p equals root or lies below it.
func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
