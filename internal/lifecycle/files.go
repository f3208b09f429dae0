// SPDX-License-Identifier: MPL-2.0

package lifecycle

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/invowk/addonctl/internal/hostenv"
	"github.com/invowk/addonctl/pkg/addon"
)

// InstallMissingFiles installs the declared files of a that are not present
// under the managed root.
func (o *Orchestrator) InstallMissingFiles(ctx context.Context, a *addon.AddOn) error {
	return o.dispatch(ctx, func(context.Context) error { return o.installFiles(a, false) })
}

// UpdateFiles installs every declared file of a, replacing existing ones.
func (o *Orchestrator) UpdateFiles(ctx context.Context, a *addon.AddOn) error {
	return o.dispatch(ctx, func(context.Context) error { return o.installFiles(a, true) })
}

func (o *Orchestrator) installFiles(a *addon.AddOn, overwrite bool) error {
	if len(a.Files) == 0 {
		return nil
	}
	if a.LocalPath == "" {
		return fmt.Errorf("add-on %s: no local archive to install files from", a.ID)
	}
	ar, err := addon.OpenArchive(a.LocalPath)
	if err != nil {
		return err
	}
	defer func() { _ = ar.Close() }() // read-only

	var errs []error
	for _, name := range a.Files {
		if err := o.installFile(ar, a, name, overwrite); err != nil {
			o.logger.Warn("file not installed", "addon", a.ID, "file", name, "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) installFile(ar *addon.Archive, a *addon.AddOn, name string, overwrite bool) error {
	target, err := o.host.Root.Resolve(name)
	if err != nil {
		return &FileConflictError{AddOn: a.ID, Path: name, Err: err}
	}

	info, err := os.Lstat(target)
	switch {
	case err == nil && info.IsDir():
		return &FileConflictError{AddOn: a.ID, Path: name, Err: errIsDirectory}
	case err == nil && !overwrite:
		return nil
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("checking %s: %w", name, err)
	}

	rc, err := ar.Open(name)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }() // read-only

	return writeFile(target, rc)
}

// writeFile writes r to a temporary file next to target and renames it into
// place.
func writeFile(target string, r io.Reader) (err error) {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".addonctl-*")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", target, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("setting mode of %s: %w", target, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("moving %s into place: %w", target, err)
	}
	return nil
}

// removeFiles deletes the files of a that no other installed add-on
// declares, then prunes the directories left empty. A path resolving
// outside the managed root aborts the removal.
func (o *Orchestrator) removeFiles(a *addon.AddOn, progress Progress, installed *addon.Catalog) error {
	var owned []string
	for _, name := range a.Files {
		if owners := installed.FileOwners(name, a.ID); len(owners) > 0 {
			o.logger.Debug("keeping shared file", "addon", a.ID, "file", name, "owners", owners)
			continue
		}
		owned = append(owned, name)
	}
	if len(owned) == 0 {
		return nil
	}

	progress.BeforeFilesRemoved(len(owned))
	dirs := make(map[string]struct{})
	var errs []error
	for _, name := range owned {
		target, err := o.host.Root.Resolve(name)
		if err != nil {
			if errors.Is(err, hostenv.ErrOutsideRoot) {
				return err
			}
			errs = append(errs, err)
			continue
		}
		if info, err := os.Lstat(target); err == nil && info.IsDir() {
			errs = append(errs, &FileConflictError{AddOn: a.ID, Path: name, Err: errIsDirectory})
			continue
		}
		if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
			o.logger.Warn("file not removed", "addon", a.ID, "file", name, "err", err)
			errs = append(errs, err)
			continue
		}
		progress.FileRemoved()
		dirs[filepath.Dir(target)] = struct{}{}
	}

	for _, dir := range deepestFirst(dirs) {
		if err := o.host.Root.RemoveEmptyDirs(dir); err != nil {
			if errors.Is(err, hostenv.ErrOutsideRoot) {
				return err
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func deepestFirst(dirs map[string]struct{}) []string {
	out := make([]string, 0, len(dirs))
	for d := range dirs {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b string) int {
		sep := string(filepath.Separator)
		if c := cmp.Compare(strings.Count(b, sep), strings.Count(a, sep)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return out
}
