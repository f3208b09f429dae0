// SPDX-License-Identifier: MPL-2.0

package depcheck

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/invowk/addonctl/internal/dag"
	"github.com/invowk/addonctl/pkg/addon"
)

type (
	resolver struct {
		in        Input
		installed map[string]*addon.AddOn

		// staged and uninstall are the plan under construction; they are
		// rolled back when a requested add-on cannot be resolved.
		staged    map[string]*addon.AddOn
		uninstall map[string]*addon.AddOn

		// Outcomes kept across rollbacks.
		incompatible map[string]*addon.AddOn
		preview      map[string]*addon.AddOn
		held         []Hold
		newerHost    bool
	}

	checkpoint struct {
		staged    map[string]*addon.AddOn
		uninstall map[string]*addon.AddOn
	}
)

// Compute plans the requested operation. Errors are returned only for
// install requests that cannot be met (ErrUnsatisfiableDependency), for
// uninstall requests naming add-ons that are not installed (ErrNotInstalled)
// and for dependency cycles. Update requests that cannot be met are reported
// in ChangeSet.Held.
func Compute(in Input) (*ChangeSet, error) {
	if in.Installed == nil {
		in.Installed = addon.EmptyCatalog()
	}
	if in.Candidates == nil {
		in.Candidates = addon.EmptyCatalog()
	}

	r := &resolver{
		in:           in,
		installed:    make(map[string]*addon.AddOn),
		staged:       make(map[string]*addon.AddOn),
		uninstall:    make(map[string]*addon.AddOn),
		incompatible: make(map[string]*addon.AddOn),
		preview:      make(map[string]*addon.AddOn),
	}
	for _, a := range in.Installed.Installed() {
		r.installed[a.ID] = a
	}

	requested := slices.Clone(in.Requested)
	if in.Mode == ModeUpdate && len(requested) == 0 {
		requested = slices.Sorted(maps.Keys(r.installed))
	}
	slices.Sort(requested)
	requested = slices.Compact(requested)

	for _, id := range requested {
		var err error
		switch in.Mode {
		case ModeUninstall:
			err = r.requestUninstall(id)
		case ModeInstall, ModeUpdate:
			err = r.requestInstall(id)
		default:
			err = fmt.Errorf("unknown mode %s", in.Mode)
		}
		if err != nil {
			return nil, err
		}
	}

	return r.changeSet(requested)
}

func (r *resolver) requestUninstall(id string) error {
	a, ok := r.installed[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotInstalled, id)
	}
	r.removeAll(a)
	return nil
}

func (r *resolver) requestInstall(id string) error {
	cand, ok := r.in.Candidates.Get(id)
	if !ok {
		if r.in.Mode == ModeUpdate {
			return nil
		}
		if _, installed := r.installed[id]; installed {
			return nil
		}
		return &UnsatisfiableError{Dependency: addon.Dependency{ID: id}}
	}
	if current := r.effective(id); current != nil && !cand.IsNewerThan(current) {
		return nil
	}
	if r.in.Mode == ModeUpdate {
		if _, installed := r.installed[id]; !installed {
			return nil
		}
	}

	cp := r.checkpoint()
	err := r.stage(cand)
	if err == nil {
		return nil
	}
	r.restore(cp)

	var displaced *DisplacementError
	switch {
	case errors.Is(err, addon.ErrHostVersionIncompatible):
		if _, self := r.incompatible[cand.ID]; !self {
			r.held = append(r.held, Hold{AddOn: cand, Reason: err})
		}
		return nil
	case errors.As(err, &displaced):
		r.held = append(r.held, Hold{AddOn: cand, Reason: err, Displaced: displaced.Displaced})
		for _, a := range r.closure(displaced.Displaced...) {
			r.preview[a.ID] = a
		}
		return nil
	case errors.Is(err, ErrUnsatisfiableDependency):
		if r.in.Mode == ModeInstall {
			return err
		}
		r.held = append(r.held, Hold{AddOn: cand, Reason: err})
		return nil
	default:
		return err
	}
}

// effective returns the version of id present once the plan is applied.
func (r *resolver) effective(id string) *addon.AddOn {
	if a, ok := r.staged[id]; ok {
		return a
	}
	if _, gone := r.uninstall[id]; gone {
		return nil
	}
	return r.installed[id]
}

// stage plans cand to be present, either as a fresh install or as the
// replacement of the installed version, and resolves what that implies.
func (r *resolver) stage(cand *addon.AddOn) error {
	if s, ok := r.staged[cand.ID]; ok && s.SameRelease(cand) {
		return nil
	}
	if err := cand.CheckCompatible(r.in.Host); err != nil {
		r.incompatible[cand.ID] = cand
		r.newerHost = true
		return err
	}

	r.staged[cand.ID] = cand
	for _, d := range cand.Dependencies {
		if err := r.require(cand, d); err != nil {
			return err
		}
	}
	if _, replacing := r.installed[cand.ID]; replacing {
		return r.reconcileDependents(cand)
	}
	return nil
}

// require makes sure dependency d of owner is met by the plan.
func (r *resolver) require(owner *addon.AddOn, d addon.Dependency) error {
	current := r.effective(d.ID)
	if current != nil && d.Range.Matches(current.Version) {
		return nil
	}

	cand, ok := r.in.Candidates.Get(d.ID)
	if !ok || !d.Range.Matches(cand.Version) || (current != nil && !cand.IsNewerThan(current)) {
		return &UnsatisfiableError{AddOn: owner.ID, Dependency: d}
	}
	if err := r.stage(cand); err != nil {
		return fmt.Errorf("resolving %s for %s: %w", d.ID, owner.ID, err)
	}
	return nil
}

// reconcileDependents checks the dependents of updated, installed or already
// planned. An installed dependent whose range excludes the new version is
// replaced by a newer candidate that accepts it; if none exists it is
// displaced. A planned dependent that excludes it makes the update
// unsatisfiable.
func (r *resolver) reconcileDependents(updated *addon.AddOn) error {
	ids := slices.Concat(slices.Collect(maps.Keys(r.installed)), slices.Collect(maps.Keys(r.staged)))
	slices.Sort(ids)

	var displaced []*addon.AddOn
	for _, id := range slices.Compact(ids) {
		present := r.effective(id)
		if present == nil || id == updated.ID {
			continue
		}
		d, ok := present.Dependency(updated.ID)
		if !ok || d.Range.Matches(updated.Version) {
			continue
		}
		if _, planned := r.staged[id]; planned {
			return &UnsatisfiableError{AddOn: id, Dependency: d}
		}
		if r.replace(present, updated) {
			continue
		}
		displaced = append(displaced, r.installed[id])
	}

	if len(displaced) == 0 {
		return nil
	}
	if r.in.AllowUninstalls {
		r.removeAll(displaced...)
		return nil
	}
	return &DisplacementError{AddOn: updated, Displaced: displaced}
}

// replace tries to stage a newer candidate of dependent that accepts updated.
func (r *resolver) replace(dependent, updated *addon.AddOn) bool {
	cand, ok := r.in.Candidates.Get(dependent.ID)
	if !ok || !cand.IsNewerThan(dependent) {
		return false
	}
	if d, ok := cand.Dependency(updated.ID); ok && !d.Range.Matches(updated.Version) {
		return false
	}

	cp := r.checkpoint()
	if err := r.stage(cand); err != nil {
		r.restore(cp)
		return false
	}
	return true
}

// closure returns roots plus every installed add-on depending on them,
// directly or transitively.
func (r *resolver) closure(roots ...*addon.AddOn) []*addon.AddOn {
	ids := make([]string, 0, len(roots))
	out := slices.Clone(roots)
	for _, a := range roots {
		ids = append(ids, a.ID)
	}
	for _, a := range r.in.Installed.DependentsClosure(ids...) {
		if inst, ok := r.installed[a.ID]; ok {
			out = append(out, inst)
		}
	}
	return out
}

// removeAll plans the removal of the given add-ons and their dependents.
func (r *resolver) removeAll(roots ...*addon.AddOn) {
	for _, a := range r.closure(roots...) {
		r.uninstall[a.ID] = a
		delete(r.staged, a.ID)
	}
}

func (r *resolver) checkpoint() checkpoint {
	return checkpoint{staged: maps.Clone(r.staged), uninstall: maps.Clone(r.uninstall)}
}

func (r *resolver) restore(cp checkpoint) {
	r.staged = cp.staged
	r.uninstall = cp.uninstall
}

func (r *resolver) changeSet(requested []string) (*ChangeSet, error) {
	cs := &ChangeSet{
		RequiresNewerHost: r.newerHost,
		Confirmed:         r.in.AllowUninstalls,
		Held:              r.held,
		requested:         make(map[string]bool, len(requested)),
	}
	if r.in.Mode == ModeUninstall {
		for _, id := range requested {
			cs.requested[id] = true
		}
	}

	order, err := dag.Order(slices.Collect(maps.Keys(r.staged)), func(id string) []string {
		return dependencyIDs(r.staged[id])
	})
	if err != nil {
		return nil, fmt.Errorf("ordering installs: %w", err)
	}
	for _, id := range order {
		a := r.staged[id]
		if old, ok := r.installed[id]; ok {
			cs.NewVersions = append(cs.NewVersions, a)
			cs.OldVersions = append(cs.OldVersions, old)
			continue
		}
		cs.Installs = append(cs.Installs, a)
	}

	removals := maps.Clone(r.uninstall)
	for id, a := range r.preview {
		if _, staged := r.staged[id]; !staged {
			removals[id] = a
		}
	}
	rev, err := dag.ReverseOrder(slices.Collect(maps.Keys(removals)), func(id string) []string {
		return dependencyIDs(removals[id])
	})
	if err != nil {
		return nil, fmt.Errorf("ordering uninstalls: %w", err)
	}
	for _, id := range rev {
		cs.Uninstalls = append(cs.Uninstalls, removals[id])
	}

	for _, id := range slices.Sorted(maps.Keys(r.incompatible)) {
		cs.Incompatible = append(cs.Incompatible, r.incompatible[id])
	}
	slices.SortFunc(cs.Held, func(a, b Hold) int { return strings.Compare(a.AddOn.ID, b.AddOn.ID) })
	return cs, nil
}

func dependencyIDs(a *addon.AddOn) []string {
	ids := make([]string, len(a.Dependencies))
	for i, d := range a.Dependencies {
		ids[i] = d.ID
	}
	return ids
}
