// SPDX-License-Identifier: MPL-2.0

package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/invowk/addonctl/internal/dag"
	"github.com/invowk/addonctl/internal/depcheck"
	"github.com/invowk/addonctl/pkg/addon"
)

// Actions recorded in a Report.
const (
	ActionUninstall Action = "uninstall"
	ActionRemoveOld Action = "remove-old"
	ActionInstall   Action = "install"
	ActionUpdate    Action = "update"
)

type (
	// Action is the kind of step an Outcome describes.
	Action string

	// Outcome is the result of one change-set item.
	Outcome struct {
		AddOn  *addon.AddOn
		Action Action
		OK     bool
		// Status is the installation status the add-on ended up in.
		Status addon.Status
		Err    error
	}

	// Report collects the outcomes of Apply in execution order.
	Report struct {
		Outcomes []Outcome
	}
)

// Err joins the errors of every failed outcome.
func (r *Report) Err() error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return errors.Join(errs...)
}

// Failed returns the outcomes that did not succeed.
func (r *Report) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if !o.OK {
			out = append(out, o)
		}
	}
	return out
}

// Statuses returns the final status of every add-on touched, keyed by ID.
// Later outcomes for the same ID win.
func (r *Report) Statuses() map[string]addon.Status {
	out := make(map[string]addon.Status, len(r.Outcomes))
	for _, o := range r.Outcomes {
		out[o.AddOn.ID] = o.Status
	}
	return out
}

// Apply executes cs: uninstalls with dependents first, then the removal of
// replaced versions, then installs and new versions with dependencies first.
// New archives must already be present at their LocalPath. A new version whose
// old version could not be fully removed is skipped, along with the add-ons
// depending on it. Other items are applied independently; failures are
// collected in the report. Cancellation of ctx is observed only before an
// item starts.
func (o *Orchestrator) Apply(ctx context.Context, cs *depcheck.ChangeSet, progress Progress, installed *addon.Catalog) *Report {
	removals := cs.Removals()
	ctx, span := o.tracer.Start(ctx, "lifecycle.Apply", trace.WithAttributes(
		attribute.Int("addonctl.uninstalls", len(removals)),
		attribute.Int("addonctl.old_versions", len(cs.OldVersions)),
		attribute.Int("addonctl.installs", len(cs.Installs)),
		attribute.Int("addonctl.new_versions", len(cs.NewVersions)),
	))
	defer span.End()

	progress = progressOrNop(progress)
	if installed == nil {
		installed = addon.EmptyCatalog()
	}
	report := &Report{}

	step := func(a *addon.AddOn, action Action, fn func(ctx context.Context) (addon.Status, error)) Outcome {
		out := Outcome{AddOn: a, Action: action, Status: a.Status}
		if err := ctx.Err(); err != nil {
			out.Err = fmt.Errorf("%s %s: %w", action, a.ID, err)
			report.Outcomes = append(report.Outcomes, out)
			return out
		}
		var status addon.Status
		var err error
		runErr := o.host.Dispatcher.Run(context.WithoutCancel(ctx), func(ctx context.Context) {
			status, err = fn(ctx)
		})
		if runErr != nil {
			err = runErr
		} else {
			out.Status = status
		}
		out.OK = err == nil
		out.Err = err
		report.Outcomes = append(report.Outcomes, out)
		return out
	}

	removeStep := func(a *addon.AddOn, action Action) Outcome {
		out := step(a, action, func(ctx context.Context) (addon.Status, error) {
			return o.uninstall(ctx, a, progress, installed, true)
		})
		if out.Status == addon.StatusUninstalled {
			installed = installed.Without(a.ID)
		}
		return out
	}
	for _, a := range removals {
		removeStep(a, ActionUninstall)
	}
	// An old version still partly loaded blocks its replacement.
	blocked := make(map[string]error)
	for _, old := range cs.OldVersions {
		out := removeStep(old, ActionRemoveOld)
		if out.Status == addon.StatusUninstalled {
			continue
		}
		cause := out.Err
		if cause == nil {
			cause = ErrPartialUninstall
		}
		blocked[old.ID] = fmt.Errorf("version %s not removed: %w", old.Version, cause)
	}

	replacing := make(map[string]bool, len(cs.NewVersions))
	for _, a := range cs.NewVersions {
		replacing[a.ID] = true
	}
	actionFor := func(a *addon.AddOn) Action {
		if replacing[a.ID] {
			return ActionUpdate
		}
		return ActionInstall
	}

	order, err := installOrder(cs)
	if err != nil {
		for _, a := range cs.Downloads() {
			report.Outcomes = append(report.Outcomes, Outcome{AddOn: a, Action: actionFor(a), Status: a.Status, Err: err})
		}
	}
	for _, a := range order {
		action := actionFor(a)
		for _, d := range a.Dependencies {
			if err, ok := blocked[d.ID]; ok && blocked[a.ID] == nil {
				blocked[a.ID] = fmt.Errorf("dependency %s: %w", d.ID, err)
			}
		}
		if err, ok := blocked[a.ID]; ok {
			report.Outcomes = append(report.Outcomes, Outcome{
				AddOn: a, Action: action, Status: a.Status,
				Err: fmt.Errorf("%s %s: %w", action, a.ID, err),
			})
			continue
		}
		out := step(a, action, func(ctx context.Context) (addon.Status, error) {
			if err := a.CheckCompatible(o.host.Version); err != nil {
				return a.Status, err
			}
			return addon.StatusInstalled, o.install(ctx, a, InstallOptions{Overwrite: true})
		})
		if out.Status == addon.StatusInstalled {
			done := a.Clone()
			done.Status = addon.StatusInstalled
			installed = installed.With(done)
		}
	}

	if err := report.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "change-set partially applied")
	}
	return report
}

// installOrder merges installs and new versions so every add-on follows the
// add-ons it depends on.
func installOrder(cs *depcheck.ChangeSet) ([]*addon.AddOn, error) {
	byID := make(map[string]*addon.AddOn, len(cs.Installs)+len(cs.NewVersions))
	ids := make([]string, 0, len(byID))
	for _, a := range cs.Downloads() {
		byID[a.ID] = a
		ids = append(ids, a.ID)
	}
	order, err := dag.Order(ids, func(id string) []string {
		deps := byID[id].Dependencies
		out := make([]string, len(deps))
		for i, d := range deps {
			out[i] = d.ID
		}
		return out
	})
	if err != nil {
		return nil, err
	}
	out := make([]*addon.AddOn, len(order))
	for i, id := range order {
		out[i] = byID[id]
	}
	return out, nil
}
