// SPDX-License-Identifier: MPL-2.0

package update

import (
	"github.com/invowk/addonctl/internal/depcheck"
	"github.com/invowk/addonctl/pkg/addon"
)

// PlanUpdates plans the upgrade of every installed add-on for which remote
// holds a newer version. Upgrades that would displace installed dependents
// are held unless allowUninstalls is set.
func (c *Coordinator) PlanUpdates(remote *addon.Catalog, allowUninstalls bool) (*depcheck.ChangeSet, error) {
	return c.planUpdates(remote, c.Installed().UpdatedIn(remote), allowUninstalls)
}

func (c *Coordinator) planUpdates(remote *addon.Catalog, updated []*addon.AddOn, allowUninstalls bool) (*depcheck.ChangeSet, error) {
	if len(updated) == 0 {
		return &depcheck.ChangeSet{}, nil
	}
	ids := make([]string, len(updated))
	for i, a := range updated {
		ids[i] = a.ID
	}
	return depcheck.Compute(depcheck.Input{
		Installed:       c.Installed(),
		Candidates:      remote,
		Host:            c.deps.Host.Version,
		Requested:       ids,
		Mode:            depcheck.ModeUpdate,
		AllowUninstalls: allowUninstalls,
	})
}

// PlanInstall plans the installation of ids and their dependencies.
func (c *Coordinator) PlanInstall(remote *addon.Catalog, ids []string, allowUninstalls bool) (*depcheck.ChangeSet, error) {
	return depcheck.Compute(depcheck.Input{
		Installed:       c.Installed(),
		Candidates:      remote,
		Host:            c.deps.Host.Version,
		Requested:       ids,
		Mode:            depcheck.ModeInstall,
		AllowUninstalls: allowUninstalls,
	})
}

// PlanUninstall plans the removal of ids and of every add-on depending on
// them.
func (c *Coordinator) PlanUninstall(ids []string, allowUninstalls bool) (*depcheck.ChangeSet, error) {
	return depcheck.Compute(depcheck.Input{
		Installed:       c.Installed(),
		Requested:       ids,
		Mode:            depcheck.ModeUninstall,
		AllowUninstalls: allowUninstalls,
	})
}
