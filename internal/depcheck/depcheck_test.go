// SPDX-License-Identifier: MPL-2.0

package depcheck

import (
	"errors"
	"slices"
	"testing"

	"github.com/invowk/addonctl/internal/testutil/addontest"
	"github.com/invowk/addonctl/pkg/addon"
)

var host = addon.MustParseVersion("2.12.0")

func ids(addOns []*addon.AddOn) []string {
	out := make([]string, len(addOns))
	for i, a := range addOns {
		out[i] = a.String()
	}
	return out
}

func TestComputeInstallPullsDependencies(t *testing.T) {
	t.Parallel()

	cs, err := Compute(Input{
		Installed: addon.EmptyCatalog(),
		Candidates: addontest.Catalog(t,
			addontest.New("A", "1.0.0"),
			addontest.New("B", "1.0.0", addontest.DependsOn("A", ">=1")),
		),
		Host:      host,
		Requested: []string{"B"},
		Mode:      ModeInstall,
	})
	if err != nil {
		t.Fatalf("Compute() error: %v", err)
	}
	if got := ids(cs.Installs); !slices.Equal(got, []string{"A@1.0.0", "B@1.0.0"}) {
		t.Errorf("Installs = %v, want [A@1.0.0 B@1.0.0]", got)
	}
	if cs.NeedsConfirmation() || len(cs.Uninstalls) != 0 || len(cs.NewVersions) != 0 {
		t.Errorf("unexpected change-set: %+v", cs)
	}
}

func TestComputeInstallUsesInstalledDependency(t *testing.T) {
	t.Parallel()

	cs, err := Compute(Input{
		Installed: addontest.Catalog(t, addontest.Installed("A", "1.5.0")),
		Candidates: addontest.Catalog(t,
			addontest.New("A", "1.5.0"),
			addontest.New("B", "1.0.0", addontest.DependsOn("A", ">=1")),
		),
		Host:      host,
		Requested: []string{"B"},
		Mode:      ModeInstall,
	})
	if err != nil {
		t.Fatalf("Compute() error: %v", err)
	}
	if got := ids(cs.Installs); !slices.Equal(got, []string{"B@1.0.0"}) {
		t.Errorf("Installs = %v, want [B@1.0.0]", got)
	}
}

func TestComputeInstallUpgradesTooOldDependency(t *testing.T) {
	t.Parallel()

	cs, err := Compute(Input{
		Installed: addontest.Catalog(t, addontest.Installed("A", "1.0.0")),
		Candidates: addontest.Catalog(t,
			addontest.New("A", "2.0.0"),
			addontest.New("B", "1.0.0", addontest.DependsOn("A", ">=2")),
		),
		Host:      host,
		Requested: []string{"B"},
		Mode:      ModeInstall,
	})
	if err != nil {
		t.Fatalf("Compute() error: %v", err)
	}
	if got := ids(cs.NewVersions); !slices.Equal(got, []string{"A@2.0.0"}) {
		t.Errorf("NewVersions = %v", got)
	}
	if got := ids(cs.OldVersions); !slices.Equal(got, []string{"A@1.0.0"}) {
		t.Errorf("OldVersions = %v", got)
	}
	if got := ids(cs.Installs); !slices.Equal(got, []string{"B@1.0.0"}) {
		t.Errorf("Installs = %v", got)
	}
}

func TestComputeInstallUnsatisfiable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		candidates []*addon.AddOn
		requested  string
	}{
		{
			name:       "missing dependency",
			candidates: []*addon.AddOn{addontest.New("B", "1.0.0", addontest.DependsOn("A", ""))},
			requested:  "B",
		},
		{
			name: "dependency out of range",
			candidates: []*addon.AddOn{
				addontest.New("A", "1.0.0"),
				addontest.New("B", "1.0.0", addontest.DependsOn("A", ">=3")),
			},
			requested: "B",
		},
		{
			name:      "unknown add-on",
			requested: "ghost",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Compute(Input{
				Candidates: addontest.Catalog(t, tt.candidates...),
				Host:       host,
				Requested:  []string{tt.requested},
				Mode:       ModeInstall,
			})
			if !errors.Is(err, ErrUnsatisfiableDependency) {
				t.Fatalf("Compute() error = %v, want ErrUnsatisfiableDependency", err)
			}
			var ue *UnsatisfiableError
			if !errors.As(err, &ue) {
				t.Fatalf("error %v is not an *UnsatisfiableError", err)
			}
		})
	}
}

func TestComputeInstallConflictsWithPlannedDependent(t *testing.T) {
	t.Parallel()

	_, err := Compute(Input{
		Installed: addontest.Catalog(t, addontest.Installed("A", "1.0.0")),
		Candidates: addontest.Catalog(t,
			addontest.New("A", "2.0.0"),
			addontest.New("D", "1.0.0", addontest.DependsOn("A", "<2")),
			addontest.New("E", "1.0.0", addontest.DependsOn("A", ">=2")),
		),
		Host:      host,
		Requested: []string{"D", "E"},
		Mode:      ModeInstall,
	})
	if !errors.Is(err, ErrUnsatisfiableDependency) {
		t.Fatalf("Compute() error = %v, want ErrUnsatisfiableDependency", err)
	}
	var ue *UnsatisfiableError
	if !errors.As(err, &ue) || ue.AddOn != "D" || ue.Dependency.ID != "A" {
		t.Errorf("error = %#v, want D's dependency on A", ue)
	}
}

func TestComputeHostIncompatible(t *testing.T) {
	t.Parallel()

	cs, err := Compute(Input{
		Candidates: addontest.Catalog(t,
			addontest.New("A", "1.0.0", addontest.WithHostRange("3.0.0", "")),
			addontest.New("B", "1.0.0", addontest.DependsOn("A", "")),
		),
		Host:      host,
		Requested: []string{"A", "B"},
		Mode:      ModeInstall,
	})
	if err != nil {
		t.Fatalf("Compute() error: %v", err)
	}
	if !cs.RequiresNewerHost || !cs.NeedsConfirmation() {
		t.Error("RequiresNewerHost should be set")
	}
	if len(cs.Installs) != 0 {
		t.Errorf("incompatible add-ons must never be installed, got %v", ids(cs.Installs))
	}
	if got := ids(cs.Incompatible); !slices.Equal(got, []string{"A@1.0.0"}) {
		t.Errorf("Incompatible = %v", got)
	}
	if got := cs.HeldIDs(); !slices.Equal(got, []string{"B"}) {
		t.Errorf("Held = %v, want [B]", got)
	}
	if !errors.Is(cs.Held[0].Reason, addon.ErrHostVersionIncompatible) {
		t.Errorf("hold reason = %v", cs.Held[0].Reason)
	}
}

func TestComputeUpdateDisplacesDependent(t *testing.T) {
	t.Parallel()

	installed := addontest.Catalog(t,
		addontest.Installed("A", "1.0.0"),
		addontest.Installed("B", "1.0.0", addontest.DependsOn("A", ">=1 <2")),
	)
	candidates := addontest.Catalog(t,
		addontest.New("A", "2.0.0"),
		addontest.New("B", "1.0.0", addontest.DependsOn("A", ">=1 <2")),
	)

	t.Run("unconfirmed", func(t *testing.T) {
		t.Parallel()

		cs, err := Compute(Input{Installed: installed, Candidates: candidates, Host: host, Mode: ModeUpdate})
		if err != nil {
			t.Fatalf("Compute() error: %v", err)
		}
		if got := ids(cs.Uninstalls); !slices.Equal(got, []string{"B@1.0.0"}) {
			t.Errorf("Uninstalls = %v, want [B@1.0.0]", got)
		}
		if len(cs.NewVersions) != 0 {
			t.Errorf("NewVersions = %v, want none", ids(cs.NewVersions))
		}
		if !cs.NeedsConfirmation() || cs.Confirmed {
			t.Error("displacing a dependent requires confirmation")
		}
		if len(cs.Removals()) != 0 {
			t.Errorf("Removals() = %v, preview must not be applied", ids(cs.Removals()))
		}
		if got := cs.HeldIDs(); !slices.Equal(got, []string{"A"}) {
			t.Fatalf("Held = %v, want [A]", got)
		}
		if !errors.Is(cs.Held[0].Reason, ErrDisplacesDependents) {
			t.Errorf("hold reason = %v", cs.Held[0].Reason)
		}
	})

	t.Run("confirmed", func(t *testing.T) {
		t.Parallel()

		cs, err := Compute(Input{
			Installed: installed, Candidates: candidates, Host: host,
			Mode: ModeUpdate, AllowUninstalls: true,
		})
		if err != nil {
			t.Fatalf("Compute() error: %v", err)
		}
		if got := ids(cs.Uninstalls); !slices.Equal(got, []string{"B@1.0.0"}) {
			t.Errorf("Uninstalls = %v", got)
		}
		if got := ids(cs.NewVersions); !slices.Equal(got, []string{"A@2.0.0"}) {
			t.Errorf("NewVersions = %v", got)
		}
		if got := ids(cs.OldVersions); !slices.Equal(got, []string{"A@1.0.0"}) {
			t.Errorf("OldVersions = %v", got)
		}
		if !cs.Confirmed {
			t.Error("change-set computed with AllowUninstalls should be confirmed")
		}
		if got := ids(cs.Removals()); !slices.Equal(got, []string{"B@1.0.0"}) {
			t.Errorf("Removals() = %v", got)
		}
	})
}

func TestComputeUpdateReplacesDependent(t *testing.T) {
	t.Parallel()

	cs, err := Compute(Input{
		Installed: addontest.Catalog(t,
			addontest.Installed("A", "1.0.0"),
			addontest.Installed("B", "1.0.0", addontest.DependsOn("A", ">=1 <2")),
		),
		Candidates: addontest.Catalog(t,
			addontest.New("A", "2.0.0"),
			addontest.New("B", "2.0.0", addontest.DependsOn("A", ">=2")),
		),
		Host:      host,
		Requested: []string{"A"},
		Mode:      ModeUpdate,
	})
	if err != nil {
		t.Fatalf("Compute() error: %v", err)
	}
	if len(cs.Uninstalls) != 0 {
		t.Errorf("Uninstalls = %v, want none", ids(cs.Uninstalls))
	}
	if got := ids(cs.NewVersions); !slices.Equal(got, []string{"A@2.0.0", "B@2.0.0"}) {
		t.Errorf("NewVersions = %v", got)
	}
	if got := ids(cs.OldVersions); !slices.Equal(got, []string{"A@1.0.0", "B@1.0.0"}) {
		t.Errorf("OldVersions = %v", got)
	}
	if cs.NeedsConfirmation() {
		t.Error("a clean upgrade needs no confirmation")
	}
}

func TestComputeUpdateTransitiveDisplacement(t *testing.T) {
	t.Parallel()

	cs, err := Compute(Input{
		Installed: addontest.Catalog(t,
			addontest.Installed("A", "1.0.0"),
			addontest.Installed("B", "1.0.0", addontest.DependsOn("A", "^1")),
			addontest.Installed("C", "1.0.0", addontest.DependsOn("B", "")),
			addontest.Installed("D", "1.0.0"),
		),
		Candidates:      addontest.Catalog(t, addontest.New("A", "2.0.0")),
		Host:            host,
		Requested:       []string{"A"},
		Mode:            ModeUpdate,
		AllowUninstalls: true,
	})
	if err != nil {
		t.Fatalf("Compute() error: %v", err)
	}
	if got := ids(cs.Uninstalls); !slices.Equal(got, []string{"C@1.0.0", "B@1.0.0"}) {
		t.Errorf("Uninstalls = %v, want dependents first [C B]", got)
	}
}

func TestComputeUpdateHeldOnMissingDependency(t *testing.T) {
	t.Parallel()

	cs, err := Compute(Input{
		Installed: addontest.Catalog(t, addontest.Installed("A", "1.0.0"), addontest.Installed("X", "1.0.0")),
		Candidates: addontest.Catalog(t,
			addontest.New("A", "2.0.0", addontest.DependsOn("Z", "")),
			addontest.New("X", "1.1.0"),
		),
		Host: host,
		Mode: ModeUpdate,
	})
	if err != nil {
		t.Fatalf("Compute() error: %v", err)
	}
	if got := cs.HeldIDs(); !slices.Equal(got, []string{"A"}) {
		t.Errorf("Held = %v, want [A]", got)
	}
	if !errors.Is(cs.Held[0].Reason, ErrUnsatisfiableDependency) {
		t.Errorf("hold reason = %v", cs.Held[0].Reason)
	}
	if got := ids(cs.NewVersions); !slices.Equal(got, []string{"X@1.1.0"}) {
		t.Errorf("NewVersions = %v, the rest of the batch should proceed", got)
	}
}

func TestComputeUpdateSkipsCurrent(t *testing.T) {
	t.Parallel()

	cs, err := Compute(Input{
		Installed:  addontest.Catalog(t, addontest.Installed("A", "1.0.0"), addontest.New("N", "1.0.0")),
		Candidates: addontest.Catalog(t, addontest.New("A", "1.0.0"), addontest.New("N", "2.0.0")),
		Host:       host,
		Mode:       ModeUpdate,
	})
	if err != nil {
		t.Fatalf("Compute() error: %v", err)
	}
	if !cs.IsEmpty() {
		t.Errorf("expected an empty change-set, got %+v", cs)
	}
}

func TestComputeUninstall(t *testing.T) {
	t.Parallel()

	installed := addontest.Catalog(t,
		addontest.Installed("A", "1.0.0"),
		addontest.Installed("B", "1.0.0", addontest.DependsOn("A", "")),
		addontest.Installed("C", "1.0.0", addontest.DependsOn("B", ""), addontest.WithStatus(addon.StatusSoftUninstalled)),
		addontest.Installed("D", "1.0.0"),
	)

	cs, err := Compute(Input{Installed: installed, Requested: []string{"A"}, Mode: ModeUninstall})
	if err != nil {
		t.Fatalf("Compute() error: %v", err)
	}
	if got := ids(cs.Uninstalls); !slices.Equal(got, []string{"C@1.0.0", "B@1.0.0", "A@1.0.0"}) {
		t.Errorf("Uninstalls = %v", got)
	}
	if !cs.NeedsConfirmation() {
		t.Error("removing unrequested dependents needs confirmation")
	}

	cs, err = Compute(Input{Installed: installed, Requested: []string{"D"}, Mode: ModeUninstall})
	if err != nil {
		t.Fatalf("Compute() error: %v", err)
	}
	if cs.NeedsConfirmation() {
		t.Error("removing only the requested add-on needs no confirmation")
	}
	if got := ids(cs.Removals()); !slices.Equal(got, []string{"D@1.0.0"}) {
		t.Errorf("Removals() = %v", got)
	}

	if _, err := Compute(Input{Installed: installed, Requested: []string{"nope"}, Mode: ModeUninstall}); !errors.Is(err, ErrNotInstalled) {
		t.Errorf("Compute(nope) error = %v, want ErrNotInstalled", err)
	}
}

func TestComputeDeterministic(t *testing.T) {
	t.Parallel()

	in := Input{
		Candidates: addontest.Catalog(t,
			addontest.New("a", "1.0.0"),
			addontest.New("b", "1.0.0", addontest.DependsOn("a", "")),
			addontest.New("c", "1.0.0", addontest.DependsOn("a", "")),
			addontest.New("d", "1.0.0", addontest.DependsOn("b", ""), addontest.DependsOn("c", "")),
		),
		Host:      host,
		Requested: []string{"d", "c"},
		Mode:      ModeInstall,
	}

	first, err := Compute(in)
	if err != nil {
		t.Fatalf("Compute() error: %v", err)
	}
	want := []string{"a@1.0.0", "b@1.0.0", "c@1.0.0", "d@1.0.0"}
	for range 10 {
		cs, err := Compute(in)
		if err != nil {
			t.Fatalf("Compute() error: %v", err)
		}
		if got := ids(cs.Installs); !slices.Equal(got, want) || !slices.Equal(got, ids(first.Installs)) {
			t.Fatalf("Installs = %v, want %v", got, want)
		}
	}
}

func TestComputeCycle(t *testing.T) {
	t.Parallel()

	_, err := Compute(Input{
		Candidates: addontest.Catalog(t,
			addontest.New("a", "1.0.0", addontest.DependsOn("b", "")),
			addontest.New("b", "1.0.0", addontest.DependsOn("a", "")),
		),
		Requested: []string{"a"},
		Mode:      ModeInstall,
	})
	if err == nil {
		t.Fatal("expected a cycle error")
	}
}
