// SPDX-License-Identifier: MPL-2.0

package addon

import (
	"errors"
	"slices"
	"sync"
	"testing"
)

func entry(id, version string, status Status, deps ...string) *AddOn {
	a := &AddOn{ID: id, Version: MustParseVersion(version), Status: status}
	for _, d := range deps {
		a.Dependencies = append(a.Dependencies, Dependency{ID: d})
	}
	return a
}

func ids(addOns []*AddOn) []string {
	out := make([]string, 0, len(addOns))
	for _, a := range addOns {
		out = append(out, a.ID)
	}
	return out
}

func TestNewCatalogDuplicate(t *testing.T) {
	t.Parallel()

	_, err := NewCatalog(entry("a", "1", StatusAvailable), entry("a", "2", StatusAvailable))
	if err == nil {
		t.Fatal("expected duplicate id error")
	}
}

func TestCatalogViews(t *testing.T) {
	t.Parallel()

	c := MustCatalog(
		entry("c", "1.0.0", StatusInstalled, "a"),
		entry("a", "1.0.0", StatusInstalled),
		entry("b", "1.0.0", StatusSoftUninstalled, "a"),
		entry("d", "1.0.0", StatusAvailable, "c"),
	)

	if got := c.IDs(); !slices.Equal(got, []string{"a", "b", "c", "d"}) {
		t.Errorf("IDs() = %v", got)
	}
	if got := ids(c.Installed()); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("Installed() = %v", got)
	}
	if got := ids(c.Dependents("a")); !slices.Equal(got, []string{"b", "c"}) {
		t.Errorf("Dependents(a) = %v", got)
	}
	if got := ids(c.DependentsClosure("a")); !slices.Equal(got, []string{"b", "c", "d"}) {
		t.Errorf("DependentsClosure(a) = %v", got)
	}
}

func TestCatalogCopyOnWrite(t *testing.T) {
	t.Parallel()

	orig := MustCatalog(entry("a", "1.0.0", StatusInstalled))
	added := orig.With(entry("b", "1.0.0", StatusAvailable))
	removed := added.Without("a")

	if orig.Len() != 1 || added.Len() != 2 || removed.Len() != 1 {
		t.Fatalf("lengths = %d, %d, %d", orig.Len(), added.Len(), removed.Len())
	}
	if !removed.Has("b") || removed.Has("a") {
		t.Error("Without removed the wrong entry")
	}

	soft, err := orig.WithStatus("a", StatusSoftUninstalled)
	if err != nil {
		t.Fatalf("WithStatus() error: %v", err)
	}
	if a, _ := orig.Get("a"); a.Status != StatusInstalled {
		t.Error("WithStatus modified the original catalog")
	}
	if a, _ := soft.Get("a"); a.Status != StatusSoftUninstalled {
		t.Errorf("status = %s", a.Status)
	}

	if _, err := orig.WithStatus("a", StatusDownloading); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("WithStatus(downloading) error = %v, want ErrInvalidTransition", err)
	}
	if _, err := orig.WithStatus("missing", StatusInstalled); err == nil {
		t.Error("WithStatus on a missing id should fail")
	}
}

func TestCatalogUpdatedAndNew(t *testing.T) {
	t.Parallel()

	local := MustCatalog(
		entry("a", "1.0.0", StatusInstalled),
		entry("b", "2.0.0", StatusInstalled),
	)
	remote := MustCatalog(
		entry("a", "1.1.0", StatusAvailable),
		entry("b", "2.0.0", StatusAvailable),
		entry("z", "0.1.0", StatusAvailable),
	)

	updated := local.UpdatedIn(remote)
	if got := ids(updated); !slices.Equal(got, []string{"a"}) {
		t.Fatalf("UpdatedIn() = %v", got)
	}
	if updated[0].Version.String() != "1.1.0" {
		t.Errorf("UpdatedIn returned %s, want the remote entry", updated[0])
	}
	if got := ids(local.NewIn(remote)); !slices.Equal(got, []string{"z"}) {
		t.Errorf("NewIn() = %v", got)
	}
}

func TestCatalogFileOwners(t *testing.T) {
	t.Parallel()

	a := entry("a", "1.0.0", StatusInstalled)
	a.Files = []string{"lib/shared.jar", "lib/a.jar"}
	b := entry("b", "1.0.0", StatusInstalled)
	b.Files = []string{"lib/shared.jar"}
	c := entry("c", "1.0.0", StatusUninstalled)
	c.Files = []string{"lib/a.jar"}
	cat := MustCatalog(a, b, c)

	if got := cat.FileOwners("lib/shared.jar", "a"); !slices.Equal(got, []string{"b"}) {
		t.Errorf("FileOwners(shared) = %v", got)
	}
	if got := cat.FileOwners("lib/a.jar", "a"); len(got) != 0 {
		t.Errorf("uninstalled add-ons do not own files, got %v", got)
	}
}

func TestStoreUpdate(t *testing.T) {
	t.Parallel()

	s := NewStore(nil)
	if s.Load().Len() != 0 {
		t.Fatal("new store should hold an empty catalog")
	}

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Update(func(c *Catalog) (*Catalog, error) {
				return c.With(entry(string(rune('a'+i)), "1.0.0", StatusAvailable)), nil
			})
		}()
	}
	wg.Wait()

	if got := s.Load().Len(); got != 20 {
		t.Errorf("Len() = %d, want 20", got)
	}

	before := s.Load()
	boom := errors.New("boom")
	if _, err := s.Update(func(*Catalog) (*Catalog, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("Update() error = %v", err)
	}
	if s.Load() != before {
		t.Error("a failed update must keep the current catalog")
	}
}
