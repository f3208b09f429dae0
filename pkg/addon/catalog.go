// SPDX-License-Identifier: MPL-2.0

package addon

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/exp/maps"
)

type (
	// Release describes a host release advertised by a remote catalog.
	Release struct {
		Version  *Version
		FileName string
		URL      string
		Size     int64
		Hash     string
		Notes    string
	}

	// Catalog is an immutable set of add-ons keyed by ID. Mutating methods
	// return a new Catalog and leave the receiver untouched, so a Catalog can
	// be shared between goroutines without locking.
	Catalog struct {
		addOns  map[string]*AddOn
		release *Release
	}
)

// NewCatalog builds a catalog from the given add-ons. It fails when two
// entries share an ID.
func NewCatalog(addOns ...*AddOn) (*Catalog, error) {
	c := &Catalog{addOns: make(map[string]*AddOn, len(addOns))}
	for _, a := range addOns {
		if _, dup := c.addOns[a.ID]; dup {
			return nil, fmt.Errorf("duplicate add-on id %q", a.ID)
		}
		c.addOns[a.ID] = a
	}
	return c, nil
}

// MustCatalog is like NewCatalog but panics on duplicate IDs.
func MustCatalog(addOns ...*AddOn) *Catalog {
	c, err := NewCatalog(addOns...)
	if err != nil {
		panic(err)
	}
	return c
}

// EmptyCatalog returns a catalog without entries.
func EmptyCatalog() *Catalog {
	return &Catalog{addOns: map[string]*AddOn{}}
}

// Len returns the number of add-ons.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.addOns)
}

// Get returns the add-on with the given ID.
func (c *Catalog) Get(id string) (*AddOn, bool) {
	if c == nil {
		return nil, false
	}
	a, ok := c.addOns[id]
	return a, ok
}

// Has reports whether the catalog contains id.
func (c *Catalog) Has(id string) bool {
	_, ok := c.Get(id)
	return ok
}

// IDs returns the sorted add-on IDs.
func (c *Catalog) IDs() []string {
	if c == nil {
		return nil
	}
	ids := maps.Keys(c.addOns)
	slices.Sort(ids)
	return ids
}

// AddOns returns the add-ons sorted by ID.
func (c *Catalog) AddOns() []*AddOn {
	ids := c.IDs()
	out := make([]*AddOn, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.addOns[id])
	}
	return out
}

// Installed returns the add-ons whose status is installed or soft-uninstalled.
func (c *Catalog) Installed() []*AddOn {
	var out []*AddOn
	for _, a := range c.AddOns() {
		if a.Status.HasLoadedComponents() {
			out = append(out, a)
		}
	}
	return out
}

// Release returns the advertised host release, if any.
func (c *Catalog) Release() *Release {
	if c == nil {
		return nil
	}
	return c.release
}

// WithRelease returns a copy of c advertising r.
func (c *Catalog) WithRelease(r *Release) *Catalog {
	n := c.clone()
	n.release = r
	return n
}

// With returns a copy of c where a replaces any entry with the same ID.
func (c *Catalog) With(a *AddOn) *Catalog {
	n := c.clone()
	n.addOns[a.ID] = a
	return n
}

// Without returns a copy of c without id.
func (c *Catalog) Without(id string) *Catalog {
	n := c.clone()
	delete(n.addOns, id)
	return n
}

// WithStatus returns a copy of c where the add-on id has status s. The
// change must be a legal transition.
func (c *Catalog) WithStatus(id string, s Status) (*Catalog, error) {
	a, ok := c.Get(id)
	if !ok {
		return nil, fmt.Errorf("add-on %q not in catalog", id)
	}
	updated, err := a.WithStatus(s)
	if err != nil {
		return nil, err
	}
	return c.With(updated), nil
}

// Dependents returns the add-ons of c that declare a dependency on id,
// sorted by ID.
func (c *Catalog) Dependents(id string) []*AddOn {
	var out []*AddOn
	for _, a := range c.AddOns() {
		if a.DependsOn(id) {
			out = append(out, a)
		}
	}
	return out
}

// DependentsClosure returns every add-on of c that directly or transitively
// depends on one of the given IDs. The given add-ons are not included.
func (c *Catalog) DependentsClosure(ids ...string) []*AddOn {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	var out []*AddOn
	queue := slices.Clone(ids)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, dep := range c.Dependents(id) {
			if seen[dep.ID] {
				continue
			}
			seen[dep.ID] = true
			out = append(out, dep)
			queue = append(queue, dep.ID)
		}
	}
	slices.SortFunc(out, func(a, b *AddOn) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// UpdatedIn returns the add-ons of c for which remote holds a newer release.
// The remote entries are returned.
func (c *Catalog) UpdatedIn(remote *Catalog) []*AddOn {
	var out []*AddOn
	for _, local := range c.AddOns() {
		if r, ok := remote.Get(local.ID); ok && r.IsNewerThan(local) {
			out = append(out, r)
		}
	}
	return out
}

// NewIn returns the add-ons of remote that c does not know about.
func (c *Catalog) NewIn(remote *Catalog) []*AddOn {
	var out []*AddOn
	for _, r := range remote.AddOns() {
		if !c.Has(r.ID) {
			out = append(out, r)
		}
	}
	return out
}

// FileOwners returns the IDs of installed add-ons, other than exceptID,
// that declare path.
func (c *Catalog) FileOwners(path, exceptID string) []string {
	var owners []string
	for _, a := range c.Installed() {
		if a.ID != exceptID && a.DeclaresFile(path) {
			owners = append(owners, a.ID)
		}
	}
	return owners
}

func (c *Catalog) clone() *Catalog {
	n := &Catalog{addOns: make(map[string]*AddOn, c.Len()+1)}
	if c != nil {
		for id, a := range c.addOns {
			n.addOns[id] = a
		}
		n.release = c.release
	}
	return n
}
