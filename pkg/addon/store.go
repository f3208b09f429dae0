// SPDX-License-Identifier: MPL-2.0

package addon

import (
	"sync"
	"sync/atomic"
)

// Store publishes a Catalog to many readers and one writer. Readers call Load
// without locking; writers replace the whole catalog through Update.
type Store struct {
	current atomic.Pointer[Catalog]
	writeMu sync.Mutex
}

// NewStore creates a Store holding initial (or an empty catalog when nil).
func NewStore(initial *Catalog) *Store {
	s := &Store{}
	if initial == nil {
		initial = EmptyCatalog()
	}
	s.current.Store(initial)
	return s
}

// Load returns the current catalog.
func (s *Store) Load() *Catalog {
	return s.current.Load()
}

// Replace swaps in c unconditionally.
func (s *Store) Replace(c *Catalog) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.current.Store(c)
}

// Update derives a new catalog from the current one and publishes it. When
// fn returns an error the current catalog is kept.
func (s *Store) Update(fn func(*Catalog) (*Catalog, error)) (*Catalog, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next, err := fn(s.current.Load())
	if err != nil {
		return nil, err
	}
	s.current.Store(next)
	return next, nil
}
