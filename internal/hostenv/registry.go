// SPDX-License-Identifier: MPL-2.0

package hostenv

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/exp/maps"
)

var (
	// ErrAlreadyRegistered is returned when an item with the same key is registered twice.
	ErrAlreadyRegistered = errors.New("already registered")
	// ErrNotRegistered is returned when unregistering an unknown item.
	ErrNotRegistered = errors.New("not registered")
)

type (
	// Registry is the minimal capability the host exposes for one kind of
	// add-on component.
	Registry[T any] interface {
		Register(item T) error
		Unregister(item T) error
		IsRegistered(item T) bool
	}

	// MemoryRegistry is an in-memory Registry keyed by a string derived from
	// each item. It is safe for concurrent use.
	MemoryRegistry[T any] struct {
		mu    sync.RWMutex
		key   func(T) string
		items map[string]T
	}

	// Bundle is a set of messages registered under a prefix.
	Bundle struct {
		Prefix   string
		Messages map[string]string
	}
)

// NewMemoryRegistry creates a registry keyed by key.
func NewMemoryRegistry[T any](key func(T) string) *MemoryRegistry[T] {
	return &MemoryRegistry[T]{key: key, items: make(map[string]T)}
}

// Register adds item.
func (r *MemoryRegistry[T]) Register(item T) error {
	k := r.key(item)
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[k]; ok {
		return fmt.Errorf("%s: %w", k, ErrAlreadyRegistered)
	}
	r.items[k] = item
	return nil
}

// Unregister removes item.
func (r *MemoryRegistry[T]) Unregister(item T) error {
	k := r.key(item)
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[k]; !ok {
		return fmt.Errorf("%s: %w", k, ErrNotRegistered)
	}
	delete(r.items, k)
	return nil
}

// IsRegistered reports whether an item with the same key is registered.
func (r *MemoryRegistry[T]) IsRegistered(item T) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.items[r.key(item)]
	return ok
}

// Get returns the item registered under k.
func (r *MemoryRegistry[T]) Get(k string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[k]
	return item, ok
}

// Keys returns the registered keys in sorted order.
func (r *MemoryRegistry[T]) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := maps.Keys(r.items)
	slices.Sort(keys)
	return keys
}

// Len returns the number of registered items.
func (r *MemoryRegistry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// NewExtensionRegistry returns a registry keyed by extension name.
func NewExtensionRegistry() *MemoryRegistry[Extension] {
	return NewMemoryRegistry(func(e Extension) string { return e.Name() })
}

// NewActiveScanRuleRegistry returns a registry of active scan rule names.
func NewActiveScanRuleRegistry() *MemoryRegistry[string] {
	return NewMemoryRegistry(func(name string) string { return name })
}

// NewPassiveScanRuleRegistry returns a registry keyed by passive rule name.
func NewPassiveScanRuleRegistry() *MemoryRegistry[PassiveScanRule] {
	return NewMemoryRegistry(func(r PassiveScanRule) string { return r.Name() })
}

// NewBundleRegistry returns a registry keyed by bundle prefix.
func NewBundleRegistry() *MemoryRegistry[Bundle] {
	return NewMemoryRegistry(func(b Bundle) string { return b.Prefix })
}
