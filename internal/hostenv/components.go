// SPDX-License-Identifier: MPL-2.0

package hostenv

import (
	"context"
	"sync/atomic"

	"github.com/invowk/addonctl/pkg/addon"
)

type (
	// Extension is a code component contributed by an add-on.
	Extension interface {
		Name() string
		Enabled() bool
		// Start initializes and hooks the extension into the host.
		Start(ctx context.Context) error
		// PostInstall runs once after every component of the add-on is loaded.
		PostInstall(ctx context.Context) error
		// CanUnload reports whether the extension can be removed without a restart.
		CanUnload() bool
		Unload(ctx context.Context) error
	}

	// PassiveScanRule is a passive scan rule instance.
	PassiveScanRule interface {
		Name() string
	}

	// ComponentFactory instantiates the components an add-on declares.
	ComponentFactory interface {
		NewExtension(a *addon.AddOn, name string) (Extension, error)
		NewPassiveScanRule(a *addon.AddOn, name string) (PassiveScanRule, error)
	}

	// HeadlessFactory creates inert components for hosts that only track
	// registrations, such as the command line tool.
	HeadlessFactory struct{}

	headlessExtension struct {
		name    string
		started atomic.Bool
	}

	headlessRule string
)

// NewExtension implements ComponentFactory.
func (HeadlessFactory) NewExtension(_ *addon.AddOn, name string) (Extension, error) {
	return &headlessExtension{name: name}, nil
}

// NewPassiveScanRule implements ComponentFactory.
func (HeadlessFactory) NewPassiveScanRule(_ *addon.AddOn, name string) (PassiveScanRule, error) {
	return headlessRule(name), nil
}

func (e *headlessExtension) Name() string  { return e.name }
func (e *headlessExtension) Enabled() bool { return true }
func (e *headlessExtension) CanUnload() bool {
	return true
}

func (e *headlessExtension) Start(context.Context) error {
	e.started.Store(true)
	return nil
}

func (e *headlessExtension) PostInstall(context.Context) error { return nil }

func (e *headlessExtension) Unload(context.Context) error {
	e.started.Store(false)
	return nil
}

func (r headlessRule) Name() string { return string(r) }
