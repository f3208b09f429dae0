// SPDX-License-Identifier: MPL-2.0

package hostenv

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/invowk/addonctl/pkg/addon"
)

type (
	// Host is the context object the lifecycle operations run against. It
	// replaces the globals a desktop host would expose: the component
	// registries, the managed file root and the thread dispatcher.
	Host struct {
		Version          *addon.Version
		Root             *ManagedRoot
		Extensions       Registry[Extension]
		ActiveScanRules  Registry[string]
		PassiveScanRules Registry[PassiveScanRule] // nil when the host has no passive scanner
		Bundles          Registry[Bundle]
		Factory          ComponentFactory
		Dispatcher       Dispatcher
		Logger           *log.Logger
	}

	// Options configure New.
	Options struct {
		// Version is the running host version (required).
		Version string
		// RootDir is the managed root directory (required).
		RootDir string
		// NoPassiveScanner leaves PassiveScanRules nil.
		NoPassiveScanner bool
		Factory          ComponentFactory
		Dispatcher       Dispatcher
		Logger           *log.Logger
	}
)

// New builds a Host with in-memory registries.
func New(opts Options) (*Host, error) {
	if opts.Version == "" {
		return nil, errors.New("host version is required")
	}
	v, err := addon.ParseVersion(opts.Version)
	if err != nil {
		return nil, fmt.Errorf("host version: %w", err)
	}
	if opts.RootDir == "" {
		return nil, errors.New("managed root is required")
	}
	root, err := NewManagedRoot(opts.RootDir)
	if err != nil {
		return nil, err
	}

	h := &Host{
		Version:         v,
		Root:            root,
		Extensions:      NewExtensionRegistry(),
		ActiveScanRules: NewActiveScanRuleRegistry(),
		Bundles:         NewBundleRegistry(),
		Factory:         opts.Factory,
		Dispatcher:      opts.Dispatcher,
		Logger:          opts.Logger,
	}
	if !opts.NoPassiveScanner {
		h.PassiveScanRules = NewPassiveScanRuleRegistry()
	}
	if h.Factory == nil {
		h.Factory = HeadlessFactory{}
	}
	if h.Dispatcher == nil {
		h.Dispatcher = Inline{}
	}
	if h.Logger == nil {
		h.Logger = log.NewWithOptions(io.Discard, log.Options{Prefix: "host"})
	}
	return h, nil
}

// Close stops an owner-loop dispatcher.
func (h *Host) Close() {
	if l, ok := h.Dispatcher.(*OwnerLoop); ok {
		l.Stop()
	}
}
