// SPDX-License-Identifier: MPL-2.0

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/invowk/addonctl/internal/hostenv"
	"github.com/invowk/addonctl/pkg/addon"
)

const tracerName = "github.com/invowk/addonctl/internal/lifecycle"

type (
	// Orchestrator loads and unloads add-on components against a host.
	Orchestrator struct {
		host    *hostenv.Host
		logger  *log.Logger
		bundles BundleLoader
		tracer  trace.Tracer

		mu     sync.Mutex
		loaded map[string]Components
	}

	// Components are the handles of the components loaded for one add-on.
	Components struct {
		// Extensions are kept in load order.
		Extensions       []hostenv.Extension
		ActiveScanRules  []string
		PassiveScanRules []hostenv.PassiveScanRule
	}

	// InstallOptions control Install.
	InstallOptions struct {
		// Overwrite replaces files already present under the managed root.
		Overwrite bool
	}

	// Option configures an Orchestrator.
	Option func(*Orchestrator)
)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithBundleLoader replaces the archive-backed bundle lookup.
func WithBundleLoader(b BundleLoader) Option {
	return func(o *Orchestrator) { o.bundles = b }
}

// WithTracerProvider sets the provider used for Apply spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) { o.tracer = tp.Tracer(tracerName) }
}

// New creates an Orchestrator for host.
func New(host *hostenv.Host, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		host:    host,
		logger:  host.Logger.WithPrefix("lifecycle"),
		bundles: ArchiveBundles{},
		tracer:  otel.Tracer(tracerName),
		loaded:  make(map[string]Components),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Loaded returns a copy of the components loaded for id.
func (o *Orchestrator) Loaded(id string) Components {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.loaded[id].clone()
}

// Install loads a: bundle, files, extensions, active and passive scan rules,
// then the post-install hook of every started extension. Failures are logged
// and do not stop later steps. It reports whether every step succeeded.
func (o *Orchestrator) Install(ctx context.Context, a *addon.AddOn, opts InstallOptions) bool {
	return o.dispatch(ctx, func(ctx context.Context) error { return o.install(ctx, a, opts) }) == nil
}

// Uninstall removes a in the reverse order of Install. installed is used to
// keep files that other installed add-ons declare. It reports whether the
// add-on was completely removed.
func (o *Orchestrator) Uninstall(ctx context.Context, a *addon.AddOn, progress Progress, installed *addon.Catalog) bool {
	return o.dispatch(ctx, func(ctx context.Context) error {
		_, err := o.uninstall(ctx, a, progressOrNop(progress), installed, true)
		return err
	}) == nil
}

// SoftUninstall unloads the scan rules and extensions of a, keeping its
// files and resource bundle.
func (o *Orchestrator) SoftUninstall(ctx context.Context, a *addon.AddOn, progress Progress) bool {
	return o.dispatch(ctx, func(ctx context.Context) error {
		_, err := o.uninstall(ctx, a, progressOrNop(progress), nil, false)
		return err
	}) == nil
}

// SoftReinstall loads the code components of a soft-uninstalled add-on
// again. Files and the resource bundle are left untouched.
func (o *Orchestrator) SoftReinstall(ctx context.Context, a *addon.AddOn) bool {
	return o.dispatch(ctx, func(ctx context.Context) error {
		if err := a.CheckCompatible(o.host.Version); err != nil {
			return err
		}
		return errors.Join(o.loadComponents(ctx, a)...)
	}) == nil
}

// Restore loads a previously installed add-on into a fresh host without
// touching its files: the resource bundle is registered, and the code
// components too when a is Installed. It reports whether every step
// succeeded.
func (o *Orchestrator) Restore(ctx context.Context, a *addon.AddOn) bool {
	return o.dispatch(ctx, func(ctx context.Context) error {
		if err := a.CheckCompatible(o.host.Version); err != nil {
			return err
		}
		o.registerBundle(a)
		if a.Status != addon.StatusInstalled {
			return nil
		}
		return errors.Join(o.loadComponents(ctx, a)...)
	}) == nil
}

func (o *Orchestrator) dispatch(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	if derr := o.host.Dispatcher.Run(ctx, func(ctx context.Context) { err = fn(ctx) }); derr != nil {
		return derr
	}
	return err
}

func (o *Orchestrator) install(ctx context.Context, a *addon.AddOn, opts InstallOptions) error {
	if err := a.CheckCompatible(o.host.Version); err != nil {
		o.logger.Warn("add-on not installed", "addon", a.ID, "err", err)
		return err
	}

	o.registerBundle(a)

	var errs []error
	if err := o.installFiles(a, opts.Overwrite); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, o.loadComponents(ctx, a)...)

	if len(errs) == 0 {
		o.logger.Info("add-on installed", "addon", a.ID, "version", a.Version)
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) registerBundle(a *addon.AddOn) {
	if !a.HasBundle() {
		return
	}
	messages, err := o.bundles.Load(a)
	if err != nil {
		o.logger.Warn("resource bundle not found", "addon", a.ID, "bundle", a.Bundle.BaseName, "err", err)
		return
	}
	b := hostenv.Bundle{Prefix: a.Bundle.Prefix, Messages: messages}
	if o.host.Bundles.IsRegistered(b) {
		return
	}
	if err := o.host.Bundles.Register(b); err != nil {
		o.logger.Warn("resource bundle not registered", "addon", a.ID, "prefix", b.Prefix, "err", err)
	}
}

// loadComponents runs the code-loading steps of an install. Components
// already loaded for a are kept.
func (o *Orchestrator) loadComponents(ctx context.Context, a *addon.AddOn) []error {
	comps := o.Loaded(a.ID)
	defer func() { o.store(a.ID, comps) }()

	var errs []error
	fail := func(msg, name string, err error) {
		o.logger.Warn(msg, "addon", a.ID, "name", name, "err", err)
		errs = append(errs, fmt.Errorf("add-on %s: %s: %w", a.ID, name, err))
	}

	var started []hostenv.Extension
	for _, name := range a.Extensions {
		if comps.hasExtension(name) {
			continue
		}
		ext, err := o.host.Factory.NewExtension(a, name)
		if err != nil {
			fail("extension not created", name, err)
			continue
		}
		if err := o.host.Extensions.Register(ext); err != nil {
			fail("extension not registered", name, err)
			continue
		}
		comps.Extensions = append(comps.Extensions, ext)
		if !ext.Enabled() {
			continue
		}
		if err := ext.Start(ctx); err != nil {
			fail("extension failed to start", name, err)
			continue
		}
		started = append(started, ext)
	}

	for _, name := range a.ActiveScanRules {
		if slices.Contains(comps.ActiveScanRules, name) {
			continue
		}
		if err := o.host.ActiveScanRules.Register(name); err != nil {
			fail("active scan rule not registered", name, err)
			continue
		}
		if !o.host.ActiveScanRules.IsRegistered(name) {
			fail("active scan rule not registered", name, errors.New("registration not visible"))
			continue
		}
		comps.ActiveScanRules = append(comps.ActiveScanRules, name)
	}

	if o.host.PassiveScanRules != nil {
		for _, name := range a.PassiveScanRules {
			if comps.hasPassiveRule(name) {
				continue
			}
			rule, err := o.host.Factory.NewPassiveScanRule(a, name)
			if err != nil {
				fail("passive scan rule not created", name, err)
				continue
			}
			if err := o.host.PassiveScanRules.Register(rule); err != nil {
				fail("passive scan rule not registered", name, err)
				continue
			}
			comps.PassiveScanRules = append(comps.PassiveScanRules, rule)
		}
	}

	for _, ext := range started {
		if err := ext.PostInstall(ctx); err != nil {
			fail("extension post-install failed", ext.Name(), err)
		}
	}
	return errs
}

// uninstall removes the components of a and returns the status the add-on
// ends up in. With full unset only scan rules and extensions are removed.
func (o *Orchestrator) uninstall(ctx context.Context, a *addon.AddOn, progress Progress, installed *addon.Catalog, full bool) (addon.Status, error) {
	comps := o.Loaded(a.ID)
	var errs []error

	if o.host.PassiveScanRules != nil && len(comps.PassiveScanRules) > 0 {
		progress.BeforePassiveScanRulesRemoved(len(comps.PassiveScanRules))
		for _, rule := range comps.PassiveScanRules {
			if err := o.host.PassiveScanRules.Unregister(rule); err != nil {
				o.logger.Warn("passive scan rule not unregistered", "addon", a.ID, "name", rule.Name(), "err", err)
				errs = append(errs, err)
			}
			progress.PassiveScanRuleRemoved(rule.Name())
		}
	}
	comps.PassiveScanRules = nil

	var keptRules []string
	if len(comps.ActiveScanRules) > 0 {
		progress.BeforeActiveScanRulesRemoved(len(comps.ActiveScanRules))
		for _, name := range comps.ActiveScanRules {
			if err := o.host.ActiveScanRules.Unregister(name); err != nil {
				o.logger.Warn("active scan rule not unregistered", "addon", a.ID, "name", name, "err", err)
			}
			if o.host.ActiveScanRules.IsRegistered(name) {
				o.logger.Warn("active scan rule still registered", "addon", a.ID, "name", name)
				keptRules = append(keptRules, name)
			}
			progress.ActiveScanRuleRemoved(name)
		}
	}
	comps.ActiveScanRules = keptRules

	var kept []hostenv.Extension
	if len(comps.Extensions) > 0 {
		progress.BeforeExtensionsRemoved(len(comps.Extensions))
		for _, ext := range slices.Backward(comps.Extensions) {
			if !ext.CanUnload() {
				o.logger.Info("extension cannot be unloaded without a restart", "addon", a.ID, "name", ext.Name())
				kept = append(kept, ext)
				continue
			}
			if err := ext.Unload(ctx); err != nil {
				o.logger.Warn("extension failed to unload", "addon", a.ID, "name", ext.Name(), "err", err)
				errs = append(errs, err)
				kept = append(kept, ext)
				continue
			}
			if err := o.host.Extensions.Unregister(ext); err != nil {
				errs = append(errs, err)
			}
			progress.ExtensionRemoved(ext.Name())
		}
		slices.Reverse(kept)
	}
	comps.Extensions = kept
	o.store(a.ID, comps)

	if len(kept) > 0 || len(keptRules) > 0 {
		return addon.StatusSoftUninstalled, &PartialUninstallError{
			AddOn: a.ID,
			Kept:  comps.names(),
			Err:   errors.Join(errs...),
		}
	}
	if !full {
		return addon.StatusSoftUninstalled, errors.Join(errs...)
	}

	if installed == nil {
		installed = addon.EmptyCatalog()
	}
	if err := o.removeFiles(a, progress, installed); err != nil {
		if errors.Is(err, hostenv.ErrOutsideRoot) {
			return addon.StatusSoftUninstalled, err
		}
		errs = append(errs, err)
	}

	if a.HasBundle() {
		if err := o.host.Bundles.Unregister(hostenv.Bundle{Prefix: a.Bundle.Prefix}); err != nil && !errors.Is(err, hostenv.ErrNotRegistered) {
			errs = append(errs, err)
		}
	}
	o.forget(a.ID)

	if len(errs) > 0 {
		return addon.StatusUninstalled, &PartialUninstallError{AddOn: a.ID, Err: errors.Join(errs...)}
	}
	o.logger.Info("add-on uninstalled", "addon", a.ID, "version", a.Version)
	return addon.StatusUninstalled, nil
}

func (o *Orchestrator) store(id string, c Components) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if c.empty() {
		delete(o.loaded, id)
		return
	}
	o.loaded[id] = c
}

func (o *Orchestrator) forget(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.loaded, id)
}

func progressOrNop(p Progress) Progress {
	if p == nil {
		return NopProgress{}
	}
	return p
}

func (c Components) clone() Components {
	return Components{
		Extensions:       slices.Clone(c.Extensions),
		ActiveScanRules:  slices.Clone(c.ActiveScanRules),
		PassiveScanRules: slices.Clone(c.PassiveScanRules),
	}
}

func (c Components) empty() bool {
	return len(c.Extensions) == 0 && len(c.ActiveScanRules) == 0 && len(c.PassiveScanRules) == 0
}

func (c Components) hasExtension(name string) bool {
	return slices.ContainsFunc(c.Extensions, func(e hostenv.Extension) bool { return e.Name() == name })
}

func (c Components) hasPassiveRule(name string) bool {
	return slices.ContainsFunc(c.PassiveScanRules, func(r hostenv.PassiveScanRule) bool { return r.Name() == name })
}

func (c Components) names() []string {
	var out []string
	for _, e := range c.Extensions {
		out = append(out, e.Name())
	}
	return append(out, c.ActiveScanRules...)
}
