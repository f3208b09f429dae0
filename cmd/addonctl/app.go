// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/invowk/addonctl/internal/config"
	"github.com/invowk/addonctl/internal/download"
	"github.com/invowk/addonctl/internal/fetch"
	"github.com/invowk/addonctl/internal/hostenv"
	"github.com/invowk/addonctl/internal/issue"
	"github.com/invowk/addonctl/internal/ledger"
	"github.com/invowk/addonctl/internal/lifecycle"
	"github.com/invowk/addonctl/internal/update"
	"github.com/invowk/addonctl/pkg/addon"
)

// StateFileName is the installed-state file kept in the archive directory.
const StateFileName = "installed.toml"

type (
	// App wires CLI services and shared dependencies. It is the composition
	// root for the CLI layer: every command handler receives an App and
	// opens a session through it.
	App struct {
		Config     config.Provider
		stdout     io.Writer
		stderr     io.Writer
		stdin      io.Reader
		httpClient *http.Client

		// Set by the persistent flags of the root command.
		verbose    bool
		configPath string
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config config.Provider
		Stdout io.Writer
		Stderr io.Writer
		Stdin  io.Reader
		// HTTPClient replaces the client used for catalogs and archives.
		HTTPClient *http.Client
	}

	// session holds the services one command runs against. Close releases
	// them.
	session struct {
		cfg       *config.Config
		verbose   bool
		logger    *log.Logger
		host      *hostenv.Host
		downloads *download.Manager
		ledger    *ledger.Ledger
		coord     *update.Coordinator
		notifier  *consoleNotifier
		metrics   *prometheus.Registry
		stop      context.CancelFunc
		closeOnce sync.Once
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Stdin == nil {
		deps.Stdin = os.Stdin
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	return &App{
		Config:     deps.Config,
		stdout:     deps.Stdout,
		stderr:     deps.Stderr,
		stdin:      deps.Stdin,
		httpClient: deps.HTTPClient,
	}
}

// loadConfig loads the configuration honoring --config and resolves the
// default data locations.
func (a *App) loadConfig(ctx context.Context) (*config.Config, string, error) {
	cfg, path, err := a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: a.configPath})
	if err != nil {
		return nil, "", err
	}
	if err := cfg.ResolvePaths(); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("resolve data directory").
			WithSuggestion("Set managed_root, archive_dir and ledger_path in the config file").
			Wrap(err).
			BuildError()
	}
	return cfg, path, nil
}

// newLogger builds the command logger. Verbose output adds debug messages
// and timestamps.
func newLogger(w io.Writer, verbose bool) *log.Logger {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	return log.NewWithOptions(w, log.Options{
		Prefix:          "addonctl",
		Level:           level,
		ReportTimestamp: verbose,
		TimeFormat:      time.Kitchen,
	})
}

// open builds a session: host environment, orchestrator, fetcher, download
// manager, journal and update coordinator, then restores the installed
// add-ons from the state file.
func (a *App) open(ctx context.Context) (_ *session, err error) {
	cfg, _, err := a.loadConfig(ctx)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, verbose: a.verbose || cfg.UI.Verbose}
	s.logger = newLogger(a.stderr, s.verbose)
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	s.host, err = hostenv.New(hostenv.Options{
		Version: string(cfg.HostVersion),
		RootDir: cfg.ManagedRoot.String(),
		Logger:  s.logger.WithPrefix("host"),
	})
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("prepare managed root").
			WithResource(cfg.ManagedRoot.String()).
			WithSuggestion("Check that the managed root is a writable directory").
			Wrap(err).
			BuildError()
	}
	orch := lifecycle.New(s.host, lifecycle.WithLogger(s.logger.WithPrefix("lifecycle")))

	fetchOpts := []fetch.Option{fetch.WithUserAgent("addonctl/" + Version)}
	if a.httpClient != nil {
		fetchOpts = append(fetchOpts, fetch.WithHTTPClient(a.httpClient))
	}
	fetcher := fetch.New(fetchOpts...)

	s.metrics = prometheus.NewRegistry()
	s.downloads = download.New(fetcher,
		download.WithWorkers(cfg.Downloads.Workers),
		download.WithLogger(s.logger.WithPrefix("downloads")),
		download.WithRegisterer(s.metrics),
	)
	runCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	s.stop = stop
	s.downloads.Start(runCtx)

	s.ledger, err = ledger.Open(ctx, cfg.LedgerPath.String())
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("open install journal").
			WithResource(cfg.LedgerPath.String()).
			Wrap(err).
			BuildError()
	}

	s.notifier = &consoleNotifier{w: a.stdout}
	archiveDir := cfg.ArchiveDir.String()
	s.coord = update.New(update.Options{
		CatalogURLs:         cfg.URLs(),
		ArchiveDir:          archiveDir,
		StatePath:           filepath.Join(archiveDir, StateFileName),
		CheckAddOnUpdates:   cfg.CheckAddOnUpdates,
		InstallAddOnUpdates: cfg.InstallAddOnUpdates,
		InstallScanRules:    cfg.InstallScanRules,
		ReportAlpha:         cfg.ReportAlpha,
		ReportBeta:          cfg.ReportBeta,
		ReportRelease:       cfg.ReportRelease,
		DownloadNewRelease:  cfg.DownloadNewRelease,
		ProgressInterval:    cfg.Downloads.PollInterval,
	}, update.Deps{
		Host:         s.host,
		Fetcher:      fetcher,
		Downloads:    s.downloads,
		Orchestrator: orch,
		Ledger:       s.ledger,
		Notifier:     s.notifier,
		Progress:     lifecycle.LogProgress{Logger: s.logger.WithPrefix("uninstall")},
		Logger:       s.logger,
	})

	if _, err := s.coord.Restore(ctx); err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("restore installed add-ons").
			WithResource(filepath.Join(archiveDir, StateFileName)).
			WithSuggestion("Remove the state file to start from an empty installation").
			Wrap(err).
			BuildError()
	}
	if cfg.CheckOnStart && len(cfg.CatalogURLs) > 0 {
		s.coord.FetchLatest(runCtx)
	}
	return s, nil
}

// latest waits for the remote catalog and wraps failures for display.
func (s *session) latest(ctx context.Context) (*addon.Catalog, error) {
	cat, err := s.coord.Latest(ctx)
	if err == nil {
		return cat, nil
	}
	ec := issue.NewErrorContext().WithOperation("load catalog").Wrap(err)
	switch {
	case errors.Is(err, update.ErrNoCatalogURL):
		ec.WithSuggestion("Add an https URL to catalog_urls in the config file (addonctl config path)")
	case errors.Is(err, update.ErrLatestTimeout):
		ec.WithSuggestion("Check your network connection and try again")
	}
	return nil, ec.BuildError()
}

// wait blocks until every scheduled archive is downloaded and installed.
func (s *session) wait(ctx context.Context) (*lifecycle.Report, error) {
	return s.coord.WaitForDownloads(ctx, func(active int) {
		s.logger.Debug("downloading", "active", active)
	})
}

// Close stops the download manager and releases the journal and host.
// Calls after the first do nothing.
func (s *session) Close() {
	s.closeOnce.Do(s.close)
}

func (s *session) close() {
	if s.downloads != nil {
		s.downloads.Shutdown(false)
		if s.verbose {
			s.logMetrics()
		}
	}
	if s.stop != nil {
		s.stop()
	}
	if s.ledger != nil {
		if err := s.ledger.Close(); err != nil {
			s.logger.Warn("closing journal", "err", err)
		}
	}
	if s.host != nil {
		s.host.Close()
	}
}

// logMetrics writes the download counters at debug level.
func (s *session) logMetrics() {
	families, err := s.metrics.Gather()
	if err != nil {
		s.logger.Debug("metrics unavailable", "err", err)
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var value float64
			switch {
			case m.GetCounter() != nil:
				value = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				value = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				value = float64(m.GetHistogram().GetSampleCount())
			default:
				continue
			}
			kv := []any{"value", value}
			for _, lp := range m.GetLabel() {
				kv = append(kv, lp.GetName(), lp.GetValue())
			}
			s.logger.Debug(mf.GetName(), kv...)
		}
	}
}
