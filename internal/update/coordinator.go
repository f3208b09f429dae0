// SPDX-License-Identifier: MPL-2.0

package update

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/invowk/addonctl/internal/download"
	"github.com/invowk/addonctl/internal/fetch"
	"github.com/invowk/addonctl/internal/hostenv"
	"github.com/invowk/addonctl/internal/ledger"
	"github.com/invowk/addonctl/internal/lifecycle"
	"github.com/invowk/addonctl/pkg/addon"
)

const (
	// SnapshotName is the file, inside the archive directory, holding the
	// last catalog seen.
	SnapshotName = "catalog.cue"

	// DefaultLatestPoll is how often Latest checks the in-flight fetch.
	DefaultLatestPoll = time.Second
	// DefaultLatestTimeout bounds how long Latest waits.
	DefaultLatestTimeout = 30 * time.Second
	// DefaultProgressInterval is the download supervision period.
	DefaultProgressInterval = 100 * time.Millisecond
)

var (
	// ErrNoCatalogURL is returned when no catalog URL is configured.
	ErrNoCatalogURL = errors.New("no catalog URL configured")
	// ErrLatestTimeout is returned when the catalog did not arrive in time.
	ErrLatestTimeout = errors.New("timed out waiting for the latest catalog")
	// ErrArchiveConflict is returned when a local archive would overwrite a
	// different file of the same name in the archive directory.
	ErrArchiveConflict = errors.New("a different archive with the same name already exists")
)

type (
	// Options mirror the update settings of the configuration.
	Options struct {
		// CatalogURLs are tried in order until one yields a catalog.
		CatalogURLs []string
		// ArchiveDir receives downloaded archives and the catalog snapshot.
		ArchiveDir string
		// StatePath is the installed-state file kept across runs. Empty
		// keeps the local catalog in memory only.
		StatePath string

		CheckAddOnUpdates   bool
		InstallAddOnUpdates bool
		// InstallScanRules installs updates of scan rule add-ons only.
		InstallScanRules bool

		ReportAlpha   bool
		ReportBeta    bool
		ReportRelease bool

		DownloadNewRelease bool

		LatestPoll       time.Duration
		LatestTimeout    time.Duration
		ProgressInterval time.Duration
	}

	// Clock is the time source used while waiting for the catalog.
	Clock interface {
		Now() time.Time
		After(d time.Duration) <-chan time.Time
	}

	// Deps are the collaborators of a Coordinator. Ledger, Notifier,
	// Progress, Clock and Logger are optional.
	Deps struct {
		Host         *hostenv.Host
		Fetcher      fetch.Fetcher
		Downloads    *download.Manager
		Orchestrator *lifecycle.Orchestrator
		Installed    *addon.Store
		Ledger       *ledger.Ledger
		Notifier     Notifier
		Progress     lifecycle.Progress
		Clock        Clock
		Logger       *log.Logger
	}

	// Coordinator drives update checks and change-set application.
	Coordinator struct {
		opts   Options
		deps   Deps
		logger *log.Logger
		remote *addon.Store

		mu       sync.Mutex
		inflight *fetchState
		previous *addon.Catalog
		batches  []*batch
		handles  map[download.Handle]*batch
		release  *pendingRelease

		consumeMu sync.Mutex
	}

	realClock struct{}
)

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// New creates a Coordinator.
func New(opts Options, deps Deps) *Coordinator {
	if opts.LatestPoll <= 0 {
		opts.LatestPoll = DefaultLatestPoll
	}
	if opts.LatestTimeout <= 0 {
		opts.LatestTimeout = DefaultLatestTimeout
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = DefaultProgressInterval
	}
	if deps.Notifier == nil {
		deps.Notifier = NopNotifier{}
	}
	if deps.Progress == nil {
		deps.Progress = lifecycle.NopProgress{}
	}
	if deps.Clock == nil {
		deps.Clock = realClock{}
	}
	if deps.Installed == nil {
		deps.Installed = addon.NewStore(nil)
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}

	return &Coordinator{
		opts:    opts,
		deps:    deps,
		logger:  logger.WithPrefix("update"),
		remote:  addon.NewStore(nil),
		handles: make(map[download.Handle]*batch),
	}
}

// Remote returns the latest remote catalog fetched, possibly empty.
func (c *Coordinator) Remote() *addon.Catalog {
	return c.remote.Load()
}

// Installed returns the current local catalog.
func (c *Coordinator) Installed() *addon.Catalog {
	return c.deps.Installed.Load()
}

// Pending returns the number of add-on archives still being downloaded.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}

func (o Options) reports(m addon.Maturity) bool {
	switch m {
	case addon.MaturityAlpha:
		return o.ReportAlpha
	case addon.MaturityBeta:
		return o.ReportBeta
	default:
		return o.ReportRelease
	}
}
