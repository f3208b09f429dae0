// SPDX-License-Identifier: MPL-2.0

package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/invowk/addonctl/internal/fetch"
)

const (
	// DefaultWorkers is the size of the worker pool.
	DefaultWorkers = 4
	// DefaultQueueSize bounds the number of queued transfers.
	DefaultQueueSize = 256

	partSuffix = ".part"
)

// Manager lifecycle states.
const (
	stateCreated int32 = iota
	stateRunning
	stateStopped
)

var (
	// ErrClosed is returned by Schedule after Shutdown.
	ErrClosed = errors.New("download manager is shut down")
	// ErrQueueFull is returned when the transfer queue is full.
	ErrQueueFull = errors.New("download queue is full")
	// ErrShutdown is recorded on tasks that never started because the
	// manager was shut down without waiting.
	ErrShutdown = errors.New("download abandoned at shutdown")
	// ErrInvalidRequest is returned for requests without URL or target.
	ErrInvalidRequest = errors.New("invalid download request")
)

type (
	// Manager schedules transfers on a fixed pool of workers.
	Manager struct {
		fetcher   fetch.Fetcher
		workers   int
		queueSize int
		logger    *log.Logger
		metrics   *metrics
		now       func() time.Time

		state  atomic.Int32
		jobs   chan Handle
		wg     sync.WaitGroup
		cancel context.CancelFunc

		mu       sync.Mutex
		tasks    map[Handle]*entry
		finished []Handle
	}

	entry struct {
		task    *Task
		written atomic.Int64
	}

	// Option configures a Manager.
	Option func(*Manager)

	countingWriter struct {
		w       io.Writer
		written *atomic.Int64
		bytes   prometheus.Counter
	}
)

// WithWorkers sets the pool size.
func WithWorkers(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.workers = n
		}
	}
}

// WithQueueSize sets the queue capacity.
func WithQueueSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.queueSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithRegisterer registers the download metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(m *Manager) { m.metrics = newMetrics(reg) }
}

// WithClock overrides time.Now for task timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates a Manager. Workers start with Start.
func New(fetcher fetch.Fetcher, opts ...Option) *Manager {
	m := &Manager{
		fetcher:   fetcher,
		workers:   DefaultWorkers,
		queueSize: DefaultQueueSize,
		logger:    log.NewWithOptions(io.Discard, log.Options{Prefix: "downloads"}),
		now:       time.Now,
		tasks:     make(map[Handle]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = newMetrics(nil)
	}
	m.jobs = make(chan Handle, m.queueSize)
	return m
}

// Start launches the workers. Cancelling ctx aborts running transfers.
// Calling Start more than once has no effect.
func (m *Manager) Start(ctx context.Context) {
	if !m.state.CompareAndSwap(stateCreated, stateRunning) {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)

	for range m.workers {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.work(ctx)
		}()
	}
	m.logger.Debug("download workers started", "workers", m.workers)
}

// Schedule queues a transfer and returns its handle. Transfers queued before
// Start run once the workers are up.
func (m *Manager) Schedule(req Request) (Handle, error) {
	if req.URL == "" || req.Target == "" {
		return Handle{}, fmt.Errorf("%w: url and target are required", ErrInvalidRequest)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Load() == stateStopped {
		return Handle{}, ErrClosed
	}

	h := NewHandle()
	select {
	case m.jobs <- h:
	default:
		return Handle{}, ErrQueueFull
	}
	m.tasks[h] = &entry{task: &Task{Handle: h, Request: req}}
	m.logger.Debug("download scheduled", "handle", h, "label", req.Label, "url", fetch.RedactURL(req.URL))
	return h, nil
}

// ProgressPercent returns the completion percentage of h. The second result
// is false when the handle is unknown or the expected size is not positive.
func (m *Manager) ProgressPercent(h Handle) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.tasks[h]
	if !ok {
		return 0, false
	}
	if e.task.Validated {
		return 100, e.task.ExpectedSize > 0
	}
	return percent(e.written.Load(), e.task.ExpectedSize)
}

// ActiveCount returns the number of scheduled transfers that have not finished.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, e := range m.tasks {
		if !e.task.Finished() {
			n++
		}
	}
	return n
}

// Task returns a copy of the task h, if the manager still owns it.
func (m *Manager) Task(h Handle) (Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.tasks[h]
	if !ok {
		return Task{}, false
	}
	return *e.task, true
}

// Progress returns a snapshot of every task still owned by the manager.
func (m *Manager) Progress() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Snapshot, 0, len(m.tasks))
	for h, e := range m.tasks {
		written := e.written.Load()
		pct, known := percent(written, e.task.ExpectedSize)
		out = append(out, Snapshot{
			Handle:       h,
			Label:        e.task.Label,
			URL:          fetch.RedactURL(e.task.URL),
			Written:      written,
			ExpectedSize: e.task.ExpectedSize,
			Percent:      pct,
			Known:        known,
			Finished:     e.task.Finished(),
		})
	}
	return out
}

// TakeFinished hands over every task that finished since the previous call.
// Each finished task is returned exactly once; the manager forgets it.
func (m *Manager) TakeFinished() []*Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Task, 0, len(m.finished))
	for _, h := range m.finished {
		out = append(out, m.tasks[h].task)
		delete(m.tasks, h)
	}
	m.finished = nil
	return out
}

// Supervise polls the manager every interval, reporting the active count,
// until no transfer is active; it then calls idle and returns nil. It
// returns ctx.Err() if ctx ends first. Both callbacks may be nil.
func (m *Manager) Supervise(ctx context.Context, interval time.Duration, report func(active int), idle func()) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		n := m.ActiveCount()
		if report != nil {
			report(n)
		}
		if n == 0 {
			if idle != nil {
				idle()
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Shutdown stops accepting transfers. With wait the call blocks until every
// queued and running transfer finished; without it running transfers are
// cancelled and queued ones are finished with ErrShutdown.
func (m *Manager) Shutdown(wait bool) {
	m.mu.Lock()
	prev := m.state.Swap(stateStopped)
	if prev != stateStopped {
		close(m.jobs)
	}
	m.mu.Unlock()

	if prev == stateStopped {
		return
	}
	if !wait && m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()

	for h := range m.jobs {
		m.finish(h, time.Time{}, false, ErrShutdown)
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.logger.Debug("download manager stopped")
}

func (m *Manager) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case h, ok := <-m.jobs:
			if !ok {
				return
			}
			m.run(ctx, h)
		}
	}
}

func (m *Manager) run(ctx context.Context, h Handle) {
	m.mu.Lock()
	e, ok := m.tasks[h]
	m.mu.Unlock()
	if !ok {
		return
	}

	started := m.now()
	m.mu.Lock()
	e.task.StartedAt = started
	m.mu.Unlock()

	m.metrics.inFlight.Inc()
	defer m.metrics.inFlight.Dec()

	req := e.task.Request
	logger := m.logger.With("label", req.Label, "handle", h)

	if err := m.transfer(ctx, req, &e.written); err != nil {
		logger.Warn("download failed", "url", fetch.RedactURL(req.URL), "error", err)
		m.finish(h, started, false, err)
		return
	}

	if err := Verify(req.Target, req.ExpectedSize, req.ExpectedHash); err != nil {
		logger.Warn("download did not validate", "target", req.Target, "error", err)
		m.finish(h, started, false, err)
		return
	}

	logger.Debug("download validated", "target", req.Target, "bytes", e.written.Load())
	m.finish(h, started, true, nil)
}

// transfer streams req.URL into req.Target through a .part file that is
// synced and renamed into place.
func (m *Manager) transfer(ctx context.Context, req Request, written *atomic.Int64) (err error) {
	body, err := m.fetcher.Open(ctx, req.URL)
	if err != nil {
		return err
	}
	defer func() { _ = body.Close() }() // read-only response body

	if err := os.MkdirAll(filepath.Dir(req.Target), 0o755); err != nil {
		return fmt.Errorf("creating target directory: %w", err)
	}

	part := req.Target + partSuffix
	f, err := os.Create(part)
	if err != nil {
		return fmt.Errorf("creating %s: %w", part, err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(part)
		}
	}()

	cw := &countingWriter{w: f, written: written, bytes: m.metrics.bytes}
	if _, err = io.Copy(cw, body); err != nil {
		return fmt.Errorf("writing %s: %w", part, err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", part, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", part, err)
	}
	if err = os.Rename(part, req.Target); err != nil {
		return fmt.Errorf("moving %s into place: %w", part, err)
	}
	return nil
}

func (m *Manager) finish(h Handle, started time.Time, validated bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.tasks[h]
	if !ok {
		return
	}
	e.task.FinishedAt = m.now()
	e.task.Validated = validated
	e.task.Err = err
	m.finished = append(m.finished, h)

	outcome := outcomeValidated
	switch {
	case errors.Is(err, ErrValidationFailure):
		outcome = outcomeInvalid
	case err != nil:
		outcome = outcomeFailed
	}
	m.metrics.completed.WithLabelValues(outcome).Inc()
	if !started.IsZero() {
		m.metrics.duration.Observe(e.task.FinishedAt.Sub(started).Seconds())
	}
}

func (w *countingWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	w.written.Add(int64(n))
	w.bytes.Add(float64(n))
	return n, err
}
