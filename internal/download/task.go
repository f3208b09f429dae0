// SPDX-License-Identifier: MPL-2.0

package download

import (
	"time"

	"github.com/google/uuid"
)

type (
	// Handle identifies a scheduled download.
	Handle uuid.UUID

	// Request describes a transfer. Label is a free-form name used in logs,
	// usually the add-on ID.
	Request struct {
		URL          string
		Target       string
		ExpectedSize int64
		ExpectedHash string
		Label        string
	}

	// Task is a scheduled transfer. FinishedAt is zero until the transfer
	// ends; Validated is true only when the size and hash matched.
	Task struct {
		Handle Handle
		Request
		StartedAt  time.Time
		FinishedAt time.Time
		Validated  bool
		Err        error
	}

	// Snapshot is a point-in-time view of a task used for progress display.
	Snapshot struct {
		Handle       Handle
		Label        string
		URL          string
		Written      int64
		ExpectedSize int64
		Percent      int
		// Known is false when the size of the transfer is unknown.
		Known    bool
		Finished bool
	}
)

// NewHandle returns a fresh random handle.
func NewHandle() Handle {
	return Handle(uuid.New())
}

// String returns the canonical UUID form.
func (h Handle) String() string {
	return uuid.UUID(h).String()
}

// Finished reports whether the transfer ended.
func (t *Task) Finished() bool {
	return !t.FinishedAt.IsZero()
}

// Duration returns how long the transfer took, or zero if it is unfinished.
func (t *Task) Duration() time.Duration {
	if !t.Finished() || t.StartedAt.IsZero() {
		return 0
	}
	return t.FinishedAt.Sub(t.StartedAt)
}

func percent(written, size int64) (int, bool) {
	if size <= 0 {
		return 0, false
	}
	p := int(written * 100 / size)
	if p > 100 {
		p = 100
	}
	return p, true
}
