// Package batch applies addedAt edits to many items in one run.
//
// A run moves through Planning, where ids and the target date are resolved
// and validated without touching the network, and Executing, where items
// are updated one at a time behind a rate limiter. Per-item failures are
// recorded and never stop the run. Cancellation stops it between items and
// returns what was done so far.
package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/plex-added-date/pkg/library"
	"github.com/Sternrassler/plex-added-date/pkg/ratelimit"
	"github.com/Sternrassler/plex-added-date/pkg/selection"
)

// DateLayout is the accepted form of Request.Date.
const DateLayout = "2006-01-02"

// State is the lifecycle stage of a run.
type State string

const (
	StatePlanning  State = "planning"
	StateExecuting State = "executing"
	StateCompleted State = "completed"
	StateAborted   State = "aborted"
)

// Outcome is the terminal status of one item.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeSkipped Outcome = "skipped-dry-run"
	OutcomeFailed  Outcome = "failed"
)

// Updater edits a single item. *library.Client implements it.
type Updater interface {
	UpdateAddedAt(ctx context.Context, u library.Update) error
}

// Request describes one batch run.
type Request struct {
	SectionID int
	Type      library.ItemType

	// Date is the new addedAt as YYYY-MM-DD, taken as midnight in Location
	Date string
	// Location defaults to time.Local
	Location *time.Location

	NoLock bool
	DryRun bool

	// MaxItems caps the number of items updated; 0 means no cap. Dry runs
	// ignore it.
	MaxItems int

	// IDs takes precedence over Selection when non-empty
	IDs       []int64
	Selection *selection.Set

	Throttle ratelimit.Config

	// Titles labels results; Selection titles are used when absent
	Titles map[int64]string
}

// Result is the outcome for one item.
type Result struct {
	// Index is the 1-based position in the run, Of the number planned
	Index int `json:"index"`
	Of    int `json:"of"`

	ID         int64   `json:"id"`
	Title      string  `json:"title,omitempty"`
	Outcome    Outcome `json:"outcome"`
	Error      string  `json:"error,omitempty"`
	StatusCode int     `json:"status_code,omitempty"`

	Err error `json:"-"`
}

// Report aggregates a run.
type Report struct {
	State      State         `json:"state"`
	TargetDate time.Time     `json:"target_date"`
	Planned    int           `json:"planned"`
	Applied    int           `json:"applied"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Elapsed    time.Duration `json:"elapsed"`
	Results    []Result      `json:"results"`
}

// Succeeded reports whether the run completed without failed items.
func (r *Report) Succeeded() bool {
	return r.State == StateCompleted && r.Failed == 0
}

func (r *Report) record(res Result) {
	r.Results = append(r.Results, res)
	switch res.Outcome {
	case OutcomeApplied:
		r.Applied++
	case OutcomeFailed:
		r.Failed++
	case OutcomeSkipped:
		r.Skipped++
	}
}

// ValidationError reports a request rejected during planning.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
