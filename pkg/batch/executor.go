package batch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/plex-added-date/pkg/client"
	"github.com/Sternrassler/plex-added-date/pkg/library"
	"github.com/Sternrassler/plex-added-date/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for batch runs.
var (
	mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plexdate_mutations_total",
		Help: "Total number of item mutations by outcome",
	}, []string{"outcome"})

	batchRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plexdate_batch_runs_total",
		Help: "Total number of batch runs by final state",
	}, []string{"state"})
)

// Executor runs batches against an Updater, one request at a time.
type Executor struct {
	updater Updater
	logger  zerolog.Logger
}

// NewExecutor creates an executor.
func NewExecutor(updater Updater, logger zerolog.Logger) *Executor {
	return &Executor{updater: updater, logger: logger}
}

// Run executes req. onResult, if non-nil, is called with every result as it
// is produced. The returned report is never nil. The error is a
// *ValidationError when planning fails and wraps ctx.Err() when the run is
// cancelled; failed items alone never make Run return an error.
func (e *Executor) Run(ctx context.Context, req Request, onResult func(Result)) (*Report, error) {
	start := time.Now()
	report := &Report{State: StatePlanning}

	finish := func(state State, err error) (*Report, error) {
		report.State = state
		report.Elapsed = time.Since(start)
		batchRunsTotal.WithLabelValues(string(state)).Inc()
		return report, err
	}

	ids, target, err := plan(req)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Batch rejected during planning")
		return finish(StateAborted, err)
	}
	report.TargetDate = target
	titles := resolveTitles(req)

	emit := func(res Result) {
		report.record(res)
		mutationsTotal.WithLabelValues(string(res.Outcome)).Inc()
		if onResult != nil {
			onResult(res)
		}
	}

	if req.DryRun {
		report.Planned = len(ids)
		for i, id := range ids {
			emit(Result{Index: i + 1, Of: len(ids), ID: id, Title: titles[id], Outcome: OutcomeSkipped})
		}
		e.logger.Info().
			Int("items", len(ids)).
			Time("target", target).
			Msg("Dry run complete")
		return finish(StateCompleted, nil)
	}

	if req.MaxItems > 0 && len(ids) > req.MaxItems {
		ids = ids[:req.MaxItems]
	}
	report.Planned = len(ids)
	report.State = StateExecuting

	e.logger.Info().
		Int("section_id", req.SectionID).
		Int("items", len(ids)).
		Time("target", target).
		Bool("lock", !req.NoLock).
		Msg("Starting batch")

	limiter := ratelimit.New(req.Throttle)
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return e.abort(finish, report, err)
		}
		if err := limiter.Wait(ctx); err != nil {
			return e.abort(finish, report, err)
		}

		err := e.updater.UpdateAddedAt(ctx, library.Update{
			SectionID: req.SectionID,
			Type:      req.Type,
			ID:        id,
			AddedAt:   target,
			Lock:      !req.NoLock,
		})
		if err != nil && ctx.Err() != nil {
			// interrupted mid-request, the item has no known outcome
			return e.abort(finish, report, ctx.Err())
		}

		res := Result{Index: i + 1, Of: len(ids), ID: id, Title: titles[id], Outcome: OutcomeApplied}
		if err != nil {
			res.Outcome = OutcomeFailed
			res.Err = err
			res.Error = summarize(err)
			res.StatusCode = client.StatusCode(err)
			e.logger.Warn().
				Err(err).
				Int64("id", id).
				Int("status", res.StatusCode).
				Msg("Item update failed")
		}
		emit(res)
	}

	e.logger.Info().
		Int("applied", report.Applied).
		Int("failed", report.Failed).
		Dur("elapsed", time.Since(start)).
		Msg("Batch complete")

	return finish(StateCompleted, nil)
}

func (e *Executor) abort(finish func(State, error) (*Report, error), report *Report, cause error) (*Report, error) {
	e.logger.Warn().
		Int("done", len(report.Results)).
		Int("planned", report.Planned).
		Msg("Batch interrupted")
	return finish(StateAborted, fmt.Errorf("batch aborted after %d of %d items: %w", len(report.Results), report.Planned, cause))
}

// plan resolves the id sequence and the target instant.
func plan(req Request) ([]int64, time.Time, error) {
	if req.SectionID <= 0 {
		return nil, time.Time{}, &ValidationError{Field: "section_id", Reason: "is required"}
	}
	if req.Type != library.TypeMovie && req.Type != library.TypeShow {
		return nil, time.Time{}, &ValidationError{Field: "type", Reason: fmt.Sprintf("unsupported item type %d", int(req.Type))}
	}
	if req.MaxItems < 0 {
		return nil, time.Time{}, &ValidationError{Field: "max_items", Reason: "must not be negative"}
	}

	target, err := ParseDate(req.Date, req.Location)
	if err != nil {
		return nil, time.Time{}, err
	}

	source := req.IDs
	if len(source) == 0 && req.Selection != nil {
		source = req.Selection.Snapshot()
	}

	ids := make([]int64, 0, len(source))
	seen := make(map[int64]struct{}, len(source))
	for _, id := range source {
		if id <= 0 {
			return nil, time.Time{}, &ValidationError{Field: "ids", Reason: fmt.Sprintf("id %d must be positive", id)}
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, time.Time{}, &ValidationError{Field: "ids", Reason: "no items selected"}
	}

	return ids, target, nil
}

// ParseDate resolves a YYYY-MM-DD date to midnight in loc (time.Local when
// nil).
func ParseDate(date string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(date), loc)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "date", Reason: fmt.Sprintf("%q is not a YYYY-MM-DD date", date)}
	}
	return t, nil
}

func resolveTitles(req Request) map[int64]string {
	if len(req.Titles) > 0 {
		return req.Titles
	}
	if req.Selection != nil {
		return req.Selection.Titles()
	}
	return map[int64]string{}
}

// summarize keeps the outermost message of err on a single line.
func summarize(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return msg
}
