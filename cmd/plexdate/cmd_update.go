package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/plex-added-date/pkg/batch"
	"github.com/Sternrassler/plex-added-date/pkg/cache"
	"github.com/Sternrassler/plex-added-date/pkg/library"
	"github.com/Sternrassler/plex-added-date/pkg/logging"
	"github.com/Sternrassler/plex-added-date/pkg/metrics"
	"github.com/Sternrassler/plex-added-date/pkg/ratelimit"
	"github.com/Sternrassler/plex-added-date/pkg/selection"
)

type updateOptions struct {
	filter       filterFlags
	date         string
	ids          []string
	maxItems     int
	sleep        float64
	maxPerMinute float64
	noLock       bool
	dryRun       bool
	selection    string
	reportPath   string
}

func newUpdateCmd(a *app) *cobra.Command {
	opts := &updateOptions{}

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Set addedAt for matching or explicit items",
		Long: `Set the addedAt date of every item matching the filters, of explicit ids,
or of a saved selection. The field is locked afterwards unless --no-lock is
given, so Plex's own scanners leave it alone.

Examples:
  # Preview every 1999 movie in section 1
  plexdate update --section-id 1 --year 1999 --date 2020-01-01 --dry-run

  # Two explicit items, at most one update per second
  plexdate update --section-id 1 --ids 12345,67890 --date 2021-06-01 --max-per-minute 60

  # A selection built with "plexdate select"
  plexdate update --section-id 2 --type show --selection weekend --date 2022-03-05
`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd.Context(), a, opts)
		},
	}

	opts.filter.register(cmd, 200)
	f := cmd.Flags()
	f.StringVar(&opts.date, "date", "", "New date in YYYY-MM-DD format")
	f.StringSliceVar(&opts.ids, "ids", nil, "Explicit ratingKey ids to update (skips fetching)")
	f.IntVar(&opts.maxItems, "max-items", 0, "Stop after updating N items")
	f.Float64Var(&opts.sleep, "sleep", 0, "Sleep seconds between updates")
	f.Float64Var(&opts.maxPerMinute, "max-per-minute", 0, "Max updates per minute")
	f.BoolVar(&opts.noLock, "no-lock", false, "Do not lock the addedAt field after update")
	f.BoolVar(&opts.dryRun, "dry-run", false, "Print planned changes without applying")
	f.StringVar(&opts.selection, "selection", "", "Update a selection saved in Redis")
	f.StringVar(&opts.reportPath, "report", "", "Write a JSON report to this path")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address while running")

	return cmd
}

func runUpdate(ctx context.Context, a *app, opts *updateOptions) error {
	filterCfg, err := opts.filter.filterConfig()
	if err != nil {
		return err
	}
	if opts.date == "" {
		return usagef("--date is required")
	}
	if opts.maxItems < 0 {
		return usagef("--max-items must not be negative")
	}
	loc, err := a.location()
	if err != nil {
		return err
	}
	target, err := batch.ParseDate(opts.date, loc)
	if err != nil {
		return err
	}
	ids, err := parseIDs(opts.ids)
	if err != nil {
		return err
	}
	if len(ids) > 0 && opts.selection != "" {
		return usagef("--ids and --selection are mutually exclusive")
	}

	// Only a fetch or a real update needs the server
	needsServer := !opts.dryRun || (len(ids) == 0 && opts.selection == "")
	var lib *library.Client
	if needsServer {
		if lib, err = a.libraryClient(); err != nil {
			return err
		}
	}

	sel, err := resolveSelection(ctx, a, lib, filterCfg, ids, opts)
	if err != nil {
		return err
	}

	if sel.Len() == 0 {
		fmt.Fprintln(a.stdout, "No matching items found.")
		return nil
	}

	if opts.dryRun {
		fmt.Fprintf(a.stdout, "Matched %d items. DRY RUN\n", sel.Len())
	} else {
		fmt.Fprintf(a.stdout, "Matched %d items.\n", sel.Len())
	}

	if !opts.dryRun && (len(ids) > 0 || opts.selection != "") {
		// Nothing was fetched yet, make sure the server accepts us before
		// the first update
		if _, err := lib.ListSections(ctx); err != nil {
			return fmt.Errorf("connect to plex: %w", err)
		}
	}

	if addr := a.cfg.Metrics.Addr; addr != "" {
		metricsCtx, stopMetrics := context.WithCancel(ctx)
		defer stopMetrics()
		go func() {
			if err := metrics.Serve(metricsCtx, addr, a.logger); err != nil {
				a.logger.Warn().Err(err).Msg("Metrics server stopped")
			}
		}()
	}

	var updater batch.Updater = lib
	if lib == nil {
		updater = dryRunUpdater{}
	}
	executor := batch.NewExecutor(updater, logging.NewLogger("batch"))

	req := batch.Request{
		SectionID: filterCfg.SectionID,
		Type:      filterCfg.Type,
		Date:      opts.date,
		Location:  loc,
		NoLock:    opts.noLock,
		DryRun:    opts.dryRun,
		MaxItems:  opts.maxItems,
		Selection: sel,
		Throttle: ratelimit.Config{
			Delay:     time.Duration(opts.sleep * float64(time.Second)),
			PerMinute: opts.maxPerMinute,
		},
	}

	report, runErr := executor.Run(ctx, req, func(res batch.Result) {
		switch res.Outcome {
		case batch.OutcomeSkipped:
			fmt.Fprintf(a.stdout, "Would update id=%d to %s (unix=%d)\n", res.ID, opts.date, target.Unix())
		case batch.OutcomeApplied:
			fmt.Fprintf(a.stdout, "[%d/%d] Updated id=%d\n", res.Index, res.Of, res.ID)
		case batch.OutcomeFailed:
			fmt.Fprintf(a.stderr, "[%d/%d] Failed id=%d: %s\n", res.Index, res.Of, res.ID, res.Error)
		}
	})

	if report.Applied > 0 {
		invalidateCache(ctx, a, lib, filterCfg.SectionID)
	}

	if opts.reportPath != "" && reportable(report) {
		if err := writeReport(opts.reportPath, filterCfg.SectionID, opts.date, report); err != nil {
			a.logger.Error().Err(err).Str("path", opts.reportPath).Msg("Failed to write report")
			if runErr == nil {
				runErr = err
			}
		}
	}

	if runErr == nil || report.Planned > 0 {
		fmt.Fprintf(a.stdout, "Done. Updated %d item(s).\n", report.Applied)
	}
	if runErr != nil && errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("interrupted: %w", runErr)
	}
	return runErr
}

// resolveSelection returns the ids to update: explicit ids, a saved
// selection, or every item matching the filters.
func resolveSelection(ctx context.Context, a *app, lib *library.Client, cfg library.FilterConfig, ids []int64, opts *updateOptions) (*selection.Set, error) {
	if len(ids) > 0 {
		return selection.FromIDs(ids), nil
	}

	if opts.selection != "" {
		store, err := a.selectionStore(ctx)
		if err != nil {
			return nil, err
		}
		sel, err := store.Load(ctx, opts.selection)
		if errors.Is(err, selection.ErrNotFound) {
			return selection.New(), nil
		}
		return sel, err
	}

	sel := selection.New()
	if _, err := sel.SelectAllMatching(ctx, lib, cfg, cfg.Title); err != nil {
		return nil, fmt.Errorf("fetch matching items: %w", err)
	}
	return sel, nil
}

func invalidateCache(ctx context.Context, a *app, lib *library.Client, sectionID int) {
	rc, err := a.redisClient(ctx)
	if err != nil || rc == nil {
		return
	}
	src := library.NewCachedSource(lib, cache.NewRedisStore(rc), a.cfg.Cache.TTL, a.logger)
	if err := src.Invalidate(ctx, sectionID); err != nil {
		a.logger.Warn().Err(err).Int("section_id", sectionID).Msg("Failed to invalidate page cache")
	}
}

// dryRunUpdater stands in when no server is configured. The executor never
// calls it in dry-run mode.
type dryRunUpdater struct{}

func (dryRunUpdater) UpdateAddedAt(context.Context, library.Update) error {
	return errors.New("no server configured")
}

// reportable is false for runs rejected during planning.
func reportable(report *batch.Report) bool {
	return report.State != batch.StateAborted || report.Planned > 0
}

type reportFile struct {
	SectionID      int            `json:"section_id"`
	Date           string         `json:"date"`
	Unix           int64          `json:"unix"`
	State          batch.State    `json:"state"`
	Planned        int            `json:"planned"`
	Applied        int            `json:"applied"`
	Failed         int            `json:"failed"`
	Skipped        int            `json:"skipped"`
	ElapsedSeconds float64        `json:"elapsed_seconds"`
	Results        []batch.Result `json:"results"`
}

func writeReport(path string, sectionID int, date string, report *batch.Report) error {
	results := report.Results
	if results == nil {
		results = []batch.Result{}
	}
	data, err := json.MarshalIndent(reportFile{
		SectionID:      sectionID,
		Date:           date,
		Unix:           report.TargetDate.Unix(),
		State:          report.State,
		Planned:        report.Planned,
		Applied:        report.Applied,
		Failed:         report.Failed,
		Skipped:        report.Skipped,
		ElapsedSeconds: report.Elapsed.Seconds(),
		Results:        results,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(append(data, '\n'))); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
