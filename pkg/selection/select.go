package selection

import (
	"context"
	"time"

	"github.com/Sternrassler/plex-added-date/pkg/library"
	"github.com/Sternrassler/plex-added-date/pkg/pagination"
)

// WalkOption adjusts the pagination of a bulk helper. The helpers start from
// pagination.DefaultConfig.
type WalkOption func(*pagination.Config)

// WithWalkConfig replaces the pagination config.
func WithWalkConfig(cfg pagination.Config) WalkOption {
	return func(c *pagination.Config) { *c = cfg }
}

// WithProgress reports walk stats after every page.
func WithProgress(fn func(pagination.Stats)) WalkOption {
	return func(c *pagination.Config) {
		c.OnProgress = fn
		c.ProgressEvery = 1
	}
}

func newWalker(src library.PageSource, opts []WalkOption) *pagination.Walker {
	cfg := pagination.DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return pagination.NewWalker(src, cfg)
}

// SelectAllMatching walks every page of cfg and selects each item whose title
// contains substring. It returns the number of ids that were not already
// selected. On cancellation the ids added so far stay selected and the count
// is returned with the context error.
func (s *Set) SelectAllMatching(ctx context.Context, src library.PageSource, cfg library.FilterConfig, substring string, opts ...WalkOption) (int, error) {
	added := 0
	_, err := newWalker(src, opts).Walk(ctx, cfg, func(page *library.Page) error {
		added += s.AddPage(library.ApplyTitleFilter(page, substring))
		return nil
	})
	return added, err
}

// DeselectAllMatching is the inverse of SelectAllMatching. It returns the
// number of ids removed.
func (s *Set) DeselectAllMatching(ctx context.Context, src library.PageSource, cfg library.FilterConfig, substring string, opts ...WalkOption) (int, error) {
	removed := 0
	_, err := newWalker(src, opts).Walk(ctx, cfg, func(page *library.Page) error {
		removed += s.RemovePage(library.ApplyTitleFilter(page, substring))
		return nil
	})
	return removed, err
}

// SelectAddedRange selects every matching item added between the start of
// from and the end of to, both taken as calendar days in from's location.
func (s *Set) SelectAddedRange(ctx context.Context, src library.PageSource, cfg library.FilterConfig, from, to time.Time, substring string, opts ...WalkOption) (int, error) {
	return walkRange(ctx, newWalker(src, opts), cfg, from, to, substring, s.AddItem)
}

// DeselectAddedRange is the inverse of SelectAddedRange.
func (s *Set) DeselectAddedRange(ctx context.Context, src library.PageSource, cfg library.FilterConfig, from, to time.Time, substring string, opts ...WalkOption) (int, error) {
	return walkRange(ctx, newWalker(src, opts), cfg, from, to, substring, func(item library.Item) bool {
		return s.Remove(item.ID)
	})
}

func walkRange(ctx context.Context, w *pagination.Walker, cfg library.FilterConfig, from, to time.Time, substring string, apply func(library.Item) bool) (int, error) {
	lo, hi := DayRange(from, to)
	changed := 0
	_, err := w.Walk(ctx, cfg, func(page *library.Page) error {
		for _, item := range library.ApplyTitleFilter(page, substring).Items {
			if item.AddedAt.Before(lo) || item.AddedAt.After(hi) {
				continue
			}
			if apply(item) {
				changed++
			}
		}
		return nil
	})
	return changed, err
}

// DayRange expands two dates to [from 00:00:00, to 23:59:59] in from's
// location. Swapped bounds are put in order.
func DayRange(from, to time.Time) (time.Time, time.Time) {
	loc := from.Location()
	to = to.In(loc)
	if to.Before(from) {
		from, to = to, from
	}
	lo := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)
	hi := time.Date(to.Year(), to.Month(), to.Day(), 23, 59, 59, 0, loc)
	return lo, hi
}
