package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/plex-added-date/pkg/library"
	"github.com/rs/zerolog/log"
)

// Config holds walker configuration
type Config struct {
	// PageSize is used when the FilterConfig leaves PageSize at 0
	PageSize int
	// PageTimeout bounds each page fetch. Zero disables the bound.
	PageTimeout time.Duration
	// ProgressEvery calls OnProgress after every N pages (0 = every page)
	ProgressEvery int
	// OnProgress receives running stats, nil to disable
	OnProgress func(Stats)
}

// DefaultConfig returns the configuration used by the CLI.
func DefaultConfig() Config {
	return Config{
		PageSize:      200,
		PageTimeout:   30 * time.Second,
		ProgressEvery: 1,
	}
}

// Stats summarizes a walk, complete or partial.
type Stats struct {
	Pages     int
	Items     int
	LastTotal int
	Duration  time.Duration
}

// Walker visits every page of a section sequentially.
type Walker struct {
	source library.PageSource
	config Config
}

// NewWalker creates a walker over source.
func NewWalker(source library.PageSource, config Config) *Walker {
	if config.PageSize <= 0 {
		config.PageSize = library.DefaultPageSize
	}
	if config.ProgressEvery <= 0 {
		config.ProgressEvery = 1
	}
	return &Walker{source: source, config: config}
}

// Walk fetches pages from offset 0 and hands each to fn. It stops once the
// next offset reaches the total reported by the most recent page, when a page
// is empty, when fn returns an error, or when ctx is done. The stats gathered
// so far are returned in every case.
func (w *Walker) Walk(ctx context.Context, cfg library.FilterConfig, fn func(*library.Page) error) (Stats, error) {
	start := time.Now()
	var stats Stats

	if cfg.PageSize == 0 {
		cfg.PageSize = w.config.PageSize
	}
	limit := cfg.EffectivePageSize()

	log.Debug().
		Int("section_id", cfg.SectionID).
		Int("page_size", limit).
		Msg("Starting section walk")

	for offset := 0; ; {
		if err := ctx.Err(); err != nil {
			stats.Duration = time.Since(start)
			return stats, err
		}

		page, err := w.fetch(ctx, cfg, offset, limit)
		if err != nil {
			stats.Duration = time.Since(start)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return stats, ctxErr
			}
			return stats, fmt.Errorf("walk section %d at offset %d: %w", cfg.SectionID, offset, err)
		}

		stats.Pages++
		stats.Items += len(page.Items)
		stats.LastTotal = page.Total

		if err := fn(page); err != nil {
			stats.Duration = time.Since(start)
			return stats, err
		}

		if w.config.OnProgress != nil && stats.Pages%w.config.ProgressEvery == 0 {
			stats.Duration = time.Since(start)
			w.config.OnProgress(stats)
		}

		step := page.Limit
		if step <= 0 {
			step = limit
		}
		offset += step

		if len(page.Items) == 0 || offset >= page.Total {
			break
		}
	}

	stats.Duration = time.Since(start)
	log.Debug().
		Int("section_id", cfg.SectionID).
		Int("pages", stats.Pages).
		Int("items", stats.Items).
		Int("total", stats.LastTotal).
		Dur("duration", stats.Duration).
		Msg("Section walk complete")

	return stats, nil
}

func (w *Walker) fetch(ctx context.Context, cfg library.FilterConfig, offset, limit int) (*library.Page, error) {
	if w.config.PageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.PageTimeout)
		defer cancel()
	}
	return w.source.FetchPage(ctx, cfg, offset, limit)
}
