package library

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Sternrassler/plex-added-date/pkg/cache"
	"github.com/rs/zerolog"
)

// DefaultCacheTTL bounds how stale a cached page may be.
const DefaultCacheTTL = 30 * time.Second

// CachedSource serves pages from a cache.Store and falls through to src on a
// miss. Cache failures are logged and never fail a fetch.
type CachedSource struct {
	src    PageSource
	store  cache.Store
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCachedSource wraps src. A ttl of 0 uses DefaultCacheTTL.
func NewCachedSource(src PageSource, store cache.Store, ttl time.Duration, logger zerolog.Logger) *CachedSource {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedSource{src: src, store: store, ttl: ttl, logger: logger}
}

// FetchPage implements PageSource.
func (s *CachedSource) FetchPage(ctx context.Context, cfg FilterConfig, offset, limit int) (*Page, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if offset < 0 || limit < 0 {
		return s.src.FetchPage(ctx, cfg, offset, limit)
	}
	if limit == 0 {
		limit = cfg.PageSize
	}
	limit = clampLimit(limit)

	key := pageCacheKey(cfg, offset, limit)

	entry, err := s.store.Get(ctx, key)
	switch {
	case err == nil:
		var page Page
		if jsonErr := json.Unmarshal(entry.Data, &page); jsonErr == nil {
			return &page, nil
		}
		s.logger.Warn().Str("key", key.String()).Msg("Discarding undecodable cached page")
	case !errors.Is(err, cache.ErrCacheMiss):
		s.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache read failed")
	}

	page, err := s.src.FetchPage(ctx, cfg, offset, limit)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(page)
	if err != nil {
		return page, nil
	}
	if err := s.store.Set(ctx, key, cache.NewEntry(data, s.ttl)); err != nil {
		s.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache write failed")
	}
	return page, nil
}

// Invalidate drops every cached page of a section. It is called after the
// section's items were edited.
func (s *CachedSource) Invalidate(ctx context.Context, sectionID int) error {
	prefix := cache.CacheKey{Endpoint: sectionPath(sectionID)}.Prefix()
	return s.store.DeletePrefix(ctx, prefix)
}

func pageCacheKey(cfg FilterConfig, offset, limit int) cache.CacheKey {
	return cache.CacheKey{
		Endpoint:    sectionPath(cfg.SectionID),
		QueryParams: pageQuery(cfg, offset, limit),
	}
}
