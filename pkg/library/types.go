// Package library fetches and edits items of a Plex library section: paged
// listing, client-side title filtering and addedAt updates.
package library

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultPageSize is used when neither the call nor the FilterConfig sets a limit.
	DefaultPageSize = 100

	// MaxPageSize is the largest container size requested from the server.
	// Larger limits are clamped.
	MaxPageSize = 1000

	// DefaultSort orders newest additions first.
	DefaultSort = "addedAt:desc"
)

// ItemType is the Plex metadata type of a section's top-level items.
type ItemType int

const (
	TypeMovie ItemType = 1
	TypeShow  ItemType = 2
)

// ParseItemType accepts "movie", "show" or the numeric Plex ids "1" and "2".
func ParseItemType(s string) (ItemType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "movie", "1", "":
		return TypeMovie, nil
	case "show", "2":
		return TypeShow, nil
	default:
		return 0, fmt.Errorf("unknown item type %q (want movie or show)", s)
	}
}

// String returns the Plex type name.
func (t ItemType) String() string {
	switch t {
	case TypeMovie:
		return "movie"
	case TypeShow:
		return "show"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// ID returns the numeric form sent in the type query parameter.
func (t ItemType) ID() string {
	return fmt.Sprintf("%d", int(t))
}

// Item is a single movie or show.
type Item struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Year      int       `json:"year,omitempty"`
	AddedAt   time.Time `json:"added_at"`
	Released  time.Time `json:"released,omitempty"`
	Thumb     string    `json:"thumb,omitempty"`
	Type      ItemType  `json:"type"`
	SectionID int       `json:"section_id"`
}

// FilterConfig describes one query against a section.
type FilterConfig struct {
	SectionID int
	Type      ItemType

	// Year is applied server-side; 0 means unset
	Year int

	// PageSize is the default limit when a fetch passes 0
	PageSize int

	// Sort is a Plex sort key such as addedAt:desc or titleSort:asc
	Sort string

	// Title is a client-side, case-insensitive substring filter
	Title string
}

// Validate checks the fields required to issue a fetch.
func (c FilterConfig) Validate() error {
	if c.SectionID <= 0 {
		return &ValidationError{Field: "section_id", Reason: "is required"}
	}
	if c.Type != TypeMovie && c.Type != TypeShow {
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unsupported item type %d", int(c.Type))}
	}
	if c.Year < 0 {
		return &ValidationError{Field: "year", Reason: "must not be negative"}
	}
	if c.PageSize < 0 {
		return &ValidationError{Field: "page_size", Reason: "must not be negative"}
	}
	return nil
}

// SortKey returns the configured sort or DefaultSort.
func (c FilterConfig) SortKey() string {
	if c.Sort == "" {
		return DefaultSort
	}
	return c.Sort
}

// EffectivePageSize resolves the page size, clamped to MaxPageSize.
func (c FilterConfig) EffectivePageSize() int {
	return clampLimit(c.PageSize)
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageSize
	case limit > MaxPageSize:
		return MaxPageSize
	default:
		return limit
	}
}

// Page is one fetched window of a section.
type Page struct {
	Items  []Item
	Offset int
	Limit  int

	// Total is the size of the whole result set as reported at fetch time.
	// It can change between fetches.
	Total int
}

// Next returns the offset of the following page.
func (p *Page) Next() int {
	return p.Offset + p.Limit
}

// HasMore reports whether the reported total extends past this page.
func (p *Page) HasMore() bool {
	return p.Next() < p.Total && len(p.Items) > 0
}

// Section is a library section as listed by the server.
type Section struct {
	Key   int    `json:"key"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

// Update is one addedAt edit.
type Update struct {
	SectionID int
	Type      ItemType
	ID        int64
	AddedAt   time.Time

	// Lock pins the field so the server's own scanners leave it alone
	Lock bool
}

// ValidationError reports a request rejected before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
