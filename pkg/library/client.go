package library

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/Sternrassler/plex-added-date/pkg/client"
	"github.com/rs/zerolog"
)

// Requester is the transport used by Client. *client.Client implements it.
type Requester interface {
	Get(ctx context.Context, path string, params url.Values) (*client.Response, error)
	Put(ctx context.Context, path string, params url.Values) (*client.Response, error)
}

// PageSource fetches a single page of a section.
type PageSource interface {
	FetchPage(ctx context.Context, cfg FilterConfig, offset, limit int) (*Page, error)
}

// Client is the library view of a Plex server.
type Client struct {
	conn    Requester
	baseURL string
	token   string
	logger  zerolog.Logger
}

// New creates a library client on top of a transport.
func New(conn Requester, logger zerolog.Logger) *Client {
	c := &Client{conn: conn, logger: logger}
	if rc, ok := conn.(*client.Client); ok {
		c.baseURL = rc.BaseURL()
		c.token = rc.Token()
	}
	return c
}

func sectionPath(sectionID int) string {
	return fmt.Sprintf("/library/sections/%d/all", sectionID)
}

// FetchPage returns one page of the section described by cfg. A limit of 0
// falls back to cfg.PageSize; limits above MaxPageSize are clamped. Only the
// year filter is applied server-side, see ApplyTitleFilter for titles.
func (c *Client) FetchPage(ctx context.Context, cfg FilterConfig, offset, limit int) (*Page, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if offset < 0 {
		return nil, &ValidationError{Field: "offset", Reason: "must not be negative"}
	}
	if limit < 0 {
		return nil, &ValidationError{Field: "limit", Reason: "must not be negative"}
	}
	if limit == 0 {
		limit = cfg.PageSize
	}
	limit = clampLimit(limit)

	body, err := c.get(ctx, sectionPath(cfg.SectionID), pageQuery(cfg, offset, limit))
	if err != nil {
		return nil, fmt.Errorf("fetch section %d offset %d: %w", cfg.SectionID, offset, err)
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode section %d page: %w", cfg.SectionID, err)
	}

	items, err := mapItems(resp.MediaContainer.Metadata, cfg.SectionID, cfg.Type)
	if err != nil {
		return nil, fmt.Errorf("decode section %d page: %w", cfg.SectionID, err)
	}

	page := &Page{
		Items:  items,
		Offset: offset,
		Limit:  limit,
		Total:  resp.MediaContainer.total(),
	}

	c.logger.Debug().
		Int("section_id", cfg.SectionID).
		Int("offset", offset).
		Int("limit", limit).
		Int("items", len(items)).
		Int("total", page.Total).
		Msg("Fetched page")

	return page, nil
}

func pageQuery(cfg FilterConfig, offset, limit int) url.Values {
	query := url.Values{}
	query.Set("type", cfg.Type.ID())
	query.Set("sort", cfg.SortKey())
	query.Set("X-Plex-Container-Start", strconv.Itoa(offset))
	query.Set("X-Plex-Container-Size", strconv.Itoa(limit))
	if cfg.Year > 0 {
		query.Set("year", strconv.Itoa(cfg.Year))
	}
	return query
}

// UpdateAddedAt overwrites an item's addedAt. The lock directive travels in
// the same request, so a repeat of the call is harmless.
func (c *Client) UpdateAddedAt(ctx context.Context, u Update) error {
	if u.SectionID <= 0 {
		return &ValidationError{Field: "section_id", Reason: "is required"}
	}
	if u.ID <= 0 {
		return &ValidationError{Field: "id", Reason: "must be positive"}
	}

	query := url.Values{}
	query.Set("type", u.Type.ID())
	query.Set("id", strconv.FormatInt(u.ID, 10))
	query.Set("addedAt.value", strconv.FormatInt(u.AddedAt.Unix(), 10))
	if u.Lock {
		query.Set("addedAt.locked", "1")
	}

	if _, err := c.conn.Put(ctx, sectionPath(u.SectionID), query); err != nil {
		return fmt.Errorf("update item %d: %w", u.ID, err)
	}

	c.logger.Debug().
		Int64("id", u.ID).
		Int64("added_at", u.AddedAt.Unix()).
		Bool("lock", u.Lock).
		Msg("Updated addedAt")
	return nil
}

// ListSections returns the server's library sections.
func (c *Client) ListSections(ctx context.Context) ([]Section, error) {
	body, err := c.get(ctx, "/library/sections", nil)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode sections: %w", err)
	}
	return mapSections(resp.MediaContainer.Directory), nil
}

// ThumbURL turns a thumb path into a tokenized absolute URL. Absolute paths
// keep their host and only gain the token.
func (c *Client) ThumbURL(path string) string {
	if path == "" {
		return ""
	}
	token := url.QueryEscape(c.token)
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		joiner := "?"
		if strings.Contains(path, "?") {
			joiner = "&"
		}
		return path + joiner + "X-Plex-Token=" + token
	}
	return c.baseURL + path + "?X-Plex-Token=" + token
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	resp, err := c.conn.Get(ctx, path, query)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
