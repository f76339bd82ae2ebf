package library

import (
	"fmt"
	"strconv"
	"time"
)

// apiResponse is the JSON envelope of every Plex response.
type apiResponse struct {
	MediaContainer mediaContainer `json:"MediaContainer"`
}

type mediaContainer struct {
	Size             int         `json:"size"`
	TotalSize        *int        `json:"totalSize,omitempty"`
	Offset           int         `json:"offset,omitempty"`
	LibrarySectionID int         `json:"librarySectionID,omitempty"`
	Directory        []directory `json:"Directory,omitempty"`
	Metadata         []metadata  `json:"Metadata,omitempty"`
}

type directory struct {
	Key    string `json:"key"`
	Type   string `json:"type"`
	Title  string `json:"title"`
	Title1 string `json:"title1,omitempty"`
}

type metadata struct {
	RatingKey             string `json:"ratingKey"`
	Type                  string `json:"type"`
	Title                 string `json:"title"`
	Year                  int    `json:"year,omitempty"`
	Thumb                 string `json:"thumb,omitempty"`
	OriginallyAvailableAt string `json:"originallyAvailableAt,omitempty"`
	AddedAt               int64  `json:"addedAt,omitempty"`
}

// total prefers totalSize, then size, then the number of decoded items.
func (c mediaContainer) total() int {
	if c.TotalSize != nil {
		return *c.TotalSize
	}
	if c.Size > 0 {
		return c.Size
	}
	return len(c.Metadata)
}

func mapItems(raw []metadata, sectionID int, itemType ItemType) ([]Item, error) {
	items := make([]Item, 0, len(raw))
	for _, m := range raw {
		item, err := mapItem(m, sectionID, itemType)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func mapItem(m metadata, sectionID int, itemType ItemType) (Item, error) {
	id, err := strconv.ParseInt(m.RatingKey, 10, 64)
	if err != nil {
		return Item{}, fmt.Errorf("decode ratingKey %q: %w", m.RatingKey, err)
	}

	item := Item{
		ID:        id,
		Title:     m.Title,
		Year:      m.Year,
		Thumb:     m.Thumb,
		Type:      itemType,
		SectionID: sectionID,
	}
	if m.AddedAt > 0 {
		item.AddedAt = time.Unix(m.AddedAt, 0)
	}
	if m.OriginallyAvailableAt != "" {
		// Display only, a malformed date is dropped rather than failing the page
		if released, err := time.Parse("2006-01-02", m.OriginallyAvailableAt); err == nil {
			item.Released = released
		}
	}
	return item, nil
}

func mapSections(dirs []directory) []Section {
	sections := make([]Section, 0, len(dirs))
	for _, d := range dirs {
		key, err := strconv.Atoi(d.Key)
		if err != nil {
			continue
		}
		title := d.Title
		if title == "" {
			title = d.Title1
		}
		if title == "" {
			title = "Section"
		}
		sections = append(sections, Section{Key: key, Title: title, Type: d.Type})
	}
	return sections
}
