package library

import "strings"

// ApplyTitleFilter keeps the items whose title contains substring, ignoring
// case. It never touches the network, so it only narrows the page it is
// given. An empty substring returns page unchanged.
func ApplyTitleFilter(page *Page, substring string) *Page {
	needle := strings.ToLower(strings.TrimSpace(substring))
	if page == nil || needle == "" {
		return page
	}

	filtered := make([]Item, 0, len(page.Items))
	for _, item := range page.Items {
		if strings.Contains(strings.ToLower(item.Title), needle) {
			filtered = append(filtered, item)
		}
	}

	return &Page{
		Items:  filtered,
		Offset: page.Offset,
		Limit:  page.Limit,
		Total:  page.Total,
	}
}
