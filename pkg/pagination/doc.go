// Package pagination walks every page of a Plex library section.
//
// Plex reports the size of a listing in totalSize, and that number moves
// while items are added or removed. The walker therefore re-reads the total
// from every page and never plans the walk up front.
//
// Example usage:
//
//	walker := pagination.NewWalker(libraryClient, pagination.DefaultConfig())
//	stats, err := walker.Walk(ctx, cfg, func(page *library.Page) error {
//	    for _, item := range page.Items {
//	        fmt.Println(item.ID, item.Title)
//	    }
//	    return nil
//	})
//
// The walker:
//   - Fetches pages one at a time, in order, starting at offset 0
//   - Checks the context before every page
//   - Stops at the latest reported total or at the first empty page
//   - Returns the partial Stats alongside any error
package pagination
