package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/plex-added-date/pkg/batch"
	"github.com/Sternrassler/plex-added-date/pkg/library"
	"github.com/Sternrassler/plex-added-date/pkg/selection"
)

type listOptions struct {
	filter    filterFlags
	page      int
	thumbs    bool
	asJSON    bool
	selection string
}

func newListCmd(a *app) *cobra.Command {
	opts := &listOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show one page of a section",
		Long: `Show one page of a section with the server-side year filter and the
client-side title filter applied. Pages are cached, in Redis when configured.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), a, opts)
		},
	}

	opts.filter.register(cmd, library.DefaultPageSize)
	f := cmd.Flags()
	f.IntVar(&opts.page, "page", 1, "Page number, starting at 1")
	f.BoolVar(&opts.thumbs, "thumbs", false, "Print tokenized thumbnail URLs")
	f.BoolVar(&opts.asJSON, "json", false, "Print the page as JSON")
	f.StringVar(&opts.selection, "selection", "", "Mark items contained in this saved selection")
	return cmd
}

type listedItem struct {
	library.Item
	ThumbURL string `json:"thumb_url,omitempty"`
	Selected bool   `json:"selected,omitempty"`
}

type listedPage struct {
	Page  int          `json:"page"`
	Total int          `json:"total"`
	Items []listedItem `json:"items"`
}

func runList(ctx context.Context, a *app, opts *listOptions) error {
	cfg, err := opts.filter.filterConfig()
	if err != nil {
		return err
	}
	if opts.page < 1 {
		return usagef("--page must be at least 1")
	}
	loc, err := a.location()
	if err != nil {
		return err
	}

	lib, err := a.libraryClient()
	if err != nil {
		return err
	}
	store, err := a.cacheStore(ctx)
	if err != nil {
		return err
	}

	var marked *selection.Set
	if opts.selection != "" {
		sels, err := a.selectionStore(ctx)
		if err != nil {
			return err
		}
		marked, err = sels.Load(ctx, opts.selection)
		switch {
		case errors.Is(err, selection.ErrNotFound):
			marked = selection.New()
		case err != nil:
			return fmt.Errorf("load selection %q: %w", opts.selection, err)
		}
	}

	src := library.NewCachedSource(lib, store, a.cfg.Cache.TTL, a.logger)
	limit := cfg.EffectivePageSize()
	page, err := src.FetchPage(ctx, cfg, (opts.page-1)*limit, limit)
	if err != nil {
		return err
	}
	page = library.ApplyTitleFilter(page, cfg.Title)

	out := listedPage{Page: opts.page, Total: page.Total, Items: make([]listedItem, 0, len(page.Items))}
	for _, item := range page.Items {
		li := listedItem{Item: item}
		if opts.thumbs {
			li.ThumbURL = lib.ThumbURL(item.Thumb)
		}
		if marked != nil {
			li.Selected = marked.Contains(item.ID)
		}
		out.Items = append(out.Items, li)
	}

	if opts.asJSON {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	return printPage(a, out, loc, marked != nil, opts.thumbs)
}

func printPage(a *app, out listedPage, loc *time.Location, marks, thumbs bool) error {
	fmt.Fprintf(a.stdout, "Page %d, %d item(s) of %d total\n", out.Page, len(out.Items), out.Total)
	if len(out.Items) == 0 {
		return nil
	}

	w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	header := "ID\tYEAR\tADDED\tTITLE"
	if marks {
		header = " \t" + header
	}
	if thumbs {
		header += "\tTHUMB"
	}
	fmt.Fprintln(w, header)

	for _, item := range out.Items {
		if marks {
			mark := " "
			if item.Selected {
				mark = "*"
			}
			fmt.Fprintf(w, "%s\t", mark)
		}
		added := "-"
		if !item.AddedAt.IsZero() {
			added = item.AddedAt.In(loc).Format(batch.DateLayout)
		}
		year := "-"
		if item.Year > 0 {
			year = fmt.Sprintf("%d", item.Year)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s", item.ID, year, added, item.Title)
		if thumbs {
			fmt.Fprintf(w, "\t%s", item.ThumbURL)
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}
