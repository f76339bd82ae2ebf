package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/plex-added-date/pkg/batch"
	"github.com/Sternrassler/plex-added-date/pkg/selection"
)

type selectOptions struct {
	filter    filterFlags
	add       []string
	remove    []string
	clear     bool
	all       bool
	addedFrom string
	addedTo   string
	deselect  bool
	show      bool
	delete    bool
}

func newSelectCmd(a *app) *cobra.Command {
	opts := &selectOptions{}

	cmd := &cobra.Command{
		Use:   "select NAME",
		Short: "Build a named selection in Redis",
		Long: `Edit the selection NAME stored in Redis. Edits apply in this order:
--clear, --add, --remove, then --all or the --added-from/--added-to range.
The selection can then be applied with "plexdate update --selection NAME".

Examples:
  plexdate select weekend --section-id 1 --all --title-contains alien
  plexdate select weekend --remove 12345
  plexdate select weekend --section-id 1 --added-from 2024-01-01 --added-to 2024-01-31 --deselect
  plexdate select weekend --show
`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelect(cmd.Context(), a, args[0], opts)
		},
	}

	opts.filter.register(cmd, 200)
	f := cmd.Flags()
	f.StringSliceVar(&opts.add, "add", nil, "Add ids to the selection")
	f.StringSliceVar(&opts.remove, "remove", nil, "Remove ids from the selection")
	f.BoolVar(&opts.clear, "clear", false, "Empty the selection first")
	f.BoolVar(&opts.all, "all", false, "Select every item matching the filters")
	f.StringVar(&opts.addedFrom, "added-from", "", "Start of an addedAt range, YYYY-MM-DD")
	f.StringVar(&opts.addedTo, "added-to", "", "End of an addedAt range, YYYY-MM-DD (default --added-from)")
	f.BoolVar(&opts.deselect, "deselect", false, "Remove matches of --all or the range instead of adding them")
	f.BoolVar(&opts.show, "show", false, "Print the selection after editing")
	f.BoolVar(&opts.delete, "delete", false, "Delete the selection")
	return cmd
}

func runSelect(ctx context.Context, a *app, name string, opts *selectOptions) error {
	if opts.all && opts.addedFrom != "" {
		return usagef("--all and --added-from are mutually exclusive")
	}
	if opts.addedTo != "" && opts.addedFrom == "" {
		return usagef("--added-to needs --added-from")
	}
	if opts.deselect && !opts.all && opts.addedFrom == "" {
		return usagef("--deselect needs --all or --added-from")
	}
	adds, err := parseIDs(opts.add)
	if err != nil {
		return err
	}
	removes, err := parseIDs(opts.remove)
	if err != nil {
		return err
	}

	var from, to time.Time
	if opts.addedFrom != "" {
		loc, err := a.location()
		if err != nil {
			return err
		}
		if from, err = batch.ParseDate(opts.addedFrom, loc); err != nil {
			return err
		}
		to = from
		if opts.addedTo != "" {
			if to, err = batch.ParseDate(opts.addedTo, loc); err != nil {
				return err
			}
		}
	}

	store, err := a.selectionStore(ctx)
	if err != nil {
		return err
	}

	if opts.delete {
		if err := store.Delete(ctx, name); err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "Deleted selection %q.\n", name)
		return nil
	}

	sel, err := store.Load(ctx, name)
	if errors.Is(err, selection.ErrNotFound) {
		sel, err = selection.New(), nil
	}
	if err != nil {
		return err
	}
	before := sel.Len()

	if opts.clear {
		sel.Clear()
	}
	for _, id := range adds {
		sel.Add(id)
	}
	for _, id := range removes {
		sel.Remove(id)
	}

	if opts.all || opts.addedFrom != "" {
		cfg, err := opts.filter.filterConfig()
		if err != nil {
			return err
		}
		lib, err := a.libraryClient()
		if err != nil {
			return err
		}

		var changed int
		switch {
		case opts.all && opts.deselect:
			changed, err = sel.DeselectAllMatching(ctx, lib, cfg, cfg.Title)
		case opts.all:
			changed, err = sel.SelectAllMatching(ctx, lib, cfg, cfg.Title)
		case opts.deselect:
			changed, err = sel.DeselectAddedRange(ctx, lib, cfg, from, to, cfg.Title)
		default:
			changed, err = sel.SelectAddedRange(ctx, lib, cfg, from, to, cfg.Title)
		}
		if err != nil {
			// a partial walk is not saved
			return fmt.Errorf("walk section %d: %w", cfg.SectionID, err)
		}
		a.logger.Debug().Int("changed", changed).Msg("Section walk finished")
	}

	if err := store.Save(ctx, name, sel); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Selection %q: %d item(s) (was %d).\n", name, sel.Len(), before)

	if opts.show {
		for _, id := range sel.Snapshot() {
			if title := sel.Title(id); title != "" {
				fmt.Fprintf(a.stdout, "%d\t%s\n", id, title)
			} else {
				fmt.Fprintf(a.stdout, "%d\n", id)
			}
		}
	}
	return nil
}
