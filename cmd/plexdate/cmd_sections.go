package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newSectionsCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "sections",
		Short: "List library sections",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := a.libraryClient()
			if err != nil {
				return err
			}
			sections, err := lib.ListSections(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(sections)
			}

			if len(sections) == 0 {
				fmt.Fprintln(a.stdout, "No sections found.")
				return nil
			}
			w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tTYPE\tTITLE")
			for _, s := range sections {
				fmt.Fprintf(w, "%d\t%s\t%s\n", s.Key, s.Type, s.Title)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print sections as JSON")
	return cmd
}
