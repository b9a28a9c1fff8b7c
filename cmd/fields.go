package cmd

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/places-crawler/internal/place"
)

func newFieldsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fields",
		Short: "Lists the fields that --fields accepts",
		Args:  cobra.NoArgs,
		// Listing the catalog needs no configuration or services.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		PersistentPostRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, _ []string) {
			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"#", "Field", "Always kept"})
			for i, name := range place.Catalog() {
				kept := ""
				if place.IsIdentity(name) {
					kept = "yes"
				}
				t.AppendRow(table.Row{i + 1, name, kept})
			}
			t.SetStyle(table.StyleRounded)
			t.Render()
		},
	}
}
