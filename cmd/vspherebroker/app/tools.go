package app

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/vspherebroker/tools"
)

func newToolsCmd(_ *options) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tool catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDESTRUCTIVE\tDESCRIPTION")
			for _, t := range tools.Default().All() {
				fmt.Fprintf(w, "%s\t%t\t%s\n", t.Name, t.Destructive, t.Description)
			}
			return w.Flush()
		},
	}
}
