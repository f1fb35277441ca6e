package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the available wizards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := a.loadCatalog()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, id := range catalog.IDs() {
				def, _ := catalog.Get(id)
				fmt.Fprintf(out, "%-10s %-28s %d steps  /%s\n", def.ID, def.Label, len(def.Steps), def.Resource)
			}
			return nil
		},
	}
}
