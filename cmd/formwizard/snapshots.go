package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) snapshotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"snapshots"},
		Short:   "List saved sessions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer res.Close()
			if res.db == nil {
				return errNoLocalDB
			}
			infos, err := res.db.ListSnapshots(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(infos) == 0 {
				fmt.Fprintln(out, "No saved sessions.")
				return nil
			}
			for _, info := range infos {
				fmt.Fprintf(out, "%s  %-10s %s\n", info.ID, info.Wizard, info.UpdatedAt)
			}
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "rm <session>...",
		Short: "Delete saved sessions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer res.Close()
			for _, id := range args {
				if err := res.engine.Discard(cmd.Context(), id); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d session(s).\n", len(args))
			return nil
		},
	})
	return cmd
}
