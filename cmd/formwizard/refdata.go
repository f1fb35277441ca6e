package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-formwizard/pkg/refdata"
)

func (a *app) refdataCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refdata",
		Short: "Manage the option lists behind select fields",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "import <file>",
			Short: "Import option lists from YAML into the local database",
			Long: `Imports a YAML file shaped as source -> parent value -> options into the local
database. Imported sources take precedence over the bundled lists.`,
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				data, err := a.readFile(args[0])
				if err != nil {
					return err
				}
				static, err := refdata.ParseYAML(data)
				if err != nil {
					return err
				}
				res, err := a.open(cmd.Context())
				if err != nil {
					return err
				}
				defer res.Close()
				if res.db == nil {
					return errNoLocalDB
				}
				if err := res.db.ImportStatic(cmd.Context(), static); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d sources from %s.\n", len(static.Sources()), args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "show <source> [parent]",
			Short: "Print the options of a source",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				res, err := a.open(cmd.Context())
				if err != nil {
					return err
				}
				defer res.Close()
				parent := ""
				if len(args) == 2 {
					parent = args[1]
				}
				options, err := res.refs.List(cmd.Context(), args[0], parent)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, option := range options {
					fmt.Fprintf(out, "%-12s %s\n", option.Value, option.Label)
				}
				return nil
			},
		},
	)
	return cmd
}
