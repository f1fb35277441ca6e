package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-formwizard/pkg/definition"
	"github.com/goliatone/go-formwizard/pkg/wizards"
)

var errLintFailed = errors.New("lint failed")

func (a *app) lintCmd() *cobra.Command {
	var checkContract bool
	cmd := &cobra.Command{
		Use:   "lint [dir]",
		Short: "Check wizard definitions for structural mistakes",
		Long: `Loads every .json, .yaml and .yml definition under dir (default: the
configured definitions, else the bundled wizards) and reports every problem
found in each one.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var fsys fs.FS
			switch {
			case len(args) == 1:
				fsys = os.DirFS(args[0])
			case a.cfg.Definitions != "":
				fsys = os.DirFS(a.cfg.Definitions)
			default:
				fsys = wizards.FS()
			}
			catalog, err := definition.LoadFS(fsys, definition.WithoutLint())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, id := range catalog.IDs() {
				def, _ := catalog.Get(id)
				err := definition.Lint(def, nil)
				var lintErr *definition.LintError
				switch {
				case errors.As(err, &lintErr):
					failed++
					fmt.Fprintf(out, "FAIL %s (%s)\n", id, def.Source)
					for _, problem := range lintErr.Problems {
						fmt.Fprintf(out, "  - %s\n", problem)
					}
				case err != nil:
					return err
				default:
					fmt.Fprintf(out, "ok   %s (%s)\n", id, def.Source)
				}
			}

			if checkContract {
				c, err := a.loadContract(cmd.Context())
				if err != nil {
					return err
				}
				for _, id := range catalog.IDs() {
					def, _ := catalog.Get(id)
					for _, op := range []string{def.Operations.Create, def.Operations.Update} {
						if op != "" && !c.Has(op) {
							fmt.Fprintf(out, "note %s: operation %q is not in the contract\n", id, op)
						}
					}
				}
			}
			if failed > 0 {
				return fmt.Errorf("%w: %d of %d wizards", errLintFailed, failed, catalog.Len())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&checkContract, "contract", false, "also report operations missing from the OpenAPI contract")
	return cmd
}
