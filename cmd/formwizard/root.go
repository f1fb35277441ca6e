package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/goliatone/go-formwizard/internal/cli"
	"github.com/goliatone/go-formwizard/internal/config"
)

// app carries what the subcommands share once flags are parsed.
type app struct {
	out        io.Writer
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *zap.Logger

	// prompts and readFile replace the terminal in tests.
	prompts  cli.PromptDriver
	readFile func(string) ([]byte, error)
}

func newRootCmd(out io.Writer) *cobra.Command {
	return newApp(out).command()
}

func newApp(out io.Writer) *app {
	return &app{out: out, readFile: os.ReadFile, logger: zap.NewNop()}
}

func (a *app) command() *cobra.Command {
	root := &cobra.Command{
		Use:           "formwizard",
		Short:         "Fill registry wizards from the terminal",
		Long:          "formwizard walks the farmer, employee and FPO registration wizards step by step\nand submits them to the configured registry backend.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			if a.logLevel != "" {
				cfg.Logging.Level = a.logLevel
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			logger, err := cfg.Logger()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			a.cfg = cfg
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.SetOut(a.out)
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "formwizard.yaml", "configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	root.AddCommand(
		a.listCmd(),
		a.runCmd(),
		a.serveCmd(),
		a.lintCmd(),
		a.snapshotsCmd(),
		a.refdataCmd(),
	)
	return root
}
