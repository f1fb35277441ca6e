package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	formwizard "github.com/goliatone/go-formwizard"
	"github.com/goliatone/go-formwizard/internal/cli"
	"github.com/goliatone/go-formwizard/pkg/session"
)

func (a *app) runCmd() *cobra.Command {
	var editID, resumeID string
	cmd := &cobra.Command{
		Use:   "run <wizard>",
		Short: "Fill a wizard interactively",
		Long: `Prompts for every visible field of each step, shows a review and submits the
record to the configured store.

Cancelling saves the session when a local database is configured; continue it
later with --resume.`,
		Example: `  formwizard run farmer
  formwizard run farmer --edit F-1042
  formwizard run farmer --resume 01J9Z7...`,
		Args: cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && resumeID == "" {
				return errors.New("name a wizard or pass --resume")
			}
			if editID != "" && resumeID != "" {
				return errors.New("--edit and --resume cannot be combined")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			res, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer res.Close()

			s, err := a.startSession(ctx, res.engine, args, editID, resumeID)
			if err != nil {
				return err
			}
			defer s.Close()
			return a.drive(ctx, cmd, res.engine, s, resumeID)
		},
	}
	cmd.Flags().StringVar(&editID, "edit", "", "edit the existing record with this id")
	cmd.Flags().StringVar(&resumeID, "resume", "", "continue a saved session")
	return cmd
}

func (a *app) startSession(ctx context.Context, engine *formwizard.Engine, args []string, editID, resumeID string) (*session.Session, error) {
	switch {
	case resumeID != "":
		s, err := engine.Resume(ctx, resumeID)
		if err != nil {
			return nil, err
		}
		if len(args) == 1 && args[0] != s.Definition().ID {
			_ = s.Close()
			return nil, fmt.Errorf("session %s belongs to wizard %q", resumeID, s.Definition().ID)
		}
		return s, nil
	case editID != "":
		return engine.Edit(ctx, args[0], editID)
	default:
		return engine.Start(args[0])
	}
}

func (a *app) drive(ctx context.Context, cmd *cobra.Command, engine *formwizard.Engine, s *session.Session, resumeID string) error {
	out := cmd.OutOrStdout()
	driver := a.prompts
	if driver == nil {
		driver = cli.NewSurveyDriver(out)
	}
	runner := cli.NewRunner(
		cli.WithPromptDriver(driver),
		cli.WithFileReader(a.readFile),
		cli.WithLogger(a.logger.Named("cli")),
	)

	err := runner.Run(ctx, s)
	switch {
	case err == nil:
		if resumeID != "" {
			if err := engine.Discard(ctx, resumeID); err != nil {
				a.logger.Warn("discard snapshot", zap.String("session", resumeID), zap.Error(err))
			}
		}
		return nil
	case errors.Is(err, cli.ErrAborted) || errors.Is(err, context.Canceled):
		// the signal context is done; saving must not inherit it
		saveErr := engine.Save(context.WithoutCancel(ctx), s)
		if errors.Is(saveErr, formwizard.ErrNoSnapshots) {
			fmt.Fprintln(out, "Cancelled. Nothing was saved.")
			return nil
		}
		if saveErr != nil {
			return fmt.Errorf("save session: %w", saveErr)
		}
		fmt.Fprintf(out, "Session saved. Resume with: formwizard run %s --resume %s\n", s.Definition().ID, s.ID())
		return nil
	default:
		return err
	}
}
