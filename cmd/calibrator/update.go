package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"calibrator/internal/orchestrator"
	"calibrator/internal/release"
)

func newUpdateCommand() *cobra.Command {
	var check, yes bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Check for a new release now and offer to install it",
		Long: `Check the release registry immediately, ignoring the once-per-run guard.

With --check the command only reports whether an update is available.
With --yes the update is installed without asking.`,
		Example: `  calibrator update --check
  calibrator update --yes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			install, err := loadInstall()
			if err != nil {
				return &exitError{Code: 1, Err: err}
			}
			if check {
				return runCheck(cmd.Context(), cmd.OutOrStdout(), newSource(), install)
			}
			return runUpdate(cmd.Context(), updateParams{
				stdout:      cmd.OutOrStdout(),
				stderr:      cmd.ErrOrStderr(),
				install:     install,
				yes:         yes,
				interactive: isInteractive(),
			})
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "only report whether an update is available")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "install without asking")
	return cmd
}

// runCheck prints the result of a single release lookup.
func runCheck(ctx context.Context, w io.Writer, src orchestrator.ReleaseChecker, install orchestrator.Install) error {
	switch r := src.FetchLatest(ctx, install.Version).(type) {
	case release.UpdateAvailable:
		_, _ = fmt.Fprintf(w, "Current version: %s\n", r.Info.CurrentVersion)
		_, _ = fmt.Fprintf(w, "Latest version:  %s\n", r.Info.LatestVersion)
		_, _ = fmt.Fprintf(w, "\nAn update is available: %s → %s\n", r.Info.CurrentVersion, r.Info.LatestVersion)
		if r.Info.Ambiguous {
			_, _ = fmt.Fprintln(w, "(version numbers could not be compared; the release tag differs)")
		}
		_, _ = fmt.Fprintln(w, "Run 'calibrator update' to install.")
		return nil
	case release.NoUpdate:
		_, _ = fmt.Fprintf(w, "Current version: %s\n", r.Current)
		if r.Latest != "" {
			_, _ = fmt.Fprintf(w, "Latest version:  %s\n", r.Latest)
		}
		_, _ = fmt.Fprintf(w, "\nNo update available (%s).\n", r.Reason)
		return nil
	case release.CheckFailed:
		return &exitError{Code: 2, Err: fmt.Errorf("checking for updates: %w", r.Err)}
	default:
		return &exitError{Code: 2, Err: errors.New("checking for updates: unexpected result")}
	}
}

// runUpdate runs the full flow without the guard.
func runUpdate(ctx context.Context, p updateParams) error {
	o, cleanup, err := buildOrchestrator(ctx, p)
	if err != nil {
		return &exitError{Code: 1, Err: err}
	}
	defer cleanup()
	return reportOutcome(p.stdout, o.Run(ctx))
}

func reportOutcome(w io.Writer, out orchestrator.Outcome) error {
	switch out.State {
	case orchestrator.NoUpdate:
		if out.Err != nil {
			return &exitError{Code: 2, Err: fmt.Errorf("checking for updates: %w", out.Err)}
		}
		_, _ = fmt.Fprintln(w, "Already up to date.")
	case orchestrator.Declined:
		if errors.Is(out.Err, orchestrator.ErrUpdateInProgress) {
			return &exitError{Code: 1, Err: out.Err}
		}
		_, _ = fmt.Fprintf(w, "Update to %s skipped.\n", out.Info.LatestVersion)
	case orchestrator.Failed:
		return &exitError{Code: 2, Err: fmt.Errorf("update failed: %w", out.Err)}
	case orchestrator.Scheduled:
		_, _ = fmt.Fprintf(w, "Update to %s scheduled.\n", out.Info.LatestVersion)
	}
	return nil
}
