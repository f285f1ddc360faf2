package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"calibrator/internal/config"
	"calibrator/internal/debug"
)

// exitError carries a process exit code out of a RunE handler.
type exitError struct {
	Code int
	Err  error
}

func (e *exitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *exitError) Unwrap() error { return e.Err }

type rootFlags struct {
	debug      bool
	installDir string
	userConfig string
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}
	run := newRunCommand()

	root := &cobra.Command{
		Use:   "calibrator [-- host args...]",
		Short: "Launch CameraCalibrator and keep it up to date",
		Long: `calibrator starts CameraCalibrator. Once per run it checks the release
registry for a newer version and, when one is accepted, replaces the
installation through a detached script and restarts.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setup(flags, cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			debug.Close()
		},
		RunE: run.RunE,
	}

	pf := root.PersistentFlags()
	pf.BoolVar(&flags.debug, "debug", false, "write a debug log to ~/.calibrator/debug.log")
	pf.StringVar(&flags.installDir, "install-dir", "", "installation directory (default: directory of the executable)")
	pf.StringVar(&flags.userConfig, "config", "", "user config file (default: ~/.calibrator/updater.yaml)")

	root.AddCommand(run, newUpdateCommand(), newHistoryCommand(), newVersionCommand())
	return root
}

func setup(flags *rootFlags, cmd *cobra.Command) error {
	var opts []config.Option
	if dir := strings.TrimSpace(flags.installDir); dir != "" {
		opts = append(opts, config.WithInstallDir(dir))
	}
	if path := strings.TrimSpace(flags.userConfig); path != "" {
		opts = append(opts, config.WithUserConfig(path))
	}
	if err := config.Initialize(opts...); err != nil {
		return &exitError{Code: 1, Err: err}
	}
	if cmd.Flags().Changed("debug") {
		if err := config.ApplyOverrides(map[string]any{config.KeyDebug: flags.debug}); err != nil {
			return err
		}
	}
	if err := debug.Init(config.GetBool(config.KeyDebug)); err != nil {
		// Logging is optional; keep going without it.
		_ = debug.Init(false)
	}
	debug.Info("calibrator starting", "version", Version, "command", cmd.Name())
	return nil
}

func execute(ctx context.Context, args []string) int {
	root := newRootCommand()
	root.SetArgs(args)

	err := fang.Execute(
		ctx,
		root,
		fang.WithVersion(versionString()),
		fang.WithNotifySignal(os.Interrupt),
	)
	if err == nil {
		return 0
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}
