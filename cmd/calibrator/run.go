package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"calibrator/internal/browser"
	"calibrator/internal/config"
	"calibrator/internal/debug"
	"calibrator/internal/guard"
)

// Function variables to allow overriding in tests.
var (
	exitProcess = os.Exit
	startHost   = runHost
)

// launchParams bundles the inputs of the run command.
type launchParams struct {
	stdin       io.Reader
	stdout      io.Writer
	stderr      io.Writer
	hostArgs    []string
	interactive bool
	guard       *guard.Guard
}

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run [-- host args...]",
		Short: "Check for updates once, then start the application (default)",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			code := runLaunch(cmd.Context(), launchParams{
				stdin:       cmd.InOrStdin(),
				stdout:      cmd.OutOrStdout(),
				stderr:      cmd.ErrOrStderr(),
				hostArgs:    args,
				interactive: isInteractive(),
				guard:       guard.New(""),
			})
			if code != 0 {
				debug.Close()
				exitProcess(code)
			}
			return nil
		},
	}
}

// runLaunch runs the update flow and then the host application. It
// returns the host's exit status. Update problems are reported and never
// stop the host from starting.
func runLaunch(ctx context.Context, p launchParams) int {
	if config.GetBool(config.KeyUpdateSkip) {
		debug.Log("update check disabled by configuration")
	} else {
		checkForUpdate(ctx, p)
	}

	if url := strings.TrimSpace(config.GetString(config.KeyBrowserURL)); url != "" {
		browser.OpenAfter(ctx, url, config.GetDuration(config.KeyBrowserDelay))
	}

	command := strings.TrimSpace(config.GetString(config.KeyHostCommand))
	if command == "" {
		debug.Log("no host command configured")
		return 0
	}
	args := append(config.GetStringSlice(config.KeyHostArgs), p.hostArgs...)
	code, err := startHost(ctx, command, args, p.stdin, p.stdout, p.stderr)
	if err != nil {
		_, _ = fmt.Fprintf(p.stderr, "[Updater] Could not start %s: %v\n", command, err)
		return 1
	}

	if p.guard != nil {
		if err := p.guard.Clear(); err != nil {
			debug.Warn("clear update guard", "err", err)
		}
	}
	return code
}

func checkForUpdate(ctx context.Context, p launchParams) {
	install, err := loadInstall()
	if err != nil {
		debug.Warn("cannot describe installation", "err", err)
		return
	}
	up := updateParams{
		stdout:      p.stdout,
		stderr:      p.stderr,
		install:     install,
		interactive: p.interactive,
	}
	if p.guard != nil {
		up.guard = p.guard
		up.runID = p.guard.RunID()
	}

	o, cleanup, err := buildOrchestrator(ctx, up)
	if err != nil {
		_, _ = fmt.Fprintf(p.stderr, "[Updater] Updates disabled: %v\n", err)
		return
	}
	out := o.Run(ctx)
	cleanup()
	debug.Info("update run finished", "state", out.State, "skipped", out.Skipped)
}

// runHost starts the host application with inherited stdio and waits
// for it. Children inherit the update guard through the environment.
func runHost(ctx context.Context, command string, args []string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	//nolint:gosec // G204: host command comes from the install or user config
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Env = os.Environ()

	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return 0, err
	}
	return 0, nil
}
