package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"calibrator/internal/archive"
	"calibrator/internal/config"
	"calibrator/internal/debug"
	"calibrator/internal/dialog"
	"calibrator/internal/journal"
	"calibrator/internal/orchestrator"
	"calibrator/internal/release"
	"calibrator/internal/vault"
	"calibrator/internal/version"
)

// isInteractive is a function variable to allow overriding in tests.
var isInteractive = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// loadInstall describes the running installation from configuration.
func loadInstall() (orchestrator.Install, error) {
	dir, err := config.InstallDir()
	if err != nil {
		return orchestrator.Install{}, err
	}
	exe, err := config.Executable()
	if err != nil {
		return orchestrator.Install{}, err
	}
	internal := strings.TrimSpace(config.GetString(config.KeyInstallInternalDir))
	if internal == "" {
		internal = config.DefaultInternalDir
	}
	marker := filepath.Join(dir, internal, config.GetString(config.KeyInstallVersionFile))

	return orchestrator.Install{
		Dir:         dir,
		Executable:  exe,
		InternalDir: internal,
		Version:     version.ReadMarker(marker),
		Package: archive.Layout{
			PackageDir:  config.GetString(config.KeyInstallPackageDir),
			Executable:  exe,
			InternalDir: internal,
		},
	}, nil
}

func newSource() *release.Source {
	opts := []release.Option{
		release.WithBaseURL(config.GetString(config.KeyReleaseAPIBase)),
		release.WithTimeout(config.GetDuration(config.KeyReleaseTimeout)),
		release.WithProductID(config.GetString(config.KeyReleaseProductID)),
		release.WithPackageExt(config.GetString(config.KeyReleasePackageExt)),
		release.WithUserAgent("calibrator/" + Version),
	}
	if token := strings.TrimSpace(config.GetString(config.KeyReleaseToken)); token != "" {
		opts = append(opts, release.WithToken(token))
	}
	return release.New(config.GetString(config.KeyRepoOwner), config.GetString(config.KeyRepoName), opts...)
}

func newDownloader() *archive.Downloader {
	return archive.NewDownloader(
		archive.WithStallTimeout(config.GetDuration(config.KeyDownloadTimeout)),
		archive.WithPrefix(config.GetString(config.KeyInstallPackageDir)),
	)
}

// openJournal opens the history database, or returns nil when it is not
// available. Journal problems never block an update.
func openJournal(ctx context.Context) *journal.Journal {
	path, err := journal.DefaultPath()
	if err != nil {
		debug.Warn("journal path unavailable", "err", err)
		return nil
	}
	j, err := journal.Open(ctx, path)
	if err != nil {
		debug.Warn("journal unavailable", "path", path, "err", err)
		return nil
	}
	return j
}

// updateParams bundles what the run and update commands need to build an
// orchestrator, so the wiring can be tested without a Cobra command.
type updateParams struct {
	stdout      io.Writer
	stderr      io.Writer
	install     orchestrator.Install
	guard       orchestrator.Guard // nil checks unconditionally
	yes         bool
	interactive bool
	runID       string
}

// buildOrchestrator wires the orchestrator from configuration. The
// returned cleanup must be called when Run returns.
func buildOrchestrator(ctx context.Context, p updateParams) (*orchestrator.Orchestrator, func(), error) {
	product := p.install.Package.PackageDir
	opts := []orchestrator.Option{
		orchestrator.WithVault(&vault.Vault{
			InternalDir: filepath.Join(p.install.Dir, p.install.InternalDir),
			Entries:     config.GetStringSlice(config.KeyBackupPaths),
			Prefix:      product + "_backup",
		}),
		orchestrator.WithGracePeriod(config.GetDuration(config.KeyUpdateGracePeriod)),
		orchestrator.WithNotices(p.stderr),
		orchestrator.WithRunID(p.runID),
	}
	if p.guard != nil {
		opts = append(opts, orchestrator.WithGuard(p.guard))
	}

	if key := strings.TrimSpace(config.GetString(config.KeyUpdateMinisignKey)); key != "" {
		pk, err := archive.LoadPublicKey(key)
		if err != nil {
			return nil, nil, fmt.Errorf("load update signing key: %w", err)
		}
		opts = append(opts, orchestrator.WithPublicKey(pk))
	}

	cleanups := []func(){}
	if j := openJournal(ctx); j != nil {
		opts = append(opts, orchestrator.WithJournal(j))
		cleanups = append(cleanups, func() { _ = j.Close() })
	}

	if p.interactive {
		bar := newDownloadProgress(p.stderr)
		opts = append(opts, orchestrator.WithProgress(bar.Report), orchestrator.WithProgressStop(bar.Stop))
		cleanups = append(cleanups, bar.Stop)
	}

	var decider orchestrator.Decider
	backupDefault := config.GetBool(config.KeyBackupDefault)
	switch {
	case p.yes:
		decider = dialog.Auto{Choice: orchestrator.Accept, Backup: backupDefault, Out: p.stderr}
	case p.interactive:
		decider = &dialog.Terminal{
			Product:           product,
			BackupDefault:     backupDefault,
			SaveBackupDefault: config.SaveBackupDefault,
		}
	default:
		decider = dialog.Auto{Choice: orchestrator.Reject, Out: p.stderr}
	}

	o := orchestrator.New(p.install, newSource(), newDownloader(), decider, opts...)
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	return o, cleanup, nil
}
