// Package orchestrator drives one update run: check, ask, back up,
// download, stage, then hand off to the replacement script and exit.
//
// Every failure ends the run with the current version still installed.
// Run never returns an error; the Outcome says what happened.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/jedisct1/go-minisign"

	"calibrator/internal/archive"
	"calibrator/internal/debug"
	apperrors "calibrator/internal/errors"
	"calibrator/internal/finalizer"
	"calibrator/internal/journal"
	"calibrator/internal/release"
	"calibrator/internal/vault"
)

// LockFileName is created in the temp directory while an update is applied.
const LockFileName = "calibrator-update.lock"

// ErrUpdateInProgress is reported when another process holds the apply lock.
var ErrUpdateInProgress = errors.New("another update is in progress")

// ReleaseChecker looks up the latest release.
type ReleaseChecker interface {
	FetchLatest(ctx context.Context, currentVersion string) release.Result
}

// Fetcher downloads and verifies release archives. *archive.Downloader
// satisfies it.
type Fetcher interface {
	Download(ctx context.Context, url string, progress archive.ProgressFunc) (string, error)
	VerifySignature(ctx context.Context, archivePath, sigURL string, pubKey minisign.PublicKey) error
	VerifyChecksumFromURL(ctx context.Context, archivePath, assetName, checksumURL string) error
}

// Guard limits the check to once per logical run.
type Guard interface {
	ShouldCheck() bool
	MarkChecked() error
}

// Recorder stores run outcomes.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) (int64, error)
}

// Install describes the running installation and the package shape
// expected inside release archives.
type Install struct {
	Dir         string
	Executable  string
	InternalDir string
	Version     string
	Package     archive.Layout
}

// Outcome is the result of Run.
type Outcome struct {
	State      State
	Skipped    bool // guard prevented the check
	Info       release.ReleaseInfo
	Decision   Decision
	Backup     *vault.Backup
	ScriptPath string
	Err        error
}

// Continue reports whether the host should keep running the current version.
func (o Outcome) Continue() bool { return o.State != Scheduled }

// Orchestrator runs the update flow. Create with New.
type Orchestrator struct {
	install Install
	source  ReleaseChecker
	fetcher Fetcher
	decider Decider

	guard        Guard
	recorder     Recorder
	vault        *vault.Vault
	pubKey       *minisign.PublicKey
	grace        time.Duration
	lockPath     string
	tempDir      string
	flavor       finalizer.Flavor
	progress     archive.ProgressFunc
	progressStop func()
	notices      io.Writer
	runID        string
	parentPID    int

	state    State
	schedule func(finalizer.Plan, finalizer.Flavor) error
	exit     func(int)
	now      func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithGuard sets the check-once guard. Without one every Run checks.
func WithGuard(g Guard) Option { return func(o *Orchestrator) { o.guard = g } }

// WithJournal records each outcome.
func WithJournal(r Recorder) Option { return func(o *Orchestrator) { o.recorder = r } }

// WithVault sets the configuration vault used when the user asks for a backup.
func WithVault(v *vault.Vault) Option { return func(o *Orchestrator) { o.vault = v } }

// WithPublicKey requires a valid minisign signature on every archive.
func WithPublicKey(pk minisign.PublicKey) Option {
	return func(o *Orchestrator) { o.pubKey = &pk }
}

// WithGracePeriod sets how long the script waits after this process exits.
func WithGracePeriod(d time.Duration) Option { return func(o *Orchestrator) { o.grace = d } }

// WithLockPath overrides the apply lock file.
func WithLockPath(path string) Option { return func(o *Orchestrator) { o.lockPath = path } }

// WithTempDir sets where staging directories are created.
func WithTempDir(dir string) Option { return func(o *Orchestrator) { o.tempDir = dir } }

// WithFlavor overrides the replacement script dialect.
func WithFlavor(f finalizer.Flavor) Option { return func(o *Orchestrator) { o.flavor = f } }

// WithProgress receives download progress.
func WithProgress(fn archive.ProgressFunc) Option { return func(o *Orchestrator) { o.progress = fn } }

// WithProgressStop is called once the download ends, successful or not,
// before any notice about it is written.
func WithProgressStop(stop func()) Option { return func(o *Orchestrator) { o.progressStop = stop } }

// WithNotices sets where one-line user notices go. Defaults to stderr.
func WithNotices(w io.Writer) Option { return func(o *Orchestrator) { o.notices = w } }

// WithRunID tags journal entries.
func WithRunID(id string) Option { return func(o *Orchestrator) { o.runID = id } }

// New returns an orchestrator for install.
func New(install Install, source ReleaseChecker, fetcher Fetcher, decider Decider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		install:   install,
		source:    source,
		fetcher:   fetcher,
		decider:   decider,
		grace:     3 * time.Second,
		tempDir:   os.TempDir(),
		flavor:    finalizer.HostFlavor(),
		notices:   os.Stderr,
		parentPID: os.Getpid(),
		schedule:  finalizer.Schedule,
		exit:      os.Exit,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.lockPath == "" {
		o.lockPath = filepath.Join(o.tempDir, LockFileName)
	}
	return o
}

// State returns the current step.
func (o *Orchestrator) State() State { return o.state }

func (o *Orchestrator) transition(to State, reason string) {
	debug.Info("update state", "from", o.state, "to", to, "reason", reason)
	o.state = to
}

func (o *Orchestrator) notice(format string, args ...any) {
	if o.notices == nil {
		return
	}
	_, _ = fmt.Fprintf(o.notices, "[Updater] "+format+"\n", args...)
}

// Run performs one update run. When the replacement is scheduled the
// process exits with status 0 and Run does not return.
func (o *Orchestrator) Run(ctx context.Context) Outcome {
	started := o.now()
	o.state = Idle

	if o.guard != nil {
		if !o.guard.ShouldCheck() {
			debug.Log("update check already ran in this session")
			return Outcome{State: Idle, Skipped: true}
		}
		if err := o.guard.MarkChecked(); err != nil {
			debug.Warn("could not persist update guard", "err", err)
		}
	}

	out := o.run(ctx)
	o.record(ctx, started, out)

	if out.State == Scheduled {
		o.notice("Update to %s scheduled; restarting.", out.Info.LatestVersion)
		o.exit(0)
	}
	return out
}

func (o *Orchestrator) run(ctx context.Context) Outcome {
	o.transition(Checking, "")
	var info release.ReleaseInfo
	switch r := o.source.FetchLatest(ctx, o.install.Version).(type) {
	case release.UpdateAvailable:
		info = r.Info
	case release.NoUpdate:
		o.transition(NoUpdate, r.Reason.String())
		return Outcome{State: NoUpdate, Info: r.Release}
	case release.CheckFailed:
		debug.Warn("update check failed", "err", r.Err, "code", apperrors.CodeOf(r.Err))
		o.transition(NoUpdate, "check failed")
		return Outcome{State: NoUpdate, Info: release.Flatten(r), Err: r.Err}
	default:
		o.transition(NoUpdate, "unknown result")
		return Outcome{State: NoUpdate}
	}

	o.transition(UpdateFound, info.LatestVersion)
	if info.Ambiguous {
		debug.Warn("offering update from differing tags", "current", info.CurrentVersion, "latest", info.LatestTag)
	}

	decision, err := o.decide(ctx, info)
	out := Outcome{Info: info, Decision: decision}
	if err != nil {
		debug.Warn("decision maker unavailable", "err", err)
		o.transition(Declined, "decision maker unavailable")
		out.State = Declined
		return out
	}
	if decision.Choice != Accept {
		o.transition(Declined, "user declined")
		out.State = Declined
		return out
	}

	lock := flock.New(o.lockPath)
	locked, err := lock.TryLock()
	if err != nil || !locked {
		if err == nil {
			err = ErrUpdateInProgress
		}
		debug.Warn("apply lock unavailable", "path", o.lockPath, "err", err)
		o.notice("Another update is already running; continuing with the current version.")
		o.transition(Declined, "apply lock held")
		out.State, out.Err = Declined, err
		return out
	}
	defer func() {
		if out.State != Scheduled {
			_ = lock.Unlock()
		}
	}()

	if err := o.checkPackaged(); err != nil {
		return o.fail(out, err)
	}

	if decision.BackupConfigs {
		o.transition(BackingUp, "")
		out.Backup = o.backup()
	}

	o.transition(Downloading, info.DownloadURL)
	archivePath, err := o.fetcher.Download(ctx, info.DownloadURL, o.progress)
	if o.progressStop != nil {
		o.progressStop()
	}
	if err != nil {
		o.discard(out.Backup)
		return o.fail(out, err)
	}
	if err := o.verify(ctx, archivePath, info); err != nil {
		_ = os.Remove(archivePath)
		o.discard(out.Backup)
		return o.fail(out, err)
	}

	o.transition(Applying, archivePath)
	stagingDir := filepath.Join(o.tempDir, fmt.Sprintf("%s_update_extract_%d", o.product(), os.Getpid()))
	pkg, err := o.stage(archivePath, stagingDir)
	if err != nil {
		_ = os.RemoveAll(stagingDir)
		_ = os.Remove(archivePath)
		o.discard(out.Backup)
		return o.fail(out, err)
	}

	plan := o.plan(pkg, archivePath, out.Backup)
	if err := o.schedule(plan, o.flavor); err != nil {
		_ = os.RemoveAll(stagingDir)
		_ = os.Remove(archivePath)
		o.discard(out.Backup)
		return o.fail(out, err)
	}

	o.transition(Scheduled, plan.ScriptPath)
	out.State = Scheduled
	out.ScriptPath = plan.ScriptPath
	return out
}

func (o *Orchestrator) decide(ctx context.Context, info release.ReleaseInfo) (d Decision, err error) {
	if o.decider == nil {
		return Decision{}, errors.New("no decision maker configured")
	}
	defer func() {
		if r := recover(); r != nil {
			d, err = Decision{}, fmt.Errorf("decision maker panicked: %v", r)
		}
	}()
	return o.decider.Decide(ctx, info)
}

func (o *Orchestrator) fail(out Outcome, err error) Outcome {
	debug.Error("update failed", "err", err, "code", apperrors.CodeOf(err))
	o.notice("Update failed (%s): %v. Continuing with version %s.", apperrors.CodeOf(err), err, o.install.Version)
	o.transition(Failed, string(apperrors.CodeOf(err)))
	out.State = Failed
	out.Err = err
	out.Backup = nil
	return out
}

// checkPackaged refuses to replace a development checkout or any install
// without the internal data directory next to the executable.
func (o *Orchestrator) checkPackaged() error {
	exe := filepath.Join(o.install.Dir, o.install.Executable)
	internal := filepath.Join(o.install.Dir, o.install.InternalDir)
	if info, err := os.Stat(exe); err != nil || info.IsDir() {
		return apperrors.New(apperrors.CodeNotPackaged, fmt.Sprintf("executable %s not found", exe), err)
	}
	if info, err := os.Stat(internal); err != nil || !info.IsDir() {
		return apperrors.New(apperrors.CodeNotPackaged, fmt.Sprintf("internal directory %s not found", internal), err)
	}
	return nil
}

func (o *Orchestrator) backup() *vault.Backup {
	if o.vault == nil {
		debug.Warn("no vault configured; continuing without a backup")
		return nil
	}
	b, err := o.vault.Backup()
	if err != nil {
		debug.Warn("configuration backup failed", "err", err)
	}
	if b == nil {
		o.notice("Could not back up your configuration; continuing without a backup.")
		return nil
	}
	debug.Info("configuration backed up", "dir", b.Dir, "entries", b.Entries())
	return b
}

func (o *Orchestrator) discard(b *vault.Backup) {
	if b == nil {
		return
	}
	if err := b.Discard(); err != nil {
		debug.Warn("discard backup", "dir", b.Dir, "err", err)
	}
}

func (o *Orchestrator) verify(ctx context.Context, archivePath string, info release.ReleaseInfo) error {
	if o.pubKey != nil {
		if info.SignatureURL == "" {
			return &archive.SignatureError{Archive: archivePath, Reason: "release publishes no signature"}
		}
		if err := o.fetcher.VerifySignature(ctx, archivePath, info.SignatureURL, *o.pubKey); err != nil {
			return err
		}
	}
	if info.ChecksumURL != "" {
		if err := o.fetcher.VerifyChecksumFromURL(ctx, archivePath, info.AssetName, info.ChecksumURL); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) stage(archivePath, stagingDir string) (archive.StagedPackage, error) {
	if err := os.RemoveAll(stagingDir); err != nil {
		return archive.StagedPackage{}, apperrors.New(apperrors.CodeFilesystem, "clear staging directory", err)
	}
	if err := archive.Extract(archivePath, stagingDir); err != nil {
		return archive.StagedPackage{}, err
	}
	return archive.Stage(stagingDir, o.install.Package)
}

func (o *Orchestrator) plan(pkg archive.StagedPackage, archivePath string, b *vault.Backup) finalizer.Plan {
	plan := finalizer.Plan{
		Product:        o.product(),
		InstallDir:     o.install.Dir,
		Executable:     o.install.Executable,
		InternalDir:    o.install.InternalDir,
		NewExecutable:  pkg.Executable,
		NewInternalDir: pkg.InternalDir,
		StagingDir:     pkg.Root,
		ArchivePath:    archivePath,
		ScriptPath:     finalizer.DefaultScriptPath(o.install.Dir, o.flavor),
		GracePeriod:    o.grace,
		ParentPID:      o.parentPID,
	}
	if b != nil {
		plan.BackupDir = b.Dir
		plan.BackupEntries = b.Entries()
	}
	return plan
}

func (o *Orchestrator) product() string {
	if o.install.Package.PackageDir != "" {
		return o.install.Package.PackageDir
	}
	return "calibrator"
}

func (o *Orchestrator) record(ctx context.Context, started time.Time, out Outcome) {
	if o.recorder == nil {
		return
	}
	entry := journal.Entry{
		RunID:          o.runID,
		StartedAt:      started,
		FinishedAt:     o.now(),
		Outcome:        out.State.String(),
		CurrentVersion: o.install.Version,
		LatestVersion:  out.Info.LatestVersion,
	}
	if out.Err != nil {
		entry.Detail = fmt.Sprintf("%s: %v", apperrors.CodeOf(out.Err), out.Err)
	}
	if _, err := o.recorder.Record(ctx, entry); err != nil {
		debug.Warn("journal write failed", "err", err)
	}
}
