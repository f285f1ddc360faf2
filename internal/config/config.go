package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

const (
	KeyRepoOwner = "repo.owner"
	KeyRepoName  = "repo.name"

	KeyReleaseAPIBase    = "release.api-base"
	KeyReleaseProductID  = "release.product-id"
	KeyReleasePackageExt = "release.package-ext"
	KeyReleaseTimeout    = "release.timeout"
	KeyReleaseToken      = "release.token"
	KeyDownloadTimeout   = "download.timeout"

	KeyInstallDir         = "install.dir"
	KeyInstallInternalDir = "install.internal-dir"
	KeyInstallExecutable  = "install.executable"
	KeyInstallPackageDir  = "install.package-dir"
	KeyInstallVersionFile = "install.version-file"

	KeyBackupPaths   = "backup.paths"
	KeyBackupDefault = "backup.default"

	KeyUpdateSkip        = "update.skip"
	KeyUpdateGracePeriod = "update.grace-period"
	KeyUpdateMinisignKey = "update.minisign-key"

	KeyBrowserURL   = "browser.url"
	KeyBrowserDelay = "browser.delay"

	KeyHostCommand = "host.command"
	KeyHostArgs    = "host.args"

	KeyJournalPath = "journal.path"
	KeyDebug       = "debug"
)

const (
	// DefaultInternalDir is the name of the data directory shipped next to the executable.
	DefaultInternalDir = "_internal"
	// InstallConfigName is the updater config file that ships inside the internal directory.
	InstallConfigName = "updater.yaml"
	// UserDirName is the per-user state directory under the home directory.
	UserDirName = ".calibrator"

	envPrefix = "CALIBRATOR"
)

type initSettings struct {
	installDir        string
	installConfigPath string
	userConfigPath    string
}

// Option configures Initialize behaviour. Useful for tests to override paths.
type Option func(*initSettings)

// WithInstallDir overrides the directory used to locate the install config.
func WithInstallDir(dir string) Option {
	return func(cfg *initSettings) {
		cfg.installDir = dir
	}
}

// WithInstallConfig explicitly sets the install config path instead of discovery.
func WithInstallConfig(path string) Option {
	return func(cfg *initSettings) {
		cfg.installConfigPath = path
	}
}

// WithUserConfig overrides the default user config path.
func WithUserConfig(path string) Option {
	return func(cfg *initSettings) {
		cfg.userConfigPath = path
	}
}

var (
	configOnce sync.Once
	configMu   sync.RWMutex
	configInst *viper.Viper
	initErr    error

	// loadedUserConfig is the user config path Initialize resolved.
	loadedUserConfig string

	// userConfigPathOverride is used by tests to override the user config path.
	userConfigPathOverride string

	// executablePath is a function variable to allow overriding in tests.
	executablePath = os.Executable
)

// Initialize loads configuration using the precedence:
// defaults < install config < user config < environment variables < overrides.
func Initialize(opts ...Option) error {
	configOnce.Do(func() {
		settings := initSettings{}
		for _, opt := range opts {
			opt(&settings)
		}
		initErr = configure(&settings)
	})
	return initErr
}

// ApplyOverrides injects values typically coming from CLI flags.
func ApplyOverrides(overrides map[string]any) error {
	if len(overrides) == 0 {
		return nil
	}
	if err := Initialize(); err != nil {
		return err
	}
	configMu.Lock()
	defer configMu.Unlock()
	if configInst == nil {
		return fmt.Errorf("configuration not initialized")
	}
	for k, v := range overrides {
		configInst.Set(k, v)
	}
	return nil
}

// GetString fetches a string configuration value, initializing on demand.
func GetString(key string) string {
	v, err := getViper()
	if err != nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool fetches a bool configuration value, initializing on demand.
func GetBool(key string) bool {
	v, err := getViper()
	if err != nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt fetches an integer configuration value, initializing on demand.
func GetInt(key string) int {
	v, err := getViper()
	if err != nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration fetches a duration configuration value, initializing on demand.
func GetDuration(key string) time.Duration {
	v, err := getViper()
	if err != nil {
		return 0
	}
	return v.GetDuration(key)
}

// GetStringSlice fetches a list configuration value, initializing on demand.
func GetStringSlice(key string) []string {
	v, err := getViper()
	if err != nil {
		return nil
	}
	return v.GetStringSlice(key)
}

// Set updates a configuration key at runtime, initializing on demand.
func Set(key string, value any) error {
	if err := Initialize(); err != nil {
		return err
	}
	configMu.Lock()
	defer configMu.Unlock()
	if configInst == nil {
		return fmt.Errorf("configuration not initialized")
	}
	configInst.Set(key, value)
	return nil
}

// InstallDir returns the configured install directory, falling back to the
// directory holding the running executable.
func InstallDir() (string, error) {
	if dir := strings.TrimSpace(GetString(KeyInstallDir)); dir != "" {
		return filepath.Abs(dir)
	}
	return executableDir()
}

// Executable returns the base name of the installed executable.
func Executable() (string, error) {
	if name := strings.TrimSpace(GetString(KeyInstallExecutable)); name != "" {
		return name, nil
	}
	exe, err := executablePath()
	if err != nil {
		return "", fmt.Errorf("determine executable: %w", err)
	}
	return filepath.Base(exe), nil
}

func configure(settings *initSettings) error {
	installConfigPath := strings.TrimSpace(settings.installConfigPath)
	if installConfigPath == "" {
		installDir := strings.TrimSpace(settings.installDir)
		if installDir == "" {
			dir, err := executableDir()
			if err != nil {
				return err
			}
			installDir = dir
		}
		installConfigPath = filepath.Join(installDir, DefaultInternalDir, InstallConfigName)
	}

	userConfigPath := strings.TrimSpace(settings.userConfigPath)
	if userConfigPath == "" {
		path, err := defaultUserConfigPath()
		if err != nil {
			return err
		}
		userConfigPath = path
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	if dir := strings.TrimSpace(settings.installDir); dir != "" {
		v.SetDefault(KeyInstallDir, dir)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := mergeConfigFile(v, installConfigPath); err != nil {
		return fmt.Errorf("load install config: %w", err)
	}
	if err := mergeConfigFile(v, userConfigPath); err != nil {
		return fmt.Errorf("load user config: %w", err)
	}

	configMu.Lock()
	defer configMu.Unlock()
	configInst = v
	loadedUserConfig = userConfigPath
	return nil
}

func mergeConfigFile(v *viper.Viper, path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config path %s is a directory", path)
	}
	//nolint:gosec // G304: Config loader intentionally reads install and user config files
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	if userConfigPathOverride != "" {
		return userConfigPathOverride, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determine user home: %w", err)
	}
	return filepath.Join(home, UserDirName, InstallConfigName), nil
}

// DefaultUserDir returns ~/.calibrator, where per-user updater state lives.
func DefaultUserDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determine user home: %w", err)
	}
	return filepath.Join(home, UserDirName), nil
}

func executableDir() (string, error) {
	exe, err := executablePath()
	if err != nil {
		return "", fmt.Errorf("determine executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyRepoOwner, "aiigoradam")
	v.SetDefault(KeyRepoName, "camera-calibrator")

	v.SetDefault(KeyReleaseAPIBase, "https://api.github.com")
	v.SetDefault(KeyReleaseProductID, "CameraCalibrator")
	v.SetDefault(KeyReleasePackageExt, ".zip")
	v.SetDefault(KeyReleaseTimeout, 10*time.Second)
	v.SetDefault(KeyReleaseToken, "")
	v.SetDefault(KeyDownloadTimeout, 30*time.Second)

	v.SetDefault(KeyInstallDir, "")
	v.SetDefault(KeyInstallInternalDir, DefaultInternalDir)
	v.SetDefault(KeyInstallExecutable, "")
	v.SetDefault(KeyInstallPackageDir, "CameraCalibrator")
	v.SetDefault(KeyInstallVersionFile, "version.txt")

	v.SetDefault(KeyBackupPaths, []string{"config.yaml", "calibration_files"})
	v.SetDefault(KeyBackupDefault, true)

	v.SetDefault(KeyUpdateSkip, false)
	v.SetDefault(KeyUpdateGracePeriod, 3*time.Second)
	v.SetDefault(KeyUpdateMinisignKey, "")

	v.SetDefault(KeyBrowserURL, "")
	v.SetDefault(KeyBrowserDelay, 2*time.Second)

	v.SetDefault(KeyHostCommand, "")
	v.SetDefault(KeyHostArgs, []string{})

	v.SetDefault(KeyJournalPath, "")
	v.SetDefault(KeyDebug, false)
}

func getViper() (*viper.Viper, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	configMu.RLock()
	defer configMu.RUnlock()
	if configInst == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}
	return configInst, nil
}

// reset clears package state for tests.
func reset() {
	configMu.Lock()
	defer configMu.Unlock()
	configInst = nil
	initErr = nil
	loadedUserConfig = ""
	configOnce = sync.Once{}
	userConfigPathOverride = ""
}

// ResetForTesting clears package state for tests in other packages.
// Returns a cleanup function that should be deferred.
func ResetForTesting(t interface{ TempDir() string }) func() {
	reset()
	tmp := t.TempDir()
	_ = Initialize(
		WithInstallDir(tmp),
		WithUserConfig(filepath.Join(tmp, "user.yaml")),
	)
	return reset
}

// UserConfigPath returns the user config file in effect: the one given to
// Initialize, or ~/.calibrator/updater.yaml.
func UserConfigPath() (string, error) {
	configMu.RLock()
	loaded := loadedUserConfig
	configMu.RUnlock()
	if loaded != "" {
		return loaded, nil
	}
	return defaultUserConfigPath()
}

// SaveBackupDefault persists the user's "also back up configuration" choice
// to the user config in effect so the next prompt starts from it. The
// install config is never written.
func SaveBackupDefault(enabled bool) error {
	targetPath, err := UserConfigPath()
	if err != nil {
		return fmt.Errorf("find config path: %w", err)
	}

	// Fresh viper instance so only this file's contents are rewritten
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(targetPath)
	_ = v.ReadInConfig() // ignore error if file doesn't exist

	v.Set(KeyBackupDefault, enabled)

	//nolint:gosec // G301: User config directory needs standard permissions
	if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := v.WriteConfigAs(targetPath); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	_ = Set(KeyBackupDefault, enabled)
	return nil
}
