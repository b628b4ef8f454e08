package dirs

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"

	"postgrator/internal/util"
)

const appName = "postgrator"

// AppName returns the canonical application name for directory paths.
func AppName() string {
	return appName
}

// ConfigDir returns the directory holding config.{yaml,json,toml}.
// - Linux: $XDG_CONFIG_HOME/postgrator or ~/.config/postgrator
// - macOS: ~/Library/Application Support/postgrator
// - Windows: os.UserConfigDir()/postgrator
func ConfigDir() (string, error) {
	return resolve("XDG_CONFIG_HOME", ".config", func() (string, error) {
		return os.UserConfigDir()
	})
}

// DataDir returns the directory where downloaded artifacts are kept by default.
// - Linux: $XDG_DATA_HOME/postgrator or ~/.local/share/postgrator
// - macOS: ~/Library/Application Support/postgrator
func DataDir() (string, error) {
	return resolve("XDG_DATA_HOME", filepath.Join(".local", "share"), func() (string, error) {
		return os.UserConfigDir()
	})
}

// StateDir returns the directory for the log file written while the TUI runs.
// - Linux: $XDG_STATE_HOME/postgrator or ~/.local/state/postgrator
// - macOS: ~/Library/Application Support/postgrator/state
// - Windows: %LocalAppData%/postgrator/state (fallback to ConfigDir/state)
func StateDir() (string, error) {
	switch runtime.GOOS {
	case "linux":
		return resolve("XDG_STATE_HOME", filepath.Join(".local", "state"), nil)
	case "darwin":
		d, err := DataDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(d, "state"), nil
	default:
		if la := os.Getenv("LOCALAPPDATA"); la != "" {
			return filepath.Join(la, AppName(), "state"), nil
		}
		cfg, err := ConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(cfg, "state"), nil
	}
}

// resolve applies the XDG lookup on Linux, the Application Support folder on
// macOS and fallback elsewhere.
func resolve(xdgEnv, linuxHomeRel string, fallback func() (string, error)) (string, error) {
	switch runtime.GOOS {
	case "linux":
		if xdg := os.Getenv(xdgEnv); xdg != "" {
			return filepath.Join(xdg, AppName()), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, linuxHomeRel, AppName()), nil
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", AppName()), nil
	default:
		if fallback == nil {
			return "", errors.New("no default directory on " + runtime.GOOS)
		}
		base, err := fallback()
		if err != nil {
			return "", err
		}
		return filepath.Join(base, AppName()), nil
	}
}

// ArtifactDir returns the default download directory for a job's reports.
// The job id is sanitized so it cannot escape the data dir.
func ArtifactDir(jobID string) (string, error) {
	d, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "artifacts", util.SanitizeFilename(jobID)), nil
}

// LogFile returns the log path used while the TUI owns the terminal.
func LogFile() (string, error) {
	d, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, AppName()+".log"), nil
}

// Ensure creates the directory if it doesn't exist.
func Ensure(path string) error {
	if path == "" {
		return errors.New("empty path")
	}
	return os.MkdirAll(path, 0o755)
}

// EnsureAll ensures config, data and state dirs exist.
func EnsureAll() error {
	for _, dir := range []func() (string, error){ConfigDir, DataDir, StateDir} {
		p, err := dir()
		if err != nil {
			continue
		}
		if err := Ensure(p); err != nil {
			return err
		}
	}
	return nil
}
