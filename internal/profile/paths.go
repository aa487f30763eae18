package profile

import (
	"os"
	"path/filepath"
	"strings"
)

// HomeEnv overrides the base directory, mainly for tests and throwaway runs.
const HomeEnv = "MSGR_HOME"

// BaseDir returns ~/.msgr, or $MSGR_HOME when set.
func BaseDir() string {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".msgr")
}

// Slug turns an account identifier into a directory name.
func Slug(account string) string {
	return strings.ReplaceAll(strings.ToLower(account), "@", "_at_")
}

// Dir returns the account-specific directory.
func Dir(account string) string {
	return filepath.Join(BaseDir(), "accounts", Slug(account))
}

// HealthSocketPath returns the gRPC health socket path for an account.
func HealthSocketPath(account string) string {
	return filepath.Join(Dir(account), "health.sock")
}

// LockPath returns the lock file path for an account.
func LockPath(account string) string {
	return filepath.Join(Dir(account), "LOCK")
}

// DBPath returns the account database path.
func DBPath(account string) string {
	return filepath.Join(Dir(account), "msgr.db")
}

// LogDir returns the log directory for an account.
func LogDir(account string) string {
	return filepath.Join(Dir(account), "logs")
}

// LogPath returns the log file path.
func LogPath(account string) string {
	return filepath.Join(LogDir(account), "msgr.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the account directory tree with proper permissions.
func EnsureDir(account string) error {
	dirs := []string{
		Dir(account),
		LogDir(account),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
