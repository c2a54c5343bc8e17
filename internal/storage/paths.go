// Package storage provides persistent storage for user preferences and game statistics.
package storage

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/rs/zerolog/log"
)

const appName = "connectplay"

// DataDirEnv overrides the data directory when set.
const DataDirEnv = "CONNECTPLAY_DATA_DIR"

// GetDataDir returns the data directory, creating it if needed. DataDirEnv
// wins; otherwise it is appName under the platform base:
//   - macOS: ~/Library/Application Support
//   - Windows: %APPDATA%, else ~/AppData/Roaming
//   - others: $XDG_DATA_HOME, else ~/.local/share
func GetDataDir() (string, error) {
	dataDir := os.Getenv(DataDirEnv)
	if dataDir == "" {
		base, err := platformDataHome(runtime.GOOS)
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(base, appName)
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", err
	}
	return dataDir, nil
}

// platformDataHome returns the per-user data root for goos.
func platformDataHome(goos string) (string, error) {
	envVar, fallback := "XDG_DATA_HOME", []string{".local", "share"}
	switch goos {
	case "darwin":
		envVar, fallback = "", []string{"Library", "Application Support"}
	case "windows":
		envVar, fallback = "APPDATA", []string{"AppData", "Roaming"}
	}

	if envVar != "" {
		if dir := os.Getenv(envVar); dir != "" {
			return dir, nil
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{home}, fallback...)...), nil
}

// GetBookPath returns where a user opening book is looked for. The file
// need not exist.
func GetBookPath() (string, error) {
	dataDir, err := GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "book.yaml"), nil
}

// GetConfigPath returns where the configuration file is looked for. The
// file need not exist.
func GetConfigPath() (string, error) {
	dataDir, err := GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "config.yaml"), nil
}

// GetDatabaseDir returns the directory for storing the BadgerDB database.
func GetDatabaseDir() (string, error) {
	dataDir, err := GetDataDir()
	if err != nil {
		return "", err
	}

	dbDir := filepath.Join(dataDir, "db")
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return "", err
	}

	log.Debug().Str("dir", dbDir).Msg("database-directory")

	return dbDir, nil
}
