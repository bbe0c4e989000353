// SPDX-License-Identifier: AGPL-3.0-or-later

// Package paths resolves where slwrap keeps its run database and caches.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
)

const (
	appDirName     = "slwrap"
	envDataDir     = "SLWRAP_DATA_DIR"
	envXDGDataHome = "XDG_DATA_HOME"
	envLocalApp    = "LOCALAPPDATA"
	dbFileName     = "slwrap.db"
)

var override atomic.Pointer[string]

// SetDataDirOverride pins the data directory. An empty dir clears it.
func SetDataDirOverride(dir string) {
	if dir == "" {
		override.Store(nil)
		return
	}
	clean := filepath.Clean(dir)
	override.Store(&clean)
}

// DataDir returns the directory for persistent state, in order of preference:
// the override, $SLWRAP_DATA_DIR, the platform data directory, then a
// directory under the system temp dir.
func DataDir() string {
	if ptr := override.Load(); ptr != nil && *ptr != "" {
		return *ptr
	}
	if dir := os.Getenv(envDataDir); dir != "" {
		return filepath.Clean(dir)
	}
	if runtime.GOOS == "windows" {
		if base := os.Getenv(envLocalApp); base != "" {
			return filepath.Join(base, appDirName)
		}
	}
	if xdg := os.Getenv(envXDGDataHome); xdg != "" {
		return filepath.Join(xdg, appDirName)
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".local", "share", appDirName)
	}
	return filepath.Join(os.TempDir(), appDirName)
}

// DataPath joins elem onto DataDir.
func DataPath(elem ...string) string {
	return filepath.Join(append([]string{DataDir()}, elem...)...)
}

// EnsureDataPath creates DataPath(elem...) with owner-only permissions.
func EnsureDataPath(elem ...string) (string, error) {
	path := DataPath(elem...)
	if err := os.MkdirAll(path, 0o700); err != nil {
		return "", err
	}
	return path, nil
}

// DatabasePath is the run journal database inside dir, or inside DataDir when
// dir is empty.
func DatabasePath(dir string) string {
	if dir == "" {
		dir = DataDir()
	}
	return filepath.Join(dir, dbFileName)
}
