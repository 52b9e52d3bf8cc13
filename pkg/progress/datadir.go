package progress

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "syllabus"

// DefaultDataDir returns where progress, logs and fetched courses live when
// no data directory is configured:
//
//   - macOS:   ~/Library/Application Support/syllabus
//   - Linux:   $XDG_DATA_HOME/syllabus (fallback ~/.local/share/syllabus)
//   - Windows: %LOCALAPPDATA%\syllabus (fallback %APPDATA%\syllabus)
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return dataDirFor(runtime.GOOS, home, os.Getenv)
}

func dataDirFor(goos, home string, getenv func(string) string) string {
	var candidates []string
	var fallback string

	switch goos {
	case "darwin":
		fallback = filepath.Join(home, "Library", "Application Support")
	case "windows":
		candidates = []string{"LOCALAPPDATA", "APPDATA"}
		fallback = home
	default:
		candidates = []string{"XDG_DATA_HOME"}
		fallback = filepath.Join(home, ".local", "share")
	}

	for _, env := range candidates {
		if dir := getenv(env); dir != "" {
			return filepath.Join(dir, appName)
		}
	}
	return filepath.Join(fallback, appName)
}
