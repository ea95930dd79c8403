// Package paths provides path resolution utilities.
package paths

import (
	"os"
	"path/filepath"
)

// ProjectConfigFile is the project-local config location, checked before
// the user config directory.
const ProjectConfigFile = ".amicus/config.yaml"

// UserConfigDir returns ~/.config/amicus, or empty when the home
// directory is unavailable.
func UserConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "amicus")
}

// LogFile returns the default debug log path inside the user config
// directory.
func LogFile() string {
	dir := UserConfigDir()
	if dir == "" {
		return "amicus.log"
	}
	return filepath.Join(dir, "amicus.log")
}

// TracesFile returns the default span export path inside the user config
// directory.
func TracesFile() string {
	dir := UserConfigDir()
	if dir == "" {
		return "traces.jsonl"
	}
	return filepath.Join(dir, "traces", "traces.jsonl")
}
