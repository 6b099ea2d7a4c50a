package app

import (
	"os"
	"path/filepath"
	"strings"
)

// expandTilde resolves a leading "~" against the current user's home
// directory. Paths without the prefix pass through unchanged.
func expandTilde(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}
