package stringutils

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandTildePath replaces a leading ~ with the user's home directory.
func ExpandTildePath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
