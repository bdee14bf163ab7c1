// Package fileutil provides small path-resolution helpers used by the
// configuration loader. Input-file paths are opened as given and do not
// pass through these helpers.
package fileutil

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath expands ~ to the user's home directory, expands environment
// variables, and returns the result as a cleaned absolute path. The literal "-" sentinel used for stdin
// in -i/--input-file lists is passed through unexpanded by callers before
// reaching here; ExpandPath itself only knows about real paths.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return path, nil
	}

	path = os.ExpandEnv(path)

	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}

		if path == "~" {
			return homeDir, nil
		}

		if strings.HasPrefix(path, "~/") {
			return filepath.Join(homeDir, path[2:]), nil
		}

		// ~user syntax is not supported: such a path is not expanded and
		// is resolved against the working directory like any relative path.
	}

	return filepath.Abs(path)
}

// ExpandPaths expands a slice of paths using ExpandPath. Entries equal to
// "-" (the stdin sentinel) are passed through unchanged.
func ExpandPaths(paths []string) ([]string, error) {
	expanded := make([]string, len(paths))
	for i, p := range paths {
		if p == "-" {
			expanded[i] = p
			continue
		}
		exp, err := ExpandPath(p)
		if err != nil {
			return nil, err
		}
		expanded[i] = exp
	}
	return expanded, nil
}
