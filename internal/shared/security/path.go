// Package security holds filesystem path checks for user-supplied
// database and export locations.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathEscape indicates the resolved path would escape the trusted root directory.
var ErrPathEscape = errors.New("path escapes base directory")

// ResolveWithin joins elems under base and fails if the cleaned result
// leaves base. The returned path is absolute.
func ResolveWithin(base string, elems ...string) (string, error) {
	if base == "" {
		return "", errors.New("base directory is required")
	}
	cleanBase, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("resolve base path: %w", err)
	}
	target, err := filepath.Abs(filepath.Join(append([]string{cleanBase}, elems...)...))
	if err != nil {
		return "", fmt.Errorf("resolve target path: %w", err)
	}
	rel, err := filepath.Rel(cleanBase, target)
	if err != nil {
		return "", fmt.Errorf("relativize path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, target)
	}
	return target, nil
}

// IsValidPath rejects empty paths, the filesystem root and any path
// containing "..".
func IsValidPath(path string) bool {
	if path == "" || strings.Contains(path, "..") {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	clean := filepath.Clean(abs)
	return clean != "" && clean != string(os.PathSeparator)
}
