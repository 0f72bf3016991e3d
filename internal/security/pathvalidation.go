// Package security guards the local file system against names taken from
// remote listings.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateFileName rejects names that are not a single, plain path element.
// Object keys come from a public bucket, so their trailing segment is not
// trusted as a file name until it passes this check.
func ValidateFileName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("invalid file name %q", name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("file name %q contains a path separator", name)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("file name %q contains a NUL byte", name)
	}
	return nil
}

// ValidatePathWithinDirectory checks lexically that filePath stays inside
// safeDir once both are cleaned. It does not touch the disk, so it works for
// paths that do not exist yet and for in-memory file systems.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	cleanDir := filepath.Clean(safeDir)
	cleanPath := filepath.Clean(filePath)

	rel, err := filepath.Rel(cleanDir, cleanPath)
	if err != nil {
		return fmt.Errorf("path is outside safe directory: %w", err)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path traversal detected: %s attempts to escape %s", filePath, safeDir)
	}
	return nil
}

// ScanPath joins a remote file name onto workDir after validating both.
func ScanPath(workDir, name string) (string, error) {
	if err := ValidateFileName(name); err != nil {
		return "", err
	}
	dest := filepath.Join(workDir, name)
	if err := ValidatePathWithinDirectory(dest, workDir); err != nil {
		return "", err
	}
	return dest, nil
}
