// Package security guards filesystem paths built from external input.
// Camera names arrive from flags and environment and end up embedded in
// audit log paths; these helpers keep a hostile name from escaping the
// log root.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidatePathWithinDirectory checks if a file path is within a safe directory.
// It prevents path traversal attacks by ensuring the resolved path doesn't
// escape the specified safe directory. This includes protection against
// symlink-based attacks.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	cleanPath := filepath.Clean(filePath)

	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	absSafeDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory path: %w", err)
	}

	// Resolve symlinks to get canonical paths. EvalSymlinks errors when the
	// path doesn't exist yet; walk up to the nearest existing parent so a
	// symlinked ancestor still gets caught.
	canonicalPath := absPath
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		canonicalPath = resolved
	} else {
		checkPath := absPath
		for {
			parentDir := filepath.Dir(checkPath)
			if parentDir == checkPath {
				break
			}
			if resolved, err := filepath.EvalSymlinks(parentDir); err == nil {
				relToParent, relErr := filepath.Rel(parentDir, absPath)
				if relErr == nil {
					canonicalPath = filepath.Join(resolved, relToParent)
				}
				break
			}
			checkPath = parentDir
		}
	}

	canonicalSafeDir := absSafeDir
	if resolved, err := filepath.EvalSymlinks(absSafeDir); err == nil {
		canonicalSafeDir = resolved
	}

	rel, err := filepath.Rel(canonicalSafeDir, canonicalPath)
	if err != nil {
		return fmt.Errorf("failed to compute relative path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path %q escapes directory %q", filePath, safeDir)
	}
	return nil
}

// SanitizeFilename makes a safe filename from an arbitrary string. It replaces
// any characters that are not ASCII letters, digits, dot, underscore or dash
// with an underscore, collapses repeated underscores, and trims the result to
// a reasonable length. Used when embedding camera names into audit log file
// names.
func SanitizeFilename(s string) string {
	if s == "" {
		return "unknown"
	}
	var b strings.Builder
	const maxLen = 128
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastUnderscore = false
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
