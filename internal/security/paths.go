// Package security confines user-supplied file names to a directory.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrOutsideDirectory is returned when a name resolves outside its root.
var ErrOutsideDirectory = errors.New("path escapes directory")

// ResolveWithin joins name to root and returns the absolute result. The
// name must be relative, and once symlinks are resolved the result must
// still lie inside root. The file need not exist; for missing files the
// nearest existing parent is resolved instead.
func ResolveWithin(root, name string) (string, error) {
	if name == "" {
		return "", errors.New("empty file name")
	}
	if filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", fmt.Errorf("%w: %q is absolute", ErrOutsideDirectory, name)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve directory: %w", err)
	}
	canonicalRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", fmt.Errorf("failed to resolve directory symlinks: %w", err)
	}

	full := filepath.Join(absRoot, name)
	if err := within(canonicalRoot, canonicalize(full)); err != nil {
		return "", fmt.Errorf("%w: %q", err, name)
	}
	return full, nil
}

// canonicalize resolves symlinks in p, or in its longest existing prefix
// when p does not exist.
func canonicalize(p string) string {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved
	}
	for dir := filepath.Dir(p); ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rest, _ := filepath.Rel(dir, p)
			return filepath.Join(resolved, rest)
		}
		if parent := filepath.Dir(dir); parent == dir {
			return p
		}
	}
}

func within(root, p string) error {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return ErrOutsideDirectory
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return ErrOutsideDirectory
	}
	return nil
}

// SanitizeFilename maps s to a name made of ASCII letters, digits, dot,
// underscore and dash, collapsing other runs to a single underscore. The
// result is at most 128 bytes; "capture" stands in for an empty result.
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteRune('_')
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "capture"
	}
	return out
}
