package ids

import (
	"fmt"
	"path/filepath"
	"strings"
)

// AbsolutePath is a validated, cleaned absolute filesystem path with no
// ".." components after canonicalization.
type AbsolutePath struct {
	value string
}

// ParseAbsolutePath validates p is absolute and contains no ".." segments
// once cleaned.
func ParseAbsolutePath(p string) (AbsolutePath, error) {
	if p == "" {
		return AbsolutePath{}, fmt.Errorf("absolute path: %w: empty", ErrValidation)
	}
	if !filepath.IsAbs(p) {
		return AbsolutePath{}, fmt.Errorf("path %q: %w: must be absolute", p, ErrValidation)
	}
	cleaned := filepath.Clean(p)
	for _, part := range strings.Split(cleaned, string(filepath.Separator)) {
		if part == ".." {
			return AbsolutePath{}, fmt.Errorf("path %q: %w: must not contain '..' after canonicalization", p, ErrValidation)
		}
	}
	return AbsolutePath{value: cleaned}, nil
}

// String returns the cleaned absolute path.
func (a AbsolutePath) String() string { return a.value }

// Join returns a new AbsolutePath for elem appended under a.
func (a AbsolutePath) Join(elem ...string) AbsolutePath {
	all := append([]string{a.value}, elem...)
	return AbsolutePath{value: filepath.Clean(filepath.Join(all...))}
}
