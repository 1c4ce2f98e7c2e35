package http

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

var (
	// ErrForbiddenPath is returned for any path that cannot be confined to
	// the root. Callers answer it with 400.
	ErrForbiddenPath = errors.New("forbidden path")

	// ErrRootUnavailable means the root itself could not be resolved. It is a
	// rejection like any other.
	ErrRootUnavailable = fmt.Errorf("%w: root directory unavailable", ErrForbiddenPath)
)

// Canonicalizer resolves a directory to its absolute, symlink-free form.
type Canonicalizer func(path string) (string, error)

// OSCanonicalizer resolves path against the real filesystem.
func OSCanonicalizer(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", resolved)
	}
	return resolved, nil
}

// PathSanitizer maps URL paths to filesystem paths under a root directory.
//
// It is a pure function of its inputs and the canonicalizer, so it is safe
// for concurrent use.
type PathSanitizer struct {
	root         string
	canonicalize Canonicalizer
}

// NewPathSanitizer creates a sanitizer for root. A nil canonicalizer means
// OSCanonicalizer.
func NewPathSanitizer(root string, canonicalize Canonicalizer) *PathSanitizer {
	if canonicalize == nil {
		canonicalize = OSCanonicalizer
	}
	return &PathSanitizer{root: root, canonicalize: canonicalize}
}

// Root returns the configured, unresolved root.
func (s *PathSanitizer) Root() string {
	return s.root
}

// Sanitize returns the confined filesystem path for rawPath, or an error
// wrapping ErrForbiddenPath.
//
// Any "..", backslash or NUL rejects the path outright, even where the
// lexical result would stay inside the root. The target does not need to
// exist.
func (s *PathSanitizer) Sanitize(rawPath string) (string, error) {
	if strings.Contains(rawPath, "..") ||
		strings.ContainsRune(rawPath, '\\') ||
		strings.ContainsRune(rawPath, 0) {
		return "", fmt.Errorf("%w: %q", ErrForbiddenPath, rawPath)
	}

	rel := strings.TrimPrefix(rawPath, "/")

	root, err := s.canonicalize(s.root)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRootUnavailable, err)
	}
	if !filepath.IsAbs(root) {
		return "", fmt.Errorf("%w: canonical root %q is not absolute", ErrRootUnavailable, root)
	}

	candidate := filepath.Join(root, filepath.FromSlash(rel))

	if !hasComponentPrefix(candidate, root) {
		return "", fmt.Errorf("%w: %q escapes root", ErrForbiddenPath, rawPath)
	}
	return candidate, nil
}

// hasComponentPrefix reports whether every component of prefix matches the
// leading components of path. "/srv/www2" does not start with "/srv/www".
func hasComponentPrefix(path, prefix string) bool {
	if filepath.VolumeName(path) != filepath.VolumeName(prefix) {
		return false
	}
	pc := components(path)
	rc := components(prefix)
	if len(pc) < len(rc) {
		return false
	}
	for i := range rc {
		if pc[i] != rc[i] {
			return false
		}
	}
	return true
}

func components(p string) []string {
	p = p[len(filepath.VolumeName(p)):]
	return strings.FieldsFunc(p, func(r rune) bool {
		return r < utf8.RuneSelf && os.IsPathSeparator(uint8(r))
	})
}
