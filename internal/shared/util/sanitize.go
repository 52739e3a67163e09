package util

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const maxFileNameLength = 255

var (
	// ErrInvalidFileName reports an empty, oversized or malformed file name.
	ErrInvalidFileName = errors.New("invalid file name")
	// ErrPathTraversal reports a file name containing traversal segments.
	ErrPathTraversal = errors.New("path traversal detected")
)

// ValidateFileName rejects names that are empty, too long, non-UTF-8, or
// contain path separators or traversal segments.
func ValidateFileName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidFileName
	}
	if len(name) > maxFileNameLength {
		return ErrInvalidFileName
	}
	if !utf8.ValidString(name) {
		return ErrInvalidFileName
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return ErrPathTraversal
	}
	return nil
}

// SanitizeFileName strips control characters and path separators. It returns
// an error when nothing usable remains.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", ErrPathTraversal
	}
	s := strings.TrimSpace(name)
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")

	var b strings.Builder
	for _, r := range s {
		if r >= 32 && r != 127 {
			b.WriteRune(r)
		}
	}
	s = b.String()
	if s == "" {
		return "", ErrInvalidFileName
	}
	return s, nil
}
