// Package utils provides shared utilities for text, math, and logging.
package utils

import (
	"path/filepath"
	"strings"
)

// Truncate returns s truncated to maxLen runes, with "..." appended if truncated.
// If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

// FileLanguage returns the extension of path without the dot, for use as a Markdown fence
// language, or "text" when there is none.
func FileLanguage(path string) string {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "text"
	}
	return ext
}
