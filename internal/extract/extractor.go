// Package extract turns source files into line-oriented text for chunking.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMaxFileSize is the largest file Extract will read.
const DefaultMaxFileSize = 32 << 20

var (
	// ErrBinary is returned for plain-text files that contain NUL bytes.
	ErrBinary = errors.New("extract: binary content")
	// ErrTooLarge is returned when a file exceeds the configured size limit.
	ErrTooLarge = errors.New("extract: file too large")
)

// Extractor extracts plain text from source and document files.
type Extractor struct {
	maxFileSize int64
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxFileSize overrides DefaultMaxFileSize. Zero or negative disables the limit.
func WithMaxFileSize(n int64) Option {
	return func(e *Extractor) { e.maxFileSize = n }
}

// NewExtractor returns a new Extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{maxFileSize: DefaultMaxFileSize}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract reads the file at path and returns its text content with "\n" line endings.
// Source and markup files are returned as-is; PDF, DOCX and XLSX are converted so that
// pages, paragraphs and rows each start on a new line.
func (e *Extractor) Extract(path string) (string, error) {
	if e.maxFileSize > 0 {
		info, err := os.Stat(path)
		if err != nil {
			return "", fmt.Errorf("stat file: %w", err)
		}
		if info.Size() > e.maxFileSize {
			return "", fmt.Errorf("%w: %s (%d bytes)", ErrTooLarge, path, info.Size())
		}
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, filepath.Ext(path))
}

// ExtractBytes extracts text from content based on the given extension.
// ext may include the leading dot (e.g. ".pdf").
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	switch normalizeExt(ext) {
	case "pdf":
		return extractPDF(content)
	case "docx":
		return extractDOCX(content)
	case "xlsx":
		return extractExcel(content)
	default:
		return extractPlain(content)
	}
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
