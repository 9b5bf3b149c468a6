package query

import (
	"errors"
	"fmt"
	"strings"
)

// Format selects how a query is answered and printed.
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatPretty   Format = "pretty"
	// FormatSmart synthesizes an answer with the chat model.
	FormatSmart Format = "smart"
)

// Formats lists every supported format.
var Formats = []Format{FormatJSON, FormatMarkdown, FormatPretty, FormatSmart}

// ErrUnknownFormat is returned for a format outside Formats.
var ErrUnknownFormat = errors.New("unknown format")

// Valid reports whether f is a supported format.
func (f Format) Valid() bool {
	for _, known := range Formats {
		if f == known {
			return true
		}
	}
	return false
}

// ParseFormat converts s (case-insensitive) to a Format. Empty yields FormatPretty.
func ParseFormat(s string) (Format, error) {
	if s == "" {
		return FormatPretty, nil
	}
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", fmt.Errorf("%w: %q (want json, markdown, pretty or smart)", ErrUnknownFormat, s)
	}
	return f, nil
}
