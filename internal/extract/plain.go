package extract

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// extractPlain returns content as a string with the BOM removed and CRLF line endings
// converted. Invalid UTF-8 sequences are replaced with the replacement character.
func extractPlain(content []byte) (string, error) {
	if bytes.IndexByte(content, 0) >= 0 {
		return "", ErrBinary
	}
	content = bytes.TrimPrefix(content, utf8BOM)
	s := string(content)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	return strings.ReplaceAll(s, "\r\n", "\n"), nil
}
