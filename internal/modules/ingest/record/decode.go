package record

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeLines splits file content into lines. Content that is not valid UTF-8
// is read as ISO-8859-1, which maps every byte, so decoding never fails.
// terminated is false when the last line has no trailing newline, which for a
// file still being written means the line may be incomplete.
func DecodeLines(b []byte) (lines []string, terminated bool) {
	b = bytes.TrimPrefix(b, utf8BOM)
	if len(b) == 0 {
		return nil, true
	}
	terminated = b[len(b)-1] == '\n'

	var text string
	if utf8.Valid(b) {
		text = string(b)
	} else {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
		if err != nil {
			decoded = b
		}
		text = string(decoded)
	}

	text = strings.TrimSuffix(text, "\n")
	lines = strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines, terminated
}
