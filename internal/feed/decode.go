package feed

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Decode decodes a raw payload, which is either plain JSON or a quoted
// base64 string of raw-deflate compressed JSON (topics suffixed ".z").
func Decode(raw string) (any, error) {
	raw = strings.TrimSpace(raw)

	var v any
	if err := json.Unmarshal([]byte(strings.Trim(raw, `"`)), &v); err == nil {
		return v, nil
	}

	compressed, err := base64.StdEncoding.DecodeString(strings.Trim(raw, `"`))
	if err != nil {
		return nil, fmt.Errorf("payload is neither JSON nor base64: %w", err)
	}

	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()
	decompressed, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("inflate payload: %w", err)
	}

	// The feed emits UTF-8 BOM prefixed JSON on compressed topics.
	decompressed = bytes.TrimPrefix(decompressed, []byte{0xEF, 0xBB, 0xBF})

	if err := json.Unmarshal(decompressed, &v); err != nil {
		return nil, fmt.Errorf("decode inflated payload: %w", err)
	}
	return v, nil
}

// ParseLine splits an archived line into the session time prefix and the raw
// payload. Lines are formatted as "H:MM:SS.fff<payload>". Returns ok=false
// for lines without a valid prefix (blank lines, stream trailers).
func ParseLine(line string) (sessionTime string, payload string, ok bool) {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return "", "", false
	}

	// The prefix ends at the first character that can't belong to a
	// "H:MM:SS.fff" stamp.
	i := 0
	colons := 0
	dot := false
scan:
	for i < len(line) {
		switch c := line[i]; {
		case c >= '0' && c <= '9':
		case c == ':':
			colons++
		case c == '.':
			dot = true
		default:
			break scan
		}
		i++
	}
	if i == 0 || colons != 2 || !dot {
		return "", "", false
	}
	return line[:i], strings.Trim(strings.TrimSpace(line[i:]), `"`), true
}
