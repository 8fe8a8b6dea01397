// Package pgn reads PGN game collections: it splits multi-game text into
// records, extracts tag pairs and replays movetext into SAN moves.
package pgn

import (
	"regexp"
	"strings"
)

// Placeholders shown for absent tags.
const (
	UnknownPlaceholder = "?"
	EloPlaceholder     = "N/A"
)

var tagPattern = regexp.MustCompile(`\[(\w+)\s+"([^"]+)"\]`)

// Headers maps a tag name to its value.
type Headers map[string]string

// ParseHeaders extracts the tag pairs of one record. Only the header section
// is scanned, so a bracketed string inside a movetext comment is never taken
// for a tag. When a tag repeats, the last occurrence wins.
func ParseHeaders(text string) Headers {
	header, _ := splitSections(text)

	headers := make(Headers)
	for _, m := range tagPattern.FindAllStringSubmatch(header, -1) {
		headers[m[1]] = m[2]
	}
	return headers
}

// Get returns the tag value or placeholder when the tag is absent.
func (h Headers) Get(tag, placeholder string) string {
	if v, ok := h[tag]; ok {
		return v
	}
	return placeholder
}

func (h Headers) Event() string    { return h.Get("Event", UnknownPlaceholder) }
func (h Headers) Site() string     { return h.Get("Site", UnknownPlaceholder) }
func (h Headers) White() string    { return h.Get("White", UnknownPlaceholder) }
func (h Headers) Black() string    { return h.Get("Black", UnknownPlaceholder) }
func (h Headers) Result() string   { return h.Get("Result", UnknownPlaceholder) }
func (h Headers) Date() string     { return h.Get("Date", UnknownPlaceholder) }
func (h Headers) WhiteElo() string { return h.Get("WhiteElo", EloPlaceholder) }
func (h Headers) BlackElo() string { return h.Get("BlackElo", EloPlaceholder) }

// FEN returns the starting position tag, or "" for the standard start.
func (h Headers) FEN() string { return h["FEN"] }

// splitSections separates the leading tag lines from the movetext. Blank
// lines inside the header block are tolerated.
func splitSections(text string) (header, movetext string) {
	offset := 0
	for offset < len(text) {
		end := strings.IndexByte(text[offset:], '\n')
		var line string
		if end < 0 {
			line = text[offset:]
			end = len(text) - offset
		} else {
			line = text[offset : offset+end]
			end++
		}

		trimmed := strings.TrimSpace(line)
		if trimmed != "" && !strings.HasPrefix(trimmed, "[") {
			break
		}
		offset += end
	}
	return text[:offset], text[offset:]
}
