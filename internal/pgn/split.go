package pgn

import "strings"

// DefaultMaxGames is the cap applied to a collection unless configured otherwise.
const DefaultMaxGames = 100

const recordSeparator = "\n\n[Event"

// Split cuts text into game records wherever a blank line is followed by an
// [Event tag. Whitespace-only fragments are dropped. At most limit records
// are returned (limit < 1 means DefaultMaxGames); total reports how many
// records the text held before the cap.
//
// This is a line heuristic and not a PGN grammar: an [Event literal after a
// blank line inside a comment starts a new record.
func Split(text string, limit int) (records []string, total int) {
	if limit < 1 {
		limit = DefaultMaxGames
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")

	for len(text) > 0 {
		idx := strings.Index(text, recordSeparator)
		var chunk string
		if idx < 0 {
			chunk, text = text, ""
		} else {
			// Keep "[Event" with the following record
			chunk, text = text[:idx], text[idx+2:]
		}

		if strings.TrimSpace(chunk) == "" {
			continue
		}
		total++
		if len(records) < limit {
			records = append(records, chunk)
		}
	}
	return records, total
}
