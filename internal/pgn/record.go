package pgn

import "fmt"

// GameRecord is one parsed game of a collection.
type GameRecord struct {
	Index   int
	Raw     string
	Headers Headers
	Moves   []string
	// Err is set when the movetext stopped replaying; Moves then holds
	// the legal prefix.
	Err error
}

// Collection is the result of parsing a multi-game text.
type Collection struct {
	Games []*GameRecord
	// Total counts the records found before the cap was applied.
	Total int
}

// Truncated reports whether records were dropped by the cap.
func (c *Collection) Truncated() bool {
	return c.Total > len(c.Games)
}

// Parse splits text and parses every kept record.
func Parse(text string, limit int) *Collection {
	records, total := Split(text, limit)

	games := make([]*GameRecord, 0, len(records))
	for i, raw := range records {
		moves, err := ReadMoves(raw)
		games = append(games, &GameRecord{
			Index:   i,
			Raw:     raw,
			Headers: ParseHeaders(raw),
			Moves:   moves,
			Err:     err,
		})
	}
	return &Collection{Games: games, Total: total}
}

// Title renders the list label, e.g. "Carlsen (2830) vs Nepo (2790)".
func (g *GameRecord) Title() string {
	h := g.Headers
	return fmt.Sprintf("%s (%s) vs %s (%s)", h.White(), h.WhiteElo(), h.Black(), h.BlackElo())
}

// Subtitle renders "Result - Date".
func (g *GameRecord) Subtitle() string {
	return fmt.Sprintf("%s - %s", g.Headers.Result(), g.Headers.Date())
}
