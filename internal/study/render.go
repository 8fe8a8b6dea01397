package study

import (
	"fmt"
	"strings"

	"github.com/notnil/chess"

	"github.com/dmmcquay/chess-study/internal/pgn"
)

// MoveEntry is one half-move of the rendered move list.
type MoveEntry struct {
	Index   int    `json:"index"`
	Number  int    `json:"number"`
	White   bool   `json:"white"`
	SAN     string `json:"san"`
	Current bool   `json:"current"`
}

// GameSummary is one line of the rendered game list.
type GameSummary struct {
	Index    int    `json:"index"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	Selected bool   `json:"selected"`
}

// GameDetails describes the selected game.
type GameDetails struct {
	Event    string            `json:"event"`
	Site     string            `json:"site"`
	Date     string            `json:"date"`
	White    string            `json:"white"`
	Black    string            `json:"black"`
	WhiteElo string            `json:"whiteElo"`
	BlackElo string            `json:"blackElo"`
	Result   string            `json:"result"`
	Moves    int               `json:"moves"`
	Headers  map[string]string `json:"headers"`
}

// MoveEntries numbers the moves of a list starting from the base
// position's move number and side, marking the move at cursor-1 current.
func MoveEntries(base *chess.Position, moves []string, cursor int) []MoveEntry {
	number, whiteToMove := moveNumber(base)

	entries := make([]MoveEntry, 0, len(moves))
	for i, san := range moves {
		entries = append(entries, MoveEntry{
			Index:   i,
			Number:  number,
			White:   whiteToMove,
			SAN:     san,
			Current: i == cursor-1,
		})
		if !whiteToMove {
			number++
		}
		whiteToMove = !whiteToMove
	}
	return entries
}

func moveNumber(pos *chess.Position) (int, bool) {
	number := 1
	if fields := strings.Fields(pos.String()); len(fields) == 6 {
		if _, err := fmt.Sscanf(fields[5], "%d", &number); err != nil || number < 1 {
			number = 1
		}
	}
	return number, pos.Turn() == chess.White
}

// FormatMoves renders entries as "1. e4 e5 2. [Nf3]", bracketing the current move.
func FormatMoves(entries []MoveEntry) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte(' ')
		}
		switch {
		case e.White:
			fmt.Fprintf(&b, "%d. ", e.Number)
		case i == 0:
			fmt.Fprintf(&b, "%d... ", e.Number)
		}
		if e.Current {
			b.WriteString("[" + e.SAN + "]")
		} else {
			b.WriteString(e.SAN)
		}
	}
	return b.String()
}

// Summaries renders the game list.
func Summaries(list *GameList) []GameSummary {
	out := make([]GameSummary, 0, list.Len())
	for i, g := range list.Games() {
		out = append(out, GameSummary{
			Index:    i,
			Title:    g.Title(),
			Subtitle: g.Subtitle(),
			Selected: i == list.Selected(),
		})
	}
	return out
}

// Details renders the tags of one game with placeholders for missing ones.
func Details(g *pgn.GameRecord) *GameDetails {
	h := g.Headers
	headers := make(map[string]string, len(h))
	for k, v := range h {
		headers[k] = v
	}
	return &GameDetails{
		Event:    h.Event(),
		Site:     h.Site(),
		Date:     h.Date(),
		White:    h.White(),
		Black:    h.Black(),
		WhiteElo: h.WhiteElo(),
		BlackElo: h.BlackElo(),
		Result:   h.Result(),
		Moves:    len(g.Moves),
		Headers:  headers,
	}
}

// RenderBoard draws pos with unicode pieces. flipped puts Black at the bottom.
func RenderBoard(pos *chess.Position, flipped bool) string {
	board := pos.Board()

	var b strings.Builder
	for row := 0; row < 8; row++ {
		rank := chess.Rank(7 - row)
		if flipped {
			rank = chess.Rank(row)
		}
		fmt.Fprintf(&b, "%d ", int(rank)+1)

		for col := 0; col < 8; col++ {
			file := chess.File(col)
			if flipped {
				file = chess.File(7 - col)
			}
			piece := board.Piece(chess.NewSquare(file, rank))
			if piece == chess.NoPiece {
				b.WriteString("·")
			} else {
				b.WriteString(piece.String())
			}
			if col < 7 {
				b.WriteByte(' ')
			}
		}
		b.WriteByte('\n')
	}

	b.WriteString("  ")
	files := "abcdefgh"
	for col := 0; col < 8; col++ {
		f := files[col]
		if flipped {
			f = files[7-col]
		}
		b.WriteByte(f)
		if col < 7 {
			b.WriteByte(' ')
		}
	}
	return b.String()
}
