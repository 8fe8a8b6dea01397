package pgn

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/notnil/chess"
)

// ErrIllegalMove is returned when the movetext stops replaying legally.
var ErrIllegalMove = errors.New("illegal move")

var (
	// The decoder has no notion of comments that precede a move.
	commentPattern    = regexp.MustCompile(`\{[^}]*\}|;[^\n]*`)
	zeroCastlePattern = regexp.MustCompile(`\b0-0(-0)?\b`)
)

// ReadMoves replays the mainline of a record and returns it in SAN. The
// record starts from its FEN tag when that tag holds a valid position.
//
// When a move does not replay, the legal prefix is returned together with
// an ErrIllegalMove naming the offending token.
func ReadMoves(text string) ([]string, error) {
	header, movetext := splitSections(strings.ReplaceAll(text, "\r\n", "\n"))

	var setup string
	if fen := ParseHeaders(header).FEN(); fen != "" {
		if _, err := chess.FEN(fen); err == nil {
			setup = "[FEN \"" + fen + "\"]\n\n"
		}
	}

	movetext = commentPattern.ReplaceAllString(movetext, " ")
	movetext = zeroCastlePattern.ReplaceAllStringFunc(movetext, func(s string) string {
		return strings.ReplaceAll(s, "0", "O")
	})

	moves, err := decodeMainline(setup + movetext)
	if err == nil {
		return moves, nil
	}

	// Find the longest run of tokens that still decodes
	fields := strings.Fields(movetext)
	lo, hi := 0, len(fields)
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if _, err := decodeMainline(setup + strings.Join(fields[:mid], " ")); err == nil {
			lo = mid
		} else {
			hi = mid
		}
	}
	moves, _ = decodeMainline(setup + strings.Join(fields[:lo], " "))

	culprit := ""
	if lo < len(fields) {
		culprit = fields[lo]
	}
	return moves, fmt.Errorf("%w after %d moves: %s", ErrIllegalMove, len(moves), culprit)
}

func decodeMainline(text string) (moves []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pgn decoder failed: %v", r)
		}
	}()

	opt, err := chess.PGN(strings.NewReader(text))
	if err != nil {
		return nil, err
	}
	game := chess.NewGame(opt)

	positions := game.Positions()
	for i, m := range game.Moves() {
		moves = append(moves, chess.AlgebraicNotation{}.Encode(positions[i], m))
	}
	return moves, nil
}
