package study

import (
	"fmt"
	"strings"

	"github.com/notnil/chess"
)

// ParseFEN decodes a FEN string into a position.
func ParseFEN(fen string) (*chess.Position, error) {
	opt, err := chess.FEN(strings.TrimSpace(fen))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFEN, err)
	}
	return chess.NewGame(opt).Position(), nil
}

// DecodeSAN finds the legal move written as san in pos. Check and
// annotation suffixes are optional.
func DecodeSAN(pos *chess.Position, san string) (*chess.Move, error) {
	if m, err := (chess.AlgebraicNotation{}).Decode(pos, san); err == nil {
		return m, nil
	}

	bare := stripSuffixes(san)
	if bare != "" {
		for _, m := range pos.ValidMoves() {
			if stripSuffixes(encodeSAN(pos, m)) == bare {
				return m, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrIllegalMove, san)
}

func stripSuffixes(san string) string {
	return strings.TrimRight(strings.TrimSpace(san), "+#!?")
}

// ResolveMove finds the legal move from one square to another. promotion
// names the piece a pawn becomes (q, r, b or n) and is ignored for other
// moves; empty means queen.
func ResolveMove(pos *chess.Position, from, to, promotion string) (*chess.Move, error) {
	s1, ok := parseSquare(from)
	if !ok {
		return nil, fmt.Errorf("%w: bad square %q", ErrIllegalMove, from)
	}
	s2, ok := parseSquare(to)
	if !ok {
		return nil, fmt.Errorf("%w: bad square %q", ErrIllegalMove, to)
	}
	promo, ok := parsePromotion(promotion)
	if !ok {
		return nil, fmt.Errorf("%w: bad promotion piece %q", ErrIllegalMove, promotion)
	}

	for _, m := range pos.ValidMoves() {
		if m.S1() != s1 || m.S2() != s2 {
			continue
		}
		if m.Promo() != chess.NoPieceType && m.Promo() != promo {
			continue
		}
		return m, nil
	}
	return nil, fmt.Errorf("%w: %s%s", ErrIllegalMove, from, to)
}

func parseSquare(s string) (chess.Square, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return chess.NoSquare, false
	}
	return chess.NewSquare(chess.File(s[0]-'a'), chess.Rank(s[1]-'1')), true
}

func parsePromotion(p string) (chess.PieceType, bool) {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "", "q":
		return chess.Queen, true
	case "r":
		return chess.Rook, true
	case "b":
		return chess.Bishop, true
	case "n":
		return chess.Knight, true
	}
	return chess.NoPieceType, false
}

// encodeSAN renders m, legal in pos, in standard algebraic notation.
func encodeSAN(pos *chess.Position, m *chess.Move) string {
	return (chess.AlgebraicNotation{}).Encode(pos, m)
}
