package study

import (
	"fmt"

	"github.com/notnil/chess"
)

// Navigator holds a move list, a cursor into it and the position after
// every prefix of the list. line[i] is the position after i moves, so
// line[cursor] is always the live position.
type Navigator struct {
	moves  []string
	line   []*chess.Position
	cursor int
}

// NewNavigator starts at the standard position with no moves.
func NewNavigator() *Navigator {
	n := &Navigator{}
	n.reset(chess.StartingPosition())
	return n
}

func (n *Navigator) reset(base *chess.Position) {
	n.moves = nil
	n.line = []*chess.Position{base}
	n.cursor = 0
}

// Load replaces the move list with sans replayed from base (nil means the
// standard start) and puts the cursor at 0. Replay stops at the first token
// that is not a legal move; the legal prefix is kept and the returned error
// names the rejected token.
func (n *Navigator) Load(base *chess.Position, sans []string) error {
	if base == nil {
		base = chess.StartingPosition()
	}
	n.reset(base)

	pos := base
	for i, san := range sans {
		m, err := DecodeSAN(pos, san)
		if err != nil {
			return fmt.Errorf("move %d: %w", i+1, err)
		}
		n.moves = append(n.moves, encodeSAN(pos, m))
		pos = pos.Update(m)
		n.line = append(n.line, pos)
	}
	return nil
}

// LoadFEN makes the given position the base of an empty move list. The
// navigator is unchanged when fen is invalid.
func (n *Navigator) LoadFEN(fen string) error {
	pos, err := ParseFEN(fen)
	if err != nil {
		return err
	}
	n.reset(pos)
	return nil
}

// StepForward applies the move at the cursor. It reports false at the end of the list.
func (n *Navigator) StepForward() bool {
	if n.cursor >= len(n.moves) {
		return false
	}
	n.cursor++
	return true
}

// StepBack undoes the last applied move. It reports false at the start.
func (n *Navigator) StepBack() bool {
	if n.cursor == 0 {
		return false
	}
	n.cursor--
	return true
}

// JumpTo shows the position after the first k moves. Out of range k is ignored.
func (n *Navigator) JumpTo(k int) bool {
	if k < 0 || k > len(n.moves) {
		return false
	}
	n.cursor = k
	return true
}

func (n *Navigator) First() bool { return n.JumpTo(0) }
func (n *Navigator) Last() bool  { return n.JumpTo(len(n.moves)) }

// Append plays m, which must be legal in the live position. Playing the
// move already next in the list just steps forward; any other move cuts
// the list at the cursor and becomes its new last move.
func (n *Navigator) Append(m *chess.Move) string {
	pos := n.Position()
	san := encodeSAN(pos, m)

	if n.cursor < len(n.moves) && n.moves[n.cursor] == san {
		n.cursor++
		return san
	}

	n.moves = append(n.moves[:n.cursor:n.cursor], san)
	n.line = append(n.line[:n.cursor+1:n.cursor+1], pos.Update(m))
	n.cursor++
	return san
}

// Position is the live position.
func (n *Navigator) Position() *chess.Position {
	return n.line[n.cursor]
}

// Base is the position before the first move.
func (n *Navigator) Base() *chess.Position {
	return n.line[0]
}

func (n *Navigator) FEN() string {
	return n.Position().String()
}

func (n *Navigator) Cursor() int {
	return n.cursor
}

func (n *Navigator) Len() int {
	return len(n.moves)
}

// Moves returns a copy of the move list.
func (n *Navigator) Moves() []string {
	return append([]string(nil), n.moves...)
}
