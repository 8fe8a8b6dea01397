package study

import (
	"strings"
	"testing"

	"github.com/notnil/chess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmmcquay/chess-study/internal/pgn"
)

func TestFormatMoves(t *testing.T) {
	base := chess.StartingPosition()
	moves := []string{"e4", "e5", "Nf3"}

	tests := []struct {
		cursor int
		want   string
	}{
		{0, "1. e4 e5 2. Nf3"},
		{1, "1. [e4] e5 2. Nf3"},
		{2, "1. e4 [e5] 2. Nf3"},
		{3, "1. e4 e5 2. [Nf3]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatMoves(MoveEntries(base, moves, tt.cursor)))
	}
}

func TestMoveEntriesFromBlackToMove(t *testing.T) {
	base, err := ParseFEN("rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 7")
	require.NoError(t, err)

	entries := MoveEntries(base, []string{"e5", "Nf3"}, 2)
	assert.Equal(t, "7... e5 8. [Nf3]", FormatMoves(entries))
	assert.False(t, entries[0].White)
	assert.True(t, entries[1].Current)
}

func TestRenderBoard(t *testing.T) {
	pos := chess.StartingPosition()

	lines := strings.Split(RenderBoard(pos, false), "\n")
	require.Len(t, lines, 9)
	assert.True(t, strings.HasPrefix(lines[0], "8 "+chess.BlackRook.String()))
	assert.Equal(t, "4 · · · · · · · ·", lines[4])
	assert.True(t, strings.HasPrefix(lines[7], "1 "+chess.WhiteRook.String()))
	assert.Equal(t, "  a b c d e f g h", lines[8])

	flipped := strings.Split(RenderBoard(pos, true), "\n")
	require.Len(t, flipped, 9)
	assert.True(t, strings.HasPrefix(flipped[0], "1 "+chess.WhiteRook.String()))
	assert.Equal(t, "  h g f e d c b a", flipped[8])
}

func TestRenderBoardFlippedMirrorsFiles(t *testing.T) {
	pos, err := ParseFEN(kingsFEN)
	require.NoError(t, err)

	lines := strings.Split(RenderBoard(pos, false), "\n")
	assert.Equal(t, "8 · · · · "+chess.BlackKing.String()+" · · ·", lines[0])

	flipped := strings.Split(RenderBoard(pos, true), "\n")
	assert.Equal(t, "8 · · · "+chess.BlackKing.String()+" · · · ·", flipped[7])
}

func TestDetailsPlaceholders(t *testing.T) {
	c := pgn.Parse("[White \"Carlsen\"]\n[WhiteElo \"2830\"]\n\n1. d4 *", pgn.DefaultMaxGames)
	require.Len(t, c.Games, 1)

	d := Details(c.Games[0])
	assert.Equal(t, "Carlsen", d.White)
	assert.Equal(t, "2830", d.WhiteElo)
	assert.Equal(t, pgn.UnknownPlaceholder, d.Black)
	assert.Equal(t, pgn.EloPlaceholder, d.BlackElo)
	assert.Equal(t, 1, d.Moves)
}

func TestSummaries(t *testing.T) {
	l := NewGameList()
	l.Load(threeGames())
	l.Select(1)

	s := Summaries(l)
	require.Len(t, s, 3)
	assert.Equal(t, "A (N/A) vs ? (N/A)", s[0].Title)
	assert.Equal(t, "? - ?", s[0].Subtitle)
	assert.True(t, s[1].Selected)
	assert.False(t, s[0].Selected)
}
