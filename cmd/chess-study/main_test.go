package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoGames = `[Event "Club"]
[White "Alice"]
[Black "Bob"]
[Result "1-0"]

1. e4 e5 2. Nf3 Nc6 1-0

[Event "Club"]
[White "Carol"]
[Black "Dave"]
[WhiteElo "1850"]
[Result "0-1"]

1. d4 d5 0-1
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CHESS_STUDY_CONFIG", "")
	t.Setenv("CHESS_STUDY_LOG_FORMAT", "text")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writePGN(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "club.pgn")
	require.NoError(t, os.WriteFile(path, []byte(twoGames), 0o600))
	return path
}

func TestGamesCommand(t *testing.T) {
	out, err := run(t, "games", writePGN(t))
	require.NoError(t, err)
	assert.Contains(t, out, "  0  Alice (N/A) vs Bob (N/A)  1-0 - ?")
	assert.Contains(t, out, "  1  Carol (1850) vs Dave (N/A)  0-1 - ?")
}

func TestMovesCommand(t *testing.T) {
	path := writePGN(t)

	out, err := run(t, "moves", path, "--game", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "[White \"Carol\"]")
	assert.Contains(t, out, "1. d4 d5")

	out, err = run(t, "moves", path, "--game", "0", "--board")
	require.NoError(t, err)
	assert.Contains(t, out, "r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R w KQkq - 2 3")

	_, err = run(t, "moves", path, "--game", "7")
	assert.EqualError(t, err, "game 7 not found, the file has 2 games")

	_, err = run(t, "moves", path, "--game", "-1")
	assert.Error(t, err)
}

func TestMissingFile(t *testing.T) {
	_, err := run(t, "games", filepath.Join(t.TempDir(), "nope.pgn"))
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "chess-study version 0.1.0")
	assert.Contains(t, out, "Git commit: unknown")
}
