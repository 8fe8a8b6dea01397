package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmmcquay/chess-study/internal/engine"
	"github.com/dmmcquay/chess-study/internal/health"
	"github.com/dmmcquay/chess-study/internal/logging"
	"github.com/dmmcquay/chess-study/internal/metrics"
	"github.com/dmmcquay/chess-study/internal/pgn"
	"github.com/dmmcquay/chess-study/internal/study"
)

const (
	samplePGN = "[Event \"Casual\"]\n[White \"Alice\"]\n[Black \"Bob\"]\n[Result \"1-0\"]\n\n1. e4 e5 2. Nf3 1-0\n"
	startFEN  = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
)

type toolsHarness struct {
	handler *ToolsHandler
	session *study.Session
	engine  *engine.MockEngine
	bridge  *engine.Bridge
}

func newToolsHarness(t *testing.T) *toolsHarness {
	t.Helper()

	logger := logging.NewTestLogger(nil)
	eng := engine.NewMockEngine()
	eng.SetResponder(engine.StockfishResponder("g1f3"))
	require.NoError(t, eng.Start(context.Background()))

	bridge := engine.NewBridge(eng, 10, logger)
	session := study.NewSession(logger, study.WithAnalyzer(bridge))
	bridge.OnEvent(session.HandleEngineEvent)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go bridge.Run(ctx)

	return &toolsHarness{
		handler: NewToolsHandler(session, bridge, logger),
		session: session,
		engine:  eng,
		bridge:  bridge,
	}
}

func request(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", result.Content[0])
	return text.Text
}

func snapshotOf(t *testing.T, result *mcp.CallToolResult) study.Snapshot {
	t.Helper()
	var snap study.Snapshot
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &snap))
	return snap
}

func TestLoadPGNTool(t *testing.T) {
	h := newToolsHarness(t)

	result, err := h.handler.HandleLoadPGN(context.Background(), request("loadPGN", map[string]interface{}{
		"pgn":    samplePGN,
		"format": "json",
	}))
	require.NoError(t, err)

	snap := snapshotOf(t, result)
	assert.Equal(t, 1, snap.Total)
	assert.Equal(t, study.NoSelection, snap.Selected)
	assert.Equal(t, 0, snap.Cursor)
	assert.Equal(t, startFEN, snap.FEN)
	require.Len(t, snap.Moves, 3)
	assert.Equal(t, "Nf3", snap.Moves[2].SAN)

	_, err = h.handler.HandleLoadPGN(context.Background(), request("loadPGN", nil))
	assert.EqualError(t, err, "missing required argument 'pgn'")
}

func TestLoadPGNFileTool(t *testing.T) {
	h := newToolsHarness(t)

	path := filepath.Join(t.TempDir(), "games.pgn")
	require.NoError(t, os.WriteFile(path, []byte(samplePGN), 0o600))

	result, err := h.handler.HandleLoadPGNFile(context.Background(), request("loadPGNFile", map[string]interface{}{
		"path": path,
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Moves: 1. e4 e5 2. Nf3")

	_, err = h.handler.HandleLoadPGNFile(context.Background(), request("loadPGNFile", map[string]interface{}{
		"path": filepath.Join(t.TempDir(), "missing.pgn"),
	}))
	assert.Error(t, err)
}

func TestLoadFENTool(t *testing.T) {
	h := newToolsHarness(t)

	fen := "4k3/8/8/8/8/8/8/4K3 w - - 0 1"
	result, err := h.handler.HandleLoadFEN(context.Background(), request("loadFEN", map[string]interface{}{
		"fen":    fen,
		"format": "json",
	}))
	require.NoError(t, err)
	assert.Equal(t, fen, snapshotOf(t, result).FEN)

	_, err = h.handler.HandleLoadFEN(context.Background(), request("loadFEN", map[string]interface{}{
		"fen": "not a position",
	}))
	assert.ErrorIs(t, err, study.ErrInvalidFEN)
	assert.Equal(t, fen, h.session.State().FEN, "a bad FEN must leave the position alone")
}

func TestListAndSelectGames(t *testing.T) {
	h := newToolsHarness(t)
	ctx := context.Background()

	result, err := h.handler.HandleListGames(ctx, request("listGames", nil))
	require.NoError(t, err)
	assert.Equal(t, "No games loaded.", resultText(t, result))

	_, err = h.handler.HandleLoadPGN(ctx, request("loadPGN", map[string]interface{}{"pgn": samplePGN + "\n" + samplePGN}))
	require.NoError(t, err)

	result, err = h.handler.HandleSelectGame(ctx, request("selectGame", map[string]interface{}{
		"index":  float64(1),
		"format": "json",
	}))
	require.NoError(t, err)
	snap := snapshotOf(t, result)
	assert.Equal(t, 1, snap.Selected)
	require.NotNil(t, snap.Details)
	assert.Equal(t, "Alice", snap.Details.White)
	assert.Equal(t, "Bob", snap.Details.Black)

	result, err = h.handler.HandleListGames(ctx, request("listGames", nil))
	require.NoError(t, err)
	text := resultText(t, result)
	assert.Contains(t, text, "2 games:")
	assert.Contains(t, text, "*   1. Alice (N/A) vs Bob (N/A)")

	// Out of range is a no-op
	result, err = h.handler.HandleSelectGame(ctx, request("selectGame", map[string]interface{}{
		"index":  float64(5),
		"format": "json",
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, snapshotOf(t, result).Selected)

	_, err = h.handler.HandleSelectGame(ctx, request("selectGame", map[string]interface{}{"index": "first"}))
	assert.Error(t, err)
}

func TestNavigationTools(t *testing.T) {
	h := newToolsHarness(t)
	ctx := context.Background()

	_, err := h.handler.HandleLoadPGN(ctx, request("loadPGN", map[string]interface{}{"pgn": samplePGN}))
	require.NoError(t, err)

	jsonArgs := map[string]interface{}{"format": "json"}
	cursor := func(handler ToolHandler, args map[string]interface{}) int {
		t.Helper()
		result, err := handler(ctx, request("", args))
		require.NoError(t, err)
		return snapshotOf(t, result).Cursor
	}

	assert.Equal(t, 3, cursor(h.handler.commandHandler(study.CmdLastMove), jsonArgs))
	assert.Equal(t, 2, cursor(h.handler.commandHandler(study.CmdPrevMove), jsonArgs))
	assert.Equal(t, 0, cursor(h.handler.commandHandler(study.CmdFirstMove), jsonArgs))
	assert.Equal(t, 1, cursor(h.handler.commandHandler(study.CmdNextMove), jsonArgs))
	assert.Equal(t, 2, cursor(h.handler.HandleGotoMove, map[string]interface{}{"index": 1, "format": "json"}))
	assert.Equal(t, 3, cursor(h.handler.HandlePressKey, map[string]interface{}{"key": study.KeyArrowRight, "format": "json"}))
	assert.Equal(t, 3, cursor(h.handler.HandlePressKey, map[string]interface{}{"key": "Enter", "format": "json"}))

	_, err = h.handler.HandleGotoMove(ctx, request("gotoMove", nil))
	assert.Error(t, err)
}

func TestPlayMoveTool(t *testing.T) {
	h := newToolsHarness(t)
	ctx := context.Background()

	result, err := h.handler.HandlePlayMove(ctx, request("playMove", map[string]interface{}{
		"san":    "e4",
		"format": "json",
	}))
	require.NoError(t, err)
	snap := snapshotOf(t, result)
	assert.Equal(t, 1, snap.Cursor)
	assert.Equal(t, "black", snap.Turn)

	result, err = h.handler.HandlePlayMove(ctx, request("playMove", map[string]interface{}{
		"from":   "e7",
		"to":     "e5",
		"format": "json",
	}))
	require.NoError(t, err)
	snap = snapshotOf(t, result)
	assert.Equal(t, 2, snap.Cursor)
	assert.Equal(t, "e5", snap.Moves[1].SAN)

	_, err = h.handler.HandlePlayMove(ctx, request("playMove", map[string]interface{}{"san": "Ke3"}))
	assert.ErrorIs(t, err, study.ErrIllegalMove)
	assert.Equal(t, 2, h.session.State().Cursor)

	_, err = h.handler.HandlePlayMove(ctx, request("playMove", map[string]interface{}{"from": "e2"}))
	assert.EqualError(t, err, "provide either 'san' or both 'from' and 'to'")
}

func TestAnalysisTools(t *testing.T) {
	h := newToolsHarness(t)
	ctx := context.Background()

	result, err := h.handler.commandHandler(study.CmdStartAnalysis)(ctx, request("startAnalysis", nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Engine: ")

	require.Eventually(t, func() bool {
		return h.session.State().Engine.BestMove == "g1f3"
	}, 2*time.Second, 10*time.Millisecond)

	result, err = h.handler.HandleGetState(ctx, request("getState", nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Engine: Best move: g1f3")

	result, err = h.handler.commandHandler(study.CmdStopAnalysis)(ctx, request("stopAnalysis", nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Engine: "+study.OutputStopped)
	assert.Contains(t, h.engine.Sent(), "go depth 10")
}

func TestFlipBoardTool(t *testing.T) {
	h := newToolsHarness(t)

	result, err := h.handler.commandHandler(study.CmdFlipBoard)(context.Background(), request("flipBoard", map[string]interface{}{"format": "json"}))
	require.NoError(t, err)
	snap := snapshotOf(t, result)
	assert.True(t, snap.Flipped)
	assert.Contains(t, snap.Board, "1 ")
}

func TestEngineStatusTool(t *testing.T) {
	h := newToolsHarness(t)
	stats := metrics.NewCollector()
	stats.RecordBestMove("e2e4", false)
	h.handler.SetStats(stats)

	result, err := h.handler.HandleGetEngineStatus(context.Background(), request("getEngineStatus", nil))
	require.NoError(t, err)
	text := resultText(t, result)
	assert.Contains(t, text, "Chess engine status: running")
	assert.Contains(t, text, "Engine: mockfish")
	assert.Contains(t, text, "Search depth: 10")
	assert.Contains(t, text, "Last best move: e2e4")

	require.NoError(t, h.engine.Stop())
	result, err = h.handler.HandleGetEngineStatus(context.Background(), request("getEngineStatus", nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Chess engine status: stopped")

	bare := NewToolsHandler(h.session, nil, logging.NewTestLogger(nil))
	result, err = bare.HandleGetEngineStatus(context.Background(), request("getEngineStatus", nil))
	require.NoError(t, err)
	assert.Equal(t, "Chess engine status: not configured", resultText(t, result))
}

func TestHealthTool(t *testing.T) {
	h := newToolsHarness(t)

	_, err := h.handler.HandleHealth(context.Background(), request("health", nil))
	assert.Error(t, err)

	checker := health.NewChecker(logging.NewTestLogger(nil), "test")
	checker.Register("engine", true, health.PingCheck("engine", h.engine))
	h.handler.SetHealthChecker(checker)

	result, err := h.handler.HandleHealth(context.Background(), request("health", nil))
	require.NoError(t, err)

	var resp health.Response
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &resp))
	assert.Equal(t, health.StatusHealthy, resp.Status)
	require.Len(t, resp.Components, 1)
	assert.Equal(t, "engine", resp.Components[0].Name)
}

func TestReadFileErrorIsReturned(t *testing.T) {
	h := newToolsHarness(t)
	h.handler.readFile = func(string) (*pgn.Source, error) { return nil, errors.New("disk on fire") }

	_, err := h.handler.HandleLoadPGNFile(context.Background(), request("loadPGNFile", map[string]interface{}{"path": "x.pgn"}))
	assert.EqualError(t, err, "disk on fire")
}

func TestToolCatalogue(t *testing.T) {
	h := newToolsHarness(t)

	names := make(map[string]bool)
	for _, e := range h.handler.tools() {
		assert.False(t, names[e.tool.Name], "duplicate tool %s", e.tool.Name)
		names[e.tool.Name] = true
		assert.NotNil(t, e.handler, e.tool.Name)
	}
	for _, want := range []string{
		"loadPGN", "loadPGNFile", "loadFEN", "listGames", "selectGame", "nextGame", "prevGame",
		"firstMove", "prevMove", "nextMove", "lastMove", "gotoMove", "playMove", "pressKey",
		"startAnalysis", "stopAnalysis", "flipBoard", "getState", "getEngineStatus", "health",
	} {
		assert.True(t, names[want], "missing tool %s", want)
	}
	assert.Len(t, names, 20)

	// Registration must not panic with or without middleware.
	h.handler.RegisterTools(server.NewMCPServer("test", "0.0.0"))
	h.handler.SetMiddleware(NewMiddleware(logging.NewTestLogger(nil), metrics.NewCollector(), nil))
	h.handler.RegisterTools(server.NewMCPServer("test", "0.0.0"))
}

func TestFormatSnapshot(t *testing.T) {
	snap := study.Snapshot{
		Board:    "8 . . .\n  a b c\n",
		FEN:      startFEN,
		Turn:     "white",
		MoveText: "1. e4",
		Engine:   study.EngineState{Output: study.OutputAnalyzing},
		Warning:  "no games found",
		Details: &study.GameDetails{
			White: "Alice", WhiteElo: "2100", Black: "Bob", BlackElo: "N/A",
			Result: "1-0", Event: "Casual", Site: "?", Date: "2024.01.01",
		},
	}

	text := FormatSnapshot(snap)
	assert.Contains(t, text, "Alice (2100) vs Bob (N/A), 1-0\nCasual, ?, 2024.01.01\n\n8 . . .\n  a b c\n\nFEN: ")
	assert.Contains(t, text, "To move: white\n")
	assert.Contains(t, text, "Moves: 1. e4\n")
	assert.Contains(t, text, "Engine: Analyzing position...\n")
	assert.Contains(t, text, "Warning: no games found\n")
}

func TestFormatGameListTruncated(t *testing.T) {
	snap := study.Snapshot{
		Total:    150,
		Selected: study.NoSelection,
		Games: []study.GameSummary{
			{Index: 0, Title: "A vs B", Subtitle: "1-0 - ?"},
		},
	}
	assert.Equal(t, "Showing the first 1 of 150 games:\n    0. A vs B - 1-0 - ?\n", FormatGameList(snap))
}
