package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cast"

	"github.com/dmmcquay/chess-study/internal/engine"
	"github.com/dmmcquay/chess-study/internal/health"
	"github.com/dmmcquay/chess-study/internal/logging"
	"github.com/dmmcquay/chess-study/internal/metrics"
	"github.com/dmmcquay/chess-study/internal/pgn"
	"github.com/dmmcquay/chess-study/internal/study"
)

// Study is the part of the session the tools drive.
type Study interface {
	Dispatch(ctx context.Context, req study.Request) (study.Snapshot, error)
	State() study.Snapshot
}

// EngineStatus reports on the engine bridge. *engine.Bridge satisfies it.
type EngineStatus interface {
	Status() engine.Status
}

// ToolsHandler exposes a study session as MCP tools.
type ToolsHandler struct {
	study      Study
	engine     EngineStatus
	logger     logging.ContextLogger
	middleware *Middleware
	checker    *health.Checker
	stats      *metrics.Collector
	readFile   func(path string) (*pgn.Source, error)
}

// NewToolsHandler creates a new tools handler. eng may be nil when no
// engine is configured.
func NewToolsHandler(s Study, eng EngineStatus, logger logging.ContextLogger) *ToolsHandler {
	return &ToolsHandler{
		study:    s,
		engine:   eng,
		logger:   logger,
		readFile: pgn.ReadFile,
	}
}

// SetMiddleware sets the middleware for the tools handler.
func (h *ToolsHandler) SetMiddleware(middleware *Middleware) {
	h.middleware = middleware
}

// SetHealthChecker enables the health tool.
func (h *ToolsHandler) SetHealthChecker(c *health.Checker) {
	h.checker = c
}

// SetStats adds in-process counters to getEngineStatus.
func (h *ToolsHandler) SetStats(stats *metrics.Collector) {
	h.stats = stats
}

type toolEntry struct {
	tool    mcp.Tool
	handler ToolHandler
	// retries > 0 retries the call while the engine restarts.
	retries int
}

// RegisterTools registers all tools with the MCP server.
func (h *ToolsHandler) RegisterTools(s *server.MCPServer) {
	for _, e := range h.tools() {
		handler := e.handler
		if h.middleware != nil {
			if e.retries > 0 {
				handler = h.middleware.WrapToolWithRetry(e.tool.Name, handler, e.retries)
			} else {
				handler = h.middleware.WrapTool(e.tool.Name, handler)
			}
		}
		s.AddTool(e.tool, server.ToolHandlerFunc(handler))
	}
}

func (h *ToolsHandler) tools() []toolEntry {
	view := mcp.WithString("format",
		mcp.Description("Result format: 'text' (board diagram, default) or 'json' (full snapshot)"),
	)

	return []toolEntry{
		{tool: mcp.NewTool("loadPGN",
			mcp.WithDescription("Load PGN text holding one or more games. Only the first 100 games are kept and the first game is shown without being selected."),
			mcp.WithString("pgn", mcp.Description("PGN text"), mcp.Required()),
			view,
		), handler: h.HandleLoadPGN},
		{tool: mcp.NewTool("loadPGNFile",
			mcp.WithDescription("Load a PGN file from disk. Plain, .zst and .bz2 files are accepted."),
			mcp.WithString("path", mcp.Description("Path to the PGN file"), mcp.Required()),
			view,
		), handler: h.HandleLoadPGNFile},
		{tool: mcp.NewTool("loadFEN",
			mcp.WithDescription("Replace the live position with a FEN position and clear the move list"),
			mcp.WithString("fen", mcp.Description("FEN string"), mcp.Required()),
			view,
		), handler: h.HandleLoadFEN},
		{tool: mcp.NewTool("listGames",
			mcp.WithDescription("List the loaded games with players, event and date"),
		), handler: h.HandleListGames},
		{tool: mcp.NewTool("selectGame",
			mcp.WithDescription("Select a loaded game by its index in the list. Out-of-range indexes are ignored."),
			mcp.WithNumber("index", mcp.Description("0-based game index"), mcp.Required()),
			view,
		), handler: h.HandleSelectGame},
		{tool: mcp.NewTool("nextGame",
			mcp.WithDescription("Select the next game in the list"),
			view,
		), handler: h.commandHandler(study.CmdNextGame)},
		{tool: mcp.NewTool("prevGame",
			mcp.WithDescription("Select the previous game in the list"),
			view,
		), handler: h.commandHandler(study.CmdPrevGame)},
		{tool: mcp.NewTool("firstMove",
			mcp.WithDescription("Go to the starting position of the game"),
			view,
		), handler: h.commandHandler(study.CmdFirstMove)},
		{tool: mcp.NewTool("prevMove",
			mcp.WithDescription("Take back one move"),
			view,
		), handler: h.commandHandler(study.CmdPrevMove)},
		{tool: mcp.NewTool("nextMove",
			mcp.WithDescription("Play the next move of the game"),
			view,
		), handler: h.commandHandler(study.CmdNextMove)},
		{tool: mcp.NewTool("lastMove",
			mcp.WithDescription("Go to the final position of the game"),
			view,
		), handler: h.commandHandler(study.CmdLastMove)},
		{tool: mcp.NewTool("gotoMove",
			mcp.WithDescription("Show the position after the given move of the move list"),
			mcp.WithNumber("index", mcp.Description("0-based index into the move list"), mcp.Required()),
			view,
		), handler: h.HandleGotoMove},
		{tool: mcp.NewTool("playMove",
			mcp.WithDescription("Play a move on the board, either as SAN or as from/to squares. Moves after the current one are discarded."),
			mcp.WithString("san", mcp.Description("Move in standard algebraic notation, e.g. 'Nf3'")),
			mcp.WithString("from", mcp.Description("Origin square, e.g. 'e2'")),
			mcp.WithString("to", mcp.Description("Target square, e.g. 'e4'")),
			mcp.WithString("promotion", mcp.Description("Promotion piece: q, r, b or n")),
			view,
		), handler: h.HandlePlayMove},
		{tool: mcp.NewTool("pressKey",
			mcp.WithDescription("Send a keyboard key. Arrow keys navigate moves (left/right) and games (up/down)."),
			mcp.WithString("key", mcp.Description("Key name, e.g. 'ArrowRight'"), mcp.Required()),
			view,
		), handler: h.HandlePressKey},
		{tool: mcp.NewTool("startAnalysis",
			mcp.WithDescription("Ask the engine for the best move in the current position"),
			view,
		), handler: h.commandHandler(study.CmdStartAnalysis), retries: 2},
		{tool: mcp.NewTool("stopAnalysis",
			mcp.WithDescription("Stop the running analysis"),
			view,
		), handler: h.commandHandler(study.CmdStopAnalysis)},
		{tool: mcp.NewTool("flipBoard",
			mcp.WithDescription("Flip the board orientation"),
			view,
		), handler: h.commandHandler(study.CmdFlipBoard)},
		{tool: mcp.NewTool("getState",
			mcp.WithDescription("Show the current board, move list and engine output"),
			view,
		), handler: h.HandleGetState},
		{tool: mcp.NewTool("getEngineStatus",
			mcp.WithDescription("Get the status of the chess engine and its analysis cache"),
		), handler: h.HandleGetEngineStatus},
		{tool: mcp.NewTool("health",
			mcp.WithDescription("Run the health checks"),
		), handler: h.HandleHealth},
	}
}

// commandHandler builds a handler for commands without arguments.
func (h *ToolsHandler) commandHandler(cmd study.Command) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return h.dispatch(ctx, request, study.Request{Command: cmd})
	}
}

func (h *ToolsHandler) dispatch(ctx context.Context, request mcp.CallToolRequest, req study.Request) (*mcp.CallToolResult, error) {
	snap, err := h.study.Dispatch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", req.Command, err)
	}
	return snapshotResult(snap, cast.ToString(arguments(request)["format"]))
}

// HandleLoadPGN handles the loadPGN tool.
func (h *ToolsHandler) HandleLoadPGN(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := requiredString(request, "pgn")
	if err != nil {
		return nil, err
	}
	return h.dispatch(ctx, request, study.Request{Command: study.CmdLoadPGN, Text: text})
}

// HandleLoadPGNFile handles the loadPGNFile tool.
func (h *ToolsHandler) HandleLoadPGNFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := requiredString(request, "path")
	if err != nil {
		return nil, err
	}

	src, err := h.readFile(path)
	if err != nil {
		return nil, err
	}
	h.logger.WithContext(ctx).Info("Read PGN file",
		"path", src.Path, "stored", src.Stored.String(), "size", src.Size.String(), "compressed", src.Compressed())

	return h.dispatch(ctx, request, study.Request{Command: study.CmdLoadPGN, Text: src.Text})
}

// HandleLoadFEN handles the loadFEN tool.
func (h *ToolsHandler) HandleLoadFEN(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fen, err := requiredString(request, "fen")
	if err != nil {
		return nil, err
	}
	return h.dispatch(ctx, request, study.Request{Command: study.CmdLoadFEN, FEN: fen})
}

// HandleSelectGame handles the selectGame tool.
func (h *ToolsHandler) HandleSelectGame(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	index, err := requiredInt(request, "index")
	if err != nil {
		return nil, err
	}
	return h.dispatch(ctx, request, study.Request{Command: study.CmdSelectGame, Index: index})
}

// HandleGotoMove handles the gotoMove tool.
func (h *ToolsHandler) HandleGotoMove(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	index, err := requiredInt(request, "index")
	if err != nil {
		return nil, err
	}
	return h.dispatch(ctx, request, study.Request{Command: study.CmdGotoMove, Index: index})
}

// HandlePlayMove handles the playMove tool.
func (h *ToolsHandler) HandlePlayMove(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	req := study.Request{
		Command:   study.CmdPlayMove,
		SAN:       strings.TrimSpace(cast.ToString(args["san"])),
		From:      strings.TrimSpace(cast.ToString(args["from"])),
		To:        strings.TrimSpace(cast.ToString(args["to"])),
		Promotion: strings.TrimSpace(cast.ToString(args["promotion"])),
	}
	if req.SAN == "" && (req.From == "" || req.To == "") {
		return nil, fmt.Errorf("provide either 'san' or both 'from' and 'to'")
	}
	return h.dispatch(ctx, request, req)
}

// HandlePressKey handles the pressKey tool.
func (h *ToolsHandler) HandlePressKey(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := requiredString(request, "key")
	if err != nil {
		return nil, err
	}
	return h.dispatch(ctx, request, study.Request{Command: study.CmdKey, Key: key})
}

// HandleListGames handles the listGames tool.
func (h *ToolsHandler) HandleListGames(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(FormatGameList(h.study.State())), nil
}

// HandleGetState handles the getState tool.
func (h *ToolsHandler) HandleGetState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return snapshotResult(h.study.State(), cast.ToString(arguments(request)["format"]))
}

// HandleGetEngineStatus handles the getEngineStatus tool.
func (h *ToolsHandler) HandleGetEngineStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := h.logger.WithContext(ctx).WithField("tool", "getEngineStatus")

	if h.engine == nil {
		return mcp.NewToolResultText("Chess engine status: not configured"), nil
	}
	st := h.engine.Status()
	state := "stopped"
	if st.Running {
		state = "running"
	}
	logger.Debug("Engine status checked", "status", state)

	var b strings.Builder
	fmt.Fprintf(&b, "Chess engine status: %s\n", state)
	if st.Engine != "" {
		fmt.Fprintf(&b, "Engine: %s\n", st.Engine)
	}
	fmt.Fprintf(&b, "Search depth: %d\n", st.Depth)
	fmt.Fprintf(&b, "Searches sent: %d (%d outstanding)\n", st.LastSeq, st.Pending)
	fmt.Fprintf(&b, "Cache: %d items, %d hits, %d misses\n", st.Cache.Items, st.Cache.Hits, st.Cache.Misses)

	if h.stats != nil {
		if eng, ok := h.stats.GetStats()["engine"].(map[string]interface{}); ok {
			fmt.Fprintf(&b, "Best moves: %d (%d stale)\n", cast.ToInt64(eng["best_moves"]), cast.ToInt64(eng["stale_results"]))
			fmt.Fprintf(&b, "Restarts: %d\n", cast.ToInt64(eng["restarts"]))
			if last := cast.ToString(eng["last_best_move"]); last != "" {
				fmt.Fprintf(&b, "Last best move: %s\n", last)
			}
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

// HandleHealth handles the health tool.
func (h *ToolsHandler) HandleHealth(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if h.checker == nil {
		return nil, fmt.Errorf("health checks are not configured")
	}
	data, err := json.MarshalIndent(h.checker.CheckHealth(ctx), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to format health report: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func snapshotResult(snap study.Snapshot, format string) (*mcp.CallToolResult, error) {
	if strings.EqualFold(format, "json") {
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to format state: %w", err)
		}
		return mcp.NewToolResultText(string(data)), nil
	}
	return mcp.NewToolResultText(FormatSnapshot(snap)), nil
}

// FormatSnapshot renders a snapshot as a board diagram followed by the
// position, the moves and the engine output.
func FormatSnapshot(snap study.Snapshot) string {
	var b strings.Builder
	if d := snap.Details; d != nil {
		fmt.Fprintf(&b, "%s (%s) vs %s (%s), %s\n", d.White, d.WhiteElo, d.Black, d.BlackElo, d.Result)
		fmt.Fprintf(&b, "%s, %s, %s\n\n", d.Event, d.Site, d.Date)
	}
	b.WriteString(strings.TrimRight(snap.Board, "\n"))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "FEN: %s\n", snap.FEN)
	fmt.Fprintf(&b, "To move: %s\n", snap.Turn)
	if snap.MoveText != "" {
		fmt.Fprintf(&b, "Moves: %s\n", snap.MoveText)
	}
	if snap.Engine.Output != "" {
		fmt.Fprintf(&b, "Engine: %s\n", snap.Engine.Output)
	}
	if snap.Warning != "" {
		fmt.Fprintf(&b, "Warning: %s\n", snap.Warning)
	}
	return b.String()
}

// FormatGameList renders the game list, marking the selected game.
func FormatGameList(snap study.Snapshot) string {
	if len(snap.Games) == 0 {
		return "No games loaded."
	}

	var b strings.Builder
	if snap.Total > len(snap.Games) {
		fmt.Fprintf(&b, "Showing the first %d of %d games:\n", len(snap.Games), snap.Total)
	} else {
		fmt.Fprintf(&b, "%d games:\n", len(snap.Games))
	}
	for _, g := range snap.Games {
		marker := " "
		if g.Selected {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s %3d. %s - %s\n", marker, g.Index, g.Title, g.Subtitle)
	}
	return b.String()
}

func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, _ := request.Params.Arguments.(map[string]interface{})
	return args
}

func requiredString(request mcp.CallToolRequest, key string) (string, error) {
	v, ok := arguments(request)[key]
	if !ok {
		return "", fmt.Errorf("missing required argument '%s'", key)
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", fmt.Errorf("%s must be a string: %w", key, err)
	}
	return s, nil
}

func requiredInt(request mcp.CallToolRequest, key string) (int, error) {
	v, ok := arguments(request)[key]
	if !ok {
		return 0, fmt.Errorf("missing required argument '%s'", key)
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return n, nil
}
