package study

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/notnil/chess"

	"github.com/dmmcquay/chess-study/internal/engine"
	"github.com/dmmcquay/chess-study/internal/logging"
	"github.com/dmmcquay/chess-study/internal/metrics"
	"github.com/dmmcquay/chess-study/internal/pgn"
)

// Command names a session operation.
type Command string

const (
	CmdLoadPGN       Command = "load-pgn"
	CmdLoadFEN       Command = "load-fen"
	CmdSelectGame    Command = "select-game"
	CmdNextGame      Command = "next-game"
	CmdPrevGame      Command = "prev-game"
	CmdFirstMove     Command = "first-move"
	CmdPrevMove      Command = "prev-move"
	CmdNextMove      Command = "next-move"
	CmdLastMove      Command = "last-move"
	CmdGotoMove      Command = "goto-move"
	CmdPlayMove      Command = "play-move"
	CmdStartAnalysis Command = "start-analysis"
	CmdStopAnalysis  Command = "stop-analysis"
	CmdFlipBoard     Command = "flip-board"
	CmdKey           Command = "key"
)

// Engine output texts shown to the user.
const (
	OutputAnalyzing = "Analyzing position..."
	OutputStopped   = "Analysis stopped."
	bestMovePrefix  = "Best move: "
)

// Request carries a command and whichever arguments it uses.
type Request struct {
	Command   Command `json:"command"`
	Text      string  `json:"text,omitempty"`
	FEN       string  `json:"fen,omitempty"`
	Index     int     `json:"index,omitempty"`
	From      string  `json:"from,omitempty"`
	To        string  `json:"to,omitempty"`
	Promotion string  `json:"promotion,omitempty"`
	SAN       string  `json:"san,omitempty"`
	Key       string  `json:"key,omitempty"`
}

// Analyzer runs engine searches for the session. *engine.Bridge satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, fen string) (engine.Search, error)
	Stop(ctx context.Context) error
}

// EngineState is what the session shows of the engine.
type EngineState struct {
	Analyzing bool   `json:"analyzing"`
	Output    string `json:"output"`
	BestMove  string `json:"bestMove,omitempty"`
	Ponder    string `json:"ponder,omitempty"`
	Seq       uint64 `json:"seq"`
	Cached    bool   `json:"cached"`
	Stale     bool   `json:"stale"`
}

// Snapshot is the full view of a session after a command.
type Snapshot struct {
	Games    []GameSummary `json:"games"`
	Total    int           `json:"total"`
	Selected int           `json:"selected"`
	Details  *GameDetails  `json:"details,omitempty"`
	Moves    []MoveEntry   `json:"moves"`
	MoveText string        `json:"moveText"`
	Cursor   int           `json:"cursor"`
	FEN      string        `json:"fen"`
	Board    string        `json:"board"`
	Turn     string        `json:"turn"`
	Flipped  bool          `json:"flipped"`
	Engine   EngineState   `json:"engine"`
	Warning  string        `json:"warning,omitempty"`
	// Handled is set when a key command consumed the key.
	Handled bool `json:"handled"`
}

type Option func(*Session)

// WithAnalyzer enables the analysis commands.
func WithAnalyzer(a Analyzer) Option {
	return func(s *Session) { s.analyzer = a }
}

// WithFollowNavigation re-analyzes after navigation while analysis is on.
func WithFollowNavigation(follow bool) Option {
	return func(s *Session) { s.follow = follow }
}

// WithMaxGames caps how many games a PGN load keeps.
func WithMaxGames(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxGames = n
		}
	}
}

// WithDefaultPromotion sets the piece board moves promote to when none is given.
func WithDefaultPromotion(p string) Option {
	return func(s *Session) {
		if _, ok := parsePromotion(p); ok && p != "" {
			s.promotion = strings.ToLower(p)
		}
	}
}

func WithMetrics(prom *metrics.PrometheusCollector) Option {
	return func(s *Session) { s.prom = prom }
}

// Session is the study controller: the loaded games, the navigator over the
// shown game and the engine output. Commands are serialised.
type Session struct {
	logger    logging.ContextLogger
	analyzer  Analyzer
	prom      *metrics.PrometheusCollector
	follow    bool
	maxGames  int
	promotion string

	mu        sync.Mutex
	games     *GameList
	nav       *Navigator
	flipped   bool
	engine    EngineState
	warning   string
	subs      map[int]chan Snapshot
	nextSubID int
}

func NewSession(logger logging.ContextLogger, opts ...Option) *Session {
	s := &Session{
		logger:    logger,
		maxGames:  pgn.DefaultMaxGames,
		promotion: "q",
		games:     NewGameList(),
		nav:       NewNavigator(),
		subs:      make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dispatch runs one command and returns the resulting snapshot. On error
// the state is unchanged unless the error comes from the engine, and the
// snapshot still describes the current state.
func (s *Session) Dispatch(ctx context.Context, req Request) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := s.logger.WithContext(ctx)
	handled, err := s.apply(ctx, req)

	status := "success"
	if err != nil {
		status = "error"
		logger.Warn("Command failed", "command", string(req.Command), "error", err)
	} else {
		logger.Debug("Command applied", "command", string(req.Command), "cursor", s.nav.Cursor())
	}
	if s.prom != nil {
		s.prom.RecordStudyCommand(string(req.Command), status)
	}

	snap := s.snapshotLocked()
	snap.Handled = handled
	s.publishLocked(snap)
	return snap, err
}

func (s *Session) apply(ctx context.Context, req Request) (bool, error) {
	switch req.Command {
	case CmdLoadPGN:
		s.loadPGNLocked(req.Text)
		return false, s.followLocked(ctx, true)

	case CmdLoadFEN:
		if err := s.nav.LoadFEN(req.FEN); err != nil {
			return false, err
		}
		s.warning = ""
		return false, s.followLocked(ctx, true)

	case CmdSelectGame:
		if !s.games.Select(req.Index) {
			return false, nil
		}
		s.loadSelectedLocked()
		return false, s.followLocked(ctx, true)

	case CmdNextGame, CmdPrevGame:
		var changed bool
		if req.Command == CmdNextGame {
			changed = s.games.Next()
		} else {
			changed = s.games.Previous()
		}
		if changed {
			s.loadSelectedLocked()
		}
		return false, s.followLocked(ctx, changed)

	case CmdFirstMove:
		return false, s.followLocked(ctx, s.nav.First())
	case CmdPrevMove:
		return false, s.followLocked(ctx, s.nav.StepBack())
	case CmdNextMove:
		return false, s.followLocked(ctx, s.nav.StepForward())
	case CmdLastMove:
		return false, s.followLocked(ctx, s.nav.Last())
	case CmdGotoMove:
		// Index is the 0-based entry; the start position has no entry
		if req.Index < 0 {
			return false, nil
		}
		return false, s.followLocked(ctx, s.nav.JumpTo(req.Index+1))

	case CmdPlayMove:
		return false, s.playMoveLocked(ctx, req)

	case CmdStartAnalysis:
		return false, s.startAnalysisLocked(ctx)
	case CmdStopAnalysis:
		return false, s.stopAnalysisLocked(ctx)

	case CmdFlipBoard:
		s.flipped = !s.flipped
		return false, nil

	case CmdKey:
		cmd, ok := KeyCommand(req.Key)
		if !ok {
			return false, nil
		}
		_, err := s.apply(ctx, Request{Command: cmd})
		return true, err
	}
	return false, fmt.Errorf("%w: %q", ErrUnknownCommand, req.Command)
}

func (s *Session) loadPGNLocked(text string) {
	c := pgn.Parse(text, s.maxGames)
	s.games.Load(c)
	s.warning = ""

	if s.prom != nil {
		s.prom.SetGamesLoaded(len(c.Games))
	}

	switch {
	case len(c.Games) == 0:
		_ = s.nav.Load(nil, nil)
		s.warning = "no games found"
		return
	case c.Truncated():
		s.warning = fmt.Sprintf("showing the first %d of %d games", len(c.Games), c.Total)
	}

	// The first game is shown but not selected
	s.loadGameLocked(c.Games[0])
}

func (s *Session) loadSelectedLocked() {
	if g, ok := s.games.SelectedGame(); ok {
		s.warning = ""
		s.loadGameLocked(g)
	}
}

func (s *Session) loadGameLocked(g *pgn.GameRecord) {
	var base *chess.Position
	if fen := g.Headers.FEN(); fen != "" {
		pos, err := ParseFEN(fen)
		if err != nil {
			s.addWarning(fmt.Sprintf("game %d: %v", g.Index+1, err))
		}
		base = pos
	}
	err := g.Err
	if loadErr := s.nav.Load(base, g.Moves); loadErr != nil {
		err = loadErr
	}
	if err != nil {
		s.logger.Warn("Game has an illegal move", "game", g.Index+1, "error", err)
		s.addWarning(fmt.Sprintf("game %d: %v", g.Index+1, err))
	}
}

func (s *Session) addWarning(w string) {
	if s.warning == "" {
		s.warning = w
		return
	}
	s.warning += "; " + w
}

func (s *Session) playMoveLocked(ctx context.Context, req Request) error {
	pos := s.nav.Position()

	var (
		m   *chess.Move
		err error
	)
	if req.SAN != "" {
		m, err = DecodeSAN(pos, req.SAN)
	} else {
		promotion := req.Promotion
		if promotion == "" {
			promotion = s.promotion
		}
		m, err = ResolveMove(pos, req.From, req.To, promotion)
	}
	if err != nil {
		return err
	}

	s.nav.Append(m)
	if s.engine.Analyzing {
		return s.analyzeLocked(ctx)
	}
	return nil
}

// followLocked re-analyzes after a position change when analysis is on and
// navigation following is enabled.
func (s *Session) followLocked(ctx context.Context, changed bool) error {
	if !changed || !s.follow || !s.engine.Analyzing {
		return nil
	}
	return s.analyzeLocked(ctx)
}

func (s *Session) startAnalysisLocked(ctx context.Context) error {
	if s.analyzer == nil {
		return ErrNoEngine
	}
	s.engine.Analyzing = true
	return s.analyzeLocked(ctx)
}

func (s *Session) analyzeLocked(ctx context.Context) error {
	s.engine.Output = OutputAnalyzing
	s.engine.BestMove = ""
	s.engine.Ponder = ""
	s.engine.Cached = false
	s.engine.Stale = false

	search, err := s.analyzer.Analyze(ctx, s.nav.FEN())
	if err != nil {
		s.engine.Analyzing = false
		s.engine.Output = "Engine unavailable."
		return fmt.Errorf("failed to start analysis: %w", err)
	}
	s.engine.Seq = search.Seq
	if search.Cached {
		s.engine.Cached = true
		s.showBestMoveLocked(search.BestMove, search.Ponder)
	}
	return nil
}

func (s *Session) stopAnalysisLocked(ctx context.Context) error {
	if s.analyzer == nil {
		return ErrNoEngine
	}
	s.engine.Analyzing = false
	s.engine.Output = OutputStopped
	if err := s.analyzer.Stop(ctx); err != nil && !errors.Is(err, engine.ErrEngineNotRunning) {
		return fmt.Errorf("failed to stop analysis: %w", err)
	}
	return nil
}

func (s *Session) showBestMoveLocked(move, ponder string) {
	s.engine.BestMove = move
	s.engine.Ponder = ponder
	s.engine.Output = bestMovePrefix + move
}

// HandleEngineEvent shows a best move. Replies to a search that a newer one
// replaced are dropped; the reply to a stopped search is still shown and
// marked stale.
func (s *Session) HandleEngineEvent(ev engine.Event) {
	if ev.Kind != engine.KindBestMove {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.Seq < s.engine.Seq {
		s.logger.Debug("Dropping superseded best move", "seq", ev.Seq, "move", ev.BestMove)
		return
	}
	s.engine.Seq = ev.Seq
	s.engine.Cached = false
	s.engine.Stale = ev.Stale
	s.showBestMoveLocked(ev.BestMove, ev.Ponder)

	s.publishLocked(s.snapshotLocked())
}

// State returns the current snapshot without changing anything.
func (s *Session) State() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel receiving every snapshot the session
// produces and a function that ends the subscription. Snapshots are
// dropped for a subscriber that falls behind.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	ch := make(chan Snapshot, 16)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

func (s *Session) publishLocked(snap Snapshot) {
	for id, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			s.logger.Debug("Subscriber is behind, dropping snapshot", "subscriber", id)
		}
	}
}

func (s *Session) snapshotLocked() Snapshot {
	pos := s.nav.Position()
	entries := MoveEntries(s.nav.Base(), s.nav.Moves(), s.nav.Cursor())

	turn := "white"
	if pos.Turn() == chess.Black {
		turn = "black"
	}

	snap := Snapshot{
		Games:    Summaries(s.games),
		Total:    s.games.Total(),
		Selected: s.games.Selected(),
		Moves:    entries,
		MoveText: FormatMoves(entries),
		Cursor:   s.nav.Cursor(),
		FEN:      pos.String(),
		Board:    RenderBoard(pos, s.flipped),
		Turn:     turn,
		Flipped:  s.flipped,
		Engine:   s.engine,
		Warning:  s.warning,
	}
	if g, ok := s.games.SelectedGame(); ok {
		snap.Details = Details(g)
	}
	return snap
}
