package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmmcquay/chess-study/internal/cache"
	"github.com/dmmcquay/chess-study/internal/logging"
	"github.com/dmmcquay/chess-study/internal/metrics"
)

// DefaultDepth is the search depth sent with go when none is configured.
const DefaultDepth = 15

// Event is a classified engine reply tied to the search that caused it.
type Event struct {
	Seq      uint64 `json:"seq"`
	Kind     Kind   `json:"kind"`
	FEN      string `json:"fen,omitempty"`
	BestMove string `json:"bestMove,omitempty"`
	Ponder   string `json:"ponder,omitempty"`
	Info     *Info  `json:"info,omitempty"`
	// Stale marks replies to a search that was stopped or superseded.
	Stale bool `json:"stale"`
}

// Search describes an analysis request. Cached searches carry their answer
// and never reach the engine.
type Search struct {
	Seq      uint64 `json:"seq"`
	FEN      string `json:"fen"`
	Depth    int    `json:"depth"`
	Cached   bool   `json:"cached"`
	BestMove string `json:"bestMove,omitempty"`
	Ponder   string `json:"ponder,omitempty"`
}

// Status summarises the bridge for status tools.
type Status struct {
	Running bool        `json:"running"`
	Engine  string      `json:"engine"`
	Depth   int         `json:"depth"`
	LastSeq uint64      `json:"lastSeq"`
	Pending int         `json:"pending"`
	Cache   cache.Stats `json:"cache"`
}

type pendingSearch struct {
	seq     uint64
	fen     string
	started time.Time
	stopped bool
}

// Bridge sends positions to the engine and turns its replies into Events.
// Searches are fire-and-forget: nothing times out, and every go is answered
// by exactly one bestmove in order, which is how replies are matched to
// searches.
type Bridge struct {
	engine EngineInterface
	cache  *cache.Manager
	logger logging.ContextLogger
	prom   *metrics.PrometheusCollector
	stats  *metrics.Collector
	depth  int
	start  func(ctx context.Context) error

	mu          sync.Mutex
	seq         uint64
	outstanding []*pendingSearch
	handler     func(Event)
}

type BridgeOption func(*Bridge)

// WithCache answers repeated positions from the analysis cache.
func WithCache(c *cache.Manager) BridgeOption {
	return func(b *Bridge) { b.cache = c }
}

// WithMetrics records searches and engine lines.
func WithMetrics(prom *metrics.PrometheusCollector, stats *metrics.Collector) BridgeOption {
	return func(b *Bridge) {
		b.prom = prom
		b.stats = stats
	}
}

// WithStarter is called to bring the engine up when a search finds it stopped.
func WithStarter(start func(ctx context.Context) error) BridgeOption {
	return func(b *Bridge) { b.start = start }
}

func NewBridge(engine EngineInterface, depth int, logger logging.ContextLogger, opts ...BridgeOption) *Bridge {
	if depth < 1 {
		depth = DefaultDepth
	}
	b := &Bridge{
		engine: engine,
		logger: logger,
		depth:  depth,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// OnEvent registers the receiver of bestmove and info events. It runs on
// the Run goroutine.
func (b *Bridge) OnEvent(fn func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = fn
}

// Analyze starts a search of fen, first stopping any search still running.
func (b *Bridge) Analyze(ctx context.Context, fen string) (Search, error) {
	if b.cache != nil {
		if a, ok := b.cache.Get(fen, b.depth); ok {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.supersedeLocked()
			b.seq++
			b.recordSearch(true)
			b.logger.Debug("Analysis served from cache", "seq", b.seq, "bestmove", a.BestMove)
			return Search{Seq: b.seq, FEN: fen, Depth: b.depth, Cached: true, BestMove: a.BestMove, Ponder: a.Ponder}, nil
		}
		if b.prom != nil {
			b.prom.RecordCacheMiss()
		}
	}

	if !b.engine.IsRunning() && b.start != nil {
		if err := b.start(ctx); err != nil {
			return Search{}, fmt.Errorf("%w: %v", ErrEngineNotRunning, err)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.engine.IsRunning() {
		return Search{}, ErrEngineNotRunning
	}
	b.supersedeLocked()

	if err := b.engine.Send("position fen " + fen); err != nil {
		return Search{}, fmt.Errorf("failed to send position: %w", err)
	}
	if err := b.engine.Send(fmt.Sprintf("go depth %d", b.depth)); err != nil {
		return Search{}, fmt.Errorf("failed to send go: %w", err)
	}

	b.seq++
	b.outstanding = append(b.outstanding, &pendingSearch{seq: b.seq, fen: fen, started: time.Now()})
	b.recordSearch(false)
	b.logger.Debug("Analysis started", "seq", b.seq, "depth", b.depth)

	return Search{Seq: b.seq, FEN: fen, Depth: b.depth}, nil
}

// Stop asks the engine to end the current search. Its bestmove still
// arrives and is reported as stale.
func (b *Bridge) Stop(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.engine.IsRunning() {
		return ErrEngineNotRunning
	}
	if err := b.engine.Send("stop"); err != nil {
		return fmt.Errorf("failed to send stop: %w", err)
	}
	for _, s := range b.outstanding {
		s.stopped = true
	}
	return nil
}

// supersedeLocked stops an unfinished search before a new one replaces it.
func (b *Bridge) supersedeLocked() {
	running := false
	for _, s := range b.outstanding {
		if !s.stopped {
			running = true
			s.stopped = true
		}
	}
	if running && b.engine.IsRunning() {
		if err := b.engine.Send("stop"); err != nil {
			b.logger.Warn("Failed to stop superseded search", "error", err)
		}
	}
}

func (b *Bridge) recordSearch(cached bool) {
	if b.prom != nil {
		source := "engine"
		if cached {
			source = "cache"
			b.prom.RecordCacheHit()
		}
		b.prom.RecordSearch(source)
	}
	if b.stats != nil {
		b.stats.RecordSearch(cached)
	}
}

// Reset forgets outstanding searches. Called after the engine restarts,
// since a new process never answers the old searches.
func (b *Bridge) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.outstanding) > 0 {
		b.logger.Warn("Dropping searches lost with the engine", "count", len(b.outstanding))
	}
	b.outstanding = nil
}

// Run consumes engine messages until ctx is done.
func (b *Bridge) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.engine.Messages():
			b.handle(msg)
		}
	}
}

func (b *Bridge) handle(msg Message) {
	b.mu.Lock()

	if b.prom != nil {
		b.prom.RecordEngineLine(msg.Kind.String())
	}

	var ev *Event
	switch msg.Kind {
	case KindBestMove:
		ev = b.completeLocked(msg)
	case KindInfo:
		ev = &Event{Kind: KindInfo, Info: msg.Info, Stale: true}
		if len(b.outstanding) > 0 {
			front := b.outstanding[0]
			msg.Seq = front.seq
			ev.Seq = front.seq
			ev.FEN = front.fen
			ev.Stale = front.stopped || front.seq != b.seq
		}
		b.logger.Debug("Engine info", "seq", msg.Seq, "depth", msg.Info.Depth, "score", msg.Info.ScoreString())
	default:
		b.logger.Debug("Engine output", "line", msg.Raw)
	}

	handler := b.handler
	b.mu.Unlock()

	if ev != nil && handler != nil {
		handler(*ev)
	}
}

// completeLocked matches a bestmove to the oldest outstanding search.
func (b *Bridge) completeLocked(msg Message) *Event {
	if len(b.outstanding) == 0 {
		b.logger.Debug("Unsolicited bestmove", "move", msg.BestMove)
		return &Event{Kind: KindBestMove, BestMove: msg.BestMove, Ponder: msg.Ponder, Stale: true}
	}

	s := b.outstanding[0]
	b.outstanding = b.outstanding[1:]
	msg.Seq = s.seq
	stale := s.stopped || s.seq != b.seq

	// A stopped search ended early, so its answer is not worth keeping
	if !s.stopped && b.cache != nil {
		b.cache.Put(s.fen, cache.Analysis{BestMove: msg.BestMove, Ponder: msg.Ponder, Depth: b.depth})
		if b.prom != nil {
			stats := b.cache.Stats()
			b.prom.SetCacheStats(float64(stats.Items), float64(stats.Size))
		}
	}
	if b.prom != nil {
		b.prom.RecordSearchDuration(time.Since(s.started).Seconds())
	}
	if b.stats != nil {
		b.stats.RecordBestMove(msg.BestMove, stale)
	}

	b.logger.Debug("Best move received", "seq", s.seq, "move", msg.BestMove, "stale", stale)
	return &Event{
		Seq:      s.seq,
		Kind:     KindBestMove,
		FEN:      s.fen,
		BestMove: msg.BestMove,
		Ponder:   msg.Ponder,
		Stale:    stale,
	}
}

// Depth is the configured search depth.
func (b *Bridge) Depth() int {
	return b.depth
}

func (b *Bridge) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := Status{
		Running: b.engine.IsRunning(),
		Engine:  b.engine.Name(),
		Depth:   b.depth,
		LastSeq: b.seq,
		Pending: len(b.outstanding),
	}
	if b.cache != nil {
		st.Cache = b.cache.Stats()
	}
	return st
}
