package cache

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmmcquay/chess-study/internal/config"
	"github.com/dmmcquay/chess-study/internal/logging"
)

// Analysis is a finished engine search.
type Analysis struct {
	BestMove string `json:"bestMove"`
	Ponder   string `json:"ponder,omitempty"`
	Depth    int    `json:"depth"`
}

// Manager caches analyses by position and search depth.
type Manager struct {
	cache   *LRU[Analysis]
	logger  logging.ContextLogger
	enabled bool
	ttl     time.Duration
}

// NewManager creates a cache manager. A nil or disabled config yields a
// manager that never hits.
func NewManager(cfg *config.CacheConfig, logger logging.ContextLogger) *Manager {
	if cfg == nil || !cfg.Enabled {
		return &Manager{logger: logger}
	}

	return &Manager{
		cache:   NewLRU[Analysis](cfg.MaxItems, cfg.MaxSizeBytes),
		logger:  logger,
		enabled: true,
		ttl:     time.Duration(cfg.TTLSeconds) * time.Second,
	}
}

// Key builds the cache key for a position. Only the placement, side to move,
// castling and en passant fields of the FEN take part, so transpositions
// reached at different move counts share an entry.
func Key(fen string, depth int) string {
	fields := strings.Fields(fen)
	if len(fields) > 4 {
		fields = fields[:4]
	}
	return fmt.Sprintf("%s@%d", strings.Join(fields, " "), depth)
}

// Get returns the cached analysis for fen at depth.
func (m *Manager) Get(fen string, depth int) (Analysis, bool) {
	if !m.enabled {
		return Analysis{}, false
	}

	key := Key(fen, depth)
	a, created, ok := m.cache.Get(key)
	if !ok {
		return Analysis{}, false
	}
	if m.ttl > 0 && time.Since(created) > m.ttl {
		m.cache.Delete(key)
		m.logger.Debug("Cache entry expired", "key", key, "age", time.Since(created))
		return Analysis{}, false
	}
	return a, true
}

// Put stores an analysis. Empty best moves ("(none)" from a mated or
// stalemated position included) are stored too; they are valid answers.
func (m *Manager) Put(fen string, a Analysis) {
	if !m.enabled {
		return
	}

	key := Key(fen, a.Depth)
	size := int64(len(key) + len(a.BestMove) + len(a.Ponder) + 16)
	m.cache.Put(key, a, size)
	m.logger.Debug("Cached analysis", "key", key, "bestmove", a.BestMove)
}

func (m *Manager) Stats() Stats {
	if !m.enabled {
		return Stats{}
	}
	return m.cache.Stats()
}

func (m *Manager) Clear() {
	if m.enabled {
		m.cache.Clear()
	}
}

func (m *Manager) IsEnabled() bool {
	return m.enabled
}
