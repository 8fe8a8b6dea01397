package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmmcquay/chess-study/internal/config"
	"github.com/dmmcquay/chess-study/internal/logging"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func TestKeyIgnoresMoveCounters(t *testing.T) {
	a := Key(startFEN, 15)
	b := Key("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 12 40", 15)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, Key(startFEN, 16))
	assert.Equal(t, "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq -@15", a)
}

func TestManager_GetPut(t *testing.T) {
	m := NewManager(&config.CacheConfig{Enabled: true, MaxItems: 10}, logging.NewTestLogger(nil))

	_, ok := m.Get(startFEN, 15)
	assert.False(t, ok)

	m.Put(startFEN, Analysis{BestMove: "e2e4", Ponder: "e7e5", Depth: 15})

	a, ok := m.Get(startFEN, 15)
	assert.True(t, ok)
	assert.Equal(t, "e2e4", a.BestMove)
	assert.Equal(t, "e7e5", a.Ponder)

	_, ok = m.Get(startFEN, 20)
	assert.False(t, ok, "different depth must miss")

	stats := m.Stats()
	assert.Equal(t, 1, stats.Items)
	assert.EqualValues(t, 1, stats.Hits)
	assert.EqualValues(t, 2, stats.Misses)
}

func TestManager_TTL(t *testing.T) {
	m := NewManager(&config.CacheConfig{Enabled: true, MaxItems: 10, TTLSeconds: 1}, logging.NewTestLogger(nil))
	m.ttl = 20 * time.Millisecond

	m.Put(startFEN, Analysis{BestMove: "d2d4", Depth: 10})
	_, ok := m.Get(startFEN, 10)
	assert.True(t, ok)

	time.Sleep(40 * time.Millisecond)
	_, ok = m.Get(startFEN, 10)
	assert.False(t, ok)
	assert.Equal(t, 0, m.Stats().Items)
}

func TestManager_Disabled(t *testing.T) {
	for _, cfg := range []*config.CacheConfig{nil, {Enabled: false, MaxItems: 10}} {
		m := NewManager(cfg, logging.NewTestLogger(nil))
		m.Put(startFEN, Analysis{BestMove: "e2e4", Depth: 15})

		_, ok := m.Get(startFEN, 15)
		assert.False(t, ok)
		assert.False(t, m.IsEnabled())
		assert.Equal(t, Stats{}, m.Stats())
		m.Clear()
	}
}

func TestManager_Clear(t *testing.T) {
	m := NewManager(&config.CacheConfig{Enabled: true, MaxItems: 10}, logging.NewTestLogger(nil))
	m.Put(startFEN, Analysis{BestMove: "e2e4", Depth: 15})
	m.Clear()

	_, ok := m.Get(startFEN, 15)
	assert.False(t, ok)
}
