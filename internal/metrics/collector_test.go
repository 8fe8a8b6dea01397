package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorToolStats(t *testing.T) {
	c := NewCollector()
	c.RecordToolCall("nextMove", "success", 10*time.Millisecond)
	c.RecordToolCall("nextMove", "error", 30*time.Millisecond)
	c.RecordToolCall("startAnalysis", "rate_limited", 0)

	stats := c.GetStats()
	tools := stats["tools"].(map[string]interface{})
	next := tools["nextMove"].(map[string]interface{})
	assert.EqualValues(t, 2, next["calls"])
	assert.EqualValues(t, 1, next["errors"])
	assert.Equal(t, 0.5, next["error_rate"])
	assert.EqualValues(t, 20, next["avg_duration_ms"])

	limits := stats["rate_limits"].(map[string]interface{})
	assert.EqualValues(t, 1, limits["hits"])
	assert.EqualValues(t, 3, limits["total"])
}

func TestCollectorEngineStats(t *testing.T) {
	c := NewCollector()
	c.RecordSearch(false)
	c.RecordSearch(true)
	c.RecordBestMove("e2e4", false)
	c.RecordBestMove("d2d4", true)
	c.RecordRestart()

	engine, ok := c.GetStats()["engine"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 2, engine["searches"])
	assert.EqualValues(t, 1, engine["cache_hits"])
	assert.EqualValues(t, 2, engine["best_moves"])
	assert.EqualValues(t, 1, engine["stale_results"])
	assert.EqualValues(t, 1, engine["restarts"])
	assert.Equal(t, "d2d4", engine["last_best_move"])

	c.Reset()
	engine = c.GetStats()["engine"].(map[string]interface{})
	assert.EqualValues(t, 0, engine["searches"])
	assert.Equal(t, "", engine["last_best_move"])
}

func TestCollectorKeepsLastHundredDurations(t *testing.T) {
	c := NewCollector()
	for i := 0; i < 150; i++ {
		c.RecordToolCall("getState", "success", time.Millisecond)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	assert.Len(t, c.toolDurations["getState"], 100)
	assert.EqualValues(t, 150, c.toolCalls["getState"])
}
