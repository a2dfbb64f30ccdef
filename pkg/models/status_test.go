package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueueStatus(t *testing.T) {
	t.Run("validity", func(t *testing.T) {
		for _, s := range []QueueStatus{StatusQueued, StatusInProgress, StatusDone, StatusFailed} {
			assert.True(t, s.IsValid(), s)
		}
		assert.False(t, QueueStatus("pending").IsValid())
		assert.False(t, QueueStatus("").IsValid())
	})

	t.Run("terminality", func(t *testing.T) {
		assert.True(t, StatusDone.IsTerminal())
		assert.True(t, StatusFailed.IsTerminal())
		assert.False(t, StatusQueued.IsTerminal())
		assert.False(t, StatusInProgress.IsTerminal())
	})

	t.Run("string form matches stored value", func(t *testing.T) {
		assert.Equal(t, "in_progress", StatusInProgress.String())
	})
}

func TestNewRunStats(t *testing.T) {
	stats := NewRunStats([]string{"alpha", "beta"})
	assert.Equal(t, 0, stats.Downloaded)
	assert.Equal(t, map[string]int{"alpha": 0, "beta": 0}, stats.PerSource)
}
