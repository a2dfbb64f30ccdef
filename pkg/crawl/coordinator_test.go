package crawl

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPreferredSource(t *testing.T) {
	t.Run("rotates across sources below quota", func(t *testing.T) {
		coord := NewCoordinator([]string{"alpha", "beta"}, 4) // quota 2 each
		assert.Equal(t, "alpha", coord.PreferredSource())
		assert.Equal(t, "beta", coord.PreferredSource())
		assert.Equal(t, "alpha", coord.PreferredSource())
	})

	t.Run("skips sources that met their quota", func(t *testing.T) {
		coord := NewCoordinator([]string{"alpha", "beta"}, 4) // quota 2 each
		coord.TryReserve()
		coord.RecordSuccess("alpha", true)
		coord.TryReserve()
		coord.RecordSuccess("alpha", true)

		// alpha is at quota; only beta should be preferred now.
		assert.Equal(t, "beta", coord.PreferredSource())
		assert.Equal(t, "beta", coord.PreferredSource())
	})

	t.Run("no preference once all quotas met", func(t *testing.T) {
		coord := NewCoordinator([]string{"alpha"}, 2)
		coord.TryReserve()
		coord.RecordSuccess("alpha", true)
		coord.TryReserve()
		coord.RecordSuccess("alpha", true)
		assert.Equal(t, "", coord.PreferredSource())
	})

	t.Run("no sources means no preference", func(t *testing.T) {
		coord := NewCoordinator(nil, 10)
		assert.Equal(t, "", coord.PreferredSource())
	})

	t.Run("tiny budget yields zero quota and no preference", func(t *testing.T) {
		coord := NewCoordinator([]string{"alpha", "beta", "gamma"}, 2) // 2/3 = 0
		assert.Equal(t, "", coord.PreferredSource())
	})
}

func TestBudgetReservation(t *testing.T) {
	t.Run("reservations stop at the budget", func(t *testing.T) {
		coord := NewCoordinator([]string{"alpha"}, 3)
		assert.True(t, coord.TryReserve())
		assert.True(t, coord.TryReserve())
		assert.True(t, coord.TryReserve())
		assert.False(t, coord.TryReserve())
	})

	t.Run("released reservations become available again", func(t *testing.T) {
		coord := NewCoordinator([]string{"alpha"}, 1)
		assert.True(t, coord.TryReserve())
		assert.False(t, coord.TryReserve())
		coord.ReleaseReservation()
		assert.True(t, coord.TryReserve())
	})

	t.Run("concurrent reservations never exceed the budget", func(t *testing.T) {
		const budget = 10
		coord := NewCoordinator([]string{"alpha"}, budget)

		var wins atomic.Int64
		var wg sync.WaitGroup
		for range 100 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if coord.TryReserve() {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int64(budget), wins.Load())
	})
}

func TestRecordOutcomes(t *testing.T) {
	coord := NewCoordinator([]string{"alpha", "beta"}, 10)

	coord.TryReserve()
	total := coord.RecordSuccess("alpha", true)
	assert.Equal(t, 1, total)

	coord.TryReserve()
	total = coord.RecordSuccess("alpha", false)
	assert.Equal(t, 2, total)

	coord.RecordFailure()

	stats := coord.Snapshot()
	assert.Equal(t, 2, stats.Downloaded)
	assert.Equal(t, 1, stats.Updated)
	assert.Equal(t, 1, stats.NotModified)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 2, stats.PerSource["alpha"])
	assert.Equal(t, 0, stats.PerSource["beta"])

	t.Run("unknown source is counted globally but not per source", func(t *testing.T) {
		coord.TryReserve()
		coord.RecordSuccess("ghost", true)
		stats := coord.Snapshot()
		assert.Equal(t, 3, stats.Downloaded)
		assert.NotContains(t, stats.PerSource, "ghost")
	})

	t.Run("snapshot is a copy", func(t *testing.T) {
		snap := coord.Snapshot()
		snap.PerSource["alpha"] = 99
		assert.NotEqual(t, 99, coord.Snapshot().PerSource["alpha"])
	})
}

func TestBudgetReached(t *testing.T) {
	coord := NewCoordinator([]string{"alpha"}, 2)
	assert.False(t, coord.BudgetReached())
	coord.TryReserve()
	coord.RecordSuccess("alpha", true)
	assert.False(t, coord.BudgetReached())
	coord.TryReserve()
	coord.RecordSuccess("alpha", true)
	assert.True(t, coord.BudgetReached())
}
