// Package crawl contains the crawl coordinator: the fairness scheduler and
// shared counters, the concurrent fetch worker pool, and the run reporter.
package crawl

import (
	"sync"

	"news-crawler/pkg/models"
)

// Coordinator owns every piece of state shared between fetch workers: the
// global budget accounting, the per-source success counts the fairness
// scheduler reads, the round-robin cursor, and the run statistics. All of
// it sits behind one mutex so there is no lock ordering to get wrong, and
// critical sections stay short — HTTP I/O never happens under the lock.
type Coordinator struct {
	mu sync.Mutex

	budget       int // Global document budget for this run
	reserved     int // Budget slots handed to workers (>= downloaded)
	minPerSource int // Fairness quota: floor(budget / len(sources))

	sources []string // Configured source names, declaration order
	cursor  int      // Round-robin scan position

	stats models.RunStats
}

// NewCoordinator builds a Coordinator for the given sources and budget.
func NewCoordinator(sources []string, budget int) *Coordinator {
	minPerSource := 0
	if len(sources) > 0 {
		minPerSource = budget / len(sources)
	}
	return &Coordinator{
		budget:       budget,
		minPerSource: minPerSource,
		sources:      sources,
		stats:        models.NewRunStats(sources),
	}
}

// TryReserve claims one budget slot ahead of a fetch. Workers must hold a
// reservation before claiming a queue entry; this is what keeps the final
// downloaded count at or below the budget no matter the pool size. Returns
// false when the budget is exhausted.
func (c *Coordinator) TryReserve() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reserved >= c.budget {
		return false
	}
	c.reserved++
	return true
}

// ReleaseReservation returns an unused budget slot (no claimable work, or
// the fetch failed and produced no document).
func (c *Coordinator) ReleaseReservation() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reserved > 0 {
		c.reserved--
	}
}

// PreferredSource returns the next source still below its fairness quota,
// sweeping the source list round-robin from the shared cursor. An empty
// string means no preference: every source met its minimum (or none are
// configured) and the claim should take any queued entry.
func (c *Coordinator) PreferredSource() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	for range c.sources {
		candidate := c.sources[c.cursor%len(c.sources)]
		c.cursor++
		if c.stats.PerSource[candidate] < c.minPerSource {
			return candidate
		}
	}
	return ""
}

// RecordSuccess consumes the caller's reservation and counts one successful
// fetch outcome. updated distinguishes new/changed content from a 304 or an
// unchanged body. Returns the new downloaded total (used for progress logs).
func (c *Coordinator) RecordSuccess(source string, updated bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Downloaded++
	if updated {
		c.stats.Updated++
	} else {
		c.stats.NotModified++
	}
	if _, known := c.stats.PerSource[source]; known {
		c.stats.PerSource[source]++
	}
	return c.stats.Downloaded
}

// RecordFailure counts a failed attempt. The caller releases its budget
// reservation separately; a failure never consumes budget.
func (c *Coordinator) RecordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Failed++
}

// BudgetReached reports whether the downloaded count hit the budget.
func (c *Coordinator) BudgetReached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats.Downloaded >= c.budget
}

// Snapshot returns a copy of the accumulated run statistics.
func (c *Coordinator) Snapshot() models.RunStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.stats
	snap.PerSource = make(map[string]int, len(c.stats.PerSource))
	for name, count := range c.stats.PerSource {
		snap.PerSource[name] = count
	}
	return snap
}
