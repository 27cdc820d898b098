// Package metrics aggregates check counters for observability.
//
// Counters are strictly additive except for an explicit Reset. Rates are
// derived at snapshot time rather than maintained continuously.
package metrics

import (
	"sync"
	"time"

	"github.com/betawatch/betawatch/internal/parse"
)

// Snapshot is a read-consistent view of all counters.
type Snapshot struct {
	TotalChecks  uint64            `json:"total_checks"`
	SuccessCount uint64            `json:"success_count"`
	FailureCount uint64            `json:"failure_count"`
	CacheHits    uint64            `json:"cache_hits"`
	PerStatus    map[string]uint64 `json:"per_status"`
	StartTime    time.Time         `json:"start_time"`

	// ChecksPerMinute is derived from TotalChecks over elapsed time,
	// zero when no meaningful time has elapsed.
	ChecksPerMinute float64 `json:"checks_per_minute"`
}

// Collector accumulates check outcomes, safe for concurrent use.
//
// Construct with [NewCollector].
type Collector struct {
	mu           sync.Mutex
	totalChecks  uint64
	successCount uint64
	failureCount uint64
	cacheHits    uint64
	perStatus    map[parse.Status]uint64
	startTime    time.Time

	now func() time.Time
}

// NewCollector creates an empty [Collector] with the clock started.
func NewCollector() *Collector {
	c := &Collector{
		perStatus: make(map[parse.Status]uint64),
		now:       time.Now,
	}
	c.startTime = c.now()
	return c
}

// RecordCheck counts one completed check with its classification.
func (c *Collector) RecordCheck(status parse.Status, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalChecks++
	c.perStatus[status]++
	if success {
		c.successCount++
	} else {
		c.failureCount++
	}
}

// RecordCacheHit counts one check answered from cache.
func (c *Collector) RecordCacheHit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cacheHits++
}

// Snapshot returns a consistent copy of all counters with derived rates.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	perStatus := make(map[string]uint64, len(c.perStatus))
	for status, count := range c.perStatus {
		perStatus[status.String()] = count
	}

	snap := Snapshot{
		TotalChecks:  c.totalChecks,
		SuccessCount: c.successCount,
		FailureCount: c.failureCount,
		CacheHits:    c.cacheHits,
		PerStatus:    perStatus,
		StartTime:    c.startTime,
	}

	// guard against division by zero right after startup
	if elapsed := c.now().Sub(c.startTime).Seconds(); elapsed >= 1 {
		snap.ChecksPerMinute = float64(c.totalChecks) / (elapsed / 60)
	}
	return snap
}

// Reset zeroes all counters and restarts the clock.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalChecks = 0
	c.successCount = 0
	c.failureCount = 0
	c.cacheHits = 0
	c.perStatus = make(map[parse.Status]uint64)
	c.startTime = c.now()
}
