package webhook

import (
	"sync"
	"time"
)

// MetricsTracker keeps the request counters reported by /health
type MetricsTracker struct {
	stats RequestStats
	mu    sync.RWMutex
}

// NewMetricsTracker creates a new metrics tracker
func NewMetricsTracker() *MetricsTracker {
	return &MetricsTracker{}
}

// Track records one update request
func (mt *MetricsTracker) Track(accepted bool, durationMs float64) {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	mt.stats.Total++
	if accepted {
		mt.stats.Accepted++
	} else {
		mt.stats.Rejected++
	}

	// Running average
	n := float64(mt.stats.Total)
	mt.stats.AverageResponseTime = (mt.stats.AverageResponseTime*(n-1) + durationMs) / n
	mt.stats.LastRequestAt = time.Now().UnixMilli()
}

// Snapshot returns a copy of the counters
func (mt *MetricsTracker) Snapshot() RequestStats {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	return mt.stats
}

// Reset clears all counters
func (mt *MetricsTracker) Reset() {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.stats = RequestStats{}
}
