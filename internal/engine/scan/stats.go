package scan

import (
	"sync/atomic"
	"time"
)

// Stats aggregates run counters shared between the workers and the
// progress surfaces.
type Stats struct {
	Pages     atomic.Int64 // search pages handled
	Details   atomic.Int64 // detail fallbacks handled
	Found     atomic.Int64 // result records seen on pages, pre-dedup
	Extracted atomic.Int64 // entities delivered to the output sink
	Errors    atomic.Int64
	Retries   atomic.Int64
	Blocked   atomic.Int64 // blocked upstream responses

	Started time.Time
}

// NewStats returns counters stamped with the run start.
func NewStats() *Stats {
	return &Stats{Started: time.Now()}
}

// Elapsed returns the wall time since the run started.
func (s *Stats) Elapsed() time.Duration {
	return time.Since(s.Started).Truncate(time.Second)
}
