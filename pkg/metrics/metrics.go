// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-s3crawl.
//
// go-s3crawl is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package metrics tracks cache and crawl counters and exports them in the
// Prometheus text format.
package metrics

import (
	"sync/atomic"
)

// Eviction causes as reported by the caches.
const (
	CauseExpired  = "expired"
	CauseEvicted  = "evicted"
	CauseExplicit = "explicit"
	CauseCleared  = "cleared"
)

// EvictionCauses lists every cause in export order.
var EvictionCauses = []string{CauseExpired, CauseEvicted, CauseExplicit, CauseCleared}

// CacheMetrics tracks the behavior of one self-populating cache.
// All fields use atomic operations for thread-safe updates.
type CacheMetrics struct {
	hits         atomic.Int64
	misses       atomic.Int64
	loads        atomic.Int64
	loadFailures atomic.Int64
	shared       atomic.Int64
	entries      atomic.Int64

	expired  atomic.Int64
	evicted  atomic.Int64
	explicit atomic.Int64
	cleared  atomic.Int64
}

// NewCacheMetrics creates a new metrics instance.
func NewCacheMetrics() *CacheMetrics {
	return &CacheMetrics{}
}

// RecordHit counts a lookup served from the cache.
func (m *CacheMetrics) RecordHit() {
	m.hits.Add(1)
}

// RecordMiss counts a lookup that had to wait for a population.
func (m *CacheMetrics) RecordMiss() {
	m.misses.Add(1)
}

// RecordLoad counts one loader invocation and its outcome.
func (m *CacheMetrics) RecordLoad(err error) {
	m.loads.Add(1)
	if err != nil {
		m.loadFailures.Add(1)
	}
}

// RecordShared counts a miss that joined an in-flight population.
func (m *CacheMetrics) RecordShared() {
	m.shared.Add(1)
}

// RecordEviction counts a removal. Unknown causes are ignored.
func (m *CacheMetrics) RecordEviction(cause string) {
	switch cause {
	case CauseExpired:
		m.expired.Add(1)
	case CauseEvicted:
		m.evicted.Add(1)
	case CauseExplicit:
		m.explicit.Add(1)
	case CauseCleared:
		m.cleared.Add(1)
	}
}

// SetEntries records the current number of cached entries.
func (m *CacheMetrics) SetEntries(n int) {
	m.entries.Store(int64(n))
}

// Snapshot returns a point-in-time copy of all counters.
func (m *CacheMetrics) Snapshot() Snapshot {
	return Snapshot{
		Hits:         m.hits.Load(),
		Misses:       m.misses.Load(),
		Loads:        m.loads.Load(),
		LoadFailures: m.loadFailures.Load(),
		Shared:       m.shared.Load(),
		Entries:      m.entries.Load(),
		Evictions: map[string]int64{
			CauseExpired:  m.expired.Load(),
			CauseEvicted:  m.evicted.Load(),
			CauseExplicit: m.explicit.Load(),
			CauseCleared:  m.cleared.Load(),
		},
	}
}

// Reset resets all counters to zero.
func (m *CacheMetrics) Reset() {
	for _, c := range []*atomic.Int64{
		&m.hits, &m.misses, &m.loads, &m.loadFailures, &m.shared, &m.entries,
		&m.expired, &m.evicted, &m.explicit, &m.cleared,
	} {
		c.Store(0)
	}
}

// Snapshot is a point-in-time view of CacheMetrics.
type Snapshot struct {
	Hits         int64            `json:"hits"`
	Misses       int64            `json:"misses"`
	Loads        int64            `json:"loads"`
	LoadFailures int64            `json:"load_failures"`
	Shared       int64            `json:"shared"`
	Entries      int64            `json:"entries"`
	Evictions    map[string]int64 `json:"evictions"`
}

// HitRatio returns hits / (hits + misses), or 0 before any lookup.
func (s Snapshot) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
