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

package metrics

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports a set of named CacheMetrics as Prometheus metrics
// labelled by cache name.
type Collector struct {
	mu     sync.RWMutex
	caches map[string]*CacheMetrics

	hits         *prometheus.Desc
	misses       *prometheus.Desc
	loads        *prometheus.Desc
	loadFailures *prometheus.Desc
	shared       *prometheus.Desc
	entries      *prometheus.Desc
	evictions    *prometheus.Desc
}

// NewCollector creates a collector whose metric names start with namespace.
func NewCollector(namespace string) *Collector {
	labels := []string{"cache"}
	desc := func(name, help string, extra ...string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", name),
			help, append(labels, extra...), nil)
	}
	return &Collector{
		caches:       make(map[string]*CacheMetrics),
		hits:         desc("hits_total", "Lookups served from the cache."),
		misses:       desc("misses_total", "Lookups that required a population."),
		loads:        desc("loads_total", "Loader invocations."),
		loadFailures: desc("load_failures_total", "Loader invocations that failed."),
		shared:       desc("shared_loads_total", "Misses answered by a population shared with other callers."),
		entries:      desc("entries", "Entries currently cached."),
		evictions:    desc("evictions_total", "Entries removed from the cache.", "cause"),
	}
}

// Add registers m under name, replacing any previous registration.
func (c *Collector) Add(name string, m *CacheMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.caches[name] = m
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.loads
	ch <- c.loadFailures
	ch <- c.shared
	ch <- c.entries
	ch <- c.evictions
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	names := make([]string, 0, len(c.caches))
	for name := range c.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	snaps := make([]Snapshot, len(names))
	for i, name := range names {
		snaps[i] = c.caches[name].Snapshot()
	}
	c.mu.RUnlock()

	for i, name := range names {
		s := snaps[i]
		ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.Hits), name)
		ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.Misses), name)
		ch <- prometheus.MustNewConstMetric(c.loads, prometheus.CounterValue, float64(s.Loads), name)
		ch <- prometheus.MustNewConstMetric(c.loadFailures, prometheus.CounterValue, float64(s.LoadFailures), name)
		ch <- prometheus.MustNewConstMetric(c.shared, prometheus.CounterValue, float64(s.Shared), name)
		ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(s.Entries), name)
		for _, cause := range EvictionCauses {
			ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue,
				float64(s.Evictions[cause]), name, cause)
		}
	}
}

// Registry returns a fresh registry holding only this collector.
func (c *Collector) Registry() (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return reg, nil
}

// WriteTextfile writes the collector's metrics to path in the node-exporter
// textfile format. The file is replaced atomically.
func WriteTextfile(path string, c *Collector) error {
	reg, err := c.Registry()
	if err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, reg)
}
