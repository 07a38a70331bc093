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

// Package throttle rate-limits calls to an object store.
package throttle

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/jeremyhahn/go-s3crawl/pkg/common"
	"golang.org/x/time/rate"
)

// Config holds rate limiting configuration
type Config struct {
	// RequestsPerSecond is the number of store calls allowed per second
	RequestsPerSecond float64

	// Burst is the maximum burst size
	Burst int

	// PerBucket gives each bucket its own limiter (default: false = one global limiter)
	PerBucket bool
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		RequestsPerSecond: 100,
		Burst:             200,
		PerBucket:         false,
	}
}

// Store waits on a rate limiter before every call to the wrapped store.
type Store struct {
	next    common.ObjectStore
	config  *Config
	global  *rate.Limiter
	buckets map[string]*rate.Limiter
	mu      sync.RWMutex
}

var _ common.ObjectStore = (*Store)(nil)

// Wrap returns next throttled by config. A non-positive rate disables
// throttling and next is returned unchanged.
func Wrap(next common.ObjectStore, config *Config) common.ObjectStore {
	if config == nil {
		config = DefaultConfig()
	}
	if config.RequestsPerSecond <= 0 {
		return next
	}
	return New(next, config)
}

// New returns a throttled store.
func New(next common.ObjectStore, config *Config) *Store {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Burst < 1 {
		config.Burst = 1
	}
	s := &Store{
		next:    next,
		config:  config,
		buckets: make(map[string]*rate.Limiter),
	}
	if !config.PerBucket {
		s.global = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst)
	}
	return s
}

func (s *Store) limiter(bucket string) *rate.Limiter {
	if s.global != nil {
		return s.global
	}

	s.mu.RLock()
	l, ok := s.buckets[bucket]
	s.mu.RUnlock()
	if ok {
		return l
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.buckets[bucket]; ok {
		return l
	}
	l = rate.NewLimiter(rate.Limit(s.config.RequestsPerSecond), s.config.Burst)
	s.buckets[bucket] = l
	return l
}

func (s *Store) wait(ctx context.Context, bucket string) error {
	if err := s.limiter(bucket).Wait(ctx); err != nil {
		return fmt.Errorf("throttle %s: %w", bucket, err)
	}
	return nil
}

func (s *Store) ListWithOptions(ctx context.Context, bucket string, opts *common.ListOptions) (*common.ListResult, error) {
	if err := s.wait(ctx, bucket); err != nil {
		return nil, err
	}
	return s.next.ListWithOptions(ctx, bucket, opts)
}

func (s *Store) GetWithContext(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if err := s.wait(ctx, bucket); err != nil {
		return nil, err
	}
	return s.next.GetWithContext(ctx, bucket, key)
}

func (s *Store) BucketExists(ctx context.Context, bucket string) (bool, error) {
	if err := s.wait(ctx, bucket); err != nil {
		return false, err
	}
	return s.next.BucketExists(ctx, bucket)
}
