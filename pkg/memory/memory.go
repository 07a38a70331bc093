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

// Package memory provides an in-memory, multi-bucket object store.
// It backs the "memory" backend and serves as the store for tests.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jacobsa/timeutil"
	"github.com/jeremyhahn/go-s3crawl/pkg/common"
)

// DefaultMaxResults is the page size used when ListOptions.MaxResults is unset.
const DefaultMaxResults = 1000

// object represents a stored object with its data and modification time.
type object struct {
	data         []byte
	lastModified time.Time
}

// Memory is an object store that keeps buckets in memory.
type Memory struct {
	mu      sync.RWMutex
	buckets map[string]map[string]*object
	clock   timeutil.Clock

	lists atomic.Int64
	gets  atomic.Int64
	heads atomic.Int64
}

// New creates an empty store using the real clock.
func New() *Memory {
	return NewWithClock(timeutil.RealClock())
}

// NewWithClock creates an empty store that stamps objects with clock.
func NewWithClock(clock timeutil.Clock) *Memory {
	return &Memory{
		buckets: make(map[string]map[string]*object),
		clock:   clock,
	}
}

// Configure creates the buckets named by the comma separated "buckets" setting.
func (m *Memory) Configure(settings map[string]string) error {
	for _, name := range strings.Split(settings["buckets"], ",") {
		if name = strings.TrimSpace(name); name != "" {
			m.CreateBucket(name)
		}
	}
	return nil
}

// CreateBucket creates bucket if it does not exist.
func (m *Memory) CreateBucket(bucket string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets[bucket]; !ok {
		m.buckets[bucket] = make(map[string]*object)
	}
}

// DeleteBucket removes bucket and everything in it.
func (m *Memory) DeleteBucket(bucket string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buckets, bucket)
}

// Put stores an object, creating the bucket if needed.
func (m *Memory) Put(ctx context.Context, bucket, key string, data io.Reader) error {
	if err := common.ValidateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dataBytes, err := io.ReadAll(data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	objects, ok := m.buckets[bucket]
	if !ok {
		objects = make(map[string]*object)
		m.buckets[bucket] = objects
	}
	objects[key] = &object{data: dataBytes, lastModified: m.clock.Now()}
	return nil
}

// PutString is a convenience wrapper around Put.
func (m *Memory) PutString(ctx context.Context, bucket, key, data string) error {
	return m.Put(ctx, bucket, key, strings.NewReader(data))
}

// Delete removes an object. Deleting a missing object is not an error.
func (m *Memory) Delete(bucket, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if objects, ok := m.buckets[bucket]; ok {
		delete(objects, key)
	}
}

// GetWithContext returns a reader over a copy of the object's bytes.
func (m *Memory) GetWithContext(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	m.gets.Add(1)
	if err := common.ValidateKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	objects, ok := m.buckets[bucket]
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrBucketNotFound, bucket)
	}
	obj, ok := objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrKeyNotFound, key)
	}

	dataCopy := make([]byte, len(obj.data))
	copy(dataCopy, obj.data)
	return io.NopCloser(bytes.NewReader(dataCopy)), nil
}

// BucketExists reports whether bucket has been created.
func (m *Memory) BucketExists(ctx context.Context, bucket string) (bool, error) {
	m.heads.Add(1)
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.buckets[bucket]
	return ok, nil
}

// listItem is either an object or a common prefix in listing order.
type listItem struct {
	name   string
	object *object
}

// ListWithOptions lists one page of bucket. Objects and common prefixes are
// merged in lexicographic order and both count toward MaxResults. NextToken
// is the name of the last item returned.
func (m *Memory) ListWithOptions(ctx context.Context, bucket string, opts *common.ListOptions) (*common.ListResult, error) {
	m.lists.Add(1)
	if opts == nil {
		opts = &common.ListOptions{}
	}
	if opts.Prefix != "" {
		if err := common.ValidateKey(opts.Prefix); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	objects, ok := m.buckets[bucket]
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrBucketNotFound, bucket)
	}

	var keys []string
	for key := range objects {
		if strings.HasPrefix(key, opts.Prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	items := make([]listItem, 0, len(keys))
	seen := make(map[string]bool)
	for _, key := range keys {
		if opts.Delimiter != "" {
			remainder := strings.TrimPrefix(key, opts.Prefix)
			if idx := strings.Index(remainder, opts.Delimiter); idx >= 0 {
				commonPrefix := opts.Prefix + remainder[:idx+len(opts.Delimiter)]
				if !seen[commonPrefix] {
					seen[commonPrefix] = true
					items = append(items, listItem{name: commonPrefix})
				}
				continue
			}
		}
		items = append(items, listItem{name: key, object: objects[key]})
	}

	start := 0
	if opts.ContinueFrom != "" {
		start = sort.Search(len(items), func(i int) bool { return items[i].name > opts.ContinueFrom })
	}

	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	end := min(start+maxResults, len(items))

	result := &common.ListResult{
		Objects:        []*common.ObjectSummary{},
		CommonPrefixes: []string{},
	}
	for _, item := range items[start:end] {
		if item.object == nil {
			result.CommonPrefixes = append(result.CommonPrefixes, item.name)
			continue
		}
		result.Objects = append(result.Objects, &common.ObjectSummary{
			Key:          item.name,
			Size:         int64(len(item.object.data)),
			LastModified: item.object.lastModified,
		})
	}

	if end < len(items) {
		result.Truncated = true
		result.NextToken = items[end-1].name
	}
	return result, nil
}

// Count returns the number of objects in bucket.
func (m *Memory) Count(bucket string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.buckets[bucket])
}

// Calls returns how many list, get and bucket-exists calls the store served.
func (m *Memory) Calls() CallCounts {
	return CallCounts{
		List:         m.lists.Load(),
		Get:          m.gets.Load(),
		BucketExists: m.heads.Load(),
	}
}

// CallCounts is a snapshot of Memory's request counters.
type CallCounts struct {
	List         int64
	Get          int64
	BucketExists int64
}
