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

package listing

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jacobsa/timeutil"
	"github.com/jeremyhahn/go-s3crawl/pkg/cache"
	"github.com/jeremyhahn/go-s3crawl/pkg/common"
	"github.com/jeremyhahn/go-s3crawl/pkg/memory"
	"github.com/jeremyhahn/go-s3crawl/pkg/objmeta"
	"github.com/jeremyhahn/go-s3crawl/pkg/s3path"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rawStore returns a fixed sequence of pages for any list request and counts
// the calls it served.
type rawStore struct {
	pages []*common.ListResult
	err   error
	calls atomic.Int32
}

func (s *rawStore) ListWithOptions(ctx context.Context, bucket string, opts *common.ListOptions) (*common.ListResult, error) {
	n := int(s.calls.Add(1)) - 1
	if s.err != nil {
		return nil, s.err
	}
	if n >= len(s.pages) {
		return nil, errors.New("unexpected list call")
	}
	return s.pages[n], nil
}

func (s *rawStore) GetWithContext(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	return nil, common.ErrKeyNotFound
}

func (s *rawStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return true, nil
}

// gatedStore blocks list calls until released.
type gatedStore struct {
	common.ObjectStore
	release chan struct{}
	calls   atomic.Int32
}

func (s *gatedStore) ListWithOptions(ctx context.Context, bucket string, opts *common.ListOptions) (*common.ListResult, error) {
	s.calls.Add(1)
	<-s.release
	return s.ObjectStore.ListWithOptions(ctx, bucket, opts)
}

func names(entries []objmeta.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name)
	}
	return out
}

func newTestCache(t *testing.T, store common.ObjectStore, mutate func(*Options)) *Cache {
	t.Helper()
	opts := DefaultOptions()
	clock := &timeutil.SimulatedClock{}
	clock.SetTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	opts.Cache.Clock = clock
	if mutate != nil {
		mutate(&opts)
	}
	c, err := New(store, opts)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func seededStore(t *testing.T, keys ...string) *memory.Memory {
	t.Helper()
	m := memory.New()
	m.CreateBucket("bucket")
	for _, k := range keys {
		require.NoError(t, m.PutString(context.Background(), "bucket", k, "x"))
	}
	return m
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(nil, DefaultOptions())
	assert.ErrorIs(t, err, common.ErrStoreRequired)
}

func TestKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"s3://bucket/dir", "s3://bucket/dir/"},
		{"s3://bucket/dir/", "s3://bucket/dir/"},
		{"s3://bucket", "s3://bucket/"},
		{"s3://bucket/", "s3://bucket/"},
	}
	for _, tt := range tests {
		got, err := Key(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := Key("file:///tmp")
	assert.ErrorIs(t, err, common.ErrInvalidURI)
}

func TestFilterOnRawScan(t *testing.T) {
	ts := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	store := &rawStore{pages: []*common.ListResult{{
		Objects: []*common.ObjectSummary{
			{Key: "dir/a.nc", Size: 1, LastModified: ts},
			{Key: "dir/b.txt", Size: 2, LastModified: ts},
			{Key: "dir/c.hdf", Size: 3, LastModified: ts},
			{Key: "dir/sub1/a.nc", Size: 4, LastModified: ts},
		},
		CommonPrefixes: []string{"dir/sub1/", "dir/sub2/"},
	}}}
	c := newTestCache(t, store, func(o *Options) { o.Probe = false })

	l, err := c.Get(context.Background(), "s3://bucket/dir")
	require.NoError(t, err)

	want := objmeta.NewListing(s3path.ObjectKey{Bucket: "bucket", Key: "dir/"}, []objmeta.Entry{
		objmeta.NewFileEntry("a.nc", 1, ts),
		objmeta.NewFileEntry("c.hdf", 3, ts),
		objmeta.NewDirEntry("sub1"),
	})
	assert.True(t, want.Equal(l), "got %v", l.Contents())
	assert.Equal(t, int32(1), store.calls.Load())
}

func TestFilterWithProbe(t *testing.T) {
	store := seededStore(t,
		"dir/a.nc", "dir/B.TXT", "dir/c.HDF",
		"dir/sub1/deep/x.nc",
		"dir/sub2/readme.txt",
		"dir/sub3/y.xml",
	)
	c := newTestCache(t, store, nil)

	l, err := c.Get(context.Background(), "s3://bucket/dir/")
	require.NoError(t, err)

	assert.Equal(t, []string{"a.nc", "c.HDF", "sub1", "sub3"}, names(l.Contents()))
	assert.Equal(t, []string{"sub1", "sub3"}, names(l.Dirs()))
	for _, d := range l.Dirs() {
		assert.Equal(t, objmeta.UnknownSize, d.Size)
		_, ok := d.Modified()
		assert.False(t, ok)
	}
}

func TestWithoutProbeDelimitedScanHasNoDirs(t *testing.T) {
	store := seededStore(t, "dir/a.nc", "dir/sub1/x.nc")
	c := newTestCache(t, store, func(o *Options) { o.Probe = false })

	l, err := c.Get(context.Background(), "s3://bucket/dir/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.nc"}, names(l.Contents()))
}

func TestSubdirectoryCheckCostsOneListCallPerUnconfirmedPrefix(t *testing.T) {
	keys := []string{"dir/a.nc", "dir/sub1/x.nc", "dir/sub2/y.txt", "dir/sub3/deep/z.nc"}
	open := make(chan struct{})
	close(open)

	checked := &gatedStore{ObjectStore: seededStore(t, keys...), release: open}
	l, err := newTestCache(t, checked, nil).Get(context.Background(), "s3://bucket/dir/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.nc", "sub1", "sub3"}, names(l.Contents()))
	assert.Equal(t, int32(4), checked.calls.Load())

	literal := &gatedStore{ObjectStore: seededStore(t, keys...), release: open}
	l, err = newTestCache(t, literal, func(o *Options) { o.Probe = false }).Get(context.Background(), "s3://bucket/dir/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.nc"}, names(l.Contents()))
	assert.Equal(t, int32(1), literal.calls.Load())
}

func TestBucketRootListing(t *testing.T) {
	store := seededStore(t, "top.nc", "data/x.nc", "notes.md")
	c := newTestCache(t, store, nil)

	l, err := c.Get(context.Background(), "s3://bucket")
	require.NoError(t, err)
	assert.Equal(t, s3path.ObjectKey{Bucket: "bucket"}, l.URI)
	assert.Equal(t, []string{"top.nc", "data"}, names(l.Contents()))
}

func TestDrainsAllPages(t *testing.T) {
	keys := []string{"dir/a.nc", "dir/b.nc", "dir/c.nc", "dir/d.nc", "dir/e.nc", "dir/s/x.nc"}
	store := seededStore(t, keys...)
	c := newTestCache(t, store, func(o *Options) { o.PageSize = 2 })

	l, err := c.Get(context.Background(), "s3://bucket/dir/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.nc", "b.nc", "c.nc", "d.nc", "e.nc", "s"}, names(l.Contents()))
}

func TestTruncatedPageWithoutTokenFails(t *testing.T) {
	store := &rawStore{pages: []*common.ListResult{{
		Objects:   []*common.ObjectSummary{{Key: "dir/a.nc"}},
		Truncated: true,
	}}}
	c := newTestCache(t, store, nil)

	_, err := c.Get(context.Background(), "s3://bucket/dir/")
	var lerr *common.ListingError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, "s3://bucket/dir/", lerr.URI)
	assert.ErrorIs(t, err, common.ErrListing)
}

func TestEmptyListingIsCachedFailureIsNot(t *testing.T) {
	store := seededStore(t, "dir/readme.txt")
	c := newTestCache(t, store, nil)
	ctx := context.Background()

	l, err := c.Get(ctx, "s3://bucket/dir/")
	require.NoError(t, err)
	assert.True(t, l.IsEmpty())
	assert.True(t, c.Contains("s3://bucket/dir"))

	_, err = c.Get(ctx, "s3://nobucket/dir/")
	var lerr *common.ListingError
	require.ErrorAs(t, err, &lerr)
	assert.ErrorIs(t, err, common.ErrBucketNotFound)
	assert.False(t, c.Contains("s3://nobucket/dir/"))

	lists := store.Calls().List
	_, err = c.Get(ctx, "s3://nobucket/dir/")
	require.Error(t, err)
	assert.Equal(t, lists+1, store.Calls().List, "failures are retried by the next caller")

	_, err = c.Get(ctx, "s3://bucket/dir/")
	require.NoError(t, err)
	assert.Equal(t, lists+1, store.Calls().List, "empty listing served from cache")
}

func TestProbeFailureFailsPopulation(t *testing.T) {
	boom := errors.New("access denied")
	store := &rawStore{pages: []*common.ListResult{{
		Objects:        []*common.ObjectSummary{{Key: "dir/a.nc"}},
		CommonPrefixes: []string{"dir/sub/"},
	}}}
	c := newTestCache(t, failingProbe{rawStore: store, err: boom}, nil)

	_, err := c.Get(context.Background(), "s3://bucket/dir/")
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, common.ErrListing)
	assert.False(t, c.Contains("s3://bucket/dir/"))
}

// failingProbe serves delimited scans and fails every non-delimited probe.
type failingProbe struct {
	*rawStore
	err error
}

func (f failingProbe) ListWithOptions(ctx context.Context, bucket string, opts *common.ListOptions) (*common.ListResult, error) {
	if opts.Delimiter == "" {
		return nil, f.err
	}
	return f.rawStore.ListWithOptions(ctx, bucket, opts)
}

func TestSingleFlightListing(t *testing.T) {
	store := &gatedStore{ObjectStore: seededStore(t, "dir/a.nc"), release: make(chan struct{})}
	c := newTestCache(t, store, nil)

	const callers = 16
	var wg sync.WaitGroup
	results := make([]objmeta.Listing, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l, err := c.Get(context.Background(), "s3://bucket/dir/")
			assert.NoError(t, err)
			results[i] = l
		}(i)
	}

	require.Eventually(t, func() bool { return store.calls.Load() == 1 }, time.Second, time.Millisecond)
	close(store.release)
	wg.Wait()

	assert.Equal(t, int32(1), store.calls.Load())
	for _, l := range results {
		assert.True(t, results[0].Equal(l))
	}
}

func TestTTLRefetches(t *testing.T) {
	store := seededStore(t, "dir/a.nc")
	clock := &timeutil.SimulatedClock{}
	clock.SetTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	c := newTestCache(t, store, func(o *Options) {
		o.Cache = cache.Options{TTL: time.Minute, Clock: clock}
	})
	ctx := context.Background()

	_, err := c.Get(ctx, "s3://bucket/dir/")
	require.NoError(t, err)
	require.NoError(t, store.PutString(ctx, "bucket", "dir/b.nc", "x"))

	l, err := c.Get(ctx, "s3://bucket/dir/")
	require.NoError(t, err)
	assert.Equal(t, 1, l.Len(), "stale up to the TTL")

	clock.AdvanceTime(time.Minute + time.Second)
	l, err = c.Get(ctx, "s3://bucket/dir/")
	require.NoError(t, err)
	assert.Equal(t, 2, l.Len())
}

func TestInvalidateAndClear(t *testing.T) {
	store := seededStore(t, "a/x.nc", "b/y.nc")
	c := newTestCache(t, store, nil)
	ctx := context.Background()

	_, err := c.Get(ctx, "s3://bucket/a/")
	require.NoError(t, err)
	_, err = c.Get(ctx, "s3://bucket/b/")
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	assert.True(t, c.Invalidate("s3://bucket/a"))
	assert.False(t, c.Invalidate("bad-uri"))
	assert.Equal(t, 1, c.Len())

	c.Clear()
	assert.Zero(t, c.Len())
	assert.Equal(t, int64(1), c.Metrics().Snapshot().Evictions["explicit"])
}

func TestInvalidURI(t *testing.T) {
	c := newTestCache(t, seededStore(t), nil)
	_, err := c.Get(context.Background(), "http://bucket/dir")
	assert.ErrorIs(t, err, common.ErrInvalidURI)
}
