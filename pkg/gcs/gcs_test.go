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

package gcs

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/jeremyhahn/go-s3crawl/pkg/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

var updated = time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)

// fakeClient emulates GCS listing semantics over a name -> content map.
type fakeClient struct {
	buckets map[string]map[string]string
	queries []*storage.Query
	err     error
}

func (c *fakeClient) Bucket(name string) gcsBucket {
	return &fakeBucket{client: c, name: name}
}

type fakeBucket struct {
	client *fakeClient
	name   string
}

func (b *fakeBucket) Object(name string) gcsObject {
	return &fakeObject{bucket: b, name: name}
}

func (b *fakeBucket) Attrs(context.Context) (*storage.BucketAttrs, error) {
	if b.client.err != nil {
		return nil, b.client.err
	}
	if _, ok := b.client.buckets[b.name]; !ok {
		return nil, storage.ErrBucketNotExist
	}
	return &storage.BucketAttrs{Name: b.name}, nil
}

func (b *fakeBucket) Objects(_ context.Context, q *storage.Query) gcsIterator {
	b.client.queries = append(b.client.queries, q)
	objects, ok := b.client.buckets[b.name]
	if !ok {
		return &fakeIterator{err: storage.ErrBucketNotExist}
	}
	names := make([]string, 0, len(objects))
	for n := range objects {
		names = append(names, n)
	}
	sort.Strings(names)

	var out []*storage.ObjectAttrs
	seen := map[string]bool{}
	for _, n := range names {
		if !strings.HasPrefix(n, q.Prefix) || n < q.StartOffset {
			continue
		}
		if q.Delimiter != "" {
			rest := n[len(q.Prefix):]
			if i := strings.Index(rest, q.Delimiter); i >= 0 {
				p := q.Prefix + rest[:i+len(q.Delimiter)]
				if !seen[p] {
					seen[p] = true
					out = append(out, &storage.ObjectAttrs{Prefix: p})
				}
				continue
			}
		}
		out = append(out, &storage.ObjectAttrs{Name: n, Size: int64(len(objects[n])), Updated: updated})
	}
	return &fakeIterator{items: out}
}

type fakeIterator struct {
	items []*storage.ObjectAttrs
	err   error
}

func (it *fakeIterator) Next() (*storage.ObjectAttrs, error) {
	if it.err != nil {
		return nil, it.err
	}
	if len(it.items) == 0 {
		return nil, iterator.Done
	}
	next := it.items[0]
	it.items = it.items[1:]
	return next, nil
}

type fakeObject struct {
	bucket *fakeBucket
	name   string
}

func (o *fakeObject) NewReader(context.Context) (io.ReadCloser, error) {
	objects, ok := o.bucket.client.buckets[o.bucket.name]
	if !ok {
		return nil, storage.ErrBucketNotExist
	}
	data, ok := objects[o.name]
	if !ok {
		return nil, storage.ErrObjectNotExist
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

func newTestGCS() (*GCS, *fakeClient) {
	fc := &fakeClient{buckets: map[string]map[string]string{
		"bucket": {
			"data/a.nc":       "aaaa",
			"data/b.nc":       "bb",
			"data/sub/c.nc":   "c",
			"data/sub/d.nc":   "d",
			"data/zz/e.nc":    "e",
			"other/readme.md": "r",
		},
	}}
	return &GCS{client: fc}, fc
}

func TestListWithDelimiter(t *testing.T) {
	g, fc := newTestGCS()
	res, err := g.ListWithOptions(context.Background(), "bucket", &common.ListOptions{Prefix: "data/", Delimiter: "/"})
	require.NoError(t, err)

	require.Len(t, res.Objects, 2)
	assert.Equal(t, &common.ObjectSummary{Key: "data/a.nc", Size: 4, LastModified: updated}, res.Objects[0])
	assert.Equal(t, "data/b.nc", res.Objects[1].Key)
	assert.Equal(t, []string{"data/sub/", "data/zz/"}, res.CommonPrefixes)
	assert.False(t, res.Truncated)
	assert.Empty(t, res.NextToken)

	require.Len(t, fc.queries, 1)
	assert.Equal(t, "data/", fc.queries[0].Prefix)
	assert.Equal(t, "/", fc.queries[0].Delimiter)
}

func TestListPaging(t *testing.T) {
	g, _ := newTestGCS()
	var names []string
	token := ""
	pages := 0
	for {
		res, err := g.ListWithOptions(context.Background(), "bucket", &common.ListOptions{
			Prefix: "data/", Delimiter: "/", MaxResults: 1, ContinueFrom: token,
		})
		require.NoError(t, err)
		pages++
		for _, o := range res.Objects {
			names = append(names, o.Key)
		}
		names = append(names, res.CommonPrefixes...)
		if !res.Truncated {
			break
		}
		require.NotEmpty(t, res.NextToken)
		token = res.NextToken
	}
	assert.Equal(t, []string{"data/a.nc", "data/b.nc", "data/sub/", "data/zz/"}, names)
	assert.Equal(t, 4, pages)
}

func TestListMissingBucket(t *testing.T) {
	g, _ := newTestGCS()
	_, err := g.ListWithOptions(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, common.ErrBucketNotFound)
}

func TestGetWithContext(t *testing.T) {
	g, _ := newTestGCS()
	rc, err := g.GetWithContext(context.Background(), "bucket", "data/a.nc")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "aaaa", string(data))

	_, err = g.GetWithContext(context.Background(), "bucket", "data/missing.nc")
	assert.ErrorIs(t, err, common.ErrKeyNotFound)
	_, err = g.GetWithContext(context.Background(), "nope", "x")
	assert.ErrorIs(t, err, common.ErrBucketNotFound)
}

func TestBucketExists(t *testing.T) {
	g, fc := newTestGCS()
	ok, err := g.BucketExists(context.Background(), "bucket")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.BucketExists(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	fc.err = errors.New("permission denied")
	_, err = g.BucketExists(context.Background(), "bucket")
	assert.Error(t, err)
}

func TestConfigure(t *testing.T) {
	old := gcsNewClient
	defer func() { gcsNewClient = old }()

	var gotOpts int
	gcsNewClient = func(_ context.Context, opts ...option.ClientOption) (*storage.Client, error) {
		gotOpts = len(opts)
		return &storage.Client{}, nil
	}

	g := New()
	require.NoError(t, g.Configure(map[string]string{
		"credentials_file": "/tmp/key.json",
		"endpoint":         "http://localhost:4443/storage/v1/",
		"anonymous":        "true",
	}))
	assert.Equal(t, 3, gotOpts)
	assert.NotNil(t, g.client)

	assert.ErrorIs(t, New().Configure(map[string]string{"anonymous": "sometimes"}), common.ErrInvalidArgument)

	gcsNewClient = func(context.Context, ...option.ClientOption) (*storage.Client, error) {
		return nil, errors.New("no credentials")
	}
	assert.Error(t, New().Configure(nil))
}

func TestNotConfigured(t *testing.T) {
	g := New()
	_, err := g.ListWithOptions(context.Background(), "b", nil)
	assert.ErrorIs(t, err, common.ErrNotConfigured)
	_, err = g.GetWithContext(context.Background(), "b", "k")
	assert.ErrorIs(t, err, common.ErrNotConfigured)
	_, err = g.BucketExists(context.Background(), "b")
	assert.ErrorIs(t, err, common.ErrNotConfigured)
}
