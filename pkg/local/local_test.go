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

package local

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/jeremyhahn/go-s3crawl/pkg/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, files map[string]string) *Local {
	t.Helper()
	root := t.TempDir()
	for rel, body := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o750))

	l := New()
	require.NoError(t, l.Configure(map[string]string{"path": root}))
	return l
}

func keys(objs []*common.ObjectSummary) []string {
	out := make([]string, 0, len(objs))
	for _, o := range objs {
		out = append(out, o.Key)
	}
	return out
}

func TestConfigure(t *testing.T) {
	assert.ErrorIs(t, New().Configure(map[string]string{}), common.ErrPathNotSet)
	assert.Error(t, New().Configure(map[string]string{"path": filepath.Join(t.TempDir(), "absent")}))

	file := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	assert.ErrorIs(t, New().Configure(map[string]string{"path": file}), common.ErrNotADirectory)
}

func TestNotConfigured(t *testing.T) {
	_, err := New().ListWithOptions(context.Background(), "b", nil)
	assert.ErrorIs(t, err, common.ErrNotConfigured)
}

func TestBucketExists(t *testing.T) {
	l := newTestStore(t, map[string]string{"bucket/a.nc": "a"})
	ctx := context.Background()

	ok, err := l.BucketExists(ctx, "bucket")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.BucketExists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = l.BucketExists(ctx, "..")
	assert.ErrorIs(t, err, common.ErrInvalidArgument)
}

func TestListDelimited(t *testing.T) {
	l := newTestStore(t, map[string]string{
		"bucket/data/a.nc":          "aa",
		"bucket/data/b.hdf":         "b",
		"bucket/data/sub/c.nc":      "c",
		"bucket/data/sub/deep/d.nc": "d",
		"bucket/data-2/e.nc":        "e",
		"bucket/top.xml":            "t",
	})

	res, err := l.ListWithOptions(context.Background(), "bucket", &common.ListOptions{Prefix: "data/", Delimiter: "/"})
	require.NoError(t, err)
	assert.Equal(t, []string{"data/a.nc", "data/b.hdf"}, keys(res.Objects))
	assert.Equal(t, []string{"data/sub/"}, res.CommonPrefixes)
	assert.False(t, res.Truncated)
	assert.Equal(t, int64(2), res.Objects[0].Size)
	assert.False(t, res.Objects[0].LastModified.IsZero())

	res, err = l.ListWithOptions(context.Background(), "bucket", &common.ListOptions{Delimiter: "/"})
	require.NoError(t, err)
	assert.Equal(t, []string{"top.xml"}, keys(res.Objects))
	assert.Equal(t, []string{"data-2/", "data/"}, res.CommonPrefixes)
}

func TestListRecursivePrefix(t *testing.T) {
	l := newTestStore(t, map[string]string{
		"bucket/data/a.nc":     "a",
		"bucket/data/sub/c.nc": "c",
		"bucket/database.nc":   "x",
	})

	res, err := l.ListWithOptions(context.Background(), "bucket", &common.ListOptions{Prefix: "data"})
	require.NoError(t, err)
	assert.Equal(t, []string{"data/a.nc", "data/sub/c.nc", "database.nc"}, keys(res.Objects))

	res, err = l.ListWithOptions(context.Background(), "bucket", &common.ListOptions{Prefix: "nothing/here/"})
	require.NoError(t, err)
	assert.Empty(t, res.Objects)
}

func TestListPaging(t *testing.T) {
	l := newTestStore(t, map[string]string{
		"bucket/a.nc": "1", "bucket/b.nc": "2", "bucket/c/x.nc": "3", "bucket/d.nc": "4", "bucket/e.nc": "5",
	})
	ctx := context.Background()

	var (
		got   []string
		token string
		pages int
	)
	for {
		res, err := l.ListWithOptions(ctx, "bucket", &common.ListOptions{Delimiter: "/", MaxResults: 2, ContinueFrom: token})
		require.NoError(t, err)
		pages++
		got = append(got, keys(res.Objects)...)
		got = append(got, res.CommonPrefixes...)
		if !res.Truncated {
			break
		}
		token = res.NextToken
	}
	assert.Equal(t, 3, pages)
	assert.ElementsMatch(t, []string{"a.nc", "b.nc", "c/", "d.nc", "e.nc"}, got)
}

func TestListMissingBucket(t *testing.T) {
	l := newTestStore(t, nil)
	_, err := l.ListWithOptions(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, common.ErrBucketNotFound)

	res, err := l.ListWithOptions(context.Background(), "empty", nil)
	require.NoError(t, err)
	assert.Empty(t, res.Objects)
}

func TestGet(t *testing.T) {
	l := newTestStore(t, map[string]string{"bucket/data/a.nc": "payload"})
	ctx := context.Background()

	rc, err := l.GetWithContext(ctx, "bucket", "data/a.nc")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "payload", string(data))

	_, err = l.GetWithContext(ctx, "bucket", "data/missing.nc")
	assert.ErrorIs(t, err, common.ErrKeyNotFound)

	_, err = l.GetWithContext(ctx, "bucket", "data")
	assert.ErrorIs(t, err, common.ErrKeyNotFound)

	_, err = l.GetWithContext(ctx, "bucket", "../bucket/data/a.nc")
	assert.ErrorIs(t, err, common.ErrInvalidArgument)
}

func TestCanceledContext(t *testing.T) {
	l := newTestStore(t, map[string]string{"bucket/a.nc": "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.ListWithOptions(ctx, "bucket", nil)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = l.GetWithContext(ctx, "bucket", "a.nc")
	assert.ErrorIs(t, err, context.Canceled)
}
