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

package walker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jeremyhahn/go-s3crawl/pkg/crawlable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNode is an in-memory dataset tree.
type fakeNode struct {
	path     string
	size     int64
	children []*fakeNode
	dir      bool
	fail     error
	active   *atomic.Int32
	peak     *atomic.Int32
}

func (n *fakeNode) ConfigObject() any                  { return nil }
func (n *fakeNode) Path() string                       { return n.path }
func (n *fakeNode) Name() string                       { return filepath.Base(n.path) }
func (n *fakeNode) Parent() (crawlable.Dataset, error) { return n, nil }
func (n *fakeNode) Exists(context.Context) (bool, error) {
	return true, nil
}
func (n *fakeNode) IsCollection() bool                         { return n.dir }
func (n *fakeNode) Descendant(string) (crawlable.Dataset, error) { return nil, errors.New("unsupported") }
func (n *fakeNode) Length() int64                              { return n.size }
func (n *fakeNode) LastModified() (time.Time, bool)            { return time.Time{}, false }

func (n *fakeNode) ListDatasets(ctx context.Context, filter crawlable.Filter) ([]crawlable.Dataset, error) {
	if n.active != nil {
		cur := n.active.Add(1)
		for {
			p := n.peak.Load()
			if cur <= p || n.peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		defer n.active.Add(-1)
	}
	if n.fail != nil {
		return nil, n.fail
	}
	out := make([]crawlable.Dataset, 0, len(n.children))
	for _, c := range n.children {
		if filter == nil || filter.Accept(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

func dir(path string, children ...*fakeNode) *fakeNode {
	return &fakeNode{path: path, dir: true, children: children, size: -1}
}

func file(path string, size int64) *fakeNode {
	return &fakeNode{path: path, size: size}
}

// tree:
//
//	root/
//	  a.csv (10)
//	  sub/
//	    b.csv (20)
//	    deep/
//	      c.txt (30)
//	  other/
//	    d.csv (5)
func tree() *fakeNode {
	return dir("root",
		file("root/a.csv", 10),
		dir("root/sub",
			file("root/sub/b.csv", 20),
			dir("root/sub/deep", file("root/sub/deep/c.txt", 30)),
		),
		dir("root/other", file("root/other/d.csv", 5)),
	)
}

type recorder struct {
	mu    sync.Mutex
	paths []string
	depth map[string]int
}

func (r *recorder) visit(_ context.Context, d crawlable.Dataset, depth int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.depth == nil {
		r.depth = make(map[string]int)
	}
	r.paths = append(r.paths, d.Path())
	r.depth[d.Path()] = depth
	return nil
}

func (r *recorder) sorted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string(nil), r.paths...)
	sort.Strings(out)
	return out
}

func TestWalkVisitsEverything(t *testing.T) {
	rec := &recorder{}
	stats, err := Walk(context.Background(), tree(), Options{Visit: rec.visit})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"root", "root/a.csv", "root/other", "root/other/d.csv",
		"root/sub", "root/sub/b.csv", "root/sub/deep", "root/sub/deep/c.txt",
	}, rec.sorted())
	assert.Equal(t, 0, rec.depth["root"])
	assert.Equal(t, 1, rec.depth["root/sub"])
	assert.Equal(t, 3, rec.depth["root/sub/deep/c.txt"])

	assert.Equal(t, int64(4), stats.Directories)
	assert.Equal(t, int64(4), stats.Files)
	assert.Equal(t, int64(65), stats.Bytes)
	assert.Zero(t, stats.Errors)
	assert.NotEmpty(t, stats.RunID)
}

func TestWalkRunIDsDiffer(t *testing.T) {
	s1, err := Walk(context.Background(), tree(), Options{})
	require.NoError(t, err)
	s2, err := Walk(context.Background(), tree(), Options{})
	require.NoError(t, err)
	assert.NotEqual(t, s1.RunID, s2.RunID)
}

func TestWalkMaxDepth(t *testing.T) {
	rec := &recorder{}
	stats, err := Walk(context.Background(), tree(), Options{Visit: rec.visit, MaxDepth: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"root", "root/a.csv", "root/other", "root/sub"}, rec.sorted())
	assert.Equal(t, int64(3), stats.Directories)
	assert.Equal(t, int64(1), stats.Files)
}

func TestWalkSkipDir(t *testing.T) {
	rec := &recorder{}
	visit := func(ctx context.Context, d crawlable.Dataset, depth int) error {
		_ = rec.visit(ctx, d, depth)
		if d.Path() == "root/sub" {
			return SkipDir
		}
		return nil
	}
	_, err := Walk(context.Background(), tree(), Options{Visit: visit})
	require.NoError(t, err)
	for _, p := range rec.sorted() {
		assert.False(t, strings.HasPrefix(p, "root/sub/"), "pruned subtree visited: %s", p)
	}
	assert.Contains(t, rec.sorted(), "root/other/d.csv")
}

func TestWalkSkipRoot(t *testing.T) {
	rec := &recorder{}
	visit := func(ctx context.Context, d crawlable.Dataset, depth int) error {
		_ = rec.visit(ctx, d, depth)
		return SkipDir
	}
	stats, err := Walk(context.Background(), tree(), Options{Visit: visit})
	require.NoError(t, err)
	assert.Equal(t, []string{"root"}, rec.sorted())
	assert.Equal(t, int64(1), stats.Directories)
}

func TestWalkListingFailureContinues(t *testing.T) {
	root := tree()
	listErr := errors.New("access denied")
	root.children[1].fail = listErr // root/sub

	var mu sync.Mutex
	var failed []string
	onError := func(_ context.Context, d crawlable.Dataset, err error) {
		mu.Lock()
		defer mu.Unlock()
		failed = append(failed, d.Path())
		assert.ErrorIs(t, err, listErr)
	}

	rec := &recorder{}
	stats, err := Walk(context.Background(), root, Options{Visit: rec.visit, OnError: onError})
	require.NoError(t, err)
	assert.Equal(t, []string{"root/sub"}, failed)
	assert.Equal(t, int64(1), stats.Errors)
	assert.Contains(t, rec.sorted(), "root/other/d.csv")
	assert.NotContains(t, rec.sorted(), "root/sub/b.csv")
}

func TestWalkVisitErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	visit := func(_ context.Context, d crawlable.Dataset, _ int) error {
		if d.Path() == "root/a.csv" {
			return boom
		}
		return nil
	}
	_, err := Walk(context.Background(), tree(), Options{Visit: visit})
	assert.ErrorIs(t, err, boom)
}

func TestWalkFilter(t *testing.T) {
	rec := &recorder{}
	filter := crawlable.ExtensionFilter(".csv")
	_, err := Walk(context.Background(), tree(), Options{Visit: rec.visit, Filter: filter})
	require.NoError(t, err)
	assert.NotContains(t, rec.sorted(), "root/sub/deep/c.txt")
	assert.Contains(t, rec.sorted(), "root/sub/deep")
	assert.Contains(t, rec.sorted(), "root/sub/b.csv")
}

func TestWalkConcurrencyBound(t *testing.T) {
	var active, peak atomic.Int32
	root := dir("root")
	for i := 0; i < 16; i++ {
		child := dir(filepath.Join("root", string(rune('a'+i))), file(filepath.Join("root", string(rune('a'+i)), "f"), 1))
		child.active, child.peak = &active, &peak
		root.children = append(root.children, child)
	}

	stats, err := Walk(context.Background(), root, Options{Concurrency: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(16), stats.Files)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestWalkCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Walk(ctx, tree(), Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWalkLocalDataset(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "x", "y"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "x", "one.csv"), []byte("12345"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "x", "y", "two.csv"), []byte("12"), 0o644))

	stats, err := Walk(context.Background(), crawlable.NewLocalDataset(root, nil), Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Directories)
	assert.Equal(t, int64(2), stats.Files)
	assert.Equal(t, int64(7), stats.Bytes)
}
