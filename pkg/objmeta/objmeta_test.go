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

package objmeta

import (
	"testing"
	"time"

	"github.com/jeremyhahn/go-s3crawl/pkg/s3path"
	"github.com/stretchr/testify/assert"
)

func TestKindString(t *testing.T) {
	assert.Equal(t, "FILE", KindFile.String())
	assert.Equal(t, "DIR", KindDir.String())
	assert.Equal(t, "UNKNOWN", Kind(42).String())
}

func TestDirEntryHasUnknownMetadata(t *testing.T) {
	e := NewDirEntry("sub")

	assert.True(t, e.IsDir())
	assert.Equal(t, UnknownSize, e.Size)
	_, ok := e.Modified()
	assert.False(t, ok)
}

func TestEntryEqual(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	a := NewFileEntry("a.nc", 10, ts)

	assert.True(t, a.Equal(NewFileEntry("a.nc", 10, ts.In(time.FixedZone("X", 3600)))))
	assert.False(t, a.Equal(NewFileEntry("a.nc", 11, ts)))
	assert.False(t, a.Equal(NewFileEntry("b.nc", 10, ts)))
	assert.False(t, a.Equal(NewDirEntry("a.nc")))

	modified, ok := a.Modified()
	assert.True(t, ok)
	assert.True(t, modified.Equal(ts))
}

func TestSortEntries(t *testing.T) {
	entries := []Entry{
		NewFileEntry("b.nc", 1, time.Time{}),
		NewDirEntry("z"),
		NewFileEntry("a.nc", 1, time.Time{}),
		NewDirEntry("m"),
	}

	SortEntries(entries)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"m", "z", "a.nc", "b.nc"}, names)
}

func TestListingEqualityIsStructural(t *testing.T) {
	uri := s3path.ObjectKey{Bucket: "bucket", Key: "dir/"}
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	a := NewListing(uri, []Entry{NewFileEntry("a.nc", 1, ts), NewDirEntry("sub")})
	b := NewListing(uri, []Entry{NewFileEntry("a.nc", 1, ts), NewDirEntry("sub")})
	reordered := NewListing(uri, []Entry{NewDirEntry("sub"), NewFileEntry("a.nc", 1, ts)})
	other := NewListing(s3path.ObjectKey{Bucket: "bucket", Key: "x/"}, a.Contents())

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(reordered))
	assert.False(t, a.Equal(other))
	assert.True(t, NewListing(uri, nil).Equal(NewListing(uri, []Entry{})))
}

func TestListingIsImmutable(t *testing.T) {
	uri := s3path.ObjectKey{Bucket: "bucket", Key: "dir/"}
	src := []Entry{NewFileEntry("a.nc", 1, time.Time{})}
	l := NewListing(uri, src)

	src[0].Name = "mutated"
	contents := l.Contents()
	contents[0].Name = "mutated too"

	e, ok := l.Find("a.nc")
	assert.True(t, ok)
	assert.Equal(t, "a.nc", e.Name)
}

func TestListingAccessors(t *testing.T) {
	uri := s3path.ObjectKey{Bucket: "bucket", Key: "dir/"}
	l := NewListing(uri, []Entry{
		NewFileEntry("a.nc", 1, time.Time{}),
		NewDirEntry("sub"),
		NewFileEntry("c.hdf", 2, time.Time{}),
	})

	assert.Equal(t, 3, l.Len())
	assert.False(t, l.IsEmpty())
	assert.Len(t, l.Files(), 2)
	assert.Len(t, l.Dirs(), 1)
	assert.Equal(t, "Listing{'s3://bucket/dir/'}", l.String())

	_, ok := l.Find("missing")
	assert.False(t, ok)

	empty := NewListing(uri, nil)
	assert.True(t, empty.IsEmpty())
	assert.Empty(t, empty.Files())
}

func TestMaterializedObjectEqual(t *testing.T) {
	key := s3path.ObjectKey{Bucket: "bucket", Key: "a.nc"}
	a := MaterializedObject{Key: key, LocalPath: "/tmp/x/a.nc", SizeOnDisk: 3}

	assert.True(t, a.Equal(MaterializedObject{Key: key, LocalPath: "/tmp/x/a.nc", SizeOnDisk: 3}))
	assert.False(t, a.Equal(MaterializedObject{Key: key, LocalPath: "/tmp/y/a.nc", SizeOnDisk: 3}))
}
