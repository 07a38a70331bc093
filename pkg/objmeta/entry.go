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

// Package objmeta holds the immutable records describing listed entries,
// directory listings and materialized objects.
package objmeta

import (
	"cmp"
	"slices"
	"time"
)

// UnknownSize is the sentinel size of entries the store did not size, such as
// synthesized directories.
const UnknownSize int64 = -1

// Kind distinguishes files from virtual directories.
type Kind int

const (
	// KindFile is a listed object with a recognized extension.
	KindFile Kind = iota
	// KindDir is a virtual directory synthesized from a common prefix.
	KindDir
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindFile:
		return "FILE"
	case KindDir:
		return "DIR"
	default:
		return "UNKNOWN"
	}
}

// Entry is one item of a Listing. Name is relative to the listed directory and
// never contains the delimiter.
type Entry struct {
	Name string
	Size int64
	// LastModified is the zero time when unknown.
	LastModified time.Time
	Kind         Kind
}

// NewFileEntry builds a FILE entry.
func NewFileEntry(name string, size int64, lastModified time.Time) Entry {
	return Entry{Name: name, Size: size, LastModified: lastModified, Kind: KindFile}
}

// NewDirEntry builds a DIR entry whose size and modification time are unknown.
func NewDirEntry(name string) Entry {
	return Entry{Name: name, Size: UnknownSize, Kind: KindDir}
}

// IsDir reports whether the entry is a virtual directory.
func (e Entry) IsDir() bool {
	return e.Kind == KindDir
}

// Modified returns the modification time and whether it is known.
func (e Entry) Modified() (time.Time, bool) {
	return e.LastModified, !e.LastModified.IsZero()
}

// Equal compares entries by value. Times are compared as instants.
func (e Entry) Equal(o Entry) bool {
	return e.Name == o.Name &&
		e.Size == o.Size &&
		e.Kind == o.Kind &&
		e.LastModified.Equal(o.LastModified)
}

// Compare orders directories before files, then by name.
func (e Entry) Compare(o Entry) int {
	if e.Kind != o.Kind {
		if e.Kind == KindDir {
			return -1
		}
		return 1
	}
	return cmp.Compare(e.Name, o.Name)
}

// SortEntries sorts entries in place by Compare.
func SortEntries(entries []Entry) {
	slices.SortStableFunc(entries, Entry.Compare)
}
