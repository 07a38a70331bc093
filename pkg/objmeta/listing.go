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
	"fmt"

	"github.com/jeremyhahn/go-s3crawl/pkg/s3path"
)

// Listing is the filtered content of one virtual directory. Entries keep scan
// order. A Listing is never mutated after construction.
type Listing struct {
	URI     s3path.ObjectKey
	entries []Entry
}

// NewListing copies entries into a new Listing.
func NewListing(uri s3path.ObjectKey, entries []Entry) Listing {
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	return Listing{URI: uri, entries: cp}
}

// Contents returns a copy of the entries in scan order.
func (l Listing) Contents() []Entry {
	cp := make([]Entry, len(l.entries))
	copy(cp, l.entries)
	return cp
}

// Files returns the FILE entries in scan order.
func (l Listing) Files() []Entry {
	return l.filter(KindFile)
}

// Dirs returns the DIR entries in scan order.
func (l Listing) Dirs() []Entry {
	return l.filter(KindDir)
}

func (l Listing) filter(kind Kind) []Entry {
	var out []Entry
	for _, e := range l.entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Find returns the entry called name.
func (l Listing) Find(name string) (Entry, bool) {
	for _, e := range l.entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// Len returns the number of entries.
func (l Listing) Len() int {
	return len(l.entries)
}

// IsEmpty reports whether the listing has no entries.
func (l Listing) IsEmpty() bool {
	return len(l.entries) == 0
}

// Equal compares listings structurally: same URI and pairwise equal entries
// in the same order.
func (l Listing) Equal(o Listing) bool {
	if l.URI != o.URI || len(l.entries) != len(o.entries) {
		return false
	}
	for i := range l.entries {
		if !l.entries[i].Equal(o.entries[i]) {
			return false
		}
	}
	return true
}

func (l Listing) String() string {
	return fmt.Sprintf("Listing{'%s'}", l.URI)
}
