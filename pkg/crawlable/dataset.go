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

// Package crawlable exposes object-store prefixes and local directories as a
// tree of datasets for a crawler.
package crawlable

import (
	"context"
	"time"

	"github.com/jeremyhahn/go-s3crawl/pkg/listing"
)

// Dataset is one node of a crawlable tree. Collections have children;
// other datasets have bytes.
type Dataset interface {
	// ConfigObject returns the configuration the tree was built with.
	ConfigObject() any
	// Path is the dataset's identity, e.g. "s3://bucket/dir/file.nc".
	Path() string
	// Name is the last path element.
	Name() string
	// Parent returns the enclosing collection. The parent of a root is the
	// root itself.
	Parent() (Dataset, error)
	Exists(ctx context.Context) (bool, error)
	IsCollection() bool
	// Descendant resolves a relative path below this dataset.
	Descendant(relativePath string) (Dataset, error)
	// ListDatasets returns the accepted children of a collection. A nil
	// filter accepts everything.
	ListDatasets(ctx context.Context, filter Filter) ([]Dataset, error)
	// Length is the size in bytes, or objmeta.UnknownSize.
	Length() int64
	LastModified() (time.Time, bool)
}

// Filter selects datasets.
type Filter interface {
	Accept(Dataset) bool
}

// FilterFunc adapts a function to Filter.
type FilterFunc func(Dataset) bool

// Accept calls f.
func (f FilterFunc) Accept(d Dataset) bool {
	return f(d)
}

var (
	// AcceptAll accepts every dataset.
	AcceptAll Filter = FilterFunc(func(Dataset) bool { return true })
	// CollectionsOnly accepts collections.
	CollectionsOnly Filter = FilterFunc(func(d Dataset) bool { return d.IsCollection() })
)

// ExtensionFilter accepts collections and datasets whose name carries one of
// exts.
func ExtensionFilter(exts ...string) Filter {
	allow := listing.NewExtensions(exts...)
	return FilterFunc(func(d Dataset) bool {
		return d.IsCollection() || allow.Match(d.Name())
	})
}

// And accepts datasets accepted by every filter.
func And(filters ...Filter) Filter {
	return FilterFunc(func(d Dataset) bool {
		for _, f := range filters {
			if f != nil && !f.Accept(d) {
				return false
			}
		}
		return true
	})
}

// apply keeps the datasets accepted by filter, preserving order.
func apply[D Dataset](datasets []D, filter Filter) []Dataset {
	out := make([]Dataset, 0, len(datasets))
	for _, d := range datasets {
		if filter == nil || filter.Accept(d) {
			out = append(out, d)
		}
	}
	return out
}
