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

// Package listing caches filtered virtual-directory listings of an object
// store.
package listing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jeremyhahn/go-s3crawl/pkg/adapters"
	"github.com/jeremyhahn/go-s3crawl/pkg/cache"
	"github.com/jeremyhahn/go-s3crawl/pkg/common"
	"github.com/jeremyhahn/go-s3crawl/pkg/metrics"
	"github.com/jeremyhahn/go-s3crawl/pkg/objmeta"
	"github.com/jeremyhahn/go-s3crawl/pkg/s3path"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultTTL and DefaultTTI bound how stale a listing may get.
	DefaultTTL = 60 * time.Second
	DefaultTTI = 60 * time.Second
	// DefaultMaxEntries bounds the number of cached directories.
	DefaultMaxEntries = 1000
	// DefaultProbeConcurrency bounds the concurrent subdirectory probes of one
	// population.
	DefaultProbeConcurrency = 8
)

var errUnusablePage = errors.New("truncated page without continuation token")

// Options configures a Cache.
type Options struct {
	// Extensions is the allow-list; an empty list means DefaultExtensions.
	Extensions Extensions
	// Probe confirms a common prefix by listing below it when no recognized
	// file in the delimited scan sits under the prefix. It is the non-literal
	// mode: a population costs one extra list call per unconfirmed prefix on
	// top of the delimited scan, and a prefix whose recognized files all sit
	// deeper is kept as a directory. With Probe off a population is the single
	// delimited scan, and a prefix is kept only when that scan itself returned
	// a recognized key below it.
	Probe bool
	// ProbeConcurrency bounds concurrent probes; <= 0 means the default.
	ProbeConcurrency int
	// PageSize is the MaxResults of each list request; 0 leaves it to the store.
	PageSize int
	Logger   adapters.Logger
	Cache    cache.Options
}

// DefaultOptions returns the defaults: recognized extensions, probing on,
// TTL = TTI = 60s, 1000 directories.
func DefaultOptions() Options {
	return Options{
		Extensions:       DefaultExtensions(),
		Probe:            true,
		ProbeConcurrency: DefaultProbeConcurrency,
		Cache: cache.Options{
			TTL:        DefaultTTL,
			TTI:        DefaultTTI,
			MaxEntries: DefaultMaxEntries,
		},
	}
}

// Cache maps directory URIs to filtered listings. Concurrent misses for one
// directory issue a single scan.
type Cache struct {
	store            common.ObjectStore
	exts             Extensions
	probe            bool
	probeConcurrency int
	pageSize         int
	logger           adapters.Logger
	cache            *cache.Cache[objmeta.Listing]
}

// New creates a listing cache over store.
func New(store common.ObjectStore, opts Options) (*Cache, error) {
	if store == nil {
		return nil, common.ErrStoreRequired
	}
	if opts.Extensions.Len() == 0 {
		opts.Extensions = DefaultExtensions()
	}
	if opts.ProbeConcurrency <= 0 {
		opts.ProbeConcurrency = DefaultProbeConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = adapters.NewNoOpLogger()
	}
	if opts.Cache.Logger == nil {
		opts.Cache.Logger = opts.Logger
	}

	c := &Cache{
		store:            store,
		exts:             opts.Extensions,
		probe:            opts.Probe,
		probeConcurrency: opts.ProbeConcurrency,
		pageSize:         opts.PageSize,
		logger:           opts.Logger.WithFields(adapters.Field{Key: "component", Value: "listing"}),
	}
	c.cache = cache.New("listing", c.load, opts.Cache)
	return c, nil
}

// Key normalizes a directory URI to its cache key: the URI with a trailing
// delimiter.
func Key(dirURI string) (string, error) {
	bucket, key, err := s3path.Parse(dirURI)
	if err != nil {
		return "", err
	}
	if key == "" {
		return s3path.Format(bucket, ""), nil
	}
	return s3path.Format(bucket, s3path.EnsureTrailingDelimiter(key)), nil
}

// Get returns the listing of dirURI, scanning the store on a miss. A failed
// scan returns a *common.ListingError and is never cached; an empty listing
// is a valid result and is cached.
func (c *Cache) Get(ctx context.Context, dirURI string) (objmeta.Listing, error) {
	key, err := Key(dirURI)
	if err != nil {
		return objmeta.Listing{}, err
	}
	return c.cache.Get(ctx, key)
}

// Contains reports whether a live listing of dirURI is cached.
func (c *Cache) Contains(dirURI string) bool {
	key, err := Key(dirURI)
	return err == nil && c.cache.Contains(key)
}

// Invalidate drops the cached listing of dirURI.
func (c *Cache) Invalidate(dirURI string) bool {
	key, err := Key(dirURI)
	return err == nil && c.cache.Invalidate(key)
}

// Clear drops every cached listing.
func (c *Cache) Clear() {
	c.cache.Clear()
}

// Close stops the expiry sweep and drops every cached listing.
func (c *Cache) Close() {
	c.cache.Close()
}

// Len returns the number of cached listings.
func (c *Cache) Len() int {
	return c.cache.Len()
}

// Metrics returns the cache counters.
func (c *Cache) Metrics() *metrics.CacheMetrics {
	return c.cache.Metrics()
}

// Extensions returns the allow-list in use.
func (c *Cache) Extensions() Extensions {
	return c.exts
}

func (c *Cache) load(ctx context.Context, uri string) (objmeta.Listing, error) {
	bucket, prefix, err := s3path.Parse(uri)
	if err != nil {
		return objmeta.Listing{}, err
	}
	dir := s3path.ObjectKey{Bucket: bucket, Key: prefix}

	listing, err := c.scan(ctx, dir)
	if err != nil {
		c.logger.Error(ctx, "listing failed",
			adapters.Field{Key: "uri", Value: uri},
			adapters.ErrorField(err))
		return objmeta.Listing{}, &common.ListingError{URI: uri, Cause: err}
	}

	c.logger.Debug(ctx, "listed",
		adapters.Field{Key: "uri", Value: uri},
		adapters.Field{Key: "entries", Value: listing.Len()})
	return listing, nil
}

func (c *Cache) scan(ctx context.Context, dir s3path.ObjectKey) (objmeta.Listing, error) {
	prefix := dir.Key
	var (
		files    []objmeta.Entry
		fileKeys []string
		prefixes []string
	)

	err := c.pages(ctx, dir.Bucket, prefix, s3path.Delimiter, func(page *common.ListResult) bool {
		for _, obj := range page.Objects {
			if obj == nil || !c.exts.Match(obj.Key) {
				continue
			}
			// Recognized keys deeper than one level still vouch for their
			// common prefix but are not entries of this directory.
			fileKeys = append(fileKeys, obj.Key)
			name := s3path.StripPrefix(obj.Key, prefix)
			if name == "" || strings.Contains(name, s3path.Delimiter) {
				continue
			}
			files = append(files, objmeta.NewFileEntry(name, obj.Size, obj.LastModified))
		}
		prefixes = append(prefixes, page.CommonPrefixes...)
		return true
	})
	if err != nil {
		return objmeta.Listing{}, err
	}

	type candidate struct {
		prefix string
		name   string
		keep   bool
	}
	var (
		candidates []candidate
		pending    []int
	)
	for _, p := range prefixes {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		name := s3path.TrimTrailingDelimiter(s3path.StripPrefix(p, prefix))
		if name == "" || strings.Contains(name, s3path.Delimiter) {
			continue
		}
		keep := hasKeyUnder(fileKeys, p)
		candidates = append(candidates, candidate{prefix: p, name: name, keep: keep})
		if !keep && c.probe {
			pending = append(pending, len(candidates)-1)
		}
	}

	if len(pending) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.probeConcurrency)
		for _, idx := range pending {
			g.Go(func() error {
				found, err := c.probePrefix(gctx, dir.Bucket, candidates[idx].prefix)
				if err != nil {
					return err
				}
				candidates[idx].keep = found
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return objmeta.Listing{}, err
		}
	}

	entries := files
	for _, cand := range candidates {
		if cand.keep {
			entries = append(entries, objmeta.NewDirEntry(cand.name))
		}
	}
	return objmeta.NewListing(dir, entries), nil
}

// probePrefix reports whether any recognized key exists below prefix. It
// stops at the first match.
func (c *Cache) probePrefix(ctx context.Context, bucket, prefix string) (bool, error) {
	found := false
	err := c.pages(ctx, bucket, prefix, "", func(page *common.ListResult) bool {
		for _, obj := range page.Objects {
			if obj != nil && c.exts.Match(obj.Key) {
				found = true
				return false
			}
		}
		return true
	})
	return found, err
}

// pages drains a listing, calling fn for every page until fn returns false
// or the listing ends.
func (c *Cache) pages(ctx context.Context, bucket, prefix, delimiter string, fn func(*common.ListResult) bool) error {
	token := ""
	for {
		page, err := c.store.ListWithOptions(ctx, bucket, &common.ListOptions{
			Prefix:       prefix,
			Delimiter:    delimiter,
			MaxResults:   c.pageSize,
			ContinueFrom: token,
		})
		if err != nil {
			return err
		}
		if page == nil {
			return errUnusablePage
		}
		if !fn(page) || !page.Truncated {
			return nil
		}
		if page.NextToken == "" || page.NextToken == token {
			return errUnusablePage
		}
		token = page.NextToken
	}
}

func hasKeyUnder(keys []string, prefix string) bool {
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	return false
}
