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

// Package cli implements the s3crawl commands on top of the crawlable tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jeremyhahn/go-s3crawl/pkg/adapters"
	"github.com/jeremyhahn/go-s3crawl/pkg/common"
	"github.com/jeremyhahn/go-s3crawl/pkg/config"
	"github.com/jeremyhahn/go-s3crawl/pkg/crawlable"
	"github.com/jeremyhahn/go-s3crawl/pkg/factory"
	"github.com/jeremyhahn/go-s3crawl/pkg/listing"
	"github.com/jeremyhahn/go-s3crawl/pkg/materialize"
	"github.com/jeremyhahn/go-s3crawl/pkg/metrics"
	"github.com/jeremyhahn/go-s3crawl/pkg/s3path"
	"github.com/jeremyhahn/go-s3crawl/pkg/throttle"
	"github.com/jeremyhahn/go-s3crawl/pkg/walker"
)

// MetricsNamespace prefixes every exported metric.
const MetricsNamespace = "s3crawl"

// CommandContext holds the context for executing commands.
type CommandContext struct {
	Config    *config.Config
	Store     common.ObjectStore
	Source    *crawlable.S3Source
	Collector *metrics.Collector
	Logger    adapters.Logger

	listingMetrics *metrics.CacheMetrics
	objectMetrics  *metrics.CacheMetrics
}

// NewCommandContext creates the configured store and the caches over it.
func NewCommandContext(cfg *config.Config, logger adapters.Logger) (*CommandContext, error) {
	store, err := factory.NewStore(cfg.Backend, cfg.StoreSettings())
	if err != nil {
		return nil, err
	}
	return NewCommandContextWithStore(cfg, store, logger)
}

// NewCommandContextWithStore builds the caches over an existing store.
func NewCommandContextWithStore(cfg *config.Config, store common.ObjectStore, logger adapters.Logger) (*CommandContext, error) {
	if logger == nil {
		logger = adapters.NewNoOpLogger()
	}
	store = throttle.Wrap(store, cfg.Throttle())

	ctx := &CommandContext{
		Config:         cfg,
		Store:          store,
		Collector:      metrics.NewCollector(MetricsNamespace),
		Logger:         logger,
		listingMetrics: metrics.NewCacheMetrics(),
		objectMetrics:  metrics.NewCacheMetrics(),
	}
	ctx.Collector.Add("listing", ctx.listingMetrics)
	ctx.Collector.Add("objects", ctx.objectMetrics)

	listings, err := listing.New(store, cfg.ListingOptions(logger, ctx.listingMetrics))
	if err != nil {
		return nil, err
	}
	objects, err := materialize.New(store, cfg.ObjectOptions(logger, ctx.objectMetrics))
	if err != nil {
		listings.Close()
		return nil, err
	}
	ctx.Source, err = crawlable.NewS3Source(store, listings, objects, crawlable.SourceOptions{
		ConfigObject: cfg,
		Logger:       logger,
	})
	if err != nil {
		listings.Close()
		return nil, errors.Join(err, objects.Close())
	}
	return ctx, nil
}

// Close closes both caches and removes every local copy.
func (ctx *CommandContext) Close() error {
	ctx.Source.Listings().Close()
	return ctx.Source.Objects().Close()
}

// CacheSnapshots returns the counters of both caches.
func (ctx *CommandContext) CacheSnapshots() map[string]metrics.Snapshot {
	return map[string]metrics.Snapshot{
		"listing": ctx.listingMetrics.Snapshot(),
		"objects": ctx.objectMetrics.Snapshot(),
	}
}

// ListCommand lists the directory at uri.
func (ctx *CommandContext) ListCommand(c context.Context, uri string) ([]EntryInfo, error) {
	node, err := ctx.Source.Lookup(c, uri)
	if err != nil {
		return nil, err
	}
	children, err := node.Children(c)
	if err != nil {
		return nil, err
	}
	entries := make([]EntryInfo, 0, len(children))
	for _, child := range children {
		entries = append(entries, NewEntryInfo(child))
	}
	return entries, nil
}

// StatCommand describes the dataset at uri.
func (ctx *CommandContext) StatCommand(c context.Context, uri string) (EntryInfo, error) {
	node, err := ctx.Source.Lookup(c, uri)
	if err != nil {
		return EntryInfo{}, err
	}
	ok, err := node.Exists(c)
	if err != nil {
		return EntryInfo{}, err
	}
	if !ok {
		return EntryInfo{}, fmt.Errorf("%w: %s", common.ErrKeyNotFound, uri)
	}
	return NewEntryInfo(node), nil
}

// FetchCommand copies the object at uri to dest. An empty dest means the
// object's name in the working directory; "-" writes to stdout; an existing
// directory receives the object under its name.
func (ctx *CommandContext) FetchCommand(c context.Context, uri, dest string, stdout io.Writer) (string, int64, error) {
	node, err := ctx.Source.Lookup(c, uri)
	if err != nil {
		return "", 0, err
	}
	src, err := node.Open(c)
	if err != nil {
		return "", 0, err
	}
	defer func() { _ = src.Close() }()

	if dest == "-" {
		n, err := io.Copy(stdout, src)
		return dest, n, err
	}
	if dest == "" {
		dest = node.Name()
	} else if info, err := os.Stat(dest); err == nil && info.IsDir() {
		dest = filepath.Join(dest, node.Name())
	}

	out, err := os.Create(dest)
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(out, src)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", n, fmt.Errorf("write %s: %w", dest, err)
	}
	return dest, n, nil
}

// WalkOptions configures WalkCommand.
type WalkOptions struct {
	Concurrency int
	MaxDepth    int
	// Extensions restricts visited files; empty visits every recognized file.
	Extensions []string
	// MetricsFile receives the cache counters in textfile format after the walk.
	MetricsFile string
	// Out, when set, receives one visited path per line.
	Out io.Writer
}

// WalkCommand crawls the tree below uri. A uri without the s3:// scheme is
// crawled as a local directory and never touches the caches.
func (ctx *CommandContext) WalkCommand(c context.Context, uri string, opts WalkOptions) (WalkReport, error) {
	root, err := ctx.walkRoot(c, uri)
	if err != nil {
		return WalkReport{}, err
	}

	var filter crawlable.Filter
	if len(opts.Extensions) > 0 {
		filter = crawlable.ExtensionFilter(opts.Extensions...)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = ctx.Config.Concurrency
	}

	var mu sync.Mutex
	visit := func(_ context.Context, d crawlable.Dataset, _ int) error {
		if opts.Out == nil {
			return nil
		}
		mu.Lock()
		defer mu.Unlock()
		_, err := fmt.Fprintln(opts.Out, d.Path())
		return err
	}

	stats, err := walker.Walk(c, root, walker.Options{
		Concurrency: opts.Concurrency,
		Filter:      filter,
		MaxDepth:    opts.MaxDepth,
		Visit:       visit,
		OnError: func(c context.Context, d crawlable.Dataset, err error) {
			ctx.Logger.Error(c, "subtree skipped", adapters.Field{Key: "path", Value: d.Path()}, adapters.ErrorField(err))
		},
		Logger: ctx.Logger,
	})
	report := WalkReport{Stats: stats, Caches: ctx.CacheSnapshots()}
	if err != nil {
		return report, err
	}

	if opts.MetricsFile != "" {
		if err := metrics.WriteTextfile(opts.MetricsFile, ctx.Collector); err != nil {
			return report, fmt.Errorf("write metrics: %w", err)
		}
	}
	return report, nil
}

func (ctx *CommandContext) walkRoot(c context.Context, uri string) (crawlable.Dataset, error) {
	if strings.HasPrefix(uri, s3path.Scheme) {
		node, err := ctx.Source.Lookup(c, uri)
		if err != nil {
			return nil, err
		}
		return node, nil
	}
	root := crawlable.NewLocalDataset(uri, ctx.Config)
	ok, err := root.Exists(c)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrKeyNotFound, uri)
	}
	return root, nil
}
