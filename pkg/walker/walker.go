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

// Package walker drives a parallel crawl over a crawlable dataset tree.
// A listing failure on one subtree is reported and skipped; the rest of the
// tree is still walked.
package walker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jeremyhahn/go-s3crawl/pkg/adapters"
	"github.com/jeremyhahn/go-s3crawl/pkg/crawlable"
	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency bounds concurrent directory listings.
const DefaultConcurrency = 4

// SkipDir returned by a VisitFunc for a collection prunes that subtree.
var SkipDir = errors.New("skip this directory")

// VisitFunc is called once per visited dataset, root included. depth is 0 for
// the root.
type VisitFunc func(ctx context.Context, d crawlable.Dataset, depth int) error

// ErrorFunc is called when a collection cannot be listed.
type ErrorFunc func(ctx context.Context, d crawlable.Dataset, err error)

// Options configures Walk.
type Options struct {
	Concurrency int
	// Filter is passed to every ListDatasets call.
	Filter crawlable.Filter
	// MaxDepth bounds the depth of visited datasets; 0 means unbounded.
	MaxDepth int
	Visit    VisitFunc
	OnError  ErrorFunc
	Logger   adapters.Logger
}

// Stats summarizes a walk.
type Stats struct {
	RunID       string        `json:"run_id"`
	Directories int64         `json:"directories"`
	Files       int64         `json:"files"`
	Errors      int64         `json:"errors"`
	Bytes       int64         `json:"bytes"`
	Duration    time.Duration `json:"duration"`
}

type walk struct {
	opts   Options
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	cancel context.CancelFunc
	logger adapters.Logger

	dirs   atomic.Int64
	files  atomic.Int64
	errs   atomic.Int64
	bytes  atomic.Int64
	once   sync.Once
	failed error
}

// Walk visits root and everything below it. It returns the first error
// returned by Visit other than SkipDir, or the context's error.
func Walk(parent context.Context, root crawlable.Dataset, opts Options) (Stats, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = adapters.NewNoOpLogger()
	}

	runID := uuid.NewString()
	started := time.Now()
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	w := &walk{
		opts:   opts,
		sem:    semaphore.NewWeighted(int64(opts.Concurrency)),
		cancel: cancel,
		logger: opts.Logger.WithFields(adapters.Field{Key: "run_id", Value: runID}),
	}
	w.logger.Info(ctx, "walk started",
		adapters.Field{Key: "root", Value: root.Path()},
		adapters.Field{Key: "concurrency", Value: opts.Concurrency})

	if w.visit(ctx, root, 0) {
		w.wg.Add(1)
		go w.walkDir(ctx, root, 0)
	}
	w.wg.Wait()

	stats := Stats{
		RunID:       runID,
		Directories: w.dirs.Load(),
		Files:       w.files.Load(),
		Errors:      w.errs.Load(),
		Bytes:       w.bytes.Load(),
		Duration:    time.Since(started),
	}
	w.logger.Info(ctx, "walk finished",
		adapters.Field{Key: "directories", Value: stats.Directories},
		adapters.Field{Key: "files", Value: stats.Files},
		adapters.Field{Key: "errors", Value: stats.Errors},
		adapters.Field{Key: "bytes", Value: stats.Bytes})

	if w.failed != nil {
		return stats, w.failed
	}
	return stats, parent.Err()
}

// visit counts d, calls Visit and reports whether d should be descended into.
func (w *walk) visit(ctx context.Context, d crawlable.Dataset, depth int) bool {
	if ctx.Err() != nil {
		return false
	}
	isDir := d.IsCollection()
	if isDir {
		w.dirs.Add(1)
	} else {
		w.files.Add(1)
		if n := d.Length(); n > 0 {
			w.bytes.Add(n)
		}
	}

	if w.opts.Visit != nil {
		if err := w.opts.Visit(ctx, d, depth); err != nil {
			if errors.Is(err, SkipDir) {
				return false
			}
			w.fail(err)
			return false
		}
	}
	return isDir && (w.opts.MaxDepth == 0 || depth < w.opts.MaxDepth)
}

func (w *walk) walkDir(ctx context.Context, d crawlable.Dataset, depth int) {
	defer w.wg.Done()

	if err := w.sem.Acquire(ctx, 1); err != nil {
		return
	}
	children, err := d.ListDatasets(ctx, w.opts.Filter)
	w.sem.Release(1)

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.errs.Add(1)
		w.logger.Warn(ctx, "listing failed, skipping subtree",
			adapters.Field{Key: "path", Value: d.Path()},
			adapters.ErrorField(err))
		if w.opts.OnError != nil {
			w.opts.OnError(ctx, d, err)
		}
		return
	}

	for _, child := range children {
		if w.visit(ctx, child, depth+1) {
			w.wg.Add(1)
			go w.walkDir(ctx, child, depth+1)
		}
	}
}

func (w *walk) fail(err error) {
	w.once.Do(func() {
		w.failed = err
		w.cancel()
	})
}
