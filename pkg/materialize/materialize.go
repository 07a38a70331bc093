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

// Package materialize downloads remote objects to private local temp files
// and owns those files until their cache entry is removed.
package materialize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jeremyhahn/go-s3crawl/pkg/adapters"
	"github.com/jeremyhahn/go-s3crawl/pkg/cache"
	"github.com/jeremyhahn/go-s3crawl/pkg/common"
	"github.com/jeremyhahn/go-s3crawl/pkg/metrics"
	"github.com/jeremyhahn/go-s3crawl/pkg/objmeta"
	"github.com/jeremyhahn/go-s3crawl/pkg/s3path"
)

const (
	// DefaultTempPrefix starts the name of every download directory.
	DefaultTempPrefix = "S3Download_"
	// DefaultTTL and DefaultTTI bound how long a local copy is kept.
	DefaultTTL = 60 * time.Second
	DefaultTTI = 60 * time.Second
	// DefaultMaxEntries bounds the number of local copies.
	DefaultMaxEntries = 1000
)

// Options configures a Cache.
type Options struct {
	// TempDir is the root for download directories; "" means os.TempDir().
	TempDir string
	// TempPrefix names download directories; "" means DefaultTempPrefix.
	TempPrefix string
	Logger     adapters.Logger
	Cache      cache.Options
}

// DefaultOptions returns TTL = TTI = 60s and a 1000 entry bound.
func DefaultOptions() Options {
	return Options{
		TempPrefix: DefaultTempPrefix,
		Cache: cache.Options{
			TTL:        DefaultTTL,
			TTI:        DefaultTTI,
			MaxEntries: DefaultMaxEntries,
		},
	}
}

// Cache maps object URIs to downloaded local files.
//
// The side-table records uri -> local path before a download starts and is
// cleared only after the file is gone. Paths whose removal failed move to a
// stale set that Close retries, so every file this cache creates is always
// reachable from one of the two.
type Cache struct {
	store   common.ObjectStore
	tempDir string
	prefix  string
	logger  adapters.Logger
	onEvict cache.EvictFunc

	mu    sync.Mutex
	files map[string]string
	stale map[string]string // path -> uri

	cache *cache.Cache[objmeta.MaterializedObject]
}

// New creates a materialization cache over store. TempDir is created if it
// does not exist.
func New(store common.ObjectStore, opts Options) (*Cache, error) {
	if store == nil {
		return nil, common.ErrStoreRequired
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.TempPrefix == "" {
		opts.TempPrefix = DefaultTempPrefix
	}
	if err := common.ValidateLocalName(opts.TempPrefix); err != nil {
		return nil, fmt.Errorf("temp prefix: %w", err)
	}
	if err := os.MkdirAll(opts.TempDir, 0o700); err != nil {
		return nil, fmt.Errorf("temp dir: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = adapters.NewNoOpLogger()
	}
	if opts.Cache.Logger == nil {
		opts.Cache.Logger = opts.Logger
	}

	c := &Cache{
		store:   store,
		tempDir: opts.TempDir,
		prefix:  opts.TempPrefix,
		logger:  opts.Logger.WithFields(adapters.Field{Key: "component", Value: "materialize"}),
		onEvict: opts.Cache.OnEvict,
		files:   make(map[string]string),
		stale:   make(map[string]string),
	}
	opts.Cache.OnEvict = c.release
	c.cache = cache.New("objects", c.load, opts.Cache)
	return c, nil
}

// canonical validates objectURI and returns its cache key.
func canonical(objectURI string) (string, error) {
	key, err := s3path.ParseKey(objectURI)
	if err != nil {
		return "", err
	}
	if err := common.ValidateKey(key.Key); err != nil {
		return "", err
	}
	if err := common.ValidateLocalName(s3path.Basename(key.Key)); err != nil {
		return "", err
	}
	return key.URI(), nil
}

// Get returns the local copy of objectURI, downloading it once on a miss.
// The returned file must be treated as read-only and must not be deleted.
func (c *Cache) Get(ctx context.Context, objectURI string) (objmeta.MaterializedObject, error) {
	uri, err := canonical(objectURI)
	if err != nil {
		return objmeta.MaterializedObject{}, err
	}
	return c.cache.Get(ctx, uri)
}

// Open returns the local copy opened for reading. If the copy is removed
// between lookup and open, the object is materialized again once.
func (c *Cache) Open(ctx context.Context, objectURI string) (*os.File, error) {
	obj, err := c.Get(ctx, objectURI)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(obj.LocalPath)
	if !errors.Is(err, fs.ErrNotExist) {
		return f, err
	}

	c.logger.Debug(ctx, "local copy vanished, materializing again",
		adapters.Field{Key: "uri", Value: objectURI})
	c.Invalidate(objectURI)
	if obj, err = c.Get(ctx, objectURI); err != nil {
		return nil, err
	}
	return os.Open(obj.LocalPath)
}

// Contains reports whether a live local copy of objectURI is cached.
func (c *Cache) Contains(objectURI string) bool {
	uri, err := canonical(objectURI)
	return err == nil && c.cache.Contains(uri)
}

// Invalidate removes the local copy of objectURI.
func (c *Cache) Invalidate(objectURI string) bool {
	uri, err := canonical(objectURI)
	return err == nil && c.cache.Invalidate(uri)
}

// Clear removes every local copy.
func (c *Cache) Clear() {
	c.cache.Clear()
}

// Cleanup removes expired local copies now.
func (c *Cache) Cleanup() int {
	return c.cache.Cleanup()
}

// Len returns the number of cached objects.
func (c *Cache) Len() int {
	return c.cache.Len()
}

// Metrics returns the cache counters.
func (c *Cache) Metrics() *metrics.CacheMetrics {
	return c.cache.Metrics()
}

// Files returns a snapshot of the side-table, uri -> local path.
func (c *Cache) Files() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.files))
	for k, v := range c.files {
		out[k] = v
	}
	return out
}

// Stale returns the local paths whose removal failed and awaits a retry.
func (c *Cache) Stale() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.stale))
	for path := range c.stale {
		out = append(out, path)
	}
	return out
}

// Close removes every local copy, including those whose removal failed
// earlier, and stops the cache.
func (c *Cache) Close() error {
	c.cache.Close()

	c.mu.Lock()
	for uri, path := range c.files {
		c.stale[path] = uri
	}
	clear(c.files)
	pending := make(map[string]string, len(c.stale))
	for path, uri := range c.stale {
		pending[path] = uri
	}
	c.mu.Unlock()

	var errs []error
	for path, uri := range pending {
		if err := removeLocal(path); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", uri, err))
			continue
		}
		c.mu.Lock()
		delete(c.stale, path)
		c.mu.Unlock()
	}
	return errors.Join(errs...)
}

func (c *Cache) load(ctx context.Context, uri string) (objmeta.MaterializedObject, error) {
	key, err := s3path.ParseKey(uri)
	if err != nil {
		return objmeta.MaterializedObject{}, err
	}

	dir := filepath.Join(c.tempDir, c.prefix+uuid.NewString())
	if err := os.Mkdir(dir, 0o700); err != nil {
		return objmeta.MaterializedObject{}, c.fail(ctx, uri, err)
	}
	path := filepath.Join(dir, s3path.Basename(key.Key))
	c.record(uri, path)

	size, err := c.download(ctx, key, path)
	if err != nil {
		if rmErr := removeLocal(path); rmErr != nil {
			c.logger.Warn(ctx, "cleanup of failed download failed",
				adapters.Field{Key: "path", Value: path},
				adapters.ErrorField(rmErr))
			c.retire(uri, path)
		} else {
			c.forget(uri, path)
		}
		return objmeta.MaterializedObject{}, c.fail(ctx, uri, err)
	}

	c.logger.Info(ctx, "materialized",
		adapters.Field{Key: "uri", Value: uri},
		adapters.Field{Key: "path", Value: path},
		adapters.Field{Key: "size", Value: size})
	return objmeta.MaterializedObject{Key: key, LocalPath: path, SizeOnDisk: size}, nil
}

func (c *Cache) fail(ctx context.Context, uri string, err error) error {
	c.logger.Error(ctx, "download failed",
		adapters.Field{Key: "uri", Value: uri},
		adapters.ErrorField(err))
	return &common.DownloadError{URI: uri, Cause: err}
}

func (c *Cache) download(ctx context.Context, key s3path.ObjectKey, path string) (int64, error) {
	r, err := c.store.GetWithContext(ctx, key.Bucket, key.Key)
	if err != nil {
		return 0, err
	}
	defer func() { _ = r.Close() }()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return n, err
}

// release is the cache's removal listener. The cache does not start a new
// population of uri until it returns, so the side-table still holds the path
// of the removed copy.
func (c *Cache) release(uri string, cause cache.RemovalCause) {
	if c.onEvict != nil {
		c.onEvict(uri, cause)
	}

	c.mu.Lock()
	path, ok := c.files[uri]
	c.mu.Unlock()
	if !ok {
		return
	}

	if err := removeLocal(path); err != nil {
		c.retire(uri, path)
		c.logger.Warn(context.Background(), "removing local copy failed",
			adapters.Field{Key: "uri", Value: uri},
			adapters.Field{Key: "path", Value: path},
			adapters.Field{Key: "cause", Value: cause.String()},
			adapters.ErrorField(err))
		return
	}
	c.forget(uri, path)
	c.logger.Debug(context.Background(), "removed local copy",
		adapters.Field{Key: "uri", Value: uri},
		adapters.Field{Key: "cause", Value: cause.String()})
}

func (c *Cache) record(uri, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.files[uri]; ok && old != path {
		c.stale[old] = uri
	}
	c.files[uri] = path
}

// retire moves path from the side-table to the stale set.
func (c *Cache) retire(uri, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.files[uri] == path {
		delete(c.files, uri)
	}
	c.stale[path] = uri
}

// forget drops the side-table entry for uri if it still points at path.
func (c *Cache) forget(uri, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.files[uri] == path {
		delete(c.files, uri)
	}
}

// removeLocal deletes a downloaded file and then its directory. Missing
// files and directories are not errors.
func removeLocal(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Remove(filepath.Dir(path)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
