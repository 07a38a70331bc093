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

// Package local serves a directory tree as a read-only object store. Every
// directory directly below the root is a bucket; every regular file below a
// bucket is an object keyed by its slash-separated relative path.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jeremyhahn/go-s3crawl/pkg/adapters"
	"github.com/jeremyhahn/go-s3crawl/pkg/common"
)

// DefaultMaxResults is the page size used when a listing names none.
const DefaultMaxResults = 1000

// Local is a read-only object store over the local filesystem.
type Local struct {
	path   string
	logger adapters.Logger
}

var (
	_ common.ObjectStore  = (*Local)(nil)
	_ common.Configurable = (*Local)(nil)
)

// New creates an unconfigured Local store.
func New() *Local {
	return &Local{logger: adapters.NewNoOpLogger()}
}

// Configure sets up the backend.
// Settings:
//   - path: the root directory whose subdirectories are buckets (required)
func (l *Local) Configure(settings map[string]string) error {
	root := settings["path"]
	if root == "" {
		return common.ErrPathNotSet
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("local root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", common.ErrNotADirectory, root)
	}
	l.path = root
	return nil
}

// SetLogger sets the logger.
func (l *Local) SetLogger(logger adapters.Logger) {
	if logger != nil {
		l.logger = logger
	}
}

// GetPath returns the configured root.
func (l *Local) GetPath() string {
	return l.path
}

// bucketDir returns the directory holding bucket.
func (l *Local) bucketDir(bucket string) (string, error) {
	if l.path == "" {
		return "", common.ErrNotConfigured
	}
	if err := common.ValidateLocalName(bucket); err != nil {
		return "", err
	}
	return filepath.Join(l.path, bucket), nil
}

// objectPath maps key to a file below bucket, rejecting keys that would
// escape it.
func (l *Local) objectPath(bucket, key string) (string, error) {
	dir, err := l.bucketDir(bucket)
	if err != nil {
		return "", err
	}
	if err := common.ValidateKey(key); err != nil {
		return "", err
	}
	for _, elem := range strings.Split(key, "/") {
		if elem == ".." {
			return "", &common.ValidationError{Field: "key", Message: "key cannot contain '..' elements"}
		}
	}
	return filepath.Join(dir, filepath.FromSlash(key)), nil
}

// BucketExists reports whether the bucket directory exists.
func (l *Local) BucketExists(ctx context.Context, bucket string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	dir, err := l.bucketDir(bucket)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

// GetWithContext opens the file behind key.
func (l *Local) GetWithContext(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := l.objectPath(bucket, key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(p) // #nosec G304 -- path validated by objectPath
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s/%s", common.ErrKeyNotFound, bucket, key)
		}
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, fmt.Errorf("%w: %s/%s", common.ErrKeyNotFound, bucket, key)
	}

	l.logger.Debug(ctx, "get",
		adapters.Field{Key: "bucket", Value: bucket},
		adapters.Field{Key: "key", Value: key},
		adapters.Field{Key: "size", Value: info.Size()})
	return file, nil
}

// ListWithOptions lists one page of bucket. Objects and common prefixes are
// merged in lexicographic key order and both count toward MaxResults.
// NextToken is the last key or prefix returned.
func (l *Local) ListWithOptions(ctx context.Context, bucket string, opts *common.ListOptions) (*common.ListResult, error) {
	if opts == nil {
		opts = &common.ListOptions{}
	}
	if opts.Prefix != "" {
		if err := common.ValidateKey(opts.Prefix); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir, err := l.bucketDir(bucket)
	if err != nil {
		return nil, err
	}
	if ok, err := l.BucketExists(ctx, bucket); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrBucketNotFound, bucket)
	}

	objects, err := l.scan(ctx, dir, opts.Prefix)
	if err != nil {
		return nil, err
	}

	type item struct {
		name string
		obj  *common.ObjectSummary
	}
	items := make([]item, 0, len(objects))
	seen := make(map[string]bool)
	for _, obj := range objects {
		if opts.Delimiter != "" {
			remainder := strings.TrimPrefix(obj.Key, opts.Prefix)
			if idx := strings.Index(remainder, opts.Delimiter); idx >= 0 {
				prefix := opts.Prefix + remainder[:idx+len(opts.Delimiter)]
				if !seen[prefix] {
					seen[prefix] = true
					items = append(items, item{name: prefix})
				}
				continue
			}
		}
		items = append(items, item{name: obj.Key, obj: obj})
	}

	start := 0
	if opts.ContinueFrom != "" {
		start = sort.Search(len(items), func(i int) bool { return items[i].name > opts.ContinueFrom })
	}
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	end := min(start+maxResults, len(items))

	result := &common.ListResult{
		Objects:        []*common.ObjectSummary{},
		CommonPrefixes: []string{},
	}
	for _, it := range items[start:end] {
		if it.obj == nil {
			result.CommonPrefixes = append(result.CommonPrefixes, it.name)
			continue
		}
		result.Objects = append(result.Objects, it.obj)
	}
	if end < len(items) {
		result.Truncated = true
		result.NextToken = items[end-1].name
	}

	l.logger.Debug(ctx, "list",
		adapters.Field{Key: "bucket", Value: bucket},
		adapters.Field{Key: "prefix", Value: opts.Prefix},
		adapters.Field{Key: "objects", Value: len(result.Objects)},
		adapters.Field{Key: "prefixes", Value: len(result.CommonPrefixes)})
	return result, nil
}

// scan returns every regular file below dir whose key starts with prefix,
// sorted by key. Only the subtree that can hold such keys is walked; symlinks
// are not followed.
func (l *Local) scan(ctx context.Context, dir, prefix string) ([]*common.ObjectSummary, error) {
	start := dir
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		start = filepath.Join(dir, filepath.FromSlash(prefix[:i]))
	}

	var objects []*common.ObjectSummary
	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == start && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, &common.ObjectSummary{
			Key:          key,
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}
