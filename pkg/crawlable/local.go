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

package crawlable

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/jeremyhahn/go-s3crawl/pkg/common"
	"github.com/jeremyhahn/go-s3crawl/pkg/objmeta"
)

// LocalDataset is a Dataset over the local filesystem. Metadata is read from
// the filesystem on every call.
type LocalDataset struct {
	path   string
	config any
}

var _ Dataset = (*LocalDataset)(nil)

// NewLocalDataset returns the dataset at path.
func NewLocalDataset(path string, config any) *LocalDataset {
	return &LocalDataset{path: filepath.Clean(path), config: config}
}

func (d *LocalDataset) ConfigObject() any { return d.config }
func (d *LocalDataset) Path() string      { return d.path }
func (d *LocalDataset) Name() string      { return filepath.Base(d.path) }

// Parent returns the enclosing directory; the filesystem root is its own
// parent.
func (d *LocalDataset) Parent() (Dataset, error) {
	return &LocalDataset{path: filepath.Dir(d.path), config: d.config}, nil
}

func (d *LocalDataset) Exists(ctx context.Context) (bool, error) {
	_, err := os.Stat(d.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (d *LocalDataset) IsCollection() bool {
	info, err := os.Stat(d.path)
	return err == nil && info.IsDir()
}

// Descendant joins a relative path.
func (d *LocalDataset) Descendant(relativePath string) (Dataset, error) {
	if filepath.IsAbs(relativePath) {
		return nil, fmt.Errorf("%w: %q is absolute", common.ErrInvalidArgument, relativePath)
	}
	return &LocalDataset{path: filepath.Join(d.path, relativePath), config: d.config}, nil
}

// ListDatasets lists the directory in name order.
func (d *LocalDataset) ListDatasets(ctx context.Context, filter Filter) ([]Dataset, error) {
	if !d.IsCollection() {
		return nil, fmt.Errorf("%w: %s", common.ErrNotADirectory, d.path)
	}
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, err
	}
	children := make([]*LocalDataset, 0, len(entries))
	for _, e := range entries {
		children = append(children, &LocalDataset{path: filepath.Join(d.path, e.Name()), config: d.config})
	}
	return apply(children, filter), nil
}

// Length is the file size, or objmeta.UnknownSize for directories and
// missing files.
func (d *LocalDataset) Length() int64 {
	info, err := os.Stat(d.path)
	if err != nil || info.IsDir() {
		return objmeta.UnknownSize
	}
	return info.Size()
}

func (d *LocalDataset) LastModified() (time.Time, bool) {
	info, err := os.Stat(d.path)
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}
