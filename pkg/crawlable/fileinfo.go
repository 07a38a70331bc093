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
	"encoding/json"
	"io/fs"
	"time"
)

const (
	dirMode  = fs.ModeDir | 0o555
	fileMode = fs.FileMode(0o444)
)

// FileInfo implements fs.FileInfo for dataset nodes.
type FileInfo struct {
	name    string
	size    int64
	modTime time.Time
	isDir   bool
}

// NewFileInfo creates a FileInfo. Negative sizes are reported as 0.
func NewFileInfo(name string, size int64, modTime time.Time, isDir bool) *FileInfo {
	if size < 0 {
		size = 0
	}
	return &FileInfo{name: name, size: size, modTime: modTime, isDir: isDir}
}

func (fi *FileInfo) Name() string       { return fi.name }
func (fi *FileInfo) Size() int64        { return fi.size }
func (fi *FileInfo) ModTime() time.Time { return fi.modTime }
func (fi *FileInfo) IsDir() bool        { return fi.isDir }
func (fi *FileInfo) Sys() any           { return nil }

// Mode is read-only: the tree never supports writes.
func (fi *FileInfo) Mode() fs.FileMode {
	if fi.isDir {
		return dirMode
	}
	return fileMode
}

type jsonFileInfo struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime,omitzero"`
	IsDir   bool      `json:"isDir"`
}

// MarshalJSON implements json.Marshaler.
func (fi *FileInfo) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonFileInfo{
		Name:    fi.name,
		Size:    fi.size,
		ModTime: fi.modTime,
		IsDir:   fi.isDir,
	})
}
