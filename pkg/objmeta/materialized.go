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
	"github.com/jeremyhahn/go-s3crawl/pkg/s3path"
)

// MaterializedObject is a remote object downloaded to a local file. The file
// belongs to the materialization cache; holders must not delete or write it.
type MaterializedObject struct {
	Key        s3path.ObjectKey
	LocalPath  string
	SizeOnDisk int64
}

// Equal compares by value.
func (m MaterializedObject) Equal(o MaterializedObject) bool {
	return m == o
}
