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

package common

import (
	"context"
	"io"
)

// ObjectStore is the read-only subset of an object store consumed by the
// caches. Implementations must be safe for concurrent use; one client may be
// shared by every populating fetch.
type ObjectStore interface {
	// ListWithOptions returns one page of a (possibly delimited) listing.
	ListWithOptions(ctx context.Context, bucket string, opts *ListOptions) (*ListResult, error)

	// GetWithContext streams the bytes of one object.
	GetWithContext(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// BucketExists reports whether the bucket exists and is reachable.
	BucketExists(ctx context.Context, bucket string) (bool, error)
}

// Configurable is implemented by backends that are set up from a settings map.
type Configurable interface {
	// Configure sets up the backend with the necessary credentials and settings.
	Configure(settings map[string]string) error
}
