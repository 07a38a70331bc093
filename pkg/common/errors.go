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
	"errors"
	"fmt"
)

var (
	// Path errors

	// ErrInvalidURI is returned when a URI does not carry the object-store scheme
	// or names no bucket.
	ErrInvalidURI = errors.New("invalid object store uri")

	// ErrInvalidArgument is returned for malformed arguments such as an absolute
	// child path passed to a join.
	ErrInvalidArgument = errors.New("invalid argument")

	// Node errors

	// ErrNotADirectory is returned when a directory operation is applied to a file node.
	ErrNotADirectory = errors.New("not a directory")

	// ErrNotAFile is returned when a file operation is applied to a directory node.
	ErrNotAFile = errors.New("not a file")

	// Store errors

	// ErrKeyNotFound is returned when a key is not found in a bucket.
	ErrKeyNotFound = errors.New("key not found")

	// ErrBucketNotFound is returned when a bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrStoreRequired is returned when an object store is required but not provided.
	ErrStoreRequired = errors.New("object store is required")

	// ErrListing matches every *ListingError through errors.Is.
	ErrListing = errors.New("listing failed")

	// ErrDownload matches every *DownloadError through errors.Is.
	ErrDownload = errors.New("download failed")

	// ErrCacheClosed is returned by caches after Close.
	ErrCacheClosed = errors.New("cache closed")

	// Configuration errors

	// ErrNotConfigured is returned when a store backend is used before Configure.
	ErrNotConfigured = errors.New("not configured")

	// ErrPathNotSet is returned when the local backend has no root path.
	ErrPathNotSet = errors.New("path not set")

	// ErrEndpointNotSet is returned when the required endpoint is not set.
	ErrEndpointNotSet = errors.New("endpoint not set")

	// ErrAccessKeyNotSet is returned when the required access key is not set.
	ErrAccessKeyNotSet = errors.New("accessKey not set")

	// ErrSecretKeyNotSet is returned when the required secret key is not set.
	ErrSecretKeyNotSet = errors.New("secretKey not set")
)

// ListingError reports a failed directory listing population. The failure is
// never cached; the next caller for the same URI retries.
type ListingError struct {
	URI   string
	Cause error
}

func (e *ListingError) Error() string {
	return fmt.Sprintf("listing %s: %v", e.URI, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ListingError) Unwrap() error {
	return e.Cause
}

// Is reports ErrListing as a match.
func (e *ListingError) Is(target error) bool {
	return target == ErrListing
}

// DownloadError reports a failed object materialization. Any partially written
// local file has been removed by the time the error is returned.
type DownloadError struct {
	URI   string
	Cause error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s: %v", e.URI, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *DownloadError) Unwrap() error {
	return e.Cause
}

// Is reports ErrDownload as a match.
func (e *DownloadError) Is(target error) bool {
	return target == ErrDownload
}
