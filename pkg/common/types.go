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
	"time"
)

// ObjectSummary describes one object returned by a listing call.
type ObjectSummary struct {
	// Key is the full object key within its bucket
	Key string `json:"key"`

	// Size is the size of the object in bytes
	Size int64 `json:"size"`

	// LastModified is the timestamp when the object was last modified.
	// The zero value means the store did not report it.
	LastModified time.Time `json:"last_modified"`
}

// ListOptions configures a single page of a listing call.
type ListOptions struct {
	// Prefix filters objects to those starting with this prefix
	Prefix string

	// Delimiter is used for hierarchical listing (e.g., "/" for directories)
	// When set, common prefixes are returned separately
	Delimiter string

	// MaxResults specifies the maximum number of results per page
	// 0 means use backend default
	MaxResults int

	// ContinueFrom is a pagination token from a previous ListResult
	// Empty string means start from the beginning
	ContinueFrom string
}

// ListResult is one page of a listing call.
type ListResult struct {
	// Objects contains the object summaries directly matching the query
	Objects []*ObjectSummary

	// CommonPrefixes contains common prefixes when using Delimiter
	// For example, with delimiter "/" and prefix "a/", this might contain
	// ["a/b/", "a/c/"] representing subdirectories
	CommonPrefixes []string

	// NextToken is the pagination token for the next page of results
	// Empty string means no more results available
	NextToken string

	// Truncated indicates whether more results are available
	Truncated bool
}
