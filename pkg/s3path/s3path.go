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

// Package s3path implements the pure path algebra over object-store URIs of
// the form s3://bucket/key. Nothing in this package performs I/O.
package s3path

import (
	"fmt"
	"strings"

	"github.com/jeremyhahn/go-s3crawl/pkg/common"
)

const (
	// Scheme is the URI prefix of every object-store URI.
	Scheme = "s3://"

	// Delimiter separates the conventional hierarchy levels of a key.
	Delimiter = "/"
)

// ObjectKey addresses one object or virtual directory. Key never carries the
// scheme and, for well formed keys, no leading delimiter.
type ObjectKey struct {
	Bucket string
	Key    string
}

// Format renders bucket and key as a URI.
func Format(bucket, key string) string {
	return Scheme + bucket + Delimiter + key
}

// Parse splits uri into bucket and key.
func Parse(uri string) (bucket, key string, err error) {
	if !strings.HasPrefix(uri, Scheme) {
		return "", "", fmt.Errorf("%w: %q does not start with %s", common.ErrInvalidURI, uri, Scheme)
	}

	rest := uri[len(Scheme):]
	bucket, key, _ = strings.Cut(rest, Delimiter)
	if bucket == "" {
		return "", "", fmt.Errorf("%w: %q names no bucket", common.ErrInvalidURI, uri)
	}
	return bucket, key, nil
}

// ParseKey is Parse returning an ObjectKey.
func ParseKey(uri string) (ObjectKey, error) {
	bucket, key, err := Parse(uri)
	if err != nil {
		return ObjectKey{}, err
	}
	return ObjectKey{Bucket: bucket, Key: key}, nil
}

// Join appends a relative child to parentURI. One trailing delimiter is removed
// from both sides before they are joined; an empty child returns parentURI.
func Join(parentURI, child string) (string, error) {
	if strings.HasPrefix(child, Delimiter) {
		return "", fmt.Errorf("%w: child %q is absolute", common.ErrInvalidArgument, child)
	}
	if child == "" {
		return parentURI, nil
	}
	return TrimTrailingDelimiter(parentURI) + Delimiter + TrimTrailingDelimiter(child), nil
}

// Basename returns the text after the last delimiter. A URI ending in the
// delimiter has an empty basename.
func Basename(uri string) string {
	if i := strings.LastIndex(uri, Delimiter); i >= 0 {
		return uri[i+1:]
	}
	return uri
}

// Parent strips one trailing delimiter and truncates to the last remaining
// delimiter, inclusive. The parent of a bucket root is the bucket root.
func Parent(uri string) string {
	trimmed := TrimTrailingDelimiter(uri)

	if strings.HasPrefix(trimmed, Scheme) && !strings.Contains(trimmed[len(Scheme):], Delimiter) {
		return trimmed + Delimiter
	}

	i := strings.LastIndex(trimmed, Delimiter)
	if i < 0 {
		return uri
	}
	return trimmed[:i+1]
}

// StripPrefix removes exactly one leading occurrence of prefix from key.
func StripPrefix(key, prefix string) string {
	return strings.TrimPrefix(key, prefix)
}

// TrimTrailingDelimiter removes one trailing delimiter if present.
func TrimTrailingDelimiter(s string) string {
	return strings.TrimSuffix(s, Delimiter)
}

// EnsureTrailingDelimiter appends the delimiter unless s already ends with it.
func EnsureTrailingDelimiter(s string) string {
	if strings.HasSuffix(s, Delimiter) {
		return s
	}
	return s + Delimiter
}

// IsBucketRoot reports whether uri addresses the root of its bucket.
func IsBucketRoot(uri string) bool {
	_, key, err := Parse(uri)
	return err == nil && TrimTrailingDelimiter(key) == ""
}

// URI renders the key as s3://bucket/key.
func (k ObjectKey) URI() string {
	return Format(k.Bucket, k.Key)
}

func (k ObjectKey) String() string {
	return k.URI()
}

// IsRoot reports whether k is the bucket root.
func (k ObjectKey) IsRoot() bool {
	return TrimTrailingDelimiter(k.Key) == ""
}

// Name is the last path segment, ignoring one trailing delimiter. The root's
// name is the bucket.
func (k ObjectKey) Name() string {
	if k.IsRoot() {
		return k.Bucket
	}
	return Basename(TrimTrailingDelimiter(k.Key))
}

// Child returns the key of a relative child of k.
func (k ObjectKey) Child(name string) (ObjectKey, error) {
	uri, err := Join(k.URI(), name)
	if err != nil {
		return ObjectKey{}, err
	}
	return ParseKey(uri)
}

// Parent returns the directory key containing k, which ends with the
// delimiter unless it is the bucket root.
func (k ObjectKey) Parent() ObjectKey {
	key, _ := ParseKey(Parent(k.URI()))
	return key
}

// DirPrefix is the listing prefix for k treated as a directory: empty for the
// bucket root, otherwise the key with exactly one trailing delimiter.
func (k ObjectKey) DirPrefix() string {
	if k.IsRoot() {
		return ""
	}
	return EnsureTrailingDelimiter(k.Key)
}

// Compare orders keys by bucket, then key.
func (k ObjectKey) Compare(o ObjectKey) int {
	if c := strings.Compare(k.Bucket, o.Bucket); c != 0 {
		return c
	}
	return strings.Compare(k.Key, o.Key)
}
