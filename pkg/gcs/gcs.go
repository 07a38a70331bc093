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

// Package gcs is the Google Cloud Storage object store backend.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"cloud.google.com/go/storage"
	"github.com/jeremyhahn/go-s3crawl/pkg/common"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// DefaultMaxResults is the page size when none is requested.
const DefaultMaxResults = 1000

// Small internal interfaces to enable unit tests without real GCS.
type gcsObject interface {
	NewReader(ctx context.Context) (io.ReadCloser, error)
}

type gcsBucket interface {
	Object(name string) gcsObject
	Objects(ctx context.Context, query *storage.Query) gcsIterator
	Attrs(ctx context.Context) (*storage.BucketAttrs, error)
}

type gcsIterator interface {
	Next() (*storage.ObjectAttrs, error)
}

type gcsClient interface {
	Bucket(name string) gcsBucket
}

type clientWrapper struct{ *storage.Client }
type bucketWrapper struct{ *storage.BucketHandle }
type objectWrapper struct{ *storage.ObjectHandle }

func (c clientWrapper) Bucket(name string) gcsBucket { return bucketWrapper{c.Client.Bucket(name)} }
func (b bucketWrapper) Object(name string) gcsObject {
	return objectWrapper{b.BucketHandle.Object(name)}
}
func (b bucketWrapper) Objects(ctx context.Context, query *storage.Query) gcsIterator {
	return b.BucketHandle.Objects(ctx, query)
}
func (o objectWrapper) NewReader(ctx context.Context) (io.ReadCloser, error) {
	return o.ObjectHandle.NewReader(ctx)
}

var gcsNewClient = func(ctx context.Context, opts ...option.ClientOption) (*storage.Client, error) {
	return storage.NewClient(ctx, opts...)
}

// GCS is a read-only object store over Google Cloud Storage. Continuation
// tokens are the last name returned, resumed with a query start offset.
type GCS struct {
	client gcsClient
}

var (
	_ common.ObjectStore  = (*GCS)(nil)
	_ common.Configurable = (*GCS)(nil)
)

// New returns an unconfigured backend.
func New() *GCS {
	return &GCS{}
}

// Configure creates the client.
// Optional settings:
//   - credentials_file: service account JSON key file
//   - endpoint: alternate API endpoint (emulators)
//   - anonymous: "true" to skip authentication for public buckets
func (g *GCS) Configure(settings map[string]string) error {
	if g.client != nil {
		return nil
	}
	var opts []option.ClientOption
	if f := settings["credentials_file"]; f != "" {
		opts = append(opts, option.WithCredentialsFile(f))
	}
	if e := settings["endpoint"]; e != "" {
		opts = append(opts, option.WithEndpoint(e))
	}
	if v := settings["anonymous"]; v != "" {
		anon, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: anonymous %q", common.ErrInvalidArgument, v)
		}
		if anon {
			opts = append(opts, option.WithoutAuthentication())
		}
	}

	client, err := gcsNewClient(context.Background(), opts...)
	if err != nil {
		return err
	}
	g.client = clientWrapper{client}
	return nil
}

// ListWithOptions returns one page of a listing. With a delimiter, the
// synthetic prefix entries GCS returns become common prefixes.
func (g *GCS) ListWithOptions(ctx context.Context, bucket string, opts *common.ListOptions) (*common.ListResult, error) {
	if g.client == nil {
		return nil, common.ErrNotConfigured
	}
	if opts == nil {
		opts = &common.ListOptions{}
	}
	limit := opts.MaxResults
	if limit <= 0 {
		limit = DefaultMaxResults
	}

	query := &storage.Query{
		Prefix:      opts.Prefix,
		Delimiter:   opts.Delimiter,
		StartOffset: opts.ContinueFrom,
	}
	if err := query.SetAttrSelection([]string{"Name", "Size", "Updated"}); err != nil {
		return nil, err
	}

	it := g.client.Bucket(bucket).Objects(ctx, query)
	result := &common.ListResult{}
	count := 0
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			if errors.Is(err, storage.ErrBucketNotExist) {
				return nil, fmt.Errorf("%w: %s", common.ErrBucketNotFound, bucket)
			}
			return nil, err
		}

		name := attrs.Name
		if attrs.Prefix != "" {
			name = attrs.Prefix
		}
		// StartOffset is inclusive.
		if opts.ContinueFrom != "" && name <= opts.ContinueFrom {
			continue
		}
		if count == limit {
			result.Truncated = true
			break
		}
		count++
		result.NextToken = name

		if attrs.Prefix != "" {
			result.CommonPrefixes = append(result.CommonPrefixes, attrs.Prefix)
			continue
		}
		result.Objects = append(result.Objects, &common.ObjectSummary{
			Key:          attrs.Name,
			Size:         attrs.Size,
			LastModified: attrs.Updated,
		})
	}
	if !result.Truncated {
		result.NextToken = ""
	}
	return result, nil
}

// GetWithContext streams an object.
func (g *GCS) GetWithContext(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if g.client == nil {
		return nil, common.ErrNotConfigured
	}
	rc, err := g.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrObjectNotExist):
			return nil, fmt.Errorf("%w: gs://%s/%s", common.ErrKeyNotFound, bucket, key)
		case errors.Is(err, storage.ErrBucketNotExist):
			return nil, fmt.Errorf("%w: %s", common.ErrBucketNotFound, bucket)
		}
		return nil, err
	}
	return rc, nil
}

// BucketExists reports whether the bucket exists and is reachable.
func (g *GCS) BucketExists(ctx context.Context, bucket string) (bool, error) {
	if g.client == nil {
		return false, common.ErrNotConfigured
	}
	_, err := g.client.Bucket(bucket).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrBucketNotExist) {
		return false, nil
	}
	return false, err
}
