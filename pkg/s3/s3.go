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

// Package s3 is the Amazon S3 object store backend, built on aws-sdk-go-v2.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/jeremyhahn/go-s3crawl/pkg/common"
)

// DefaultRegion is used when no region is configured.
const DefaultRegion = "us-east-1"

// API is the subset of *s3.Client used by the backend.
type API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3 is a read-only object store over Amazon S3 or an S3-compatible endpoint.
type S3 struct {
	client API
}

var (
	_ common.ObjectStore  = (*S3)(nil)
	_ common.Configurable = (*S3)(nil)
)

// New returns an unconfigured backend.
func New() *S3 {
	return &S3{}
}

// NewWithClient returns a backend using client.
func NewWithClient(client API) *S3 {
	return &S3{client: client}
}

// Configure sets up the client.
// Optional settings:
//   - region: AWS region (defaults to "us-east-1")
//   - endpoint: base endpoint for S3-compatible services
//   - access_key_id, secret_access_key: static credentials; otherwise the
//     default credential chain is used
//   - use_path_style: "true" for path-style addressing
func (b *S3) Configure(settings map[string]string) error {
	region := settings["region"]
	if region == "" {
		region = DefaultRegion
	}

	usePathStyle := false
	if v := settings["use_path_style"]; v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: use_path_style %q", common.ErrInvalidArgument, v)
		}
		usePathStyle = parsed
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	accessKey, secretKey := settings["access_key_id"], settings["secret_access_key"]
	if accessKey != "" || secretKey != "" {
		if accessKey == "" {
			return common.ErrAccessKeyNotSet
		}
		if secretKey == "" {
			return common.ErrSecretKeyNotSet
		}
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}

	endpoint := settings["endpoint"]
	b.client = s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = usePathStyle
	})
	return nil
}

// ListWithOptions returns one page of a listing.
func (b *S3) ListWithOptions(ctx context.Context, bucket string, opts *common.ListOptions) (*common.ListResult, error) {
	if b.client == nil {
		return nil, common.ErrNotConfigured
	}
	if opts == nil {
		opts = &common.ListOptions{}
	}

	input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if opts.Prefix != "" {
		input.Prefix = aws.String(opts.Prefix)
	}
	if opts.Delimiter != "" {
		input.Delimiter = aws.String(opts.Delimiter)
	}
	if opts.MaxResults > 0 {
		input.MaxKeys = aws.Int32(int32(min(opts.MaxResults, 1000)))
	}
	if opts.ContinueFrom != "" {
		input.ContinuationToken = aws.String(opts.ContinueFrom)
	}

	out, err := b.client.ListObjectsV2(ctx, input)
	if err != nil {
		if isNoSuchBucket(err) {
			return nil, fmt.Errorf("%w: %s", common.ErrBucketNotFound, bucket)
		}
		return nil, err
	}

	result := &common.ListResult{
		Objects:        make([]*common.ObjectSummary, 0, len(out.Contents)),
		CommonPrefixes: make([]string, 0, len(out.CommonPrefixes)),
		NextToken:      aws.ToString(out.NextContinuationToken),
		Truncated:      aws.ToBool(out.IsTruncated),
	}
	for _, obj := range out.Contents {
		if obj.Key == nil {
			continue
		}
		result.Objects = append(result.Objects, &common.ObjectSummary{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}
	for _, p := range out.CommonPrefixes {
		if p.Prefix != nil {
			result.CommonPrefixes = append(result.CommonPrefixes, *p.Prefix)
		}
	}
	return result, nil
}

// GetWithContext streams an object.
func (b *S3) GetWithContext(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if b.client == nil {
		return nil, common.ErrNotConfigured
	}
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		switch {
		case isNoSuchKey(err):
			return nil, fmt.Errorf("%w: s3://%s/%s", common.ErrKeyNotFound, bucket, key)
		case isNoSuchBucket(err):
			return nil, fmt.Errorf("%w: %s", common.ErrBucketNotFound, bucket)
		}
		return nil, err
	}
	return out.Body, nil
}

// BucketExists reports whether the bucket exists and is reachable.
func (b *S3) BucketExists(ctx context.Context, bucket string) (bool, error) {
	if b.client == nil {
		return false, common.ErrNotConfigured
	}
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		return true, nil
	}
	if isNoSuchBucket(err) {
		return false, nil
	}
	return false, err
}

// HeadBucket reports 404 as NotFound with no body; typed errors are checked
// first, then the API error code.
func isNoSuchBucket(err error) bool {
	var nsb *types.NoSuchBucket
	var nf *types.NotFound
	if errors.As(err, &nsb) || errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket", "NotFound":
			return true
		}
	}
	return false
}

func isNoSuchKey(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey"
}
