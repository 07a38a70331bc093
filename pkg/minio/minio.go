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

//nolint:staticcheck // Using v1 SDK for S3-compatible servers

// Package minio is the MinIO object store backend. MinIO is S3-compatible,
// so this implementation uses the AWS S3 SDK.
package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/jeremyhahn/go-s3crawl/pkg/common"
)

// DefaultRegion is used when no region is configured.
const DefaultRegion = "us-east-1"

// MinIO is a read-only object store over MinIO or another S3-compatible
// server that requires path-style addressing.
type MinIO struct {
	svc s3iface.S3API
}

var (
	_ common.ObjectStore  = (*MinIO)(nil)
	_ common.Configurable = (*MinIO)(nil)
)

// New returns an unconfigured backend.
func New() *MinIO {
	return &MinIO{}
}

// NewWithClient returns a backend using svc.
func NewWithClient(svc s3iface.S3API) *MinIO {
	return &MinIO{svc: svc}
}

// Configure sets up the backend with the necessary settings.
// Required settings:
//   - endpoint: MinIO server endpoint (e.g., "http://localhost:9000")
//   - accessKey: MinIO access key
//   - secretKey: MinIO secret key
//
// Optional settings:
//   - region: AWS region (defaults to "us-east-1")
//   - useSSL: "false" disables TLS for endpoints given without a scheme
func (m *MinIO) Configure(settings map[string]string) error {
	endpoint := settings["endpoint"]
	if endpoint == "" {
		return common.ErrEndpointNotSet
	}

	accessKey := settings["accessKey"]
	if accessKey == "" {
		return common.ErrAccessKeyNotSet
	}

	secretKey := settings["secretKey"]
	if secretKey == "" {
		return common.ErrSecretKeyNotSet
	}

	region := settings["region"]
	if region == "" {
		region = DefaultRegion
	}

	cfg := &aws.Config{
		Region:           aws.String(region),
		Endpoint:         aws.String(endpoint),
		S3ForcePathStyle: aws.Bool(true), // MinIO requires path-style addressing
		Credentials:      credentials.NewStaticCredentials(accessKey, secretKey, ""),
	}
	if v := settings["useSSL"]; v != "" {
		useSSL, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: useSSL %q", common.ErrInvalidArgument, v)
		}
		cfg.DisableSSL = aws.Bool(!useSSL)
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return err
	}

	m.svc = s3.New(sess)
	return nil
}

// ListWithOptions returns one page of a listing.
func (m *MinIO) ListWithOptions(ctx context.Context, bucket string, opts *common.ListOptions) (*common.ListResult, error) {
	if m.svc == nil {
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
		input.MaxKeys = aws.Int64(int64(opts.MaxResults))
	}
	if opts.ContinueFrom != "" {
		input.ContinuationToken = aws.String(opts.ContinueFrom)
	}

	out, err := m.svc.ListObjectsV2WithContext(ctx, input)
	if err != nil {
		if hasCode(err, s3.ErrCodeNoSuchBucket) {
			return nil, fmt.Errorf("%w: %s", common.ErrBucketNotFound, bucket)
		}
		return nil, err
	}

	result := &common.ListResult{
		Objects:        make([]*common.ObjectSummary, 0, len(out.Contents)),
		CommonPrefixes: make([]string, 0, len(out.CommonPrefixes)),
		NextToken:      aws.StringValue(out.NextContinuationToken),
		Truncated:      aws.BoolValue(out.IsTruncated),
	}
	for _, obj := range out.Contents {
		if obj == nil || obj.Key == nil {
			continue
		}
		result.Objects = append(result.Objects, &common.ObjectSummary{
			Key:          *obj.Key,
			Size:         aws.Int64Value(obj.Size),
			LastModified: aws.TimeValue(obj.LastModified),
		})
	}
	for _, p := range out.CommonPrefixes {
		if p != nil && p.Prefix != nil {
			result.CommonPrefixes = append(result.CommonPrefixes, *p.Prefix)
		}
	}
	return result, nil
}

// GetWithContext streams an object.
func (m *MinIO) GetWithContext(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if m.svc == nil {
		return nil, common.ErrNotConfigured
	}
	result, err := m.svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		switch {
		case hasCode(err, s3.ErrCodeNoSuchKey):
			return nil, fmt.Errorf("%w: s3://%s/%s", common.ErrKeyNotFound, bucket, key)
		case hasCode(err, s3.ErrCodeNoSuchBucket):
			return nil, fmt.Errorf("%w: %s", common.ErrBucketNotFound, bucket)
		}
		return nil, err
	}
	return result.Body, nil
}

// BucketExists reports whether the bucket exists and is reachable.
func (m *MinIO) BucketExists(ctx context.Context, bucket string) (bool, error) {
	if m.svc == nil {
		return false, common.ErrNotConfigured
	}
	_, err := m.svc.HeadBucketWithContext(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		return true, nil
	}
	if hasCode(err, s3.ErrCodeNoSuchBucket, "NotFound") || statusCode(err) == http.StatusNotFound {
		return false, nil
	}
	return false, err
}

func hasCode(err error, codes ...string) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	for _, c := range codes {
		if aerr.Code() == c {
			return true
		}
	}
	return false
}

func statusCode(err error) int {
	var rf awserr.RequestFailure
	if errors.As(err, &rf) {
		return rf.StatusCode()
	}
	return 0
}
