// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-shiftsync.
//
// go-shiftsync is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the subset of the S3 client used here.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config configures an S3Exporter.
type S3Config struct {
	Bucket string
	Prefix string
	Region string
	// Endpoint selects an S3-compatible service such as MinIO.
	Endpoint  string
	AccessKey string
	SecretKey string
	// PathStyle forces path-style addressing, which MinIO requires.
	PathStyle bool
}

// S3Exporter writes snapshots to an S3 bucket.
type S3Exporter struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Exporter builds an S3 client from cfg using the default AWS
// credential chain unless static keys are given.
func NewS3Exporter(ctx context.Context, cfg S3Config) (*S3Exporter, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("snapshot bucket is required")
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	return NewS3ExporterWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewS3ExporterWithClient wraps an existing client.
func NewS3ExporterWithClient(client S3API, bucket, prefix string) *S3Exporter {
	return &S3Exporter{client: client, bucket: bucket, prefix: prefix}
}

// Export implements Exporter. The returned location is the object key.
func (e *S3Exporter) Export(ctx context.Context, doc *Document) (string, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, doc); err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}

	key := joinKey(e.prefix, Name(doc))
	_, err := e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("put snapshot s3://%s/%s: %w", e.bucket, key, err)
	}
	return key, nil
}

// Import implements Importer. location is an object key.
func (e *S3Exporter) Import(ctx context.Context, location string) (*Document, error) {
	out, err := e.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(location),
	})
	if err != nil {
		return nil, fmt.Errorf("get snapshot s3://%s/%s: %w", e.bucket, location, err)
	}
	defer out.Body.Close()
	return Decode(out.Body)
}
