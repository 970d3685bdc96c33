// Package s3 loads NIS map files kept in Amazon S3 or an S3-compatible
// object store.
//
// Every object directly under the configured prefix is one map source,
// named after the rest of its key: with prefix "nis/example.com/" the
// object "nis/example.com/passwd.byname" is loaded as map passwd.byname.
// Objects in deeper "directories" and keys whose last element starts with
// '.' are skipped.
package s3

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/goyp/internal/logger"
	"github.com/marmos91/goyp/pkg/store"
)

// ClientConfig describes how to reach the object store.
type ClientConfig struct {
	// Region is the bucket region. Empty uses the AWS default chain.
	Region string

	// Endpoint overrides the service URL for S3-compatible stores
	// (Localstack, MinIO). Setting it also selects path-style addressing.
	Endpoint string

	// AccessKeyID and SecretAccessKey are static credentials. When empty
	// the AWS default credential chain is used.
	AccessKeyID     string
	SecretAccessKey string
}

// NewClient builds an S3 client from cfg.
func NewClient(ctx context.Context, cfg ClientConfig) (*s3.Client, error) {
	var opts []func(*awsConfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsConfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Source reads map files from one bucket prefix.
type Source struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewSource returns a Source for the objects under prefix in bucket.
func NewSource(client *s3.Client, bucket, prefix string) (*Source, error) {
	if client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Source{client: client, bucket: bucket, prefix: prefix}, nil
}

// Load stores every map object into st under domain and returns the number
// of entries loaded.
func (s *Source) Load(ctx context.Context, st store.Store, domain string) (int, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	total := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return total, fmt.Errorf("list s3://%s/%s: %w", s.bucket, s.prefix, err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			mapName := strings.TrimPrefix(key, s.prefix)
			if mapName == "" || strings.Contains(mapName, "/") || strings.HasPrefix(mapName, ".") {
				continue
			}

			n, err := s.loadObject(ctx, st, domain, mapName, key)
			if err != nil {
				return total, err
			}
			logger.Debug("Loaded %d entries into %s from s3://%s/%s", n, mapName, s.bucket, key)
			total += n
		}
	}
	return total, nil
}

func (s *Source) loadObject(ctx context.Context, st store.Store, domain, mapName, key string) (int, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("map %s: get s3://%s/%s: %w", mapName, s.bucket, key, err)
	}
	defer func() { _ = out.Body.Close() }()

	return store.Load(ctx, st, domain, mapName, out.Body)
}
