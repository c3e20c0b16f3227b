// Package s3cache is an artifact cache backend on Amazon S3 or an
// S3-compatible service. Artifact metadata travels as object metadata.
package s3cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/kbukum/buildgraph/artifactcache"
	"github.com/kbukum/buildgraph/logger"
)

func init() {
	artifactcache.RegisterFactory(artifactcache.ModeS3, func(cfg artifactcache.Config, providerCfg any, log *logger.Logger) (artifactcache.ArtifactCache, error) {
		c := &Config{}
		if providerCfg != nil {
			pc, ok := providerCfg.(*Config)
			if !ok {
				return nil, fmt.Errorf("s3cache: expected *s3cache.Config, got %T", providerCfg)
			}
			c = pc
		}
		c.ApplyDefaults()
		if err := c.Validate(); err != nil {
			return nil, err
		}
		client, err := NewClient(context.Background(), c)
		if err != nil {
			return nil, err
		}
		return artifactcache.NewBlobCache(string(artifactcache.ModeS3), cfg.ReadMode, NewStore(client, c.Bucket, c.Prefix), log), nil
	})
}

// API is the subset of the S3 client the store uses.
type API interface {
	GetObject(ctx context.Context, in *awss3.GetObjectInput, opts ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *awss3.PutObjectInput, opts ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *awss3.HeadObjectInput, opts ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error)
	DeleteObjects(ctx context.Context, in *awss3.DeleteObjectsInput, opts ...func(*awss3.Options)) (*awss3.DeleteObjectsOutput, error)
}

// NewClient creates an S3 client from cfg.
func NewClient(ctx context.Context, cfg *Config) (*awss3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3cache: load aws config: %w", err)
	}

	var s3Opts []func(*awss3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *awss3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	} else if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *awss3.Options) {
			o.UsePathStyle = true
		})
	}
	return awss3.NewFromConfig(awsCfg, s3Opts...), nil
}

// Store implements artifactcache.BlobStore on one bucket.
type Store struct {
	client API
	bucket string
	prefix string
}

// NewStore creates a Store.
func NewStore(client API, bucket, prefix string) *Store {
	return &Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *Store) objectKey(key artifactcache.RuleKey) string {
	if s.prefix == "" {
		return string(key)
	}
	return path.Join(s.prefix, string(key))
}

func (s *Store) Get(ctx context.Context, key artifactcache.RuleKey) (artifactcache.Blob, bool, error) {
	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return artifactcache.Blob{}, false, nil
		}
		return artifactcache.Blob{}, false, fmt.Errorf("s3cache: get object: %w", err)
	}
	defer out.Body.Close() //nolint:errcheck // read-only body

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return artifactcache.Blob{}, false, fmt.Errorf("s3cache: read object: %w", err)
	}
	return artifactcache.Blob{Data: data, Metadata: out.Metadata}, true, nil
}

func (s *Store) Put(ctx context.Context, key artifactcache.RuleKey, blob artifactcache.Blob) error {
	_, err := s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(key)),
		Body:          bytes.NewReader(blob.Data),
		ContentLength: aws.Int64(int64(len(blob.Data))),
		Metadata:      blob.Metadata,
	})
	if err != nil {
		return fmt.Errorf("s3cache: put object: %w", err)
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, keys []artifactcache.RuleKey) (map[artifactcache.RuleKey]bool, error) {
	out := make(map[artifactcache.RuleKey]bool, len(keys))
	for _, key := range keys {
		_, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.objectKey(key)),
		})
		switch {
		case err == nil:
			out[key] = true
		case isNotFound(err):
			out[key] = false
		default:
			return nil, fmt.Errorf("s3cache: head object: %w", err)
		}
	}
	return out, nil
}

// Delete removes the keys that exist in one DeleteObjects request and
// returns how many were removed.
func (s *Store) Delete(ctx context.Context, keys []artifactcache.RuleKey) (int, error) {
	found, err := s.Exists(ctx, keys)
	if err != nil {
		return 0, err
	}
	var objects []types.ObjectIdentifier
	for _, key := range keys {
		if found[key] {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(s.objectKey(key))})
		}
	}
	if len(objects) == 0 {
		return 0, nil
	}

	out, err := s.client.DeleteObjects(ctx, &awss3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(false)},
	})
	if err != nil {
		return 0, fmt.Errorf("s3cache: delete objects: %w", err)
	}
	if len(out.Errors) > 0 {
		e := out.Errors[0]
		return len(out.Deleted), fmt.Errorf("s3cache: delete %s: %s", aws.ToString(e.Key), aws.ToString(e.Message))
	}
	return len(out.Deleted), nil
}

func (s *Store) Close() error { return nil }

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

var (
	_ artifactcache.BlobStore = (*Store)(nil)
	_ API                     = (*awss3.Client)(nil)
)
