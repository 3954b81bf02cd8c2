package storage

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"twine.work/twineerr"
)

// ObjectStoreConfig configures the S3-compatible endpoint the index/cache
// writer (C7) stores canonical serialised graphs in.
type ObjectStoreConfig struct {
	Endpoint  string
	Access    string
	Secret    string
	Bucket    string
	Region    string
	UsePathStyle bool
}

// ObjectStore is the content-addressed store s3-get/s3-put round-trip
// through, keyed by graph URI. Built over the S3Client interface so
// tests can substitute MockS3Client, matching the dependency-injection
// shape of the reference codebase's storage package.
type ObjectStore struct {
	client S3Client
	bucket string
}

// NewObjectStore builds a real AWS SDK v2 backed object store for cfg.
// The SDK performs its own request signing (SigV4); a hand-rolled
// AWS-v2/HMAC-SHA1 string-to-sign is not reimplemented here.
func NewObjectStore(ctx context.Context, cfg ObjectStoreConfig) (*ObjectStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.Access, cfg.Secret, "")),
	)
	if err != nil {
		return nil, twineerr.New(twineerr.BadConfig, "storage.NewObjectStore", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &ObjectStore{client: client, bucket: cfg.Bucket}, nil
}

// NewObjectStoreWithClient wires an arbitrary S3Client (e.g. MockS3Client in tests).
func NewObjectStoreWithClient(client S3Client, bucket string) *ObjectStore {
	return &ObjectStore{client: client, bucket: bucket}
}

// Get fetches the blob stored under key. A missing object (404/403) is
// reported via ok=false and a nil error, matching the s3-get contract in
// §4.3: "on 404/403 populates graph.prior with empty; on other non-2xx fails."
func (s *ObjectStore) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		var nsk *types.NoSuchKey
		var nfd *types.NotFound
		var re *awshttp.ResponseError
		if errors.As(err, &nsk) || errors.As(err, &nfd) ||
			(errors.As(err, &re) && (re.HTTPStatusCode() == 403 || re.HTTPStatusCode() == 404)) {
			return nil, false, nil
		}
		return nil, false, twineerr.New(twineerr.UpstreamFailure, "storage.Get", err)
	}
	defer out.Body.Close()
	data, err = io.ReadAll(out.Body)
	if err != nil {
		return nil, false, twineerr.New(twineerr.UpstreamFailure, "storage.Get", err)
	}
	return data, true, nil
}

// Put stores data under key, overwriting any existing object.
func (s *ObjectStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return twineerr.New(twineerr.UpstreamFailure, "storage.Put", err)
	}
	return nil
}

// EnsureBucket creates the configured bucket if it does not already exist.
func (s *ObjectStore) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return twineerr.New(twineerr.UpstreamFailure, "storage.EnsureBucket", err)
	}
	return nil
}
