// Package objstore keeps cache buckets as JSON objects in an
// S3-compatible object store (MinIO, AWS S3, R2, ...).
//
// Object storage has no compare-and-swap, so same-bucket updates are
// serialized inside this process only. The storage bucket is created on
// the first write; reads treat a missing bucket as an empty cache.
package objstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/minios-linux/doclate/store/keylock"
)

// Config describes the object store connection.
type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// Prefix is prepended to every object name. Defaults to "doclate".
	Prefix string
}

// bucketAPI is the part of the client that manages the storage bucket.
type bucketAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
}

// Store is an object-store-backed bucket store.
type Store struct {
	client     *minio.Client
	buckets    bucketAPI
	bucketName string
	region     string
	prefix     string
	locks      keylock.Locker

	// ready is set once the storage bucket is known to exist. A failed
	// check is retried by the next write.
	mu    sync.Mutex
	ready bool
}

// New validates cfg and builds the client. No network call is made
// until the first operation.
func New(cfg Config) (*Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("object store endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("object store access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("object store bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	prefix := strings.Trim(strings.TrimSpace(cfg.Prefix), "/")
	if prefix == "" {
		prefix = "doclate"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init object store client: %w", err)
	}
	return &Store{client: client, buckets: client, bucketName: bucket, region: region, prefix: prefix}, nil
}

func (s *Store) ensureBucket(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	exists, err := s.buckets.BucketExists(ctx, s.bucketName)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.buckets.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return err
		}
	}
	s.ready = true
	return nil
}

// ObjectName maps a bucket key to its object name:
// "translation-cache:v1:ab" -> "<prefix>/translation-cache/v1/ab.json".
func (s *Store) ObjectName(key string) string {
	return s.prefix + "/" + strings.ReplaceAll(key, ":", "/") + ".json"
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchBucket"
}

func (s *Store) read(ctx context.Context, key string) (map[string]string, bool, error) {
	obj, err := s.client.GetObject(ctx, s.bucketName, s.ObjectName(key), minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	bucket := map[string]string{}
	if err := json.Unmarshal(data, &bucket); err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", s.ObjectName(key), err)
	}
	return bucket, true, nil
}

func (s *Store) write(ctx context.Context, key string, bucket map[string]string) error {
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	data, err := json.Marshal(bucket)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, s.bucketName, s.ObjectName(key), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	return err
}

func (s *Store) Get(ctx context.Context, key string) (map[string]string, bool, error) {
	return s.read(ctx, key)
}

func (s *Store) Update(ctx context.Context, key string, fn func(map[string]string)) error {
	unlock := s.locks.Lock(key)
	defer unlock()

	bucket, ok, err := s.read(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		bucket = map[string]string{}
	}
	fn(bucket)
	return s.write(ctx, key, bucket)
}

func (s *Store) Reset(ctx context.Context, key string) (bool, error) {
	unlock := s.locks.Lock(key)
	defer unlock()

	bucket, ok, err := s.read(ctx, key)
	if err != nil || !ok || len(bucket) == 0 {
		return false, err
	}
	if err := s.write(ctx, key, map[string]string{}); err != nil {
		return false, err
	}
	return true, nil
}
