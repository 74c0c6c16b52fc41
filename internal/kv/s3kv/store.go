// Package s3kv stores workbench blobs in an S3-compatible object store,
// one object per key. A containerized MinIO works as well as real S3.
package s3kv

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/querydesk/querydesk/internal/kv"
)

type Config struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

// objectClient is the slice of the S3 API the store uses. Production wires
// the minio implementation; tests substitute a fake.
type objectClient interface {
	Put(ctx context.Context, bucket, key string, value []byte) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Delete(ctx context.Context, bucket, key string) error
	List(ctx context.Context, bucket, prefix string) ([]string, error)
	BucketExists(ctx context.Context, bucket string) (bool, error)
	CreateBucket(ctx context.Context, bucket, region string) error
}

type Store struct {
	client objectClient
	bucket string
	prefix string
}

var _ kv.Store = (*Store)(nil)

func New(ctx context.Context, cfg Config) (*Store, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	backend, err := newMinioBackend(cfg)
	if err != nil {
		return nil, err
	}
	store := &Store{client: backend, bucket: bucket, prefix: normalizePrefix(cfg.Prefix)}
	if cfg.AutoCreateBucket {
		if err := store.ensureBucket(ctx, strings.TrimSpace(cfg.Region)); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func NewWithClient(bucket, prefix string, client objectClient) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	return &Store{client: client, bucket: bucket, prefix: normalizePrefix(prefix)}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	objectKey, err := s.normalizeKey(key)
	if err != nil {
		return nil, err
	}
	value, err := s.client.Get(ctx, s.bucket, objectKey)
	switch {
	case errors.Is(err, kv.ErrKeyNotFound):
		return nil, kv.ErrKeyNotFound
	case err != nil:
		return nil, fmt.Errorf("read object %q: %w", objectKey, err)
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	objectKey, err := s.normalizeKey(key)
	if err != nil {
		return err
	}
	if err := s.client.Put(ctx, s.bucket, objectKey, value); err != nil {
		return fmt.Errorf("write object %q: %w", objectKey, err)
	}
	return nil
}

// Delete removes a key. A missing object counts as deleted.
func (s *Store) Delete(ctx context.Context, key string) error {
	objectKey, err := s.normalizeKey(key)
	if err != nil {
		return err
	}
	switch err := s.client.Delete(ctx, s.bucket, objectKey); {
	case errors.Is(err, kv.ErrKeyNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("delete object %q: %w", objectKey, err)
	}
	return nil
}

// ListKeys lists every object under the store prefix and returns keys with
// the prefix stripped, so callers see the same namespace they wrote.
func (s *Store) ListKeys(ctx context.Context) ([]string, error) {
	objectKeys, err := s.client.List(ctx, s.bucket, s.prefix)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	keys := make([]string, 0, len(objectKeys))
	for _, objectKey := range objectKeys {
		key := objectKey
		if s.prefix != "" {
			key = strings.TrimPrefix(strings.TrimPrefix(key, s.prefix), "/")
		}
		if key == "" {
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *Store) ensureBucket(ctx context.Context, region string) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.CreateBucket(ctx, s.bucket, region); err != nil {
			return fmt.Errorf("create bucket %q: %w", s.bucket, err)
		}
	}
	return nil
}

// normalizeKey prepends the store prefix and rejects keys whose segments
// would escape it.
func (s *Store) normalizeKey(key string) (string, error) {
	key = strings.Trim(strings.TrimSpace(key), "/")
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}
	for _, segment := range strings.Split(key, "/") {
		switch segment {
		case "", ".", "..":
			return "", fmt.Errorf("invalid object key %q", key)
		}
	}
	if s.prefix == "" {
		return key, nil
	}
	return s.prefix + "/" + key, nil
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return ""
	}
	segments := strings.Split(prefix, "/")
	kept := segments[:0]
	for _, segment := range segments {
		if segment == "" || segment == "." || segment == ".." {
			continue
		}
		kept = append(kept, segment)
	}
	return strings.Join(kept, "/")
}
