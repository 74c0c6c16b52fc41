package s3kv

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/querydesk/querydesk/internal/kv"
)

// minioBackend adapts the minio SDK to the objectClient surface.
type minioBackend struct {
	api *minio.Client
}

func newMinioBackend(cfg Config) (*minioBackend, error) {
	host, secure, err := parseEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	api, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &minioBackend{api: api}, nil
}

// parseEndpoint accepts either a bare host:port or a full URL. A https URL
// forces TLS regardless of the configured flag.
func parseEndpoint(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("s3 endpoint is required")
	}
	if !strings.Contains(raw, "://") {
		return raw, useSSL, nil
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse endpoint URL: %w", err)
	}
	if parsed.Host == "" {
		return "", false, fmt.Errorf("endpoint %q has no host", raw)
	}
	switch parsed.Scheme {
	case "https":
		return parsed.Host, true, nil
	case "http":
		return parsed.Host, useSSL, nil
	default:
		return "", false, fmt.Errorf("endpoint scheme %q is not supported", parsed.Scheme)
	}
}

func (m *minioBackend) Put(ctx context.Context, bucket, key string, value []byte) error {
	opts := minio.PutObjectOptions{ContentType: "application/octet-stream"}
	_, err := m.api.PutObject(ctx, bucket, key, bytes.NewReader(value), int64(len(value)), opts)
	return asKVErr(err)
}

func (m *minioBackend) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	object, err := m.api.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, asKVErr(err)
	}
	defer func() { _ = object.Close() }()

	value, err := io.ReadAll(object)
	if err != nil {
		return nil, asKVErr(err)
	}
	return value, nil
}

func (m *minioBackend) Delete(ctx context.Context, bucket, key string) error {
	return asKVErr(m.api.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}))
}

func (m *minioBackend) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	opts := minio.ListObjectsOptions{Recursive: true}
	if prefix != "" {
		opts.Prefix = prefix + "/"
	}
	var keys []string
	for object := range m.api.ListObjects(ctx, bucket, opts) {
		if object.Err != nil {
			return nil, asKVErr(object.Err)
		}
		keys = append(keys, object.Key)
	}
	return keys, nil
}

func (m *minioBackend) BucketExists(ctx context.Context, bucket string) (bool, error) {
	exists, err := m.api.BucketExists(ctx, bucket)
	return exists, asKVErr(err)
}

func (m *minioBackend) CreateBucket(ctx context.Context, bucket, region string) error {
	return asKVErr(m.api.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}))
}

// asKVErr maps the SDK's missing-object responses onto kv.ErrKeyNotFound
// and passes everything else through.
func asKVErr(err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return kv.ErrKeyNotFound
	}
	return err
}
