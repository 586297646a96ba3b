// Package objectstore defines blob storage with per-object metadata.
// Backends: any S3-compatible server through MinIO's client, AWS S3 through
// the AWS SDK, and an in-process map for development and tests.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"wildlens/internal/models"
)

// ErrNotFound is returned when no object exists under the requested key.
var ErrNotFound = errors.New("object not found")

// Object is a stored blob together with its attributes.
type Object struct {
	Key         string
	ContentType string
	Metadata    map[string]string
	Body        []byte
}

// Store is the set of operations the upload endpoint and the processor need.
// Metadata keys returned by Stat are lower case.
type Store interface {
	Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string, meta map[string]string) error
	Stat(ctx context.Context, bucket, key string) (map[string]string, error)
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Delete(ctx context.Context, bucket, key string) error
	PublicURL(region, bucket, key string) string
}

// New builds the backend selected by cfg.Driver.
func New(ctx context.Context, cfg models.ObjectStoreConfig) (Store, error) {
	const op = "objectstore.New"

	switch cfg.Driver {
	case "s3":
		s, err := NewS3Store(ctx, cfg.Region, cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return s, nil
	case "minio":
		s, err := NewMinioStore(ctx, cfg.Endpoint, cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken, cfg.Bucket, cfg.PublicBase, cfg.UseSSL)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return s, nil
	case "memory":
		return NewMemoryStore(cfg.PublicBase), nil
	default:
		return nil, fmt.Errorf("%s: unknown driver %q", op, cfg.Driver)
	}
}

func lowerKeys(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}
