package artifacts

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOSource reads artifacts from an S3 compatible bucket, optionally under a prefix
type MinIOSource struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinIOSource creates the client. No request is made until an artifact is read;
// use Ping to check connectivity.
func NewMinIOSource(endpoint, accessKey, secretKey, bucket, prefix string, useSSL bool) (*MinIOSource, error) {
	if bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}

	c, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinIOSource{client: c, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

// Ping checks that the bucket is reachable and exists
func (s *MinIOSource) Ping(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to reach bucket %s: %w", s.bucket, err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", s.bucket)
	}
	return nil
}

func (s *MinIOSource) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

func (s *MinIOSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(name), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}

	// GetObject is lazy; Stat surfaces a missing object before decoding starts
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, err
	}
	return obj, nil
}

func (s *MinIOSource) Stat(ctx context.Context, name string) (Info, error) {
	oi, err := s.client.StatObject(ctx, s.bucket, s.key(name), minio.StatObjectOptions{})
	if err != nil {
		return Info{}, err
	}

	return Info{Name: name, Size: oi.Size, ModTime: oi.LastModified, ETag: oi.ETag}, nil
}

func (s *MinIOSource) Describe(name string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, s.key(name))
}
