package blob

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const metaOriginalName = "Original-Name"

// MinioStore keeps blobs in a MinIO (S3-compatible) bucket, with the original
// file name and MIME type carried as object metadata.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects to MinIO and ensures the bucket exists.
func NewMinioStore(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect minio: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &MinioStore{client: client, bucket: bucket}, nil
}

// Put uploads a blob under a fresh opaque id.
func (s *MinioStore) Put(ctx context.Context, r io.Reader, info Info) (string, error) {
	id := uuid.NewString()
	_, err := s.client.PutObject(ctx, s.bucket, id, r, info.Size, minio.PutObjectOptions{
		ContentType:  info.MimeType,
		UserMetadata: map[string]string{metaOriginalName: info.OriginalName},
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return id, nil
}

// Get opens a blob for streaming and returns its metadata.
func (s *MinioStore) Get(ctx context.Context, id string) (io.ReadCloser, Info, error) {
	stat, err := s.client.StatObject(ctx, s.bucket, id, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, Info{}, ErrNotFound
		}
		return nil, Info{}, fmt.Errorf("stat object: %w", err)
	}

	obj, err := s.client.GetObject(ctx, s.bucket, id, minio.GetObjectOptions{})
	if err != nil {
		return nil, Info{}, fmt.Errorf("get object: %w", err)
	}

	return obj, Info{
		ID:           id,
		OriginalName: stat.UserMetadata[metaOriginalName],
		MimeType:     stat.ContentType,
		Size:         stat.Size,
	}, nil
}

// Remove deletes a blob; used for best-effort orphan cleanup.
func (s *MinioStore) Remove(ctx context.Context, id string) error {
	return s.client.RemoveObject(ctx, s.bucket, id, minio.RemoveObjectOptions{})
}
