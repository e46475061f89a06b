package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/sos-villages/signalement/internal/shared/config"
	"github.com/sos-villages/signalement/internal/shared/errors"
)

// MinIOStore implements FileStore on a private MinIO bucket
type MinIOStore struct {
	client *minio.Client
	bucket string
	logger *zap.Logger
}

// NewMinIOStore connects to MinIO and creates the bucket when missing
func NewMinIOStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		logger.Info("created storage bucket", zap.String("bucket", cfg.Bucket))
	}

	return &MinIOStore{client: client, bucket: cfg.Bucket, logger: logger.Named("storage")}, nil
}

// Put uploads a payload under key
func (s *MinIOStore) Put(ctx context.Context, key string, up Upload) (Object, error) {
	info, err := s.client.PutObject(ctx, s.bucket, key, up.Body, up.Size, minio.PutObjectOptions{
		ContentType: up.MimeType,
		UserMetadata: map[string]string{
			"original-name": SafeName(up.FileName),
		},
	})
	if err != nil {
		return Object{}, errors.Wrap(err, "failed to upload file")
	}

	return Object{Key: key, FileName: up.FileName, MimeType: up.MimeType, Size: info.Size}, nil
}

// Open streams the object at key
func (s *MinIOStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open file")
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, errors.NotFound("file", key)
		}
		return nil, errors.Wrap(err, "failed to stat file")
	}
	return obj, nil
}

// Remove deletes the object at key
func (s *MinIOStore) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrap(err, "failed to remove file")
	}
	return nil
}
