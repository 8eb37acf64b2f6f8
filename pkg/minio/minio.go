package minio

import (
	"bytes"
	"context"
	"encoding/json"

	"moralduel-controlplane/pkg/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Client = fx.Module("minio.client", fx.Provide(registerStorage))

// Storage uploads archive documents to object storage.
type Storage interface {
	Enabled() bool
	PutJSON(ctx context.Context, key string, v any) error
}

func registerStorage(lc fx.Lifecycle, c *config.Config) (Storage, error) {
	if c.Minio.Endpoint == "" {
		zap.L().Info("MinIO not configured, archiving disabled")
		return Noop{}, nil
	}

	client, err := minio.New(c.Minio.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Minio.AccessKey, c.Minio.SecretKey, ""),
		Secure: c.Minio.Secure,
	})
	if err != nil {
		return nil, err
	}

	s := &bucketStorage{client: client, bucket: c.Minio.BucketName}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return s.ensureBucket(ctx)
		},
	})

	return s, nil
}

type bucketStorage struct {
	client *minio.Client
	bucket string
}

func (s *bucketStorage) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		zap.L().Error("failed to check if bucket exists", zap.String("bucket", s.bucket), zap.Error(err))
		return err
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return err
		}
	}
	zap.L().Info("MinIO client initialized", zap.String("bucket", s.bucket), zap.Bool("bucketExists", exists))
	return nil
}

func (s *bucketStorage) Enabled() bool { return true }

func (s *bucketStorage) PutJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(b), int64(len(b)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	return err
}

// Noop discards uploads.
type Noop struct{}

func (Noop) Enabled() bool { return false }

func (Noop) PutJSON(ctx context.Context, key string, v any) error { return nil }
