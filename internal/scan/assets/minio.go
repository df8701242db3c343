package assets

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"confirmit/internal/scan/models"
	"confirmit/pkg/requestcontext"
)

// presignExpiry bounds how long a private asset URL stays valid. The oracle
// fetches the asset within one scan, so a day is plenty.
const presignExpiry = 24 * time.Hour

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	// PublicBaseURL, when set, is joined with the object key instead of
	// presigning a GET.
	PublicBaseURL string
}

// MinioStore writes assets to an S3 compatible bucket.
type MinioStore struct {
	client        *minio.Client
	bucket        string
	publicBaseURL string
	logger        *slog.Logger
}

type MinioOption func(*MinioStore)

func WithLogger(logger *slog.Logger) MinioOption {
	return func(s *MinioStore) {
		s.logger = logger
	}
}

// NewMinio connects and makes sure the bucket exists.
func NewMinio(ctx context.Context, cfg MinioConfig, opts ...MinioOption) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	s := &MinioStore{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *MinioStore) Upload(ctx context.Context, name, contentType string, data []byte) (models.AssetRef, error) {
	key := ObjectKey(name, requestcontext.Now(ctx))
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentTypeOrDefault(contentType),
	})
	if err != nil {
		return models.AssetRef{}, fmt.Errorf("put object %s: %w", key, err)
	}
	s.logger.DebugContext(ctx, "asset uploaded", "asset_id", key, "bytes", len(data))

	if s.publicBaseURL != "" {
		return models.AssetRef{URL: s.publicBaseURL + "/" + key, AssetID: key}, nil
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, presignExpiry, url.Values{})
	if err != nil {
		return models.AssetRef{}, fmt.Errorf("presign %s: %w", key, err)
	}
	return models.AssetRef{URL: u.String(), AssetID: key}, nil
}
