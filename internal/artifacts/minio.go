package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"clipforge/internal/config"
)

// MinioConfig holds object store connection settings.
type MinioConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	UseSSL     bool
	Bucket     string
	BasePath   string
	MaxRetries int
	Interval   time.Duration
}

// MinioConfigFrom maps the storage section of the config.
func MinioConfigFrom(cfg config.Storage) MinioConfig {
	return MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		UseSSL:    cfg.MinioUseSSL,
		Bucket:    cfg.MinioBucket,
		BasePath:  cfg.MinioBasePath,
	}
}

// MinioStore uploads artifacts to a bucket.
type MinioStore struct {
	client   *minio.Client
	bucket   string
	basePath string
	endpoint string
	scheme   string
}

// NewMinioStore connects and ensures the bucket exists, retrying with
// doubling intervals.
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("artifacts: empty minio endpoint")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("artifacts: empty minio bucket")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}

	var lastErr error
	interval := cfg.Interval
	for attempt := 0; attempt < cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("artifacts: context canceled before minio init: %w", ctx.Err())
		}
		client, err := minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.UseSSL,
		})
		if err != nil {
			lastErr = fmt.Errorf("create minio client: %w", err)
		} else if err := ensureBucket(ctx, client, cfg.Bucket); err != nil {
			lastErr = err
		} else {
			return newMinioStore(client, cfg), nil
		}

		if attempt < cfg.MaxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("artifacts: context canceled while waiting to retry minio: %w", ctx.Err())
			case <-time.After(interval):
				interval *= 2
			}
		}
	}
	return nil, fmt.Errorf("artifacts: minio init failed after %d attempts: %w", cfg.MaxRetries, lastErr)
}

func newMinioStore(client *minio.Client, cfg MinioConfig) *MinioStore {
	basePath := strings.Trim(cfg.BasePath, "/")
	if basePath != "" {
		basePath += "/"
	}
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	return &MinioStore{
		client:   client,
		bucket:   cfg.Bucket,
		basePath: basePath,
		endpoint: cfg.Endpoint,
		scheme:   scheme,
	}
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

// Name implements Store.
func (s *MinioStore) Name() string { return "minio" }

// ObjectName returns the bucket object name for key.
func (s *MinioStore) ObjectName(key string) (string, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return s.basePath + clean, nil
}

// Put implements Store.
func (s *MinioStore) Put(ctx context.Context, localPath, key string) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	objectName, err := s.ObjectName(key)
	if err != nil {
		return Artifact{}, err
	}
	file, err := os.Open(localPath)
	if err != nil {
		return Artifact{}, fmt.Errorf("artifacts: open source: %w", err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return Artifact{}, fmt.Errorf("artifacts: stat source: %w", err)
	}

	hasher := sha256.New()
	uploaded, err := s.client.PutObject(ctx, s.bucket, objectName, io.TeeReader(file, hasher), info.Size(), minio.PutObjectOptions{
		ContentType: contentType(localPath),
	})
	if err != nil {
		return Artifact{}, fmt.Errorf("artifacts: put object: %w", err)
	}
	return Artifact{
		Key:    objectName,
		URI:    fmt.Sprintf("%s://%s/%s/%s", s.scheme, s.endpoint, s.bucket, objectName),
		Size:   uploaded.Size,
		SHA256: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

func contentType(path string) string {
	switch {
	case strings.HasSuffix(path, ".mp4"):
		return "video/mp4"
	case strings.HasSuffix(path, ".ass"):
		return "text/x-ssa"
	case strings.HasSuffix(path, ".srt"):
		return "application/x-subrip"
	default:
		return "application/octet-stream"
	}
}
