package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/sclint/support-desk/internal/clock"
	"github.com/sclint/support-desk/internal/config"
	"github.com/sclint/support-desk/internal/service"
)

type objectStore interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

// MinioStore keeps ticket attachments in an S3-compatible bucket.
type MinioStore struct {
	client  objectStore
	cfg     config.StorageConfig
	clock   clock.Clock
	baseURL string
}

// NewMinioStore connects to the configured bucket endpoint.
func NewMinioStore(cfg config.StorageConfig, logger *zap.Logger) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	logger.Info("attachment storage configured", zap.String("endpoint", cfg.Endpoint), zap.String("bucket", cfg.Bucket))
	return newMinioStore(client, cfg, clock.Real()), nil
}

func newMinioStore(client objectStore, cfg config.StorageConfig, clk clock.Clock) *MinioStore {
	return &MinioStore{client: client, cfg: cfg, clock: clk, baseURL: publicBaseURL(cfg)}
}

// Store uploads the file and returns its public URL.
func (s *MinioStore) Store(ctx context.Context, upload service.Upload) (string, error) {
	if upload.Body == nil {
		return "", fmt.Errorf("empty upload")
	}
	key := s.objectKey(upload.FileName)

	size := upload.Size
	if size <= 0 {
		size = -1
	}
	contentType := upload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.PutObject(ctx, s.cfg.Bucket, key, upload.Body, size, minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "max-age=31536000",
		UserMetadata: map[string]string{"original-name": safeName(upload.FileName)},
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return s.baseURL + "/" + key, nil
}

// Remove deletes the object behind a URL returned by Store.
func (s *MinioStore) Remove(ctx context.Context, url string) error {
	key, ok := strings.CutPrefix(url, s.baseURL+"/")
	if !ok || key == "" {
		return fmt.Errorf("url %q is not in bucket %s", url, s.cfg.Bucket)
	}
	if err := s.client.RemoveObject(ctx, s.cfg.Bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}

func (s *MinioStore) objectKey(fileName string) string {
	now := s.clock.Now().UTC()
	name := uuid.NewString() + extension(fileName)
	return path.Join(strings.Trim(s.cfg.BaseFolder, "/"), now.Format("2006"), now.Format("01"), name)
}

func publicBaseURL(cfg config.StorageConfig) string {
	if cfg.PublicBaseURL != "" {
		return strings.TrimRight(cfg.PublicBaseURL, "/")
	}
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
}

func extension(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if len(ext) < 2 || len(ext) > 10 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

func safeName(fileName string) string {
	base := filepath.Base(fileName)
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e {
			return '_'
		}
		return r
	}, base)
}
