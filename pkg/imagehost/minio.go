package imagehost

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/noah-isme/cutreview-api/pkg/config"
)

// MinioHost stores images in a public-read S3-compatible bucket.
type MinioHost struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

// NewMinioHost connects to the bucket. Objects are served from baseURL/bucket/name;
// without a base URL the endpoint itself is used.
func NewMinioHost(cfg config.MinioConfig, baseURL string) (*MinioHost, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("minio endpoint and bucket required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	if baseURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		baseURL = scheme + "://" + cfg.Endpoint
	}
	return &MinioHost{client: client, bucket: cfg.Bucket, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Upload puts data under a generated object name.
func (h *MinioHost) Upload(ctx context.Context, data []byte, filename, contentType string) (string, error) {
	name := ObjectName(filename, contentType)
	_, err := h.client.PutObject(ctx, h.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", name, err)
	}
	return h.ObjectURL(name), nil
}

// ObjectURL returns the public URL of an object in the bucket.
func (h *MinioHost) ObjectURL(name string) string {
	return h.baseURL + "/" + h.bucket + "/" + name
}
