// Package imagehost uploads review attachments to the configured image host
// and returns their public URLs.
package imagehost

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/cutreview-api/pkg/config"
)

// Host stores one image and returns its durable public URL.
type Host interface {
	Upload(ctx context.Context, data []byte, filename, contentType string) (string, error)
}

// New builds the driver selected by cfg.Driver.
func New(cfg config.ImageHostConfig) (Host, error) {
	switch cfg.Driver {
	case config.ImageHostHTTP:
		return NewHTTPHost(cfg.Endpoint, cfg.APIKey, cfg.Timeout)
	case config.ImageHostMinio:
		return NewMinioHost(cfg.Minio, cfg.PublicBaseURL)
	case config.ImageHostLocal, "":
		return NewLocalHost(cfg.LocalDir, cfg.PublicBaseURL)
	default:
		return nil, fmt.Errorf("unknown image host driver %q", cfg.Driver)
	}
}

// ObjectName returns a collision-free name that keeps only the extension of the
// client supplied filename.
func ObjectName(filename, contentType string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" || len(ext) > 6 {
		ext = extensionFor(contentType)
	}
	return uuid.NewString() + ext
}

func extensionFor(contentType string) string {
	switch strings.ToLower(contentType) {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}
