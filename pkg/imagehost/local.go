package imagehost

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalHost writes images under a directory served as static files. Development only.
type LocalHost struct {
	baseDir string
	baseURL string
}

// NewLocalHost ensures the directory exists.
func NewLocalHost(baseDir, baseURL string) (*LocalHost, error) {
	if baseDir == "" {
		baseDir = "./uploads"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &LocalHost{baseDir: baseDir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Dir returns the directory holding uploaded files.
func (h *LocalHost) Dir() string {
	return h.baseDir
}

// Upload writes data to a generated filename.
func (h *LocalHost) Upload(ctx context.Context, data []byte, filename, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := ObjectName(filename, contentType)
	if err := os.WriteFile(filepath.Join(h.baseDir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write image file: %w", err)
	}
	return h.baseURL + "/" + name, nil
}
