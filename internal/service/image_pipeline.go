package service

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/cutreview-api/internal/models"
	appErrors "github.com/noah-isme/cutreview-api/pkg/errors"
)

type imageHost interface {
	Upload(ctx context.Context, data []byte, filename, contentType string) (string, error)
}

// ImageUpload is one attachment received from a client.
type ImageUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ImagePipelineConfig holds the attachment limits.
type ImagePipelineConfig struct {
	MaxFileSize  int64
	AllowedMIMEs []string
	MaxPerItem   int
}

// ImagePipeline validates attachments and uploads them to the image host.
type ImagePipeline struct {
	host    imageHost
	cfg     ImagePipelineConfig
	mimeSet map[string]struct{}
	metrics *MetricsService
	logger  *zap.Logger
}

// NewImagePipeline constructs the pipeline with defaults of 5 MiB, jpeg/png/webp and 4 images per item.
func NewImagePipeline(host imageHost, cfg ImagePipelineConfig, metrics *MetricsService, logger *zap.Logger) *ImagePipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 5 * 1024 * 1024
	}
	if len(cfg.AllowedMIMEs) == 0 {
		cfg.AllowedMIMEs = []string{"image/jpeg", "image/png", "image/webp"}
	}
	if cfg.MaxPerItem <= 0 || cfg.MaxPerItem > models.MaxImagesPerItem {
		cfg.MaxPerItem = models.MaxImagesPerItem
	}
	mimeSet := make(map[string]struct{}, len(cfg.AllowedMIMEs))
	for _, mt := range cfg.AllowedMIMEs {
		mimeSet[strings.ToLower(mt)] = struct{}{}
	}
	return &ImagePipeline{host: host, cfg: cfg, mimeSet: mimeSet, metrics: metrics, logger: logger}
}

// Validate checks a batch against the limits. keptCount is the number of images the
// item already carries and keeps.
func (p *ImagePipeline) Validate(keptCount int, files []ImageUpload) error {
	if keptCount+len(files) > p.cfg.MaxPerItem {
		return appErrors.WithDetails(appErrors.ErrValidation,
			fmt.Sprintf("at most %d images per item, got %d", p.cfg.MaxPerItem, keptCount+len(files)),
			map[string]interface{}{"limit": p.cfg.MaxPerItem})
	}
	for i := range files {
		if err := p.validateFile(&files[i]); err != nil {
			return err
		}
	}
	return nil
}

func (p *ImagePipeline) validateFile(file *ImageUpload) error {
	name := file.Filename
	if name == "" {
		name = "image"
	}
	if len(file.Data) == 0 {
		return fileError(name, "is empty")
	}
	if int64(len(file.Data)) > p.cfg.MaxFileSize {
		return fileError(name, fmt.Sprintf("exceeds %d bytes limit", p.cfg.MaxFileSize))
	}
	contentType := normalizeContentType(file.ContentType)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = normalizeContentType(http.DetectContentType(file.Data))
	}
	if _, ok := p.mimeSet[contentType]; !ok {
		return fileError(name, fmt.Sprintf("has unsupported type %s", contentType))
	}
	file.ContentType = contentType
	return nil
}

func fileError(name, problem string) error {
	return appErrors.WithDetails(appErrors.ErrValidation,
		fmt.Sprintf("file %s %s", name, problem),
		map[string]interface{}{"file": name})
}

func normalizeContentType(raw string) string {
	if raw == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	return strings.ToLower(mediaType)
}

// UploadBatch validates files and uploads them concurrently, returning URLs in input order.
// Nothing is uploaded when validation fails. When one upload fails the batch fails; images
// that already reached the host stay there and are logged as orphaned.
func (p *ImagePipeline) UploadBatch(ctx context.Context, keptCount int, files []ImageUpload) ([]string, error) {
	if len(files) == 0 {
		return nil, nil
	}
	if err := p.Validate(keptCount, files); err != nil {
		return nil, err
	}

	urls := make([]string, len(files))
	var (
		mu       sync.Mutex
		uploaded []string
	)
	group, groupCtx := errgroup.WithContext(ctx)
	for i := range files {
		i, file := i, files[i]
		group.Go(func() error {
			url, err := p.host.Upload(groupCtx, file.Data, file.Filename, file.ContentType)
			if err != nil {
				return fmt.Errorf("upload %s: %w", file.Filename, err)
			}
			urls[i] = url
			mu.Lock()
			uploaded = append(uploaded, url)
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		p.metrics.RecordImageUploads("failed", len(files)-len(uploaded))
		p.metrics.RecordImageUploads("ok", len(uploaded))
		if len(uploaded) > 0 {
			p.metrics.RecordOrphanedImages(len(uploaded))
			p.logger.Warn("orphaned_images",
				zap.Strings("urls", uploaded),
				zap.Int("batch_size", len(files)),
				zap.Error(err))
		}
		return nil, appErrors.Upstream(err, "image upload failed")
	}
	p.metrics.RecordImageUploads("ok", len(files))
	return urls, nil
}

// ReportOrphaned logs images that reached the host for a mutation that was then not saved.
func (p *ImagePipeline) ReportOrphaned(urls []string, cause error) {
	if p == nil || len(urls) == 0 {
		return
	}
	p.metrics.RecordOrphanedImages(len(urls))
	p.logger.Warn("orphaned_images", zap.Strings("urls", urls), zap.Error(cause))
}
