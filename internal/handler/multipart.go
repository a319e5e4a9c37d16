package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/noah-isme/cutreview-api/internal/service"
	appErrors "github.com/noah-isme/cutreview-api/pkg/errors"
)

const (
	payloadField      = "payload"
	imagesField       = "images"
	indexedImagesPref = "images_"

	defaultMaxFileSize = 5 * 1024 * 1024
)

// UploadLimits bounds what handlers read from multipart bodies.
type UploadLimits struct {
	MaxFileSize int64
}

func (l UploadLimits) fileSize() int64 {
	if l.MaxFileSize <= 0 {
		return defaultMaxFileSize
	}
	return l.MaxFileSize
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

// bindPayload decodes the request body into dest. Multipart requests carry it as a
// JSON "payload" field next to the files.
func bindPayload(c *gin.Context, dest interface{}, message string) error {
	if !isMultipart(c) {
		if err := c.ShouldBindJSON(dest); err != nil {
			return bodyError(err, message)
		}
		return nil
	}
	form, err := multipartForm(c)
	if err != nil {
		return err
	}
	var raw string
	if values := form.Value[payloadField]; len(values) > 0 {
		raw = values[0]
	}
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	if err := binding.JSON.BindBody([]byte(raw), dest); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
	}
	return nil
}

// multipartForm parses the body once; gin keeps the form on the request afterwards.
func multipartForm(c *gin.Context) (*multipart.Form, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, bodyError(err, "invalid multipart body")
	}
	return form, nil
}

func bodyError(err error, message string) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return appErrors.Wrap(err, appErrors.ErrPayloadTooLarge.Code, appErrors.ErrPayloadTooLarge.Status,
			fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}

// formImages reads the files sent under "images".
func formImages(c *gin.Context, limits UploadLimits) ([]service.ImageUpload, error) {
	if !isMultipart(c) {
		return nil, nil
	}
	form, err := multipartForm(c)
	if err != nil {
		return nil, err
	}
	return readUploads(form.File[imagesField], limits.fileSize())
}

// indexedFormImages reads files sent as images_<index>, keyed by step index.
func indexedFormImages(c *gin.Context, limits UploadLimits) (map[int][]service.ImageUpload, error) {
	if !isMultipart(c) {
		return nil, nil
	}
	form, err := multipartForm(c)
	if err != nil {
		return nil, err
	}
	fields := make([]string, 0, len(form.File))
	for field := range form.File {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	out := make(map[int][]service.ImageUpload)
	for _, field := range fields {
		if !strings.HasPrefix(field, indexedImagesPref) {
			continue
		}
		index, err := strconv.Atoi(strings.TrimPrefix(field, indexedImagesPref))
		if err != nil || index < 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unexpected file field %s", field))
		}
		uploads, err := readUploads(form.File[field], limits.fileSize())
		if err != nil {
			return nil, err
		}
		out[index] = append(out[index], uploads...)
	}
	return out, nil
}

// readUploads loads each file into memory, never more than maxSize+1 bytes of it.
func readUploads(headers []*multipart.FileHeader, maxSize int64) ([]service.ImageUpload, error) {
	uploads := make([]service.ImageUpload, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > maxSize {
			return nil, fileTooLarge(fh.Filename, maxSize)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unreadable file "+fh.Filename)
		}
		data, err := io.ReadAll(io.LimitReader(f, maxSize+1))
		_ = f.Close()
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unreadable file "+fh.Filename)
		}
		if int64(len(data)) > maxSize {
			return nil, fileTooLarge(fh.Filename, maxSize)
		}
		uploads = append(uploads, service.ImageUpload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return uploads, nil
}

func fileTooLarge(name string, maxSize int64) error {
	return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s exceeds %d bytes limit", name, maxSize))
}
