package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/cutreview-api/pkg/errors"
)

func TestImagePipelineValidate(t *testing.T) {
	pipeline := NewImagePipeline(&hostStub{}, ImagePipelineConfig{}, nil, nil)

	require.NoError(t, pipeline.Validate(2, []ImageUpload{pngUpload("a.png"), pngUpload("b.png")}))
	require.ErrorIs(t, pipeline.Validate(3, []ImageUpload{pngUpload("a.png"), pngUpload("b.png")}), appErrors.ErrValidation)
	require.ErrorIs(t, pipeline.Validate(0, []ImageUpload{{Filename: "empty.png", ContentType: "image/png"}}), appErrors.ErrValidation)

	webp := ImageUpload{Filename: "x.webp", ContentType: "image/webp; charset=binary", Data: []byte("RIFF0000WEBPVP8 ")}
	files := []ImageUpload{webp}
	require.NoError(t, pipeline.Validate(0, files))
	assert.Equal(t, "image/webp", files[0].ContentType)
}

func TestImagePipelineSniffsOctetStream(t *testing.T) {
	pipeline := NewImagePipeline(&hostStub{}, ImagePipelineConfig{}, nil, nil)

	files := []ImageUpload{{Filename: "shot", ContentType: "application/octet-stream", Data: pngUpload("p").Data}}
	require.NoError(t, pipeline.Validate(0, files))
	assert.Equal(t, "image/png", files[0].ContentType)

	gif := []ImageUpload{{Filename: "anim", Data: []byte("GIF89a\x01\x00\x01\x00")}}
	require.ErrorIs(t, pipeline.Validate(0, gif), appErrors.ErrValidation)
}

func TestImagePipelineUploadBatchKeepsOrder(t *testing.T) {
	host := &hostStub{}
	pipeline := NewImagePipeline(host, ImagePipelineConfig{MaxPerItem: 4}, NewMetricsService(), nil)

	urls, err := pipeline.UploadBatch(context.Background(), 0, []ImageUpload{pngUpload("1.png"), pngUpload("2.png"), pngUpload("3.png")})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://img.test/1.png", "https://img.test/2.png", "https://img.test/3.png"}, urls)
	assert.Equal(t, 3, host.uploads())
}

func TestImagePipelineRespectsConfiguredLimits(t *testing.T) {
	pipeline := NewImagePipeline(&hostStub{}, ImagePipelineConfig{MaxFileSize: 16, AllowedMIMEs: []string{"image/png"}, MaxPerItem: 1}, nil, nil)

	require.ErrorIs(t, pipeline.Validate(0, []ImageUpload{pngUpload("big.png")}), appErrors.ErrValidation)
	small := ImageUpload{Filename: "s.png", ContentType: "image/png", Data: []byte("\x89PNG\r\n\x1a\n")}
	require.NoError(t, pipeline.Validate(0, []ImageUpload{small}))
	require.ErrorIs(t, pipeline.Validate(1, []ImageUpload{small}), appErrors.ErrValidation)
}
