package imagehost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"
)

// HTTPHost posts images to an imgbb-compatible upload endpoint.
type HTTPHost struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

type uploadResponse struct {
	Success bool `json:"success"`
	Data    struct {
		URL string `json:"url"`
	} `json:"data"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewHTTPHost constructs the driver. The API key is sent as the key query parameter.
func NewHTTPHost(endpoint, apiKey string, timeout time.Duration) (*HTTPHost, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("image host endpoint required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("image host api key required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPHost{endpoint: endpoint, apiKey: apiKey, client: &http.Client{Timeout: timeout}}, nil
}

// Upload sends data as the image form field.
func (h *HTTPHost) Upload(ctx context.Context, data []byte, filename, contentType string) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", ObjectName(filename, contentType))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart body: %w", err)
	}

	target, err := url.Parse(h.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	query := target.Query()
	query.Set("key", h.apiKey)
	target.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), body)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read upload response: %w", err)
	}
	var payload uploadResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("decode upload response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= http.StatusBadRequest || !payload.Success {
		msg := payload.Error.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", fmt.Errorf("image host rejected upload (status %d): %s", resp.StatusCode, msg)
	}
	if payload.Data.URL == "" {
		return "", fmt.Errorf("image host returned no url")
	}
	return payload.Data.URL, nil
}
