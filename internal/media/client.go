// Package media is the client for the object-storage service that persists
// evidence images and returns a durable public URL. The core never stores
// image bytes itself; it only holds the reference this client returns.
package media

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/sightlinehq/sightline/internal/config"
	"github.com/sightlinehq/sightline/internal/models"
)

type Client struct {
	client *resty.Client
}

type uploadResponse struct {
	URL string `json:"url"`
}

func NewClient(cfg config.MediaConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("X-Api-Key", cfg.APIKey).
		SetTimeout(timeout)

	return &Client{client: c}
}

// Upload stores the image bytes and returns the durable URL. Any transport
// error or non-2xx response maps to ErrStorageUnavailable so callers can
// abort the submission before a report row exists.
func (c *Client) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", models.Validationf("image", "empty file")
	}

	var out uploadResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetFileReader("file", uuid.NewString()+extensionFor(contentType), bytes.NewReader(data)).
		SetResult(&out).
		Post("/upload")
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: upload returned status %d", models.ErrStorageUnavailable, resp.StatusCode())
	}
	if out.URL == "" {
		return "", fmt.Errorf("%w: upload response missing url", models.ErrStorageUnavailable)
	}

	return out.URL, nil
}

func extensionFor(contentType string) string {
	exts, err := mime.ExtensionsByType(contentType)
	if err != nil || len(exts) == 0 {
		return ".bin"
	}
	return exts[0]
}
