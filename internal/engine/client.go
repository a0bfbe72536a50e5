// Package engine is the client for the external biometric match engine. The
// engine is a black box: given an image reference it eventually returns zero
// or more candidate matches with confidence scores, or fails. This client
// adds the reliability wrapper: per-call timeout, bounded retries with
// backoff, a circuit breaker, and schema validation of the response body.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/qri-io/jsonschema"

	"github.com/sightlinehq/sightline/internal/config"
	"github.com/sightlinehq/sightline/internal/models"
)

var ErrCircuitOpen = errors.New("engine circuit open")

// resultSchema guards against the engine returning a shape we do not
// understand; a payload that fails validation is treated as an engine error.
const resultSchema = `{
	"type": "object",
	"required": ["matches"],
	"properties": {
		"matches": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["url", "confidence"],
				"properties": {
					"url": {"type": "string"},
					"confidence": {"type": "number"}
				}
			}
		}
	}
}`

type analyzeRequest struct {
	ImageURL string `json:"image_to_verify_url"`
}

type analyzeResponse struct {
	Matches []models.Match `json:"matches"`
}

// Client wraps the match engine HTTP API with retries, timeout, and a
// circuit breaker.
type Client struct {
	client *resty.Client
	cfg    config.EngineConfig
	schema *jsonschema.Schema
	logger *slog.Logger

	// circuit breaker state
	failures  int32
	openUntil int64 // unix nano
}

func NewClient(cfg config.EngineConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.CircuitFailureThreshold <= 0 {
		cfg.CircuitFailureThreshold = 5
	}

	rs := &jsonschema.Schema{}
	if err := json.Unmarshal([]byte(resultSchema), rs); err != nil {
		return nil, fmt.Errorf("compile result schema: %w", err)
	}

	c := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-FBI-Key", cfg.APIKey).
		SetTimeout(cfg.Timeout)

	logger.Info("engine client created", slog.String("base_url", cfg.BaseURL), slog.Duration("timeout", cfg.Timeout))
	return &Client{client: c, cfg: cfg, schema: rs, logger: logger}, nil
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.failures) < int32(c.cfg.CircuitFailureThreshold) {
		return false
	}
	if time.Now().UnixNano() < atomic.LoadInt64(&c.openUntil) {
		return true
	}
	// half-open: reset failures and allow a request
	atomic.StoreInt32(&c.failures, 0)
	return false
}

func (c *Client) recordFailure() {
	v := atomic.AddInt32(&c.failures, 1)
	if v >= int32(c.cfg.CircuitFailureThreshold) {
		atomic.StoreInt64(&c.openUntil, time.Now().Add(c.cfg.CircuitReset).UnixNano())
	}
}

// Analyze submits the image reference and returns candidate matches in the
// order the engine produced them. All failure modes (transport, non-2xx,
// invalid payload, open circuit, exhausted retries) wrap ErrMatchEngine.
func (c *Client) Analyze(ctx context.Context, imageURL string) ([]models.Match, error) {
	if imageURL == "" {
		return nil, fmt.Errorf("%w: empty image reference", models.ErrMatchEngine)
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if c.isCircuitOpen() {
			return nil, fmt.Errorf("%w: %w", models.ErrMatchEngine, ErrCircuitOpen)
		}
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", models.ErrMatchEngine, ctx.Err())
			case <-time.After(c.cfg.Backoff * time.Duration(attempt)):
			}
		}

		matches, err := c.analyzeOnce(ctx, imageURL)
		if err == nil {
			atomic.StoreInt32(&c.failures, 0)
			return matches, nil
		}
		lastErr = err
		c.recordFailure()
		c.logger.Warn("engine analyze attempt failed", "attempt", attempt, "err", err)

		if ctx.Err() != nil {
			break
		}
	}

	return nil, fmt.Errorf("%w: %v", models.ErrMatchEngine, lastErr)
}

func (c *Client) analyzeOnce(ctx context.Context, imageURL string) ([]models.Match, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(&analyzeRequest{ImageURL: imageURL}).
		Post("/fast-search")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("engine returned status %d", resp.StatusCode())
	}

	body := resp.Body()
	keyErrs, err := c.schema.ValidateBytes(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("validate response: %w", err)
	}
	if len(keyErrs) > 0 {
		return nil, fmt.Errorf("engine response failed schema validation: %v", keyErrs[0])
	}

	var out analyzeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.Matches, nil
}
