package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sightlinehq/sightline/internal/config"
	"github.com/sightlinehq/sightline/internal/models"
)

func testConfig(baseURL string) config.EngineConfig {
	return config.EngineConfig{
		BaseURL:                 baseURL,
		APIKey:                  "test-key",
		Timeout:                 2 * time.Second,
		Retries:                 0,
		Backoff:                 time.Millisecond,
		CircuitFailureThreshold: 3,
		CircuitReset:            time.Minute,
	}
}

func TestAnalyzeSuccess(t *testing.T) {
	var gotKey, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/fast-search", r.URL.Path)
		gotKey = r.Header.Get("X-FBI-Key")
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotBody = req["image_to_verify_url"]

		json.NewEncoder(w).Encode(map[string]any{
			"matches": []map[string]any{
				{"url": "candidate-1", "confidence": 93.4},
				{"url": "candidate-2", "confidence": 41.0},
			},
		})
	}))
	defer srv.Close()

	c, err := NewClient(testConfig(srv.URL), nil)
	require.NoError(t, err)

	matches, err := c.Analyze(context.Background(), "http://media.local/img.jpg")
	require.NoError(t, err)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "http://media.local/img.jpg", gotBody)
	require.Len(t, matches, 2)
	assert.Equal(t, models.Match{URL: "candidate-1", Confidence: 93.4}, matches[0])
	assert.Equal(t, models.Match{URL: "candidate-2", Confidence: 41.0}, matches[1])
}

func TestAnalyzeEmptyImageURL(t *testing.T) {
	c, err := NewClient(testConfig("http://unused.local"), nil)
	require.NoError(t, err)

	_, err = c.Analyze(context.Background(), "")
	assert.ErrorIs(t, err, models.ErrMatchEngine)
}

func TestAnalyzeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := NewClient(testConfig(srv.URL), nil)
	require.NoError(t, err)

	_, err = c.Analyze(context.Background(), "http://media.local/img.jpg")
	assert.ErrorIs(t, err, models.ErrMatchEngine)
}

func TestAnalyzeRejectsMalformedPayload(t *testing.T) {
	bodies := []string{
		`{"results": []}`,
		`{"matches": [{"url": 42, "confidence": "high"}]}`,
		`{"matches": [{"url": "x"}]}`,
	}
	var i atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(bodies[i.Load()]))
	}))
	defer srv.Close()

	// high threshold so the circuit stays closed across cases
	cfg := testConfig(srv.URL)
	cfg.CircuitFailureThreshold = 100
	c, err := NewClient(cfg, nil)
	require.NoError(t, err)

	for idx := range bodies {
		i.Store(int32(idx))
		_, err := c.Analyze(context.Background(), "http://media.local/img.jpg")
		assert.ErrorIs(t, err, models.ErrMatchEngine, bodies[idx])
	}
}

func TestAnalyzeRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"matches": []}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Retries = 2
	c, err := NewClient(cfg, nil)
	require.NoError(t, err)

	matches, err := c.Analyze(context.Background(), "http://media.local/img.jpg")
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCircuitOpensAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := NewClient(testConfig(srv.URL), nil)
	require.NoError(t, err)

	ctx := context.Background()
	for n := 0; n < 3; n++ {
		_, err := c.Analyze(ctx, "http://media.local/img.jpg")
		require.ErrorIs(t, err, models.ErrMatchEngine)
	}
	hitsBefore := calls.Load()

	// circuit is now open: the engine is not contacted at all
	_, err = c.Analyze(ctx, "http://media.local/img.jpg")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, hitsBefore, calls.Load())
}

func TestCircuitHalfOpensAfterReset(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"matches": []}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.CircuitReset = 10 * time.Millisecond
	c, err := NewClient(cfg, nil)
	require.NoError(t, err)

	ctx := context.Background()
	for n := 0; n < 3; n++ {
		_, _ = c.Analyze(ctx, "http://media.local/img.jpg")
	}
	_, err = c.Analyze(ctx, "http://media.local/img.jpg")
	require.ErrorIs(t, err, ErrCircuitOpen)

	time.Sleep(20 * time.Millisecond)
	_, err = c.Analyze(ctx, "http://media.local/img.jpg")
	assert.NoError(t, err, "a request is allowed through after the reset window")
}
