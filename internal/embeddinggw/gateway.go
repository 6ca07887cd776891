package embeddinggw

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pgvector/pgvector-go"

	"github.com/synapsedb/synapse/internal/apperr"
	"github.com/synapsedb/synapse/internal/logging"
)

var log = logging.GetLogger("embeddinggw")

// Config configures the gateway's target service and retry behaviour
// (§4.5, §4.7 "Connection Pool & Config").
type Config struct {
	URL        string
	Model      string
	Dimension  int
	Timeout    time.Duration
	MaxRetries int
}

// DefaultConfig mirrors the engine-wide embedding defaults.
func DefaultConfig() Config {
	return Config{
		URL:        "http://localhost:11434/api/embeddings",
		Model:      "nomic-embed-text",
		Dimension:  768,
		Timeout:    60 * time.Second,
		MaxRetries: 5,
	}
}

// Gateway is the single async embed operation, wrapped with bounded
// exponential backoff over transient failures (§4.5).
type Gateway struct {
	cfg        Config
	httpClient *http.Client
}

// New constructs a Gateway from cfg, applying DefaultConfig for any
// zero-valued field.
func New(cfg Config) *Gateway {
	def := DefaultConfig()
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = def.Dimension
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	return &Gateway{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed generates a vector of the gateway's configured dimension for text.
// Transient errors (network failures, 5xx responses) are retried with
// bounded exponential backoff up to MaxRetries attempts; retries stop
// immediately on ctx cancellation, a malformed response, or a wrong-sized
// embedding (none of those are transient). A hard failure after retries
// exhausted surfaces as EmbeddingUnavailable; context deadline exceeded
// surfaces as EmbeddingTimeout.
func (g *Gateway) Embed(ctx context.Context, text string) (*pgvector.Vector, error) {
	var result []float32

	operation := func() error {
		vec, err := g.embedOnce(ctx, text)
		if err != nil {
			if isPermanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = vec
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(g.cfg.MaxRetries))
	err := backoff.Retry(operation, backoff.WithContext(policy, ctx))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apperr.EmbeddingTimeoutf(err, "embedding request timed out after %s", g.cfg.Timeout)
		}
		return nil, apperr.EmbeddingUnavailablef(err, "embedding service unavailable after retries")
	}

	if len(result) != g.cfg.Dimension {
		return nil, apperr.EmbeddingUnavailablef(nil,
			"embedding service returned dimension %d, expected %d", len(result), g.cfg.Dimension)
	}

	vec := pgvector.NewVector(result)
	return &vec, nil
}

type permanentErr struct{ err error }

func (p *permanentErr) Error() string { return p.err.Error() }
func (p *permanentErr) Unwrap() error { return p.err }

func isPermanent(err error) bool {
	var p *permanentErr
	return errors.As(err, &p)
}

func (g *Gateway) embedOnce(ctx context.Context, text string) ([]float32, error) {
	reqBody := embeddingRequest{Model: g.cfg.Model, Prompt: text}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &permanentErr{fmt.Errorf("encode embedding request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, &permanentErr{fmt.Errorf("build embedding request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		log.Warn("embedding request failed, will retry", "error", err)
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding service returned %d: %s", resp.StatusCode, string(respBody))
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &permanentErr{fmt.Errorf("embedding service returned %d: %s", resp.StatusCode, string(respBody))}
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &permanentErr{fmt.Errorf("decode embedding response: %w", err)}
	}
	return parsed.Embedding, nil
}
