// Package indexing computes vector embeddings for chunks and canonical
// entities and persists them with page provenance.
package indexing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/c360studio/policypipe/config"
	"github.com/c360studio/policypipe/llm"
)

// maxResponseSize bounds embedding response reads.
const maxResponseSize = 50 * 1024 * 1024

// EmbeddingClient computes embeddings for a batch of texts. Implementations
// must return one vector per input text, in input order.
type EmbeddingClient interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// HTTPEmbedder talks to an OpenAI-compatible /embeddings endpoint.
type HTTPEmbedder struct {
	endpoint   string
	model      string
	apiKey     string
	dimensions int
	httpClient *http.Client
	logger     *slog.Logger
}

// EmbedderOption configures an HTTPEmbedder.
type EmbedderOption func(*HTTPEmbedder)

// WithEmbedderHTTPClient sets a custom HTTP client.
func WithEmbedderHTTPClient(c *http.Client) EmbedderOption {
	return func(e *HTTPEmbedder) { e.httpClient = c }
}

// WithEmbedderLogger sets the logger.
func WithEmbedderLogger(logger *slog.Logger) EmbedderOption {
	return func(e *HTTPEmbedder) { e.logger = logger }
}

// NewHTTPEmbedder creates an embedder from config.
func NewHTTPEmbedder(cfg config.EmbeddingConfig, opts ...EmbedderOption) *HTTPEmbedder {
	e := &HTTPEmbedder{
		endpoint:   cfg.Endpoint,
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		dimensions: cfg.Dimensions,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
}

// Embed computes embeddings for texts in one request. Vectors come back in
// input order regardless of the order the endpoint returns them.
func (e *HTTPEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embeddingRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, llm.NewFatalError(fmt.Errorf("marshal embedding request: %w", err))
	}

	url := strings.TrimSuffix(e.endpoint, "/")
	if !strings.HasSuffix(url, "/embeddings") {
		url += "/embeddings"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, llm.NewFatalError(fmt.Errorf("create embedding request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, llm.NewTransientError(fmt.Errorf("embedding request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, llm.NewTransientError(fmt.Errorf("read embedding response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("embedding API error (status %d): %s", resp.StatusCode, truncate(respBody, 200))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, llm.NewTransientError(err)
		}
		return nil, llm.NewFatalError(err)
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parse embedding response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(parsed.Data))
	}

	sort.Slice(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })

	vectors := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		if e.dimensions > 0 && len(d.Embedding) != e.dimensions {
			return nil, fmt.Errorf("embedding dimension mismatch: want %d, got %d", e.dimensions, len(d.Embedding))
		}
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

func truncate(b []byte, n int) string {
	s := string(b)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
