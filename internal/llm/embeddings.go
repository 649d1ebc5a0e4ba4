package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"docwise-ai/internal/cache"
	"docwise-ai/internal/config"
	"docwise-ai/internal/contextutil"
	"docwise-ai/internal/indexer"
)

// EmbeddingsClient talks to an OpenAI-compatible embeddings endpoint.
// Identical (normalized, case-folded) texts are served from a content-hash
// cache without a network call. Transient failures (timeouts, 5xx) are
// retried with exponential backoff; 4xx responses fail immediately since
// they indicate a caller error, not a transient condition.
type EmbeddingsClient struct {
	baseURL      string
	apiKey       string
	model        string
	expectedSize int
	maxRetries   int
	backoffBase  time.Duration
	concurrency  int
	client       *http.Client
	vectors      *cache.Cache
}

// StatusError reports a non-2xx response from the embeddings endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("embeddings endpoint returned status %d: %s", e.Code, e.Body)
}

// retryable reports whether the error is worth retrying: network errors and
// 5xx responses are transient, 4xx responses are not.
func retryable(err error) bool {
	if se, ok := err.(*StatusError); ok {
		return se.Code >= 500
	}
	return true
}

// NewEmbeddingsClient creates a client from config. The expected vector
// size must match the embedding model output; every returned vector is
// validated against it.
func NewEmbeddingsClient(cfg *config.Config) *EmbeddingsClient {
	return &EmbeddingsClient{
		baseURL:      cfg.EmbeddingBaseURL,
		apiKey:       cfg.EmbeddingAPIKey,
		model:        cfg.EmbeddingModelName,
		expectedSize: cfg.QdrantVectorSize,
		maxRetries:   cfg.EmbedMaxRetries,
		backoffBase:  cfg.EmbedBackoffBase,
		concurrency:  cfg.EmbedBatchSize,
		client:       &http.Client{Timeout: cfg.EmbeddingTimeout},
		vectors:      cache.New(cfg.EmbeddingCacheSize, 0),
	}
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingData struct {
	Embedding []float64 `json:"embedding"`
}

type embeddingsResponse struct {
	Data []embeddingData `json:"data"`
}

// EmbedText embeds a single text, consulting the content-hash cache first.
func (c *EmbeddingsClient) EmbedText(ctx context.Context, text string) ([]float32, error) {
	key := indexer.DedupHash(text)
	if cached, ok := c.vectors.Get(key); ok {
		return cached.([]float32), nil
	}

	vec, err := c.embedWithRetry(ctx, text)
	if err != nil {
		return nil, err
	}
	c.vectors.Set(key, vec, 0)
	return vec, nil
}

// EmbedBatch embeds texts with bounded concurrency. A failed item yields a
// nil vector at its position; failures never cancel sibling requests. The
// returned error count lets callers log partial failures without treating
// them as fatal.
func (c *EmbeddingsClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, int) {
	logger := contextutil.LoggerFromContext(ctx)
	vectors := make([][]float32, len(texts))

	sem := make(chan struct{}, c.concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	failed := 0

	for i, text := range texts {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, text string) {
			defer wg.Done()
			defer func() { <-sem }()

			vec, err := c.EmbedText(ctx, text)
			if err != nil {
				logger.WarnContext(ctx, "embedding failed for batch item", "item", i, "error", err)
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}
			vectors[i] = vec
		}(i, text)
	}
	wg.Wait()

	return vectors, failed
}

// embedWithRetry issues the request with exponential backoff on transient
// failures. Attempt n sleeps backoffBase * 2^n before retrying.
func (c *EmbeddingsClient) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.backoffBase * (1 << (attempt - 1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		vec, err := c.embedOnce(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("embedding failed after %d retries: %w", c.maxRetries, lastErr)
}

// embedOnce performs one request against the endpoint.
func (c *EmbeddingsClient) embedOnce(ctx context.Context, text string) ([]float32, error) {
	payload := embeddingsRequest{
		Model: c.model,
		Input: []string{text},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/embeddings", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(raw)}
	}

	var embResp embeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(embResp.Data) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(embResp.Data))
	}

	data := embResp.Data[0]
	if c.expectedSize > 0 && len(data.Embedding) != c.expectedSize {
		return nil, fmt.Errorf("embedding has size %d, expected %d", len(data.Embedding), c.expectedSize)
	}

	vec := make([]float32, len(data.Embedding))
	for i, v := range data.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}
