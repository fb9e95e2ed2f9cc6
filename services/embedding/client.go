package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Embedder generates a fixed-dimension vector embedding for text.
// Implementations are expensive to construct and must be built once per
// process and reused across invocations.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// ClientConfig holds the embedding backend configuration
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client calls an OpenAI-compatible embeddings endpoint
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new embedding client
func NewClient(config ClientConfig, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed returns the vector embedding for a single text.
// Deterministic for a fixed model version.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	reqBody := embeddingRequest{
		Model: c.config.Model,
		Input: []string{text},
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/embeddings", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("embedding backend returned %s: %s", httpResp.Status, string(body))
	}

	var resp embeddingResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedding backend returned no vector")
	}

	c.logger.Debug("embedded query",
		zap.String("model", c.config.Model),
		zap.Int("dimension", len(resp.Data[0].Embedding)))

	return resp.Data[0].Embedding, nil
}
