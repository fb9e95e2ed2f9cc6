package generation

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// TokenHandler receives each content token in arrival order.
// The handler must not block longer than one delivery attempt.
type TokenHandler func(token string)

// Generator produces a streamed completion for a prompt.
// StreamGenerate returns the full accumulated text; on a mid-stream failure
// the partial text accumulated so far is returned alongside the error.
type Generator interface {
	StreamGenerate(ctx context.Context, prompt string, onToken TokenHandler) (string, error)
}

// ClientConfig holds the generation backend configuration.
// MaxTokens and Temperature are fixed per process; the upstream service
// enforces the token cap.
type ClientConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Client streams chat completions from an OpenAI-compatible backend over SSE
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new generation client
func NewClient(config ClientConfig, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 512
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// StreamGenerate streams tokens for the prompt, invoking onToken per content
// delta in the exact order the backend emits them.
func (c *Client) StreamGenerate(ctx context.Context, prompt string, onToken TokenHandler) (string, error) {
	reqBody := chatRequest{
		Model:       c.config.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
		Stream:      true,
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal generation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create generation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("generation request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		return "", fmt.Errorf("generation backend returned %s: %s", httpResp.Status, string(body))
	}

	var accumulated strings.Builder
	reader := bufio.NewReader(httpResp.Body)

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			// mid-stream failure: hand back what arrived so far
			return accumulated.String(), fmt.Errorf("generation stream interrupted: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if line == "data: [DONE]" {
			break
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &chunk); err != nil {
			c.logger.Warn("skipping malformed stream event", zap.Error(err))
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		token := chunk.Choices[0].Delta.Content
		if token != "" {
			accumulated.WriteString(token)
			if onToken != nil {
				onToken(token)
			}
		}
	}

	c.logger.Debug("generation stream completed",
		zap.String("model", c.config.Model),
		zap.Int("chars", accumulated.Len()))

	return accumulated.String(), nil
}
