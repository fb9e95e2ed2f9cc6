package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"
)

// QdrantConfig holds the connection settings for the Qdrant REST API
type QdrantConfig struct {
	URL            string
	APIKey         string
	Collection     string
	ScoreThreshold float64
	Timeout        time.Duration
}

// QdrantRetriever is a minimal REST client against a pre-built Qdrant
// collection. It only issues point searches; collection lifecycle is owned
// by the offline ingestion jobs.
type QdrantRetriever struct {
	config     QdrantConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewQdrantRetriever creates a new QdrantRetriever
func NewQdrantRetriever(config QdrantConfig, logger *zap.Logger) *QdrantRetriever {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	return &QdrantRetriever{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}
}

type searchRequest struct {
	Vector         []float64 `json:"vector"`
	Limit          int       `json:"limit"`
	WithPayload    bool      `json:"with_payload"`
	ScoreThreshold *float64  `json:"score_threshold,omitempty"`
}

type searchResponse struct {
	Result []struct {
		Score   float64                `json:"score"`
		Payload map[string]interface{} `json:"payload"`
	} `json:"result"`
	Status string `json:"status"`
}

// Search returns up to limit entries ordered by descending similarity score.
// Entries below the configured score threshold are excluded by the index.
func (r *QdrantRetriever) Search(ctx context.Context, vector []float64, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 3
	}

	reqBody := searchRequest{
		Vector:      vector,
		Limit:       limit,
		WithPayload: true,
	}
	if r.config.ScoreThreshold > 0 {
		threshold := r.config.ScoreThreshold
		reqBody.ScoreThreshold = &threshold
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", r.config.URL, r.config.Collection)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if r.config.APIKey != "" {
		httpReq.Header.Set("api-key", r.config.APIKey)
	}

	httpResp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("qdrant search failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("qdrant search returned %s: %s", httpResp.Status, string(body))
	}

	var resp searchResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	results := make([]Result, 0, len(resp.Result))
	for _, point := range resp.Result {
		result, ok := decodePayload(point.Score, point.Payload)
		if !ok {
			r.logger.Warn("skipping point with malformed payload",
				zap.Float64("score", point.Score))
			continue
		}
		results = append(results, result)
	}

	// Qdrant already orders by score; enforce the invariant anyway
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	r.logger.Debug("qdrant search completed",
		zap.String("collection", r.config.Collection),
		zap.Int("results", len(results)))

	return results, nil
}

// decodePayload validates the point payload at the retrieval boundary.
// Content is required; source and everything else are optional.
func decodePayload(score float64, payload map[string]interface{}) (Result, bool) {
	content, ok := payload["content"].(string)
	if !ok || content == "" {
		return Result{}, false
	}

	source, _ := payload["source"].(string)

	metadata := make(map[string]interface{})
	for k, v := range payload {
		if k == "content" || k == "source" {
			continue
		}
		metadata[k] = v
	}
	if len(metadata) == 0 {
		metadata = nil
	}

	return Result{
		Score:    score,
		Content:  content,
		Source:   source,
		Metadata: metadata,
	}, true
}

// Ping performs a cheap reachability check against the collection endpoint
func (r *QdrantRetriever) Ping(ctx context.Context) error {
	url := fmt.Sprintf("%s/collections/%s", r.config.URL, r.config.Collection)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if r.config.APIKey != "" {
		httpReq.Header.Set("api-key", r.config.APIKey)
	}

	httpResp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("qdrant collection check returned %s", httpResp.Status)
	}
	return nil
}
