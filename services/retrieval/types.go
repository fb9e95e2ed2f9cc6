package retrieval

import "context"

// Retriever fetches the nearest corpus entries for a query vector.
type Retriever interface {
	Search(ctx context.Context, vector []float64, limit int) ([]Result, error)
}

// Result represents a retrieved corpus entry with its similarity score.
// Scores are cosine similarities in [0,1]; a sequence returned by Search is
// ordered by descending score.
type Result struct {
	Score    float64                `json:"score"`
	Content  string                 `json:"content"`
	Source   string                 `json:"source"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
