package evaluation

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/virtual-lenny/persona-agent/services/retrieval"
)

// minWordLen excludes stopwords and function words from overlap metrics
const minWordLen = 4

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)
var sentencePattern = regexp.MustCompile(`[.!?]+`)

// Report is the per-invocation quality report. Computed once after the
// generated text is final; never mutated afterward.
type Report struct {
	Overall   float64   `json:"overall"`
	Breakdown Breakdown `json:"breakdown"`
	Grade     string    `json:"grade"`
	Details   Details   `json:"details"`
}

// Breakdown holds each sub-score on a 0-100 scale
type Breakdown struct {
	Retrieval    float64 `json:"retrieval"`
	Groundedness float64 `json:"groundedness"`
	Coherence    float64 `json:"coherence"`
	Attribution  float64 `json:"attribution"`
}

// Details exposes the raw retrieval metrics behind the composite
type Details struct {
	AvgSimilarity   float64 `json:"avg_similarity"`
	TopSimilarity   float64 `json:"top_similarity"`
	SourceDiversity float64 `json:"source_diversity"`
}

// RetrievalMetrics are the four retrieval sub-metrics, each in [0,1]
type RetrievalMetrics struct {
	AvgScore        float64 `json:"avg_score"`
	TopScore        float64 `json:"top_score"`
	ScoreVariance   float64 `json:"score_variance"`
	SourceDiversity float64 `json:"source_diversity"`
}

// Evaluator scores a RAG interaction from the retrieval results and the
// final generated text alone. No external calls; deterministic.
type Evaluator struct{}

// NewEvaluator creates a new Evaluator
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate computes the full report for one interaction
func (e *Evaluator) Evaluate(results []retrieval.Result, response string) Report {
	metrics := e.RetrievalMetrics(results)

	chunks := make([]string, 0, len(results))
	for _, r := range results {
		chunks = append(chunks, r.Content)
	}

	groundedness := e.Groundedness(response, chunks)
	coherence := e.Coherence(response)
	attribution := e.SourceAttribution(response, results)

	return e.Score(metrics, groundedness, coherence, attribution)
}

// RetrievalMetrics computes quality metrics from the similarity scores.
// An empty result sequence yields all zeros.
func (e *Evaluator) RetrievalMetrics(results []retrieval.Result) RetrievalMetrics {
	if len(results) == 0 {
		return RetrievalMetrics{}
	}

	var sum, top float64
	for _, r := range results {
		sum += r.Score
		if r.Score > top {
			top = r.Score
		}
	}
	avg := sum / float64(len(results))

	// Low spread among top results is rewarded as consistent relevance:
	// population variance 0 maps to 1, variance >= 0.1 floors to 0.
	scoreVariance := 1.0
	if len(results) > 1 {
		var variance float64
		for _, r := range results {
			variance += (r.Score - avg) * (r.Score - avg)
		}
		variance /= float64(len(results))
		scoreVariance = math.Max(0, 1-variance*10)
	}

	// Exactly two corpora exist, so two distinct sources earn full credit
	seen := make(map[string]struct{})
	for _, r := range results {
		seen[r.Source] = struct{}{}
	}
	diversity := math.Min(float64(len(seen))/2, 1)

	return RetrievalMetrics{
		AvgScore:        round3(avg),
		TopScore:        round3(top),
		ScoreVariance:   round3(scoreVariance),
		SourceDiversity: round3(diversity),
	}
}

// Groundedness measures how much of the response is lexically traceable to
// the retrieved context, via unigram (60%) and bigram (40%) overlap.
func (e *Evaluator) Groundedness(response string, contextChunks []string) float64 {
	if response == "" || len(contextChunks) == 0 {
		return 0
	}

	responseLower := strings.ToLower(response)
	contextLower := strings.ToLower(strings.Join(contextChunks, " "))

	responseWords := extractWords(responseLower)
	contextWords := extractWords(contextLower)

	if len(responseWords) == 0 {
		return 0
	}

	matched := 0
	for word := range responseWords {
		if _, ok := contextWords[word]; ok {
			matched++
		}
	}
	unigramOverlap := float64(matched) / float64(len(responseWords))

	bigramOverlap := 0.0
	responseBigrams := ngrams(responseLower, 2)
	if len(responseBigrams) > 0 {
		contextBigrams := ngrams(contextLower, 2)
		matched = 0
		for bigram := range responseBigrams {
			if _, ok := contextBigrams[bigram]; ok {
				matched++
			}
		}
		bigramOverlap = float64(matched) / float64(len(responseBigrams))
	}

	return round3(0.6*unigramOverlap + 0.4*bigramOverlap)
}

// Coherence scores response structure alone: length band, sentence count,
// and terminal punctuation. Independent of content correctness.
func (e *Evaluator) Coherence(response string) float64 {
	if response == "" {
		return 0
	}

	score := 0.0

	// length bands are in characters, not bytes
	length := utf8.RuneCountInString(response)
	switch {
	case length >= 150 && length <= 800:
		score += 0.4
	case (length >= 100 && length < 150) || (length > 800 && length <= 1000):
		score += 0.2
	}

	sentences := 0
	for _, segment := range sentencePattern.Split(response, -1) {
		if strings.TrimSpace(segment) != "" {
			sentences++
		}
	}
	switch {
	case sentences >= 3:
		score += 0.3
	case sentences == 2:
		score += 0.2
	}

	trimmed := strings.TrimRightFunc(response, unicode.IsSpace)
	if strings.HasSuffix(trimmed, ".") || strings.HasSuffix(trimmed, "!") || strings.HasSuffix(trimmed, "?") {
		score += 0.3
	}

	return round3(math.Min(score, 1))
}

// SourceAttribution counts how many of the top 3 results contributed a
// trigram that appears verbatim (case-insensitive) in the response.
func (e *Evaluator) SourceAttribution(response string, results []retrieval.Result) float64 {
	if response == "" || len(results) == 0 {
		return 0
	}

	responseLower := strings.ToLower(response)

	checked := results
	if len(checked) > 3 {
		checked = checked[:3]
	}

	sourcesUsed := 0
	for _, result := range checked {
		for phrase := range ngrams(strings.ToLower(result.Content), 3) {
			if strings.Contains(responseLower, phrase) {
				sourcesUsed++
				break
			}
		}
	}

	denom := len(results)
	if denom > 3 {
		denom = 3
	}
	return round3(float64(sourcesUsed) / float64(denom))
}

// Score combines the sub-scores into the graded report.
// Weights: 40% retrieval, 30% groundedness, 20% coherence, 10% attribution.
func (e *Evaluator) Score(metrics RetrievalMetrics, groundedness, coherence, attribution float64) Report {
	retrievalScore := metrics.AvgScore*0.5 +
		metrics.TopScore*0.3 +
		metrics.ScoreVariance*0.1 +
		metrics.SourceDiversity*0.1

	overall := 0.40*retrievalScore +
		0.30*groundedness +
		0.20*coherence +
		0.10*attribution

	overallPct := overall * 100

	grade := "F"
	switch {
	case overallPct >= 80:
		grade = "A"
	case overallPct >= 70:
		grade = "B"
	case overallPct >= 60:
		grade = "C"
	case overallPct >= 50:
		grade = "D"
	}

	return Report{
		Overall: round1(overallPct),
		Breakdown: Breakdown{
			Retrieval:    round1(retrievalScore * 100),
			Groundedness: round1(groundedness * 100),
			Coherence:    round1(coherence * 100),
			Attribution:  round1(attribution * 100),
		},
		Grade: grade,
		Details: Details{
			AvgSimilarity:   metrics.AvgScore,
			TopSimilarity:   metrics.TopScore,
			SourceDiversity: metrics.SourceDiversity,
		},
	}
}

// extractWords returns the set of words of qualifying length
func extractWords(text string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, word := range wordPattern.FindAllString(text, -1) {
		if utf8.RuneCountInString(word) >= minWordLen {
			words[word] = struct{}{}
		}
	}
	return words
}

// ngrams returns contiguous n-word phrases whose combined letter length is
// at least 3n characters, filtering out degenerate short phrases.
func ngrams(text string, n int) map[string]struct{} {
	words := wordPattern.FindAllString(text, -1)
	if len(words) < n {
		return nil
	}

	grams := make(map[string]struct{})
	for i := 0; i+n <= len(words); i++ {
		gram := strings.Join(words[i:i+n], " ")
		if utf8.RuneCountInString(strings.ReplaceAll(gram, " ", "")) >= n*3 {
			grams[gram] = struct{}{}
		}
	}
	return grams
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
