package evaluation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/virtual-lenny/persona-agent/services/retrieval"
)

func results(scores []float64, sources []string) []retrieval.Result {
	out := make([]retrieval.Result, len(scores))
	for i := range scores {
		out[i] = retrieval.Result{Score: scores[i], Source: sources[i], Content: "content"}
	}
	return out
}

func TestRetrievalMetricsEqualScores(t *testing.T) {
	e := NewEvaluator()

	metrics := e.RetrievalMetrics(results(
		[]float64{0.7, 0.7, 0.7},
		[]string{"linkedin", "youtube", "linkedin"},
	))

	assert.Equal(t, 1.0, metrics.ScoreVariance)
	assert.Equal(t, 0.7, metrics.AvgScore)
	assert.Equal(t, 0.7, metrics.TopScore)
	assert.Equal(t, 1.0, metrics.SourceDiversity)
}

func TestRetrievalMetricsSingleResult(t *testing.T) {
	e := NewEvaluator()

	metrics := e.RetrievalMetrics(results([]float64{0.9}, []string{"youtube"}))

	assert.Equal(t, 1.0, metrics.ScoreVariance)
	assert.Equal(t, 0.9, metrics.TopScore)
	assert.Equal(t, 0.5, metrics.SourceDiversity)
}

func TestRetrievalMetricsHighVarianceFloorsToZero(t *testing.T) {
	e := NewEvaluator()

	// variance of {0.1, 0.9} is 0.16 >= 0.1, so the sub-metric floors to 0
	metrics := e.RetrievalMetrics(results([]float64{0.1, 0.9}, []string{"a", "b"}))
	assert.Equal(t, 0.0, metrics.ScoreVariance)
}

func TestRetrievalMetricsEmpty(t *testing.T) {
	e := NewEvaluator()
	assert.Equal(t, RetrievalMetrics{}, e.RetrievalMetrics(nil))
}

func TestEmptyResultsZeroEverythingButCoherence(t *testing.T) {
	e := NewEvaluator()

	response := "This is a complete answer with structure. It has several sentences. " +
		strings.Repeat("It keeps a reasonable length with padding words. ", 3) +
		"It ends properly."

	report := e.Evaluate(nil, response)

	assert.Equal(t, 0.0, report.Breakdown.Retrieval)
	assert.Equal(t, 0.0, report.Breakdown.Groundedness)
	assert.Equal(t, 0.0, report.Breakdown.Attribution)
	assert.Greater(t, report.Breakdown.Coherence, 0.0)
}

func TestGroundednessFullyGroundedResponse(t *testing.T) {
	e := NewEvaluator()

	chunk := "retention is the single best measure of product market fit"
	score := e.Groundedness(chunk, []string{chunk})
	assert.Equal(t, 1.0, score)
}

func TestGroundednessDisjointResponse(t *testing.T) {
	e := NewEvaluator()

	score := e.Groundedness(
		"bananas oranges grapefruit watermelon pineapple",
		[]string{"retention cohort analysis churn activation"},
	)
	assert.Equal(t, 0.0, score)
}

func TestGroundednessMonotoneUnderVerbatimInjection(t *testing.T) {
	e := NewEvaluator()

	chunks := []string{"retention is the single best measure of product market fit for startups"}
	disjoint := "bananas oranges grapefruit watermelon pineapple mangoes"
	injected := disjoint + " retention is the single best measure of product market fit"

	before := e.Groundedness(disjoint, chunks)
	after := e.Groundedness(injected, chunks)

	assert.GreaterOrEqual(t, after, before)
	assert.Greater(t, after, 0.0)
}

func TestGroundednessIgnoresShortWords(t *testing.T) {
	e := NewEvaluator()

	// all response words are under 4 chars, so no qualifying tokens
	assert.Equal(t, 0.0, e.Groundedness("a an it to be or", []string{"a an it to be or"}))
}

func TestGroundednessEmptyInputs(t *testing.T) {
	e := NewEvaluator()
	assert.Equal(t, 0.0, e.Groundedness("", []string{"context"}))
	assert.Equal(t, 0.0, e.Groundedness("response", nil))
}

func TestCoherencePerfectScore(t *testing.T) {
	e := NewEvaluator()

	// ~300 chars, 4 sentences, ends with a period
	response := strings.TrimSpace(strings.Repeat(strings.Repeat("x", 73)+". ", 4))
	require.GreaterOrEqual(t, len(response), 150)
	require.LessOrEqual(t, len(response), 800)

	assert.Equal(t, 1.0, e.Coherence(response))
}

func TestCoherenceBands(t *testing.T) {
	e := NewEvaluator()

	tests := []struct {
		name     string
		response string
		want     float64
	}{
		{"empty", "", 0},
		{"short fragment no punctuation", "too short", 0},
		{"near band single sentence", strings.Repeat("y", 119) + ".", 0.5}, // 0.2 length + 0.3 punctuation
		{"two sentences in band", strings.Repeat("w", 100) + ". " + strings.Repeat("v", 100) + ".", 0.9},
		{"overlong single sentence", strings.Repeat("z", 1100) + ".", 0.3}, // punctuation only
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, e.Coherence(tt.response), 1e-9)
		})
	}
}

func TestCoherenceCountsCharactersNotBytes(t *testing.T) {
	e := NewEvaluator()

	// 140 characters but over 400 bytes; belongs in the [100,150) band
	short := strings.Repeat("’", 139) + "."
	require.Equal(t, 140, len([]rune(short)))
	assert.InDelta(t, 0.5, e.Coherence(short), 1e-9) // 0.2 length + 0.3 punctuation

	// 150 characters of multibyte text sits exactly on the full-credit band edge
	inBand := strings.Repeat("é", 149) + "."
	require.Equal(t, 150, len([]rune(inBand)))
	assert.InDelta(t, 0.7, e.Coherence(inBand), 1e-9) // 0.4 length + 0.3 punctuation
}

func TestGroundednessAccentedWords(t *testing.T) {
	e := NewEvaluator()

	score := e.Groundedness("résumé café", []string{"every résumé café conversation"})
	assert.InDelta(t, 1.0, score, 1e-9)
}

func TestSourceAttribution(t *testing.T) {
	e := NewEvaluator()

	searchResults := []retrieval.Result{
		{Score: 0.8, Source: "linkedin", Content: "retention curves flatten when you reach product market fit"},
		{Score: 0.7, Source: "youtube", Content: "talk to your churned users to learn why they left"},
		{Score: 0.6, Source: "linkedin", Content: "pricing is a positioning exercise more than revenue"},
	}

	response := "In my experience retention curves flatten eventually. You should also talk to your churned users."

	// two of three sources contributed a verbatim trigram
	assert.Equal(t, 0.667, e.SourceAttribution(response, searchResults))
}

func TestSourceAttributionNoReuse(t *testing.T) {
	e := NewEvaluator()

	searchResults := []retrieval.Result{
		{Score: 0.8, Source: "linkedin", Content: "completely unrelated chunk about hiring engineers"},
	}
	assert.Equal(t, 0.0, e.SourceAttribution("talking about something else entirely", searchResults))
	assert.Equal(t, 0.0, e.SourceAttribution("", searchResults))
	assert.Equal(t, 0.0, e.SourceAttribution("response", nil))
}

func TestNgramLengthFilter(t *testing.T) {
	// "to be" has combined length 4 < 6, filtered; "because therefore" passes
	bigrams := ngrams("to be because therefore", 2)
	assert.NotContains(t, bigrams, "to be")
	assert.Contains(t, bigrams, "because therefore")

	// trigram filter needs >= 9 combined chars
	trigrams := ngrams("a bb ccc dddd", 3)
	assert.NotContains(t, trigrams, "a bb ccc")
	assert.Contains(t, trigrams, "bb ccc dddd")
}

func TestGradeThresholds(t *testing.T) {
	e := NewEvaluator()
	perfect := RetrievalMetrics{AvgScore: 1, TopScore: 1, ScoreVariance: 1, SourceDiversity: 1}

	tests := []struct {
		name      string
		coherence float64
		overall   float64
		grade     string
	}{
		// overall = 40 + 30 + 20*coherence + 0
		{"exactly 80 is A", 0.5, 80.0, "A"},
		{"79.9 is B", 0.495, 79.9, "B"},
		{"70 is B", 0.0, 70.0, "B"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := e.Score(perfect, 1.0, tt.coherence, 0.0)
			assert.Equal(t, tt.overall, report.Overall)
			assert.Equal(t, tt.grade, report.Grade)
		})
	}

	low := e.Score(RetrievalMetrics{}, 0, 0, 0)
	assert.Equal(t, 0.0, low.Overall)
	assert.Equal(t, "F", low.Grade)
}

func TestOverallAlwaysInRange(t *testing.T) {
	e := NewEvaluator()

	max := e.Score(RetrievalMetrics{AvgScore: 1, TopScore: 1, ScoreVariance: 1, SourceDiversity: 1}, 1, 1, 1)
	assert.Equal(t, 100.0, max.Overall)
	assert.Equal(t, "A", max.Grade)

	min := e.Score(RetrievalMetrics{}, 0, 0, 0)
	assert.GreaterOrEqual(t, min.Overall, 0.0)
	assert.LessOrEqual(t, max.Overall, 100.0)
}

func TestEndToEndScenario(t *testing.T) {
	e := NewEvaluator()

	searchResults := []retrieval.Result{
		{Score: 0.81, Source: "linkedin", Content: "retention curves flatten when you reach product market fit and customers keep coming back"},
		{Score: 0.76, Source: "youtube", Content: "talk to your churned users to understand what you are missing"},
		{Score: 0.65, Source: "linkedin", Content: "pricing is a positioning exercise more than a revenue exercise"},
	}

	// 5 sentences, within the ideal length band, verbatim trigrams from two
	// sources, terminal punctuation
	response := "Product-market fit shows up in your data before it shows up in your gut. " +
		"The clearest signal is that retention curves flatten instead of decaying to zero. " +
		"When that happens, customers keep coming back without being pushed. " +
		"Before that point, your best move is to talk to your churned users and listen carefully. " +
		"What else would explain the gap?"

	require.GreaterOrEqual(t, len(response), 150)
	require.LessOrEqual(t, len(response), 800)

	metrics := e.RetrievalMetrics(searchResults)
	assert.Equal(t, 0.74, metrics.AvgScore)
	assert.Equal(t, 0.81, metrics.TopScore)
	assert.Equal(t, 0.955, metrics.ScoreVariance) // 1 - 10*var([.81,.76,.65])
	assert.Equal(t, 1.0, metrics.SourceDiversity)

	groundedness := e.Groundedness(response, []string{
		searchResults[0].Content, searchResults[1].Content, searchResults[2].Content,
	})
	coherence := e.Coherence(response)
	attribution := e.SourceAttribution(response, searchResults)

	assert.Equal(t, 1.0, coherence)
	assert.GreaterOrEqual(t, attribution, 0.667)

	report := e.Evaluate(searchResults, response)

	// assert the exact output of the composite formula, not hand-picked targets
	retrievalScore := metrics.AvgScore*0.5 + metrics.TopScore*0.3 +
		metrics.ScoreVariance*0.1 + metrics.SourceDiversity*0.1
	expectedOverall := round1(100 * (0.40*retrievalScore + 0.30*groundedness +
		0.20*coherence + 0.10*attribution))

	assert.Equal(t, expectedOverall, report.Overall)
	assert.Equal(t, round1(retrievalScore*100), report.Breakdown.Retrieval)
	assert.Equal(t, round1(groundedness*100), report.Breakdown.Groundedness)
	assert.Equal(t, 100.0, report.Breakdown.Coherence)
	assert.Equal(t, round1(attribution*100), report.Breakdown.Attribution)

	assert.Equal(t, 0.74, report.Details.AvgSimilarity)
	assert.Equal(t, 0.81, report.Details.TopSimilarity)
	assert.Equal(t, 1.0, report.Details.SourceDiversity)
}
