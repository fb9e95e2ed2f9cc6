package pipeline

import "fmt"

// State tracks where an invocation is in the pipeline. Transitions are
// strictly sequential; Errored is terminal and reachable from any
// non-terminal state.
type State int

const (
	StateIdle State = iota
	StateEmbedding
	StateRetrieving
	StateGenerating
	StateEvaluating
	StateDone
	StateErrored
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEmbedding:
		return "embedding"
	case StateRetrieving:
		return "retrieving"
	case StateGenerating:
		return "generating"
	case StateEvaluating:
		return "evaluating"
	case StateDone:
		return "done"
	default:
		return "errored"
	}
}

// Error codes for pipeline failures
const (
	ErrCodeEmbedding  = "EMBEDDING_ERROR"
	ErrCodeRetrieval  = "RETRIEVAL_ERROR"
	ErrCodeGeneration = "GENERATION_ERROR"
	ErrCodeInternal   = "INTERNAL_ERROR"
)

// PipelineError is a typed failure from one pipeline stage
type PipelineError struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements error unwrapping
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// NewEmbeddingError creates an embedding stage error
func NewEmbeddingError(cause error) *PipelineError {
	return &PipelineError{Code: ErrCodeEmbedding, Message: "failed to embed query", Cause: cause}
}

// NewRetrievalError creates a retrieval stage error
func NewRetrievalError(cause error) *PipelineError {
	return &PipelineError{Code: ErrCodeRetrieval, Message: "failed to search corpus", Cause: cause}
}

// NewGenerationError creates a generation stage error
func NewGenerationError(cause error) *PipelineError {
	return &PipelineError{Code: ErrCodeGeneration, Message: "failed to generate response", Cause: cause}
}

// Request is one user query bound to its originating connection
type Request struct {
	ConnectionID string
	Message      string
}

// Outcome summarizes a completed invocation for callers and tests
type Outcome struct {
	State           State
	GeneratedText   string
	TokensDelivered int
	ChannelGone     bool
	Evaluated       bool
}
