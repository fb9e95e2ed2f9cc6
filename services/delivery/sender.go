package delivery

// SendResult is the explicit outcome of one delivery attempt.
// Callers branch on the outcome instead of catching errors.
type SendResult int

const (
	// Delivered means the payload reached the connection's write buffer
	Delivered SendResult = iota
	// Gone means the remote peer is permanently unavailable; no further
	// delivery attempts should be made for this connection
	Gone
	// TransientError means this attempt failed but the connection may
	// still be alive; the payload is not retried
	TransientError
)

// String returns a human-readable result name
func (r SendResult) String() string {
	switch r {
	case Delivered:
		return "delivered"
	case Gone:
		return "gone"
	default:
		return "transient_error"
	}
}

// Sender delivers JSON payloads to a live client connection
type Sender interface {
	Send(connectionID string, payload Payload) SendResult
}

// Payload is the wire shape sent to clients. Exactly four types exist:
// chunk, evaluation, done, error.
type Payload struct {
	Type    string      `json:"type"`
	Content string      `json:"content,omitempty"`
	Score   interface{} `json:"score,omitempty"`
	Message string      `json:"message,omitempty"`
}

// Chunk wraps a single generated token
func Chunk(token string) Payload {
	return Payload{Type: "chunk", Content: token}
}

// Evaluation wraps the post-hoc quality report
func Evaluation(report interface{}) Payload {
	return Payload{Type: "evaluation", Score: report}
}

// Done is the terminal end-of-message signal
func Done() Payload {
	return Payload{Type: "done"}
}

// Error is the terminal failure signal
func Error(message string) Payload {
	return Payload{Type: "error", Message: message}
}
