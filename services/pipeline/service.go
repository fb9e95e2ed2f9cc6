package pipeline

import (
	"context"

	"github.com/google/uuid"
	"github.com/virtual-lenny/persona-agent/services/delivery"
	"github.com/virtual-lenny/persona-agent/services/embedding"
	"github.com/virtual-lenny/persona-agent/services/evaluation"
	"github.com/virtual-lenny/persona-agent/services/generation"
	"github.com/virtual-lenny/persona-agent/services/prompt"
	"github.com/virtual-lenny/persona-agent/services/retrieval"
	"go.uber.org/zap"
)

// Service orchestrates the per-query RAG pipeline: embed, retrieve, assemble,
// stream generation to the client, evaluate, terminate.
//
// Termination policy: a failure before the first delivered token emits a
// single error payload; once any token reached the client, evaluation is
// always attempted on whatever text was accumulated and a done signal is
// attempted, even when the channel reported gone mid-stream. Evaluation is
// best-effort and never blocks the terminal signal.
type Service struct {
	embedder  embedding.Embedder
	retriever retrieval.Retriever
	assembler *prompt.Assembler
	generator generation.Generator
	evaluator *evaluation.Evaluator
	sender    delivery.Sender
	topK      int
	logger    *zap.Logger
}

// NewService creates a new pipeline Service with all dependencies
func NewService(
	embedder embedding.Embedder,
	retriever retrieval.Retriever,
	assembler *prompt.Assembler,
	generator generation.Generator,
	evaluator *evaluation.Evaluator,
	sender delivery.Sender,
	topK int,
	logger *zap.Logger,
) *Service {
	if topK <= 0 {
		topK = 3
	}
	return &Service{
		embedder:  embedder,
		retriever: retriever,
		assembler: assembler,
		generator: generator,
		evaluator: evaluator,
		sender:    sender,
		topK:      topK,
		logger:    logger,
	}
}

// run carries the mutable state of one invocation
type run struct {
	requestID    string
	connectionID string
	state        State
	delivered    int
	channelGone  bool
}

// Execute processes one request end to end. The returned error is non-nil
// only for fatal failures before any token was delivered; the client has
// received an error payload in that case.
func (s *Service) Execute(ctx context.Context, req Request) (*Outcome, error) {
	r := &run{
		requestID:    uuid.New().String(),
		connectionID: req.ConnectionID,
		state:        StateIdle,
	}

	s.logger.Info("starting pipeline",
		zap.String("request_id", r.requestID),
		zap.String("connection_id", r.connectionID),
		zap.Int("query_chars", len(req.Message)))

	// Empty or malformed input degrades to an empty query; the persona
	// rules make the model say the context is insufficient.
	query := req.Message

	s.transition(r, StateEmbedding)
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return s.fail(r, NewEmbeddingError(err))
	}

	s.transition(r, StateRetrieving)
	results, err := s.retriever.Search(ctx, vector, s.topK)
	if err != nil {
		return s.fail(r, NewRetrievalError(err))
	}
	s.logger.Debug("retrieval completed",
		zap.String("request_id", r.requestID),
		zap.Int("results", len(results)))

	promptText := s.assembler.Assemble(results, query)

	s.transition(r, StateGenerating)
	text, genErr := s.generator.StreamGenerate(ctx, promptText, func(token string) {
		s.deliverToken(r, token)
	})

	if genErr != nil && r.delivered == 0 {
		// nothing reached the client, report the failure instead
		return s.fail(r, NewGenerationError(genErr))
	}
	if genErr != nil {
		// tokens already reached the client; keep the partial text and
		// finish the protocol so the client is not left waiting
		s.logger.Warn("generation interrupted after delivery began",
			zap.String("request_id", r.requestID),
			zap.Int("tokens_delivered", r.delivered),
			zap.Error(genErr))
	}

	s.transition(r, StateEvaluating)
	report, evaluated := s.evaluate(r, results, text)
	if evaluated && !r.channelGone {
		s.send(r, delivery.Evaluation(report))
	}

	// terminal signal is always the last attempt, even after channel-gone
	s.send(r, delivery.Done())
	s.transition(r, StateDone)

	s.logger.Info("pipeline completed",
		zap.String("request_id", r.requestID),
		zap.Int("tokens_delivered", r.delivered),
		zap.Int("response_chars", len(text)),
		zap.Bool("channel_gone", r.channelGone))

	return &Outcome{
		State:           StateDone,
		GeneratedText:   text,
		TokensDelivered: r.delivered,
		ChannelGone:     r.channelGone,
		Evaluated:       evaluated,
	}, nil
}

// deliverToken attempts one delivery. A Gone outcome stops all further
// content deliveries; a TransientError drops just this token.
func (s *Service) deliverToken(r *run, token string) {
	if r.channelGone {
		return
	}
	switch s.sender.Send(r.connectionID, delivery.Chunk(token)) {
	case delivery.Delivered:
		r.delivered++
	case delivery.Gone:
		r.channelGone = true
		s.logger.Warn("output channel gone mid-stream",
			zap.String("request_id", r.requestID),
			zap.Int("tokens_delivered", r.delivered))
	case delivery.TransientError:
		s.logger.Warn("token delivery failed, not retried",
			zap.String("request_id", r.requestID))
	}
}

// evaluate never lets a scoring failure reach the terminal-signal path
func (s *Service) evaluate(r *run, results []retrieval.Result, text string) (report evaluation.Report, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("evaluation failed",
				zap.String("request_id", r.requestID),
				zap.Any("panic", rec))
			ok = false
		}
	}()

	report = s.evaluator.Evaluate(results, text)
	s.logger.Info("evaluation completed",
		zap.String("request_id", r.requestID),
		zap.Float64("overall", report.Overall),
		zap.String("grade", report.Grade))
	return report, true
}

func (s *Service) fail(r *run, pipeErr *PipelineError) (*Outcome, error) {
	s.logger.Error("pipeline failed",
		zap.String("request_id", r.requestID),
		zap.String("state", r.state.String()),
		zap.Error(pipeErr))

	s.send(r, delivery.Error(pipeErr.Message))
	r.state = StateErrored

	return &Outcome{State: StateErrored}, pipeErr
}

// send is a single delivery attempt whose outcome is logged, never raised
func (s *Service) send(r *run, payload delivery.Payload) {
	result := s.sender.Send(r.connectionID, payload)
	if result != delivery.Delivered {
		s.logger.Warn("payload not delivered",
			zap.String("request_id", r.requestID),
			zap.String("payload_type", payload.Type),
			zap.String("result", result.String()))
	}
}

func (s *Service) transition(r *run, next State) {
	s.logger.Debug("state transition",
		zap.String("request_id", r.requestID),
		zap.String("from", r.state.String()),
		zap.String("to", next.String()))
	r.state = next
}
