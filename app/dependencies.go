package app

import (
	"go.uber.org/zap"

	"github.com/virtual-lenny/persona-agent/config"
	"github.com/virtual-lenny/persona-agent/handlers"
	"github.com/virtual-lenny/persona-agent/middleware"
	"github.com/virtual-lenny/persona-agent/services/delivery"
	"github.com/virtual-lenny/persona-agent/services/embedding"
	"github.com/virtual-lenny/persona-agent/services/evaluation"
	"github.com/virtual-lenny/persona-agent/services/generation"
	"github.com/virtual-lenny/persona-agent/services/pipeline"
	"github.com/virtual-lenny/persona-agent/services/prompt"
	"github.com/virtual-lenny/persona-agent/services/retrieval"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	Logger *zap.Logger

	// Services
	Hub       *delivery.Hub
	Embedder  *embedding.Client
	Retriever *retrieval.QdrantRetriever
	Assembler *prompt.Assembler
	Generator *generation.Client
	Evaluator *evaluation.Evaluator
	Pipeline  *pipeline.Service

	// Middleware. AuthMiddleware is nil when no auth secret is configured.
	AuthMiddleware *middleware.AuthMiddleware

	// Handlers
	HealthHandler *handlers.HealthHandler
	WSHandler     *handlers.WSHandler
}

// NewDependencies creates and wires all application dependencies
func NewDependencies(cfg *config.Config, logger *zap.Logger) *Dependencies {
	hub := delivery.NewHub(logger)

	embedder := embedding.NewClient(embedding.ClientConfig{
		BaseURL: cfg.Embedding.BaseURL,
		APIKey:  cfg.Embedding.APIKey,
		Model:   cfg.Embedding.Model,
		Timeout: cfg.Embedding.Timeout,
	}, logger)

	retriever := retrieval.NewQdrantRetriever(retrieval.QdrantConfig{
		URL:            cfg.Qdrant.URL,
		APIKey:         cfg.Qdrant.APIKey,
		Collection:     cfg.Qdrant.Collection,
		ScoreThreshold: cfg.Retrieval.ScoreThreshold,
		Timeout:        cfg.Qdrant.Timeout,
	}, logger)

	assembler := prompt.NewAssembler(cfg.Persona.Name, cfg.Persona.Description)

	generator := generation.NewClient(generation.ClientConfig{
		BaseURL:     cfg.Generation.BaseURL,
		APIKey:      cfg.Generation.APIKey,
		Model:       cfg.Generation.Model,
		MaxTokens:   cfg.Generation.MaxTokens,
		Temperature: cfg.Generation.Temperature,
		Timeout:     cfg.Generation.Timeout,
	}, logger)

	evaluator := evaluation.NewEvaluator()

	pipelineService := pipeline.NewService(
		embedder,
		retriever,
		assembler,
		generator,
		evaluator,
		hub,
		cfg.Retrieval.TopK,
		logger,
	)

	var authMiddleware *middleware.AuthMiddleware
	if cfg.Auth.Secret != "" {
		validator := middleware.NewHMACValidator(cfg.Auth.Secret)
		authMiddleware = middleware.NewAuthMiddleware(validator, logger)
	} else {
		logger.Warn("no auth secret configured, websocket endpoint is open")
	}

	return &Dependencies{
		Config: cfg,
		Logger: logger,

		Hub:       hub,
		Embedder:  embedder,
		Retriever: retriever,
		Assembler: assembler,
		Generator: generator,
		Evaluator: evaluator,
		Pipeline:  pipelineService,

		AuthMiddleware: authMiddleware,

		HealthHandler: handlers.NewHealthHandler(retriever, logger),
		WSHandler:     handlers.NewWSHandler(hub, pipelineService, logger),
	}
}
