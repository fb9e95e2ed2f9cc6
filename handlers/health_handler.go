package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/virtual-lenny/persona-agent/utils"
	"go.uber.org/zap"
)

// Pinger reports whether an external dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	vectorIndex Pinger
	logger      *zap.Logger
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(vectorIndex Pinger, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		vectorIndex: vectorIndex,
		logger:      logger,
	}
}

// HandleHealth handles GET /healthz
// Basic liveness check - always returns 200 if the service is running
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	_ = utils.WriteOK(w, response)
}

// HandleReadiness handles GET /readyz
// Readiness check - validates that the vector index is reachable
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if err := h.vectorIndex.Ping(ctx); err != nil {
		h.logger.Warn("vector index health check failed", zap.Error(err))
		checks["vector_index"] = "unhealthy"
		allHealthy = false
	} else {
		checks["vector_index"] = "healthy"
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}
