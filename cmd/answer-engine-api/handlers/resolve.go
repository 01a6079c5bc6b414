package handlers

import (
	"net/http"
	"time"

	"github.com/spherical-ai/spherical/libs/answer-engine/cmd/answer-engine-api/middleware"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/answer-engine/pkg/engine"
)

// ResolveHandler answers customer queries.
type ResolveHandler struct {
	logger  *observability.Logger
	service Service
}

// NewResolveHandler creates a new resolve handler.
func NewResolveHandler(logger *observability.Logger, service Service) *ResolveHandler {
	return &ResolveHandler{
		logger:  logger.WithComponent("resolve_handler"),
		service: service,
	}
}

// ResolveRequestDTO is the API request for a resolution.
type ResolveRequestDTO struct {
	TenantID      string        `json:"tenantId,omitempty"`
	Query         string        `json:"query"`
	CustomerPhone string        `json:"customerPhone,omitempty"`
	Language      string        `json:"language,omitempty"`
	History       []engine.Turn `json:"history,omitempty"`
}

// ResolveResponseDTO is the API response for a resolution.
type ResolveResponseDTO struct {
	*engine.Resolution
	LatencyMs int64 `json:"latencyMs"`
}

// Resolve handles POST /api/v1/resolve.
func (h *ResolveHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	var reqDTO ResolveRequestDTO
	if err := decode(w, r, &reqDTO); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	tenantID := middleware.TenantFromContext(ctx)
	if tenantID == "" {
		tenantID = reqDTO.TenantID
	}

	res, err := h.service.Resolve(ctx, engine.Request{
		TenantID:      tenantID,
		Query:         reqDTO.Query,
		CustomerPhone: reqDTO.CustomerPhone,
		Language:      reqDTO.Language,
		History:       reqDTO.History,
	})
	if err != nil {
		writeServiceError(w, h.logger, "resolve failed", err)
		return
	}

	writeJSON(w, http.StatusOK, ResolveResponseDTO{
		Resolution: res,
		LatencyMs:  time.Since(start).Milliseconds(),
	})
}
