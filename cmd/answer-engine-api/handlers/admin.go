package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/answer-engine/cmd/answer-engine-api/middleware"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/answer-engine/pkg/engine"
)

// AdminHandler handles tenant content management.
type AdminHandler struct {
	logger  *observability.Logger
	service Service
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(logger *observability.Logger, service Service) *AdminHandler {
	return &AdminHandler{
		logger:  logger.WithComponent("admin_handler"),
		service: service,
	}
}

// PurgeResponseDTO reports a cache purge.
type PurgeResponseDTO struct {
	Purged int64     `json:"purged"`
	Before time.Time `json:"before"`
}

// UpsertKnowledge handles PUT /api/v1/knowledge.
func (h *AdminHandler) UpsertKnowledge(w http.ResponseWriter, r *http.Request) {
	var in engine.KnowledgeInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	item, err := h.service.UpsertKnowledgeItem(r.Context(), middleware.TenantFromContext(r.Context()), in)
	if err != nil {
		writeServiceError(w, h.logger, "knowledge upsert failed", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// RegisterDocument handles POST /api/v1/documents. Indexing runs in the background.
func (h *AdminHandler) RegisterDocument(w http.ResponseWriter, r *http.Request) {
	var in engine.DocumentInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	doc, err := h.service.RegisterDocument(r.Context(), middleware.TenantFromContext(r.Context()), in)
	if err != nil {
		writeServiceError(w, h.logger, "document registration failed", err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

// IndexDocument handles POST /api/v1/documents/{documentID}/index.
func (h *AdminHandler) IndexDocument(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "documentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id", err.Error())
		return
	}

	res, err := h.service.IndexDocument(r.Context(), middleware.TenantFromContext(r.Context()), id)
	if err != nil {
		writeServiceError(w, h.logger, "document indexing failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// IndexPage handles POST /api/v1/pages.
func (h *AdminHandler) IndexPage(w http.ResponseWriter, r *http.Request) {
	var in engine.PageInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	res, err := h.service.IndexWebsitePage(r.Context(), middleware.TenantFromContext(r.Context()), in)
	if err != nil {
		writeServiceError(w, h.logger, "page indexing failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// UpsertProduct handles PUT /api/v1/products.
func (h *AdminHandler) UpsertProduct(w http.ResponseWriter, r *http.Request) {
	var p engine.Product
	if err := decode(w, r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	p.TenantID = middleware.TenantFromContext(r.Context())

	if err := h.service.UpsertProduct(r.Context(), &p); err != nil {
		writeServiceError(w, h.logger, "product upsert failed", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeleteProduct handles DELETE /api/v1/products/{productID}.
func (h *AdminHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid product id", err.Error())
		return
	}

	if err := h.service.DeleteProduct(r.Context(), middleware.TenantFromContext(r.Context()), id); err != nil {
		writeServiceError(w, h.logger, "product delete failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PurgeCache handles POST /api/v1/cache/purge. The optional "before" query
// parameter is an RFC 3339 timestamp and defaults to now.
func (h *AdminHandler) PurgeCache(w http.ResponseWriter, r *http.Request) {
	before := time.Now().UTC()
	if raw := r.URL.Query().Get("before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid before timestamp", err.Error())
			return
		}
		before = t
	}

	n, err := h.service.PurgeCache(r.Context(), before)
	if err != nil {
		writeServiceError(w, h.logger, "cache purge failed", err)
		return
	}
	writeJSON(w, http.StatusOK, PurgeResponseDTO{Purged: n, Before: before})
}
