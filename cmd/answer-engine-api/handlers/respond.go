// Package handlers provides HTTP handlers for the Answer Engine API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/answer-engine/internal/catalog"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/extract"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/ingest"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/knowledgebase"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/retrieval"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/storage"
	"github.com/spherical-ai/spherical/libs/answer-engine/pkg/engine"
)

// maxBodyBytes bounds request bodies; page text is the largest payload.
const maxBodyBytes = 4 << 20

// Service is the engine surface used by the handlers.
type Service interface {
	Resolve(ctx context.Context, req engine.Request) (*engine.Resolution, error)
	UpsertKnowledgeItem(ctx context.Context, tenantID string, in engine.KnowledgeInput) (*engine.KnowledgeItem, error)
	RegisterDocument(ctx context.Context, tenantID string, in engine.DocumentInput) (*engine.Document, error)
	IndexDocument(ctx context.Context, tenantID string, documentID uuid.UUID) (*engine.IndexResult, error)
	IndexWebsitePage(ctx context.Context, tenantID string, in engine.PageInput) (*engine.IndexResult, error)
	UpsertProduct(ctx context.Context, p *engine.Product) error
	DeleteProduct(ctx context.Context, tenantID string, id uuid.UUID) error
	PurgeCache(ctx context.Context, before time.Time) (int64, error)
}

var _ Service = (*engine.Engine)(nil)

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	resp := map[string]string{
		"error":   message,
		"message": message,
	}
	if detail != "" {
		resp["detail"] = detail
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps engine errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, logger *observability.Logger, message string, err error) {
	switch {
	case errors.Is(err, engine.ErrInvalidInput),
		errors.Is(err, retrieval.ErrInvalidRequest),
		errors.Is(err, ingest.ErrInvalidDocument),
		errors.Is(err, ingest.ErrInvalidPage),
		errors.Is(err, catalog.ErrInvalidProduct),
		errors.Is(err, knowledgebase.ErrEmptyQuestion),
		errors.Is(err, knowledgebase.ErrEmptyAnswer),
		errors.Is(err, storage.ErrInvalidTenant):
		writeError(w, http.StatusBadRequest, message, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, message, err.Error())
	case errors.Is(err, extract.ErrUnsupportedFormat), errors.Is(err, extract.ErrNoText):
		writeError(w, http.StatusUnprocessableEntity, message, err.Error())
	default:
		logger.Error().Err(err).Msg(message)
		writeError(w, http.StatusInternalServerError, message, "")
	}
}
