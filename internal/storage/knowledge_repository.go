package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const knowledgeColumns = `id, tenant_id, question, normalized_question, answer, sources,
	created_by, created_at, updated_at`

// KnowledgeRepository persists tenant-curated knowledge items.
type KnowledgeRepository struct {
	db DB
}

// NewKnowledgeRepository creates a new knowledge repository.
func NewKnowledgeRepository(db DB) *KnowledgeRepository {
	return &KnowledgeRepository{db: db}
}

// Upsert inserts the item or updates the row with the same (tenant, normalized question).
// item.ID is set to the id of the stored row.
func (r *KnowledgeRepository) Upsert(ctx context.Context, item *KnowledgeItem) error {
	if item.TenantID == "" {
		return ErrInvalidTenant
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	sources := item.Sources
	if sources == nil {
		sources = []string{}
	}
	rawSources, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("encode sources: %w", err)
	}

	query := `
		INSERT INTO knowledge_items (` + knowledgeColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, normalized_question) DO UPDATE SET
			question = excluded.question,
			answer = excluded.answer,
			sources = excluded.sources,
			updated_at = excluded.updated_at
		RETURNING id`

	return r.db.QueryRowContext(ctx, query,
		item.ID, item.TenantID, item.Question, item.NormalizedQuestion, item.Answer,
		string(rawSources), item.CreatedBy, toMillis(item.CreatedAt), toMillis(item.UpdatedAt),
	).Scan(&item.ID)
}

// GetByNormalizedQuestion returns the item with an exact normalized question match.
func (r *KnowledgeRepository) GetByNormalizedQuestion(ctx context.Context, tenantID, normalized string) (*KnowledgeItem, error) {
	query := `SELECT ` + knowledgeColumns + `
		FROM knowledge_items
		WHERE tenant_id = ? AND normalized_question = ?`

	item, err := scanKnowledgeItem(r.db.QueryRowContext(ctx, query, tenantID, normalized))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return item, err
}

// ListRecent returns the limit most recently updated items of the tenant.
func (r *KnowledgeRepository) ListRecent(ctx context.Context, tenantID string, limit int) ([]KnowledgeItem, error) {
	query := `SELECT ` + knowledgeColumns + `
		FROM knowledge_items
		WHERE tenant_id = ?
		ORDER BY updated_at DESC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []KnowledgeItem
	for rows.Next() {
		item, err := scanKnowledgeItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// Delete removes an item.
func (r *KnowledgeRepository) Delete(ctx context.Context, tenantID string, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM knowledge_items WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanKnowledgeItem(row rowScanner) (*KnowledgeItem, error) {
	var (
		item                 KnowledgeItem
		rawSources           string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&item.ID, &item.TenantID, &item.Question, &item.NormalizedQuestion,
		&item.Answer, &rawSources, &item.CreatedBy, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if rawSources != "" {
		if err := json.Unmarshal([]byte(rawSources), &item.Sources); err != nil {
			return nil, fmt.Errorf("decode sources: %w", err)
		}
	}
	item.CreatedAt = fromMillis(createdAt)
	item.UpdatedAt = fromMillis(updatedAt)
	return &item, nil
}
