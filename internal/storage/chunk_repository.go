package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ChunkRepository persists embedding chunks for one corpus.
type ChunkRepository struct {
	conn   *Conn
	corpus Corpus
}

// NewChunkRepository creates a chunk repository over the corpus table.
func NewChunkRepository(conn *Conn, corpus Corpus) *ChunkRepository {
	return &ChunkRepository{conn: conn, corpus: corpus}
}

// Corpus returns the corpus this repository serves.
func (r *ChunkRepository) Corpus() Corpus {
	return r.corpus
}

// ReplaceSource deletes every chunk of the source and inserts the new set in one transaction.
func (r *ChunkRepository) ReplaceSource(ctx context.Context, tenantID, sourceID string, chunks []EmbeddingChunk) error {
	if tenantID == "" {
		return ErrInvalidTenant
	}

	table := r.corpus.table()
	now := time.Now().UTC()

	return r.conn.WithTx(ctx, func(tx DB) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM `+table+` WHERE tenant_id = ? AND source_id = ?`, tenantID, sourceID); err != nil {
			return fmt.Errorf("delete chunks: %w", err)
		}

		insert := `INSERT INTO ` + table + ` (id, tenant_id, source_id, source_label, source_url,
			chunk_index, text, embedding, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

		for i := range chunks {
			c := &chunks[i]
			if c.ID == uuid.Nil {
				c.ID = uuid.New()
			}
			c.TenantID = tenantID
			c.SourceID = sourceID
			if c.CreatedAt.IsZero() {
				c.CreatedAt = now
			}

			var embedding sql.NullString
			if len(c.Embedding) > 0 {
				raw, err := json.Marshal(c.Embedding)
				if err != nil {
					return fmt.Errorf("encode embedding: %w", err)
				}
				embedding = sql.NullString{String: string(raw), Valid: true}
			}

			if _, err := tx.ExecContext(ctx, insert,
				c.ID, tenantID, sourceID, c.SourceLabel, c.SourceURL,
				c.ChunkIndex, c.Text, embedding, toMillis(c.CreatedAt),
			); err != nil {
				return fmt.Errorf("insert chunk %d: %w", c.ChunkIndex, err)
			}
		}
		return nil
	})
}

// DeleteSource removes every chunk of a source.
func (r *ChunkRepository) DeleteSource(ctx context.Context, tenantID, sourceID string) error {
	_, err := r.conn.ExecContext(ctx,
		`DELETE FROM `+r.corpus.table()+` WHERE tenant_id = ? AND source_id = ?`, tenantID, sourceID)
	return err
}

// Candidates returns up to limit chunks of the tenant, newest first.
// Chunks stored without an embedding come back with a nil Embedding.
func (r *ChunkRepository) Candidates(ctx context.Context, tenantID string, limit int) ([]EmbeddingChunk, error) {
	query := `SELECT id, tenant_id, source_id, source_label, source_url, chunk_index, text, embedding, created_at
		FROM ` + r.corpus.table() + `
		WHERE tenant_id = ?
		ORDER BY created_at DESC, chunk_index ASC
		LIMIT ?`

	rows, err := r.conn.QueryContext(ctx, query, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []EmbeddingChunk
	for rows.Next() {
		var (
			c         EmbeddingChunk
			embedding sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&c.ID, &c.TenantID, &c.SourceID, &c.SourceLabel, &c.SourceURL,
			&c.ChunkIndex, &c.Text, &embedding, &createdAt); err != nil {
			return nil, err
		}
		c.CreatedAt = fromMillis(createdAt)
		if embedding.Valid && embedding.String != "" {
			if err := json.Unmarshal([]byte(embedding.String), &c.Embedding); err != nil {
				c.Embedding = nil
			}
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// CountBySource returns the number of chunks stored for a source.
func (r *ChunkRepository) CountBySource(ctx context.Context, tenantID, sourceID string) (int, error) {
	var n int
	err := r.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+r.corpus.table()+` WHERE tenant_id = ? AND source_id = ?`,
		tenantID, sourceID).Scan(&n)
	return n, err
}
