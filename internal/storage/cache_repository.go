package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

const cacheColumns = `id, tenant_id, query_hash, query_text, normalized_language, answer_text,
	source_tag, trust_level, hit_count, created_at, expires_at, last_hit_at`

// CacheRepository persists response cache entries.
type CacheRepository struct {
	db DB
}

// NewCacheRepository creates a new cache repository.
func NewCacheRepository(db DB) *CacheRepository {
	return &CacheRepository{db: db}
}

// GetByHash returns the unexpired entry for (tenantID, hash).
func (r *CacheRepository) GetByHash(ctx context.Context, tenantID, hash string, now time.Time) (*CacheEntry, error) {
	query := `SELECT ` + cacheColumns + `
		FROM response_cache
		WHERE tenant_id = ? AND query_hash = ? AND expires_at > ?`

	entry, err := scanCacheEntry(r.db.QueryRowContext(ctx, query, tenantID, hash, toMillis(now)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return entry, err
}

// IncrementHit bumps hit_count and returns the new value.
func (r *CacheRepository) IncrementHit(ctx context.Context, tenantID, hash string, at time.Time) (int, error) {
	query := `
		UPDATE response_cache
		SET hit_count = hit_count + 1, last_hit_at = ?
		WHERE tenant_id = ? AND query_hash = ?
		RETURNING hit_count`

	var hits int
	err := r.db.QueryRowContext(ctx, query, toMillis(at), tenantID, hash).Scan(&hits)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return hits, err
}

// ListActive returns up to limit unexpired entries for the tenant, newest first.
func (r *CacheRepository) ListActive(ctx context.Context, tenantID string, now time.Time, limit int) ([]CacheEntry, error) {
	query := `SELECT ` + cacheColumns + `
		FROM response_cache
		WHERE tenant_id = ? AND expires_at > ?
		ORDER BY created_at DESC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, tenantID, toMillis(now), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []CacheEntry
	for rows.Next() {
		entry, err := scanCacheEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// Upsert inserts the entry or replaces the answer of an existing (tenant, hash) row.
// The hit count of a live row is preserved; a row that expired by entry.CreatedAt
// starts over as a new entry.
func (r *CacheRepository) Upsert(ctx context.Context, entry *CacheEntry) error {
	if entry.TenantID == "" {
		return ErrInvalidTenant
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.HitCount == 0 {
		entry.HitCount = 1
	}

	query := `
		INSERT INTO response_cache (` + cacheColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT (tenant_id, query_hash) DO UPDATE SET
			query_text = excluded.query_text,
			normalized_language = excluded.normalized_language,
			answer_text = excluded.answer_text,
			source_tag = excluded.source_tag,
			trust_level = excluded.trust_level,
			hit_count = CASE WHEN response_cache.expires_at <= excluded.created_at
				THEN excluded.hit_count ELSE response_cache.hit_count END,
			created_at = CASE WHEN response_cache.expires_at <= excluded.created_at
				THEN excluded.created_at ELSE response_cache.created_at END,
			last_hit_at = CASE WHEN response_cache.expires_at <= excluded.created_at
				THEN NULL ELSE response_cache.last_hit_at END,
			expires_at = excluded.expires_at`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.TenantID, entry.QueryHash, entry.QueryText, entry.NormalizedLanguage,
		entry.AnswerText, entry.SourceTag, string(entry.TrustLevel), entry.HitCount,
		toMillis(entry.CreatedAt), toMillis(entry.ExpiresAt),
	)
	return err
}

// PurgeExpired deletes entries that expired before the given time.
func (r *CacheRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM response_cache WHERE expires_at <= ?`, toMillis(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCacheEntry(row rowScanner) (*CacheEntry, error) {
	var (
		entry                CacheEntry
		trust                string
		createdAt, expiresAt int64
		lastHit              sql.NullInt64
	)
	err := row.Scan(
		&entry.ID, &entry.TenantID, &entry.QueryHash, &entry.QueryText, &entry.NormalizedLanguage,
		&entry.AnswerText, &entry.SourceTag, &trust, &entry.HitCount, &createdAt, &expiresAt, &lastHit,
	)
	if err != nil {
		return nil, err
	}

	entry.TrustLevel = TrustLevel(trust)
	entry.CreatedAt = fromMillis(createdAt)
	entry.ExpiresAt = fromMillis(expiresAt)
	if lastHit.Valid {
		t := fromMillis(lastHit.Int64)
		entry.LastHitAt = &t
	}
	return &entry, nil
}
