package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	crawlJobColumns = `id, tenant_id, url, title, status, content, chunk_count, error, created_at, updated_at`
	documentColumns = `id, tenant_id, filename, title, storage_path, mime_type, extracted_text,
	status, chunk_count, error, created_at, updated_at`
)

// SourceRepository persists retrieval source metadata: crawl jobs and documents.
type SourceRepository struct {
	db DB
}

// NewSourceRepository creates a new source repository.
func NewSourceRepository(db DB) *SourceRepository {
	return &SourceRepository{db: db}
}

// UpsertCrawlJob records a crawled page keyed on (tenant, url). job.ID is set to the stored id.
func (r *SourceRepository) UpsertCrawlJob(ctx context.Context, job *CrawlJob) error {
	if job.TenantID == "" {
		return ErrInvalidTenant
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = SourcePending
	}

	query := `
		INSERT INTO crawl_jobs (` + crawlJobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, url) DO UPDATE SET
			title = excluded.title,
			status = excluded.status,
			content = excluded.content,
			updated_at = excluded.updated_at
		RETURNING id`

	return r.db.QueryRowContext(ctx, query,
		job.ID, job.TenantID, job.URL, job.Title, string(job.Status), job.Content,
		job.ChunkCount, job.Error, toMillis(job.CreatedAt), toMillis(job.UpdatedAt),
	).Scan(&job.ID)
}

// GetCrawlJobByURL returns the crawl job for a page.
func (r *SourceRepository) GetCrawlJobByURL(ctx context.Context, tenantID, url string) (*CrawlJob, error) {
	query := `SELECT ` + crawlJobColumns + ` FROM crawl_jobs WHERE tenant_id = ? AND url = ?`

	var (
		job                  CrawlJob
		status               string
		createdAt, updatedAt int64
	)
	err := r.db.QueryRowContext(ctx, query, tenantID, url).Scan(
		&job.ID, &job.TenantID, &job.URL, &job.Title, &status, &job.Content,
		&job.ChunkCount, &job.Error, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	job.Status = SourceStatus(status)
	job.CreatedAt = fromMillis(createdAt)
	job.UpdatedAt = fromMillis(updatedAt)
	return &job, nil
}

// UpdateCrawlJobStatus records the indexing outcome of a crawl job.
func (r *SourceRepository) UpdateCrawlJobStatus(ctx context.Context, tenantID string, id uuid.UUID, status SourceStatus, chunkCount int, errMsg string) error {
	return r.updateStatus(ctx, "crawl_jobs", tenantID, id, status, chunkCount, errMsg)
}

// CreateDocument records an uploaded document.
func (r *SourceRepository) CreateDocument(ctx context.Context, doc *DocumentRecord) error {
	if doc.TenantID == "" {
		return ErrInvalidTenant
	}
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if doc.Status == "" {
		doc.Status = SourcePending
	}

	query := `INSERT INTO documents (` + documentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		doc.ID, doc.TenantID, doc.Filename, doc.Title, doc.StoragePath, doc.MimeType,
		doc.ExtractedText, string(doc.Status), doc.ChunkCount, doc.Error,
		toMillis(doc.CreatedAt), toMillis(doc.UpdatedAt),
	)
	return err
}

// GetDocument retrieves a document with tenant scoping.
func (r *SourceRepository) GetDocument(ctx context.Context, tenantID string, id uuid.UUID) (*DocumentRecord, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE tenant_id = ? AND id = ?`
	doc, err := scanDocument(r.db.QueryRowContext(ctx, query, tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return doc, err
}

// ListDocumentsByStatus returns up to limit documents of the tenant in the given status, oldest first.
func (r *SourceRepository) ListDocumentsByStatus(ctx context.Context, tenantID string, status SourceStatus, limit int) ([]DocumentRecord, error) {
	query := `SELECT ` + documentColumns + `
		FROM documents
		WHERE tenant_id = ? AND status = ?
		ORDER BY created_at ASC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, tenantID, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []DocumentRecord
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// SetDocumentText stores the extracted text of a document.
func (r *SourceRepository) SetDocumentText(ctx context.Context, tenantID string, id uuid.UUID, text string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE documents SET extracted_text = ?, updated_at = ? WHERE tenant_id = ? AND id = ?`,
		text, toMillis(time.Now().UTC()), tenantID, id)
	return err
}

// UpdateDocumentStatus records the indexing outcome of a document.
func (r *SourceRepository) UpdateDocumentStatus(ctx context.Context, tenantID string, id uuid.UUID, status SourceStatus, chunkCount int, errMsg string) error {
	return r.updateStatus(ctx, "documents", tenantID, id, status, chunkCount, errMsg)
}

// SourceTexts returns raw source text for the corpus, newest first. It backs the
// lexical fallback when the embedding table is absent.
func (r *SourceRepository) SourceTexts(ctx context.Context, corpus Corpus, tenantID string, limit int) ([]SourceText, error) {
	query := `SELECT id, url, title, content FROM crawl_jobs
		WHERE tenant_id = ? AND content <> ''
		ORDER BY updated_at DESC LIMIT ?`
	if corpus == CorpusDocuments {
		query = `SELECT id, storage_path, CASE WHEN title <> '' THEN title ELSE filename END, extracted_text
			FROM documents
			WHERE tenant_id = ? AND extracted_text <> ''
			ORDER BY updated_at DESC LIMIT ?`
	}

	rows, err := r.db.QueryContext(ctx, query, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SourceText
	for rows.Next() {
		var (
			id              uuid.UUID
			url, label, txt string
		)
		if err := rows.Scan(&id, &url, &label, &txt); err != nil {
			return nil, err
		}
		if corpus == CorpusWebsite && label == "" {
			label = url
		}
		if corpus == CorpusDocuments {
			url = ""
		}
		out = append(out, SourceText{SourceID: id.String(), Label: label, URL: url, Text: txt})
	}
	return out, rows.Err()
}

func (r *SourceRepository) updateStatus(ctx context.Context, table, tenantID string, id uuid.UUID, status SourceStatus, chunkCount int, errMsg string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE `+table+` SET status = ?, chunk_count = ?, error = ?, updated_at = ? WHERE tenant_id = ? AND id = ?`,
		string(status), chunkCount, errMsg, toMillis(time.Now().UTC()), tenantID, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanDocument(row rowScanner) (*DocumentRecord, error) {
	var (
		doc                  DocumentRecord
		status               string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&doc.ID, &doc.TenantID, &doc.Filename, &doc.Title, &doc.StoragePath,
		&doc.MimeType, &doc.ExtractedText, &status, &doc.ChunkCount, &doc.Error,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}
	doc.Status = SourceStatus(status)
	doc.CreatedAt = fromMillis(createdAt)
	doc.UpdatedAt = fromMillis(updatedAt)
	return &doc, nil
}
