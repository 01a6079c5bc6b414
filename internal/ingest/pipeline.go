// Package ingest provides the admin indexing pipeline for tenant documents and
// crawled website pages, and the background reindexer that drains pending documents.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/answer-engine/internal/extract"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/storage"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/vectorindex"
)

var (
	// ErrInvalidDocument is returned when a document has neither text nor a file.
	ErrInvalidDocument = errors.New("document needs text or a storage path")
	// ErrInvalidPage is returned when a page has no URL or no text.
	ErrInvalidPage = errors.New("page needs a url and text")
)

// SourceStore persists crawl jobs and document records. *storage.SourceRepository
// implements it.
type SourceStore interface {
	CreateDocument(ctx context.Context, doc *storage.DocumentRecord) error
	GetDocument(ctx context.Context, tenantID string, id uuid.UUID) (*storage.DocumentRecord, error)
	SetDocumentText(ctx context.Context, tenantID string, id uuid.UUID, text string) error
	UpdateDocumentStatus(ctx context.Context, tenantID string, id uuid.UUID, status storage.SourceStatus, chunkCount int, errMsg string) error
	UpsertCrawlJob(ctx context.Context, job *storage.CrawlJob) error
	UpdateCrawlJobStatus(ctx context.Context, tenantID string, id uuid.UUID, status storage.SourceStatus, chunkCount int, errMsg string) error
}

// Indexer chunks and embeds one source. *vectorindex.Index implements it.
type Indexer interface {
	Index(ctx context.Context, tenantID string, src vectorindex.SourceRef, text string) (int, error)
}

// TextExtractor reads the text of a stored file.
type TextExtractor func(path, mimeType string) (string, error)

// Pipeline indexes documents and website pages.
type Pipeline struct {
	sources   SourceStore
	documents Indexer
	website   Indexer
	extractor TextExtractor
	logger    *observability.Logger
}

// DocumentInput describes a document to register. Text wins over StoragePath when both
// are set.
type DocumentInput struct {
	Filename    string `json:"filename" validate:"required,max=255"`
	Title       string `json:"title,omitempty" validate:"max=255"`
	StoragePath string `json:"storagePath,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
	Text        string `json:"text,omitempty"`
}

// PageInput describes a crawled website page.
type PageInput struct {
	URL   string `json:"url" validate:"required,url"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text" validate:"required"`
}

// Result reports one indexing run.
type Result struct {
	SourceID uuid.UUID            `json:"sourceId"`
	Status   storage.SourceStatus `json:"status"`
	Chunks   int                  `json:"chunks"`
	Duration time.Duration        `json:"duration"`
}

// NewPipeline creates an indexing pipeline.
func NewPipeline(sources SourceStore, documents, website Indexer, logger *observability.Logger) *Pipeline {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Pipeline{
		sources:   sources,
		documents: documents,
		website:   website,
		extractor: extract.File,
		logger:    logger.WithComponent("ingest"),
	}
}

// RegisterDocument records a document in the pending state. Indexing happens later,
// through IndexDocument or the reindexer.
func (p *Pipeline) RegisterDocument(ctx context.Context, tenantID string, in DocumentInput) (*storage.DocumentRecord, error) {
	if strings.TrimSpace(in.Text) == "" && in.StoragePath == "" {
		return nil, ErrInvalidDocument
	}

	mimeType := in.MimeType
	if mimeType == "" {
		if format, err := extract.DetectFormat(in.Filename, ""); err == nil {
			mimeType = format.MimeType()
		}
	}

	doc := &storage.DocumentRecord{
		TenantID:      tenantID,
		Filename:      in.Filename,
		Title:         in.Title,
		StoragePath:   in.StoragePath,
		MimeType:      mimeType,
		ExtractedText: strings.TrimSpace(in.Text),
		Status:        storage.SourcePending,
	}
	if err := p.sources.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	p.logger.WithTenant(tenantID).Info().
		Str("document_id", doc.ID.String()).
		Str("filename", doc.Filename).
		Msg("Document registered")
	return doc, nil
}

// IndexDocument extracts the document text when needed, then replaces every chunk of
// the document in the documents corpus.
func (p *Pipeline) IndexDocument(ctx context.Context, tenantID string, documentID uuid.UUID) (*Result, error) {
	start := time.Now()
	log := p.logger.WithTenant(tenantID).WithOperation("index_document")

	doc, err := p.sources.GetDocument(ctx, tenantID, documentID)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	if err := p.sources.UpdateDocumentStatus(ctx, tenantID, doc.ID, storage.SourceIndexing, doc.ChunkCount, ""); err != nil {
		return nil, fmt.Errorf("mark document indexing: %w", err)
	}

	text := doc.ExtractedText
	if strings.TrimSpace(text) == "" {
		if doc.StoragePath == "" {
			return p.failDocument(ctx, doc, start, ErrInvalidDocument)
		}
		text, err = p.extractor(doc.StoragePath, doc.MimeType)
		if err != nil {
			return p.failDocument(ctx, doc, start, err)
		}
		if err := p.sources.SetDocumentText(ctx, tenantID, doc.ID, text); err != nil {
			return p.failDocument(ctx, doc, start, fmt.Errorf("store extracted text: %w", err))
		}
	}

	chunks, err := p.documents.Index(ctx, tenantID, vectorindex.SourceRef{
		ID:    doc.ID.String(),
		Label: doc.Label(),
	}, text)
	if err != nil {
		return p.failDocument(ctx, doc, start, err)
	}

	if err := p.sources.UpdateDocumentStatus(ctx, tenantID, doc.ID, storage.SourceIndexed, chunks, ""); err != nil {
		return nil, fmt.Errorf("mark document indexed: %w", err)
	}

	result := &Result{SourceID: doc.ID, Status: storage.SourceIndexed, Chunks: chunks, Duration: time.Since(start)}
	log.Info().
		Str("document_id", doc.ID.String()).
		Int("chunks", chunks).
		Dur("duration", result.Duration).
		Msg("Document indexed")
	return result, nil
}

func (p *Pipeline) failDocument(ctx context.Context, doc *storage.DocumentRecord, start time.Time, cause error) (*Result, error) {
	if err := p.sources.UpdateDocumentStatus(ctx, doc.TenantID, doc.ID, storage.SourceFailed, 0, cause.Error()); err != nil {
		p.logger.Warn().Err(err).Str("document_id", doc.ID.String()).Msg("Failed to record document failure")
	}
	p.logger.WithTenant(doc.TenantID).Warn().
		Err(cause).
		Str("document_id", doc.ID.String()).
		Msg("Document indexing failed")
	return &Result{SourceID: doc.ID, Status: storage.SourceFailed, Duration: time.Since(start)}, cause
}

// IndexWebsitePage records the crawled page and replaces its chunks in the website
// corpus.
func (p *Pipeline) IndexWebsitePage(ctx context.Context, tenantID string, in PageInput) (*Result, error) {
	start := time.Now()
	in.URL = strings.TrimSpace(in.URL)
	in.Text = strings.TrimSpace(in.Text)
	if in.URL == "" || in.Text == "" {
		return nil, ErrInvalidPage
	}

	job := &storage.CrawlJob{
		TenantID: tenantID,
		URL:      in.URL,
		Title:    in.Title,
		Status:   storage.SourceIndexing,
		Content:  in.Text,
	}
	if err := p.sources.UpsertCrawlJob(ctx, job); err != nil {
		return nil, fmt.Errorf("record crawl job: %w", err)
	}

	label := in.Title
	if label == "" {
		label = in.URL
	}
	chunks, err := p.website.Index(ctx, tenantID, vectorindex.SourceRef{ID: job.ID.String(), Label: label, URL: in.URL}, in.Text)
	if err != nil {
		if uerr := p.sources.UpdateCrawlJobStatus(ctx, tenantID, job.ID, storage.SourceFailed, 0, err.Error()); uerr != nil {
			p.logger.Warn().Err(uerr).Str("url", in.URL).Msg("Failed to record page failure")
		}
		return &Result{SourceID: job.ID, Status: storage.SourceFailed, Duration: time.Since(start)}, fmt.Errorf("index page: %w", err)
	}

	if err := p.sources.UpdateCrawlJobStatus(ctx, tenantID, job.ID, storage.SourceIndexed, chunks, ""); err != nil {
		return nil, fmt.Errorf("mark page indexed: %w", err)
	}

	result := &Result{SourceID: job.ID, Status: storage.SourceIndexed, Chunks: chunks, Duration: time.Since(start)}
	p.logger.WithTenant(tenantID).Info().
		Str("url", in.URL).
		Int("chunks", chunks).
		Dur("duration", result.Duration).
		Msg("Page indexed")
	return result, nil
}
