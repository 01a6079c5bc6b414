// Package storage provides database models and repositories for the Answer Engine.
package storage

import (
	"time"

	"github.com/google/uuid"
)

// TrustLevel marks whether a cached answer was grounded in tenant-verified material.
type TrustLevel string

const (
	TrustVerified   TrustLevel = "verified"
	TrustUnverified TrustLevel = "unverified"
)

// CacheEntry is a prior (query -> answer) pair scoped to one tenant.
type CacheEntry struct {
	ID                 uuid.UUID  `json:"id" db:"id"`
	TenantID           string     `json:"tenantId" db:"tenant_id"`
	QueryHash          string     `json:"queryHash" db:"query_hash"`
	QueryText          string     `json:"queryText" db:"query_text"`
	NormalizedLanguage string     `json:"normalizedLanguage" db:"normalized_language"`
	AnswerText         string     `json:"answerText" db:"answer_text"`
	SourceTag          string     `json:"sourceTag" db:"source_tag"`
	TrustLevel         TrustLevel `json:"trustLevel" db:"trust_level"`
	HitCount           int        `json:"hitCount" db:"hit_count"`
	CreatedAt          time.Time  `json:"createdAt" db:"created_at"`
	ExpiresAt          time.Time  `json:"expiresAt" db:"expires_at"`
	LastHitAt          *time.Time `json:"lastHitAt,omitempty" db:"last_hit_at"`
}

// Expired reports whether the entry is no longer eligible for matching at now.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Corpus names one of the two embedding collections.
type Corpus string

const (
	CorpusWebsite   Corpus = "website"
	CorpusDocuments Corpus = "documents"
)

func (c Corpus) table() string {
	if c == CorpusDocuments {
		return "document_embeddings"
	}
	return "website_embeddings"
}

// EmbeddingChunk is one window of source text with its embedding.
type EmbeddingChunk struct {
	ID          uuid.UUID `json:"id" db:"id"`
	TenantID    string    `json:"tenantId" db:"tenant_id"`
	SourceID    string    `json:"sourceId" db:"source_id"`
	SourceLabel string    `json:"sourceLabel" db:"source_label"`
	SourceURL   string    `json:"sourceUrl,omitempty" db:"source_url"`
	ChunkIndex  int       `json:"chunkIndex" db:"chunk_index"`
	Text        string    `json:"text" db:"text"`
	Embedding   []float32 `json:"embedding,omitempty" db:"embedding"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// KnowledgeItem is a tenant-curated question and answer.
type KnowledgeItem struct {
	ID                 uuid.UUID `json:"id" db:"id"`
	TenantID           string    `json:"tenantId" db:"tenant_id"`
	Question           string    `json:"question" db:"question"`
	NormalizedQuestion string    `json:"normalizedQuestion" db:"normalized_question"`
	Answer             string    `json:"answer" db:"answer"`
	Sources            []string  `json:"sources" db:"sources"`
	CreatedBy          string    `json:"createdBy,omitempty" db:"created_by"`
	CreatedAt          time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt          time.Time `json:"updatedAt" db:"updated_at"`
}

// SourceStatus is the indexing status of a crawl job or document.
type SourceStatus string

const (
	SourcePending  SourceStatus = "pending"
	SourceIndexing SourceStatus = "indexing"
	SourceIndexed  SourceStatus = "indexed"
	SourceFailed   SourceStatus = "failed"
)

// CrawlJob describes a crawled website page.
type CrawlJob struct {
	ID         uuid.UUID    `json:"id" db:"id"`
	TenantID   string       `json:"tenantId" db:"tenant_id"`
	URL        string       `json:"url" db:"url"`
	Title      string       `json:"title,omitempty" db:"title"`
	Status     SourceStatus `json:"status" db:"status"`
	Content    string       `json:"-" db:"content"`
	ChunkCount int          `json:"chunkCount" db:"chunk_count"`
	Error      string       `json:"error,omitempty" db:"error"`
	CreatedAt  time.Time    `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time    `json:"updatedAt" db:"updated_at"`
}

// DocumentRecord describes an uploaded tenant document.
type DocumentRecord struct {
	ID            uuid.UUID    `json:"id" db:"id"`
	TenantID      string       `json:"tenantId" db:"tenant_id"`
	Filename      string       `json:"filename" db:"filename"`
	Title         string       `json:"title,omitempty" db:"title"`
	StoragePath   string       `json:"storagePath,omitempty" db:"storage_path"`
	MimeType      string       `json:"mimeType,omitempty" db:"mime_type"`
	ExtractedText string       `json:"-" db:"extracted_text"`
	Status        SourceStatus `json:"status" db:"status"`
	ChunkCount    int          `json:"chunkCount" db:"chunk_count"`
	Error         string       `json:"error,omitempty" db:"error"`
	CreatedAt     time.Time    `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time    `json:"updatedAt" db:"updated_at"`
}

// Label returns the citation label of the document.
func (d *DocumentRecord) Label() string {
	if d.Title != "" {
		return d.Title
	}
	return d.Filename
}

// Product is a structured catalog record.
type Product struct {
	ID          uuid.UUID `json:"id" db:"id"`
	TenantID    string    `json:"tenantId" db:"tenant_id"`
	SKU         string    `json:"sku" db:"sku"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description,omitempty" db:"description"`
	Category    string    `json:"category,omitempty" db:"category"`
	Price       float64   `json:"price" db:"price"`
	Currency    string    `json:"currency" db:"currency"`
	Unit        string    `json:"unit,omitempty" db:"unit"`
	InStock     bool      `json:"inStock" db:"in_stock"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// SourceText is the raw text of a crawl job or document, used when no embeddings exist.
type SourceText struct {
	SourceID string
	Label    string
	URL      string
	Text     string
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
