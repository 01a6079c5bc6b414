// Package catalog answers product questions from the tenant's structured catalog
// through an in-memory bleve index kept in sync with the products table.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
	bq "github.com/blevesearch/bleve/v2/search/query"
	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/answer-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/storage"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/textmatch"
)

var (
	ErrInvalidProduct = errors.New("product requires a sku and a name")
)

// ProductStore persists products. storage.ProductRepository implements it.
type ProductStore interface {
	Upsert(ctx context.Context, p *storage.Product) error
	ListByTenant(ctx context.Context, tenantID string) ([]storage.Product, error)
	ListTenants(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, tenantID string, id uuid.UUID) error
}

// MatchKind classifies a catalog search.
type MatchKind string

const (
	MatchNone     MatchKind = "none"
	MatchSingle   MatchKind = "single"
	MatchMultiple MatchKind = "multiple"
)

// Result is the outcome of a catalog search.
type Result struct {
	Kind     MatchKind
	Products []storage.Product
}

// Catalog is the product catalog search.
type Catalog struct {
	store      ProductStore
	index      bleve.Index
	maxResults int
	logger     *observability.Logger

	mu       sync.RWMutex
	products map[string]map[string]storage.Product // tenant -> product id -> product
}

// New creates an empty catalog. Call Load to index the persisted products.
func New(store ProductStore, maxResults int, logger *observability.Logger) (*Catalog, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create catalog index: %w", err)
	}

	return &Catalog{
		store:      store,
		index:      index,
		maxResults: maxResults,
		logger:     logger.WithComponent("catalog"),
		products:   make(map[string]map[string]storage.Product),
	}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	product := bleve.NewDocumentMapping()

	tenant := bleve.NewKeywordFieldMapping()
	tenant.IncludeInAll = false
	product.AddFieldMappingsAt("tenant_id", tenant)

	for _, field := range []string{"name", "sku", "category", "description"} {
		text := bleve.NewTextFieldMapping()
		text.Analyzer = en.AnalyzerName
		text.Store = false
		product.AddFieldMappingsAt(field, text)
	}

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = product
	indexMapping.DefaultAnalyzer = en.AnalyzerName
	return indexMapping
}

func docID(tenantID string, id uuid.UUID) string {
	return tenantID + "/" + id.String()
}

func document(p storage.Product) map[string]interface{} {
	return map[string]interface{}{
		"tenant_id":   p.TenantID,
		"name":        p.Name,
		"sku":         p.SKU,
		"category":    p.Category,
		"description": p.Description,
	}
}

// Load indexes the products of every tenant.
func (c *Catalog) Load(ctx context.Context) error {
	tenants, err := c.store.ListTenants(ctx)
	if err != nil {
		return fmt.Errorf("list catalog tenants: %w", err)
	}
	for _, tenantID := range tenants {
		if err := c.Reload(ctx, tenantID); err != nil {
			return err
		}
	}
	return nil
}

// Reload rebuilds the tenant's slice of the index from the store.
func (c *Catalog) Reload(ctx context.Context, tenantID string) error {
	products, err := c.store.ListByTenant(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("list products: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	batch := c.index.NewBatch()
	for id := range c.products[tenantID] {
		batch.Delete(tenantID + "/" + id)
	}

	fresh := make(map[string]storage.Product, len(products))
	for _, p := range products {
		if err := batch.Index(docID(tenantID, p.ID), document(p)); err != nil {
			return fmt.Errorf("index product %s: %w", p.SKU, err)
		}
		fresh[p.ID.String()] = p
	}
	if err := c.index.Batch(batch); err != nil {
		return fmt.Errorf("apply catalog batch: %w", err)
	}
	c.products[tenantID] = fresh

	c.logger.Info().Str("tenant_id", tenantID).Int("products", len(products)).Msg("catalog reloaded")
	return nil
}

// Upsert stores the product and indexes it. p.ID is set to the stored row id.
func (c *Catalog) Upsert(ctx context.Context, p *storage.Product) error {
	if p.TenantID == "" {
		return storage.ErrInvalidTenant
	}
	if strings.TrimSpace(p.SKU) == "" || strings.TrimSpace(p.Name) == "" {
		return ErrInvalidProduct
	}
	if err := c.store.Upsert(ctx, p); err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.index.Index(docID(p.TenantID, p.ID), document(*p)); err != nil {
		return fmt.Errorf("index product: %w", err)
	}
	if c.products[p.TenantID] == nil {
		c.products[p.TenantID] = make(map[string]storage.Product)
	}
	c.products[p.TenantID][p.ID.String()] = *p
	return nil
}

// Delete removes the product from the store and the index.
func (c *Catalog) Delete(ctx context.Context, tenantID string, id uuid.UUID) error {
	if err := c.store.Delete(ctx, tenantID, id); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.index.Delete(docID(tenantID, id)); err != nil {
		return fmt.Errorf("unindex product: %w", err)
	}
	delete(c.products[tenantID], id.String())
	return nil
}

// Search finds the tenant's products matching query. A single hit, or a hit whose
// whole name appears in the query when no other hit's does, is an unambiguous match.
func (c *Catalog) Search(ctx context.Context, tenantID, query string) (*Result, error) {
	if tenantID == "" {
		return nil, storage.ErrInvalidTenant
	}
	if strings.TrimSpace(query) == "" {
		return &Result{Kind: MatchNone}, nil
	}

	tenantQuery := bleve.NewTermQuery(tenantID)
	tenantQuery.SetField("tenant_id")

	fields := []struct {
		name  string
		boost float64
	}{
		{"name", 3},
		{"sku", 4},
		{"category", 1.5},
		{"description", 0.5},
	}
	var clauses []bq.Query
	for _, f := range fields {
		q := bleve.NewMatchQuery(query)
		q.SetField(f.name)
		q.SetBoost(f.boost)
		clauses = append(clauses, q)
	}

	req := bleve.NewSearchRequestOptions(
		bleve.NewConjunctionQuery(tenantQuery, bleve.NewDisjunctionQuery(clauses...)),
		c.maxResults, 0, false)

	res, err := c.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("catalog search: %w", err)
	}

	c.mu.RLock()
	products := make([]storage.Product, 0, len(res.Hits))
	for _, hit := range res.Hits {
		id := strings.TrimPrefix(hit.ID, tenantID+"/")
		if p, ok := c.products[tenantID][id]; ok {
			products = append(products, p)
		}
	}
	c.mu.RUnlock()

	switch len(products) {
	case 0:
		return &Result{Kind: MatchNone}, nil
	case 1:
		return &Result{Kind: MatchSingle, Products: products}, nil
	}

	if p, ok := uniqueNamedProduct(query, products); ok {
		return &Result{Kind: MatchSingle, Products: []storage.Product{p}}, nil
	}
	return &Result{Kind: MatchMultiple, Products: products}, nil
}

// Count returns the number of indexed products.
func (c *Catalog) Count() (uint64, error) {
	return c.index.DocCount()
}

// Close releases the index.
func (c *Catalog) Close() error {
	return c.index.Close()
}

func uniqueNamedProduct(query string, products []storage.Product) (storage.Product, bool) {
	queryTokens := make(map[string]struct{})
	for _, tok := range textmatch.Tokens(query) {
		queryTokens[tok] = struct{}{}
	}

	var (
		found storage.Product
		count int
	)
	for _, p := range products {
		if containsAll(queryTokens, textmatch.Tokens(p.Name)) || containsAll(queryTokens, textmatch.Tokens(p.SKU)) {
			found = p
			count++
		}
	}
	return found, count == 1
}

func containsAll(set map[string]struct{}, tokens []string) bool {
	if len(tokens) == 0 {
		return false
	}
	for _, tok := range tokens {
		if _, ok := set[tok]; !ok {
			return false
		}
	}
	return true
}
