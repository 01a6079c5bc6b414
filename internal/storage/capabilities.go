package storage

import (
	"context"
	"fmt"
)

// Capabilities records what the connected schema supports. It is probed once at
// startup and handed to the components that depend on it.
type Capabilities struct {
	Dialect            Dialect
	WebsiteEmbeddings  bool
	DocumentEmbeddings bool
	ResponseCache      bool
	KnowledgeItems     bool
	Products           bool
}

// HasEmbeddings reports whether the embedding table for corpus exists.
func (c Capabilities) HasEmbeddings(corpus Corpus) bool {
	if corpus == CorpusDocuments {
		return c.DocumentEmbeddings
	}
	return c.WebsiteEmbeddings
}

// FullCapabilities describes a fully migrated schema.
func FullCapabilities(dialect Dialect) Capabilities {
	return Capabilities{
		Dialect:            dialect,
		WebsiteEmbeddings:  true,
		DocumentEmbeddings: true,
		ResponseCache:      true,
		KnowledgeItems:     true,
		Products:           true,
	}
}

// ProbeCapabilities inspects the schema behind conn.
func ProbeCapabilities(ctx context.Context, conn *Conn) (Capabilities, error) {
	caps := Capabilities{Dialect: conn.Dialect()}

	probes := []struct {
		table string
		dst   *bool
	}{
		{"website_embeddings", &caps.WebsiteEmbeddings},
		{"document_embeddings", &caps.DocumentEmbeddings},
		{"response_cache", &caps.ResponseCache},
		{"knowledge_items", &caps.KnowledgeItems},
		{"products", &caps.Products},
	}

	for _, p := range probes {
		ok, err := tableExists(ctx, conn, p.table)
		if err != nil {
			return caps, fmt.Errorf("probe table %s: %w", p.table, err)
		}
		*p.dst = ok
	}

	return caps, nil
}

func tableExists(ctx context.Context, conn *Conn, table string) (bool, error) {
	query := `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
	if conn.Dialect() == DialectPostgres {
		query = `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = ?`
	}

	var n int
	if err := conn.QueryRowContext(ctx, query, table).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}
