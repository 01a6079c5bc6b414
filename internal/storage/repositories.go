package storage

// Repositories bundles every repository over one connection.
type Repositories struct {
	Cache          *CacheRepository
	WebsiteChunks  *ChunkRepository
	DocumentChunks *ChunkRepository
	Knowledge      *KnowledgeRepository
	Products       *ProductRepository
	Sources        *SourceRepository
}

// NewRepositories creates the repository bundle.
func NewRepositories(conn *Conn) *Repositories {
	return &Repositories{
		Cache:          NewCacheRepository(conn),
		WebsiteChunks:  NewChunkRepository(conn, CorpusWebsite),
		DocumentChunks: NewChunkRepository(conn, CorpusDocuments),
		Knowledge:      NewKnowledgeRepository(conn),
		Products:       NewProductRepository(conn),
		Sources:        NewSourceRepository(conn),
	}
}

// Chunks returns the chunk repository for corpus.
func (r *Repositories) Chunks(corpus Corpus) *ChunkRepository {
	if corpus == CorpusDocuments {
		return r.DocumentChunks
	}
	return r.WebsiteChunks
}
