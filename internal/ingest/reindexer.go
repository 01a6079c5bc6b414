package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/answer-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/storage"
)

// DocumentIndexer indexes one document. *Pipeline implements it.
type DocumentIndexer interface {
	IndexDocument(ctx context.Context, tenantID string, documentID uuid.UUID) (*Result, error)
}

type reindexJob struct {
	tenantID   string
	documentID uuid.UUID
}

// Reindexer indexes documents in the background on a bounded worker pool.
type Reindexer struct {
	indexer DocumentIndexer
	logger  *observability.Logger
	metrics *observability.Metrics
	workers int
	timeout time.Duration

	queue  chan reindexJob
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu       sync.Mutex
	inflight map[reindexJob]struct{}
	started  bool
	stopped  bool
}

// NewReindexer creates a reindexer. Call Start before enqueueing.
func NewReindexer(indexer DocumentIndexer, cfg config.IngestConfig, logger *observability.Logger, metrics *observability.Metrics) *Reindexer {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	return &Reindexer{
		indexer:  indexer,
		logger:   logger.WithComponent("reindexer"),
		metrics:  metrics,
		workers:  cfg.Workers,
		timeout:  5 * time.Minute,
		queue:    make(chan reindexJob, cfg.QueueSize),
		stopCh:   make(chan struct{}),
		inflight: make(map[reindexJob]struct{}),
	}
}

// Start launches the workers. Jobs run under ctx; cancelling it aborts in-flight work.
func (r *Reindexer) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.stopped {
		return
	}
	r.started = true

	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.run(ctx)
	}
	r.logger.Debug().Int("workers", r.workers).Msg("Reindexer started")
}

// EnqueueDocument schedules a document without blocking. It returns false when the
// document is already queued, the queue is full or the reindexer is stopped.
func (r *Reindexer) EnqueueDocument(tenantID string, documentID uuid.UUID) bool {
	job := reindexJob{tenantID: tenantID, documentID: documentID}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return false
	}
	if _, ok := r.inflight[job]; ok {
		return false
	}

	select {
	case r.queue <- job:
		r.inflight[job] = struct{}{}
		r.metrics.RecordReindex("queued")
		return true
	default:
		r.metrics.RecordReindex("dropped")
		r.logger.WithTenant(tenantID).Warn().
			Str("document_id", documentID.String()).
			Msg("Reindex queue full, dropping document")
		return false
	}
}

// Stop stops accepting jobs, lets workers finish the job at hand and waits for them.
// Queued jobs that were not started are discarded; their documents stay pending.
func (r *Reindexer) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	close(r.stopCh)
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Reindexer) run(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case job := <-r.queue:
			r.process(ctx, job)
		}
	}
}

func (r *Reindexer) process(ctx context.Context, job reindexJob) {
	defer func() {
		r.mu.Lock()
		delete(r.inflight, job)
		r.mu.Unlock()
	}()

	jobCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.indexer.IndexDocument(jobCtx, job.tenantID, job.documentID)
	if err != nil {
		r.metrics.RecordReindex(string(storage.SourceFailed))
		r.logger.WithTenant(job.tenantID).Warn().
			Err(err).
			Str("document_id", job.documentID.String()).
			Msg("Background indexing failed")
		return
	}

	r.metrics.RecordReindex(string(storage.SourceIndexed))
	r.logger.WithTenant(job.tenantID).Debug().
		Str("document_id", job.documentID.String()).
		Int("chunks", res.Chunks).
		Msg("Background indexing finished")
}
