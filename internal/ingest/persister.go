package ingest

import (
	"context"
	"errors"
	"time"

	"ingest-service/internal/models"
	"ingest-service/internal/store"
	"ingest-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultChunkSize amortizes transaction overhead; low thousands keeps the
// per-chunk working set small while staying far ahead of row-at-a-time
// writes.
const DefaultChunkSize = 2000

// ChunkStore is the persistence boundary of the ingest path. Implemented
// by *store.Store; faked in tests.
type ChunkStore interface {
	PersistChunk(ctx context.Context, tenantID uuid.UUID, drafts []*models.OrderDraft) (map[string]struct{}, error)
	PersistOne(ctx context.Context, draft *models.OrderDraft) (models.LineResult, error)
}

// ProductCache answers approximate product membership. A warm=false answer
// carries no signal; the database foreign key stays the arbiter.
type ProductCache interface {
	KnownProducts(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (known map[uuid.UUID]bool, warm bool, err error)
}

// EventPublisher announces committed orders downstream.
type EventPublisher interface {
	PublishOrdersAccepted(ctx context.Context, tenantID uuid.UUID, orders []*models.OrderDraft) error
}

// Persister chunks validated records and commits them through bulk writes,
// falling back to record-at-a-time transactions when a chunk hits a
// referential problem. It reports every record's disposition against its
// original line number.
type Persister struct {
	store     ChunkStore
	cache     ProductCache
	publisher EventPublisher
	chunkSize int
	logger    *zap.Logger
}

// NewPersister creates a persister. cache and publisher may be nil.
func NewPersister(store ChunkStore, cache ProductCache, publisher EventPublisher, chunkSize int, logger *zap.Logger) *Persister {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if logger == nil {
		logger = util.GetLogger()
	}
	return &Persister{
		store:     store,
		cache:     cache,
		publisher: publisher,
		chunkSize: chunkSize,
		logger:    logger,
	}
}

// Batch is the per-request persistence state. Records stream in through
// Add; at most one chunk is buffered at a time, so memory stays O(chunk
// size) regardless of request size.
type Batch struct {
	p        *Persister
	tenantID uuid.UUID
	pending  []*models.OrderDraft
	results  []models.LineResult
	down     bool
	attempt  bool
}

// Begin starts a new per-request batch for one tenant.
func (p *Persister) Begin(tenantID uuid.UUID) *Batch {
	return &Batch{
		p:        p,
		tenantID: tenantID,
		pending:  make([]*models.OrderDraft, 0, p.chunkSize),
	}
}

// Add buffers one validated draft, flushing when the chunk fills up.
func (b *Batch) Add(ctx context.Context, draft *models.OrderDraft) {
	b.pending = append(b.pending, draft)
	if len(b.pending) >= b.p.chunkSize {
		b.flush(ctx)
	}
}

// Finish flushes the trailing partial chunk and returns every result
// produced by this batch, unordered.
func (b *Batch) Finish(ctx context.Context) []models.LineResult {
	b.flush(ctx)
	return b.results
}

// Down reports whether the storage layer became unreachable.
func (b *Batch) Down() bool { return b.down }

// Attempted reports whether any record reached a definitive outcome, which
// distinguishes "storage died mid-request" from "storage was never there".
func (b *Batch) Attempted() bool { return b.attempt }

func (b *Batch) flush(ctx context.Context) {
	drafts := b.pending
	b.pending = b.pending[:0]
	if len(drafts) == 0 {
		return
	}
	if b.down {
		b.markNotAttempted(drafts)
		return
	}

	ctx, span := util.StartSpan(ctx, "Persister.flush")
	defer span.End()

	bulk, slow := b.routeByCache(ctx, drafts)
	b.persistBulk(ctx, bulk)
	if !b.down && len(slow) > 0 {
		b.persistSerially(ctx, slow)
	} else if b.down {
		b.markNotAttempted(slow)
	}
}

// routeByCache splits the chunk so that records whose products are already
// known to the membership cache take the bulk path, and the rest go
// straight to the per-record path. With a cold or absent cache everything
// stays on the bulk path; a chunk conflict then triggers the fallback.
func (b *Batch) routeByCache(ctx context.Context, drafts []*models.OrderDraft) (bulk, slow []*models.OrderDraft) {
	if b.p.cache == nil {
		return drafts, nil
	}

	idSet := make(map[uuid.UUID]struct{})
	for _, d := range drafts {
		for _, it := range d.Items {
			idSet[it.ProductID] = struct{}{}
		}
	}
	ids := make([]uuid.UUID, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}

	known, warm, err := b.p.cache.KnownProducts(ctx, b.tenantID, ids)
	if err != nil {
		b.p.logger.Warn("product cache lookup failed, skipping pre-filter", zap.Error(err))
		return drafts, nil
	}
	if !warm {
		return drafts, nil
	}

	for _, d := range drafts {
		suspect := false
		for _, it := range d.Items {
			if !known[it.ProductID] {
				suspect = true
				break
			}
		}
		if suspect {
			util.ProductCacheMisses.Inc()
			slow = append(slow, d)
		} else {
			util.ProductCacheHits.Inc()
			bulk = append(bulk, d)
		}
	}
	return bulk, slow
}

func (b *Batch) persistBulk(ctx context.Context, drafts []*models.OrderDraft) {
	if len(drafts) == 0 {
		return
	}

	start := time.Now()
	duplicates, err := b.p.store.PersistChunk(ctx, b.tenantID, drafts)
	util.ChunkCommitLatency.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		b.attempt = true
		b.recordChunkOutcomes(ctx, drafts, duplicates)

	case errors.Is(err, store.ErrUnavailable):
		b.p.logger.Error("storage unavailable during chunk", zap.Error(err))
		b.down = true
		b.markNotAttempted(drafts)

	default:
		var conflict *store.ChunkConflictError
		if errors.As(err, &conflict) {
			b.p.logger.Info("chunk conflict, retrying record-at-a-time",
				zap.Int("records", len(drafts)),
				zap.Error(conflict.Cause))
			util.ChunkFallbacksTotal.Inc()
			b.persistSerially(ctx, drafts)
			return
		}
		// Unknown statement-level failure: isolate it the same way.
		b.p.logger.Error("chunk insert failed, retrying record-at-a-time", zap.Error(err))
		util.ChunkFallbacksTotal.Inc()
		b.persistSerially(ctx, drafts)
	}
}

// recordChunkOutcomes assigns accepted/duplicate per line. Within a chunk
// the first occurrence of a reserved key is the accepted one; later
// occurrences and keys that lost the constraint race are duplicates.
func (b *Batch) recordChunkOutcomes(ctx context.Context, drafts []*models.OrderDraft, duplicates map[string]struct{}) {
	accepted := make([]*models.OrderDraft, 0, len(drafts))
	seen := make(map[string]struct{}, len(drafts))
	for _, d := range drafts {
		_, lost := duplicates[d.IdempotencyKey]
		_, repeat := seen[d.IdempotencyKey]
		seen[d.IdempotencyKey] = struct{}{}

		if lost || repeat {
			b.results = append(b.results, models.LineResult{
				Line:   d.Line,
				Status: models.LineDuplicate,
			})
			continue
		}
		b.results = append(b.results, models.LineResult{
			Line:    d.Line,
			Status:  models.LineAccepted,
			OrderID: d.OrderID,
		})
		accepted = append(accepted, d)
	}
	b.publish(ctx, accepted)
}

func (b *Batch) persistSerially(ctx context.Context, drafts []*models.OrderDraft) {
	accepted := make([]*models.OrderDraft, 0, len(drafts))
	for i, d := range drafts {
		if b.down {
			b.markNotAttempted(drafts[i:])
			break
		}
		util.FallbackRecordsTotal.Inc()
		res, err := b.p.store.PersistOne(ctx, d)
		if errors.Is(err, store.ErrUnavailable) {
			b.p.logger.Error("storage unavailable during fallback",
				zap.Int("line", d.Line),
				zap.Error(err))
			b.down = true
			b.markNotAttempted(drafts[i:])
			break
		}
		if err != nil {
			// Statement-level failure isolated to this record.
			b.attempt = true
			b.results = append(b.results, models.LineResult{
				Line:   d.Line,
				Status: models.LineRejected,
				Reason: err.Error(),
			})
			continue
		}
		b.attempt = true
		b.results = append(b.results, res)
		if res.Status == models.LineAccepted {
			accepted = append(accepted, d)
		}
	}
	b.publish(ctx, accepted)
}

// publish is fire-and-forget: a broker outage must not fail lines that are
// already committed.
func (b *Batch) publish(ctx context.Context, accepted []*models.OrderDraft) {
	if b.p.publisher == nil || len(accepted) == 0 {
		return
	}
	if err := b.p.publisher.PublishOrdersAccepted(ctx, b.tenantID, accepted); err != nil {
		b.p.logger.Error("failed to publish order events",
			zap.Int("orders", len(accepted)),
			zap.Error(err))
	}
}

func (b *Batch) markNotAttempted(drafts []*models.OrderDraft) {
	for _, d := range drafts {
		b.results = append(b.results, models.LineResult{
			Line:   d.Line,
			Status: models.LineNotAttempted,
			Reason: "storage unavailable",
		})
	}
}
