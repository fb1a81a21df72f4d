package services

import (
	"context"
	"fmt"

	"github.com/arcadia-data/catalens/internal/core/domain"
	"github.com/arcadia-data/catalens/internal/core/ports/driven"
	"github.com/arcadia-data/catalens/internal/core/ports/driving"
	"github.com/arcadia-data/catalens/internal/logger"
	"github.com/arcadia-data/catalens/internal/metrics"
)

var _ driving.ReindexService = (*Reindexer)(nil)

// Reindexer processes partitions of a distributed reindex job. Each
// partition is a slice of entities destined for a target index; entities
// whose content fingerprint already matches the target are skipped without
// re-embedding. Completion is persisted to the partition store and reported
// to the job's tracker so finished entity types promote early.
type Reindexer struct {
	store      driven.DocumentStore
	partitions driven.PartitionStore
	writer     *IndexWriteService
	builder    *DocumentBuilder
	tracker    *CompletionTracker
	log        *logger.Logger
	bulkOpts   []BulkOption
}

// NewReindexer creates a partition worker bound to one job's tracker.
// Extra options are passed through to each partition's bulk indexer.
func NewReindexer(
	store driven.DocumentStore,
	partitions driven.PartitionStore,
	writer *IndexWriteService,
	builder *DocumentBuilder,
	tracker *CompletionTracker,
	log *logger.Logger,
	bulkOpts ...BulkOption,
) *Reindexer {
	if log == nil {
		log = logger.Discard()
	}
	return &Reindexer{
		store:      store,
		partitions: partitions,
		writer:     writer,
		builder:    builder,
		tracker:    tracker,
		log:        log,
		bulkOpts:   bulkOpts,
	}
}

// ProcessPartition reindexes one partition's entities into targetIndex.
// Individual entity failures are counted and do not abort the partition;
// the partition is marked failed if any document fails to build or index.
// Completion is always recorded, even on failure, so the tracker's counts
// stay consistent with the partition store.
func (r *Reindexer) ProcessPartition(ctx context.Context, partition domain.ReindexPartition, entities []*domain.Entity, targetIndex string) error {
	// Stamp the context so anything downstream logging with it carries
	// the partition's identity.
	ctx = logger.ContextWithJobID(ctx, partition.JobID)
	ctx = logger.ContextWithEntityType(ctx, partition.EntityType)
	ctx = logger.ContextWithIndex(ctx, targetIndex)
	log := r.log.WithContext(ctx).With("partition", partition.PartitionIndex)

	partition.Status = domain.PartitionRunning
	if err := r.partitions.Save(ctx, partition); err != nil {
		log.Warn("failed to persist partition start", "error", err)
	}

	existing := r.lookupFingerprints(ctx, targetIndex, entities, log)

	opts := append([]BulkOption{WithEntityTypeLabel(partition.EntityType)}, r.bulkOpts...)
	bulk := NewBulkIndexer(r.store, targetIndex, r.log, opts...)

	var skipped, buildFailures int
	for _, entity := range entities {
		if err := ctx.Err(); err != nil {
			r.finishPartition(partition, true, log)
			return fmt.Errorf("partition aborted: %w", err)
		}

		fingerprint := r.builder.Fingerprint(entity)
		if fingerprint != "" && existing[entity.ID] == fingerprint {
			skipped++
			metrics.UpsertsSkipped.Inc()
			continue
		}

		docs, err := r.builder.Build(ctx, entity)
		if err != nil {
			buildFailures++
			metrics.DocumentsFailed.WithLabelValues(partition.EntityType).Inc()
			log.Error("failed to build documents for entity", "entity_id", entity.ID, "error", err)
			continue
		}
		for i, doc := range docs {
			bulk.AddChunk(ctx, domain.ChunkDocID(entity.ID, i), doc)
		}
	}
	bulk.Close(ctx)

	failed := buildFailures > 0 || bulk.TotalFailed() > 0
	log.Info("partition processed",
		"entities", len(entities),
		"skipped_unchanged", skipped,
		"chunks_indexed", bulk.TotalSuccess(),
		"chunks_failed", bulk.TotalFailed(),
		"build_failures", buildFailures,
	)

	r.finishPartition(partition, failed, log)
	return nil
}

// Status returns the tracker's view of one entity type, or nil if the
// type was never initialized for this job.
func (r *Reindexer) Status(entityType string) *domain.EntityCompletionStatus {
	return r.tracker.Status(entityType)
}

// PromotedEntities lists entity types already promoted in this job.
func (r *Reindexer) PromotedEntities() []string {
	return r.tracker.PromotedEntities()
}

// Reconcile re-reads persisted partition state for the job and promotes
// any entity types whose completions this worker never saw in memory.
func (r *Reindexer) Reconcile(ctx context.Context) error {
	partitions, err := r.partitions.ListByJob(ctx, r.tracker.JobID())
	if err != nil {
		return fmt.Errorf("failed to list partitions for reconciliation: %w", err)
	}
	r.tracker.ReconcileFromStore(partitions)
	return nil
}

// lookupFingerprints fetches existing fingerprints for the partition's
// entities in one query. A lookup failure only disables skip detection.
func (r *Reindexer) lookupFingerprints(ctx context.Context, index string, entities []*domain.Entity, log *logger.Logger) map[string]string {
	ids := make([]string, 0, len(entities))
	for _, e := range entities {
		ids = append(ids, e.ID)
	}

	existing, err := r.writer.ExistingFingerprintsBatch(ctx, index, ids)
	if err != nil {
		log.Warn("batch fingerprint lookup failed, reindexing all entities", "error", err)
		return nil
	}
	return existing
}

func (r *Reindexer) finishPartition(partition domain.ReindexPartition, failed bool, log *logger.Logger) {
	status := domain.PartitionCompleted
	if failed {
		status = domain.PartitionFailed
	}
	if err := r.partitions.UpdateStatus(context.Background(), partition.JobID, partition.EntityType, partition.PartitionIndex, status); err != nil {
		log.Warn("failed to persist partition completion", "status", status, "error", err)
	}
	r.tracker.RecordPartitionComplete(partition.EntityType, failed)
}
