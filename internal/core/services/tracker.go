package services

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/arcadia-data/catalens/internal/core/domain"
	"github.com/arcadia-data/catalens/internal/logger"
	"github.com/arcadia-data/catalens/internal/metrics"
)

// CompletionCallback is invoked when an entity type's partitions all
// finish. success is false if any partition failed.
type CompletionCallback func(entityType string, success bool)

// CompletionTracker tracks partition completion per entity type during
// distributed reindexing. When all partitions for an entity type complete,
// it fires the registered callback once - promoting that entity type's
// index immediately rather than waiting for the whole job to finish.
//
// This is the one component built for concurrent access: completion
// reports arrive from independent workers. Counters are atomic and the
// promotion guard is an insert-if-absent on the promoted set, so the
// callback fires at most once per entity type per job even under
// simultaneous final completions.
type CompletionTracker struct {
	jobID string
	log   *logger.Logger

	mu        sync.RWMutex
	total     map[string]*atomic.Int32
	completed map[string]*atomic.Int32
	failed    map[string]*atomic.Int32

	promotedMu sync.Mutex
	promoted   map[string]struct{}

	onEntityComplete CompletionCallback
}

// NewCompletionTracker creates a tracker for one reindex job.
func NewCompletionTracker(jobID string, log *logger.Logger) *CompletionTracker {
	if log == nil {
		log = logger.Discard()
	}
	return &CompletionTracker{
		jobID:     jobID,
		log:       log,
		total:     make(map[string]*atomic.Int32),
		completed: make(map[string]*atomic.Int32),
		failed:    make(map[string]*atomic.Int32),
		promoted:  make(map[string]struct{}),
	}
}

// JobID returns the job this tracker belongs to.
func (t *CompletionTracker) JobID() string { return t.jobID }

// SetOnEntityComplete registers the promotion callback. Must be called
// before workers start reporting.
func (t *CompletionTracker) SetOnEntityComplete(cb CompletionCallback) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEntityComplete = cb
}

// InitializeEntity starts tracking an entity type with its partition count.
func (t *CompletionTracker) InitializeEntity(entityType string, partitionCount int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	total := &atomic.Int32{}
	total.Store(int32(partitionCount))
	t.total[entityType] = total
	t.completed[entityType] = &atomic.Int32{}
	t.failed[entityType] = &atomic.Int32{}

	t.log.Debug("initialized entity tracking",
		"entity_type", entityType, "partitions", partitionCount, "job_id", t.jobID)
}

// RecordPartitionComplete records one partition finishing, successfully or
// not. Reports for entity types never initialized are logged and ignored.
func (t *CompletionTracker) RecordPartitionComplete(entityType string, partitionFailed bool) {
	t.mu.RLock()
	completed := t.completed[entityType]
	total := t.total[entityType]
	failed := t.failed[entityType]
	t.mu.RUnlock()

	if completed == nil || total == nil {
		t.log.Warn("partition completion for untracked entity type",
			"entity_type", entityType, "job_id", t.jobID)
		return
	}

	if partitionFailed && failed != nil {
		failed.Add(1)
	}

	newCompleted := completed.Add(1)
	totalCount := total.Load()

	t.log.Debug("partition completed",
		"entity_type", entityType, "completed", newCompleted, "total", totalCount,
		"failed", partitionFailed, "job_id", t.jobID)

	if newCompleted >= totalCount {
		hasFailed := failed != nil && failed.Load() > 0
		t.promoteIfReady(entityType, hasFailed)
	}
}

// ReconcileFromStore inspects persisted partition state and promotes any
// not-yet-promoted entity type whose partitions are all terminal. This
// catches completions recorded only in durable storage - reported by other
// worker processes or marked failed by a stale-partition reclaimer - that
// this tracker's in-memory counters never saw.
func (t *CompletionTracker) ReconcileFromStore(partitions []domain.ReindexPartition) {
	byEntity := make(map[string][]domain.ReindexPartition)
	for _, p := range partitions {
		byEntity[p.EntityType] = append(byEntity[p.EntityType], p)
	}

	for entityType, entityPartitions := range byEntity {
		if t.IsPromoted(entityType) {
			continue
		}

		allDone := len(entityPartitions) > 0
		hasFailed := false
		for _, p := range entityPartitions {
			if !p.Status.Terminal() {
				allDone = false
				break
			}
			if p.Status == domain.PartitionFailed {
				hasFailed = true
			}
		}

		if allDone {
			t.log.Info("reconciliation found completed entity type",
				"entity_type", entityType, "partitions", len(entityPartitions),
				"has_failed", hasFailed, "job_id", t.jobID)
			t.promoteIfReady(entityType, hasFailed)
		}
	}
}

// promoteIfReady fires the completion callback exactly once per entity
// type. Callback panics and errors are isolated: they must never reach the
// reporting worker or block other entity types.
func (t *CompletionTracker) promoteIfReady(entityType string, hasFailed bool) {
	t.promotedMu.Lock()
	if _, already := t.promoted[entityType]; already {
		t.promotedMu.Unlock()
		return
	}
	t.promoted[entityType] = struct{}{}
	t.promotedMu.Unlock()

	success := !hasFailed
	metrics.EntityTypesCompleted.Inc()
	t.log.Info("entity type fully reindexed",
		"entity_type", entityType, "success", success, "job_id", t.jobID)

	t.mu.RLock()
	cb := t.onEntityComplete
	t.mu.RUnlock()
	if cb == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			t.log.Error("entity completion callback panicked",
				"entity_type", entityType, "job_id", t.jobID, "panic", r)
		}
	}()
	cb(entityType, success)
}

// IsPromoted reports whether the entity type has been promoted.
func (t *CompletionTracker) IsPromoted(entityType string) bool {
	t.promotedMu.Lock()
	defer t.promotedMu.Unlock()
	_, ok := t.promoted[entityType]
	return ok
}

// PromotedEntities returns the promoted entity types, sorted.
func (t *CompletionTracker) PromotedEntities() []string {
	t.promotedMu.Lock()
	defer t.promotedMu.Unlock()
	out := make([]string, 0, len(t.promoted))
	for entityType := range t.promoted {
		out = append(out, entityType)
	}
	sort.Strings(out)
	return out
}

// Status returns the completion status for an entity type, or nil if the
// type was never initialized.
func (t *CompletionTracker) Status(entityType string) *domain.EntityCompletionStatus {
	t.mu.RLock()
	total := t.total[entityType]
	completed := t.completed[entityType]
	failed := t.failed[entityType]
	t.mu.RUnlock()

	if total == nil {
		return nil
	}

	status := &domain.EntityCompletionStatus{
		EntityType:      entityType,
		TotalPartitions: int(total.Load()),
		Promoted:        t.IsPromoted(entityType),
	}
	if completed != nil {
		status.CompletedPartitions = int(completed.Load())
	}
	if failed != nil {
		status.FailedPartitions = int(failed.Load())
	}
	return status
}
