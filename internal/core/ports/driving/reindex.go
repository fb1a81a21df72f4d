package driving

import (
	"context"

	"github.com/arcadia-data/catalens/internal/core/domain"
)

// ReindexService coordinates distributed reindex partitions.
type ReindexService interface {
	// ProcessPartition reindexes one partition's entities into the target
	// index and reports completion to the job's tracker.
	ProcessPartition(ctx context.Context, partition domain.ReindexPartition, entities []*domain.Entity, targetIndex string) error

	// Status returns the completion status for an entity type, or nil if
	// the type was never initialized for this job.
	Status(entityType string) *domain.EntityCompletionStatus

	// PromotedEntities lists entity types already promoted in this job.
	PromotedEntities() []string
}
