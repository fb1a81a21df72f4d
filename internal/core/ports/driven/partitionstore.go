package driven

import (
	"context"

	"github.com/arcadia-data/catalens/internal/core/domain"
)

// PartitionStore persists reindex partition state. Workers record status
// transitions here; the completion tracker reads them back to reconcile
// completions it never observed in memory.
type PartitionStore interface {
	// Save stores or updates a partition.
	Save(ctx context.Context, p domain.ReindexPartition) error

	// UpdateStatus transitions one partition's status.
	UpdateStatus(ctx context.Context, jobID string, entityType string, partitionIndex int, status domain.PartitionStatus) error

	// ListByJob returns all partitions recorded for a job.
	ListByJob(ctx context.Context, jobID string) ([]domain.ReindexPartition, error)

	// Close releases resources.
	Close() error
}
