package memory

import (
	"context"
	"sync"

	"github.com/arcadia-data/catalens/internal/core/domain"
	"github.com/arcadia-data/catalens/internal/core/ports/driven"
)

// Ensure PartitionStore implements the interface.
var _ driven.PartitionStore = (*PartitionStore)(nil)

// PartitionStore is an in-memory implementation of driven.PartitionStore.
type PartitionStore struct {
	mu         sync.RWMutex
	partitions map[partitionKey]domain.ReindexPartition
	order      []partitionKey
}

type partitionKey struct {
	jobID      string
	entityType string
	index      int
}

// NewPartitionStore creates a new in-memory partition store.
func NewPartitionStore() *PartitionStore {
	return &PartitionStore{
		partitions: make(map[partitionKey]domain.ReindexPartition),
	}
}

// Save stores or updates a partition.
func (s *PartitionStore) Save(_ context.Context, p domain.ReindexPartition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := partitionKey{p.JobID, p.EntityType, p.PartitionIndex}
	if _, ok := s.partitions[key]; !ok {
		s.order = append(s.order, key)
	}
	s.partitions[key] = p
	return nil
}

// UpdateStatus transitions one partition's status.
func (s *PartitionStore) UpdateStatus(_ context.Context, jobID string, entityType string, partitionIndex int, status domain.PartitionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := partitionKey{jobID, entityType, partitionIndex}
	p, ok := s.partitions[key]
	if !ok {
		return domain.ErrNotFound
	}
	p.Status = status
	s.partitions[key] = p
	return nil
}

// ListByJob returns all partitions recorded for a job, in insertion order.
func (s *PartitionStore) ListByJob(_ context.Context, jobID string) ([]domain.ReindexPartition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ReindexPartition, 0)
	for _, key := range s.order {
		if key.jobID == jobID {
			out = append(out, s.partitions[key])
		}
	}
	return out, nil
}

// Close releases resources.
func (s *PartitionStore) Close() error {
	return nil
}
