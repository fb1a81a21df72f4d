package domain

// PartitionStatus is the persisted lifecycle state of a reindex partition.
type PartitionStatus string

const (
	PartitionPending   PartitionStatus = "PENDING"
	PartitionRunning   PartitionStatus = "RUNNING"
	PartitionCompleted PartitionStatus = "COMPLETED"
	PartitionFailed    PartitionStatus = "FAILED"
)

// Terminal reports whether the partition has finished, successfully or not.
func (s PartitionStatus) Terminal() bool {
	return s == PartitionCompleted || s == PartitionFailed
}

// ReindexPartition is one independently executed slice of a distributed
// reindex job. Workers persist status transitions; the completion tracker
// reads them back during reconciliation.
type ReindexPartition struct {
	JobID          string
	EntityType     string
	PartitionIndex int
	Status         PartitionStatus
}

// EntityCompletionStatus is the tracker's in-memory view of one entity
// type's progress within a job.
type EntityCompletionStatus struct {
	EntityType          string
	TotalPartitions     int
	CompletedPartitions int
	FailedPartitions    int
	Promoted            bool
}
