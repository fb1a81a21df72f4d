package services

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcadia-data/catalens/internal/core/domain"
	"github.com/arcadia-data/catalens/internal/logger"
)

func newTestTracker() *CompletionTracker {
	return NewCompletionTracker("job-1", logger.Discard())
}

func TestCompletionTracker_PromotesWhenAllPartitionsComplete(t *testing.T) {
	tracker := newTestTracker()
	tracker.InitializeEntity("table", 3)

	var gotType string
	var gotSuccess bool
	calls := 0
	tracker.SetOnEntityComplete(func(entityType string, success bool) {
		gotType = entityType
		gotSuccess = success
		calls++
	})

	tracker.RecordPartitionComplete("table", false)
	tracker.RecordPartitionComplete("table", false)
	assert.Equal(t, 0, calls)
	assert.False(t, tracker.IsPromoted("table"))

	tracker.RecordPartitionComplete("table", false)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "table", gotType)
	assert.True(t, gotSuccess)
	assert.True(t, tracker.IsPromoted("table"))
}

func TestCompletionTracker_FailedPartitionReportsFailure(t *testing.T) {
	tracker := newTestTracker()
	tracker.InitializeEntity("topic", 2)

	var gotSuccess bool
	tracker.SetOnEntityComplete(func(_ string, success bool) {
		gotSuccess = success
	})

	tracker.RecordPartitionComplete("topic", true)
	tracker.RecordPartitionComplete("topic", false)

	assert.True(t, tracker.IsPromoted("topic"))
	assert.False(t, gotSuccess)
}

func TestCompletionTracker_ConcurrentFinalReportsPromoteOnce(t *testing.T) {
	const workers = 32

	tracker := newTestTracker()
	tracker.InitializeEntity("table", workers)

	var calls atomic.Int32
	tracker.SetOnEntityComplete(func(_ string, _ bool) {
		calls.Add(1)
	})

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			tracker.RecordPartitionComplete("table", false)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, []string{"table"}, tracker.PromotedEntities())
}

func TestCompletionTracker_UntrackedEntityTypeIgnored(t *testing.T) {
	tracker := newTestTracker()

	assert.NotPanics(t, func() {
		tracker.RecordPartitionComplete("dashboard", false)
	})
	assert.False(t, tracker.IsPromoted("dashboard"))
}

func TestCompletionTracker_CallbackPanicIsolated(t *testing.T) {
	tracker := newTestTracker()
	tracker.InitializeEntity("table", 1)
	tracker.InitializeEntity("topic", 1)
	tracker.SetOnEntityComplete(func(entityType string, _ bool) {
		if entityType == "table" {
			panic("promotion exploded")
		}
	})

	assert.NotPanics(t, func() {
		tracker.RecordPartitionComplete("table", false)
	})
	assert.True(t, tracker.IsPromoted("table"))

	tracker.RecordPartitionComplete("topic", false)
	assert.True(t, tracker.IsPromoted("topic"))
}

func TestCompletionTracker_ReconcilePromotesCompletedFromStore(t *testing.T) {
	tracker := newTestTracker()
	tracker.InitializeEntity("table", 2)

	var calls atomic.Int32
	var gotSuccess bool
	tracker.SetOnEntityComplete(func(_ string, success bool) {
		calls.Add(1)
		gotSuccess = success
	})

	partitions := []domain.ReindexPartition{
		{JobID: "job-1", EntityType: "table", PartitionIndex: 0, Status: domain.PartitionCompleted},
		{JobID: "job-1", EntityType: "table", PartitionIndex: 1, Status: domain.PartitionFailed},
	}

	tracker.ReconcileFromStore(partitions)
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, gotSuccess)

	// Reconciling again must not re-promote.
	tracker.ReconcileFromStore(partitions)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCompletionTracker_ReconcileSkipsIncompleteAndEmpty(t *testing.T) {
	tracker := newTestTracker()

	var calls atomic.Int32
	tracker.SetOnEntityComplete(func(_ string, _ bool) {
		calls.Add(1)
	})

	tracker.ReconcileFromStore([]domain.ReindexPartition{
		{JobID: "job-1", EntityType: "table", PartitionIndex: 0, Status: domain.PartitionCompleted},
		{JobID: "job-1", EntityType: "table", PartitionIndex: 1, Status: domain.PartitionRunning},
	})
	assert.Equal(t, int32(0), calls.Load())

	tracker.ReconcileFromStore(nil)
	assert.Equal(t, int32(0), calls.Load())
}

func TestCompletionTracker_Status(t *testing.T) {
	tracker := newTestTracker()

	assert.Nil(t, tracker.Status("unknown"))

	tracker.InitializeEntity("table", 3)
	tracker.RecordPartitionComplete("table", true)

	status := tracker.Status("table")
	require.NotNil(t, status)
	assert.Equal(t, "table", status.EntityType)
	assert.Equal(t, 3, status.TotalPartitions)
	assert.Equal(t, 1, status.CompletedPartitions)
	assert.Equal(t, 1, status.FailedPartitions)
	assert.False(t, status.Promoted)

	tracker.RecordPartitionComplete("table", false)
	tracker.RecordPartitionComplete("table", false)
	assert.True(t, tracker.Status("table").Promoted)
}

func TestCompletionTracker_JobID(t *testing.T) {
	assert.Equal(t, "job-1", newTestTracker().JobID())
}
