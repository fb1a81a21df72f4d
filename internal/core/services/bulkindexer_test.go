package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcadia-data/catalens/internal/core/domain"
	"github.com/arcadia-data/catalens/internal/core/ports/driven"
	"github.com/arcadia-data/catalens/internal/logger"
)

func chunkDoc(parentID string, idx int) domain.ChunkDocument {
	return domain.ChunkDocument{
		domain.FieldParentID:   parentID,
		domain.FieldChunkIndex: idx,
		domain.FieldEmbedding:  []float32{0.1, 0.2},
	}
}

func TestBulkNoFlushAtExactThreshold(t *testing.T) {
	store := &mockDocumentStore{}
	b := NewBulkIndexer(store, "idx", logger.Discard(), WithMaxActions(3))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		b.AddChunk(ctx, domain.ChunkDocID("p", i), chunkDoc("p", i))
	}

	// Buffer sits at the threshold until the next add.
	assert.Empty(t, store.bulkCalls)
	assert.Equal(t, int64(0), b.TotalSuccess())
}

func TestBulkFlushTriggeredByNextAdd(t *testing.T) {
	store := &mockDocumentStore{}
	b := NewBulkIndexer(store, "idx", logger.Discard(), WithMaxActions(3))

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		b.AddChunk(ctx, domain.ChunkDocID("p", i), chunkDoc("p", i))
	}

	// The 4th add flushed the first 3, then buffered itself.
	require.Len(t, store.bulkCalls, 1)
	assert.Len(t, store.bulkCalls[0], 3)
	assert.Equal(t, int64(3), b.TotalSuccess())

	b.Close(ctx)
	require.Len(t, store.bulkCalls, 2)
	assert.Len(t, store.bulkCalls[1], 1)
	assert.Equal(t, int64(4), b.TotalSuccess())
}

func TestBulkCloseDrainsThresholdSizedBuffer(t *testing.T) {
	store := &mockDocumentStore{}
	b := NewBulkIndexer(store, "idx", logger.Discard(), WithMaxActions(2))

	ctx := context.Background()
	b.AddChunk(ctx, "p-0", chunkDoc("p", 0))
	b.AddChunk(ctx, "p-1", chunkDoc("p", 1))
	b.Close(ctx)

	require.Len(t, store.bulkCalls, 1)
	assert.Len(t, store.bulkCalls[0], 2)
}

func TestBulkEmptyFlushMakesNoNetworkCall(t *testing.T) {
	store := &mockDocumentStore{}
	b := NewBulkIndexer(store, "idx", logger.Discard())

	b.Flush(context.Background())
	b.Close(context.Background())

	assert.Empty(t, store.bulkCalls)
}

func TestBulkPerItemFailuresCounted(t *testing.T) {
	store := &mockDocumentStore{
		bulkResults: [][]driven.BulkResult{{
			{ID: "p-0"},
			{ID: "p-1", Failed: true, Reason: "mapper_parsing_exception"},
			{ID: "p-2"},
		}},
	}
	b := NewBulkIndexer(store, "idx", logger.Discard())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		b.AddChunk(ctx, domain.ChunkDocID("p", i), chunkDoc("p", i))
	}
	b.Flush(ctx)

	assert.Equal(t, int64(2), b.TotalSuccess())
	assert.Equal(t, int64(1), b.TotalFailed())
}

func TestBulkTransportFailureFailsWholeBatchAndClearsBuffer(t *testing.T) {
	store := &mockDocumentStore{bulkErr: errBoom}
	b := NewBulkIndexer(store, "idx", logger.Discard())

	ctx := context.Background()
	b.AddChunk(ctx, "p-0", chunkDoc("p", 0))
	b.AddChunk(ctx, "p-1", chunkDoc("p", 1))
	b.Flush(ctx)

	assert.Equal(t, int64(0), b.TotalSuccess())
	assert.Equal(t, int64(2), b.TotalFailed())

	// Buffer was cleared despite the failure.
	store.bulkErr = nil
	b.Flush(ctx)
	assert.Len(t, store.bulkCalls, 1)
}

func TestBulkPayloadThresholdTriggersFlush(t *testing.T) {
	store := &mockDocumentStore{}
	// Tiny payload budget: every doc estimate exceeds it once one is buffered.
	b := NewBulkIndexer(store, "idx", logger.Discard(), WithMaxPayloadBytes(10))

	ctx := context.Background()
	doc := domain.ChunkDocument{
		domain.FieldParentID:    "p",
		domain.FieldTextToEmbed: "some reasonably long embedded text",
		domain.FieldEmbedding:   []float32{0.1, 0.2, 0.3, 0.4},
	}
	b.AddChunk(ctx, "p-0", doc)
	assert.Empty(t, store.bulkCalls)

	b.AddChunk(ctx, "p-1", doc)
	require.Len(t, store.bulkCalls, 1)
	assert.Len(t, store.bulkCalls[0], 1)
}

func TestEstimateChunkSize(t *testing.T) {
	doc := domain.ChunkDocument{
		domain.FieldEmbedding: []float32{0, 0, 0, 0}, // 16
		domain.FieldParentID:  "abcde",               // 10
		"columns":             []string{"a", "b"},    // 100
	}
	// (16 + 10 + 100) * 1.2
	assert.Equal(t, int64(151), estimateChunkSize(doc))
}
