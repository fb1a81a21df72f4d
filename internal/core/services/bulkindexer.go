package services

import (
	"context"

	"github.com/arcadia-data/catalens/internal/core/domain"
	"github.com/arcadia-data/catalens/internal/core/ports/driven"
	"github.com/arcadia-data/catalens/internal/logger"
	"github.com/arcadia-data/catalens/internal/metrics"
)

// DefaultMaxBulkActions is the buffered-document count that triggers a flush.
const DefaultMaxBulkActions = 500

// DefaultMaxPayloadBytes is the estimated buffered payload size that
// triggers a flush.
const DefaultMaxPayloadBytes = 50 * 1024 * 1024

// BulkIndexer buffers chunk documents and writes them in batches.
//
// The flush check runs BEFORE a new chunk is buffered: the buffer may sit
// exactly at the action threshold until the next AddChunk flushes it, and
// the tail always needs an explicit Flush or Close. Downstream accounting
// depends on this boundary; do not move the check after the append.
//
// A BulkIndexer is not safe for concurrent use. One buffer belongs to
// exactly one producing worker; use one instance per worker.
type BulkIndexer struct {
	store      driven.DocumentStore
	index      string
	entityType string
	maxActions int
	maxPayload int64
	log        *logger.Logger

	buffer       []driven.BulkItem
	payloadBytes int64
	totalSuccess int64
	totalFailed  int64
}

// BulkOption configures a BulkIndexer.
type BulkOption func(*BulkIndexer)

// WithMaxActions sets the action-count flush threshold.
func WithMaxActions(n int) BulkOption {
	return func(b *BulkIndexer) {
		if n > 0 {
			b.maxActions = n
		}
	}
}

// WithMaxPayloadBytes sets the estimated-payload flush threshold.
func WithMaxPayloadBytes(n int64) BulkOption {
	return func(b *BulkIndexer) {
		if n > 0 {
			b.maxPayload = n
		}
	}
}

// WithEntityTypeLabel sets the entity type reported to metrics.
func WithEntityTypeLabel(entityType string) BulkOption {
	return func(b *BulkIndexer) {
		if entityType != "" {
			b.entityType = entityType
		}
	}
}

// NewBulkIndexer creates a bulk indexer writing to the given index.
func NewBulkIndexer(store driven.DocumentStore, index string, log *logger.Logger, opts ...BulkOption) *BulkIndexer {
	if log == nil {
		log = logger.Discard()
	}
	b := &BulkIndexer{
		store:      store,
		index:      index,
		entityType: "all",
		maxActions: DefaultMaxBulkActions,
		maxPayload: DefaultMaxPayloadBytes,
		log:        log,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// AddChunk buffers one chunk document, flushing the existing buffer first
// if it has reached either threshold.
func (b *BulkIndexer) AddChunk(ctx context.Context, chunkID string, doc domain.ChunkDocument) {
	estimated := estimateChunkSize(doc)
	if b.shouldFlush(estimated) {
		b.Flush(ctx)
	}
	b.buffer = append(b.buffer, driven.BulkItem{ID: chunkID, Document: doc})
	b.payloadBytes += estimated
}

// Flush writes the buffered documents in one batch. Per-item failures are
// counted without aborting the batch; a transport failure counts every
// buffered item as failed. The buffer is cleared either way. An empty
// buffer is a no-op with no network call.
func (b *BulkIndexer) Flush(ctx context.Context) {
	if len(b.buffer) == 0 {
		return
	}

	toFlush := b.buffer
	b.buffer = nil
	b.payloadBytes = 0

	results, err := b.store.BulkWrite(ctx, b.index, toFlush)
	if err != nil {
		b.totalFailed += int64(len(toFlush))
		metrics.ObserveBulkFlush(b.entityType, 0, 0, err)
		b.log.Error("bulk flush failed",
			"index", b.index, "documents", len(toFlush), "error", err)
		return
	}

	success, failed := 0, 0
	for _, item := range results {
		if item.Failed {
			failed++
			b.log.Debug("bulk item rejected", "id", item.ID, "reason", item.Reason)
		} else {
			success++
		}
	}

	b.totalSuccess += int64(success)
	b.totalFailed += int64(failed)
	metrics.ObserveBulkFlush(b.entityType, success, failed, nil)

	if failed > 0 {
		b.log.Warn("bulk flush completed with failures",
			"index", b.index, "success", success, "failed", failed)
	} else {
		b.log.Debug("bulk flush completed", "index", b.index, "documents", success)
	}
}

// Close performs a final flush.
func (b *BulkIndexer) Close(ctx context.Context) {
	b.Flush(ctx)
}

// TotalSuccess returns the number of documents indexed so far.
func (b *BulkIndexer) TotalSuccess() int64 { return b.totalSuccess }

// TotalFailed returns the number of documents that failed so far.
func (b *BulkIndexer) TotalFailed() int64 { return b.totalFailed }

func (b *BulkIndexer) shouldFlush(additional int64) bool {
	return len(b.buffer) >= b.maxActions || b.payloadBytes+additional > b.maxPayload
}

// estimateChunkSize approximates the serialized size of a chunk document:
// four bytes per embedding dimension, two per string byte, a flat guess per
// list element, plus serialization overhead.
func estimateChunkSize(doc domain.ChunkDocument) int64 {
	var size int64
	if embedding, ok := doc[domain.FieldEmbedding].([]float32); ok {
		size += int64(len(embedding)) * 4
	}
	for key, value := range doc {
		if key == domain.FieldEmbedding {
			continue
		}
		switch v := value.(type) {
		case string:
			size += int64(len(v)) * 2
		case []string:
			size += int64(len(v)) * 50
		case []map[string]any:
			size += int64(len(v)) * 50
		case []any:
			size += int64(len(v)) * 50
		}
	}
	return int64(float64(size) * 1.2)
}
