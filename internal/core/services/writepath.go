package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/arcadia-data/catalens/internal/core/domain"
	"github.com/arcadia-data/catalens/internal/core/ports/driven"
	"github.com/arcadia-data/catalens/internal/core/ports/driving"
	"github.com/arcadia-data/catalens/internal/knnquery"
	"github.com/arcadia-data/catalens/internal/logger"
	"github.com/arcadia-data/catalens/internal/metrics"
)

// Ensure IndexWriteService implements the interface.
var _ driving.IndexService = (*IndexWriteService)(nil)

// indexMappingTemplate is the k-NN index mapping; the vector dimension is
// substituted from the embedding model.
const indexMappingTemplate = `{
  "settings": {
    "index": {
      "knn": true
    }
  },
  "mappings": {
    "properties": {
      "parent_id": {"type": "keyword"},
      "sourceId": {"type": "keyword"},
      "entityType": {"type": "keyword"},
      "fullyQualifiedName": {"type": "keyword"},
      "name": {"type": "keyword"},
      "displayName": {"type": "text"},
      "serviceType": {"type": "keyword"},
      "deleted": {"type": "boolean"},
      "fingerprint": {"type": "keyword"},
      "chunk_index": {"type": "integer"},
      "chunk_count": {"type": "integer"},
      "text_to_embed": {"type": "text"},
      "tags": {
        "type": "nested",
        "properties": {
          "tagFQN": {"type": "keyword"},
          "name": {"type": "keyword"},
          "source": {"type": "keyword"}
        }
      },
      "tier": {"properties": {"tagFQN": {"type": "keyword"}}},
      "certification": {"properties": {"tagFQN": {"type": "keyword"}}},
      "owners": {
        "type": "nested",
        "properties": {
          "id": {"type": "keyword"},
          "name": {"type": "keyword"},
          "type": {"type": "keyword"}
        }
      },
      "domains": {"properties": {"id": {"type": "keyword"}, "name": {"type": "keyword"}}},
      "upVotes": {"type": "integer"},
      "downVotes": {"type": "integer"},
      "totalVotes": {"type": "integer"},
      "followersCount": {"type": "integer"},
      "embedding": {
        "type": "knn_vector",
        "dimension": %d,
        "method": {
          "name": "hnsw",
          "space_type": "cosinesimil",
          "engine": "lucene"
        }
      }
    }
  }
}`

// IndexWriteService maintains chunk documents in the vector index.
//
// All mutation entrypoints are best-effort: they are invoked per entity
// from an event stream, so any one entity's failure is logged with context
// and swallowed rather than propagated. The fingerprint gate makes repeated
// upserts for unchanged content free of embedding calls and writes.
type IndexWriteService struct {
	store     driven.DocumentStore
	builder   *DocumentBuilder
	embedding driven.EmbeddingService
	log       *logger.Logger
}

// NewIndexWriteService creates the index write path.
func NewIndexWriteService(store driven.DocumentStore, builder *DocumentBuilder, embedding driven.EmbeddingService, log *logger.Logger) *IndexWriteService {
	if log == nil {
		log = logger.Discard()
	}
	return &IndexWriteService{
		store:     store,
		builder:   builder,
		embedding: embedding,
		log:       log,
	}
}

// Upsert re-embeds and rewrites an entity's chunks unless the stored
// fingerprint matches the entity's current content. The stale chunk set is
// deleted first so a reduced chunk count leaves no orphans behind.
func (s *IndexWriteService) Upsert(ctx context.Context, entity *domain.Entity, targetIndex string) {
	parentID := entity.ID

	existing, err := s.ExistingFingerprint(ctx, targetIndex, parentID)
	if err != nil {
		s.log.Warn("fingerprint lookup failed, rebuilding",
			"entity_id", parentID, "index", targetIndex, "error", err)
		existing = ""
	}

	current := s.builder.Fingerprint(entity)
	if current == existing && current != "" {
		metrics.UpsertsSkipped.Inc()
		s.log.Debug("skipping entity, fingerprint unchanged", "entity_id", parentID)
		return
	}

	docs, err := s.builder.Build(ctx, entity)
	if err != nil {
		s.log.Error("failed to build chunk documents",
			"entity_id", parentID, "error", err)
		return
	}

	if err := s.store.DeleteByQuery(ctx, targetIndex, parentFilter(parentID)); err != nil {
		s.log.Error("failed to delete stale chunks",
			"entity_id", parentID, "index", targetIndex, "error", err)
		return
	}

	s.bulkIndex(ctx, docs, targetIndex, parentID)
}

// UpsertWithMigration behaves like Upsert but, when content is unchanged
// relative to sourceIndex, copies the existing chunks to targetIndex with
// the fingerprint re-stamped instead of recomputing embeddings. Copy
// failure or a fingerprint mismatch falls back to full recomputation.
func (s *IndexWriteService) UpsertWithMigration(ctx context.Context, entity *domain.Entity, targetIndex, sourceIndex string) {
	parentID := entity.ID
	current := s.builder.Fingerprint(entity)

	if sourceIndex != "" {
		existing, err := s.ExistingFingerprint(ctx, sourceIndex, parentID)
		switch {
		case err != nil:
			s.log.Warn("migration fingerprint lookup failed, falling back to recomputation",
				"entity_id", parentID, "source_index", sourceIndex, "error", err)
		case current == existing && current != "":
			if s.copyChunkDocuments(ctx, sourceIndex, targetIndex, parentID, current) {
				return
			}
			s.log.Warn("migration copy failed, falling back to recomputation",
				"entity_id", parentID)
		}
	}

	docs, err := s.builder.Build(ctx, entity)
	if err != nil {
		s.log.Error("failed to build chunk documents for migration",
			"entity_id", parentID, "error", err)
		return
	}
	s.bulkIndex(ctx, docs, targetIndex, parentID)
}

// SoftDelete marks all chunks for the entity deleted without removing
// them; they stay excludable by the query-time deleted=false predicate.
func (s *IndexWriteService) SoftDelete(ctx context.Context, entityID string, index string) {
	err := s.store.UpdateByQuery(ctx, index,
		"ctx._source.deleted = true", parentFilter(entityID))
	if err != nil {
		s.log.Error("failed to soft delete chunks",
			"entity_id", entityID, "index", index, "error", err)
		return
	}
	s.log.Debug("soft deleted chunks", "entity_id", entityID, "index", index)
}

// Restore clears the deleted mark on all chunks for the entity.
func (s *IndexWriteService) Restore(ctx context.Context, entityID string, index string) {
	err := s.store.UpdateByQuery(ctx, index,
		"ctx._source.deleted = false", parentFilter(entityID))
	if err != nil {
		s.log.Error("failed to restore chunks",
			"entity_id", entityID, "index", index, "error", err)
		return
	}
	s.log.Debug("restored chunks", "entity_id", entityID, "index", index)
}

// HardDelete removes all chunk documents for the entity.
func (s *IndexWriteService) HardDelete(ctx context.Context, entityID string, index string) {
	if err := s.store.DeleteByQuery(ctx, index, parentFilter(entityID)); err != nil {
		s.log.Error("failed to hard delete chunks",
			"entity_id", entityID, "index", index, "error", err)
		return
	}
	s.log.Debug("hard deleted chunks", "entity_id", entityID, "index", index)
}

// EnsureIndex creates the index with the k-NN mapping when it does not
// exist. Unlike the mutation entrypoints this returns errors: it runs at
// startup where the caller must know the index is usable.
func (s *IndexWriteService) EnsureIndex(ctx context.Context, index string) error {
	exists, err := s.store.IndexExists(ctx, index)
	if err != nil {
		return fmt.Errorf("check index %s: %w", index, err)
	}
	if exists {
		return nil
	}

	if s.embedding == nil {
		return domain.ErrEmbeddingUnavailable
	}
	mapping := fmt.Sprintf(indexMappingTemplate, s.embedding.Dimensions())
	if err := s.store.CreateIndex(ctx, index, mapping); err != nil {
		return fmt.Errorf("create index %s: %w", index, err)
	}
	s.log.Info("created vector index",
		"index", index, "dimension", s.embedding.Dimensions())
	return nil
}

// ExistingFingerprint fetches the stored fingerprint for a parent entity.
// Returns "" when the entity has no documents in the index.
func (s *IndexWriteService) ExistingFingerprint(ctx context.Context, index string, parentID string) (string, error) {
	body := fmt.Sprintf(
		`{"size":1,"_source":["fingerprint"],"query":{"term":{"parent_id":"%s"}}}`,
		knnquery.Escape(parentID))

	hits, err := s.store.Search(ctx, index, body)
	if err != nil {
		return "", fmt.Errorf("fingerprint lookup for %s: %w", parentID, err)
	}
	if len(hits) == 0 {
		return "", nil
	}
	fp, _ := hits[0].Source[domain.FieldFingerprint].(string)
	return fp, nil
}

// ExistingFingerprintsBatch fetches stored fingerprints for many parents
// with a single collapsed terms query, avoiding one round trip per entity
// during bulk reindexing. Parents with no documents are absent from the
// result map.
func (s *IndexWriteService) ExistingFingerprintsBatch(ctx context.Context, index string, parentIDs []string) (map[string]string, error) {
	if len(parentIDs) == 0 {
		return map[string]string{}, nil
	}

	var terms strings.Builder
	terms.WriteByte('[')
	for i, id := range parentIDs {
		if i > 0 {
			terms.WriteByte(',')
		}
		terms.WriteByte('"')
		terms.WriteString(knnquery.Escape(id))
		terms.WriteByte('"')
	}
	terms.WriteByte(']')

	body := fmt.Sprintf(
		`{"size":%d,"_source":["parent_id","fingerprint"],"query":{"terms":{"parent_id":%s}},"collapse":{"field":"parent_id"}}`,
		len(parentIDs), terms.String())

	hits, err := s.store.Search(ctx, index, body)
	if err != nil {
		return nil, fmt.Errorf("batch fingerprint lookup: %w", err)
	}

	out := make(map[string]string, len(hits))
	for _, h := range hits {
		parentID, _ := h.Source[domain.FieldParentID].(string)
		fp, _ := h.Source[domain.FieldFingerprint].(string)
		if parentID != "" && fp != "" {
			out[parentID] = fp
		}
	}
	return out, nil
}

// copyChunkDocuments copies a parent's chunks from sourceIndex to
// targetIndex verbatim, re-stamping the fingerprint. Reports false when
// nothing could be copied so the caller can fall back to recomputation.
func (s *IndexWriteService) copyChunkDocuments(ctx context.Context, sourceIndex, targetIndex, parentID, fingerprint string) bool {
	body := fmt.Sprintf(
		`{"size":1000,"query":{"term":{"parent_id":"%s"}}}`,
		knnquery.Escape(parentID))

	hits, err := s.store.Search(ctx, sourceIndex, body)
	if err != nil {
		s.log.Error("failed to fetch chunks for migration copy",
			"entity_id", parentID, "source_index", sourceIndex, "error", err)
		return false
	}
	if len(hits) == 0 {
		return false
	}

	items := make([]driven.BulkItem, 0, len(hits))
	for _, h := range hits {
		doc := make(map[string]any, len(h.Source))
		for k, v := range h.Source {
			doc[k] = v
		}
		doc[domain.FieldFingerprint] = fingerprint
		items = append(items, driven.BulkItem{
			ID:       domain.ChunkDocID(parentID, chunkIndexOf(doc)),
			Document: doc,
		})
	}

	if _, err := s.store.BulkWrite(ctx, targetIndex, items); err != nil {
		s.log.Error("failed to copy chunks during migration",
			"entity_id", parentID, "target_index", targetIndex, "error", err)
		return false
	}
	s.log.Debug("copied chunks between index generations",
		"entity_id", parentID, "chunks", len(items),
		"source_index", sourceIndex, "target_index", targetIndex)
	return true
}

func (s *IndexWriteService) bulkIndex(ctx context.Context, docs []domain.ChunkDocument, targetIndex, parentID string) {
	items := make([]driven.BulkItem, 0, len(docs))
	for _, doc := range docs {
		idx, _ := doc[domain.FieldChunkIndex].(int)
		items = append(items, driven.BulkItem{
			ID:       domain.ChunkDocID(parentID, idx),
			Document: doc,
		})
	}

	results, err := s.store.BulkWrite(ctx, targetIndex, items)
	if err != nil {
		s.log.Error("bulk index failed",
			"entity_id", parentID, "index", targetIndex, "documents", len(items), "error", err)
		return
	}

	failed := 0
	for _, r := range results {
		if r.Failed {
			failed++
			s.log.Debug("chunk rejected by index", "id", r.ID, "reason", r.Reason)
		}
	}
	if failed > 0 {
		s.log.Warn("bulk index completed with failures",
			"entity_id", parentID, "index", targetIndex,
			"success", len(items)-failed, "failed", failed)
	}
}

// chunkIndexOf extracts chunk_index from a stored source map, tolerating
// the float64 that JSON decoding produces.
func chunkIndexOf(doc map[string]any) int {
	switch v := doc[domain.FieldChunkIndex].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func parentFilter(parentID string) driven.TermFilter {
	return driven.TermFilter{Field: domain.FieldParentID, Value: parentID}
}
