package services

import (
	"context"
	"fmt"
	"time"

	"github.com/arcadia-data/catalens/internal/core/domain"
	"github.com/arcadia-data/catalens/internal/core/ports/driven"
	"github.com/arcadia-data/catalens/internal/knnquery"
	"github.com/arcadia-data/catalens/internal/logger"
	"github.com/arcadia-data/catalens/internal/metrics"
)

// DefaultOverFetchMultiplier compensates for multiple chunks of one parent
// consuming slots in the raw hit list before grouping.
const DefaultOverFetchMultiplier = 2

// SearchService orchestrates semantic queries: embed the query text, run
// the over-fetched k-NN query, cut below-threshold hits, group chunks by
// parent entity and keep the first `size` parents with all their chunks.
type SearchService struct {
	store     driven.DocumentStore
	embedding driven.EmbeddingService
	queries   *knnquery.Builder
	index     string
	overFetch int
	log       *logger.Logger
}

// NewSearchService creates a search orchestrator for one index.
func NewSearchService(store driven.DocumentStore, embedding driven.EmbeddingService, index string, log *logger.Logger) *SearchService {
	if log == nil {
		log = logger.Discard()
	}
	return &SearchService{
		store:     store,
		embedding: embedding,
		queries:   knnquery.New(log),
		index:     index,
		overFetch: DefaultOverFetchMultiplier,
		log:       log,
	}
}

// SetOverFetchMultiplier overrides the over-fetch multiplier.
func (s *SearchService) SetOverFetchMultiplier(m int) {
	if m > 0 {
		s.overFetch = m
	}
}

// Search runs a semantic query. Hits scoring below threshold are dropped,
// survivors are grouped by parent entity in first-seen (relevance) order,
// and the first size distinct parents are returned with ALL their chunks -
// result cardinality can exceed size. Hits without a parent id cannot be
// grouped and are dropped.
func (s *SearchService) Search(ctx context.Context, query string, filters map[string][]string, size, k int, threshold float64) (*domain.SearchResponse, error) {
	if s.embedding == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}
	if s.store == nil {
		return nil, domain.ErrStoreUnavailable
	}

	start := time.Now()

	queryVector, err := s.embedding.Embed(ctx, query)
	if err != nil {
		metrics.ObserveSearch(time.Since(start).Seconds(), err)
		return nil, fmt.Errorf("embed query: %w", err)
	}

	overFetchSize := size * s.overFetch
	body := s.queries.Build(queryVector, overFetchSize, k, filters)
	s.log.Debug("executing knn query",
		"index", s.index, "size", size, "over_fetch_size", overFetchSize, "k", k)

	hits, err := s.store.Search(ctx, s.index, body)
	if err != nil {
		metrics.ObserveSearch(time.Since(start).Seconds(), err)
		return nil, fmt.Errorf("knn search: %w", err)
	}

	grouped := groupByParent(hits, size, threshold)
	took := time.Since(start)
	metrics.ObserveSearch(took.Seconds(), nil)

	s.log.Debug("search completed",
		"raw_hits", len(hits), "returned", len(grouped), "took_ms", took.Milliseconds())

	return &domain.SearchResponse{
		TookMillis: took.Milliseconds(),
		Hits:       grouped,
	}, nil
}

// groupByParent applies the threshold cut, then keeps the first `size`
// distinct parents in first-seen order with every one of their chunks.
func groupByParent(hits []driven.SearchHit, size int, threshold float64) []map[string]any {
	parentOrder := make([]string, 0, size)
	chunksByParent := make(map[string][]map[string]any)
	parentCount := 0

	for _, h := range hits {
		if h.Score < threshold {
			continue
		}

		parentID, _ := h.Source[domain.FieldParentID].(string)
		if parentID == "" {
			// Orphan chunk, cannot be grouped.
			continue
		}

		if _, seen := chunksByParent[parentID]; !seen {
			if parentCount >= size {
				continue
			}
			parentOrder = append(parentOrder, parentID)
			parentCount++
		}

		result := make(map[string]any, len(h.Source)+1)
		for k, v := range h.Source {
			result[k] = v
		}
		result["_score"] = h.Score
		chunksByParent[parentID] = append(chunksByParent[parentID], result)
	}

	var out []map[string]any
	for _, parentID := range parentOrder {
		out = append(out, chunksByParent[parentID]...)
	}
	return out
}
