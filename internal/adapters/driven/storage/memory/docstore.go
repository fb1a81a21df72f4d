package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/arcadia-data/catalens/internal/core/domain"
	"github.com/arcadia-data/catalens/internal/core/ports/driven"
)

// Ensure DocumentStore implements the interface.
var _ driven.DocumentStore = (*DocumentStore)(nil)

// DocumentStore is an in-memory implementation of driven.DocumentStore.
// It interprets the narrow query subset the write path issues (term and
// terms lookups with _source projection and collapse) so the full upsert
// and migration flows run against it in tests. Vector queries are not
// supported.
type DocumentStore struct {
	mu      sync.RWMutex
	indexes map[string]map[string]map[string]any
}

// NewDocumentStore creates a new in-memory document store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		indexes: make(map[string]map[string]map[string]any),
	}
}

// queryBody is the subset of the search DSL this store interprets.
type queryBody struct {
	Size   int             `json:"size"`
	Source json.RawMessage `json:"_source"`
	Query  struct {
		Term  map[string]any   `json:"term"`
		Terms map[string][]any `json:"terms"`
		KNN   json.RawMessage  `json:"knn"`
	} `json:"query"`
	Collapse struct {
		Field string `json:"field"`
	} `json:"collapse"`
}

// Search evaluates a term or terms query against an index. Documents are
// returned in document-id order so results are deterministic.
func (s *DocumentStore) Search(_ context.Context, index string, body string) ([]driven.SearchHit, error) {
	var q queryBody
	if err := json.Unmarshal([]byte(body), &q); err != nil {
		return nil, fmt.Errorf("parse query body: %w", err)
	}
	if q.Query.KNN != nil {
		return nil, fmt.Errorf("memory store does not support knn queries")
	}

	match, err := matcher(q)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := s.indexes[index]
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	includes := sourceIncludes(q.Source)
	seen := make(map[any]bool)
	hits := make([]driven.SearchHit, 0)
	for _, id := range ids {
		doc := docs[id]
		if !match(doc) {
			continue
		}
		if q.Collapse.Field != "" {
			key := doc[q.Collapse.Field]
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		hits = append(hits, driven.SearchHit{Source: project(doc, includes)})
		if q.Size > 0 && len(hits) >= q.Size {
			break
		}
	}
	return hits, nil
}

// BulkWrite stores each item by id, overwriting duplicates.
func (s *DocumentStore) BulkWrite(_ context.Context, index string, items []driven.BulkItem) ([]driven.BulkResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.indexes[index]
	if docs == nil {
		docs = make(map[string]map[string]any)
		s.indexes[index] = docs
	}

	results := make([]driven.BulkResult, 0, len(items))
	for _, item := range items {
		copied := make(map[string]any, len(item.Document))
		for k, v := range item.Document {
			copied[k] = v
		}
		docs[item.ID] = copied
		results = append(results, driven.BulkResult{ID: item.ID})
	}
	return results, nil
}

// DeleteByQuery removes every document matching the term filter.
func (s *DocumentStore) DeleteByQuery(_ context.Context, index string, filter driven.TermFilter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, doc := range s.indexes[index] {
		if termEqual(doc[filter.Field], filter.Value) {
			delete(s.indexes[index], id)
		}
	}
	return nil
}

// UpdateByQuery applies the deleted-flag scripts the write path issues.
func (s *DocumentStore) UpdateByQuery(_ context.Context, index string, script string, filter driven.TermFilter) error {
	var value bool
	switch {
	case strings.Contains(script, "deleted = true"):
		value = true
	case strings.Contains(script, "deleted = false"):
		value = false
	default:
		return fmt.Errorf("memory store does not support script %q", script)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, doc := range s.indexes[index] {
		if termEqual(doc[filter.Field], filter.Value) {
			doc[domain.FieldDeleted] = value
		}
	}
	return nil
}

// CreateIndex creates an empty index. The mapping body is ignored.
func (s *DocumentStore) CreateIndex(_ context.Context, index string, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.indexes[index]; ok {
		return fmt.Errorf("index %s already exists", index)
	}
	s.indexes[index] = make(map[string]map[string]any)
	return nil
}

// IndexExists reports whether the index exists.
func (s *DocumentStore) IndexExists(_ context.Context, index string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.indexes[index]
	return ok, nil
}

// Close releases resources.
func (s *DocumentStore) Close() error {
	return nil
}

// Count returns the number of documents in an index.
func (s *DocumentStore) Count(index string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.indexes[index])
}

// Document returns a stored document by id, or nil.
func (s *DocumentStore) Document(index, id string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.indexes[index][id]
	if !ok {
		return nil
	}
	copied := make(map[string]any, len(doc))
	for k, v := range doc {
		copied[k] = v
	}
	return copied
}

func matcher(q queryBody) (func(map[string]any) bool, error) {
	switch {
	case len(q.Query.Term) > 0:
		for field, want := range q.Query.Term {
			return func(doc map[string]any) bool {
				return termEqual(doc[field], want)
			}, nil
		}
	case len(q.Query.Terms) > 0:
		for field, wants := range q.Query.Terms {
			return func(doc map[string]any) bool {
				for _, want := range wants {
					if termEqual(doc[field], want) {
						return true
					}
				}
				return false
			}, nil
		}
	}
	return nil, fmt.Errorf("memory store requires a term or terms query")
}

// termEqual compares stored values with query values across the numeric
// and string representations JSON round trips produce.
func termEqual(stored, want any) bool {
	if stored == nil {
		return false
	}
	if stored == want {
		return true
	}
	return fmt.Sprint(stored) == fmt.Sprint(want)
}

// sourceIncludes extracts an includes list from the _source clause, which
// may be an array of field names or an object. Objects (used for
// excludes) and absent clauses return nil, meaning the full document.
func sourceIncludes(raw json.RawMessage) []string {
	if raw == nil {
		return nil
	}
	var includes []string
	if err := json.Unmarshal(raw, &includes); err != nil {
		return nil
	}
	return includes
}

func project(doc map[string]any, includes []string) map[string]any {
	copied := make(map[string]any, len(doc))
	if includes == nil {
		for k, v := range doc {
			copied[k] = v
		}
		return copied
	}
	for _, field := range includes {
		if v, ok := doc[field]; ok {
			copied[field] = v
		}
	}
	// parent_id is always kept so callers can correlate projected hits.
	if v, ok := doc[domain.FieldParentID]; ok {
		copied[domain.FieldParentID] = v
	}
	return copied
}
