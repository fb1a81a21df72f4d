package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/arcadia-data/catalens/internal/core/domain"
	"github.com/arcadia-data/catalens/internal/core/ports/driven"
)

// mockEmbedding counts calls and returns deterministic fixed-dimension
// vectors. Set err to force failures.
type mockEmbedding struct {
	dims       int
	err        error
	embedCalls int
	batchCalls int
	batchSizes []int
}

var _ driven.EmbeddingService = (*mockEmbedding)(nil)

func newMockEmbedding() *mockEmbedding {
	return &mockEmbedding{dims: 4}
}

func (m *mockEmbedding) vectorFor(text string) []float32 {
	v := make([]float32, m.dims)
	for i := range v {
		v[i] = float32(len(text)%7) + float32(i)
	}
	return v
}

func (m *mockEmbedding) Embed(_ context.Context, text string) ([]float32, error) {
	m.embedCalls++
	if m.err != nil {
		return nil, m.err
	}
	return m.vectorFor(text), nil
}

func (m *mockEmbedding) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.batchCalls++
	m.batchSizes = append(m.batchSizes, len(texts))
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		out = append(out, m.vectorFor(t))
	}
	return out, nil
}

func (m *mockEmbedding) Dimensions() int            { return m.dims }
func (m *mockEmbedding) ModelName() string          { return "mock-embed" }
func (m *mockEmbedding) Ping(context.Context) error { return m.err }
func (m *mockEmbedding) Close() error               { return nil }

// mockDocumentStore records calls and serves canned responses.
type mockDocumentStore struct {
	mu sync.Mutex

	searchHits  []driven.SearchHit
	searchErr   error
	searchCalls []string // query bodies, in order

	bulkResults [][]driven.BulkResult
	bulkErr     error
	bulkCalls   [][]driven.BulkItem

	deleteCalls []driven.TermFilter
	deleteErr   error

	updateCalls   []driven.TermFilter
	updateScripts []string
	updateErr     error

	createdIndexes []string
	createErr      error
	exists         bool
	existsErr      error
}

var _ driven.DocumentStore = (*mockDocumentStore)(nil)

func (m *mockDocumentStore) Search(_ context.Context, _ string, body string) ([]driven.SearchHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchCalls = append(m.searchCalls, body)
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.searchHits, nil
}

func (m *mockDocumentStore) BulkWrite(_ context.Context, _ string, items []driven.BulkItem) ([]driven.BulkResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make([]driven.BulkItem, len(items))
	copy(copied, items)
	m.bulkCalls = append(m.bulkCalls, copied)
	if m.bulkErr != nil {
		return nil, m.bulkErr
	}
	if len(m.bulkResults) > 0 {
		next := m.bulkResults[0]
		m.bulkResults = m.bulkResults[1:]
		return next, nil
	}
	results := make([]driven.BulkResult, 0, len(items))
	for _, item := range items {
		results = append(results, driven.BulkResult{ID: item.ID})
	}
	return results, nil
}

func (m *mockDocumentStore) DeleteByQuery(_ context.Context, _ string, filter driven.TermFilter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls = append(m.deleteCalls, filter)
	return m.deleteErr
}

func (m *mockDocumentStore) UpdateByQuery(_ context.Context, _ string, script string, filter driven.TermFilter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateScripts = append(m.updateScripts, script)
	m.updateCalls = append(m.updateCalls, filter)
	return m.updateErr
}

func (m *mockDocumentStore) CreateIndex(_ context.Context, index string, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.createdIndexes = append(m.createdIndexes, index)
	return nil
}

func (m *mockDocumentStore) IndexExists(context.Context, string) (bool, error) {
	return m.exists, m.existsErr
}

func (m *mockDocumentStore) Close() error { return nil }

// tableEntity builds a representative table entity for tests.
func tableEntity(id string) *domain.Entity {
	return &domain.Entity{
		ID:                 id,
		Kind:               domain.KindTable,
		Name:               "orders",
		DisplayName:        "Orders",
		FullyQualifiedName: "mysql.shop.orders",
		Description:        "<p>Daily order facts</p>",
		ServiceType:        "Mysql",
		Tags: []domain.TagLabel{
			{TagFQN: "PII.Sensitive", Name: "Sensitive"},
			{TagFQN: "Tier.Tier1", Name: "Tier1"},
		},
		Owners: []domain.EntityRef{
			{ID: "u1", Name: "alice", Type: "user", DisplayName: "Alice"},
		},
		Table: &domain.TableSpec{
			Columns: []domain.Column{
				{Name: "order_id", Description: "primary key"},
				{Name: "created_at"},
			},
		},
	}
}

// hit builds a search hit with score and parent.
func hit(score float64, parentID string, extra map[string]any) driven.SearchHit {
	source := map[string]any{}
	if parentID != "" {
		source[domain.FieldParentID] = parentID
	}
	for k, v := range extra {
		source[k] = v
	}
	return driven.SearchHit{Score: score, Source: source}
}

// fingerprintHitFor fabricates the store response to a fingerprint lookup.
func fingerprintHitFor(parentID, fingerprint string) driven.SearchHit {
	return driven.SearchHit{Source: map[string]any{
		domain.FieldParentID:    parentID,
		domain.FieldFingerprint: fingerprint,
	}}
}

func (m *mockDocumentStore) lastSearchBody() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.searchCalls) == 0 {
		return ""
	}
	return m.searchCalls[len(m.searchCalls)-1]
}

func (m *mockDocumentStore) searchBodyContaining(fragment string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, body := range m.searchCalls {
		if strings.Contains(body, fragment) {
			return true
		}
	}
	return false
}

// mockPartitionStore records partition state in memory.
type mockPartitionStore struct {
	mu         sync.Mutex
	saved      []domain.ReindexPartition
	statuses   []domain.PartitionStatus
	saveErr    error
	updateErr  error
	listResult []domain.ReindexPartition
	listErr    error
}

var _ driven.PartitionStore = (*mockPartitionStore)(nil)

func (m *mockPartitionStore) Save(_ context.Context, p domain.ReindexPartition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, p)
	return m.saveErr
}

func (m *mockPartitionStore) UpdateStatus(_ context.Context, _ string, _ string, _ int, status domain.PartitionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, status)
	return m.updateErr
}

func (m *mockPartitionStore) ListByJob(context.Context, string) ([]domain.ReindexPartition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listResult, m.listErr
}

func (m *mockPartitionStore) Close() error { return nil }

func (m *mockPartitionStore) lastStatus() domain.PartitionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.statuses) == 0 {
		return ""
	}
	return m.statuses[len(m.statuses)-1]
}

func floatPtr(f float64) *float64 { return &f }

var errBoom = fmt.Errorf("boom")
