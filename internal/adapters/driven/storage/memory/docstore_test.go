package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcadia-data/catalens/internal/core/domain"
	"github.com/arcadia-data/catalens/internal/core/ports/driven"
)

func seedChunks(t *testing.T, store *DocumentStore, index string, docs map[string]map[string]any) {
	t.Helper()
	items := make([]driven.BulkItem, 0, len(docs))
	for id, doc := range docs {
		items = append(items, driven.BulkItem{ID: id, Document: doc})
	}
	_, err := store.BulkWrite(context.Background(), index, items)
	require.NoError(t, err)
}

func TestSearchTermQuery(t *testing.T) {
	store := NewDocumentStore()
	seedChunks(t, store, "idx", map[string]map[string]any{
		"p1-0": {"parent_id": "p1", "fingerprint": "aaaa"},
		"p1-1": {"parent_id": "p1", "fingerprint": "aaaa"},
		"p2-0": {"parent_id": "p2", "fingerprint": "bbbb"},
	})

	hits, err := store.Search(context.Background(), "idx",
		`{"size":1,"_source":["fingerprint"],"query":{"term":{"parent_id":"p1"}}}`)
	require.NoError(t, err)

	require.Len(t, hits, 1)
	assert.Equal(t, "aaaa", hits[0].Source["fingerprint"])
}

func TestSearchTermsWithCollapse(t *testing.T) {
	store := NewDocumentStore()
	seedChunks(t, store, "idx", map[string]map[string]any{
		"p1-0": {"parent_id": "p1", "fingerprint": "aaaa"},
		"p1-1": {"parent_id": "p1", "fingerprint": "aaaa"},
		"p2-0": {"parent_id": "p2", "fingerprint": "bbbb"},
		"p3-0": {"parent_id": "p3", "fingerprint": "cccc"},
	})

	hits, err := store.Search(context.Background(), "idx",
		`{"size":10,"_source":["parent_id","fingerprint"],"query":{"terms":{"parent_id":["p1","p2"]}},"collapse":{"field":"parent_id"}}`)
	require.NoError(t, err)

	require.Len(t, hits, 2)
	fingerprints := map[string]string{}
	for _, h := range hits {
		fingerprints[h.Source["parent_id"].(string)] = h.Source["fingerprint"].(string)
	}
	assert.Equal(t, map[string]string{"p1": "aaaa", "p2": "bbbb"}, fingerprints)
}

func TestSearchRejectsUnsupportedQueries(t *testing.T) {
	store := NewDocumentStore()

	_, err := store.Search(context.Background(), "idx",
		`{"query":{"knn":{"embedding":{"vector":[0.1],"k":5}}}}`)
	assert.Error(t, err)

	_, err = store.Search(context.Background(), "idx", `{"query":{"match_all":{}}}`)
	assert.Error(t, err)
}

func TestDeleteByQueryRemovesParentChunks(t *testing.T) {
	store := NewDocumentStore()
	seedChunks(t, store, "idx", map[string]map[string]any{
		"p1-0": {"parent_id": "p1"},
		"p1-1": {"parent_id": "p1"},
		"p2-0": {"parent_id": "p2"},
	})

	err := store.DeleteByQuery(context.Background(), "idx", driven.TermFilter{Field: "parent_id", Value: "p1"})
	require.NoError(t, err)

	assert.Equal(t, 1, store.Count("idx"))
	assert.Nil(t, store.Document("idx", "p1-0"))
	assert.NotNil(t, store.Document("idx", "p2-0"))
}

func TestUpdateByQueryTogglesDeletedFlag(t *testing.T) {
	store := NewDocumentStore()
	seedChunks(t, store, "idx", map[string]map[string]any{
		"p1-0": {"parent_id": "p1", "deleted": false},
		"p2-0": {"parent_id": "p2", "deleted": false},
	})

	filter := driven.TermFilter{Field: "parent_id", Value: "p1"}
	require.NoError(t, store.UpdateByQuery(context.Background(), "idx", "ctx._source.deleted = true", filter))
	assert.Equal(t, true, store.Document("idx", "p1-0")[domain.FieldDeleted])
	assert.Equal(t, false, store.Document("idx", "p2-0")[domain.FieldDeleted])

	require.NoError(t, store.UpdateByQuery(context.Background(), "idx", "ctx._source.deleted = false", filter))
	assert.Equal(t, false, store.Document("idx", "p1-0")[domain.FieldDeleted])

	err := store.UpdateByQuery(context.Background(), "idx", "ctx._source.other = 1", filter)
	assert.Error(t, err)
}

func TestCreateIndexAndExists(t *testing.T) {
	store := NewDocumentStore()

	exists, err := store.IndexExists(context.Background(), "idx")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.CreateIndex(context.Background(), "idx", `{}`))
	exists, err = store.IndexExists(context.Background(), "idx")
	require.NoError(t, err)
	assert.True(t, exists)

	assert.Error(t, store.CreateIndex(context.Background(), "idx", `{}`))
}

func TestBulkWriteOverwritesByID(t *testing.T) {
	store := NewDocumentStore()
	seedChunks(t, store, "idx", map[string]map[string]any{
		"p1-0": {"parent_id": "p1", "fingerprint": "old"},
	})
	seedChunks(t, store, "idx", map[string]map[string]any{
		"p1-0": {"parent_id": "p1", "fingerprint": "new"},
	})

	assert.Equal(t, 1, store.Count("idx"))
	assert.Equal(t, "new", store.Document("idx", "p1-0")["fingerprint"])
}
