package driven

import "context"

// SearchHit is one raw hit returned by the document store.
type SearchHit struct {
	// Score is the store-reported similarity score.
	Score float64

	// Source is the stored document body.
	Source map[string]any
}

// BulkItem is one document in a bulk write request.
type BulkItem struct {
	// ID is the document key. Writes with an existing key overwrite.
	ID string

	// Document is the document body.
	Document map[string]any
}

// BulkResult reports the outcome of one item in a bulk write.
type BulkResult struct {
	ID     string
	Failed bool
	Reason string
}

// TermFilter selects documents where Field equals Value exactly.
type TermFilter struct {
	Field string
	Value any
}

// DocumentStore is the k-NN-capable document index the write and query
// paths run against. Implementations speak the OpenSearch-compatible
// REST surface; an in-memory implementation backs tests.
type DocumentStore interface {
	// Search executes a query body against an index and returns raw hits.
	Search(ctx context.Context, index string, body string) ([]SearchHit, error)

	// BulkWrite indexes the given items in one batch. Per-item failures
	// are reported in the results, not as an error; the returned error
	// covers transport-level failure of the whole batch.
	BulkWrite(ctx context.Context, index string, items []BulkItem) ([]BulkResult, error)

	// DeleteByQuery removes every document matching the term filter.
	DeleteByQuery(ctx context.Context, index string, filter TermFilter) error

	// UpdateByQuery runs a script against every document matching the
	// term filter.
	UpdateByQuery(ctx context.Context, index string, script string, filter TermFilter) error

	// CreateIndex creates an index with the given mapping body.
	CreateIndex(ctx context.Context, index string, mapping string) error

	// IndexExists reports whether the index exists.
	IndexExists(ctx context.Context, index string) (bool, error)

	// Close releases resources.
	Close() error
}
