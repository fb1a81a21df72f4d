package domain

// SearchRequest is a semantic search as received at the service boundary.
type SearchRequest struct {
	// Query is the natural-language query text. Must be non-blank.
	Query string

	// Filters maps facet names to accepted values. Reserved values
	// AnyValue and NoneValue express existence and absence.
	Filters map[string][]string

	// Size is the maximum number of distinct parent entities to return.
	Size int

	// K is the k-NN candidate pool size.
	K int

	// Threshold discards hits scoring below it. Range [0, 1].
	Threshold float64
}

// Reserved filter values understood by the query builder.
const (
	// AnyValue matches entities where the facet has any value at all.
	AnyValue = "__ANY__"

	// NoneValue matches entities where the facet is absent.
	NoneValue = "__NONE__"
)

// SearchResponse is the grouped result of a semantic search.
type SearchResponse struct {
	// TookMillis is the elapsed wall time of the query round trip.
	TookMillis int64

	// Hits are chunk documents grouped by parent, in relevance order.
	// Every hit carries a "_score" entry alongside its source fields.
	Hits []map[string]any
}

// QueryResult is the cleaned, caller-facing shape of a semantic search.
// Internal fields (embedding, fingerprint, chunk bookkeeping) are stripped
// and _score is renamed similarityScore before results reach callers.
type QueryResult struct {
	Query         string           `json:"query"`
	TookMillis    int64            `json:"tookMillis"`
	TotalFound    int              `json:"totalFound"`
	ReturnedCount int              `json:"returnedCount"`
	Results       []map[string]any `json:"results"`
	Message       string           `json:"message,omitempty"`
	Error         string           `json:"error,omitempty"`
}

// FingerprintResult reports the stored fingerprint for one parent entity.
type FingerprintResult struct {
	EntityID    string `json:"entityId"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Found       bool   `json:"found"`
	Message     string `json:"message"`
}
