package driving

import (
	"context"

	"github.com/arcadia-data/catalens/internal/core/domain"
)

// SemanticSearchService provides the caller-facing semantic search surface.
type SemanticSearchService interface {
	// Query runs a semantic search and returns a cleaned result payload.
	// Validation failures (blank query), a disabled feature, and an
	// uninitialized service are reported as errors without any downstream
	// calls; internal failures come back as an error-annotated payload
	// with zero counts rather than an error.
	Query(ctx context.Context, req domain.SearchRequest) (*domain.QueryResult, error)

	// Fingerprint returns the stored content fingerprint for an entity.
	Fingerprint(ctx context.Context, entityID string) (*domain.FingerprintResult, error)
}
