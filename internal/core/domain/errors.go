package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity or document does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrFeatureDisabled indicates vector search is switched off in
	// configuration. Reported without attempting any downstream call.
	ErrFeatureDisabled = errors.New("vector search is not enabled")

	// ErrNotInitialized indicates the search service has not been
	// constructed yet. Distinct from ErrFeatureDisabled so callers can
	// tell configuration from initialization-order problems.
	ErrNotInitialized = errors.New("vector search service is not initialized")

	// ErrEmbeddingUnavailable indicates the embedding service is not
	// configured or reachable. Semantic search is disabled without it.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrStoreUnavailable indicates the document store is not configured
	// or reachable.
	ErrStoreUnavailable = errors.New("document store unavailable")
)
