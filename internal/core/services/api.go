package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/arcadia-data/catalens/internal/core/domain"
	"github.com/arcadia-data/catalens/internal/core/ports/driving"
	"github.com/arcadia-data/catalens/internal/logger"
)

var _ driving.SemanticSearchService = (*SearchAPIService)(nil)

// Caps applied to caller-supplied pagination parameters.
const (
	DefaultMaxSize = 50
	DefaultMaxK    = 10000
)

// Truncation applied to chunk text surfaced as description.
const (
	descriptionMaxLen  = 500
	descriptionCutLen  = 450
	descriptionEllipse = "..."
)

// SearchAPIService is the caller-facing boundary over the search
// orchestrator and write path. It validates input before any downstream
// work, distinguishes a disabled feature from a missing one, clamps
// pagination parameters, and cleans internal fields out of results.
// Internal search failures become an error payload with zero counts,
// never a hard error to the caller.
type SearchAPIService struct {
	search  *SearchService
	writer  *IndexWriteService
	index   string
	enabled bool
	maxSize int
	maxK    int
	log     *logger.Logger
}

// APIOption configures a SearchAPIService.
type APIOption func(*SearchAPIService)

// WithEnabled toggles the semantic search feature flag.
func WithEnabled(enabled bool) APIOption {
	return func(s *SearchAPIService) { s.enabled = enabled }
}

// WithLimits overrides the size and k caps.
func WithLimits(maxSize, maxK int) APIOption {
	return func(s *SearchAPIService) {
		if maxSize > 0 {
			s.maxSize = maxSize
		}
		if maxK > 0 {
			s.maxK = maxK
		}
	}
}

// NewSearchAPIService creates the boundary service. Pass nil search or
// writer to model an uninitialized deployment; calls then fail with
// ErrNotInitialized rather than panicking.
func NewSearchAPIService(search *SearchService, writer *IndexWriteService, index string, log *logger.Logger, opts ...APIOption) *SearchAPIService {
	if log == nil {
		log = logger.Discard()
	}
	s := &SearchAPIService{
		search:  search,
		writer:  writer,
		index:   index,
		enabled: true,
		maxSize: DefaultMaxSize,
		maxK:    DefaultMaxK,
		log:     log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Query runs a semantic search and returns a cleaned result payload.
func (s *SearchAPIService) Query(ctx context.Context, req domain.SearchRequest) (*domain.QueryResult, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("%w: query text is required", domain.ErrInvalidInput)
	}
	if !s.enabled {
		return nil, domain.ErrFeatureDisabled
	}
	if s.search == nil {
		return nil, domain.ErrNotInitialized
	}

	size := clamp(req.Size, 1, s.maxSize)
	k := clamp(req.K, 1, s.maxK)
	threshold := clampFloat(req.Threshold, 0, 1)

	resp, err := s.search.Search(ctx, req.Query, req.Filters, size, k, threshold)
	if err != nil {
		s.log.Error("semantic search failed", "query", req.Query, "error", err)
		return &domain.QueryResult{
			Query: req.Query,
			Error: err.Error(),
		}, nil
	}

	results := make([]map[string]any, 0, len(resp.Hits))
	for _, h := range resp.Hits {
		results = append(results, cleanHit(h))
	}

	out := &domain.QueryResult{
		Query:         req.Query,
		TookMillis:    resp.TookMillis,
		TotalFound:    len(resp.Hits),
		ReturnedCount: len(results),
		Results:       results,
	}
	if len(results) == 0 {
		out.Message = "No results matched the query"
	}
	return out, nil
}

// Fingerprint returns the stored content fingerprint for an entity.
func (s *SearchAPIService) Fingerprint(ctx context.Context, entityID string) (*domain.FingerprintResult, error) {
	if _, err := uuid.Parse(entityID); err != nil {
		return nil, fmt.Errorf("%w: invalid entity id %q", domain.ErrInvalidInput, entityID)
	}
	if !s.enabled {
		return nil, domain.ErrFeatureDisabled
	}
	if s.writer == nil {
		return nil, domain.ErrNotInitialized
	}

	fingerprint, err := s.writer.ExistingFingerprint(ctx, s.index, entityID)
	if err != nil {
		return nil, fmt.Errorf("fingerprint lookup: %w", err)
	}

	result := &domain.FingerprintResult{EntityID: entityID}
	if fingerprint == "" {
		result.Message = "No indexed documents found for entity"
		return result, nil
	}
	result.Fingerprint = fingerprint
	result.Found = true
	result.Message = "Fingerprint found"
	return result, nil
}

// cleanHit strips internal fields from a stored chunk and reshapes it for
// callers: _score becomes similarityScore and the embedded text becomes a
// truncated description.
func cleanHit(hit map[string]any) map[string]any {
	out := make(map[string]any, len(hit))
	for key, value := range hit {
		switch key {
		case domain.FieldEmbedding, domain.FieldFingerprint, domain.FieldChunkIndex, domain.FieldChunkCount:
			// internal bookkeeping, never surfaced
		case "_score":
			out["similarityScore"] = value
		case domain.FieldTextToEmbed:
			if text, ok := value.(string); ok {
				if len(text) > descriptionMaxLen {
					cut := descriptionCutLen
					// Back up to a rune boundary so the cut never
					// splits a multi-byte character.
					for cut > 0 && !utf8.RuneStart(text[cut]) {
						cut--
					}
					text = text[:cut] + descriptionEllipse
				}
				out["description"] = text
			}
		default:
			out[key] = value
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
