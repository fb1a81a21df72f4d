// Package opensearch provides a DocumentStore adapter speaking the
// OpenSearch-compatible REST API.
package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/arcadia-data/catalens/internal/core/ports/driven"
	"github.com/arcadia-data/catalens/internal/logger"
)

// Ensure Store implements the interface.
var _ driven.DocumentStore = (*Store)(nil)

// Default configuration values.
const (
	DefaultEndpoint = "http://localhost:9200"
	DefaultTimeout  = 30 * time.Second
)

// Config holds configuration for the OpenSearch store.
type Config struct {
	// Endpoint is the cluster base URL (default: http://localhost:9200).
	Endpoint string

	// Username and Password enable basic auth when both are set.
	Username string
	Password string

	// Timeout is the request timeout (default: 30s).
	Timeout time.Duration
}

// Store talks to an OpenSearch-compatible cluster over REST.
type Store struct {
	client   *http.Client
	endpoint string
	username string
	password string
	log      *logger.Logger
}

// NewStore creates an OpenSearch document store.
func NewStore(cfg Config, log *logger.Logger) *Store {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log == nil {
		log = logger.Discard()
	}

	return &Store{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		username: cfg.Username,
		password: cfg.Password,
		log:      log,
	}
}

// searchResponse is the subset of the _search response we consume.
type searchResponse struct {
	Hits struct {
		Hits []struct {
			Score  float64        `json:"_score"`
			Source map[string]any `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search executes a query body against an index and returns raw hits.
func (s *Store) Search(ctx context.Context, index string, body string) ([]driven.SearchHit, error) {
	respBody, err := s.do(ctx, http.MethodPost, "/"+index+"/_search", "application/json", strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", index, err)
	}

	var parsed searchResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	hits := make([]driven.SearchHit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		hits = append(hits, driven.SearchHit{Score: h.Score, Source: h.Source})
	}
	return hits, nil
}

// bulkResponse is the subset of the _bulk response we consume.
type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// BulkWrite indexes the items in one NDJSON _bulk request. Per-item
// failures are reported in the results; the error covers the request as
// a whole.
func (s *Store) BulkWrite(ctx context.Context, index string, items []driven.BulkItem) ([]driven.BulkResult, error) {
	if len(items) == 0 {
		return nil, nil
	}

	var payload bytes.Buffer
	enc := json.NewEncoder(&payload)
	for _, item := range items {
		action := map[string]map[string]string{
			"index": {"_index": index, "_id": item.ID},
		}
		if err := enc.Encode(action); err != nil {
			return nil, fmt.Errorf("encode bulk action: %w", err)
		}
		if err := enc.Encode(item.Document); err != nil {
			return nil, fmt.Errorf("encode bulk document %s: %w", item.ID, err)
		}
	}

	respBody, err := s.do(ctx, http.MethodPost, "/_bulk", "application/x-ndjson", &payload)
	if err != nil {
		return nil, fmt.Errorf("bulk write to %s: %w", index, err)
	}

	var parsed bulkResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode bulk response: %w", err)
	}

	results := make([]driven.BulkResult, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		// Each item has a single action key ("index").
		for _, outcome := range item {
			result := driven.BulkResult{ID: outcome.ID}
			if outcome.Error != nil || outcome.Status >= 400 {
				result.Failed = true
				if outcome.Error != nil {
					result.Reason = outcome.Error.Reason
				} else {
					result.Reason = fmt.Sprintf("status %d", outcome.Status)
				}
			}
			results = append(results, result)
		}
	}
	return results, nil
}

// DeleteByQuery removes every document matching the term filter.
func (s *Store) DeleteByQuery(ctx context.Context, index string, filter driven.TermFilter) error {
	body, err := termQueryBody("", filter)
	if err != nil {
		return err
	}
	if _, err := s.do(ctx, http.MethodPost, "/"+index+"/_delete_by_query", "application/json", bytes.NewReader(body)); err != nil {
		return fmt.Errorf("delete by query on %s: %w", index, err)
	}
	return nil
}

// UpdateByQuery runs a script against every document matching the term
// filter.
func (s *Store) UpdateByQuery(ctx context.Context, index string, script string, filter driven.TermFilter) error {
	body, err := termQueryBody(script, filter)
	if err != nil {
		return err
	}
	if _, err := s.do(ctx, http.MethodPost, "/"+index+"/_update_by_query", "application/json", bytes.NewReader(body)); err != nil {
		return fmt.Errorf("update by query on %s: %w", index, err)
	}
	return nil
}

// CreateIndex creates an index with the given mapping body.
func (s *Store) CreateIndex(ctx context.Context, index string, mapping string) error {
	if _, err := s.do(ctx, http.MethodPut, "/"+index, "application/json", strings.NewReader(mapping)); err != nil {
		return fmt.Errorf("create index %s: %w", index, err)
	}
	return nil
}

// IndexExists reports whether the index exists.
func (s *Store) IndexExists(ctx context.Context, index string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.endpoint+"/"+index, http.NoBody)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	s.auth(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("head index %s: %w", index, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("head index %s: status %d", index, resp.StatusCode)
	}
}

// Close releases resources.
func (s *Store) Close() error {
	// HTTP client doesn't need explicit cleanup
	return nil
}

func (s *Store) do(ctx context.Context, method, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.endpoint+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	s.auth(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

func (s *Store) auth(req *http.Request) {
	if s.username != "" {
		req.SetBasicAuth(s.username, s.password)
	}
}

// termQueryBody renders a term query, with an optional script for
// update-by-query.
func termQueryBody(script string, filter driven.TermFilter) ([]byte, error) {
	doc := map[string]any{
		"query": map[string]any{
			"term": map[string]any{filter.Field: filter.Value},
		},
	}
	if script != "" {
		doc["script"] = map[string]any{"source": script, "lang": "painless"}
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode term query: %w", err)
	}
	return body, nil
}
