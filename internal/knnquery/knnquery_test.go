package knnquery

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcadia-data/catalens/internal/logger"
)

// parse unmarshals the built query and digs out the must clause list.
func parse(t *testing.T, body string) (map[string]any, []any) {
	t.Helper()

	var q map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &q), "query is not valid JSON: %s", body)

	knn := q["query"].(map[string]any)["knn"].(map[string]any)["embedding"].(map[string]any)
	filter := knn["filter"].(map[string]any)["bool"].(map[string]any)
	must := filter["must"].([]any)
	return q, must
}

func build(filters map[string][]string) string {
	b := New(logger.Discard())
	return b.Build([]float32{0.1, 0.2, 0.3}, 10, 100, filters)
}

func TestBuildAlwaysFiltersDeletedFirst(t *testing.T) {
	for _, filters := range []map[string][]string{
		nil,
		{},
		{"tags": {"PII.Sensitive"}},
		{"unknown": {"x"}, "owners": {"alice"}},
	} {
		_, must := parse(t, build(filters))
		require.NotEmpty(t, must)
		first := must[0].(map[string]any)
		assert.Equal(t, map[string]any{"term": map[string]any{"deleted": false}}, first)
	}
}

func TestBuildSizeKAndSourceExcludes(t *testing.T) {
	q, _ := parse(t, build(nil))

	assert.Equal(t, float64(10), q["size"])

	src := q["_source"].(map[string]any)
	assert.Equal(t, []any{"embedding"}, src["excludes"])

	knn := q["query"].(map[string]any)["knn"].(map[string]any)["embedding"].(map[string]any)
	assert.Equal(t, float64(100), knn["k"])
	assert.Len(t, knn["vector"].([]any), 3)
}

func TestBuildSingleFlatTerm(t *testing.T) {
	_, must := parse(t, build(map[string][]string{"entityType": {"table"}}))

	require.Len(t, must, 2)
	clause := must[1].(map[string]any)
	assert.Equal(t, map[string]any{"term": map[string]any{"entityType": "table"}}, clause)
}

func TestBuildMultiValueFlatTerms(t *testing.T) {
	_, must := parse(t, build(map[string][]string{"serviceType": {"Mysql", "Postgres"}}))

	require.Len(t, must, 2)
	terms := must[1].(map[string]any)["terms"].(map[string]any)
	assert.Equal(t, []any{"Mysql", "Postgres"}, terms["serviceType"])
}

func TestBuildFlatMixedReservedValues(t *testing.T) {
	_, must := parse(t, build(map[string][]string{"tier": {"Tier.Tier1", "__NONE__"}}))

	should := must[1].(map[string]any)["bool"].(map[string]any)["should"].([]any)
	require.Len(t, should, 2)

	term := should[0].(map[string]any)["term"].(map[string]any)
	assert.Equal(t, "Tier.Tier1", term["tier.tagFQN"])

	mustNot := should[1].(map[string]any)["bool"].(map[string]any)["must_not"].(map[string]any)
	exists := mustNot["exists"].(map[string]any)
	assert.Equal(t, "tier.tagFQN", exists["field"])
}

func TestBuildTagsNested(t *testing.T) {
	_, must := parse(t, build(map[string][]string{"tags": {"PII.Sensitive"}}))

	nested := must[1].(map[string]any)["nested"].(map[string]any)
	assert.Equal(t, "tags", nested["path"])
	term := nested["query"].(map[string]any)["term"].(map[string]any)
	assert.Equal(t, "PII.Sensitive", term["tags.tagFQN"])
}

func TestBuildTagsNestedDisjunction(t *testing.T) {
	_, must := parse(t, build(map[string][]string{"tags": {"PII.Sensitive", "__ANY__"}}))

	nested := must[1].(map[string]any)["nested"].(map[string]any)
	should := nested["query"].(map[string]any)["bool"].(map[string]any)["should"].([]any)
	require.Len(t, should, 2)
	assert.Contains(t, should[1].(map[string]any), "exists")
}

func TestBuildOwnersNoneStandalone(t *testing.T) {
	_, must := parse(t, build(map[string][]string{"owners": {"__NONE__"}}))

	mustNot := must[1].(map[string]any)["bool"].(map[string]any)["must_not"].(map[string]any)
	nested := mustNot["nested"].(map[string]any)
	assert.Equal(t, "owners", nested["path"])
	exists := nested["query"].(map[string]any)["exists"].(map[string]any)
	assert.Equal(t, "owners.name", exists["field"])
}

func TestBuildOwnersMixedNamesAndReserved(t *testing.T) {
	_, must := parse(t, build(map[string][]string{"owners": {"alice", "__ANY__", "__NONE__"}}))

	should := must[1].(map[string]any)["bool"].(map[string]any)["should"].([]any)
	require.Len(t, should, 3)

	nested := should[0].(map[string]any)["nested"].(map[string]any)
	term := nested["query"].(map[string]any)["term"].(map[string]any)
	assert.Equal(t, "alice", term["owners.name"])

	anyClause := should[1].(map[string]any)["nested"].(map[string]any)
	assert.Contains(t, anyClause["query"].(map[string]any), "exists")

	noneClause := should[2].(map[string]any)["bool"].(map[string]any)
	assert.Contains(t, noneClause, "must_not")
}

func TestBuildCustomPropertyFuzzyMatch(t *testing.T) {
	_, must := parse(t, build(map[string][]string{"customProperties.businessUnit": {"payments"}}))

	match := must[1].(map[string]any)["match"].(map[string]any)
	inner := match["customProperties.businessUnit"].(map[string]any)
	assert.Equal(t, "payments", inner["query"])
	assert.Equal(t, "AUTO", inner["fuzziness"])
}

func TestBuildCustomPropertyNameExactTerm(t *testing.T) {
	_, must := parse(t, build(map[string][]string{"customProperties.steward.name": {"jdoe"}}))

	term := must[1].(map[string]any)["term"].(map[string]any)
	assert.Equal(t, "jdoe", term["customProperties.steward.name"])
}

func TestBuildUnknownAndEmptyFiltersSkipped(t *testing.T) {
	_, must := parse(t, build(map[string][]string{
		"nonsense": {"x"},
		"tags":     {},
	}))

	assert.Len(t, must, 1)
}

func TestBuildDeterministicFilterOrder(t *testing.T) {
	filters := map[string][]string{
		"tier":       {"Tier.Tier1"},
		"entityType": {"table"},
		"domains":    {"Finance"},
	}
	first := build(filters)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, build(filters))
	}
}

func TestEscape(t *testing.T) {
	assert.Equal(t, `a\\b`, Escape(`a\b`))
	assert.Equal(t, `say \"hi\"`, Escape(`say "hi"`))

	_, must := parse(t, build(map[string][]string{"entityType": {`we"ird`}}))
	term := must[1].(map[string]any)["term"].(map[string]any)
	assert.Equal(t, `we"ird`, term["entityType"])
}
