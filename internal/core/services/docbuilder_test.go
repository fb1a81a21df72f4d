package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcadia-data/catalens/internal/chunker"
	"github.com/arcadia-data/catalens/internal/core/domain"
	"github.com/arcadia-data/catalens/internal/logger"
)

func TestBuildSingleChunkDocument(t *testing.T) {
	embed := newMockEmbedding()
	builder := NewDocumentBuilder(chunker.New(), embed, logger.Discard())

	entity := tableEntity("e1")
	docs, err := builder.Build(context.Background(), entity)
	require.NoError(t, err)
	require.Len(t, docs, 1)

	doc := docs[0]
	assert.Equal(t, "e1", doc[domain.FieldParentID])
	assert.Equal(t, "e1", doc[domain.FieldSourceID])
	assert.Equal(t, "table", doc[domain.FieldEntityType])
	assert.Equal(t, "mysql.shop.orders", doc[domain.FieldFullyQualifiedName])
	assert.Equal(t, 0, doc[domain.FieldChunkIndex])
	assert.Equal(t, 1, doc[domain.FieldChunkCount])
	assert.Equal(t, false, doc[domain.FieldDeleted])
	assert.NotEmpty(t, doc[domain.FieldFingerprint])
	assert.Len(t, doc[domain.FieldEmbedding].([]float32), embed.dims)

	// One batch call regardless of chunk count.
	assert.Equal(t, 1, embed.batchCalls)
	assert.Equal(t, 0, embed.embedCalls)
}

func TestBuildChunkContiguity(t *testing.T) {
	embed := newMockEmbedding()
	// Small word budget to force multiple chunks.
	builder := NewDocumentBuilder(chunker.New(chunker.WithMaxWords(5)), embed, logger.Discard())

	entity := tableEntity("e2")
	entity.Description = strings.Repeat("orders facts with revenue totals ", 8)

	docs, err := builder.Build(context.Background(), entity)
	require.NoError(t, err)
	require.Greater(t, len(docs), 1)

	fingerprint := docs[0][domain.FieldFingerprint]
	for i, doc := range docs {
		assert.Equal(t, i, doc[domain.FieldChunkIndex])
		assert.Equal(t, len(docs), doc[domain.FieldChunkCount])
		assert.Equal(t, fingerprint, doc[domain.FieldFingerprint])
	}

	// All chunks embedded in one batch.
	require.Equal(t, 1, embed.batchCalls)
	assert.Equal(t, len(docs), embed.batchSizes[0])
}

func TestBuildEmbedTextCarriesMetaContext(t *testing.T) {
	embed := newMockEmbedding()
	builder := NewDocumentBuilder(chunker.New(chunker.WithMaxWords(5)), embed, logger.Discard())

	entity := tableEntity("e3")
	entity.Description = strings.Repeat("order revenue detail rows here ", 6)

	docs, err := builder.Build(context.Background(), entity)
	require.NoError(t, err)
	require.Greater(t, len(docs), 1)

	n := len(docs)
	for i, doc := range docs {
		text := doc[domain.FieldTextToEmbed].(string)
		assert.True(t, strings.HasPrefix(text, "name: orders; "), "chunk %d lost meta context", i)
		assert.Contains(t, text, "fullyQualifiedName: mysql.shop.orders")
		if i == 0 {
			assert.NotContains(t, text, "description (continued): ")
		} else {
			assert.Contains(t, text, "description (continued): ")
		}
		tag := fmt.Sprintf(" | chunk %d/%d", i+1, n)
		assert.True(t, strings.HasSuffix(text, tag), "chunk %d missing position tag", i)
	}
}

func TestFingerprintDeterministicAndContentSensitive(t *testing.T) {
	builder := NewDocumentBuilder(chunker.New(), newMockEmbedding(), logger.Discard())

	entity := tableEntity("e4")
	first := builder.Fingerprint(entity)
	second := builder.Fingerprint(entity)
	assert.Equal(t, first, second)

	entity.Description = "changed description"
	assert.NotEqual(t, first, builder.Fingerprint(entity))
}

func TestFingerprintIgnoresEmbeddingState(t *testing.T) {
	builder := NewDocumentBuilder(chunker.New(), newMockEmbedding(), logger.Discard())

	entity := tableEntity("e5")
	before := builder.Fingerprint(entity)

	_, err := builder.Build(context.Background(), entity)
	require.NoError(t, err)
	assert.Equal(t, before, builder.Fingerprint(entity))
}

func TestBuildStripsHTMLFromDescription(t *testing.T) {
	builder := NewDocumentBuilder(chunker.New(), newMockEmbedding(), logger.Discard())

	entity := tableEntity("e6")
	entity.Description = "<b>Daily</b>   <i>order</i> facts"

	docs, err := builder.Build(context.Background(), entity)
	require.NoError(t, err)
	text := docs[0][domain.FieldTextToEmbed].(string)
	assert.Contains(t, text, "description: Daily order facts")
	assert.NotContains(t, text, "<b>")
}

func TestBuildBlankDescriptionStillProducesOneChunk(t *testing.T) {
	builder := NewDocumentBuilder(chunker.New(), newMockEmbedding(), logger.Discard())

	entity := tableEntity("e7")
	entity.Description = ""
	entity.Table = nil

	docs, err := builder.Build(context.Background(), entity)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, 1, docs[0][domain.FieldChunkCount])
}

func TestBuildEmbeddingFailureAbandonsBuild(t *testing.T) {
	embed := newMockEmbedding()
	embed.err = errBoom
	builder := NewDocumentBuilder(chunker.New(), embed, logger.Discard())

	docs, err := builder.Build(context.Background(), tableEntity("e8"))
	require.Error(t, err)
	assert.Nil(t, docs)
}

func TestBuildNilEmbeddingService(t *testing.T) {
	builder := NewDocumentBuilder(chunker.New(), nil, logger.Discard())

	_, err := builder.Build(context.Background(), tableEntity("e9"))
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}

func TestBuildTierSeparatedFromTags(t *testing.T) {
	builder := NewDocumentBuilder(chunker.New(), newMockEmbedding(), logger.Discard())

	docs, err := builder.Build(context.Background(), tableEntity("e10"))
	require.NoError(t, err)

	doc := docs[0]
	tags := doc[domain.FieldTags].([]map[string]any)
	require.Len(t, tags, 1)
	assert.Equal(t, "PII.Sensitive", tags[0]["tagFQN"])

	tier := doc[domain.FieldTier].(map[string]any)
	assert.Equal(t, "Tier.Tier1", tier["tagFQN"])
}

func TestBuildGlossaryTermFields(t *testing.T) {
	builder := NewDocumentBuilder(chunker.New(), newMockEmbedding(), logger.Discard())

	entity := &domain.Entity{
		ID:                 "g1",
		Kind:               domain.KindGlossaryTerm,
		Name:               "Churn",
		FullyQualifiedName: "Business.Churn",
		Description:        "Customer attrition",
		GlossaryTerm: &domain.GlossaryTermSpec{
			Synonyms: []string{"attrition", "turnover"},
			RelatedTerms: []domain.EntityRef{
				{ID: "g2", Name: "Retention", FullyQualifiedName: "Business.Retention"},
			},
		},
	}

	docs, err := builder.Build(context.Background(), entity)
	require.NoError(t, err)

	doc := docs[0]
	assert.Equal(t, []string{"attrition", "turnover"}, doc["synonyms"])
	related := doc["relatedTerms"].([]map[string]any)
	require.Len(t, related, 1)
	assert.Equal(t, "Business.Retention", related[0]["fullyQualifiedName"])

	// Glossary terms carry no tier or certification lines.
	text := doc[domain.FieldTextToEmbed].(string)
	assert.Contains(t, text, "synonyms: attrition, turnover")
	assert.NotContains(t, text, "tier:")
	assert.NotContains(t, text, "certification:")
}

func TestBuildMetricFields(t *testing.T) {
	builder := NewDocumentBuilder(chunker.New(), newMockEmbedding(), logger.Discard())

	entity := &domain.Entity{
		ID:          "m1",
		Kind:        domain.KindMetric,
		Name:        "mrr",
		Description: "Monthly recurring revenue",
		Metric: &domain.MetricSpec{
			MetricType:        "SUM",
			UnitOfMeasurement: "OTHER",
			CustomUnit:        "EUR",
			Granularity:       "MONTH",
			Expression:        &domain.MetricExpression{Language: "SQL", Code: "SELECT SUM(amount)"},
		},
	}

	docs, err := builder.Build(context.Background(), entity)
	require.NoError(t, err)

	doc := docs[0]
	assert.Equal(t, "SUM", doc["metricType"])
	assert.Equal(t, "EUR", doc["customUnitOfMeasurement"])
	expr := doc["metricExpression"].(map[string]any)
	assert.Equal(t, "SELECT SUM(amount)", expr["code"])

	// The custom unit substitutes for OTHER in the embedded text.
	text := doc[domain.FieldTextToEmbed].(string)
	assert.Contains(t, text, "unitOfMeasurement: EUR")
	assert.Contains(t, text, "metricCode: ```SQL")
}

func TestBuildPopularityFields(t *testing.T) {
	builder := NewDocumentBuilder(chunker.New(), newMockEmbedding(), logger.Discard())

	entity := tableEntity("e11")
	entity.Votes = &domain.Votes{UpVotes: 4, DownVotes: 1}
	entity.Followers = []domain.EntityRef{{ID: "u1"}, {ID: "u2"}}
	entity.UsageSummary = &domain.UsageSummary{
		Weekly: &domain.UsageStats{Count: 42, PercentileRank: floatPtr(97.5)},
	}

	docs, err := builder.Build(context.Background(), entity)
	require.NoError(t, err)

	doc := docs[0]
	assert.Equal(t, 4, doc[domain.FieldUpVotes])
	assert.Equal(t, 1, doc[domain.FieldDownVotes])
	assert.Equal(t, 5, doc[domain.FieldTotalVotes])
	assert.Equal(t, 2, doc[domain.FieldFollowersCount])

	usage := doc[domain.FieldUsageSummary].(map[string]any)
	weekly := usage["weeklyStats"].(map[string]any)
	assert.Equal(t, 42, weekly["count"])
	assert.Equal(t, 97.5, weekly["percentileRank"])
}

func TestColumnsRenderedInBody(t *testing.T) {
	builder := NewDocumentBuilder(chunker.New(), newMockEmbedding(), logger.Discard())

	docs, err := builder.Build(context.Background(), tableEntity("e12"))
	require.NoError(t, err)

	text := docs[0][domain.FieldTextToEmbed].(string)
	assert.Contains(t, text, "columns: order_id (primary key), created_at")
	assert.Equal(t, []string{"order_id", "created_at"}, docs[0]["columns"])
}
