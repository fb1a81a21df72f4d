package services

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/arcadia-data/catalens/internal/chunker"
	"github.com/arcadia-data/catalens/internal/core/domain"
	"github.com/arcadia-data/catalens/internal/core/ports/driven"
	"github.com/arcadia-data/catalens/internal/logger"
)

// DocumentBuilder converts a catalog entity into embedded chunk documents.
//
// Each entity yields a meta-light text block (stable identity facts) and a
// body text block (description plus columns for tabular entities). The body
// is chunked; every chunk re-embeds the meta-light context so each chunk is
// independently retrievable with full identity context. The fingerprint is
// computed once over "metaLight|body" and stamped identically onto every
// chunk of the parent - it is the unit of change detection.
type DocumentBuilder struct {
	chunks    *chunker.Chunker
	embedding driven.EmbeddingService
	log       *logger.Logger
}

// NewDocumentBuilder creates a document builder.
func NewDocumentBuilder(chunks *chunker.Chunker, embedding driven.EmbeddingService, log *logger.Logger) *DocumentBuilder {
	if chunks == nil {
		chunks = chunker.New()
	}
	if log == nil {
		log = logger.Discard()
	}
	return &DocumentBuilder{
		chunks:    chunks,
		embedding: embedding,
		log:       log,
	}
}

// Fingerprint computes the entity's current content fingerprint without
// embedding anything. Deterministic for unchanged entity state.
func (b *DocumentBuilder) Fingerprint(entity *domain.Entity) string {
	metaLight := buildMetaLightText(entity)
	body := buildBodyText(entity)
	return chunker.Fingerprint(metaLight + "|" + body)
}

// Build produces the full chunk document set for an entity. Embeddings for
// all chunks are requested as one batch call. Any chunking or embedding
// failure abandons the build - no partial document set is returned.
func (b *DocumentBuilder) Build(ctx context.Context, entity *domain.Entity) ([]domain.ChunkDocument, error) {
	if b.embedding == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}

	parentID := entity.ID
	entityType := string(entity.Kind)

	metaLight := buildMetaLightText(entity)
	body := buildBodyText(entity)
	fingerprint := chunker.Fingerprint(metaLight + "|" + body)

	chunks := b.chunks.Chunk(body)
	chunkCount := len(chunks)

	textsToEmbed := make([]string, 0, chunkCount)
	for ci, chunk := range chunks {
		contTag := ""
		if ci > 0 {
			contTag = "description (continued): "
		}
		textsToEmbed = append(textsToEmbed,
			fmt.Sprintf("%s%s%s | chunk %d/%d", metaLight, contTag, chunk, ci+1, chunkCount))
	}

	embeddings, err := b.embedding.EmbedBatch(ctx, textsToEmbed)
	if err != nil {
		return nil, fmt.Errorf("embed batch for entity %s: %w", parentID, err)
	}
	if len(embeddings) != len(textsToEmbed) {
		return nil, fmt.Errorf("embed batch for entity %s: got %d embeddings for %d texts",
			parentID, len(embeddings), len(textsToEmbed))
	}

	docs := make([]domain.ChunkDocument, 0, chunkCount)
	for i := range chunks {
		doc := domain.ChunkDocument{
			domain.FieldParentID:           parentID,
			domain.FieldSourceID:           parentID,
			domain.FieldEntityType:         entityType,
			domain.FieldFullyQualifiedName: entity.FullyQualifiedName,
			domain.FieldName:               entity.Name,
			domain.FieldDisplayName:        entity.DisplayName,
			domain.FieldServiceType:        entity.ServiceType,
			domain.FieldDeleted:            entity.Deleted,
			domain.FieldFingerprint:        fingerprint,
			domain.FieldChunkIndex:         i,
			domain.FieldChunkCount:         chunkCount,
			domain.FieldTextToEmbed:        textsToEmbed[i],
			domain.FieldEmbedding:          embeddings[i],
		}

		addTagsAndTier(doc, entity)
		addCertification(doc, entity)
		addOwners(doc, entity)
		addDomains(doc, entity)
		addCustomProperties(doc, entity)
		addPopularityMetrics(doc, entity)
		addKindSpecificFields(doc, entity)

		docs = append(docs, doc)
	}

	b.log.Debug("built chunk documents",
		"entity_id", parentID, "entity_type", entityType, "chunks", chunkCount)
	return docs, nil
}

func buildMetaLightText(entity *domain.Entity) string {
	isGlossary := entity.Kind == domain.KindGlossary
	isGlossaryTerm := entity.Kind == domain.KindGlossaryTerm

	var classificationTagFqns []string
	for _, tag := range entity.ClassificationTags() {
		classificationTagFqns = append(classificationTagFqns, tag.TagFQN)
	}
	var glossaryTermFqns []string
	for _, tag := range entity.GlossaryAssociations() {
		glossaryTermFqns = append(glossaryTermFqns, tag.TagFQN)
	}

	var ownerNames []string
	for _, owner := range entity.Owners {
		switch {
		case owner.Type != "" && owner.Name != "":
			ownerNames = append(ownerNames, strings.ToLower(owner.Type)+"."+owner.Name)
		case owner.Name != "":
			ownerNames = append(ownerNames, owner.Name)
		}
	}

	var domainFqns []string
	for _, d := range entity.Domains {
		if d.FullyQualifiedName != "" {
			domainFqns = append(domainFqns, d.FullyQualifiedName)
		}
	}

	var parts []string
	parts = append(parts, "name: "+orEmpty(entity.Name))
	parts = append(parts, "displayName: "+orEmpty(entity.DisplayName))
	parts = append(parts, "entityType: "+string(entity.Kind))
	parts = append(parts, "serviceType: "+orEmpty(entity.ServiceType))
	parts = append(parts, "fullyQualifiedName: "+orEmpty(entity.FullyQualifiedName))

	if isGlossaryTerm && entity.GlossaryTerm != nil {
		term := entity.GlossaryTerm
		parts = append(parts, "synonyms: "+joinOrEmpty(term.Synonyms))
		var relatedTermFqns []string
		for _, ref := range term.RelatedTerms {
			if ref.FullyQualifiedName != "" {
				relatedTermFqns = append(relatedTermFqns, ref.FullyQualifiedName)
			}
		}
		parts = append(parts, "relatedTerms: "+joinOrEmpty(relatedTermFqns))
	}

	if entity.Kind == domain.KindMetric && entity.Metric != nil {
		metric := entity.Metric
		if metric.MetricType != "" {
			parts = append(parts, "metricType: "+metric.MetricType)
		}
		if metric.UnitOfMeasurement != "" {
			unit := metric.UnitOfMeasurement
			if unit == "OTHER" && metric.CustomUnit != "" {
				unit = metric.CustomUnit
			}
			parts = append(parts, "unitOfMeasurement: "+unit)
		}
		if metric.Granularity != "" {
			parts = append(parts, "granularity: "+metric.Granularity)
		}
		if metric.Expression != nil && metric.Expression.Code != "" {
			parts = append(parts, fmt.Sprintf("metricCode: ```%s\n%s\n```",
				metric.Expression.Language, metric.Expression.Code))
		}
		if len(metric.RelatedMetrics) > 0 {
			var relatedMetricFqns []string
			for _, ref := range metric.RelatedMetrics {
				if ref.FullyQualifiedName != "" {
					relatedMetricFqns = append(relatedMetricFqns, ref.FullyQualifiedName)
				}
			}
			parts = append(parts, "relatedMetrics: "+joinOrEmpty(relatedMetricFqns))
		}
	}

	if !isGlossary && !isGlossaryTerm {
		tier := ""
		if t := entity.TierTag(); t != nil {
			tier = t.TagFQN
		}
		cert := ""
		if entity.Certification != nil {
			cert = entity.Certification.TagFQN
		}
		parts = append(parts, "tier: "+orEmpty(tier))
		parts = append(parts, "certification: "+orEmpty(cert))
	}

	parts = append(parts, "domains: "+joinOrEmpty(domainFqns))
	parts = append(parts, "tags: "+joinOrEmpty(classificationTagFqns))

	if !isGlossary && !isGlossaryTerm {
		parts = append(parts, "Associated glossary terms: "+joinOrEmpty(glossaryTermFqns))
	}

	parts = append(parts, "owners: "+joinOrEmpty(ownerNames))
	parts = append(parts, "customProperties: "+customPropertiesText(entity.CustomProperties))

	return strings.Join(parts, "; ") + " | "
}

func buildBodyText(entity *domain.Entity) string {
	bodyParts := []string{"description: " + removeHTML(orEmpty(entity.Description))}

	if entity.Kind == domain.KindTable && entity.Table != nil {
		bodyParts = append(bodyParts, "columns: "+columnsToText(entity.Table.Columns))
	}

	return strings.Join(bodyParts, "; ")
}

func addTagsAndTier(doc domain.ChunkDocument, entity *domain.Entity) {
	if len(entity.Tags) == 0 {
		doc[domain.FieldTags] = []map[string]any{}
		return
	}

	tagsList := make([]map[string]any, 0, len(entity.Tags))
	var tierDoc map[string]any

	for _, tag := range entity.Tags {
		tagDoc := tagLabelDoc(tag)
		if tag.IsTier() {
			tierDoc = tagDoc
		} else {
			tagsList = append(tagsList, tagDoc)
		}
	}

	doc[domain.FieldTags] = tagsList
	doc[domain.FieldTier] = tierDoc
}

func addCertification(doc domain.ChunkDocument, entity *domain.Entity) {
	if entity.Certification != nil {
		doc[domain.FieldCertification] = tagLabelDoc(*entity.Certification)
	}
}

func tagLabelDoc(tag domain.TagLabel) map[string]any {
	return map[string]any{
		"tagFQN":      tag.TagFQN,
		"name":        tag.Name,
		"labelType":   tag.LabelType,
		"description": tag.Description,
		"source":      tag.Source,
		"state":       tag.State,
	}
}

func addOwners(doc domain.ChunkDocument, entity *domain.Entity) {
	if len(entity.Owners) == 0 {
		doc[domain.FieldOwners] = []map[string]any{}
		return
	}
	ownersList := make([]map[string]any, 0, len(entity.Owners))
	for _, owner := range entity.Owners {
		ownersList = append(ownersList, map[string]any{
			"id":          owner.ID,
			"name":        owner.Name,
			"type":        owner.Type,
			"displayName": owner.DisplayName,
		})
	}
	doc[domain.FieldOwners] = ownersList
}

func addDomains(doc domain.ChunkDocument, entity *domain.Entity) {
	if len(entity.Domains) == 0 {
		return
	}
	domainsList := make([]map[string]any, 0, len(entity.Domains))
	for _, d := range entity.Domains {
		domainsList = append(domainsList, map[string]any{
			"id":          d.ID,
			"name":        d.Name,
			"displayName": d.DisplayName,
		})
	}
	doc[domain.FieldDomains] = domainsList
}

func addCustomProperties(doc domain.ChunkDocument, entity *domain.Entity) {
	if entity.CustomProperties != nil {
		doc[domain.FieldCustomProperties] = entity.CustomProperties
	}
}

func addPopularityMetrics(doc domain.ChunkDocument, entity *domain.Entity) {
	up, down := 0, 0
	if entity.Votes != nil {
		up = entity.Votes.UpVotes
		down = entity.Votes.DownVotes
	}
	doc[domain.FieldUpVotes] = up
	doc[domain.FieldDownVotes] = down
	doc[domain.FieldTotalVotes] = up + down

	doc[domain.FieldFollowersCount] = len(entity.Followers)

	if entity.UsageSummary == nil {
		return
	}
	usageMap := map[string]any{}
	if s := entity.UsageSummary.Daily; s != nil {
		usageMap["dailyStats"] = usageStatsDoc(s)
	}
	if s := entity.UsageSummary.Weekly; s != nil {
		usageMap["weeklyStats"] = usageStatsDoc(s)
	}
	if s := entity.UsageSummary.Monthly; s != nil {
		usageMap["monthlyStats"] = usageStatsDoc(s)
	}
	if len(usageMap) > 0 {
		doc[domain.FieldUsageSummary] = usageMap
	}
}

func usageStatsDoc(s *domain.UsageStats) map[string]any {
	out := map[string]any{"count": s.Count}
	if s.PercentileRank != nil {
		out["percentileRank"] = *s.PercentileRank
	}
	return out
}

// One arm per entity kind. Adding a kind means adding a domain constant,
// a kind payload, and one arm here.
func addKindSpecificFields(doc domain.ChunkDocument, entity *domain.Entity) {
	switch entity.Kind {
	case domain.KindTable:
		if entity.Table == nil {
			return
		}
		columnNames := make([]string, 0, len(entity.Table.Columns))
		for _, col := range entity.Table.Columns {
			columnNames = append(columnNames, col.Name)
		}
		doc["columns"] = columnNames

	case domain.KindGlossaryTerm:
		if entity.GlossaryTerm == nil {
			return
		}
		term := entity.GlossaryTerm
		if term.Synonyms != nil {
			doc["synonyms"] = term.Synonyms
		}
		if term.RelatedTerms != nil {
			relatedTerms := make([]map[string]any, 0, len(term.RelatedTerms))
			for _, ref := range term.RelatedTerms {
				relatedTerms = append(relatedTerms, map[string]any{
					"id":                 ref.ID,
					"name":               ref.Name,
					"type":               ref.Type,
					"displayName":        ref.DisplayName,
					"fullyQualifiedName": ref.FullyQualifiedName,
				})
			}
			doc["relatedTerms"] = relatedTerms
		}

	case domain.KindMetric:
		if entity.Metric == nil {
			return
		}
		metric := entity.Metric
		if metric.Expression != nil {
			doc["metricExpression"] = map[string]any{
				"language": metric.Expression.Language,
				"code":     metric.Expression.Code,
			}
		}
		if metric.MetricType != "" {
			doc["metricType"] = metric.MetricType
		}
		if metric.UnitOfMeasurement != "" {
			doc["unitOfMeasurement"] = metric.UnitOfMeasurement
		}
		if metric.CustomUnit != "" {
			doc["customUnitOfMeasurement"] = metric.CustomUnit
		}
		if metric.Granularity != "" {
			doc["granularity"] = metric.Granularity
		}
		if metric.RelatedMetrics != nil {
			fqns := make([]string, 0, len(metric.RelatedMetrics))
			for _, ref := range metric.RelatedMetrics {
				fqns = append(fqns, ref.FullyQualifiedName)
			}
			doc["relatedMetrics"] = fqns
		}
	}
}

var htmlTagPattern = regexp.MustCompile(`<[^>]+>`)
var whitespacePattern = regexp.MustCompile(`\s+`)

func removeHTML(text string) string {
	if text == "" {
		return ""
	}
	stripped := htmlTagPattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(stripped, " "))
}

func orEmpty(value string) string {
	if strings.TrimSpace(value) == "" {
		return "[]"
	}
	return value
}

func joinOrEmpty(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	return strings.Join(values, ", ")
}

// customPropertiesText renders custom properties in sorted key order so the
// fingerprint stays deterministic across map iterations.
func customPropertiesText(props map[string]any) string {
	if len(props) == 0 {
		return "[]"
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s=%v", k, props[k])
	}
	sb.WriteByte('}')
	return sb.String()
}

func columnsToText(columns []domain.Column) string {
	if len(columns) == 0 {
		return "[]"
	}
	parts := make([]string, 0, len(columns))
	for _, col := range columns {
		desc := strings.TrimSpace(col.Description)
		if desc == "" || strings.EqualFold(desc, "null") {
			parts = append(parts, col.Name)
		} else {
			parts = append(parts, col.Name+" ("+desc+")")
		}
	}
	return strings.Join(parts, ", ")
}
