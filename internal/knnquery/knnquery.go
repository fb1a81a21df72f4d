// Package knnquery renders k-NN query documents for the vector index.
//
// The query body is built by direct string templating rather than via an
// encoding/json round trip; the clause shapes are fixed and the hot search
// path should not pay for map allocation and reflection. All templating is
// isolated in this package and covered by structural tests.
package knnquery

import (
	"sort"
	"strconv"
	"strings"

	"github.com/arcadia-data/catalens/internal/core/domain"
	"github.com/arcadia-data/catalens/internal/logger"
)

// Builder renders k-NN queries with pre-filters.
type Builder struct {
	log *logger.Logger
}

// New creates a query builder.
func New(log *logger.Logger) *Builder {
	if log == nil {
		log = logger.Discard()
	}
	return &Builder{log: log}
}

// Build renders a k-NN query over the embedding field with the given
// candidate pool size k and result size. Filters become a pre-filter
// conjunction evaluated inside the knn clause; its first clause is always
// deleted=false. Unrecognized filter keys are skipped, never an error.
// Filter keys are applied in sorted order so output is deterministic.
func (b *Builder) Build(vector []float32, size, k int, filters map[string][]string) string {
	var sb strings.Builder
	sb.Grow(512)

	sb.WriteString(`{"size":`)
	sb.WriteString(strconv.Itoa(size))
	sb.WriteString(`,"_source":{"excludes":["embedding"]}`)
	sb.WriteString(`,"query":{"knn":{"embedding":{"vector":`)
	writeVector(&sb, vector)
	sb.WriteString(`,"k":`)
	sb.WriteString(strconv.Itoa(k))

	sb.WriteString(`,"filter":{"bool":{"must":[`)

	// Only include documents where deleted=false
	sb.WriteString(`{"term":{"deleted":false}}`)

	keys := make([]string, 0, len(filters))
	for key := range filters {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, field := range keys {
		values := filters[field]
		if len(values) == 0 {
			continue
		}

		if strings.HasPrefix(field, "customProperties.") {
			sb.WriteByte(',')
			appendCustomPropertiesFilter(&sb, field, values)
			continue
		}

		switch field {
		case "owners":
			sb.WriteByte(',')
			appendOwnersFilter(&sb, values)
		case "tags":
			sb.WriteByte(',')
			appendNested(&sb, "tags", "tags.tagFQN", values)
		case "domains":
			sb.WriteByte(',')
			appendFlat(&sb, "domains.name", values)
		case "tier":
			sb.WriteByte(',')
			appendFlat(&sb, "tier.tagFQN", values)
		case "certification":
			sb.WriteByte(',')
			appendFlat(&sb, "certification.tagFQN", values)
		case "entityType":
			sb.WriteByte(',')
			appendFlat(&sb, "entityType", values)
		case "serviceType":
			sb.WriteByte(',')
			appendFlat(&sb, "serviceType", values)
		default:
			b.log.Debug("ignoring unrecognized filter key", "key", field)
		}
	}

	sb.WriteString(`]}}`)  // close must array and bool
	sb.WriteString(`}}}}`) // close embedding, knn, query
	return sb.String()
}

// Escape escapes backslashes and double quotes for embedding in a JSON
// string literal.
func Escape(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), `"`, `\"`)
}

func writeVector(sb *strings.Builder, vector []float32) {
	sb.WriteByte('[')
	for i, v := range vector {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	sb.WriteByte(']')
}

func appendNested(sb *strings.Builder, path, field string, vals []string) {
	sb.WriteString(`{"nested":{"path":"`)
	sb.WriteString(path)
	sb.WriteString(`","query":`)
	if len(vals) == 1 {
		appendOneNestedQuery(sb, field, vals[0])
	} else {
		sb.WriteString(`{"bool":{"should":[`)
		for i, v := range vals {
			if i > 0 {
				sb.WriteByte(',')
			}
			appendOneNestedQuery(sb, field, v)
		}
		sb.WriteString(`]}}`)
	}
	sb.WriteString(`}}`)
}

func appendOneNestedQuery(sb *strings.Builder, field, val string) {
	switch val {
	case domain.AnyValue:
		sb.WriteString(`{"exists":{"field":"`)
		sb.WriteString(field)
		sb.WriteString(`"}}`)
	case domain.NoneValue:
		sb.WriteString(`{"bool":{"must_not":{"exists":{"field":"`)
		sb.WriteString(field)
		sb.WriteString(`"}}}}`)
	default:
		sb.WriteString(`{"term":{"`)
		sb.WriteString(field)
		sb.WriteString(`":"`)
		sb.WriteString(Escape(val))
		sb.WriteString(`"}}`)
	}
}

func appendFlat(sb *strings.Builder, field string, vals []string) {
	if len(vals) == 1 {
		appendOneFlat(sb, field, vals[0])
		return
	}

	allNormal := true
	for _, v := range vals {
		if v == domain.AnyValue || v == domain.NoneValue {
			allNormal = false
			break
		}
	}

	if allNormal {
		sb.WriteString(`{"terms":{"`)
		sb.WriteString(field)
		sb.WriteString(`":[`)
		for i, v := range vals {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteByte('"')
			sb.WriteString(Escape(v))
			sb.WriteByte('"')
		}
		sb.WriteString(`]}}`)
		return
	}

	sb.WriteString(`{"bool":{"should":[`)
	for i, v := range vals {
		if i > 0 {
			sb.WriteByte(',')
		}
		appendOneFlat(sb, field, v)
	}
	sb.WriteString(`]}}`)
}

func appendOneFlat(sb *strings.Builder, field, val string) {
	switch val {
	case domain.AnyValue:
		sb.WriteString(`{"exists":{"field":"`)
		sb.WriteString(field)
		sb.WriteString(`"}}`)
	case domain.NoneValue:
		sb.WriteString(`{"bool":{"must_not":{"exists":{"field":"`)
		sb.WriteString(field)
		sb.WriteString(`"}}}}`)
	default:
		sb.WriteString(`{"term":{"`)
		sb.WriteString(field)
		sb.WriteString(`":"`)
		sb.WriteString(Escape(val))
		sb.WriteString(`"}}`)
	}
}

// customProperties.<name> values get a fuzzy full-text match unless the
// key names an exact identifier field (ends in ".name"), which gets a
// term match instead.
func appendCustomPropertiesFilter(sb *strings.Builder, field string, vals []string) {
	for i, v := range vals {
		if i > 0 {
			sb.WriteByte(',')
		}

		if strings.HasSuffix(field, ".name") {
			sb.WriteString(`{"term":{"`)
			sb.WriteString(field)
			sb.WriteString(`":"`)
			sb.WriteString(Escape(v))
			sb.WriteString(`"}}`)
			continue
		}

		sb.WriteString(`{"match":{"`)
		sb.WriteString(field)
		sb.WriteString(`":{"query":"`)
		sb.WriteString(Escape(v))
		sb.WriteString(`","fuzziness":"AUTO"}}}`)
	}
}

func appendOwnersFilter(sb *strings.Builder, vals []string) {
	const path = "owners"
	const field = "owners.name"

	// case: no owner at all
	if len(vals) == 1 && vals[0] == domain.NoneValue {
		sb.WriteString(`{"bool":{"must_not":{"nested":{"path":"`)
		sb.WriteString(path)
		sb.WriteString(`","query":{"exists":{"field":"`)
		sb.WriteString(field)
		sb.WriteString(`"}}}}}}`)
		return
	}

	// Mix of values, allows for combination of OR conditions
	sb.WriteString(`{"bool":{"should":[`)
	for i, v := range vals {
		if i > 0 {
			sb.WriteByte(',')
		}

		switch v {
		case domain.AnyValue:
			sb.WriteString(`{"nested":{"path":"`)
			sb.WriteString(path)
			sb.WriteString(`","query":{"exists":{"field":"`)
			sb.WriteString(field)
			sb.WriteString(`"}}}}`)
		case domain.NoneValue:
			sb.WriteString(`{"bool":{"must_not":{"nested":{"path":"`)
			sb.WriteString(path)
			sb.WriteString(`","query":{"exists":{"field":"`)
			sb.WriteString(field)
			sb.WriteString(`"}}}}}}`)
		default:
			sb.WriteString(`{"nested":{"path":"`)
			sb.WriteString(path)
			sb.WriteString(`","query":{"term":{"`)
			sb.WriteString(field)
			sb.WriteString(`":"`)
			sb.WriteString(Escape(v))
			sb.WriteString(`"}}}}`)
		}
	}
	sb.WriteString(`]}}`)
}
