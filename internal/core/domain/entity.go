package domain

import "strings"

// EntityKind discriminates catalog entity variants. Kind-specific document
// fields are produced by one exhaustive switch per kind; adding a kind means
// adding one constant here plus one switch arm in the document builder.
type EntityKind string

const (
	KindTable        EntityKind = "table"
	KindGlossary     EntityKind = "glossary"
	KindGlossaryTerm EntityKind = "glossaryTerm"
	KindMetric       EntityKind = "metric"
	KindDashboard    EntityKind = "dashboard"
	KindTopic        EntityKind = "topic"
	KindPipeline     EntityKind = "pipeline"
)

// TierPrefix marks the tier pseudo-tag within an entity's tag list.
const TierPrefix = "Tier."

// GlossarySource is the tag source value that marks a glossary-term
// association rather than a classification tag.
const GlossarySource = "Glossary"

// TagLabel is a tag applied to an entity. Tier and certification are
// expressed as TagLabels too.
type TagLabel struct {
	TagFQN      string
	Name        string
	LabelType   string
	Description string
	Source      string
	State       string
}

// IsTier reports whether the tag is the tier pseudo-tag.
func (t TagLabel) IsTier() bool {
	return strings.HasPrefix(t.TagFQN, TierPrefix)
}

// IsGlossaryTerm reports whether the tag is a glossary-term association.
func (t TagLabel) IsGlossaryTerm() bool {
	return t.Source == GlossarySource
}

// EntityRef is a lightweight reference to another catalog entity
// (owner, domain, follower, related term).
type EntityRef struct {
	ID                 string
	Name               string
	Type               string
	DisplayName        string
	FullyQualifiedName string
}

// Votes holds up/down vote counts for an entity.
type Votes struct {
	UpVotes   int
	DownVotes int
}

// UsageStats is one usage window's measurement.
type UsageStats struct {
	Count          int
	PercentileRank *float64
}

// UsageSummary aggregates usage over standard windows.
type UsageSummary struct {
	Daily   *UsageStats
	Weekly  *UsageStats
	Monthly *UsageStats
}

// Column is a table column with its optional description.
type Column struct {
	Name        string
	Description string
}

// TableSpec carries table-specific fields.
type TableSpec struct {
	Columns []Column
}

// GlossaryTermSpec carries glossary-term-specific fields.
type GlossaryTermSpec struct {
	Synonyms     []string
	RelatedTerms []EntityRef
}

// MetricExpression is the formula behind a metric.
type MetricExpression struct {
	Language string
	Code     string
}

// MetricSpec carries metric-specific fields. CustomUnit substitutes for
// UnitOfMeasurement when the unit is "OTHER".
type MetricSpec struct {
	MetricType        string
	UnitOfMeasurement string
	CustomUnit        string
	Granularity       string
	Expression        *MetricExpression
	RelatedMetrics    []EntityRef
}

// Entity is a catalog entity as seen by the vector-search subsystem.
// Exactly one kind payload (Table, GlossaryTerm, Metric) may be set,
// matching Kind; kinds without extra fields carry none.
type Entity struct {
	// ID is the entity's unique identifier (UUID string). It becomes the
	// parent_id of every chunk document built from this entity.
	ID string

	Kind EntityKind

	Name               string
	DisplayName        string
	FullyQualifiedName string

	// Description may contain HTML markup; the document builder strips it.
	Description string

	ServiceType string
	Deleted     bool

	// Tags includes classification tags, glossary associations and the
	// tier pseudo-tag.
	Tags          []TagLabel
	Certification *TagLabel

	Owners    []EntityRef
	Domains   []EntityRef
	Followers []EntityRef

	Votes        *Votes
	UsageSummary *UsageSummary

	CustomProperties map[string]any

	Table        *TableSpec
	GlossaryTerm *GlossaryTermSpec
	Metric       *MetricSpec
}

// TierTag returns the tier pseudo-tag if present.
func (e *Entity) TierTag() *TagLabel {
	for i := range e.Tags {
		if e.Tags[i].IsTier() {
			return &e.Tags[i]
		}
	}
	return nil
}

// ClassificationTags returns the non-tier, non-glossary tags.
func (e *Entity) ClassificationTags() []TagLabel {
	var out []TagLabel
	for _, t := range e.Tags {
		if !t.IsTier() && !t.IsGlossaryTerm() {
			out = append(out, t)
		}
	}
	return out
}

// GlossaryAssociations returns the glossary-term tags.
func (e *Entity) GlossaryAssociations() []TagLabel {
	var out []TagLabel
	for _, t := range e.Tags {
		if t.IsGlossaryTerm() {
			out = append(out, t)
		}
	}
	return out
}
