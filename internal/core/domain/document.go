package domain

import "strconv"

// Chunk documents are stored as maps because their field set is the wire
// contract of the vector index; other tooling reads these names directly.
// The constants below name every field the builder emits.
const (
	FieldParentID           = "parent_id"
	FieldSourceID           = "sourceId"
	FieldEntityType         = "entityType"
	FieldFullyQualifiedName = "fullyQualifiedName"
	FieldName               = "name"
	FieldDisplayName        = "displayName"
	FieldServiceType        = "serviceType"
	FieldDeleted            = "deleted"
	FieldFingerprint        = "fingerprint"
	FieldChunkIndex         = "chunk_index"
	FieldChunkCount         = "chunk_count"
	FieldTextToEmbed        = "text_to_embed"
	FieldEmbedding          = "embedding"
	FieldTags               = "tags"
	FieldTier               = "tier"
	FieldCertification      = "certification"
	FieldOwners             = "owners"
	FieldDomains            = "domains"
	FieldCustomProperties   = "customProperties"
	FieldUpVotes            = "upVotes"
	FieldDownVotes          = "downVotes"
	FieldTotalVotes         = "totalVotes"
	FieldFollowersCount     = "followersCount"
	FieldUsageSummary       = "usageSummary"
)

// ChunkDocument is one embedded text chunk plus its metadata, keyed by the
// wire field names above.
type ChunkDocument map[string]any

// ChunkDocID builds the deterministic document key for a chunk. Re-indexing
// the same entity overwrites by key, which makes repeated bulk writes safe.
func ChunkDocID(parentID string, chunkIndex int) string {
	return parentID + "-" + strconv.Itoa(chunkIndex)
}

// ParentID returns the chunk's parent entity id, or "" when absent.
func (d ChunkDocument) ParentID() string {
	if v, ok := d[FieldParentID].(string); ok {
		return v
	}
	return ""
}

// Fingerprint returns the chunk's content fingerprint, or "" when absent.
func (d ChunkDocument) Fingerprint() string {
	if v, ok := d[FieldFingerprint].(string); ok {
		return v
	}
	return ""
}
