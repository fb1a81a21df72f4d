package driving

import (
	"context"

	"github.com/arcadia-data/catalens/internal/core/domain"
)

// IndexService maintains the vector index in response to catalog entity
// lifecycle events. Mutations are best-effort: failures are logged by the
// implementation and never propagated to the event producer.
type IndexService interface {
	// Upsert indexes an entity's chunk documents, skipping embedding and
	// writes entirely when the stored fingerprint is unchanged.
	Upsert(ctx context.Context, entity *domain.Entity, targetIndex string)

	// UpsertWithMigration behaves like Upsert but copies unchanged chunk
	// documents verbatim from sourceIndex instead of re-embedding them.
	UpsertWithMigration(ctx context.Context, entity *domain.Entity, targetIndex, sourceIndex string)

	// SoftDelete marks all of an entity's chunks deleted in place.
	SoftDelete(ctx context.Context, entityID string, index string)

	// Restore reverses a soft delete.
	Restore(ctx context.Context, entityID string, index string)

	// HardDelete removes all of an entity's chunks from the index.
	HardDelete(ctx context.Context, entityID string, index string)

	// EnsureIndex creates the target index with the k-NN mapping when it
	// does not already exist.
	EnsureIndex(ctx context.Context, index string) error

	// ExistingFingerprint returns the stored fingerprint for one entity,
	// or "" when the entity has no indexed chunks.
	ExistingFingerprint(ctx context.Context, index string, parentID string) (string, error)

	// ExistingFingerprintsBatch returns stored fingerprints for many
	// entities in a single query. Absent entities are missing from the map.
	ExistingFingerprintsBatch(ctx context.Context, index string, parentIDs []string) (map[string]string, error)
}
