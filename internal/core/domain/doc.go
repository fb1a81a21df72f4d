// Package domain defines the core business entities for Catalens.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Entity: A catalog entity (table, glossary term, metric, ...) to index
//   - ReindexPartition: One slice of a distributed reindex job
//   - SearchRequest / SearchResponse: The semantic query contract
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
