package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/arcadia-data/catalens/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/arcadia-data/catalens/internal/core/domain"
	"github.com/arcadia-data/catalens/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.PartitionStore = (*Store)(nil)

// Store is a SQLite-backed partition store.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a SQLite partition store at the given path.
// If dbPath is empty, defaults to ~/.catalens/data/reindex.db.
func NewStore(dbPath string) (*Store, error) {
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".catalens", "data", "reindex.db")
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	// Run migrations
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Save stores or updates a partition.
func (s *Store) Save(ctx context.Context, p domain.ReindexPartition) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reindex_partitions (job_id, entity_type, partition_index, status, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(job_id, entity_type, partition_index) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at
	`, p.JobID, p.EntityType, p.PartitionIndex, string(p.Status))

	if err != nil {
		return fmt.Errorf("saving partition: %w", err)
	}
	return nil
}

// UpdateStatus transitions one partition's status.
func (s *Store) UpdateStatus(ctx context.Context, jobID string, entityType string, partitionIndex int, status domain.PartitionStatus) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE reindex_partitions
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE job_id = ? AND entity_type = ? AND partition_index = ?
	`, string(status), jobID, entityType, partitionIndex)

	if err != nil {
		return fmt.Errorf("updating partition status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking updated rows: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByJob returns all partitions recorded for a job.
func (s *Store) ListByJob(ctx context.Context, jobID string) ([]domain.ReindexPartition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, entity_type, partition_index, status
		FROM reindex_partitions
		WHERE job_id = ?
		ORDER BY entity_type, partition_index
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("querying partitions: %w", err)
	}
	defer rows.Close()

	var partitions []domain.ReindexPartition //nolint:prealloc // size unknown from query
	for rows.Next() {
		var p domain.ReindexPartition
		var status string
		if err := rows.Scan(&p.JobID, &p.EntityType, &p.PartitionIndex, &status); err != nil {
			return nil, fmt.Errorf("scanning partition: %w", err)
		}
		p.Status = domain.PartitionStatus(status)
		partitions = append(partitions, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating partitions: %w", err)
	}

	return partitions, nil
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	// Ensure schema_migrations table exists
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	// Find all up migrations
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort and run migrations
	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "001_partitions.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}

		if version <= currentVersion {
			continue // Already applied
		}

		// Read and execute migration
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}

		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}
