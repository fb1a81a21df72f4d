package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arcadia-data/catalens/internal/adapters/driven/storage/sqlite"
	"github.com/arcadia-data/catalens/internal/core/domain"
	"github.com/arcadia-data/catalens/internal/core/ports/driven"
)

var statusDBPath string

// openPartitionStore is swapped out in tests.
var openPartitionStore = func(path string) (driven.PartitionStore, error) {
	return sqlite.NewStore(path)
}

var reindexStatusCmd = &cobra.Command{
	Use:   "reindex-status [job-id]",
	Short: "Show partition progress of a reindex job",
	Args:  cobra.ExactArgs(1),
	RunE:  runReindexStatus,
}

func init() {
	reindexStatusCmd.Flags().StringVar(&statusDBPath, "db", "", "partition database path")
	rootCmd.AddCommand(reindexStatusCmd)
}

// entityProgress is the per-entity-type rollup shown to the operator.
type entityProgress struct {
	entityType string
	total      int
	completed  int
	failed     int
	running    int
}

func runReindexStatus(cmd *cobra.Command, args []string) error {
	if err := ensureServices(); err != nil {
		return err
	}

	dbPath := statusDBPath
	if dbPath == "" {
		dbPath = reindexDBPath
	}

	store, err := openPartitionStore(dbPath)
	if err != nil {
		return fmt.Errorf("opening partition store: %w", err)
	}
	defer store.Close()

	jobID := args[0]
	partitions, err := store.ListByJob(context.Background(), jobID)
	if err != nil {
		return fmt.Errorf("listing partitions: %w", err)
	}
	if len(partitions) == 0 {
		cmd.Printf("No partitions recorded for job %s\n", jobID)
		return nil
	}

	progress := rollupPartitions(partitions)

	cmd.Printf("Job %s:\n", jobID)
	for _, p := range progress {
		state := "in progress"
		switch {
		case p.failed > 0 && p.completed+p.failed == p.total:
			state = "done with failures"
		case p.completed == p.total:
			state = "done"
		}
		cmd.Printf("  %-16s %d/%d partitions complete", p.entityType, p.completed+p.failed, p.total)
		if p.failed > 0 {
			cmd.Printf(" (%d failed)", p.failed)
		}
		cmd.Printf(" - %s\n", state)
	}
	return nil
}

// rollupPartitions groups raw partition rows by entity type, preserving
// first-seen order.
func rollupPartitions(partitions []domain.ReindexPartition) []entityProgress {
	index := make(map[string]int)
	out := make([]entityProgress, 0)
	for _, p := range partitions {
		i, ok := index[p.EntityType]
		if !ok {
			i = len(out)
			index[p.EntityType] = i
			out = append(out, entityProgress{entityType: p.EntityType})
		}
		out[i].total++
		switch p.Status {
		case domain.PartitionCompleted:
			out[i].completed++
		case domain.PartitionFailed:
			out[i].failed++
		case domain.PartitionRunning:
			out[i].running++
		}
	}
	return out
}
