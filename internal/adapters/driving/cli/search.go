package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arcadia-data/catalens/internal/core/domain"
)

var (
	searchSize      int
	searchK         int
	searchThreshold float64
	searchFilters   []string
	searchJSON      bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search catalog entities semantically",
	Long: `Runs a semantic search over indexed catalog entities.
The query text is embedded and matched against entity chunks with k-NN
vector search; results are grouped by entity.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchSize, "size", "n", 10, "maximum number of entities to return")
	searchCmd.Flags().IntVar(&searchK, "k", 50, "k-NN candidate pool size")
	searchCmd.Flags().Float64Var(&searchThreshold, "threshold", -1, "similarity cutoff in [0,1]; default from config")
	searchCmd.Flags().StringArrayVar(&searchFilters, "filter", nil, "facet filter key=value, repeatable")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if err := ensureServices(); err != nil {
		return err
	}

	filters, err := parseFilters(searchFilters)
	if err != nil {
		return err
	}

	threshold := searchThreshold
	if threshold < 0 {
		threshold = defaultThreshold
	}

	result, err := queryService.Query(context.Background(), domain.SearchRequest{
		Query:     args[0],
		Filters:   filters,
		Size:      searchSize,
		K:         searchK,
		Threshold: threshold,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputJSON(cmd, result)
	}
	return outputSearchTable(cmd, result)
}

// parseFilters turns repeatable key=value flags into the facet filter map.
// Repeating a key accumulates values.
func parseFilters(raw []string) (map[string][]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	filters := make(map[string][]string, len(raw))
	for _, f := range raw {
		key, value, ok := strings.Cut(f, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q, expected key=value", f)
		}
		filters[key] = append(filters[key], value)
	}
	return filters, nil
}

func outputJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, result *domain.QueryResult) error {
	if result.Error != "" {
		cmd.Printf("Search failed: %s\n", result.Error)
		return nil
	}
	if len(result.Results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Printf("Results (%d entities, %dms):\n", result.ReturnedCount, result.TookMillis)
	cmd.Println()
	for i, hit := range result.Results {
		name, _ := hit["displayName"].(string)
		if name == "" {
			name, _ = hit["name"].(string)
		}
		fqn, _ := hit["fullyQualifiedName"].(string)
		score, _ := hit["similarityScore"].(float64)

		cmd.Printf("  [%d] %s (%.2f)\n", i+1, name, score)
		if fqn != "" {
			cmd.Printf("      %s\n", fqn)
		}
		if desc, ok := hit["description"].(string); ok && desc != "" {
			cmd.Printf("      %s\n", desc)
		}
		cmd.Println()
	}
	return nil
}
