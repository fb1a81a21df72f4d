package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var fingerprintJSON bool

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint [entity-id]",
	Short: "Show the indexed content fingerprint of an entity",
	Long: `Looks up the stored content fingerprint for an entity. An unchanged
fingerprint means re-indexing the entity would be skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runFingerprint,
}

func init() {
	fingerprintCmd.Flags().BoolVar(&fingerprintJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(fingerprintCmd)
}

func runFingerprint(cmd *cobra.Command, args []string) error {
	if err := ensureServices(); err != nil {
		return err
	}

	result, err := queryService.Fingerprint(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("fingerprint lookup failed: %w", err)
	}

	if fingerprintJSON {
		return outputJSON(cmd, result)
	}

	if !result.Found {
		cmd.Printf("No indexed documents for entity %s\n", result.EntityID)
		return nil
	}
	cmd.Printf("%s  %s\n", result.EntityID, result.Fingerprint)
	return nil
}
