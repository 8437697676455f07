package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/hrassist-go/internal/logging"
)

// NewStatusCmd constructs the `hrassist status` command, which reports the
// index contents without contacting the model or embedding service.
func NewStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show what the policy index holds",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logging.New()

			idx, err := openIndex(ctx, log, "", false)
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			defer func() { _ = idx.Close() }()

			stats, err := idx.Stats(ctx)
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}
			if stats.Entries == 0 {
				fmt.Fprintln(out, "Index is empty. Run `hrassist ingest <paths>` first.")
				return nil
			}
			fmt.Fprintf(out, "Entries:   %d\n", stats.Entries)
			fmt.Fprintf(out, "Dimension: %d\n", stats.Dimension)
			fmt.Fprintf(out, "Metric:    %s\n", stats.Metric)
			if stats.Model != "" {
				fmt.Fprintf(out, "Model:     %s\n", stats.Model)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the stats as JSON")
	return cmd
}
