package commands

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/hrassist-go/internal/chunker"
	"github.com/54b3r/hrassist-go/internal/logging"
)

// NewIngestCmd constructs the `hrassist ingest` command, which rebuilds the
// policy index from documents on disk.
func NewIngestCmd() *cobra.Command {
	var (
		useDefault bool
		chunkSize  int
		overlap    int
		reset      bool
	)

	cmd := &cobra.Command{
		Use:   "ingest [paths...]",
		Short: "Rebuild the policy index from documents",
		Long: `Load policy documents (PDF, Markdown, HTML, plain text), split them into
overlapping chunks, embed each chunk and replace the index with the result.

Paths may be files or directories; directories are walked and unsupported
files are skipped. The previous index stays in place if the rebuild fails.

Environment:
  HRASSIST_DEFAULT_POLICY  document ingested by --default
                           (sample_policies/combined_hr_policy.pdf)
  CHUNK_SIZE, CHUNK_OVERLAP  default chunking (500/100)
  INDEX_BACKEND            sqlite (default) or qdrant
  EMBEDDING_PROVIDER       ollama, openai, azure or gemini

Examples:
  hrassist ingest ./policies
  hrassist ingest --default
  hrassist ingest handbook.pdf leave.md --chunk-size 800 --overlap 150
  hrassist ingest --reset ./policies   # after changing EMBEDDING_MODEL`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			paths := append([]string(nil), args...)
			if useDefault {
				paths = append(paths, getEnvOrDefault("HRASSIST_DEFAULT_POLICY", defaultPolicyPath))
			}
			if len(paths) == 0 {
				return fmt.Errorf("ingest: at least one path or --default is required")
			}

			var chunkCfg chunker.Config
			if cmd.Flags().Changed("chunk-size") || cmd.Flags().Changed("overlap") {
				base, err := chunkConfigFromEnv()
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				if cmd.Flags().Changed("chunk-size") {
					base.Size = chunkSize
				}
				if cmd.Flags().Changed("overlap") {
					base.Overlap = overlap
				}
				chunkCfg = base
			}

			a, err := newApp(ctx, log, reset)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer a.Close()

			log.Info("starting ingestion", slog.Int("paths", len(paths)))
			report, err := a.pipeline.Ingest(ctx, paths, chunkCfg)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Indexed %d chunks from %d documents in %s\n",
				report.Chunks, report.Documents, report.Duration.Round(time.Millisecond))
			for _, src := range report.Sources {
				fmt.Fprintf(out, "  + %s\n", src)
			}
			for _, le := range report.Skipped {
				fmt.Fprintf(cmd.ErrOrStderr(), "  skipped %s: %v\n", le.Source, le.Err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&useDefault, "default", false, "Also ingest the default policy document (HRASSIST_DEFAULT_POLICY)")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", chunker.DefaultSize, "Chunk length in characters")
	cmd.Flags().IntVar(&overlap, "overlap", chunker.DefaultOverlap, "Characters shared by consecutive chunks")
	cmd.Flags().BoolVar(&reset, "reset", false, "Discard the stored index before rebuilding (needed after changing embedding model)")

	return cmd
}
