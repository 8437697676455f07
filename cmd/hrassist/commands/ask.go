package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/hrassist-go/internal/logging"
	"github.com/54b3r/hrassist-go/internal/rag"
	"github.com/54b3r/hrassist-go/internal/store"
)

// NewAskCmd constructs the `hrassist ask` command, which answers one
// question from the indexed policy documents.
func NewAskCmd() *cobra.Command {
	var (
		k       int
		asJSON  bool
		session string
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question answered only from the policy documents",
		Long: `Retrieve the policy excerpts most similar to the question and ask the
model to answer from them alone, citing each excerpt it used.

When nothing has been ingested yet, a fixed "no policy documents" answer is
returned without contacting the model.

Examples:
  hrassist ask "How many vacation days do I get?"
  hrassist ask -k 5 "What is the parental leave policy?"
  hrassist ask --json "Can I carry over unused PTO?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			a, err := newApp(ctx, log, false)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer a.Close()

			question := strings.Join(args, " ")
			answer, err := a.pipeline.Answer(ctx, question, k)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			if session != "" {
				history, closeHistory := openHistory(log)
				defer closeHistory()
				if history != nil {
					if err := history.Append(ctx, session, store.RoleUser, question); err != nil {
						log.Warn("history: failed to persist question", slog.Any("error", err))
					} else if err := history.Append(ctx, session, store.RoleAssistant, answer.Text); err != nil {
						log.Warn("history: failed to persist answer", slog.Any("error", err))
					}
				}
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(answer)
			}
			printAnswer(cmd.OutOrStdout(), answer)
			return nil
		},
	}

	cmd.Flags().IntVarP(&k, "top-k", "k", 0, "Number of excerpts to retrieve (default RETRIEVAL_TOP_K or 3)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the answer and sources as JSON")
	cmd.Flags().StringVar(&session, "session", "", "Record the exchange under this history session")

	return cmd
}

// printAnswer writes the answer followed by its numbered sources.
func printAnswer(w io.Writer, a *rag.Answer) {
	fmt.Fprintln(w, a.Text)
	if len(a.Sources) == 0 {
		return
	}
	fmt.Fprintln(w, "\nSources:")
	for i, s := range a.Sources {
		loc := s.Source
		if s.Page > 0 {
			loc = fmt.Sprintf("%s, page %d", s.Source, s.Page)
		}
		fmt.Fprintf(w, "  [%d] %s (score %.3f)\n", i+1, loc, s.Score)
	}
}
