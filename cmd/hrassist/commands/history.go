package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/hrassist-go/internal/logging"
)

// NewHistoryCmd constructs the `hrassist history` command for inspecting
// and clearing stored conversations.
func NewHistoryCmd() *cobra.Command {
	var (
		session      string
		limit        int
		clearSession bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List conversation sessions or show one session's messages",
		Long: `Without --session, list stored sessions, most recent first. With
--session, print that session's latest messages or, with --clear, delete them.

Examples:
  hrassist history
  hrassist history --session alice -n 50
  hrassist history --session alice --clear`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			history, closeHistory := openHistory(logging.New())
			defer closeHistory()
			if history == nil {
				return fmt.Errorf("history: conversation history is disabled or unavailable")
			}
			out := cmd.OutOrStdout()

			if session == "" {
				if clearSession {
					return fmt.Errorf("history: --clear requires --session")
				}
				sessions, err := history.Sessions(ctx)
				if err != nil {
					return fmt.Errorf("history: %w", err)
				}
				if len(sessions) == 0 {
					fmt.Fprintln(out, "No stored sessions.")
				}
				for _, s := range sessions {
					fmt.Fprintf(out, "%-20s %4d messages  last active %s\n",
						s.ID, s.Messages, s.LastActive.Local().Format(time.DateTime))
				}
				return nil
			}

			if clearSession {
				if err := history.Clear(ctx, session); err != nil {
					return fmt.Errorf("history: %w", err)
				}
				fmt.Fprintf(out, "Cleared session %q.\n", session)
				return nil
			}

			msgs, err := history.Recent(ctx, session, limit)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			for _, m := range msgs {
				fmt.Fprintf(out, "[%s] %s: %s\n", m.CreatedAt.Local().Format(time.DateTime), m.Role, m.Content)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&session, "session", "", "Session to show")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum messages to show")
	cmd.Flags().BoolVar(&clearSession, "clear", false, "Delete the session's messages")

	return cmd
}
