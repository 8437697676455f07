package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/54b3r/hrassist-go/internal/agent"
	"github.com/54b3r/hrassist-go/internal/logging"
	"github.com/54b3r/hrassist-go/internal/store"
	"github.com/54b3r/hrassist-go/internal/tracing"
)

// NewAgentCmd constructs the `hrassist agent` command: a conversation with
// the HR agent, which can search policies, check PTO balances and submit
// leave requests.
func NewAgentCmd() *cobra.Command {
	var session string

	cmd := &cobra.Command{
		Use:   "agent [message]",
		Short: "Chat with the HR agent (policy search, PTO balance, leave requests)",
		Long: `Talk to the HR agent. With a message argument it answers once and exits;
without one it reads messages line by line (type "exit" to quit). Prompts are
shown only when stdin is a terminal, so piped input yields just the replies.

The agent acts for HRIS_EMPLOYEE_ID (default E1001). Without HRIS_API_URL a
built-in mock HRIS is used.

Examples:
  hrassist agent "How many vacation days do I have left?"
  hrassist agent --session alice
  hrassist agent "Book vacation from 2026-12-21 to 2026-12-24"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			flush := tracing.Setup(tracing.SettingsFromEnv(), log)
			defer flush()

			a, err := newApp(ctx, log, false)
			if err != nil {
				return fmt.Errorf("agent: %w", err)
			}
			defer a.Close()

			history, closeHistory := openHistory(log)
			defer closeHistory()
			var hist store.ConversationStore
			if history != nil {
				hist = history
			}

			hrAgent, err := buildAgent(ctx, a, hist)
			if err != nil {
				return fmt.Errorf("agent: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(args) > 0 {
				return turn(cmd, hrAgent, session, strings.Join(args, " "), out, false)
			}

			in := cmd.InOrStdin()
			interactive := isTerminal(in)
			if interactive {
				fmt.Fprintln(out, `HR Assist agent. Type "exit" to quit.`)
			}
			scanner := bufio.NewScanner(in)
			for {
				if interactive {
					fmt.Fprint(out, "\nyou> ")
				}
				if !scanner.Scan() {
					if interactive {
						fmt.Fprintln(out)
					}
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				switch strings.ToLower(line) {
				case "":
					continue
				case "exit", "quit":
					return nil
				}
				if err := turn(cmd, hrAgent, session, line, out, interactive); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
				}
			}
		},
	}

	cmd.Flags().StringVar(&session, "session", store.DefaultSession, "History session to continue")

	return cmd
}

// turn runs one agent exchange, streaming the reply to out.
func turn(cmd *cobra.Command, a *agent.HRAgent, session, message string, out io.Writer, prompt bool) error {
	if prompt {
		fmt.Fprint(out, "hr> ")
	}
	if _, err := a.Query(cmd.Context(), session, message, out); err != nil {
		fmt.Fprintln(out)
		return err
	}
	fmt.Fprintln(out)
	return nil
}

// isTerminal reports whether r is a terminal device.
func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
