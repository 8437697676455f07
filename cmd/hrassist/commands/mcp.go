package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/hrassist-go/internal/hris"
	"github.com/54b3r/hrassist-go/internal/logging"
	"github.com/54b3r/hrassist-go/internal/mcp"
)

// NewMCPCmd constructs the `hrassist mcp` command, which serves the policy
// and HRIS tools to Model Context Protocol clients.
func NewMCPCmd() *cobra.Command {
	var (
		addr   string
		noHRIS bool
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve HR Assist tools over the Model Context Protocol",
		Long: `Expose ask_policy, check_pto_balance, and submit_leave_request as MCP
tools, plus the index status as the hrassist://status resource.

By default the server speaks MCP over stdin/stdout, so logs go to stderr.
With --http it serves the streamable HTTP transport instead.

Examples:
  hrassist mcp
  hrassist mcp --http 127.0.0.1:8090
  hrassist mcp --no-hris`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			a, err := newApp(ctx, log, false)
			if err != nil {
				return fmt.Errorf("mcp: %w", err)
			}
			defer a.Close()

			deps := mcp.Deps{
				Policy:     a.pipeline,
				EmployeeID: hris.EmployeeIDFromEnv(),
				TopK:       a.topK,
				Logger:     log,
			}
			if !noHRIS {
				deps.HRIS = hris.NewFromEnv(log)
			}
			srv, err := mcp.New(deps)
			if err != nil {
				return fmt.Errorf("mcp: %w", err)
			}

			if addr != "" {
				return srv.RunHTTP(ctx, addr)
			}
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "http", "", "Serve streamable HTTP on this address instead of stdio")
	cmd.Flags().BoolVar(&noHRIS, "no-hris", false, "Register only the policy tool")
	return cmd
}
