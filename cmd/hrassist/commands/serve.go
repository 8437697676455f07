package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/hrassist-go/internal/logging"
	"github.com/54b3r/hrassist-go/internal/server"
	"github.com/54b3r/hrassist-go/internal/store"
	"github.com/54b3r/hrassist-go/internal/tracing"
)

// NewServeCmd constructs the `hrassist serve` command, which starts the
// HTTP API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HR Assist HTTP API",
		Long: `Start the HTTP API.

Endpoints:
  POST /api/ask      grounded answer with sources
  POST /api/ingest   multipart upload ("files", "use_default") and rebuild
  POST /api/chat     HR agent reply as Server-Sent Events
  GET  /api/status   pipeline state and index stats
  GET  /api/history  stored sessions or one session's messages
  GET  /api/health   liveness
  GET  /api/ready    dependency readiness
  GET  /metrics      Prometheus metrics

Set HRASSIST_API_KEY to require a Bearer token on /api/* (health and ready
stay open). Set HRASSIST_REINGEST_SCHEDULE (cron syntax, e.g. "@daily") and
HRASSIST_POLICY_DIR to rebuild the index from a directory periodically.

Examples:
  hrassist serve
  hrassist serve --port 9090
  MODEL_PROVIDER=azure hrassist serve
  HRASSIST_POLICY_DIR=./policies HRASSIST_REINGEST_SCHEDULE="0 3 * * *" hrassist serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)
			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			flush := tracing.Setup(tracing.SettingsFromEnv(), log)
			defer flush()

			askTimeout, err := envDuration("ASK_TIMEOUT", 2*time.Minute)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			a, err := newApp(ctx, log, false)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
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
				return fmt.Errorf("serve: %w", err)
			}

			if !cmd.Flags().Changed("host") {
				host = getEnvOrDefault("HRASSIST_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				if port, err = envInt("HRASSIST_PORT", port); err != nil {
					return fmt.Errorf("serve: %w", err)
				}
			}

			srv, err := server.New(server.Deps{
				RAG:     a.pipeline,
				Agent:   hrAgent,
				History: hist,
			}, &server.Config{
				Host:             host,
				Port:             port,
				AskTimeout:       askTimeout,
				Logger:           log,
				Pingers:          buildPingers(a, history),
				APIKey:           os.Getenv("HRASSIST_API_KEY"),
				UploadDir:        getEnvOrDefault("HRASSIST_UPLOAD_DIR", defaultUploadDir),
				DefaultPolicy:    getEnvOrDefault("HRASSIST_DEFAULT_POLICY", defaultPolicyPath),
				PolicyDir:        os.Getenv("HRASSIST_POLICY_DIR"),
				ReingestSchedule: os.Getenv("HRASSIST_REINGEST_SCHEDULE"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (env HRASSIST_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (env HRASSIST_PORT)")

	return cmd
}
