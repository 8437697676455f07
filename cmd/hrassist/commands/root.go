// Package commands defines all Cobra CLI commands for the hrassist binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/hrassist-go/internal/audit"
	"github.com/54b3r/hrassist-go/internal/config"
	"github.com/54b3r/hrassist-go/internal/logging"
)

var (
	// configPath holds the --config flag value for YAML config file override.
	configPath string
	// envFile holds the --env-file flag value.
	envFile string
)

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "hrassist",
		Short: "HR Assist, answers employee questions from your policy documents",
		Long: `HR Assist answers employee questions using only the HR policy documents you
ingest, and can check PTO balances or submit leave requests through the HRIS.

Configuration is read from the environment, an optional .env file, and an
optional YAML or TOML config file (~/.hrassist/config.yaml). Environment variables
always win over file values.

Typical workflow:
  hrassist ingest ./policies
  hrassist ask "How many vacation days do I get?"
  hrassist agent
  hrassist serve
  hrassist mcp`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			dotenv, err := config.LoadDotEnv(envFile)
			if err != nil {
				return err
			}

			log := logging.New()
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			// Rebuild the logger so LOG_LEVEL/LOG_FORMAT from the files apply.
			log = logging.New()

			audit.LogCommandStart(cmd.Context(), log, audit.Start{
				Command:    cmd.Name(),
				ConfigPath: path,
				DotEnv:     dotenv,
			})
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML or TOML config file (default: ~/.hrassist/config.yaml)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file; ignored when missing")

	root.AddCommand(
		NewIngestCmd(),
		NewAskCmd(),
		NewAgentCmd(),
		NewServeCmd(),
		NewMCPCmd(),
		NewStatusCmd(),
		NewHistoryCmd(),
		NewVersionCmd(),
	)

	return root
}
