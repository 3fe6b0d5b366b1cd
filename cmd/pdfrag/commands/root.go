// Package commands defines all Cobra CLI commands for the pdfrag binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/pdfrag-go/internal/audit"
	"github.com/54b3r/pdfrag-go/internal/config"
	"github.com/54b3r/pdfrag-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pdfrag",
		Short: "Ask questions about a PDF, answered from its own text",
		Long: `pdfrag answers natural-language questions about a PDF document.

The document's text is extracted, split into overlapping segments and
embedded into an in-memory index. Each question retrieves the most similar
segments and a chat model answers from them only.

Model provider is selected via the MODEL_PROVIDER environment variable,
a .env file or a YAML config file (~/.pdfrag/config.yaml).
See 'pdfrag --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// .env first, so LOG_LEVEL and friends apply to the logger below.
			if err := config.LoadDotEnv(logging.New()); err != nil {
				return err
			}
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			audit.LogCommandStart(cmd.Context(), log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.pdfrag/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewChatCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
