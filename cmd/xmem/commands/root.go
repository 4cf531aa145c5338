// Package commands defines all Cobra CLI commands for the xmem binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/olserra/xmem-go/internal/audit"
	"github.com/olserra/xmem-go/internal/config"
	"github.com/olserra/xmem-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "xmem",
		Short: "xmem — memory orchestration for LLM applications",
		Long: `xmem is a local-first memory engine for LLM applications.

It stores memories as embeddings in a vector backend (Qdrant, Pinecone,
Chroma, or an embedded store), keeps per-session conversation state, and
assembles ranked context from any mix of sources for prompt injection.

Model provider is selected via the LLM_PROVIDER environment variable
or a YAML config file (~/.xmem/config.yaml).
See 'xmem --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.xmem/config.yaml)")

	root.AddCommand(
		NewAddCmd(),
		NewSearchCmd(),
		NewDeleteCmd(),
		NewChatCmd(),
		NewSourceCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
