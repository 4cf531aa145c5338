package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/olserra/xmem-go/internal/logging"
	"github.com/olserra/xmem-go/internal/memory"
	"github.com/olserra/xmem-go/internal/orchestrator"
)

// NewAddCmd constructs the `xmem add` command, which embeds a piece of
// text and stores it as a memory.
func NewAddCmd() *cobra.Command {
	var (
		id         string
		sessionID  string
		collection string
		provider   string
		pin        bool
	)

	cmd := &cobra.Command{
		Use:   "add [text]",
		Short: "Store a memory",
		Long: `Embed a piece of text and store it in the configured vector backend.

When --session is given the memory is also mirrored into that session's
conversation log, and --pin marks it as always included in stitched
context.

Examples:
  xmem add "the staging cluster lives in eu-west-1"
  xmem add --session support-42 --pin "customer prefers email contact"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()

			rt, err := buildRuntime(ctx, log)
			if err != nil {
				return fmt.Errorf("add: %w", err)
			}
			defer rt.close()

			item := &memory.Item{
				ID:        id,
				Text:      args[0],
				SessionID: sessionID,
			}
			if pin {
				item.Metadata = map[string]any{"pinned": true}
			}

			storedID, err := rt.orch.AddMemory(ctx, item, &orchestrator.Opts{
				VectorProvider: provider,
				Collection:     collection,
			})
			if err != nil {
				return fmt.Errorf("add: %w", err)
			}

			fmt.Println(storedID)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Memory ID (generated when empty)")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session to mirror the memory into")
	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Target collection (backend default when empty)")
	cmd.Flags().StringVar(&provider, "provider", "", "Vector backend to write to (default backend when empty)")
	cmd.Flags().BoolVar(&pin, "pin", false, "Pin the mirrored session message")

	return cmd
}
