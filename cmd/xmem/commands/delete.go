package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/olserra/xmem-go/internal/logging"
	"github.com/olserra/xmem-go/internal/orchestrator"
)

// NewDeleteCmd constructs the `xmem delete` command, which removes a stored
// memory and optionally its session.
func NewDeleteCmd() *cobra.Command {
	var (
		sessionID  string
		collection string
		provider   string
	)

	cmd := &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a stored memory",
		Long: `Delete a memory by ID. Deleting an unknown ID succeeds.

When --session is given, that session and its conversation log are
deleted as well.

Examples:
  xmem delete 2f1c0a1e-9d7b-4d2e-8f6a-0c3b5a1d9e42
  xmem delete --session support-42 2f1c0a1e-9d7b-4d2e-8f6a-0c3b5a1d9e42`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()

			rt, err := buildRuntime(ctx, log)
			if err != nil {
				return fmt.Errorf("delete: %w", err)
			}
			defer rt.close()

			err = rt.orch.DeleteMemory(ctx, args[0], sessionID, &orchestrator.Opts{
				VectorProvider: provider,
				Collection:     collection,
			})
			if err != nil {
				return fmt.Errorf("delete: %w", err)
			}

			fmt.Println("deleted")
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session to delete along with the memory")
	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Collection holding the memory (backend default when empty)")
	cmd.Flags().StringVar(&provider, "provider", "", "Vector backend holding the memory (default backend when empty)")

	return cmd
}
