package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/olserra/xmem-go/internal/logging"
	"github.com/olserra/xmem-go/internal/orchestrator"
)

// NewSearchCmd constructs the `xmem search` command, which runs a semantic
// search over stored memories.
func NewSearchCmd() *cobra.Command {
	var (
		topK       int
		collection string
		provider   string
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search stored memories semantically",
		Long: `Embed the query and return the most similar stored memories.

Examples:
  xmem search "where does staging run?"
  xmem search --top-k 10 "deployment schedule"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()

			rt, err := buildRuntime(ctx, log)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			defer rt.close()

			hits, err := rt.orch.SemanticSearch(ctx, args[0], &orchestrator.Opts{
				VectorProvider: provider,
				Collection:     collection,
				TopK:           topK,
			})
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			if len(hits) == 0 {
				fmt.Println("no matching memories")
				return nil
			}
			for _, h := range hits {
				text, _ := h.Payload["text"].(string)
				fmt.Printf("%s  score=%.4f  %s\n", h.ID, h.Score, text)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Maximum number of results (default 5)")
	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Collection to search (backend default when empty)")
	cmd.Flags().StringVar(&provider, "provider", "", "Vector backend to search (default backend when empty)")

	return cmd
}
