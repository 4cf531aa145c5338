package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/olserra/xmem-go/internal/logging"
	"github.com/olserra/xmem-go/internal/sources"
	"github.com/olserra/xmem-go/internal/vector"
)

// NewSourceCmd constructs the `xmem source` command group for managing the
// catalog of retrievable vector sources.
func NewSourceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Manage retrievable vector sources",
		Long: `Manage the catalog of vector sources available to context ranking.

A source names a vector backend (qdrant, pinecone, chroma, or the embedded
store) plus the connection details needed to search it. Context preview
and agent chat fan out across any mix of registered sources.`,
	}

	cmd.AddCommand(
		newSourceAddCmd(),
		newSourceListCmd(),
		newSourceRemoveCmd(),
	)

	return cmd
}

func newSourceAddCmd() *cobra.Command {
	var (
		srcType    string
		url        string
		apiKey     string
		collection string
		vectorSize int
	)

	cmd := &cobra.Command{
		Use:   "add [name]",
		Short: "Register a vector source",
		Long: `Register a vector source in the catalog and print its ID.

Examples:
  xmem source add docs --type qdrant --url qdrant.internal:6334 --collection docs
  xmem source add scratch --type chromem`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			catalog, err := openCatalog(log)
			if err != nil {
				return fmt.Errorf("source add: %w", err)
			}
			defer func() { _ = catalog.Close() }()

			src, err := catalog.Create(cmd.Context(), sources.Source{
				Name:       args[0],
				Type:       vector.Backend(srcType),
				URL:        url,
				APIKey:     apiKey,
				Collection: collection,
				VectorSize: vectorSize,
			})
			if err != nil {
				return fmt.Errorf("source add: %w", err)
			}

			fmt.Println(src.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&srcType, "type", "t", "chromem", "Backend type: qdrant, pinecone, chroma, or chromem")
	cmd.Flags().StringVar(&url, "url", "", "Backend endpoint (host:port or base URL)")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key for authenticated backends")
	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Collection or namespace to search")
	cmd.Flags().IntVar(&vectorSize, "vector-size", 0, "Embedding dimensionality enforced on writes (0 disables)")

	return cmd
}

func newSourceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered vector sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			catalog, err := openCatalog(log)
			if err != nil {
				return fmt.Errorf("source list: %w", err)
			}
			defer func() { _ = catalog.Close() }()

			list, err := catalog.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("source list: %w", err)
			}
			if len(list) == 0 {
				fmt.Println("no sources registered")
				return nil
			}
			for _, src := range list {
				fmt.Printf("%s  %-10s %-20s %s\n", src.ID, src.Type, src.Name, src.URL)
			}
			return nil
		},
	}
}

func newSourceRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove [id]",
		Short: "Remove a vector source from the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			catalog, err := openCatalog(log)
			if err != nil {
				return fmt.Errorf("source remove: %w", err)
			}
			defer func() { _ = catalog.Close() }()

			if err := catalog.Delete(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("source remove: %w", err)
			}
			fmt.Println("removed")
			return nil
		},
	}
}
