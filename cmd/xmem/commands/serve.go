package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/olserra/xmem-go/internal/audit"
	"github.com/olserra/xmem-go/internal/logging"
	"github.com/olserra/xmem-go/internal/pipeline"
	"github.com/olserra/xmem-go/internal/server"
	"github.com/olserra/xmem-go/internal/session"
	"github.com/olserra/xmem-go/internal/sources"
	"github.com/olserra/xmem-go/internal/stitch"
	"github.com/olserra/xmem-go/internal/tracing"
	"github.com/olserra/xmem-go/internal/vector"
)

// NewServeCmd constructs the `xmem serve` command, which starts the HTTP
// server exposing the memory API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the xmem HTTP server",
		Long: `Start the xmem HTTP server on localhost.

The server exposes the memory API: write and delete memories, semantic
search, ranked context preview across sources, and agent chat with
injected session and long-term memory.

Examples:
  xmem serve
  xmem serve --port 9090
  LLM_PROVIDER=azure xmem serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("LLM_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			rt, err := buildRuntime(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer rt.close()

			catalog, err := openCatalog(log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() { _ = catalog.Close() }()

			stitcher, closeTrail := buildStitcher(rt, log)
			defer closeTrail()

			srv, err := server.New(rt.orch, pipeline.New(rt.embed), stitcher, catalog, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: buildPingers(rt, catalog),
				APIKey:  os.Getenv("XMEM_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", getEnvOrDefault("XMEM_HOST", "127.0.0.1"), "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", getEnvInt("XMEM_PORT", 8080), "TCP port to listen on")

	return cmd
}

// openCatalog opens the source catalog database. XMEM_SOURCES_DB overrides
// the default path (~/.xmem/sources.db).
func openCatalog(log *slog.Logger) (*sources.Catalog, error) {
	dbPath := os.Getenv("XMEM_SOURCES_DB")
	if dbPath == "" {
		var err error
		dbPath, err = sources.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("sources: %w", err)
		}
	}
	catalog, err := sources.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("sources: %w", err)
	}
	log.Info("source catalog opened", slog.String("path", dbPath))
	return catalog, nil
}

// buildStitcher wires the session stitcher over the default session store,
// with a JSON-lines audit trail when a log destination can be opened.
// XMEM_AUDIT_LOG overrides the default path (~/.xmem/stitch.jsonl); set it
// to "disabled" to turn the trail off.
func buildStitcher(rt *runtime, log *slog.Logger) (*stitch.Stitcher, func()) {
	store, err := rt.reg.Session("")
	if err != nil {
		// No session store registered: stitching degrades to a no-op over
		// an empty in-memory store.
		return stitch.New(rt.embed, session.NewMemStore()), func() {}
	}

	path := os.Getenv("XMEM_AUDIT_LOG")
	if path == "disabled" {
		return stitch.New(rt.embed, store), func() {}
	}
	if path == "" {
		home, homeErr := os.UserHomeDir()
		if homeErr != nil {
			log.Warn("stitch audit disabled", slog.Any("error", homeErr))
			return stitch.New(rt.embed, store), func() {}
		}
		path = filepath.Join(home, ".xmem", "stitch.jsonl")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Warn("stitch audit disabled", slog.Any("error", err))
		return stitch.New(rt.embed, store), func() {}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Warn("stitch audit disabled", slog.Any("error", err))
		return stitch.New(rt.embed, store), func() {}
	}

	trail := audit.NewTrail(f, log)
	log.Info("stitch audit trail opened", slog.String("path", path))
	return stitch.New(rt.embed, store, stitch.WithTrail(trail)), func() {
		trail.Close()
		_ = f.Close()
	}
}

// buildPingers assembles the readiness probes for every stateful dependency
// the environment configured.
func buildPingers(rt *runtime, catalog *sources.Catalog) []server.Pinger {
	pingers := []server.Pinger{
		server.NewDependencyPinger(catalog, "sources"),
	}

	if store, err := rt.reg.Session(""); err == nil {
		if sq, ok := store.(*session.SQLiteStore); ok {
			pingers = append(pingers, server.NewDependencyPinger(sq, "sessions"))
		}
	}
	if store, err := rt.reg.Vector(string(vector.BackendQdrant)); err == nil {
		if qd, ok := store.(*vector.QdrantStore); ok {
			pingers = append(pingers, server.NewDependencyPinger(qd, "qdrant"))
		}
	}

	return pingers
}
