package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/olserra/xmem-go/internal/embedder"
	"github.com/olserra/xmem-go/internal/embedding"
	"github.com/olserra/xmem-go/internal/llm"
	"github.com/olserra/xmem-go/internal/orchestrator"
	"github.com/olserra/xmem-go/internal/registry"
	"github.com/olserra/xmem-go/internal/session"
	"github.com/olserra/xmem-go/internal/vector"
)

// runtime bundles the wired components shared by every memory command:
// embedding service, provider registry, and orchestrator.
type runtime struct {
	embed   *embedding.Service
	reg     *registry.Registry
	orch    *orchestrator.Orchestrator
	closers []func()
}

// close releases all resources in reverse acquisition order.
func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

// buildRuntime wires the embedding service, vector stores, session store,
// and LLM provider from the environment, registering each under its
// backend name. The first registered store of each kind becomes the
// default.
func buildRuntime(ctx context.Context, log *slog.Logger) (*runtime, error) {
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}

	embProvider := os.Getenv("EMBEDDING_PROVIDER")
	if embProvider == "" {
		embProvider = getEnvOrDefault("LLM_PROVIDER", "ollama")
	}
	dims := embedder.DefaultDimensions(embProvider)

	svc, err := embedding.NewService(emb, &embedding.Config{Dimensions: dims})
	if err != nil {
		return nil, fmt.Errorf("embedding service: %w", err)
	}

	rt := &runtime{embed: svc, reg: registry.New()}
	rt.closers = append(rt.closers, svc.Close)

	if err := registerVectorStores(ctx, rt, dims, log); err != nil {
		rt.close()
		return nil, err
	}
	if err := registerSessionStore(rt, log); err != nil {
		rt.close()
		return nil, err
	}

	provider, err := llm.NewFromEnv(ctx, emb)
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("llm provider: %w", err)
	}
	rt.reg.RegisterLLM(getEnvOrDefault("LLM_PROVIDER", "ollama"), provider)

	rt.orch = orchestrator.New(rt.reg, svc)
	return rt, nil
}

// registerVectorStores registers every vector backend the environment
// configures. Qdrant wins the default slot when present; the embedded
// chromem store is always available as a fallback under "embedded".
func registerVectorStores(ctx context.Context, rt *runtime, dims int, log *slog.Logger) error {
	if host := os.Getenv("QDRANT_HOST"); host != "" {
		store, err := vector.NewQdrantStore(ctx, &vector.QdrantConfig{
			Host:       host,
			Port:       getEnvInt("QDRANT_PORT", 6334),
			Collection: getEnvOrDefault("QDRANT_COLLECTION", "xmem"),
			VectorSize: uint64(dims),
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_API_KEY") != "",
		})
		if err != nil {
			return fmt.Errorf("qdrant: %w", err)
		}
		rt.reg.RegisterVector(string(vector.BackendQdrant), store)
		rt.closers = append(rt.closers, func() { _ = store.Close() })
		log.Info("vector store registered", slog.String("backend", "qdrant"), slog.String("host", host))
	}

	if key := os.Getenv("PINECONE_API_KEY"); key != "" {
		store, err := vector.NewPineconeStore(&vector.PineconeConfig{
			APIKey:     key,
			IndexHost:  os.Getenv("PINECONE_INDEX_HOST"),
			Namespace:  os.Getenv("PINECONE_NAMESPACE"),
			VectorSize: dims,
		})
		if err != nil {
			return fmt.Errorf("pinecone: %w", err)
		}
		rt.reg.RegisterVector(string(vector.BackendPinecone), store)
		log.Info("vector store registered", slog.String("backend", "pinecone"))
	}

	if url := os.Getenv("CHROMA_URL"); url != "" {
		store, err := vector.NewChromaStore(&vector.ChromaConfig{
			URL:        url,
			Collection: getEnvOrDefault("CHROMA_COLLECTION", "xmem"),
			APIKey:     os.Getenv("CHROMA_API_KEY"),
			VectorSize: dims,
		})
		if err != nil {
			return fmt.Errorf("chroma: %w", err)
		}
		rt.reg.RegisterVector(string(vector.BackendChroma), store)
		log.Info("vector store registered", slog.String("backend", "chroma"), slog.String("url", url))
	}

	// Always available: in-process store, default when nothing else is
	// configured.
	rt.reg.RegisterVector(string(vector.BackendChromem), vector.NewChromemStore(nil))

	return nil
}

// registerSessionStore opens the session store selected by XMEM_SESSION_DB:
// "memory" keeps sessions in-process, empty uses ~/.xmem/sessions.db, any
// other value is treated as a SQLite path.
func registerSessionStore(rt *runtime, log *slog.Logger) error {
	dbPath := os.Getenv("XMEM_SESSION_DB")
	if dbPath == "memory" {
		rt.reg.RegisterSession("memory", session.NewMemStore())
		return nil
	}
	if dbPath == "" {
		var err error
		dbPath, err = session.DefaultDBPath()
		if err != nil {
			return fmt.Errorf("sessions: %w", err)
		}
	}

	store, err := session.Open(dbPath)
	if err != nil {
		return fmt.Errorf("sessions: %w", err)
	}
	rt.reg.RegisterSession("sqlite", store)
	rt.closers = append(rt.closers, func() { _ = store.Close() })
	log.Info("session store opened", slog.String("path", dbPath))
	return nil
}

// getEnvOrDefault returns the value of the environment variable or the
// fallback when unset/empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt parses an integer environment variable, returning fallback on
// absence or parse failure.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
