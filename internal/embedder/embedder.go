// Package embedder provides implementations for converting text into dense
// vector embeddings. Each implementation talks to a different backend
// (Ollama, OpenAI, Azure OpenAI, Hugging Face) via plain HTTP — no
// additional SDK dependencies are required.
package embedder

import "context"

// Embedder converts a batch of texts into embeddings. The returned slice
// is parallel to the input slice. Implementations must be safe to call
// from multiple goroutines.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Named is implemented by embedders that can report their backend label
// for error reporting and logging.
type Named interface {
	Name() string
}
