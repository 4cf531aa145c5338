// Package llm defines the language-model provider interface and the
// factory for selecting and constructing backend implementations at
// runtime. Supported backends: Ollama, OpenAI, Azure OpenAI, Google
// Gemini, and Ark-compatible runtimes.
package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/olserra/xmem-go/internal/embedder"
	"github.com/olserra/xmem-go/internal/memory"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
	// BackendArk selects an Ark/OpenAI-compatible model runtime.
	BackendArk Backend = "ark"
)

// Provider wraps a text-generation backend. GenerateResponse renders the
// assembled context into the prompt; Embed produces a query vector, or
// returns memory.ErrUnsupported for generation-only backends.
// Implementations must be safe to call from multiple goroutines.
type Provider interface {
	// GenerateResponse produces a completion for prompt. The optional
	// context map carries assembled memory (session turns, ranked context
	// items) and is rendered into the system message.
	GenerateResponse(ctx context.Context, prompt string, context map[string]any) (string, error)

	// Embed converts text into a dense vector. Backends without an
	// embedding endpoint return memory.ErrUnsupported.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config holds provider-level configuration resolved from environment
// variables or explicit caller-supplied values.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	// Model is the model name or deployment ID (e.g. "gpt-4o", "llama3").
	Model string

	// BaseURL overrides the default API endpoint (required for Ollama,
	// Azure, and Ark).
	BaseURL string

	// APIKey is the authentication credential for the selected provider.
	APIKey string

	// AzureDeployment is the Azure OpenAI deployment name (Azure only).
	AzureDeployment string

	// AzureAPIVersion is the Azure OpenAI REST API version (Azure only).
	AzureAPIVersion string

	// MaxTokens caps the number of tokens generated per response.
	MaxTokens int

	// Temperature controls response randomness (0.0–1.0).
	Temperature float32

	// Embedder, when non-nil, serves the provider's Embed method.
	// Generation-only configurations leave it nil.
	Embedder embedder.Embedder
}

// chatProvider implements Provider over an eino chat model, delegating
// Embed to an optional embedder.
type chatProvider struct {
	name  Backend
	chat  model.BaseChatModel
	embed embedder.Embedder
}

// systemPrompt frames how the model should use injected memory. Kept
// short: the context block itself carries the substance.
const systemPrompt = `You are a helpful assistant with access to the user's stored memory.
Use the MEMORY CONTEXT below when it is relevant to the request. Prefer
recent and pinned information on conflicts. If the context does not cover
the request, say so rather than inventing details.`

// GenerateResponse renders the context map into a system message and runs
// one generation turn.
func (p *chatProvider) GenerateResponse(ctx context.Context, prompt string, contextData map[string]any) (string, error) {
	msgs := []*schema.Message{schema.SystemMessage(systemPrompt)}

	if block := renderContext(contextData); block != "" {
		msgs = append(msgs, schema.SystemMessage("MEMORY CONTEXT:\n"+block))
	}
	msgs = append(msgs, schema.UserMessage(prompt))

	resp, err := p.chat.Generate(ctx, msgs)
	if err != nil {
		return "", &memory.BackendError{Backend: string(p.name), Operation: "generate", Cause: err}
	}
	if resp == nil {
		return "", &memory.BackendError{
			Backend:   string(p.name),
			Operation: "generate",
			Cause:     fmt.Errorf("backend returned nil response"),
		}
	}
	return resp.Content, nil
}

// Embed delegates to the configured embedder, or reports the operation as
// unsupported for generation-only backends.
func (p *chatProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if p.embed == nil {
		return nil, fmt.Errorf("llm: %s: %w", p.name, memory.ErrUnsupported)
	}
	vecs, err := p.embed.Embed(ctx, []string{text})
	if err != nil {
		return nil, &memory.BackendError{Backend: string(p.name), Operation: "embed", Cause: err}
	}
	if len(vecs) != 1 {
		return nil, &memory.BackendError{
			Backend:   string(p.name),
			Operation: "embed",
			Cause:     fmt.Errorf("expected 1 embedding, got %d", len(vecs)),
		}
	}
	return vecs[0], nil
}

// renderContext flattens the assembled context map into a prompt block of
// indented JSON so no structure is silently dropped.
func renderContext(contextData map[string]any) string {
	if len(contextData) == 0 {
		return ""
	}
	out, err := json.MarshalIndent(contextData, "", "  ")
	if err != nil {
		return fmt.Sprint(contextData)
	}
	return string(out)
}
