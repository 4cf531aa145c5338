package llm

import (
	"context"
	"fmt"

	einoark "github.com/cloudwego/eino-ext/components/model/ark"
	einogemini "github.com/cloudwego/eino-ext/components/model/gemini"
	einoollama "github.com/cloudwego/eino-ext/components/model/ollama"
	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"
)

// New constructs a Provider for the configured backend. Generation-only
// backends (Gemini) still satisfy Provider; their Embed method reports
// memory.ErrUnsupported unless cfg.Embedder is set.
func New(ctx context.Context, cfg *Config) (Provider, error) {
	var (
		chat model.BaseChatModel
		err  error
	)
	switch cfg.Backend {
	case BackendOllama:
		chat, err = newOllamaChat(ctx, cfg)
	case BackendOpenAI:
		chat, err = newOpenAIChat(ctx, cfg)
	case BackendAzure:
		chat, err = newAzureChat(ctx, cfg)
	case BackendGemini:
		chat, err = newGeminiChat(ctx, cfg)
	case BackendArk:
		chat, err = newArkChat(ctx, cfg)
	default:
		return nil, fmt.Errorf("llm: unknown backend %q (supported: ollama, openai, azure, gemini, ark)", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return &chatProvider{name: cfg.Backend, chat: chat, embed: cfg.Embedder}, nil
}

// newOllamaChat constructs a chat model backed by a local Ollama instance.
// Requires OLLAMA_HOST (default: http://localhost:11434) and OLLAMA_MODEL.
func newOllamaChat(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return einoollama.NewChatModel(ctx, &einoollama.ChatModelConfig{ //nolint:wrapcheck // constructor passthrough
		BaseURL: baseURL,
		Model:   cfg.Model,
	})
}

// newOpenAIChat constructs a chat model backed by the OpenAI API.
// Requires OPENAI_API_KEY and OPENAI_MODEL.
func newOpenAIChat(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: OPENAI_API_KEY is required for openai backend")
	}
	return einoopenai.NewChatModel(ctx, &einoopenai.ChatModelConfig{ //nolint:wrapcheck // constructor passthrough
		Model:       cfg.Model,
		APIKey:      cfg.APIKey,
		MaxTokens:   &cfg.MaxTokens,
		Temperature: &cfg.Temperature,
	})
}

// newAzureChat constructs a chat model backed by Azure OpenAI Service.
// Requires AZURE_OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT, and
// AZURE_OPENAI_DEPLOYMENT.
func newAzureChat(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: AZURE_OPENAI_API_KEY is required for azure backend")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("llm: AZURE_OPENAI_ENDPOINT is required for azure backend")
	}
	if cfg.AzureDeployment == "" {
		return nil, fmt.Errorf("llm: AZURE_OPENAI_DEPLOYMENT is required for azure backend")
	}
	return einoopenai.NewChatModel(ctx, &einoopenai.ChatModelConfig{ //nolint:wrapcheck // constructor passthrough
		Model:       cfg.AzureDeployment,
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		ByAzure:     true,
		APIVersion:  cfg.AzureAPIVersion,
		MaxTokens:   &cfg.MaxTokens,
		Temperature: &cfg.Temperature,
		// Use the deployment name as-is; the default mapper strips dots and
		// colons, which breaks deployment names like "gpt-4.1".
		AzureModelMapperFunc: func(model string) string { return model },
	})
}

// newGeminiChat constructs a chat model backed by Google Gemini.
// Requires GOOGLE_API_KEY and GEMINI_MODEL (e.g. "gemini-1.5-pro").
// Gemini is generation-only here: its Embed surface is not wired, so the
// provider answers Embed with memory.ErrUnsupported unless an external
// embedder is attached.
func newGeminiChat(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: GOOGLE_API_KEY is required for gemini backend")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: failed to create Gemini client: %w", err)
	}
	return einogemini.NewChatModel(ctx, &einogemini.Config{ //nolint:wrapcheck // constructor passthrough
		Client: client,
		Model:  cfg.Model,
	})
}

// newArkChat constructs a chat model backed by an Ark/OpenAI-compatible
// model runtime. Requires ARK_MODEL, ARK_API_KEY, and ARK_BASE_URL.
func newArkChat(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	maxTokens := cfg.MaxTokens
	temp := cfg.Temperature
	return einoark.NewChatModel(ctx, &einoark.ChatModelConfig{ //nolint:wrapcheck // constructor passthrough
		Model:       cfg.Model,
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		MaxTokens:   &maxTokens,
		Temperature: &temp,
	})
}
