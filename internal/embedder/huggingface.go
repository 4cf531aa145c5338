package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// defaultHFModel is a small sentence embedding model with 384 dimensions,
// a good latency/quality tradeoff for the inference API free tier.
const defaultHFModel = "BAAI/bge-small-en-v1.5"

// HuggingFaceEmbedder implements Embedder using the Hugging Face inference
// API feature-extraction task. It is safe for concurrent use.
type HuggingFaceEmbedder struct {
	apiURL string
	token  string
	model  string
	client *http.Client
}

// HuggingFaceConfig holds the settings for constructing a HuggingFaceEmbedder.
type HuggingFaceConfig struct {
	// Token is the Hugging Face API token (required).
	Token string
	// Model is the embedding model repo (default: BAAI/bge-small-en-v1.5).
	Model string
	// APIURL overrides the inference API base for self-hosted endpoints.
	APIURL string
}

// NewHuggingFaceEmbedder constructs a HuggingFaceEmbedder from the given config.
func NewHuggingFaceEmbedder(cfg *HuggingFaceConfig) (*HuggingFaceEmbedder, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("huggingface embedder: API token is required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultHFModel
	}
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = "https://api-inference.huggingface.co/models"
	}
	return &HuggingFaceEmbedder{
		apiURL: apiURL,
		token:  cfg.Token,
		model:  model,
		client: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// Name returns the backend label.
func (e *HuggingFaceEmbedder) Name() string { return "huggingface" }

// hfEmbedRequest is the JSON body sent to the feature-extraction endpoint.
type hfEmbedRequest struct {
	Inputs []string `json:"inputs"`
}

// Embed converts a batch of texts into their corresponding embeddings.
func (e *HuggingFaceEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(hfEmbedRequest{Inputs: texts})
	if err != nil {
		return nil, fmt.Errorf("huggingface embedder: marshal request: %w", err)
	}

	url := e.apiURL + "/" + e.model
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("huggingface embedder: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("huggingface embedder: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return nil, fmt.Errorf("huggingface embedder: %s", msg)
	}

	var embeddings [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&embeddings); err != nil {
		return nil, fmt.Errorf("huggingface embedder: decode response: %w", err)
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("huggingface embedder: expected %d embeddings, got %d", len(texts), len(embeddings))
	}
	return embeddings, nil
}
