package memory

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned by providers for operations they cannot
// perform — e.g. Embed on a generation-only LLM backend. Callers must not
// treat it as a backend outage.
var ErrUnsupported = errors.New("memory: operation not supported by provider")

// ProviderNotFoundError indicates a registry lookup failed: either the
// named provider was never registered or the kind has no default. This is
// a configuration error; retrying cannot fix it.
type ProviderNotFoundError struct {
	// Kind is the provider category that was looked up.
	Kind string
	// Name is the requested registration name; empty means the default
	// for Kind was requested.
	Name string
}

func (e *ProviderNotFoundError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("memory: no default %s provider registered", e.Kind)
	}
	return fmt.Sprintf("memory: %s provider %q not registered", e.Kind, e.Name)
}

// BackendError indicates a single adapter call failed. The pipeline
// recovers from these by excluding the failing source; direct callers
// receive them as-is.
type BackendError struct {
	// Backend is the adapter label (e.g. "qdrant", "sqlite", "openai").
	Backend string
	// Operation is the adapter method that failed (e.g. "search").
	Operation string
	// Cause is the underlying error.
	Cause error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("memory: %s %s failed: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap exposes the underlying cause to errors.Is / errors.As.
func (e *BackendError) Unwrap() error { return e.Cause }

// EmbeddingError indicates the query embedding could not be computed.
// This is fatal for a whole pipeline call: nothing can be ranked without
// a query vector.
type EmbeddingError struct {
	// Provider is the embedding backend label.
	Provider string
	// Cause is the underlying error.
	Cause error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("memory: embedding via %s failed: %v", e.Provider, e.Cause)
}

// Unwrap exposes the underlying cause to errors.Is / errors.As.
func (e *EmbeddingError) Unwrap() error { return e.Cause }

// ValidationError indicates malformed caller input, e.g. an embedding
// whose dimensionality does not match the target collection.
type ValidationError struct {
	// Field names the offending input field.
	Field string
	// Reason describes why the value was rejected.
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("memory: invalid %s: %s", e.Field, e.Reason)
}
