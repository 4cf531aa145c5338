// Package registry tracks named provider instances for the three provider
// kinds (vector, session, llm) and resolves lookups against a per-kind
// default. All methods are safe for concurrent use.
package registry

import (
	"sync"

	"github.com/olserra/xmem-go/internal/llm"
	"github.com/olserra/xmem-go/internal/memory"
	"github.com/olserra/xmem-go/internal/session"
	"github.com/olserra/xmem-go/internal/vector"
)

// Kind identifies a provider category. The set is closed: only the three
// constants below are valid.
type Kind string

const (
	// KindVector names vector store providers.
	KindVector Kind = "vector"
	// KindSession names session store providers.
	KindSession Kind = "session"
	// KindLLM names language model providers.
	KindLLM Kind = "llm"
)

// Valid reports whether k is one of the defined provider kinds.
func (k Kind) Valid() bool {
	return k == KindVector || k == KindSession || k == KindLLM
}

// store holds the named instances of one provider kind plus the name of
// the kind's default. Guarded by the owning Registry's mutex.
type store[T any] struct {
	byName     map[string]T
	defaultKey string
}

func (s *store[T]) register(name string, p T) {
	if s.byName == nil {
		s.byName = make(map[string]T)
	}
	// First registration for a kind becomes that kind's default.
	if len(s.byName) == 0 {
		s.defaultKey = name
	}
	// Re-registering an existing name replaces the instance; the default
	// designation is untouched.
	s.byName[name] = p
}

func (s *store[T]) setDefault(name string) bool {
	if _, ok := s.byName[name]; !ok {
		return false
	}
	s.defaultKey = name
	return true
}

// lookup resolves name, falling back to the kind's default when name is
// empty. The second return reports whether a provider was found.
func (s *store[T]) lookup(name string) (T, bool) {
	if name == "" {
		name = s.defaultKey
	}
	p, ok := s.byName[name]
	return p, ok
}

// Registry is the process-wide catalog of providers. The zero value is
// ready to use; construct with New for clarity.
type Registry struct {
	mu       sync.RWMutex
	vectors  store[vector.Store]
	sessions store[session.Store]
	llms     store[llm.Provider]
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{}
}

// RegisterVector adds (or replaces) a named vector store. The first vector
// store registered becomes the kind's default.
func (r *Registry) RegisterVector(name string, p vector.Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vectors.register(name, p)
}

// RegisterSession adds (or replaces) a named session store. The first
// session store registered becomes the kind's default.
func (r *Registry) RegisterSession(name string, p session.Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions.register(name, p)
}

// RegisterLLM adds (or replaces) a named LLM provider. The first LLM
// provider registered becomes the kind's default.
func (r *Registry) RegisterLLM(name string, p llm.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llms.register(name, p)
}

// SetDefault marks the named provider as the default for its kind. The
// provider must already be registered; otherwise a ProviderNotFoundError
// is returned and the previous default is kept.
func (r *Registry) SetDefault(kind Kind, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ok bool
	switch kind {
	case KindVector:
		ok = r.vectors.setDefault(name)
	case KindSession:
		ok = r.sessions.setDefault(name)
	case KindLLM:
		ok = r.llms.setDefault(name)
	default:
		return &memory.ProviderNotFoundError{Kind: string(kind), Name: name}
	}
	if !ok {
		return &memory.ProviderNotFoundError{Kind: string(kind), Name: name}
	}
	return nil
}

// Vector resolves a vector store by name. An empty name resolves the
// kind's default. Missing providers yield a ProviderNotFoundError.
func (r *Registry) Vector(name string) (vector.Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.vectors.lookup(name)
	if !ok {
		return nil, &memory.ProviderNotFoundError{Kind: string(KindVector), Name: name}
	}
	return p, nil
}

// Session resolves a session store by name. An empty name resolves the
// kind's default.
func (r *Registry) Session(name string) (session.Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.sessions.lookup(name)
	if !ok {
		return nil, &memory.ProviderNotFoundError{Kind: string(KindSession), Name: name}
	}
	return p, nil
}

// LLM resolves an LLM provider by name. An empty name resolves the kind's
// default.
func (r *Registry) LLM(name string) (llm.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.llms.lookup(name)
	if !ok {
		return nil, &memory.ProviderNotFoundError{Kind: string(KindLLM), Name: name}
	}
	return p, nil
}

// VectorNames returns the registered vector store names, default first.
func (r *Registry) VectorNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return names(&r.vectors)
}

// SessionNames returns the registered session store names, default first.
func (r *Registry) SessionNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return names(&r.sessions)
}

// LLMNames returns the registered LLM provider names, default first.
func (r *Registry) LLMNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return names(&r.llms)
}

func names[T any](s *store[T]) []string {
	out := make([]string, 0, len(s.byName))
	if s.defaultKey != "" {
		out = append(out, s.defaultKey)
	}
	for name := range s.byName {
		if name != s.defaultKey {
			out = append(out, name)
		}
	}
	return out
}
