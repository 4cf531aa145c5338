package server

import (
	"context"
	"fmt"
)

// pingable is any component exposing a context-aware reachability check.
// vector.QdrantStore, session.SQLiteStore, and sources.Catalog all satisfy it.
type pingable interface {
	Ping(ctx context.Context) error
}

// DependencyPinger adapts any pingable component to the Pinger interface
// used by GET /api/ready.
type DependencyPinger struct {
	// dep is the component to probe.
	dep pingable
	// name identifies the dependency in readiness responses.
	name string
}

// NewDependencyPinger constructs a DependencyPinger for the given component
// and label.
func NewDependencyPinger(dep pingable, name string) *DependencyPinger {
	return &DependencyPinger{dep: dep, name: name}
}

// Name returns the dependency label used in readiness responses.
func (p *DependencyPinger) Name() string { return p.name }

// Ping probes the wrapped component.
// Returns nil when it is reachable, or a descriptive error otherwise.
func (p *DependencyPinger) Ping(ctx context.Context) error {
	if err := p.dep.Ping(ctx); err != nil {
		return fmt.Errorf("%s probe failed: %w", p.name, err)
	}
	return nil
}
