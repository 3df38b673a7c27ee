package provider

import (
	"fmt"
	"strings"
	"sync"
)

// Registry maps provider names to registered providers. A resource kind
// "aws.vpc" belongs to the provider named by its first segment, "aws".
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register installs a provider under name, replacing any previous one.
func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider not registered: %s", name)
	}
	return p, nil
}

// ForKind returns the provider owning a resource kind.
func (r *Registry) ForKind(kind string) (Provider, error) {
	name, _, ok := strings.Cut(kind, ".")
	if !ok || name == "" {
		return nil, fmt.Errorf("invalid resource kind %q (want provider.type)", kind)
	}
	return r.Get(name)
}

// SchemaFor returns the schema for a resource kind.
func (r *Registry) SchemaFor(kind string) (Schema, error) {
	p, err := r.ForKind(kind)
	if err != nil {
		return Schema{}, err
	}
	return p.Schema(kind)
}
