// Package null implements a provider with no remote side effects. It backs
// engine and CLI testing: created "resources" live only in recorded state.
package null

import (
	"context"
	"fmt"
	"sync"

	"github.com/gantry-io/gantry/internal/provider"
)

const (
	// KindResource is a generic resource; every attribute is mutable.
	KindResource = "null.resource"
	// KindToken is a resource whose "length" attribute forces replacement.
	KindToken = "null.token"
)

type Provider struct {
	mu      sync.Mutex
	counter int
}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) Schema(kind string) (provider.Schema, error) {
	switch kind {
	case KindResource:
		return provider.Schema{}, nil
	case KindToken:
		return provider.Schema{ImmutableAttrs: []string{"length"}}, nil
	default:
		return provider.Schema{}, fmt.Errorf("unknown kind %q", kind)
	}
}

func (p *Provider) Create(ctx context.Context, kind string, attrs map[string]any) (string, map[string]any, error) {
	if _, err := p.Schema(kind); err != nil {
		return "", nil, err
	}
	p.mu.Lock()
	p.counter++
	handle := fmt.Sprintf("null-%d", p.counter)
	p.mu.Unlock()
	return handle, outputs(handle, attrs), nil
}

func (p *Provider) Update(ctx context.Context, kind, handle string, attrs map[string]any) (map[string]any, error) {
	if _, err := p.Schema(kind); err != nil {
		return nil, err
	}
	return outputs(handle, attrs), nil
}

func (p *Provider) Delete(ctx context.Context, kind, handle string) error {
	_, err := p.Schema(kind)
	return err
}

// outputs echoes the resolved attributes and adds the handle as "id".
func outputs(handle string, attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs)+1)
	for k, v := range attrs {
		out[k] = v
	}
	out["id"] = handle
	return out
}
