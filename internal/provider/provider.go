// Package provider defines the capability the engine consumes to touch a
// remote control plane. Implementations live under providers/ and are
// registered in-process; the engine never inspects provider internals.
package provider

import "context"

// Provider applies changes for the resource kinds it owns. Attribute maps
// passed in are fully resolved: references have been substituted with
// concrete values.
type Provider interface {
	// Create provisions a new resource and returns its provider-assigned
	// handle plus the outputs it exposes.
	Create(ctx context.Context, kind string, attrs map[string]any) (handle string, outputs map[string]any, err error)

	// Update changes an existing resource in place and returns its outputs.
	Update(ctx context.Context, kind, handle string, attrs map[string]any) (map[string]any, error)

	// Delete destroys the resource behind handle.
	Delete(ctx context.Context, kind, handle string) error

	// Schema returns the provider contract for a resource kind.
	Schema(kind string) (Schema, error)
}

// Schema is the provider contract for one resource kind.
type Schema struct {
	// ImmutableAttrs cannot be changed in place; a change forces
	// replacement of the resource.
	ImmutableAttrs []string
}

func (s Schema) Immutable(attr string) bool {
	for _, a := range s.ImmutableAttrs {
		if a == attr {
			return true
		}
	}
	return false
}
