package ir

import (
	"fmt"
	"strings"
)

// ID identifies a resource within a document: a (kind, name) pair.
type ID struct {
	Kind string
	Name string
}

func (id ID) String() string {
	return id.Kind + "." + id.Name
}

// ParseID parses a "kind.name" address. The kind may itself contain dots
// (e.g. "aws.vpc.main" -> kind "aws.vpc", name "main"); the name is the
// segment after the last dot.
func ParseID(addr string) (ID, error) {
	i := strings.LastIndex(addr, ".")
	if i <= 0 || i == len(addr)-1 {
		return ID{}, fmt.Errorf("invalid resource address %q (want kind.name)", addr)
	}
	return ID{Kind: addr[:i], Name: addr[i+1:]}, nil
}

// Resource is a single declared resource in the desired-state document.
type Resource struct {
	Kind      string         `yaml:"kind"`
	Name      string         `yaml:"name"`
	Attrs     map[string]any `yaml:"attrs"`
	DependsOn []string       `yaml:"dependsOn"` // explicit "kind.name" addresses
	Before    []string       `yaml:"before"`    // kinds this resource must precede
}

func (r *Resource) ID() ID {
	return ID{Kind: r.Kind, Name: r.Name}
}

func (r *Resource) Addr() string {
	return r.ID().String()
}

// Document is the desired-state input: the full set of resources that
// should exist after an apply.
type Document struct {
	Resources []*Resource `yaml:"resources"`
}

// Resource returns the declared resource with the given identity, or nil.
func (d *Document) Resource(id ID) *Resource {
	for _, r := range d.Resources {
		if r.Kind == id.Kind && r.Name == id.Name {
			return r
		}
	}
	return nil
}
