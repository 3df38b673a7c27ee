// Package config loads desired-state documents from YAML files. The
// document syntax is a plain encoding of the resource list, not a
// configuration language: no expressions, no interpolation beyond
// ref:// values the engine resolves itself.
package config

import (
	"fmt"
	"os"

	"github.com/gantry-io/gantry/internal/ir"
	"gopkg.in/yaml.v3"
)

// Load reads and validates a desired-state document.
func Load(path string) (*ir.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes a desired-state document from YAML.
func Parse(raw []byte) (*ir.Document, error) {
	var doc ir.Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	seen := make(map[ir.ID]bool, len(doc.Resources))
	for i, res := range doc.Resources {
		if res == nil {
			return nil, fmt.Errorf("resource %d is empty", i)
		}
		if res.Kind == "" || res.Name == "" {
			return nil, fmt.Errorf("resource %d: kind and name are required", i)
		}
		if seen[res.ID()] {
			return nil, fmt.Errorf("duplicate resource identity %s", res.Addr())
		}
		seen[res.ID()] = true
	}
	return &doc, nil
}
