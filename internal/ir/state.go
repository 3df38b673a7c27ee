package ir

// Entry is the recorded state for one resource: the last-known applied
// attributes, the outputs the provider reported, and the provider-assigned
// handle. Entries are created on first successful apply, rewritten after
// every successful change, and removed when the resource is deleted.
type Entry struct {
	Kind         string         `yaml:"kind" json:"kind"`
	Name         string         `yaml:"name" json:"name"`
	Handle       string         `yaml:"handle" json:"handle"`
	Attrs        map[string]any `yaml:"attrs" json:"attrs"`     // as declared, references unresolved
	Outputs      map[string]any `yaml:"outputs" json:"outputs"` // provider returned
	Dependencies []string       `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
}

func (e *Entry) ID() ID {
	return ID{Kind: e.Kind, Name: e.Name}
}

// Snapshot is the serialized form of the whole state store, used by the
// file and S3 backends.
type Snapshot struct {
	Version int      `yaml:"version"`
	Serial  int      `yaml:"serial"`
	Lineage string   `yaml:"lineage"`
	Entries []*Entry `yaml:"entries"`
}
