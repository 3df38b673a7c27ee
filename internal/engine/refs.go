package engine

import (
	"strings"

	"github.com/gantry-io/gantry/internal/ir"
)

// References are attribute values of the form "ref://<kind>/<name>/<output>":
// the value is not final until <kind>.<name> has been applied and exposes
// the named output.
const refScheme = "ref://"

type reference struct {
	Target ir.ID
	Output string
}

func (r reference) String() string {
	return refScheme + r.Target.Kind + "/" + r.Target.Name + "/" + r.Output
}

// parseRef parses a reference value. The second return is false when the
// string is not a reference at all.
func parseRef(s string) (reference, bool) {
	if !strings.HasPrefix(s, refScheme) {
		return reference{}, false
	}
	parts := strings.SplitN(s[len(refScheme):], "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return reference{}, false
	}
	return reference{Target: ir.ID{Kind: parts[0], Name: parts[1]}, Output: parts[2]}, true
}

// extractRefs walks an attribute value tree and collects every reference.
func extractRefs(v any) []reference {
	var refs []reference
	switch val := v.(type) {
	case string:
		if ref, ok := parseRef(val); ok {
			refs = append(refs, ref)
		}
	case map[string]any:
		for _, item := range val {
			refs = append(refs, extractRefs(item)...)
		}
	case []any:
		for _, item := range val {
			refs = append(refs, extractRefs(item)...)
		}
	}
	return refs
}

// resolveAttrs returns a copy of the attribute tree with every reference
// substituted by the value lookup returns for it. Lookup returning false
// means the producing resource has not materialized the output, which the
// scheduler is supposed to rule out; the caller treats it as an internal
// invariant violation.
func resolveAttrs(v any, lookup func(id ir.ID, output string) (any, bool)) (any, error) {
	switch val := v.(type) {
	case string:
		ref, ok := parseRef(val)
		if !ok {
			return val, nil
		}
		out, ok := lookup(ref.Target, ref.Output)
		if !ok {
			return nil, &InternalError{Detail: "unresolved output " + ref.String() + " at apply time"}
		}
		return out, nil
	case map[string]any:
		resolved := make(map[string]any, len(val))
		for k, item := range val {
			r, err := resolveAttrs(item, lookup)
			if err != nil {
				return nil, err
			}
			resolved[k] = r
		}
		return resolved, nil
	case []any:
		resolved := make([]any, len(val))
		for i, item := range val {
			r, err := resolveAttrs(item, lookup)
			if err != nil {
				return nil, err
			}
			resolved[i] = r
		}
		return resolved, nil
	default:
		return val, nil
	}
}
