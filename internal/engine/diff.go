package engine

import (
	"fmt"
	"sort"

	"github.com/gantry-io/gantry/internal/ir"
	"github.com/google/go-cmp/cmp"
)

// Diff compares the desired graph against recorded state and produces one
// change operation per resource: create when unrecorded, noop when
// structurally equal, update when only mutable attributes differ, replace
// when an immutable attribute differs, delete when recorded but no longer
// declared. Comparison is structural over the attribute tree, not textual.
func (e *Engine) Diff(g *Graph, doc *ir.Document, prior map[ir.ID]*ir.Entry) ([]*ir.Change, error) {
	ops := make(map[string]ir.Op, len(doc.Resources))
	var changes []*ir.Change

	// Producers are diffed before consumers so a consumer can see whether a
	// referenced producer is being created or replaced.
	for _, addr := range g.topoOrder() {
		res := g.Resource(addr)
		ch, err := e.diffResource(g, res, prior[res.ID()], ops)
		if err != nil {
			return nil, err
		}
		ops[addr] = ch.Op
		changes = append(changes, ch)
	}

	// Recorded but no longer declared.
	var removed []*ir.Entry
	removedIDs := make(map[ir.ID]bool)
	for id, entry := range prior {
		if doc.Resource(id) == nil {
			removed = append(removed, entry)
			removedIDs[id] = true
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].ID().String() < removed[j].ID().String() })

	// A reference that resolved against recorded state may point at an
	// entry this very run deletes; the consumer would read outputs that
	// stop existing mid-run. Reject it up front.
	for _, res := range doc.Resources {
		for _, ref := range extractRefs(res.Attrs) {
			if removedIDs[ref.Target] {
				return nil, configErrorf("%s references %s, which is no longer declared and is scheduled for deletion",
					res.Addr(), ref.Target)
			}
		}
	}
	for _, entry := range removed {
		changes = append(changes, &ir.Change{
			ID:    entry.ID(),
			Op:    ir.OpDelete,
			Prior: entry,
			Diff:  deleteDiff(entry.Attrs),
		})
	}

	return changes, nil
}

func (e *Engine) diffResource(g *Graph, res *ir.Resource, entry *ir.Entry, ops map[string]ir.Op) (*ir.Change, error) {
	addr := res.Addr()
	ch := &ir.Change{
		ID:           res.ID(),
		Attrs:        res.Attrs,
		Prior:        entry,
		Dependencies: g.Dependencies(addr),
	}

	if entry == nil {
		ch.Op = ir.OpCreate
		ch.Diff = createDiff(res.Attrs)
		return ch, nil
	}

	schema, err := e.registry.SchemaFor(res.Kind)
	if err != nil {
		return nil, configErrorf("%s: %v", addr, err)
	}

	diff := attrDiff(entry.Attrs, res.Attrs)
	if len(diff) == 0 {
		// A consumer of a created or replaced producer re-reads its outputs
		// even when its own attributes are unchanged.
		if referencesChangedProducer(res, ops) {
			ch.Op = ir.OpUpdate
			return ch, nil
		}
		ch.Op = ir.OpNoop
		return ch, nil
	}

	ch.Diff = diff
	for attr, d := range diff {
		if schema.Immutable(attr) {
			d.ForcesReplacement = true
			ch.Op = ir.OpReplace
			ch.OldHandle = entry.Handle
		}
	}
	if ch.Op == "" {
		ch.Op = ir.OpUpdate
	}
	return ch, nil
}

func referencesChangedProducer(res *ir.Resource, ops map[string]ir.Op) bool {
	for _, ref := range extractRefs(res.Attrs) {
		switch ops[ref.Target.String()] {
		case ir.OpCreate, ir.OpReplace:
			return true
		}
	}
	return false
}

// attrDiff returns the top-level attributes whose values differ, comparing
// the normalized value trees deeply.
func attrDiff(prior, desired map[string]any) map[string]*ir.AttrDiff {
	diff := make(map[string]*ir.AttrDiff)
	keys := make(map[string]bool, len(prior)+len(desired))
	for k := range prior {
		keys[k] = true
	}
	for k := range desired {
		keys[k] = true
	}
	for k := range keys {
		before, inPrior := prior[k]
		after, inDesired := desired[k]
		switch {
		case !inPrior:
			diff[k] = &ir.AttrDiff{After: after}
		case !inDesired:
			diff[k] = &ir.AttrDiff{Before: before}
		case !cmp.Equal(normalize(before), normalize(after)):
			diff[k] = &ir.AttrDiff{Before: before, After: after}
		}
	}
	if len(diff) == 0 {
		return nil
	}
	return diff
}

func createDiff(attrs map[string]any) map[string]*ir.AttrDiff {
	diff := make(map[string]*ir.AttrDiff, len(attrs))
	for k, v := range attrs {
		diff[k] = &ir.AttrDiff{After: v}
	}
	return diff
}

func deleteDiff(attrs map[string]any) map[string]*ir.AttrDiff {
	diff := make(map[string]*ir.AttrDiff, len(attrs))
	for k, v := range attrs {
		diff[k] = &ir.AttrDiff{Before: v}
	}
	return diff
}

// normalize maps every numeric value to float64 and widens container types
// so that values surviving different serializations (YAML state files, JSON
// bolt records) compare equal.
func normalize(v any) any {
	switch val := v.(type) {
	case int:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case float32:
		return float64(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[stringify(k)] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	default:
		return val
	}
}

func stringify(k any) string {
	if s, ok := k.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", k)
}
