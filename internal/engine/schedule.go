package engine

import (
	"fmt"
	"sort"

	"github.com/gantry-io/gantry/internal/ir"
)

// Schedule topologically orders the change set into concurrent batches.
// Create/update/replace operations wait for their producers; deletes run on
// the reversed graph so dependents go first. A replace additionally emits a
// deferred delete of the old instance, gated on the replacement itself and
// on every dependent's operation, so no consumer ever observes the old
// instance disappearing before it has moved to the new one.
func (e *Engine) Schedule(g *Graph, changes []*ir.Change) (*ir.Plan, error) {
	plan := &ir.Plan{Deps: make(map[string][]string)}

	byAddr := make(map[string]*ir.Change, len(changes))
	var scheduled []*ir.Change
	for _, ch := range changes {
		byAddr[ch.ID.String()] = ch
		switch ch.Op {
		case ir.OpCreate:
			plan.Summary.Create++
		case ir.OpUpdate:
			plan.Summary.Update++
		case ir.OpReplace:
			plan.Summary.Replace++
		case ir.OpDelete:
			plan.Summary.Delete++
		case ir.OpNoop:
			plan.Summary.NoOp++
			continue
		}
		scheduled = append(scheduled, ch)
	}

	for _, ch := range scheduled {
		switch ch.Op {
		case ir.OpCreate, ir.OpUpdate, ir.OpReplace:
			plan.Deps[ch.Key()] = forwardDeps(g, byAddr, ch.ID.String())
		case ir.OpDelete:
			plan.Deps[ch.Key()] = deleteDeps(byAddr, ch)
		}
	}

	// Deferred old-instance deletes for replaces.
	var deposed []*ir.Change
	for _, ch := range scheduled {
		if ch.Op != ir.OpReplace {
			continue
		}
		dep := &ir.Change{
			ID:        ch.ID,
			Op:        ir.OpDelete,
			Prior:     ch.Prior,
			Deposed:   true,
			OldHandle: ch.OldHandle,
		}
		after := []string{ch.Key()}
		for _, dependent := range g.Dependents(ch.ID.String()) {
			if dc, ok := byAddr[dependent]; ok && dc.Op != ir.OpNoop {
				after = append(after, dc.Key())
			}
		}
		// Removed resources that referenced the old instance are deleted
		// before it is.
		after = append(after, deleteDeps(byAddr, ch)...)
		plan.Deps[dep.Key()] = dedupe(after)
		plan.Summary.Delete++
		deposed = append(deposed, dep)
	}
	scheduled = append(scheduled, deposed...)

	batches, err := kahnBatches(scheduled, plan.Deps)
	if err != nil {
		return nil, err
	}
	plan.Batches = batches
	return plan, nil
}

// forwardDeps collects the scheduled operations addr must wait for,
// following graph edges transitively through resources with no operation.
func forwardDeps(g *Graph, byAddr map[string]*ir.Change, addr string) []string {
	seen := make(map[string]bool)
	var deps []string
	var walk func(a string)
	walk = func(a string) {
		for _, dep := range g.Dependencies(a) {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			if ch, ok := byAddr[dep]; ok && ch.Op != ir.OpNoop && ch.Op != ir.OpDelete {
				deps = append(deps, ch.Key())
				continue
			}
			walk(dep)
		}
	}
	walk(addr)
	sort.Strings(deps)
	return deps
}

// deleteDeps inverts the recorded dependency edges: before a resource is
// deleted, every operation belonging to a resource that depended on it must
// complete, whether that operation deletes the dependent or updates it away
// from the reference.
func deleteDeps(byAddr map[string]*ir.Change, del *ir.Change) []string {
	addr := del.ID.String()
	var deps []string
	for _, other := range byAddr {
		if other == del || other.Prior == nil || other.Op == ir.OpNoop {
			continue
		}
		for _, recorded := range other.Prior.Dependencies {
			if recorded == addr {
				deps = append(deps, other.Key())
				break
			}
		}
	}
	sort.Strings(deps)
	return deps
}

func dedupe(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

// kahnBatches runs Kahn's algorithm over in-degree counts, emitting each
// zero-in-degree frontier as one concurrent batch. A residual cycle here
// means graph validation was violated upstream.
func kahnBatches(scheduled []*ir.Change, deps map[string][]string) ([][]*ir.Change, error) {
	byKey := make(map[string]*ir.Change, len(scheduled))
	for _, ch := range scheduled {
		byKey[ch.Key()] = ch
	}

	indegree := make(map[string]int, len(scheduled))
	dependents := make(map[string][]string, len(scheduled))
	for _, ch := range scheduled {
		key := ch.Key()
		for _, dep := range deps[key] {
			if _, ok := byKey[dep]; !ok {
				continue // dependency has no scheduled operation
			}
			indegree[key]++
			dependents[dep] = append(dependents[dep], key)
		}
	}

	var frontier []string
	for _, ch := range scheduled {
		if indegree[ch.Key()] == 0 {
			frontier = append(frontier, ch.Key())
		}
	}
	sort.Strings(frontier)

	var batches [][]*ir.Change
	emitted := 0
	for len(frontier) > 0 {
		batch := make([]*ir.Change, 0, len(frontier))
		var next []string
		for _, key := range frontier {
			batch = append(batch, byKey[key])
			emitted++
			for _, dependent := range dependents[key] {
				indegree[dependent]--
				if indegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		sort.Strings(next)
		batches = append(batches, batch)
		frontier = next
	}

	if emitted != len(scheduled) {
		var stuck []string
		for key, deg := range indegree {
			if deg > 0 {
				stuck = append(stuck, fmt.Sprintf("%s (in-degree %d)", key, deg))
			}
		}
		sort.Strings(stuck)
		return nil, &InternalError{Detail: fmt.Sprintf("residual cycle in scheduled operations: %v", stuck)}
	}
	return batches, nil
}
