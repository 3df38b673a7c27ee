package engine

import (
	"sort"

	"github.com/gantry-io/gantry/internal/ir"
)

// edgeOrigin records which construct produced a dependency edge. Reference
// and hint edges are independent sources of ordering; a contradiction
// between them is a configuration error rather than a silent pick.
type edgeOrigin int

const (
	originReference edgeOrigin = iota // attribute references another resource's output
	originExplicit                    // dependsOn
	originHint                        // before-category hint
)

func (o edgeOrigin) String() string {
	switch o {
	case originReference:
		return "reference"
	case originExplicit:
		return "dependsOn"
	default:
		return "ordering hint"
	}
}

// Graph is the dependency graph over a desired-state document: nodes are
// declared resources, edges are the union of reference edges and ordering
// hint edges. A successfully built graph is guaranteed acyclic.
type Graph struct {
	resources map[string]*ir.Resource
	deps      map[string]map[string]edgeOrigin // addr -> prerequisite addr -> origin
}

// BuildGraph assembles the dependency graph for doc. Resources recorded in
// external are treated as already applied: references to them resolve but
// produce no edge. Fails on duplicate identities, references to undeclared
// resources, contradictory hint/reference ordering, and cycles.
func BuildGraph(doc *ir.Document, external map[ir.ID]*ir.Entry) (*Graph, error) {
	g := &Graph{
		resources: make(map[string]*ir.Resource, len(doc.Resources)),
		deps:      make(map[string]map[string]edgeOrigin, len(doc.Resources)),
	}

	for _, res := range doc.Resources {
		addr := res.Addr()
		if _, dup := g.resources[addr]; dup {
			return nil, configErrorf("duplicate resource identity %s", addr)
		}
		g.resources[addr] = res
		g.deps[addr] = make(map[string]edgeOrigin)
	}

	// Reference and dependsOn edges.
	for _, res := range doc.Resources {
		addr := res.Addr()
		for _, ref := range extractRefs(res.Attrs) {
			target := ref.Target.String()
			if _, declared := g.resources[target]; declared {
				g.addEdge(addr, target, originReference)
				continue
			}
			if _, known := external[ref.Target]; !known {
				return nil, configErrorf("unresolved reference %s in %s: %s is not declared", ref, addr, target)
			}
		}
		for _, dep := range res.DependsOn {
			id, err := ir.ParseID(dep)
			if err != nil {
				return nil, configErrorf("invalid dependsOn %q in %s: %v", dep, addr, err)
			}
			if _, declared := g.resources[id.String()]; !declared {
				if _, known := external[id]; known {
					continue
				}
				return nil, configErrorf("unresolved dependsOn %s in %s", dep, addr)
			}
			g.addEdge(addr, id.String(), originExplicit)
		}
	}

	// Ordering hint edges: a resource listing kind K in before must complete
	// before any K resource, so every K resource depends on it.
	for _, res := range doc.Resources {
		addr := res.Addr()
		for _, kind := range res.Before {
			for _, other := range doc.Resources {
				if other.Kind != kind || other == res {
					continue
				}
				otherAddr := other.Addr()
				if origin, ok := g.deps[addr][otherAddr]; ok && origin != originHint {
					return nil, configErrorf(
						"ambiguous ordering between %s and %s: %s says %s first, before hint says %s first",
						addr, otherAddr, origin, otherAddr, addr)
				}
				g.addEdge(otherAddr, addr, originHint)
			}
		}
	}

	if cycle := g.findCycle(); cycle != nil {
		return nil, &CyclicDependencyError{Path: cycle}
	}
	return g, nil
}

func (g *Graph) addEdge(from, to string, origin edgeOrigin) {
	if _, ok := g.deps[from][to]; !ok {
		g.deps[from][to] = origin
	}
}

// Addrs returns every node address in stable order.
func (g *Graph) Addrs() []string {
	addrs := make([]string, 0, len(g.resources))
	for addr := range g.resources {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	return addrs
}

// Resource returns the declared resource at addr, or nil.
func (g *Graph) Resource(addr string) *ir.Resource {
	return g.resources[addr]
}

// Dependencies returns the addresses addr depends on, in stable order.
func (g *Graph) Dependencies(addr string) []string {
	deps := make([]string, 0, len(g.deps[addr]))
	for dep := range g.deps[addr] {
		deps = append(deps, dep)
	}
	sort.Strings(deps)
	return deps
}

// Dependents returns the addresses that depend on addr, in stable order.
func (g *Graph) Dependents(addr string) []string {
	var out []string
	for from, deps := range g.deps {
		if _, ok := deps[addr]; ok {
			out = append(out, from)
		}
	}
	sort.Strings(out)
	return out
}

// topoOrder returns every address with prerequisites before dependents.
// Only valid after a successful BuildGraph.
func (g *Graph) topoOrder() []string {
	seen := make(map[string]bool, len(g.resources))
	order := make([]string, 0, len(g.resources))
	var visit func(addr string)
	visit = func(addr string) {
		if seen[addr] {
			return
		}
		seen[addr] = true
		for _, dep := range g.Dependencies(addr) {
			visit(dep)
		}
		order = append(order, addr)
	}
	for _, addr := range g.Addrs() {
		visit(addr)
	}
	return order
}

// findCycle runs a three-color depth-first search and returns the full
// path of the first cycle found, or nil when the graph is acyclic.
func (g *Graph) findCycle() []string {
	const (
		white = iota // unvisited
		gray         // on the current DFS stack
		black        // fully explored
	)
	color := make(map[string]int, len(g.resources))
	var stack []string

	var visit func(addr string) []string
	visit = func(addr string) []string {
		color[addr] = gray
		stack = append(stack, addr)
		for _, dep := range g.Dependencies(addr) {
			switch color[dep] {
			case gray:
				// Back-edge: the cycle is the stack from dep onward.
				for i, a := range stack {
					if a == dep {
						return append(append([]string{}, stack[i:]...), dep)
					}
				}
			case white:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[addr] = black
		return nil
	}

	for _, addr := range g.Addrs() {
		if color[addr] == white {
			if cycle := visit(addr); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}
