// Package engine turns a desired-state document plus a prior-state record
// into a correctly ordered sequence of create/update/delete operations
// against a resource provider, with partial-failure recovery.
package engine

import (
	"time"

	"github.com/gantry-io/gantry/internal/ir"
	"github.com/gantry-io/gantry/internal/provider"
	"github.com/gantry-io/gantry/internal/state"
)

// DefaultConcurrency is the default operation concurrency ceiling.
// In practice the engine is bound by provider network i/o.
const DefaultConcurrency = 10

// DefaultOpTimeout is the default per-operation timeout.
const DefaultOpTimeout = 30 * time.Minute

// Engine orchestrates the lifecycle of declared resources.
type Engine struct {
	registry *provider.Registry
	store    state.Store

	// Concurrency caps how many operations of one batch run at once.
	Concurrency int
	// OpTimeout bounds each provider call; a timeout is a failed outcome.
	OpTimeout time.Duration
	// Retry bounds automatic retries of transient provider errors.
	Retry *RetryPolicy
}

func New(registry *provider.Registry, store state.Store) *Engine {
	return &Engine{
		registry:    registry,
		store:       store,
		Concurrency: DefaultConcurrency,
		OpTimeout:   DefaultOpTimeout,
		Retry:       DefaultRetryPolicy(),
	}
}

// Plan builds the dependency graph for doc, diffs it against prior state,
// and schedules the resulting change set. No remote call is made.
func (e *Engine) Plan(doc *ir.Document, prior map[ir.ID]*ir.Entry) (*ir.Plan, *Graph, error) {
	graph, err := BuildGraph(doc, prior)
	if err != nil {
		return nil, nil, err
	}
	changes, err := e.Diff(graph, doc, prior)
	if err != nil {
		return nil, nil, err
	}
	plan, err := e.Schedule(graph, changes)
	if err != nil {
		return nil, nil, err
	}
	return plan, graph, nil
}

// DestroyPlan schedules the deletion of everything in recorded state, in
// reverse dependency order.
func (e *Engine) DestroyPlan(prior map[ir.ID]*ir.Entry) (*ir.Plan, error) {
	empty := &ir.Document{}
	graph, err := BuildGraph(empty, prior)
	if err != nil {
		return nil, err
	}
	changes, err := e.Diff(graph, empty, prior)
	if err != nil {
		return nil, err
	}
	return e.Schedule(graph, changes)
}
