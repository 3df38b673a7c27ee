package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gantry-io/gantry/internal/ir"
	"github.com/gantry-io/gantry/internal/provider"
	"github.com/gantry-io/gantry/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCall records one provider invocation in arrival order.
type fakeCall struct {
	Op     string
	Kind   string
	Handle string
	Attrs  map[string]any
}

// fakeProvider is an in-memory provider for engine tests. Attributes steer
// its behavior: "fail" makes the call fail permanently, "failTimes" makes
// it fail transiently that many times before succeeding.
type fakeProvider struct {
	mu        sync.Mutex
	seq       int
	calls     []fakeCall
	failures  map[string]int // attrs["name"] -> transient failures left
	immutable map[string][]string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{failures: make(map[string]int)}
}

func (p *fakeProvider) record(op, kind, handle string, attrs map[string]any) {
	p.mu.Lock()
	p.calls = append(p.calls, fakeCall{Op: op, Kind: kind, Handle: handle, Attrs: attrs})
	p.mu.Unlock()
}

func (p *fakeProvider) callsFor(op string) []fakeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []fakeCall
	for _, c := range p.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (p *fakeProvider) shouldFail(attrs map[string]any) error {
	if fail, _ := attrs["fail"].(bool); fail {
		return fmt.Errorf("permission denied")
	}
	name, _ := attrs["name"].(string)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures[name] > 0 {
		p.failures[name]--
		return fmt.Errorf("throttled: rate exceeded")
	}
	return nil
}

func (p *fakeProvider) Create(ctx context.Context, kind string, attrs map[string]any) (string, map[string]any, error) {
	if err := p.shouldFail(attrs); err != nil {
		return "", nil, err
	}
	p.mu.Lock()
	p.seq++
	handle := fmt.Sprintf("fake-%d", p.seq)
	p.mu.Unlock()
	p.record("create", kind, handle, attrs)
	outputs := map[string]any{"id": handle}
	for k, v := range attrs {
		outputs[k] = v
	}
	return handle, outputs, nil
}

func (p *fakeProvider) Update(ctx context.Context, kind, handle string, attrs map[string]any) (map[string]any, error) {
	if err := p.shouldFail(attrs); err != nil {
		return nil, err
	}
	p.record("update", kind, handle, attrs)
	outputs := map[string]any{"id": handle}
	for k, v := range attrs {
		outputs[k] = v
	}
	return outputs, nil
}

func (p *fakeProvider) Delete(ctx context.Context, kind, handle string) error {
	p.record("delete", kind, handle, nil)
	return nil
}

func (p *fakeProvider) Schema(kind string) (provider.Schema, error) {
	return provider.Schema{ImmutableAttrs: p.immutable[kind]}, nil
}

func newTestEngine(t *testing.T) (*Engine, *fakeProvider, *state.Memory) {
	t.Helper()
	fake := newFakeProvider()
	reg := provider.NewRegistry()
	reg.Register("test", fake)
	store := state.NewMemory()
	eng := New(reg, store)
	eng.Retry = &RetryPolicy{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}
	return eng, fake, store
}

func res(kind, name string, attrs map[string]any) *ir.Resource {
	return &ir.Resource{Kind: kind, Name: name, Attrs: attrs}
}

func entry(kind, name, handle string, attrs, outputs map[string]any, deps ...string) *ir.Entry {
	return &ir.Entry{Kind: kind, Name: name, Handle: handle, Attrs: attrs, Outputs: outputs, Dependencies: deps}
}

func TestPlan_FreshDocumentCreatesEverything(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	doc := &ir.Document{Resources: []*ir.Resource{
		res("test.net", "main", map[string]any{"cidr": "10.0.0.0/16"}),
		res("test.box", "web", map[string]any{"net": "ref://test.net/main/id"}),
	}}

	plan, graph, err := eng.Plan(doc, nil)
	require.NoError(t, err)
	require.NotNil(t, graph)

	assert.Equal(t, 2, plan.Summary.Create)
	require.Len(t, plan.Batches, 2)
	assert.Equal(t, "test.net.main", plan.Batches[0][0].Key())
	assert.Equal(t, "test.box.web", plan.Batches[1][0].Key())
}

func TestPlan_EmptyWhenConverged(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	attrs := map[string]any{"cidr": "10.0.0.0/16"}
	doc := &ir.Document{Resources: []*ir.Resource{res("test.net", "main", attrs)}}
	prior := map[ir.ID]*ir.Entry{
		{Kind: "test.net", Name: "main"}: entry("test.net", "main", "fake-1", attrs, map[string]any{"id": "fake-1"}),
	}

	plan, _, err := eng.Plan(doc, prior)
	require.NoError(t, err)
	assert.True(t, plan.Empty())
	assert.Equal(t, 1, plan.Summary.NoOp)
}

func TestPlan_FatalOnCycle(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	doc := &ir.Document{Resources: []*ir.Resource{
		{Kind: "test.box", Name: "a", DependsOn: []string{"test.box.b"}},
		{Kind: "test.box", Name: "b", DependsOn: []string{"test.box.a"}},
	}}

	_, _, err := eng.Plan(doc, nil)
	require.Error(t, err)
	assert.True(t, IsFatal(err))
}

func TestPlan_ClusterProvisioningScenario(t *testing.T) {
	eng, _, store := newTestEngine(t)

	docFor := func(instanceType string) *ir.Document {
		return &ir.Document{Resources: []*ir.Resource{
			res("test.network", "vpc", map[string]any{"name": "vpc", "cidr": "10.0.0.0/16"}),
			res("test.cluster", "main", map[string]any{"name": "main", "network": "ref://test.network/vpc/id"}),
			{Kind: "test.role", Name: "nodes", Attrs: map[string]any{"name": "nodes"}, Before: []string{"test.pool"}},
			res("test.pool", "workers", map[string]any{
				"name":         "workers",
				"cluster":      "ref://test.cluster/main/id",
				"instanceType": instanceType,
			}),
		}}
	}

	// First run creates the whole topology: network before cluster before
	// pool, and the ordering hint puts the role ahead of the pool too.
	plan, _, err := eng.Plan(docFor("m5.large"), nil)
	require.NoError(t, err)
	assert.Equal(t, 4, plan.Summary.Create)

	idx := batchIndex(plan)
	assert.Less(t, idx["test.network.vpc"], idx["test.cluster.main"])
	assert.Less(t, idx["test.cluster.main"], idx["test.pool.workers"])
	assert.Less(t, idx["test.role.nodes"], idx["test.pool.workers"])

	report, err := eng.Apply(context.Background(), plan, nil, nil)
	require.NoError(t, err)
	assert.False(t, report.Failed())

	// Replanning the unchanged document converges to an empty plan.
	prior, err := store.Load(context.Background())
	require.NoError(t, err)
	plan, _, err = eng.Plan(docFor("m5.large"), prior)
	require.NoError(t, err)
	assert.True(t, plan.Empty())
	assert.Equal(t, 4, plan.Summary.NoOp)

	// Changing only the pool's instance type touches exactly the pool.
	plan, _, err = eng.Plan(docFor("m6.large"), prior)
	require.NoError(t, err)
	assert.Equal(t, 1, plan.Summary.Update)
	assert.Equal(t, 3, plan.Summary.NoOp)
	require.Len(t, plan.Changes(), 1)
	assert.Equal(t, "test.pool.workers", plan.Changes()[0].Key())

	report, err = eng.Apply(context.Background(), plan, prior, nil)
	require.NoError(t, err)
	assert.False(t, report.Failed())

	prior, err = store.Load(context.Background())
	require.NoError(t, err)
	plan, _, err = eng.Plan(docFor("m6.large"), prior)
	require.NoError(t, err)
	assert.True(t, plan.Empty())
}

func TestDestroyPlan_ReverseDependencyOrder(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	prior := map[ir.ID]*ir.Entry{
		{Kind: "test.net", Name: "main"}: entry("test.net", "main", "fake-1", nil, nil),
		{Kind: "test.box", Name: "web"}:  entry("test.box", "web", "fake-2", nil, nil, "test.net.main"),
	}

	plan, err := eng.DestroyPlan(prior)
	require.NoError(t, err)
	assert.Equal(t, 2, plan.Summary.Delete)
	require.Len(t, plan.Batches, 2)
	assert.Equal(t, "test.box.web", plan.Batches[0][0].Key())
	assert.Equal(t, "test.net.main", plan.Batches[1][0].Key())
}
