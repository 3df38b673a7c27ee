package engine

import (
	"testing"

	"github.com/gantry-io/gantry/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// batchIndex maps change keys to the index of the batch they run in.
func batchIndex(plan *ir.Plan) map[string]int {
	idx := make(map[string]int)
	for i, batch := range plan.Batches {
		for _, ch := range batch {
			idx[ch.Key()] = i
		}
	}
	return idx
}

func planFor(t *testing.T, eng *Engine, doc *ir.Document, prior map[ir.ID]*ir.Entry) *ir.Plan {
	t.Helper()
	plan, _, err := eng.Plan(doc, prior)
	require.NoError(t, err)
	return plan
}

func TestSchedule_IndependentResourcesShareOneBatch(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	doc := &ir.Document{Resources: []*ir.Resource{
		res("test.box", "a", nil),
		res("test.box", "b", nil),
		res("test.box", "c", nil),
	}}

	plan := planFor(t, eng, doc, nil)
	require.Len(t, plan.Batches, 1)
	assert.Len(t, plan.Batches[0], 3)
}

func TestSchedule_ChainProducesOneBatchPerLevel(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	doc := &ir.Document{Resources: []*ir.Resource{
		res("test.net", "main", nil),
		res("test.sub", "a", map[string]any{"net": "ref://test.net/main/id"}),
		res("test.box", "web", map[string]any{"sub": "ref://test.sub/a/id"}),
	}}

	plan := planFor(t, eng, doc, nil)
	idx := batchIndex(plan)
	assert.Less(t, idx["test.net.main"], idx["test.sub.a"])
	assert.Less(t, idx["test.sub.a"], idx["test.box.web"])
}

func TestSchedule_NoopCountedButNotScheduled(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	attrs := map[string]any{"size": "small"}
	doc := &ir.Document{Resources: []*ir.Resource{
		res("test.box", "steady", attrs),
		res("test.box", "fresh", nil),
	}}
	prior := map[ir.ID]*ir.Entry{
		{Kind: "test.box", Name: "steady"}: entry("test.box", "steady", "fake-1", attrs, nil),
	}

	plan := planFor(t, eng, doc, prior)
	assert.Equal(t, 1, plan.Summary.NoOp)
	assert.Equal(t, 1, plan.Summary.Create)
	require.Len(t, plan.Changes(), 1)
	assert.Equal(t, "test.box.fresh", plan.Changes()[0].Key())
}

func TestSchedule_DependencyThroughUnchangedResource(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	// net changes, sub is a noop in between, box must still wait for net.
	doc := &ir.Document{Resources: []*ir.Resource{
		res("test.net", "main", map[string]any{"label": "new"}),
		res("test.sub", "a", map[string]any{"net": "ref://test.net/main/id"}),
		res("test.box", "web", map[string]any{"sub": "ref://test.sub/a/id", "flavor": "big"}),
	}}
	prior := map[ir.ID]*ir.Entry{
		{Kind: "test.net", Name: "main"}: entry("test.net", "main", "fake-1", map[string]any{"label": "old"}, nil),
		{Kind: "test.sub", Name: "a"}: entry("test.sub", "a", "fake-2",
			map[string]any{"net": "ref://test.net/main/id"}, nil, "test.net.main"),
		{Kind: "test.box", Name: "web"}: entry("test.box", "web", "fake-3",
			map[string]any{"sub": "ref://test.sub/a/id", "flavor": "small"}, nil, "test.sub.a"),
	}

	plan := planFor(t, eng, doc, prior)
	assert.Equal(t, []string{"test.net.main"}, plan.Deps["test.box.web"])
	idx := batchIndex(plan)
	assert.Less(t, idx["test.net.main"], idx["test.box.web"])
}

func TestSchedule_ReplaceEmitsDeposedDelete(t *testing.T) {
	eng, fake, _ := newTestEngine(t)
	fake.immutable = map[string][]string{"test.net": {"cidr"}}

	doc := &ir.Document{Resources: []*ir.Resource{
		res("test.net", "main", map[string]any{"cidr": "10.1.0.0/16"}),
		res("test.box", "web", map[string]any{"net": "ref://test.net/main/id"}),
	}}
	prior := map[ir.ID]*ir.Entry{
		{Kind: "test.net", Name: "main"}: entry("test.net", "main", "old-net", map[string]any{"cidr": "10.0.0.0/16"}, nil),
		{Kind: "test.box", Name: "web"}: entry("test.box", "web", "fake-2",
			map[string]any{"net": "ref://test.net/main/id"}, nil, "test.net.main"),
	}

	plan := planFor(t, eng, doc, prior)
	assert.Equal(t, 1, plan.Summary.Replace)
	assert.Equal(t, 1, plan.Summary.Delete)

	idx := batchIndex(plan)
	deposedKey := "test.net.main (deposed)"
	require.Contains(t, idx, deposedKey)

	// New instance first, then the consumer moves over, only then does the
	// old instance go away.
	assert.Less(t, idx["test.net.main"], idx["test.box.web"])
	assert.Less(t, idx["test.box.web"], idx[deposedKey])

	for _, ch := range plan.Batches[idx[deposedKey]] {
		if ch.Key() == deposedKey {
			assert.True(t, ch.Deposed)
			assert.Equal(t, "old-net", ch.OldHandle)
		}
	}
}

func TestSchedule_DeletesRunInReverseRecordedOrder(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	doc := &ir.Document{}
	prior := map[ir.ID]*ir.Entry{
		{Kind: "test.net", Name: "main"}: entry("test.net", "main", "fake-1", nil, nil),
		{Kind: "test.sub", Name: "a"}:    entry("test.sub", "a", "fake-2", nil, nil, "test.net.main"),
		{Kind: "test.box", Name: "web"}:  entry("test.box", "web", "fake-3", nil, nil, "test.sub.a"),
	}

	plan := planFor(t, eng, doc, prior)
	idx := batchIndex(plan)
	assert.Less(t, idx["test.box.web"], idx["test.sub.a"])
	assert.Less(t, idx["test.sub.a"], idx["test.net.main"])
}

func TestSchedule_RemovedConsumerDeletedBeforeDeposedInstance(t *testing.T) {
	eng, fake, _ := newTestEngine(t)
	fake.immutable = map[string][]string{"test.net": {"cidr"}}

	// The net is replaced and its old consumer is gone from the document.
	// The stale box still points at the old instance, so it must be deleted
	// before the deposed net is.
	doc := &ir.Document{Resources: []*ir.Resource{
		res("test.net", "main", map[string]any{"cidr": "10.1.0.0/16"}),
	}}
	prior := map[ir.ID]*ir.Entry{
		{Kind: "test.net", Name: "main"}: entry("test.net", "main", "old-net", map[string]any{"cidr": "10.0.0.0/16"}, nil),
		{Kind: "test.box", Name: "stale"}: entry("test.box", "stale", "fake-2",
			map[string]any{"net": "ref://test.net/main/id"}, nil, "test.net.main"),
	}

	plan := planFor(t, eng, doc, prior)
	idx := batchIndex(plan)
	assert.Less(t, idx["test.box.stale"], idx["test.net.main (deposed)"])
}
