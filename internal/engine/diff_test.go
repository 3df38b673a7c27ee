package engine

import (
	"testing"

	"github.com/gantry-io/gantry/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func diffOne(t *testing.T, eng *Engine, doc *ir.Document, prior map[ir.ID]*ir.Entry) map[string]*ir.Change {
	t.Helper()
	g, err := BuildGraph(doc, prior)
	require.NoError(t, err)
	changes, err := eng.Diff(g, doc, prior)
	require.NoError(t, err)
	byKey := make(map[string]*ir.Change, len(changes))
	for _, ch := range changes {
		byKey[ch.Key()] = ch
	}
	return byKey
}

func TestDiff_CreateWhenUnrecorded(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	doc := &ir.Document{Resources: []*ir.Resource{
		res("test.box", "web", map[string]any{"size": "small"}),
	}}

	changes := diffOne(t, eng, doc, nil)
	ch := changes["test.box.web"]
	require.NotNil(t, ch)
	assert.Equal(t, ir.OpCreate, ch.Op)
	require.Contains(t, ch.Diff, "size")
	assert.Equal(t, "small", ch.Diff["size"].After)
}

func TestDiff_NoopWhenStructurallyEqual(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	// The recorded attrs came back through a serialization that widened
	// ints to floats and map keys to any. Still the same value.
	doc := &ir.Document{Resources: []*ir.Resource{
		res("test.box", "web", map[string]any{
			"count": 3,
			"tags":  map[string]any{"env": "prod"},
		}),
	}}
	prior := map[ir.ID]*ir.Entry{
		{Kind: "test.box", Name: "web"}: entry("test.box", "web", "fake-1", map[string]any{
			"count": float64(3),
			"tags":  map[any]any{"env": "prod"},
		}, nil),
	}

	changes := diffOne(t, eng, doc, prior)
	assert.Equal(t, ir.OpNoop, changes["test.box.web"].Op)
}

func TestDiff_UpdateMutableAttr(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	doc := &ir.Document{Resources: []*ir.Resource{
		res("test.box", "web", map[string]any{"size": "large"}),
	}}
	prior := map[ir.ID]*ir.Entry{
		{Kind: "test.box", Name: "web"}: entry("test.box", "web", "fake-1", map[string]any{"size": "small"}, nil),
	}

	changes := diffOne(t, eng, doc, prior)
	ch := changes["test.box.web"]
	assert.Equal(t, ir.OpUpdate, ch.Op)
	require.Contains(t, ch.Diff, "size")
	assert.Equal(t, "small", ch.Diff["size"].Before)
	assert.Equal(t, "large", ch.Diff["size"].After)
	assert.False(t, ch.Diff["size"].ForcesReplacement)
}

func TestDiff_ReplaceImmutableAttr(t *testing.T) {
	eng, fake, _ := newTestEngine(t)
	fake.immutable = map[string][]string{"test.box": {"zone"}}

	doc := &ir.Document{Resources: []*ir.Resource{
		res("test.box", "web", map[string]any{"zone": "b", "size": "small"}),
	}}
	prior := map[ir.ID]*ir.Entry{
		{Kind: "test.box", Name: "web"}: entry("test.box", "web", "fake-1", map[string]any{"zone": "a", "size": "small"}, nil),
	}

	changes := diffOne(t, eng, doc, prior)
	ch := changes["test.box.web"]
	assert.Equal(t, ir.OpReplace, ch.Op)
	assert.Equal(t, "fake-1", ch.OldHandle)
	require.Contains(t, ch.Diff, "zone")
	assert.True(t, ch.Diff["zone"].ForcesReplacement)
}

func TestDiff_DeleteWhenNoLongerDeclared(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	doc := &ir.Document{}
	prior := map[ir.ID]*ir.Entry{
		{Kind: "test.box", Name: "old"}: entry("test.box", "old", "fake-1", map[string]any{"size": "small"}, nil),
	}

	changes := diffOne(t, eng, doc, prior)
	ch := changes["test.box.old"]
	require.NotNil(t, ch)
	assert.Equal(t, ir.OpDelete, ch.Op)
	assert.Equal(t, "small", ch.Diff["size"].Before)
}

func TestDiff_AddedAndRemovedAttrs(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	doc := &ir.Document{Resources: []*ir.Resource{
		res("test.box", "web", map[string]any{"size": "small", "label": "x"}),
	}}
	prior := map[ir.ID]*ir.Entry{
		{Kind: "test.box", Name: "web"}: entry("test.box", "web", "fake-1", map[string]any{"size": "small", "zone": "a"}, nil),
	}

	changes := diffOne(t, eng, doc, prior)
	ch := changes["test.box.web"]
	assert.Equal(t, ir.OpUpdate, ch.Op)
	assert.Equal(t, "x", ch.Diff["label"].After)
	assert.Equal(t, "a", ch.Diff["zone"].Before)
	assert.NotContains(t, ch.Diff, "size")
}

func TestDiff_ReferenceToDeletedResourceRejected(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	// The net is only in recorded state, so the reference resolves at
	// graph build, but this run deletes it out from under the box.
	doc := &ir.Document{Resources: []*ir.Resource{
		res("test.box", "web", map[string]any{"net": "ref://test.net/shared/id"}),
	}}
	prior := map[ir.ID]*ir.Entry{
		{Kind: "test.net", Name: "shared"}: entry("test.net", "shared", "fake-1", nil, map[string]any{"id": "fake-1"}),
	}

	g, err := BuildGraph(doc, prior)
	require.NoError(t, err)
	_, err = eng.Diff(g, doc, prior)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheduled for deletion")
	assert.True(t, IsFatal(err))
}

func TestDiff_ConsumerOfReplacedProducerBecomesUpdate(t *testing.T) {
	eng, fake, _ := newTestEngine(t)
	fake.immutable = map[string][]string{"test.net": {"cidr"}}

	doc := &ir.Document{Resources: []*ir.Resource{
		res("test.net", "main", map[string]any{"cidr": "10.1.0.0/16"}),
		res("test.box", "web", map[string]any{"net": "ref://test.net/main/id"}),
	}}
	prior := map[ir.ID]*ir.Entry{
		{Kind: "test.net", Name: "main"}: entry("test.net", "main", "fake-1", map[string]any{"cidr": "10.0.0.0/16"}, nil),
		{Kind: "test.box", Name: "web"}: entry("test.box", "web", "fake-2",
			map[string]any{"net": "ref://test.net/main/id"}, nil, "test.net.main"),
	}

	changes := diffOne(t, eng, doc, prior)
	assert.Equal(t, ir.OpReplace, changes["test.net.main"].Op)
	// The box's own attrs are unchanged, but it must re-read the new
	// network's outputs.
	assert.Equal(t, ir.OpUpdate, changes["test.box.web"].Op)
}

func TestDiff_ConsumerOfUpdatedProducerStaysNoop(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	doc := &ir.Document{Resources: []*ir.Resource{
		res("test.net", "main", map[string]any{"label": "new"}),
		res("test.box", "web", map[string]any{"net": "ref://test.net/main/id"}),
	}}
	prior := map[ir.ID]*ir.Entry{
		{Kind: "test.net", Name: "main"}: entry("test.net", "main", "fake-1", map[string]any{"label": "old"}, nil),
		{Kind: "test.box", Name: "web"}: entry("test.box", "web", "fake-2",
			map[string]any{"net": "ref://test.net/main/id"}, nil, "test.net.main"),
	}

	changes := diffOne(t, eng, doc, prior)
	assert.Equal(t, ir.OpUpdate, changes["test.net.main"].Op)
	// An in-place update keeps the same handle, so consumers are untouched.
	assert.Equal(t, ir.OpNoop, changes["test.box.web"].Op)
}
