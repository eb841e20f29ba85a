package delta_test

import (
	"testing"

	"github.com/reloadsync/reloadsync/pkg/delta"
	"github.com/reloadsync/reloadsync/pkg/schema"
	"github.com/stretchr/testify/assert"
)

func node(id, typ string, props map[string]any, children ...schema.Node) schema.Node {
	return schema.Node{ID: id, Type: typ, Props: props, Children: children}
}

func TestComputeAddedModifiedRemoved(t *testing.T) {
	old := schema.Schema{
		Metadata: schema.Metadata{Version: "1.0"},
		Nodes: []schema.Node{
			node("r", "View", nil,
				node("a", "Text", map[string]any{"text": "hello"}),
				node("b", "Text", nil),
			),
		},
	}
	newer := schema.Schema{
		Metadata: schema.Metadata{Version: "1.0"},
		Nodes: []schema.Node{
			node("r", "View", nil,
				node("a", "Text", map[string]any{"text": "world"}),
				node("c", "Text", nil),
			),
		},
	}

	d := delta.Compute(old, newer)

	addedIDs := ids(d.Added)
	modifiedIDs := ids(d.Modified)

	assert.ElementsMatch(t, []string{"c"}, addedIDs)
	// "r" is modified because its second child's id changed ("b" -> "c") at
	// the same index, a genuine shallow-level difference; "a" is modified
	// because its own props changed. Neither depends on recursing into
	// grandchildren.
	assert.ElementsMatch(t, []string{"r", "a"}, modifiedIDs)
	assert.ElementsMatch(t, []string{"b"}, d.Removed)
}

func ids(nodes []schema.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func TestComputeLeafChangeDoesNotMarkAncestorsModified(t *testing.T) {
	old := schema.Schema{
		Nodes: []schema.Node{
			node("root", "View", nil,
				node("branch", "View", nil,
					node("leaf", "Text", map[string]any{"text": "hello"}),
				),
			),
		},
	}
	newer := schema.Schema{
		Nodes: []schema.Node{
			node("root", "View", nil,
				node("branch", "View", nil,
					node("leaf", "Text", map[string]any{"text": "world"}),
				),
			),
		},
	}

	d := delta.Compute(old, newer)

	// Only the leaf itself changed; "branch" and "root" kept the same
	// child ids at the same indexes, so they are not ancestors-of-a-change
	// false positives. A single leaf edit keeps ChangeCount well under the
	// incremental threshold and selects Incremental, not Full.
	assert.ElementsMatch(t, []string{"leaf"}, ids(d.Modified))
	assert.Empty(t, d.Added)
	assert.Empty(t, d.Removed)
	assert.Equal(t, 1, d.ChangeCount())
	assert.True(t, delta.ShouldUseIncremental(d))
}

func TestComputeNoChanges(t *testing.T) {
	s := schema.Schema{Nodes: []schema.Node{node("r", "View", nil)}}
	d := delta.Compute(s, s)
	assert.Empty(t, d.Added)
	assert.Empty(t, d.Modified)
	assert.Empty(t, d.Removed)
	assert.Nil(t, d.MetadataChanges)
}

func TestComputeMetadataChanges(t *testing.T) {
	old := schema.Schema{Metadata: schema.Metadata{Version: "1.0"}, Nodes: []schema.Node{node("r", "View", nil)}}
	newer := schema.Schema{Metadata: schema.Metadata{Version: "1.1", Navigation: "stack"}, Nodes: []schema.Node{node("r", "View", nil)}}

	d := delta.Compute(old, newer)
	if assert.NotNil(t, d.MetadataChanges) {
		assert.Equal(t, "1.1", *d.MetadataChanges.Version)
		assert.Equal(t, "stack", d.MetadataChanges.Navigation)
	}
}

func TestApplyRoundTripsCompute(t *testing.T) {
	old := schema.Schema{
		Metadata: schema.Metadata{Version: "1.0"},
		Nodes: []schema.Node{
			node("r", "View", nil,
				node("a", "Text", map[string]any{"text": "hello"}),
				node("b", "Text", nil),
			),
		},
	}
	newer := schema.Schema{
		Metadata: schema.Metadata{Version: "1.1"},
		Nodes: []schema.Node{
			node("r", "View", nil,
				node("a", "Text", map[string]any{"text": "world"}),
				node("c", "Text", nil),
			),
		},
	}

	d := delta.Compute(old, newer)
	got, err := delta.Apply(old, d)
	if assert.NoError(t, err) {
		assert.True(t, schema.CanonicalEqual(newer, got))
	}
}

func TestApplyNoChanges(t *testing.T) {
	s := schema.Schema{Nodes: []schema.Node{node("r", "View", nil)}}
	d := delta.Compute(s, s)
	got, err := delta.Apply(s, d)
	if assert.NoError(t, err) {
		assert.True(t, schema.CanonicalEqual(s, got))
	}
}

func TestApplyRemovesNode(t *testing.T) {
	base := schema.Schema{Nodes: []schema.Node{
		node("r", "View", nil, node("a", "Text", nil), node("b", "Text", nil)),
	}}
	d := delta.SchemaDelta{Removed: []string{"b"}}
	got, err := delta.Apply(base, d)
	if assert.NoError(t, err) {
		assert.Equal(t, []string{"a"}, ids(got.Nodes[0].Children))
	}
}

func TestShouldUseIncremental(t *testing.T) {
	tests := []struct {
		name string
		d    delta.SchemaDelta
		want bool
	}{
		{"empty", delta.SchemaDelta{}, false},
		{"small change", delta.SchemaDelta{Added: []schema.Node{node("a", "T", nil)}, Modified: make([]schema.Node, 2)}, true},
		{"navigation forces full", delta.SchemaDelta{
			Added:           []schema.Node{node("a", "T", nil)},
			MetadataChanges: &delta.MetadataChanges{Navigation: "stack"},
		}, false},
		{"at threshold forces full", delta.SchemaDelta{Added: make([]schema.Node, 10)}, false},
		{"below threshold", delta.SchemaDelta{Added: make([]schema.Node, 9)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, delta.ShouldUseIncremental(tt.d))
		})
	}
}
