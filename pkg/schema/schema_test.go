package schema_test

import (
	"testing"

	"github.com/reloadsync/reloadsync/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSchema() schema.Schema {
	return schema.Schema{
		Metadata: schema.Metadata{Version: "1.0"},
		Nodes: []schema.Node{
			{
				ID:   "r",
				Type: "View",
				Props: map[string]any{
					"padding": float64(16),
					"color":   "blue",
				},
				Children: []schema.Node{
					{ID: "c1", Type: "Text", Props: map[string]any{"text": "hi"}},
				},
			},
		},
	}
}

func TestChecksumStableUnderKeyReordering(t *testing.T) {
	a := sampleSchema()

	// Build an equivalent schema with props assigned in reverse insertion
	// order; Go map iteration order is randomized so this alone already
	// exercises key-order independence, but we additionally swap field
	// population order defensively.
	b := sampleSchema()
	b.Nodes[0].Props = map[string]any{
		"color":   "blue",
		"padding": float64(16),
	}

	sumA, err := schema.Checksum(a)
	require.NoError(t, err)
	sumB, err := schema.Checksum(b)
	require.NoError(t, err)

	assert.Equal(t, sumA, sumB)
}

func TestChecksumDiffersOnContentChange(t *testing.T) {
	a := sampleSchema()
	b := sampleSchema()
	b.Nodes[0].Props["padding"] = float64(24)

	sumA, err := schema.Checksum(a)
	require.NoError(t, err)
	sumB, err := schema.Checksum(b)
	require.NoError(t, err)

	assert.NotEqual(t, sumA, sumB)
}

func TestNodeEqual(t *testing.T) {
	a := sampleSchema().Nodes[0]
	b := sampleSchema().Nodes[0]
	assert.True(t, schema.NodeEqual(a, b))

	b.Type = "Box"
	assert.False(t, schema.NodeEqual(a, b))
}

func TestNodeEqualDifferentChildCount(t *testing.T) {
	a := sampleSchema().Nodes[0]
	b := sampleSchema().Nodes[0]
	b.Children = append(b.Children, schema.Node{ID: "c2", Type: "Text"})
	assert.False(t, schema.NodeEqual(a, b))
}

func TestNodeEqualIsShallowOverChildren(t *testing.T) {
	a := sampleSchema().Nodes[0]
	b := sampleSchema().Nodes[0]
	b.Children[0].Props = map[string]any{"text": "changed"}

	// A prop change on a child doesn't make the parent unequal: each
	// node in the flattened id index is evaluated independently, so only
	// the changed child itself should compare unequal.
	assert.True(t, schema.NodeEqual(a, b))
	assert.False(t, schema.NodeEqual(a.Children[0], b.Children[0]))
}

func TestFlattenVisitsEveryNode(t *testing.T) {
	s := sampleSchema()
	flat := schema.Flatten(s)
	assert.Len(t, flat, 2)
	assert.Contains(t, flat, "r")
	assert.Contains(t, flat, "c1")
}
