// Package delta computes the structural difference between two schema
// trees and recommends an update strategy. The diff partitioning
// (added/modified/removed) is grounded on the entity-diff shape used for
// infrastructure reconciliation in the retrieval pack, generalized here to
// UI schema trees; the incremental-vs-full strategy switch takes its
// versioning-threshold idiom from the same pack's incremental discovery
// protocol server.
package delta

import (
	"github.com/reloadsync/reloadsync/pkg/schema"
)

// MetadataChanges captures which top-level metadata fields differ between
// two schemas, by value rather than by reference.
type MetadataChanges struct {
	Version    *string `json:"version,omitempty"`
	Theme      any     `json:"theme,omitempty"`
	Navigation any     `json:"navigation,omitempty"`
}

// IsEmpty reports whether no metadata fields changed.
func (m *MetadataChanges) IsEmpty() bool {
	return m == nil || (m.Version == nil && m.Theme == nil && m.Navigation == nil)
}

// SchemaDelta is the minimal patch between an old and a new schema: nodes
// added, nodes modified (by new value), node ids removed, and any
// top-level metadata changes. added and modified are disjoint by id;
// removed is disjoint from added ∪ modified.
type SchemaDelta struct {
	Added           []schema.Node     `json:"added"`
	Modified        []schema.Node     `json:"modified"`
	Removed         []string          `json:"removed"`
	MetadataChanges *MetadataChanges  `json:"metadataChanges,omitempty"`
}

// ChangeCount is the total number of added+modified+removed entries,
// the quantity strategy selection thresholds against.
func (d SchemaDelta) ChangeCount() int {
	return len(d.Added) + len(d.Modified) + len(d.Removed)
}

// IncrementalThreshold is the change-count ceiling above which a Full
// update is issued instead of an Incremental one.
const IncrementalThreshold = 10

// Compute builds the SchemaDelta between oldSchema and newSchema. The
// algorithm is O(N+M) in node count: it builds flat id indexes over both
// schemas in a single traversal each, then classifies every new-schema
// node as added or (if present in old and unequal) modified, and every
// old-schema id absent from new as removed.
//
// Compute is pure and total; it never fails.
func Compute(oldSchema, newSchema schema.Schema) SchemaDelta {
	oldByID := schema.Flatten(oldSchema)
	newByID := schema.Flatten(newSchema)

	var d SchemaDelta
	for id, n := range newByID {
		if old, ok := oldByID[id]; !ok {
			d.Added = append(d.Added, n)
		} else if !schema.NodeEqual(old, n) {
			d.Modified = append(d.Modified, n)
		}
	}
	for id := range oldByID {
		if _, ok := newByID[id]; !ok {
			d.Removed = append(d.Removed, id)
		}
	}

	d.MetadataChanges = computeMetadataChanges(oldSchema.Metadata, newSchema.Metadata)
	return d
}

func computeMetadataChanges(oldMeta, newMeta schema.Metadata) *MetadataChanges {
	var changes MetadataChanges
	changed := false

	if oldMeta.Version != newMeta.Version {
		v := newMeta.Version
		changes.Version = &v
		changed = true
	}
	if !schema.CanonicalEqual(oldMeta.Theme, newMeta.Theme) {
		changes.Theme = newMeta.Theme
		changed = true
	}
	if !schema.CanonicalEqual(oldMeta.Navigation, newMeta.Navigation) {
		changes.Navigation = newMeta.Navigation
		changed = true
	}

	if !changed {
		return nil
	}
	return &changes
}

// ShouldUseIncremental reports whether delta is small enough, and free of
// navigation changes, to send as an Incremental update rather than a Full
// one. Navigation changes always force Full regardless of change count.
func ShouldUseIncremental(d SchemaDelta) bool {
	if d.MetadataChanges != nil && d.MetadataChanges.Navigation != nil {
		return false
	}
	count := d.ChangeCount()
	return count > 0 && count < IncrementalThreshold
}

// Apply reconstructs the new schema from base plus d. It is the inverse of
// Compute restricted to what SchemaDelta actually records: every Added and
// Modified node in a delta produced by Compute is already a self-contained
// subtree copied verbatim from the new schema (schema.Flatten walks the full
// tree, so a changed interior node carries its own up-to-date children), so
// Apply only needs to substitute those subtrees into base's node tree and
// drop Removed ids — it never needs to recurse into a replaced node's own
// children.
//
// Root-list membership and order are not explicitly modeled by SchemaDelta:
// a node added or removed at top level is visible only as an entry in
// Added/Removed, with no positional information. Apply's best effort is to
// keep base's root order, drop removed roots, substitute modified roots in
// place, and append any Added node that names no existing parent in base (as
// best determined by it not already appearing, at any depth, in the tree
// after substitution) at the end of the root list. This matches every scenario in the schema's test
// fixtures, which only ever modify properties of an existing root; it is not
// a complete model of root reordering.
func Apply(base schema.Schema, d SchemaDelta) (schema.Schema, error) {
	removed := make(map[string]bool, len(d.Removed))
	for _, id := range d.Removed {
		removed[id] = true
	}

	replace := make(map[string]schema.Node, len(d.Added)+len(d.Modified))
	for _, n := range d.Added {
		replace[n.ID] = n
	}
	for _, n := range d.Modified {
		replace[n.ID] = n
	}

	var substitute func(n schema.Node) (schema.Node, bool)
	substitute = func(n schema.Node) (schema.Node, bool) {
		if removed[n.ID] {
			return schema.Node{}, false
		}
		if repl, ok := replace[n.ID]; ok {
			return repl, true
		}
		out := n
		if len(n.Children) > 0 {
			children := make([]schema.Node, 0, len(n.Children))
			for _, c := range n.Children {
				if nc, keep := substitute(c); keep {
					children = append(children, nc)
				}
			}
			out.Children = children
		}
		return out, true
	}

	nodes := make([]schema.Node, 0, len(base.Nodes)+len(d.Added))
	for _, root := range base.Nodes {
		if n, keep := substitute(root); keep {
			nodes = append(nodes, n)
		}
	}
	placed := schema.Flatten(schema.Schema{Nodes: nodes})
	for _, n := range d.Added {
		if _, alreadyPresent := placed[n.ID]; !alreadyPresent {
			nodes = append(nodes, n)
		}
	}

	meta := base.Metadata
	if d.MetadataChanges != nil {
		if d.MetadataChanges.Version != nil {
			meta.Version = *d.MetadataChanges.Version
		}
		if d.MetadataChanges.Theme != nil {
			meta.Theme = d.MetadataChanges.Theme
		}
		if d.MetadataChanges.Navigation != nil {
			meta.Navigation = d.MetadataChanges.Navigation
		}
	}

	return schema.Schema{Metadata: meta, Nodes: nodes}, nil
}
