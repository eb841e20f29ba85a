// Package schema defines the immutable UI schema tree and its canonical
// serialization. A Schema is the unit of content shuttled between server
// and device; two schemas are structurally equal iff their canonical JSON
// strings match.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Node is a typed element in the schema tree: a stable id, a type name,
// arbitrary JSON-valued props, and ordered children. Children order is
// semantic, not incidental.
type Node struct {
	ID       string                 `json:"id" validate:"required"`
	Type     string                 `json:"type" validate:"required"`
	Props    map[string]any         `json:"props,omitempty"`
	Children []Node                 `json:"children,omitempty"`
}

// Metadata carries the top-level fields of a Schema that are not part of
// the node tree itself.
type Metadata struct {
	Version    string `json:"version"`
	Theme      any    `json:"theme,omitempty"`
	Navigation any    `json:"navigation,omitempty"`
}

// Schema is an immutable tree of Nodes plus top-level metadata. The root
// may be a single Node or a list of root Nodes; both are represented here
// as Nodes (a synthetic root is not introduced).
type Schema struct {
	Metadata
	Nodes []Node `json:"nodes"`
}

// canonicalSchema mirrors Schema's shape. Checksum does not use it: it
// serializes the Schema itself. The wire-level timestamp lives on the
// message envelope, and Metadata has no timestamp field, so there is
// nothing to zero before hashing.
type canonicalSchema struct {
	Metadata
	Nodes []Node `json:"nodes"`
}

// Checksum computes the canonical checksum of a schema: serialize with
// object keys sorted lexicographically at every depth, then SHA-256 the
// UTF-8 bytes, hex-encoded. Content-equal schemas produce identical
// checksums regardless of field order.
func Checksum(s Schema) (string, error) {
	canonical, err := canonicalJSON(toCanonicalValue(s))
	if err != nil {
		return "", fmt.Errorf("schema: canonicalize: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// toCanonicalValue round-trips s through JSON so nested fields (Props,
// Theme, Navigation) become plain map[string]any/[]any, the representation
// canonicalJSON knows how to sort.
func toCanonicalValue(s Schema) any {
	raw, err := json.Marshal(s)
	if err != nil {
		// Schema fields are JSON-serializable by construction (json.Marshal
		// only fails on channels/funcs/cyclic maps, none of which appear here).
		panic(fmt.Sprintf("schema: unexpected marshal failure: %v", err))
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		panic(fmt.Sprintf("schema: unexpected unmarshal failure: %v", err))
	}
	return v
}

// canonicalJSON serializes v with map keys sorted at every depth.
func canonicalJSON(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var buf []byte
		buf = append(buf, '{')
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf = append(buf, kb...)
			buf = append(buf, ':')
			vb, err := canonicalJSON(val[k])
			if err != nil {
				return nil, err
			}
			buf = append(buf, vb...)
		}
		buf = append(buf, '}')
		return buf, nil
	case []any:
		var buf []byte
		buf = append(buf, '[')
		for i, item := range val {
			if i > 0 {
				buf = append(buf, ',')
			}
			ib, err := canonicalJSON(item)
			if err != nil {
				return nil, err
			}
			buf = append(buf, ib...)
		}
		buf = append(buf, ']')
		return buf, nil
	default:
		return json.Marshal(val)
	}
}

// CanonicalEqual reports whether two JSON-shaped values are equal under
// canonical serialization. Used by the delta engine for prop/metadata
// comparison so it shares one notion of "structural equality" with the
// checksum computation above.
func CanonicalEqual(a, b any) bool {
	ab, errA := canonicalJSON(a)
	bb, errB := canonicalJSON(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ab) == string(bb)
}

// NodeEqual is the fast-path structural equality check used by the delta
// engine: different type or children length short-circuits to unequal;
// otherwise prop sets are compared via canonical JSON equality and children
// are compared by id at the same index only. It does not recurse into
// grandchildren — delta.Compute classifies every node independently over
// the flattened id index, so a descendant change surfaces as that
// descendant's own modification rather than every ancestor's.
func NodeEqual(a, b Node) bool {
	if a.Type != b.Type {
		return false
	}
	if len(a.Children) != len(b.Children) {
		return false
	}
	if !CanonicalEqual(propsValue(a.Props), propsValue(b.Props)) {
		return false
	}
	for i := range a.Children {
		if a.Children[i].ID != b.Children[i].ID {
			return false
		}
	}
	return true
}

func propsValue(p map[string]any) any {
	if p == nil {
		return map[string]any{}
	}
	return p
}

// Flatten performs a flat traversal of every Node in the schema (not just
// roots) and returns a map keyed by Node id. Used by the delta engine to
// build oldById/newById indexes in a single pass.
func Flatten(s Schema) map[string]Node {
	out := make(map[string]Node)
	var walk func(n Node)
	walk = func(n Node) {
		out[n.ID] = n
		for _, c := range n.Children {
			walk(c)
		}
	}
	for _, root := range s.Nodes {
		walk(root)
	}
	return out
}
