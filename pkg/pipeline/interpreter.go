package pipeline

import (
	"github.com/reloadsync/reloadsync/pkg/delta"
	"github.com/reloadsync/reloadsync/pkg/schema"
)

// View is the opaque render snapshot an Interpreter produces. The pipeline
// never inspects it; it only threads it to callers via Results().
type View any

// Interpreter is the out-of-scope rendering collaborator: it turns a
// schema (or a delta against its own internal schema model) into a View.
// It is purely a function of its input plus its own opaque render
// context — it is never asked to own or return the canonical schema.
// currentSchema reconstruction from a delta is the pipeline's job
// (delta.Apply), not the interpreter's, per the single-writer resolution
// of the source's two-writer bug.
//
// preserveState is a hint, not a guarantee: an Interpreter that does not
// support state preservation may ignore it and rebuild its render context
// from scratch.
type Interpreter interface {
	// Interpret renders s as a full replacement of the interpreter's
	// internal model. When preserveState is true the interpreter should
	// keep its render-context variable map and attempt to re-bind widget
	// identity by node id rather than discarding it outright.
	Interpret(s schema.Schema, preserveState bool) (View, error)

	// ApplyDelta applies d to the interpreter's own internal schema
	// model (maintained independently of the pipeline's currentSchema,
	// though the two are kept in lockstep by applying the same deltas)
	// and renders the result.
	ApplyDelta(d delta.SchemaDelta, preserveState bool) (View, error)
}
