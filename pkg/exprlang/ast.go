package exprlang

import "rbql/pkg/value"

// compiledExpr is what the parser produces for every expr node: a closure
// over the active row context that yields a value.Value (a plain Scalar,
// an AggToken when the expression is an aggregate call, or an UnnestMarker
// for a top-level UNNEST(...) SELECT item).
type compiledExpr func(rc *evalContext) (value.Value, error)
