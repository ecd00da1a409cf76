// Package iface defines the external-collaborator contract from spec
// section 6: the interfaces the engine consumes (InputIterator,
// OutputWriter, JoinMapImpl) and the structure the query compiler is
// expected to produce (CompiledQuery) — the code-generation boundary
// between the parser this core deliberately excludes and the execution
// core itself.
//
// The push-callback shape (SetRecordCallback / SetFinishCallback / Start /
// Finish) is translated from the teacher's pull-based DbIterator
// (Open/HasNext/Next/Close in pkg/iterator) because spec section 5 mandates
// a single-threaded push pipeline driven by the input source, not a
// volcano-style pull tree.
package iface

import "rbql/pkg/value"

// InputIterator is consumed by the engine to receive the input record
// stream.
type InputIterator interface {
	// SetRecordCallback registers the function the iterator invokes once
	// per input record. Returning a non-nil error from fn is propagated
	// back through the iterator as a query-terminating failure.
	SetRecordCallback(fn func(rec value.Record) error)

	// SetFinishCallback registers the function invoked once the iterator
	// has no more records (or has been asked to stop via Finish).
	SetFinishCallback(fn func())

	// Start begins driving the record callback. May return before all
	// records have been delivered if the iterator drives asynchronously;
	// completion is always signaled through the finish callback.
	Start() error

	// Finish tells the iterator to stop delivering further records and to
	// invoke the finish callback once drained. Called by the driver both
	// on a writer-signaled stop and on a terminal error.
	Finish()

	// GetWarnings returns any non-fatal warnings accumulated while
	// reading (e.g. malformed rows that were skipped).
	GetWarnings() []string
}

// OutputWriter is the terminal sink of the writer chain (spec section 6).
type OutputWriter interface {
	// Write emits one output record. Returning false signals that the
	// sink is saturated and the pipeline should stop.
	Write(rec value.Record) (bool, error)

	// Finish flushes any buffered output and invokes afterFinish once
	// done.
	Finish(afterFinish func())

	// GetWarnings returns any non-fatal warnings accumulated while
	// writing.
	GetWarnings() []string
}

// JoinMapImpl is the external collaborator exposing a JoinMap build phase
// (spec section 6). The table-scan logic that fills it is explicitly out
// of scope for this core; only the callback-driven build protocol and the
// keyed-lookup surface are consumed.
type JoinMapImpl interface {
	// Build loads the right-hand-side table, invoking exactly one of
	// onSuccess/onError when done.
	Build(onSuccess func(), onError func(error))

	// GetJoinRecords returns every right-hand record whose join key
	// equals key.
	GetJoinRecords(key string) []value.Record

	// MaxRecordLen returns the width used to synthesize a null-filled
	// right-hand record for LEFT JOIN when no match exists.
	MaxRecordLen() int

	// GetWarnings returns any non-fatal warnings accumulated while
	// building the map.
	GetWarnings() []string
}

// JoinOperation identifies which of the four joiner variants a compiled
// query selects.
type JoinOperation int

const (
	JoinVoid JoinOperation = iota
	JoinInner
	JoinLeft
	JoinStrictLeft
)

// WriterKind identifies the innermost non-Top writer a compiled query
// selects (spec section 6, writer_type).
type WriterKind int

const (
	WriterSimple WriterKind = iota
	WriterUniq
	WriterUniqCount
)

// WhereExpression evaluates the WHERE clause against the current row
// context (left fields, optional right-hand record, NF/NR/NU). Returning
// false skips the row.
type WhereExpression func(ctx *RowContext) (bool, error)

// SelectExpression evaluates the SELECT clause, producing the output
// fields for one row. Individual AggToken/UnnestMarker values may appear
// among the results; the engine interprets them per spec sections 4.4 and
// 4.6.
type SelectExpression func(ctx *RowContext) ([]value.Value, error)

// UpdateStatements applies the UPDATE clause's assignments directly to
// ctx.UpFields via value.SafeSet, returning an error on out-of-range
// targets.
type UpdateStatements func(ctx *RowContext) error

// AggregationKeyExpression derives the GROUP BY key for the current row.
// A nil AggregationKey (no GROUP BY) puts every row in the single default
// group; a key whose value is nil is its own group like any other value.
type AggregationKeyExpression func(ctx *RowContext) (value.Scalar, error)

// SortKeyExpression derives the leading ORDER BY key components for the
// current output row (before the NR tiebreaker is appended).
type SortKeyExpression func(ctx *RowContext, outFields []value.Scalar) ([]value.Scalar, error)

// LHSJoinVarExpression derives the left-hand join key for the current
// left record.
type LHSJoinVarExpression func(leftFields value.Record) (string, error)

// RowContext carries everything a compiled expression needs to evaluate
// one (left, right) row pairing.
type RowContext struct {
	LeftFields value.Record
	RHSRecord  value.Record // nil when there is no join; a record of nil fields for a LEFT JOIN null fill
	StarFields value.Record // LeftFields ++ RHSRecord, precomputed by the engine
	UpFields   value.Record // UPDATE target, aliases LeftFields's backing array
	NF         int
	NR         int64
	NU         int64
}

// CompiledQuery is the code-generation contract between the excluded query
// compiler and this execution core (spec section 6).
type CompiledQuery struct {
	IsSelectQuery bool

	Where            WhereExpression
	Select           SelectExpression
	Update           UpdateStatements
	AggregationKey   AggregationKeyExpression
	SortKey          SortKeyExpression
	LHSJoinVar       LHSJoinVarExpression

	JoinOperation JoinOperation
	WriterKind    WriterKind

	SortFlag    bool
	ReverseFlag bool
	TopCount    int // 0 means unlimited
}
