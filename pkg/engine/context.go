// Package engine implements the execution core's record driver, the
// SELECT/UPDATE row processors, the two-phase aggregation state machine,
// and UNNEST expansion (spec sections 4.1, 4.3, 4.4, 4.6), wired together
// by Run (spec section 6, the entry point).
//
// All mutable state the reference engine keeps process-wide
// (aggregation_stage, functional_aggregators, unnest_list, NR, NU, writer,
// latches — spec section 9, "Process-wide mutable state") is folded here
// into one ExecutionContext value, created at Run and owned for the
// lifetime of a single query; reuse is rejected by a one-shot latch.
package engine

import (
	"sync"

	"rbql/pkg/aggregation"
	"rbql/pkg/iface"
	"rbql/pkg/join"
	"rbql/pkg/logging"
	"rbql/pkg/rbqlerror"
	"rbql/pkg/writer"
)

// aggregationStage tracks the two-phase detection scheme from spec section
// 4.4.
type aggregationStage int

const (
	stageNone aggregationStage = iota // no aggregation observed yet
	stageAggregated                   // first aggregated row has been processed; writer rewired
)

// ExecutionContext owns every piece of state a single query's execution
// needs, from construction at Run to the finish cascade. A context may be
// used for exactly one query: Run builds a fresh context on every call,
// and the context's one-shot latch (markUsed) rejects a second use of the
// same context with errModuleReused (spec section 5, "module_was_used_failsafe").
type ExecutionContext struct {
	mu sync.Mutex

	nr int64 // number of input records received so far
	nu int64 // number of records modified by UPDATE

	joiner Joiner
	query  *iface.CompiledQuery
	input  iface.InputIterator
	output iface.OutputWriter

	writer      writer.Writer
	sortedChain *writer.SortedWriter // non-nil only when SortFlag is set
	stage       aggregationStage
	aggregators []aggregation.Aggregator
	aggCount    int // number of AggToken positions seen on the first aggregated row

	used       bool
	terminated bool // true once a writer-signaled stop or an error has been decided
	finalized  bool // true once the external success/error callback has actually fired

	pendingErrKind string
	pendingErrMsg  string

	errorHandler   func(kind, message string)
	successHandler func(warnings []string)

	warnings []string
}

// Joiner is re-exported so engine callers don't need a direct dependency
// on the join package's exported names when only threading a Joiner
// through.
type Joiner = join.Joiner

// NR returns the number of input records received so far.
func (ctx *ExecutionContext) NR() int64 { return ctx.nr }

// NU returns the number of records modified by UPDATE so far.
func (ctx *ExecutionContext) NU() int64 { return ctx.nu }

// errModuleReused is the sentinel markUsed returns on a second call
// against the same context. Run recognizes it by identity and reports it
// directly as ("unexpected", "Module can only be used once") (spec
// section 5, "module_was_used_failsafe") instead of routing it through
// rbqlerror.Classify, whose generic UnexpectedError formatting is built
// for per-record failures and would print "At record: 0, Details: <nil>"
// for a condition detected before any record is processed.
var errModuleReused = rbqlerror.NewUnexpectedError(nil)

func (ctx *ExecutionContext) markUsed() error {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if ctx.used {
		return errModuleReused
	}
	ctx.used = true
	return nil
}

// reportModuleReused reports err through errorCb as the exact
// ("unexpected", "Module can only be used once") pair from spec section 5
// when err is errModuleReused, and is a no-op otherwise. Separated from
// markUsed's caller in Run so the translation is unit-testable on its own.
func reportModuleReused(err error, errorCb func(kind, message string)) {
	if err != errModuleReused || errorCb == nil {
		return
	}
	errorCb(rbqlerror.CategoryUnexpected.String(), "Module can only be used once")
}

// hasTerminated reports whether record processing has already been decided
// to stop, for the record driver's early-exit check (spec section 3, "For
// every input record, at most one success or one error terminal outcome is
// produced for the whole query").
func (ctx *ExecutionContext) hasTerminated() bool {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.terminated
}

// requestErrorStop latches the query as terminated-with-error on first
// call; later calls (from concurrent record deliveries racing the first
// error) are no-ops. Returns whether this call was the first.
func (ctx *ExecutionContext) requestErrorStop(kind, message string) bool {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if ctx.terminated {
		return false
	}
	ctx.terminated = true
	ctx.pendingErrKind = kind
	ctx.pendingErrMsg = message
	return true
}

// requestSuccessStop latches the query as terminated-without-error (a
// writer signaled saturation, or the input naturally ran out of records).
func (ctx *ExecutionContext) requestSuccessStop() bool {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if ctx.terminated {
		return false
	}
	ctx.terminated = true
	return true
}

// finalizeOnce guards the external success_cb/error_cb pair so exactly one
// of them fires exactly once for the whole query (spec section 8, property
// 1).
func (ctx *ExecutionContext) finalizeOnce(fn func()) {
	ctx.mu.Lock()
	if ctx.finalized {
		ctx.mu.Unlock()
		return
	}
	ctx.finalized = true
	ctx.mu.Unlock()
	fn()
}

func (ctx *ExecutionContext) logComponent(component string) {
	logging.WithComponent(component).Debug("stage", "value", ctx.stage, "nr", ctx.nr)
}
