package engine

import (
	"rbql/pkg/iface"
	"rbql/pkg/rbqlerror"
	"rbql/pkg/value"
)

// ProcessRecord is the record driver's entry point (spec section 4.1): on
// every call it increments NR, then — unless the query has already been
// decided to stop — delegates to doProcessRecord and classifies whatever
// error comes back.
func (ctx *ExecutionContext) ProcessRecord(rec value.Record) {
	ctx.mu.Lock()
	ctx.nr++
	nr := ctx.nr
	done := ctx.terminated
	ctx.mu.Unlock()

	if done {
		return
	}

	shouldStop, err := ctx.doProcessRecord(rec)
	if err != nil {
		ctx.terminateWithError(err, nr)
		return
	}
	if shouldStop {
		ctx.terminateWithSuccess()
	}
}

// doProcessRecord implements the three steps from spec section 4.1: derive
// the left-hand join key, fetch RHS records from the current joiner, and
// invoke the polymorphic row processor.
func (ctx *ExecutionContext) doProcessRecord(rec value.Record) (stop bool, err error) {
	leftKey := ""
	if ctx.query.LHSJoinVar != nil {
		leftKey, err = ctx.query.LHSJoinVar(rec)
		if err != nil {
			return false, err
		}
	}

	rhsRecords, err := ctx.joiner.GetRHS(leftKey)
	if err != nil {
		return false, err
	}

	rowCtx := &iface.RowContext{
		LeftFields: rec,
		NF:         rec.NF(),
		NR:         ctx.nr,
		NU:         ctx.nu,
	}

	if ctx.query.IsSelectQuery {
		keepGoing, err := ctx.processSelect(rowCtx, rhsRecords)
		return !keepGoing, err
	}
	keepGoing, err := ctx.processUpdate(rowCtx, rhsRecords)
	return !keepGoing, err
}

// terminateWithError classifies err per spec section 4.1's table and asks
// the input iterator to drain; the external error handler fires from
// onInputFinished once draining completes (spec section 4.1, "Errors are
// terminal; the driver calls the input iterator's finish to drain, then
// invokes the external error handler exactly once").
func (ctx *ExecutionContext) terminateWithError(err error, nr int64) {
	kind, message := rbqlerror.Classify(err, nr)
	if !ctx.requestErrorStop(kind, message) {
		return
	}
	ctx.finishInput()
}

// terminateWithSuccess asks the input iterator to drain after a writer
// signaled saturation (spec section 5, "Cancellation"): the writer-chain
// Finish cascade and the external success callback both fire from
// onInputFinished.
func (ctx *ExecutionContext) terminateWithSuccess() {
	if !ctx.requestSuccessStop() {
		return
	}
	ctx.finishInput()
}

// finishInput invokes the InputIterator's Finish method, set by Run, both
// on a writer-signaled stop and on a terminal error (spec section 4.1,
// "If the processor returns false... finishes the input iterator").
func (ctx *ExecutionContext) finishInput() {
	if ctx.input != nil {
		ctx.input.Finish()
	}
}

// onInputFinished is registered by Run as the InputIterator's finish
// callback. It fires whether the input ran out of records on its own or
// was asked to stop early, and performs exactly one of: invoke error_cb,
// or cascade writer.Finish and invoke success_cb (spec section 8,
// property 1: exactly one of success_cb/error_cb fires, exactly once).
func (ctx *ExecutionContext) onInputFinished() {
	ctx.mu.Lock()
	isErr := ctx.terminated && ctx.pendingErrKind != ""
	kind, message := ctx.pendingErrKind, ctx.pendingErrMsg
	ctx.mu.Unlock()

	if isErr {
		ctx.finalizeOnce(func() {
			if ctx.errorHandler != nil {
				ctx.errorHandler(kind, message)
			}
		})
		return
	}

	// The input ran to completion without anyone requesting a stop yet
	// (the common case: no LIMIT, no early writer saturation).
	ctx.requestSuccessStop()

	ctx.finalizeOnce(func() {
		warnings := ctx.collectWarnings()
		err := ctx.writer.Finish(func() {
			if ctx.successHandler != nil {
				ctx.successHandler(warnings)
			}
		})
		if err != nil {
			k, m := rbqlerror.Classify(err, ctx.nr)
			if ctx.errorHandler != nil {
				ctx.errorHandler(k, m)
			}
		}
	})
}

func (ctx *ExecutionContext) collectWarnings() []string {
	var out []string
	out = append(out, ctx.warnings...)
	if ctx.input != nil {
		out = append(out, ctx.input.GetWarnings()...)
	}
	if ctx.output != nil {
		out = append(out, ctx.output.GetWarnings()...)
	}
	return out
}
