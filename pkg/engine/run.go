package engine

import (
	"rbql/pkg/iface"
	"rbql/pkg/join"
	"rbql/pkg/rbqlerror"
	"rbql/pkg/value"
	"rbql/pkg/writer"
)

// Run is the execution core's entry point (spec section 6): it builds one
// ExecutionContext for the given compiled query, assembles the writer
// chain and joiner per the query's flags, and wires the input iterator's
// callbacks to the record driver before starting it.
//
// joinMapImpl is nil for queries with no JOIN clause (query.JoinOperation
// == iface.JoinVoid); otherwise its Build is invoked first so record
// delivery from input only begins once the right-hand table has loaded.
func Run(
	query *iface.CompiledQuery,
	input iface.InputIterator,
	joinMapImpl iface.JoinMapImpl,
	output iface.OutputWriter,
	successCb func(warnings []string),
	errorCb func(kind, message string),
) error {
	ctx := &ExecutionContext{
		query:          query,
		input:          input,
		output:         output,
		successHandler: successCb,
		errorHandler:   errorCb,
	}

	if err := ctx.markUsed(); err != nil {
		reportModuleReused(err, errorCb)
		return err
	}

	ctx.writer = buildWriterChain(query, output, ctx)

	if query.JoinOperation == iface.JoinVoid {
		ctx.joiner = join.NewVoid()
		ctx.startInput()
		return nil
	}

	if joinMapImpl == nil {
		return rbqlerror.NewUnexpectedError(nil)
	}

	ctx.joiner = selectJoiner(query.JoinOperation, joinMapImpl)
	joinMapImpl.Build(
		func() {
			ctx.warnings = append(ctx.warnings, joinMapImpl.GetWarnings()...)
			ctx.startInput()
		},
		func(err error) {
			kind, message := rbqlerror.Classify(err, 0)
			ctx.finalizeOnce(func() {
				if ctx.errorHandler != nil {
					ctx.errorHandler(kind, message)
				}
			})
		},
	)
	return nil
}

// startInput registers the record driver's callbacks on the input
// iterator and starts delivery. Any error Start returns synchronously is
// treated as a terminal error the same way a record-processing error
// would be.
func (ctx *ExecutionContext) startInput() {
	ctx.input.SetRecordCallback(func(rec value.Record) error {
		ctx.ProcessRecord(rec)
		return nil
	})
	ctx.input.SetFinishCallback(ctx.onInputFinished)

	if err := ctx.input.Start(); err != nil {
		kind, message := rbqlerror.Classify(err, ctx.nr)
		ctx.finalizeOnce(func() {
			if ctx.errorHandler != nil {
				ctx.errorHandler(kind, message)
			}
		})
	}
}

// selectJoiner maps a compiled query's join operation to the matching
// Joiner constructor (spec section 4.2).
func selectJoiner(op iface.JoinOperation, m join.JoinMap) Joiner {
	switch op {
	case iface.JoinInner:
		return join.NewInner(m)
	case iface.JoinLeft:
		return join.NewLeft(m)
	case iface.JoinStrictLeft:
		return join.NewStrictLeft(m)
	default:
		return join.NewVoid()
	}
}

// buildWriterChain assembles the composable output stack (spec section
// 4.5): Top must be the innermost wrapper around the sink so LIMIT counts
// rows actually written to it, not rows a later DISTINCT/ORDER BY stage
// merely passed through or dropped; Uniq/UniqCount wrap Top so a dropped
// duplicate never consumes the LIMIT budget; Sorted, when ORDER BY is set,
// wraps everything else and is remembered on ctx so the row processors
// buffer into it via Push instead of calling Write directly. This mirrors
// the aggregation path, where AggregateWriter also replaces the writer in
// use by wrapping everything built here.
func buildWriterChain(query *iface.CompiledQuery, output iface.OutputWriter, ctx *ExecutionContext) writer.Writer {
	sink := writer.NewSinkWriter(output)

	var inner writer.Writer = sink
	if query.TopCount > 0 {
		inner = writer.NewTopWriter(inner, query.TopCount)
	}

	switch query.WriterKind {
	case iface.WriterUniq:
		inner = writer.NewUniqWriter(inner)
	case iface.WriterUniqCount:
		inner = writer.NewUniqCountWriter(inner)
	}

	if query.SortFlag {
		sorted := writer.NewSortedWriter(inner, query.ReverseFlag)
		ctx.sortedChain = sorted
		inner = sorted
	}

	return inner
}
