package engine

import (
	"rbql/pkg/iface"
	"rbql/pkg/rbqlerror"
	"rbql/pkg/value"
)

// processUpdate implements spec section 4.3's process_update: a JOIN
// resolving to more than one right-hand record per left record is a
// RuntimeError; zero matches simply means nothing to update against, so
// the row is emitted unchanged the same way a failed WHERE would leave
// it. With exactly one match, the compiled UPDATE statements run only if
// WHERE holds, mutating UpFields in place via value.SafeSet and
// incrementing NU — and the (possibly unmodified) left record is always
// re-emitted, since UPDATE never filters rows, only WHERE does.
func (ctx *ExecutionContext) processUpdate(rowCtx *iface.RowContext, rhsRecords []value.Record) (keepGoing bool, err error) {
	if len(rhsRecords) > 1 {
		return false, rbqlerror.NewRuntimeError(
			"More than one record in UPDATE query matched A-key in join table B")
	}

	rowCtx.UpFields = rowCtx.LeftFields

	if len(rhsRecords) == 1 {
		rowCtx.RHSRecord = rhsRecords[0]
		rowCtx.StarFields = starFields(rowCtx.LeftFields, rowCtx.RHSRecord)

		matched := true
		if ctx.query.Where != nil {
			matched, err = ctx.query.Where(rowCtx)
			if err != nil {
				return false, err
			}
		}

		if matched {
			if ctx.query.Update != nil {
				if err := ctx.query.Update(rowCtx); err != nil {
					return false, err
				}
			}
			ctx.mu.Lock()
			ctx.nu++
			ctx.mu.Unlock()
		}
	}

	return ctx.writer.Write(rowCtx.UpFields)
}
