package engine

import (
	"rbql/pkg/aggregation"
	"rbql/pkg/iface"
	"rbql/pkg/logging"
	"rbql/pkg/rbqlerror"
	"rbql/pkg/value"
	"rbql/pkg/writer"
)

// processSelect implements spec section 4.3's process_select: for each RHS
// record, build the star-fields view, evaluate WHERE, evaluate SELECT, and
// route the resulting row to the aggregated, unnested, or simple output
// path. Returns false if any writer signaled stop.
func (ctx *ExecutionContext) processSelect(rowCtx *iface.RowContext, rhsRecords []value.Record) (keepGoing bool, err error) {
	for _, rhs := range rhsRecords {
		rowCtx.RHSRecord = rhs
		rowCtx.StarFields = starFields(rowCtx.LeftFields, rhs)

		if ctx.query.Where != nil {
			ok, err := ctx.query.Where(rowCtx)
			if err != nil {
				return false, err
			}
			if !ok {
				continue
			}
		}

		outFields, err := ctx.query.Select(rowCtx)
		if err != nil {
			return false, err
		}

		aggPositions := findAggTokens(outFields)
		unnestPositions := findUnnestMarkers(outFields)

		switch {
		case len(aggPositions) > 0:
			if len(unnestPositions) > 0 {
				return false, rbqlerror.NewParsingError(
					"Unable to use both aggregation functions and UNNEST in the same query")
			}
			keep, err := ctx.selectAggregated(rowCtx, outFields, aggPositions)
			if err != nil || !keep {
				return keep, err
			}

		case len(unnestPositions) > 0:
			if len(unnestPositions) > 1 {
				return false, rbqlerror.NewParsingError("Only one UNNEST is allowed per query")
			}
			keep, err := ctx.selectUnnested(rowCtx, outFields, unnestPositions[0])
			if err != nil || !keep {
				return keep, err
			}

		default:
			keep, err := ctx.selectSimple(rowCtx, outFields)
			if err != nil || !keep {
				return keep, err
			}
		}
	}
	return true, nil
}

func starFields(left, rhs value.Record) value.Record {
	if rhs == nil {
		return left
	}
	out := make(value.Record, 0, len(left)+len(rhs))
	out = append(out, left...)
	out = append(out, rhs...)
	return out
}

func findAggTokens(fields []value.Value) []int {
	var positions []int
	for i, f := range fields {
		if _, ok := f.(value.AggToken); ok {
			positions = append(positions, i)
		}
	}
	return positions
}

func findUnnestMarkers(fields []value.Value) []int {
	var positions []int
	for i, f := range fields {
		if _, ok := f.(value.UnnestMarker); ok {
			positions = append(positions, i)
		}
	}
	return positions
}

// selectSimple emits a row with no aggregation and no UNNEST: straight to
// the writer chain (or buffered into the sort chain when ORDER BY is
// active).
func (ctx *ExecutionContext) selectSimple(rowCtx *iface.RowContext, outFields []value.Value) (bool, error) {
	scalars, err := toScalars(outFields)
	if err != nil {
		return false, err
	}
	return ctx.emit(rowCtx, scalars)
}

// selectUnnested cartesian-expands the row at the UNNEST position,
// emitting one row per element of the unnested list (spec section 4.6).
// Pipeline stop propagates and halts expansion.
func (ctx *ExecutionContext) selectUnnested(rowCtx *iface.RowContext, outFields []value.Value, pos int) (bool, error) {
	marker := outFields[pos].(value.UnnestMarker)
	base := make([]value.Value, len(outFields))
	copy(base, outFields)

	for _, elem := range marker.List {
		base[pos] = elem
		scalars, err := toScalars(base)
		if err != nil {
			return false, err
		}
		keep, err := ctx.emit(rowCtx, scalars)
		if err != nil || !keep {
			return keep, err
		}
	}
	return true, nil
}

// toScalars converts a fully evaluated output row (no remaining
// AggToken/UnnestMarker) to plain scalars. Any non-Scalar left in the row
// (an un-expanded marker or token) is reported as an UnexpectedError
// rather than stringified.
func toScalars(fields []value.Value) (value.Record, error) {
	out := make(value.Record, len(fields))
	for i, f := range fields {
		s, ok := f.(value.Scalar)
		if !ok {
			return nil, rbqlerror.NewUnexpectedError(nil)
		}
		out[i] = s
	}
	return out, nil
}

// emit routes one fully-built output record either into the sort buffer
// (ORDER BY) or directly into the writer chain.
func (ctx *ExecutionContext) emit(rowCtx *iface.RowContext, rec value.Record) (bool, error) {
	if ctx.sortedChain != nil {
		sortKeyFields, err := ctx.query.SortKey(rowCtx, rec)
		if err != nil {
			return false, err
		}
		key := append(append([]value.Scalar{}, sortKeyFields...), value.Scalar{V: rowCtx.NR})
		ctx.sortedChain.Push(key, rec)
		return true, nil
	}
	return ctx.writer.Write(rec)
}

// selectAggregated implements spec section 4.4's two-phase state machine.
// On the first aggregated row it rewires the writer chain into an
// AggregateWriter (stage transition) and validates the
// functional-aggregator-count constraint; on every subsequent aggregated
// row it only folds values into the already-constructed aggregators.
func (ctx *ExecutionContext) selectAggregated(rowCtx *iface.RowContext, outFields []value.Value, aggPositions []int) (bool, error) {
	if ctx.stage == stageNone {
		if err := ctx.enterAggregation(outFields, aggPositions); err != nil {
			return false, err
		}
	}

	groupKey := ""
	if ctx.query.AggregationKey != nil {
		gk, err := ctx.query.AggregationKey(rowCtx)
		if err != nil {
			return false, err
		}
		groupKey = value.CanonicalKey([]value.Scalar{gk})
	}

	values := make([]value.Scalar, len(outFields))
	for i, f := range outFields {
		switch v := f.(type) {
		case value.AggToken:
			values[i] = v.Contributed
		case value.Scalar:
			values[i] = v
		default:
			return false, rbqlerror.NewUnexpectedError(nil)
		}
	}

	aw, ok := ctx.writer.(*writer.AggregateWriter)
	if !ok {
		return false, rbqlerror.NewUnexpectedError(nil)
	}
	if err := aw.Increment(groupKey, values); err != nil {
		return false, err
	}
	return true, nil
}

// enterAggregation performs the stage-0-to-stage-1 transition (spec
// section 4.4, "Stage 1"): rejects DISTINCT and ORDER BY in an aggregate
// query with a ParsingError, validates that the number of AggToken positions
// matches the number of distinct aggregator call sites seen, then replaces
// the writer in use with an AggregateWriter wrapping one aggregator per
// AggToken position and a ConstGroupVerifier per remaining position.
func (ctx *ExecutionContext) enterAggregation(outFields []value.Value, aggPositions []int) error {
	if ctx.query.WriterKind != iface.WriterSimple || ctx.query.SortFlag {
		return rbqlerror.NewParsingError(
			"Unable to use DISTINCT or ORDER BY together with aggregation functions in the same query")
	}

	byIndex := map[int]value.AggKind{}
	for _, pos := range aggPositions {
		tok := outFields[pos].(value.AggToken)
		byIndex[tok.AggregatorIndex] = tok.Kind
	}

	if len(byIndex) != len(aggPositions) {
		// Two positions referencing the same call site, or a call site
		// composed into a larger expression that produced more than one
		// token, both indicate aggregate-function misuse inside another
		// expression (spec section 4.4, "Constraint check").
		return rbqlerror.NewParsingError(
			"Usage of RBQL aggregation functions inside JavaScript expressions is not allowed, see the docs")
	}

	aggregators := make([]aggregation.Aggregator, len(outFields))
	aggSet := map[int]bool{}
	for _, pos := range aggPositions {
		aggSet[pos] = true
	}

	for i := range outFields {
		if aggSet[i] {
			tok := outFields[i].(value.AggToken)
			aggregators[i] = newAggregatorForKind(tok.Kind)
		} else {
			aggregators[i] = aggregation.NewConstGroupVerifier(i + 1)
		}
	}

	ctx.aggregators = aggregators
	ctx.aggCount = len(aggPositions)
	ctx.writer = writer.NewAggregateWriter(ctx.writer, aggregators)
	ctx.stage = stageAggregated
	logging.WithComponent("engine.aggregation").Debug("entered aggregation stage", "columns", len(outFields))
	return nil
}

func newAggregatorForKind(k value.AggKind) aggregation.Aggregator {
	switch k {
	case value.AggMin:
		return aggregation.NewMin()
	case value.AggMax:
		return aggregation.NewMax()
	case value.AggSum:
		return aggregation.NewSum()
	case value.AggAvg:
		return aggregation.NewAvg()
	case value.AggVariance:
		return aggregation.NewVariance()
	case value.AggMedian:
		return aggregation.NewMedian()
	case value.AggArrayAgg:
		return aggregation.NewArrayAgg(nil)
	default: // value.AggCount
		return aggregation.NewCount()
	}
}
