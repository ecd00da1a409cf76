package writer

import (
	"sort"

	"rbql/pkg/aggregation"
	"rbql/pkg/value"
)

// AggregateWriter replaces the writer in use once the engine detects the
// first aggregated row (spec section 4.4). It owns one Aggregator (or
// ConstGroupVerifier) per output column; Write folds the row's
// per-position contributed values into the matching aggregator's group
// state, and Finish sorts every group key lexicographically and emits
// [agg[0].GetFinal(k), agg[1].GetFinal(k), ...] for each, in that order.
type AggregateWriter struct {
	next        Writer
	aggregators []aggregation.Aggregator
}

// NewAggregateWriter wraps next with the given per-column aggregators,
// ordered to match the SELECT clause's output columns.
func NewAggregateWriter(next Writer, aggregators []aggregation.Aggregator) *AggregateWriter {
	return &AggregateWriter{next: next, aggregators: aggregators}
}

// Increment folds one row's per-position contributed values into every
// aggregator, keyed by groupKey. Called by the engine once per aggregated
// row instead of Write, since an aggregated row never produces output
// immediately (spec section 4.4, "Stage 2").
func (w *AggregateWriter) Increment(groupKey string, values []value.Scalar) error {
	for i, agg := range w.aggregators {
		if err := agg.Increment(groupKey, values[i]); err != nil {
			return err
		}
	}
	return nil
}

// Write exists so AggregateWriter satisfies Writer; the engine always uses
// Increment for aggregated rows, so Write is unreached in normal operation.
// It forwards rec's fields into the default group "" for symmetry with the
// rest of the chain.
func (w *AggregateWriter) Write(rec value.Record) (bool, error) {
	if err := w.Increment("", rec); err != nil {
		return false, err
	}
	return true, nil
}

// Finish sorts every group key seen by any of the aggregators (all
// aggregators in a single query see the same set of group keys, since they
// are fed the same rows) and emits one output record per group.
func (w *AggregateWriter) Finish(after func()) error {
	keys := collectGroupKeys(w.aggregators)
	sort.Strings(keys)

	for _, k := range keys {
		out := make(value.Record, len(w.aggregators))
		for i, agg := range w.aggregators {
			v, err := agg.GetFinal(k)
			if err != nil {
				return err
			}
			out[i] = v
		}
		if ok, err := w.next.Write(out); err != nil {
			return err
		} else if !ok {
			break
		}
	}
	return w.next.Finish(after)
}

func collectGroupKeys(aggregators []aggregation.Aggregator) []string {
	seen := map[string]struct{}{}
	for _, agg := range aggregators {
		for _, k := range agg.Groups() {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	return out
}
