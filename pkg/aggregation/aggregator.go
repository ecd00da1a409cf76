// Package aggregation implements the engine's eight aggregator kinds plus
// the ConstGroupVerifier used for non-aggregated output columns in an
// aggregate query (spec section 3, "Aggregator (variant)").
//
// Every aggregator shares the same contract: Increment folds one row's
// contributed value into a group's partial state, and GetFinal produces the
// group's final emitted value once all rows have been seen. Group keys are
// canonical strings produced by value.CanonicalKey; "" designates the
// single default group (spec section 3, "Group key").
//
// The interface shape and the per-group state-map pattern are grounded on
// the teacher's pkg/execution/aggregation package (Aggregator interface,
// AggregateOp enum with a String() method).
package aggregation

import (
	"fmt"

	"rbql/pkg/rbqlerror"
	"rbql/pkg/value"
)

// Op identifies which aggregate function an Aggregator instance computes.
type Op int

const (
	Min Op = iota
	Max
	Sum
	Avg
	Variance
	Median
	Count
	ArrayAgg
)

// String renders the operation name as it would appear in an RBQL query.
func (op Op) String() string {
	switch op {
	case Min:
		return "MIN"
	case Max:
		return "MAX"
	case Sum:
		return "SUM"
	case Avg:
		return "AVG"
	case Variance:
		return "VARIANCE"
	case Median:
		return "MEDIAN"
	case Count:
		return "COUNT"
	case ArrayAgg:
		return "ARRAY_AGG"
	default:
		return "UNKNOWN"
	}
}

// Aggregator is the uniform contract every aggregate-function variant
// implements.
type Aggregator interface {
	// Increment folds contributed into the named group's partial state.
	// Count ignores contributed and always increments by one (spec
	// section 9: "CountAggregator.increment ignores nulls-vs-values
	// semantics; all rows in the group count, matching COUNT(*)").
	Increment(groupKey string, contributed value.Scalar) error

	// GetFinal produces the final value for the named group. Calling
	// GetFinal for a group that never received an Increment is only valid
	// for the default group after InitializeDefault (COUNT(*) with zero
	// rows still reports 0).
	GetFinal(groupKey string) (value.Scalar, error)

	// Groups returns every group key that has received at least one
	// Increment, in arbitrary order; AggregateWriter sorts them before
	// emission (spec section 4.4, "On finish").
	Groups() []string
}

type minMaxAggregator struct {
	isMax  bool
	values map[string]float64
	seen   map[string]bool
}

// NewMin constructs a MIN aggregator.
func NewMin() Aggregator { return &minMaxAggregator{values: map[string]float64{}, seen: map[string]bool{}} }

// NewMax constructs a MAX aggregator.
func NewMax() Aggregator {
	return &minMaxAggregator{isMax: true, values: map[string]float64{}, seen: map[string]bool{}}
}

func (a *minMaxAggregator) Increment(groupKey string, contributed value.Scalar) error {
	f, err := value.ParseNumber(contributed)
	if err != nil {
		return rbqlerror.NewRuntimeError("%v", err)
	}
	if !a.seen[groupKey] {
		a.values[groupKey] = f
		a.seen[groupKey] = true
		return nil
	}
	if (a.isMax && f > a.values[groupKey]) || (!a.isMax && f < a.values[groupKey]) {
		a.values[groupKey] = f
	}
	return nil
}

func (a *minMaxAggregator) GetFinal(groupKey string) (value.Scalar, error) {
	if !a.seen[groupKey] {
		return value.Scalar{V: nil}, nil
	}
	return value.Scalar{V: a.values[groupKey]}, nil
}

func (a *minMaxAggregator) Groups() []string {
	return keysOf(a.seen)
}

type sumAggregator struct {
	sums map[string]float64
	seen map[string]bool
}

// NewSum constructs a SUM aggregator.
func NewSum() Aggregator { return &sumAggregator{sums: map[string]float64{}, seen: map[string]bool{}} }

func (a *sumAggregator) Increment(groupKey string, contributed value.Scalar) error {
	f, err := value.ParseNumber(contributed)
	if err != nil {
		return rbqlerror.NewRuntimeError("%v", err)
	}
	a.sums[groupKey] += f
	a.seen[groupKey] = true
	return nil
}

func (a *sumAggregator) GetFinal(groupKey string) (value.Scalar, error) {
	return value.Scalar{V: a.sums[groupKey]}, nil
}

func (a *sumAggregator) Groups() []string { return keysOf(a.seen) }

type avgAggregator struct {
	sums   map[string]float64
	counts map[string]int64
}

// NewAvg constructs an AVG aggregator. State is (sum, count); GetFinal
// divides lazily.
func NewAvg() Aggregator {
	return &avgAggregator{sums: map[string]float64{}, counts: map[string]int64{}}
}

func (a *avgAggregator) Increment(groupKey string, contributed value.Scalar) error {
	f, err := value.ParseNumber(contributed)
	if err != nil {
		return rbqlerror.NewRuntimeError("%v", err)
	}
	a.sums[groupKey] += f
	a.counts[groupKey]++
	return nil
}

func (a *avgAggregator) GetFinal(groupKey string) (value.Scalar, error) {
	n := a.counts[groupKey]
	if n == 0 {
		return value.Scalar{V: nil}, nil
	}
	return value.Scalar{V: a.sums[groupKey] / float64(n)}, nil
}

func (a *avgAggregator) Groups() []string { return keysOf(a.counts) }

type varianceAggregator struct {
	sums   map[string]float64
	sumSqs map[string]float64
	counts map[string]int64
}

// NewVariance constructs a VARIANCE aggregator computing the population
// variance E[x^2] - (E[x])^2 (spec section 3).
func NewVariance() Aggregator {
	return &varianceAggregator{sums: map[string]float64{}, sumSqs: map[string]float64{}, counts: map[string]int64{}}
}

func (a *varianceAggregator) Increment(groupKey string, contributed value.Scalar) error {
	f, err := value.ParseNumber(contributed)
	if err != nil {
		return rbqlerror.NewRuntimeError("%v", err)
	}
	a.sums[groupKey] += f
	a.sumSqs[groupKey] += f * f
	a.counts[groupKey]++
	return nil
}

func (a *varianceAggregator) GetFinal(groupKey string) (value.Scalar, error) {
	n := a.counts[groupKey]
	if n == 0 {
		return value.Scalar{V: nil}, nil
	}
	mean := a.sums[groupKey] / float64(n)
	meanSq := a.sumSqs[groupKey] / float64(n)
	v := meanSq - mean*mean
	if v < 0 && v > -1e-9 {
		v = 0 // guard against floating point noise producing a tiny negative variance
	}
	return value.Scalar{V: v}, nil
}

func (a *varianceAggregator) Groups() []string { return keysOf(a.counts) }

type medianAggregator struct {
	buffered map[string][]float64
}

// NewMedian constructs a MEDIAN aggregator. It is one of the two variants
// (with ArrayAgg) that must buffer every contributed value, sorting on
// finalize (spec section 3).
func NewMedian() Aggregator {
	return &medianAggregator{buffered: map[string][]float64{}}
}

func (a *medianAggregator) Increment(groupKey string, contributed value.Scalar) error {
	f, err := value.ParseNumber(contributed)
	if err != nil {
		return rbqlerror.NewRuntimeError("%v", err)
	}
	a.buffered[groupKey] = append(a.buffered[groupKey], f)
	return nil
}

func (a *medianAggregator) GetFinal(groupKey string) (value.Scalar, error) {
	vals, ok := a.buffered[groupKey]
	if !ok || len(vals) == 0 {
		return value.Scalar{V: nil}, nil
	}
	return value.Scalar{V: value.SortMedian(vals)}, nil
}

func (a *medianAggregator) Groups() []string { return keysOf(a.buffered) }

type countAggregator struct {
	counts map[string]int64
}

// NewCount constructs a COUNT aggregator. Per spec section 9, it always
// increments by one regardless of the contributed value, matching
// COUNT(*) rather than a null-excluding COUNT(expr).
func NewCount() Aggregator { return &countAggregator{counts: map[string]int64{}} }

func (a *countAggregator) Increment(groupKey string, _ value.Scalar) error {
	a.counts[groupKey]++
	return nil
}

func (a *countAggregator) GetFinal(groupKey string) (value.Scalar, error) {
	return value.Scalar{V: a.counts[groupKey]}, nil
}

func (a *countAggregator) Groups() []string { return keysOf(a.counts) }

// InitializeDefault seeds the default ("") group with a zero count so that
// GetFinal("") reports 0 for a COUNT that received no rows. The engine
// does not call it: an aggregate query over an empty input emits no row.
func (a *countAggregator) InitializeDefault() {
	if _, ok := a.counts[""]; !ok {
		a.counts[""] = 0
	}
}

// PostProcessor transforms a finalized ArrayAgg list into its emitted
// scalar. The default joins with "|".
type PostProcessor func([]value.Scalar) value.Scalar

// DefaultArrayAggJoin joins the buffered values with "|", the default
// ArrayAgg post-processor (spec section 3).
func DefaultArrayAggJoin(vals []value.Scalar) value.Scalar {
	s := ""
	for i, v := range vals {
		if i > 0 {
			s += "|"
		}
		s += v.String()
	}
	return value.Scalar{V: s}
}

type arrayAggAggregator struct {
	buffered map[string][]value.Scalar
	post     PostProcessor
}

// NewArrayAgg constructs an ARRAY_AGG aggregator with the given
// finalization post-processor; pass nil to use DefaultArrayAggJoin.
func NewArrayAgg(post PostProcessor) Aggregator {
	if post == nil {
		post = DefaultArrayAggJoin
	}
	return &arrayAggAggregator{buffered: map[string][]value.Scalar{}, post: post}
}

func (a *arrayAggAggregator) Increment(groupKey string, contributed value.Scalar) error {
	a.buffered[groupKey] = append(a.buffered[groupKey], contributed)
	return nil
}

func (a *arrayAggAggregator) GetFinal(groupKey string) (value.Scalar, error) {
	return a.post(a.buffered[groupKey]), nil
}

func (a *arrayAggAggregator) Groups() []string { return keysOf(a.buffered) }

// ConstGroupVerifier stands in for a non-aggregated output column in an
// aggregate query. It asserts that every row within a group produced the
// same value at that column; any discrepancy raises a RuntimeError naming
// the 1-based output column (spec section 3).
type ConstGroupVerifier struct {
	column int // 1-based output column, for error messages
	values map[string]value.Scalar
}

// NewConstGroupVerifier constructs a verifier for the given 1-based output
// column index.
func NewConstGroupVerifier(column int) *ConstGroupVerifier {
	return &ConstGroupVerifier{column: column, values: map[string]value.Scalar{}}
}

// Increment checks contributed against the group's previously recorded
// value, recording it on first sight.
func (v *ConstGroupVerifier) Increment(groupKey string, contributed value.Scalar) error {
	prev, ok := v.values[groupKey]
	if !ok {
		v.values[groupKey] = contributed
		return nil
	}
	if fmt.Sprint(prev.V) != fmt.Sprint(contributed.V) {
		return rbqlerror.NewRuntimeError(
			"Invalid aggregate expression: non-constant value in output column %d within the same group", v.column)
	}
	return nil
}

// GetFinal returns the group's recorded constant value.
func (v *ConstGroupVerifier) GetFinal(groupKey string) (value.Scalar, error) {
	return v.values[groupKey], nil
}

// Groups returns every group key seen by this verifier.
func (v *ConstGroupVerifier) Groups() []string { return keysOf(v.values) }

func keysOf[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
