// Package value defines the dynamic value model that flows through the RBQL
// record-processing core: plain scalars, the aggregation sentinel
// (AggToken), and the UNNEST sentinel (UnnestMarker).
//
// The reference engine this core re-implements is dynamically typed: an
// aggregate call such as MIN(a1) returns an opaque token object that is
// carried in place of a value until the row finishes evaluating, at which
// point the driver notices the token and redirects the row into the
// aggregation path. Composing that token with an operator (MIN(a1) + 1)
// must fail, because tokens cannot be meaningfully stringified or added.
//
// Value is the statically-typed equivalent: a closed tagged union with
// three variants. Arithmetic/string operators defined elsewhere in a real
// expression evaluator are expected to type-switch on Value and reject
// AggToken/UnnestMarker operands with a ParsingError.
package value

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"rbql/pkg/rbqlerror"
)

// Value is the dynamic value type carried through row expression
// evaluation. The three concrete implementations are Scalar, AggToken, and
// UnnestMarker.
type Value interface {
	// valueTag closes the union: only types in this package may implement
	// Value.
	valueTag()

	// String renders the value for canonical encoding / output. AggToken's
	// implementation panics by design (see AggToken.String) so a caller
	// that forgets to special-case aggregation tokens fails loudly instead
	// of silently embedding a nonsense string in output.
	String() string
}

// Scalar wraps an ordinary field value: string, float64, int64, bool, or
// nil. It is the only Value variant that can appear in a final output
// record.
type Scalar struct {
	V any
}

func (Scalar) valueTag() {}

// String renders the scalar using the canonical (non-quoted) textual form.
func (s Scalar) String() string {
	return scalarString(s.V)
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// AggToken is the sentinel produced by an aggregate function call (MIN,
// MAX, SUM, AVG, VARIANCE, MEDIAN, COUNT, ARRAY_AGG) during row expression
// evaluation. AggregatorIndex identifies which aggregator instance owns
// this call site (assigned per call site when the query is compiled,
// immutable thereafter); Kind names which aggregate function produced it,
// so the engine can materialize the matching aggregation.Aggregator
// without this package depending on the aggregation package; Contributed
// is the value that should be folded into that aggregator's group state
// for this row.
type AggToken struct {
	AggregatorIndex int
	Kind            AggKind
	Contributed     Scalar
}

// AggKind names one of the eight aggregate function kinds an AggToken can
// carry (spec section 3, "AggregationToken").
type AggKind int

const (
	AggMin AggKind = iota
	AggMax
	AggSum
	AggAvg
	AggVariance
	AggMedian
	AggCount
	AggArrayAgg
)

func (AggToken) valueTag() {}

// String always panics: converting an aggregation token to a string is how
// this engine enforces that aggregate results cannot be composed inside
// arithmetic/string expressions of the SELECT clause (spec section 3,
// AggregationToken). A real expression evaluator must recover this panic
// (or, better, type-switch and never call String on a token) and turn it
// into a ParsingError before it reaches the caller.
func (t AggToken) String() string {
	panic("rbql: aggregation token used outside of direct output position; " +
		"wrap the call site with a ParsingError before composing it")
}

// UnnestMarker is the sentinel placed into an output row at the position
// where UNNEST(list) was called. At most one may exist per row.
type UnnestMarker struct {
	List []Scalar
}

func (UnnestMarker) valueTag() {}

// String always panics for the same reason as AggToken.String: an unnest
// marker must be expanded by the row processor, never stringified.
func (UnnestMarker) String() string {
	panic("rbql: unnest marker used outside of output-row expansion")
}

// Record is an ordered sequence of field values.
type Record []Scalar

// NF returns the number of fields in the record.
func (r Record) NF() int {
	return len(r)
}

// SafeGet returns the value at the given 0-based index, or a nil Scalar
// when idx is out of bounds. Used by the "?" / optional field-access form
// for inputs whose width is not guaranteed.
func SafeGet(r Record, idx int) Scalar {
	if idx < 0 || idx >= len(r) {
		return Scalar{V: nil}
	}
	return r[idx]
}

// SafeJoinGet returns the value at the given 0-based index, or a
// *rbqlerror.BadFieldError when idx is out of bounds. Used for mandatory
// field references such as a5 or b3.
func SafeJoinGet(r Record, idx int) (Scalar, error) {
	if idx < 0 || idx >= len(r) {
		return Scalar{}, rbqlerror.NewBadFieldError(idx)
	}
	return r[idx], nil
}

// SafeSet writes value into the record at the given 1-based index,
// returning a *rbqlerror.BadFieldError(idx-1) when the index is out of
// bounds. Used by UPDATE assignment statements.
func SafeSet(r Record, idx1Based int, v Scalar) error {
	idx := idx1Based - 1
	if idx < 0 || idx >= len(r) {
		return rbqlerror.NewBadFieldError(idx)
	}
	r[idx] = v
	return nil
}

// NullFilledRecord returns a record of the given width whose every field is
// a nil Scalar. Used by LEFT JOIN to synthesize a right-hand side when no
// match exists.
func NullFilledRecord(width int) Record {
	r := make(Record, width)
	for i := range r {
		r[i] = Scalar{V: nil}
	}
	return r
}

// CanonicalKey produces a deterministic, total-order string encoding of a
// record's scalar values, suitable as a GROUP BY / DISTINCT key. It is a
// length-prefixed, type-tagged encoding (spec section 9, "Canonical keys"):
// each field is encoded as "<type-tag><length>:<bytes>;" so that no
// delimiter collision between fields or between records of different
// shapes can produce equal keys for unequal records.
func CanonicalKey(fields []Scalar) string {
	var b strings.Builder
	for _, f := range fields {
		tag, enc := canonicalField(f.V)
		fmt.Fprintf(&b, "%c%d:%s;", tag, len(enc), enc)
	}
	return b.String()
}

func canonicalField(v any) (tag byte, enc string) {
	switch t := v.(type) {
	case nil:
		return 'n', ""
	case string:
		return 's', t
	case bool:
		return 'b', strconv.FormatBool(t)
	case int:
		return 'i', strconv.Itoa(t)
	case int64:
		return 'i', strconv.FormatInt(t, 10)
	case float64:
		return 'f', strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return 's', fmt.Sprintf("%v", t)
	}
}

// Compare defines a total order between two scalars, per spec section 9's
// open question on cross-type sort comparison: numbers order before
// strings, strings order before booleans, booleans order before null;
// within a type, values compare naturally. It never errors, so a
// SortedWriter comparator built on it can never fail mid-sort.
func Compare(a, b Scalar) int {
	ra, ta := rank(a.V)
	rb, _ := rank(b.V)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ta {
	case rankNumber:
		fa, fb := asFloat(a.V), asFloat(b.V)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	case rankBool:
		ba, bb := a.V.(bool), b.V.(bool)
		if ba == bb {
			return 0
		}
		if !ba {
			return -1
		}
		return 1
	case rankNull:
		return 0
	default:
		return strings.Compare(scalarString(a.V), scalarString(b.V))
	}
}

type rankKind int

const (
	rankNumber rankKind = iota
	rankString
	rankBool
	rankNull
)

func rank(v any) (int, rankKind) {
	switch v.(type) {
	case nil:
		return 3, rankNull
	case int, int64, float64:
		return 0, rankNumber
	case bool:
		return 2, rankBool
	default:
		return 1, rankString
	}
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case float64:
		return t
	default:
		return 0
	}
}

// ParseNumber coerces a scalar to float64 for numeric aggregation,
// returning an error compatible with the engine's RuntimeError
// classification when the value cannot be interpreted as a number.
func ParseNumber(s Scalar) (float64, error) {
	switch t := s.V.(type) {
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case float64:
		return t, nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case nil:
		return 0, fmt.Errorf("unable to parse number: field is null")
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, fmt.Errorf("unable to parse number from %q", t)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unable to parse number from %v", t)
	}
}

// SortMedian returns the median of a buffered list of numbers (0 for an
// empty list), sorting a copy. It is only ever called from Median aggregator
// finalization, which is the one place that buffers raw values for a
// sort-on-finalize computation (spec section 4, "Aggregator (variant)").
func SortMedian(vals []float64) float64 {
	n := len(vals)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, vals)
	sort.Float64s(sorted)
	mid := n / 2
	if n%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
