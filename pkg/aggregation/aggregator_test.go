package aggregation

import (
	"testing"

	"rbql/pkg/value"
)

func sc(v any) value.Scalar { return value.Scalar{V: v} }

func TestSumMatchesScalarRecomputation(t *testing.T) {
	a := NewSum()
	rows := []float64{1, 2, 3, 4}
	for _, r := range rows {
		if err := a.Increment("g", sc(r)); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	got, err := a.GetFinal("g")
	if err != nil {
		t.Fatalf("get final: %v", err)
	}
	if got.V.(float64) != 10 {
		t.Fatalf("sum = %v, want 10", got.V)
	}
}

func TestMinMax(t *testing.T) {
	min, max := NewMin(), NewMax()
	for _, v := range []float64{5, 1, 9, 3} {
		min.Increment("g", sc(v))
		max.Increment("g", sc(v))
	}
	gotMin, _ := min.GetFinal("g")
	gotMax, _ := max.GetFinal("g")
	if gotMin.V.(float64) != 1 || gotMax.V.(float64) != 9 {
		t.Fatalf("min=%v max=%v, want 1/9", gotMin.V, gotMax.V)
	}
}

func TestAvg(t *testing.T) {
	a := NewAvg()
	for _, v := range []float64{2, 4, 6} {
		a.Increment("g", sc(v))
	}
	got, _ := a.GetFinal("g")
	if got.V.(float64) != 4 {
		t.Fatalf("avg = %v, want 4", got.V)
	}
}

func TestPopulationVariance(t *testing.T) {
	a := NewVariance()
	// values 2,4,4,4,5,5,7,9 -> population variance is 4 (textbook example)
	for _, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		a.Increment("g", sc(v))
	}
	got, _ := a.GetFinal("g")
	if diff := got.V.(float64) - 4; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("variance = %v, want 4", got.V)
	}
}

func TestMedianOddAndEven(t *testing.T) {
	odd := NewMedian()
	for _, v := range []float64{3, 1, 2} {
		odd.Increment("g", sc(v))
	}
	got, _ := odd.GetFinal("g")
	if got.V.(float64) != 2 {
		t.Fatalf("median(odd) = %v, want 2", got.V)
	}

	even := NewMedian()
	for _, v := range []float64{1, 2, 3, 4} {
		even.Increment("g", sc(v))
	}
	got, _ = even.GetFinal("g")
	if got.V.(float64) != 2.5 {
		t.Fatalf("median(even) = %v, want 2.5", got.V)
	}
}

func TestCountMatchesRowsPerGroup(t *testing.T) {
	a := NewCount()
	for i := 0; i < 5; i++ {
		if err := a.Increment("g", sc(nil)); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	got, _ := a.GetFinal("g")
	if got.V.(int64) != 5 {
		t.Fatalf("count = %v, want 5", got.V)
	}
}

func TestCountInitializeDefaultReportsZero(t *testing.T) {
	a := NewCount().(*countAggregator)
	a.InitializeDefault()
	got, _ := a.GetFinal("")
	if got.V.(int64) != 0 {
		t.Fatalf("count on empty input = %v, want 0", got.V)
	}
}

func TestArrayAggDefaultJoin(t *testing.T) {
	a := NewArrayAgg(nil)
	a.Increment("g", sc("x"))
	a.Increment("g", sc("y"))
	got, _ := a.GetFinal("g")
	if got.V.(string) != "x|y" {
		t.Fatalf("array_agg = %v, want x|y", got.V)
	}
}

func TestConstGroupVerifierAcceptsConstantRejectsVariable(t *testing.T) {
	v := NewConstGroupVerifier(2)
	if err := v.Increment("g", sc("a")); err != nil {
		t.Fatalf("first increment should not fail: %v", err)
	}
	if err := v.Increment("g", sc("a")); err != nil {
		t.Fatalf("repeated constant value should not fail: %v", err)
	}
	if err := v.Increment("g", sc("b")); err == nil {
		t.Fatalf("expected error for non-constant value within a group")
	}
}

func TestSumRejectsNonNumericInput(t *testing.T) {
	a := NewSum()
	if err := a.Increment("g", sc("not-a-number")); err == nil {
		t.Fatalf("expected a RuntimeError for non-numeric SUM input")
	}
}
