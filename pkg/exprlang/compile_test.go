package exprlang

import (
	"testing"

	"rbql/pkg/iface"
	"rbql/pkg/value"
)

func row(left value.Record) *iface.RowContext {
	return &iface.RowContext{LeftFields: left, NF: left.NF(), NR: 1}
}

func TestCompileSelectWithWhereFiltersRows(t *testing.T) {
	cq, _, err := Compile(`SELECT a1 WHERE a2 == "x"`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	rc := row(value.Record{{V: "1"}, {V: "x"}})
	ok, err := cq.Where(rc)
	if err != nil || !ok {
		t.Fatalf("where: ok=%v err=%v", ok, err)
	}
	out, err := cq.Select(rc)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if s, ok := out[0].(value.Scalar); !ok || s.V != "1" {
		t.Fatalf("select output = %v", out)
	}
}

func TestCompileArithmetic(t *testing.T) {
	cq, _, err := Compile(`SELECT a1 + a2 * 2`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	rc := row(value.Record{{V: "3"}, {V: "4"}})
	out, err := cq.Select(rc)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	s := out[0].(value.Scalar)
	if s.V.(float64) != 11 {
		t.Fatalf("got %v, want 11", s.V)
	}
}

func TestCompileAggregateCallProducesAggToken(t *testing.T) {
	cq, _, err := Compile(`SELECT SUM(a1)`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	rc := row(value.Record{{V: "7"}})
	out, err := cq.Select(rc)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	tok, ok := out[0].(value.AggToken)
	if !ok || tok.Kind != value.AggSum {
		t.Fatalf("expected sum AggToken, got %#v", out[0])
	}
}

func TestCompileRejectsAggregateComposedInExpression(t *testing.T) {
	cq, _, err := Compile(`SELECT MIN(a1) + 1`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	rc := row(value.Record{{V: "7"}})
	_, err = cq.Select(rc)
	if err == nil {
		t.Fatalf("expected an error composing an aggregate token into arithmetic")
	}
}

func TestCompileUpdateAssignsTargetField(t *testing.T) {
	cq, _, err := Compile(`UPDATE SET a1 = a1 + 1`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	rec := value.Record{{V: "4"}}
	rc := &iface.RowContext{LeftFields: rec, UpFields: rec, NF: 1}
	if err := cq.Update(rc); err != nil {
		t.Fatalf("update: %v", err)
	}
	if rec[0].V.(float64) != 5 {
		t.Fatalf("got %v, want 5", rec[0].V)
	}
}

func TestCompileOrderByDescSetsReverseFlag(t *testing.T) {
	cq, _, err := Compile(`SELECT a1 ORDER BY a1 DESC LIMIT 3`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !cq.SortFlag || !cq.ReverseFlag || cq.TopCount != 3 {
		t.Fatalf("sortFlag=%v reverseFlag=%v topCount=%d", cq.SortFlag, cq.ReverseFlag, cq.TopCount)
	}
}

func TestCompileDistinctCountSetsWriterKind(t *testing.T) {
	cq, _, err := Compile(`SELECT DISTINCT COUNT a1`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if cq.WriterKind != iface.WriterUniqCount {
		t.Fatalf("writerKind = %v", cq.WriterKind)
	}
}

func TestCompileRejectsMalformedQuery(t *testing.T) {
	if _, _, err := Compile(`FROB a1`); err == nil {
		t.Fatalf("expected a parse error")
	}
}

func TestCompileJoinSetsOperationAndJoinInfo(t *testing.T) {
	cq, ji, err := Compile(`SELECT a1, b2 LEFT JOIN "rhs.csv" ON a1 == b1`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if cq.JoinOperation != iface.JoinLeft {
		t.Fatalf("joinOperation = %v, want JoinLeft", cq.JoinOperation)
	}
	if ji == nil || ji.Path != "rhs.csv" {
		t.Fatalf("joinInfo = %#v", ji)
	}

	key, err := cq.LHSJoinVar(value.Record{{V: "7"}, {V: "x"}})
	if err != nil {
		t.Fatalf("lhsJoinVar: %v", err)
	}
	rhsKey, err := ji.KeyFn(value.Record{{V: "7"}, {V: "y"}})
	if err != nil {
		t.Fatalf("keyFn: %v", err)
	}
	if key != rhsKey {
		t.Fatalf("keys diverge: lhs=%q rhs=%q", key, rhsKey)
	}
}

func TestCompilePlainJoinDefaultsToInner(t *testing.T) {
	cq, ji, err := Compile(`SELECT a1 JOIN "rhs.csv" ON a1 == b1 WHERE a1 == 1`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if cq.JoinOperation != iface.JoinInner {
		t.Fatalf("joinOperation = %v, want JoinInner", cq.JoinOperation)
	}
	if ji == nil {
		t.Fatalf("expected non-nil JoinInfo")
	}
}

func TestCompileStrictLeftJoin(t *testing.T) {
	cq, ji, err := Compile(`SELECT a1 STRICT LEFT JOIN "rhs.csv" ON a2 == b3`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if cq.JoinOperation != iface.JoinStrictLeft {
		t.Fatalf("joinOperation = %v, want JoinStrictLeft", cq.JoinOperation)
	}
	if ji == nil {
		t.Fatalf("expected non-nil JoinInfo")
	}
}

func TestCompileNoJoinClauseReturnsNilJoinInfo(t *testing.T) {
	_, ji, err := Compile(`SELECT a1`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if ji != nil {
		t.Fatalf("expected nil JoinInfo, got %#v", ji)
	}
}

func TestCompileJoinRejectsWrongSide(t *testing.T) {
	if _, _, err := Compile(`SELECT a1 JOIN "rhs.csv" ON b1 == a1`); err == nil {
		t.Fatalf("expected an error for a reversed ON clause")
	}
}
