package engine

import (
	"fmt"
	"testing"

	"rbql/pkg/exprlang"
	"rbql/pkg/iface"
	"rbql/pkg/join"
	"rbql/pkg/value"
)

// sliceInput is a minimal iface.InputIterator backed by a fixed slice of
// records, used instead of a real file source for every engine test.
type sliceInput struct {
	records  []value.Record
	onRecord func(rec value.Record) error
	onFinish func()
	stopped  bool
}

func (s *sliceInput) SetRecordCallback(fn func(rec value.Record) error) { s.onRecord = fn }
func (s *sliceInput) SetFinishCallback(fn func())                       { s.onFinish = fn }
func (s *sliceInput) GetWarnings() []string                             { return nil }

func (s *sliceInput) Start() error {
	for _, rec := range s.records {
		if s.stopped {
			break
		}
		if err := s.onRecord(rec); err != nil {
			break
		}
	}
	if s.onFinish != nil {
		s.onFinish()
	}
	return nil
}

func (s *sliceInput) Finish() { s.stopped = true }

// sliceOutput is a minimal iface.OutputWriter collecting every emitted
// record in order.
type sliceOutput struct {
	rows     []value.Record
	limit    int
	finished bool
}

func (o *sliceOutput) Write(rec value.Record) (bool, error) {
	o.rows = append(o.rows, rec)
	if o.limit > 0 && len(o.rows) >= o.limit {
		return false, nil
	}
	return true, nil
}

func (o *sliceOutput) Finish(after func()) {
	o.finished = true
	if after != nil {
		after()
	}
}

func (o *sliceOutput) GetWarnings() []string { return nil }

func recOf(vals ...any) value.Record {
	rec := make(value.Record, len(vals))
	for i, v := range vals {
		rec[i] = value.Scalar{V: v}
	}
	return rec
}

// runSync drives engine.Run with a sliceInput/sliceOutput pair and blocks
// until exactly one of success/error fires, since every test fixture here
// is synchronous (Start delivers every record before returning).
func runSync(t *testing.T, cq *iface.CompiledQuery, joinMapImpl iface.JoinMapImpl, records []value.Record) (*sliceOutput, string, string) {
	t.Helper()
	input := &sliceInput{records: records}
	output := &sliceOutput{}

	var gotKind, gotMsg string
	calledSuccess, calledError := false, false

	err := Run(cq, input, joinMapImpl, output,
		func(warnings []string) { calledSuccess = true },
		func(kind, message string) { calledError = true; gotKind, gotMsg = kind, message },
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calledSuccess == calledError {
		t.Fatalf("expected exactly one of success/error, got success=%v error=%v", calledSuccess, calledError)
	}
	return output, gotKind, gotMsg
}

func TestS1SelectWithWhere(t *testing.T) {
	cq, _, err := exprlang.Compile(`SELECT a1 WHERE a2 == "x"`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	records := []value.Record{recOf(1, "x"), recOf(2, "y"), recOf(3, "x")}
	out, _, _ := runSync(t, cq, nil, records)

	if len(out.rows) != 2 || out.rows[0][0].V.(float64) != 1 || out.rows[1][0].V.(float64) != 3 {
		t.Fatalf("unexpected rows: %v", out.rows)
	}
}

func TestS2SumGroupBy(t *testing.T) {
	cq, _, err := exprlang.Compile(`SELECT a1, SUM(a2) GROUP BY a1`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	records := []value.Record{recOf("a", 1), recOf("b", 2), recOf("a", 3)}
	out, _, _ := runSync(t, cq, nil, records)

	got := map[string]float64{}
	for _, row := range out.rows {
		got[row[0].V.(string)] = row[1].V.(float64)
	}
	if got["a"] != 4 || got["b"] != 2 {
		t.Fatalf("unexpected groups: %v", got)
	}
}

// fakeJoinMap implements iface.JoinMapImpl directly (no async build) for
// the LEFT JOIN scenario.
type fakeJoinMap struct {
	buckets map[string][]value.Record
	maxLen  int
}

func (m *fakeJoinMap) Build(onSuccess func(), onError func(error)) { onSuccess() }
func (m *fakeJoinMap) GetJoinRecords(key string) []value.Record    { return m.buckets[key] }
func (m *fakeJoinMap) MaxRecordLen() int                           { return m.maxLen }
func (m *fakeJoinMap) GetWarnings() []string                       { return nil }

func TestS3LeftJoinNullFill(t *testing.T) {
	jm := &fakeJoinMap{
		buckets: map[string][]value.Record{"1": {recOf(1, "R1")}},
		maxLen:  2,
	}
	cq := &iface.CompiledQuery{
		IsSelectQuery: true,
		JoinOperation: iface.JoinLeft,
		LHSJoinVar: func(left value.Record) (string, error) {
			return fmt.Sprint(left[0].V), nil
		},
		Select: func(rc *iface.RowContext) ([]value.Value, error) {
			b2 := value.Scalar{V: nil}
			if rc.RHSRecord != nil {
				b2 = value.SafeGet(rc.RHSRecord, 1)
			}
			return []value.Value{rc.LeftFields[0], b2}, nil
		},
	}
	records := []value.Record{recOf(1), recOf(2)}
	out, _, _ := runSync(t, cq, jm, records)

	if len(out.rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(out.rows))
	}
	if out.rows[0][1].V != "R1" {
		t.Fatalf("row 0 rhs field = %v, want R1", out.rows[0][1].V)
	}
	if out.rows[1][1].V != nil {
		t.Fatalf("row 1 rhs field = %v, want nil", out.rows[1][1].V)
	}
}

func TestS4OrderByDescLimit(t *testing.T) {
	cq, _, err := exprlang.Compile(`SELECT a1 ORDER BY a1 DESC LIMIT 2`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	records := []value.Record{recOf(3), recOf(1), recOf(2), recOf(5), recOf(4)}
	out, _, _ := runSync(t, cq, nil, records)

	if len(out.rows) != 2 || out.rows[0][0].V.(float64) != 5 || out.rows[1][0].V.(float64) != 4 {
		t.Fatalf("unexpected rows: %v", out.rows)
	}
}

func TestS5DistinctCountFirstSeenOrder(t *testing.T) {
	cq, _, err := exprlang.Compile(`SELECT DISTINCT COUNT a1`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	records := []value.Record{recOf("x"), recOf("y"), recOf("x"), recOf("x")}
	out, _, _ := runSync(t, cq, nil, records)

	if len(out.rows) != 2 {
		t.Fatalf("expected 2 distinct rows, got %d", len(out.rows))
	}
	if out.rows[0][0].V.(int64) != 3 || out.rows[0][1].V != "x" {
		t.Fatalf("row 0 = %v, want [3 x]", out.rows[0])
	}
	if out.rows[1][0].V.(int64) != 1 || out.rows[1][1].V != "y" {
		t.Fatalf("row 1 = %v, want [1 y]", out.rows[1])
	}
}

func TestS6AggregateMisuseIsParsingError(t *testing.T) {
	cq, _, err := exprlang.Compile(`SELECT MIN(a1) + 1`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	records := []value.Record{recOf(1), recOf(2)}
	_, kind, msg := runSync(t, cq, nil, records)

	if kind != "query parsing" {
		t.Fatalf("kind = %q, want %q (msg=%q)", kind, "query parsing", msg)
	}
}

func TestS7UpdateStrict(t *testing.T) {
	cq, _, err := exprlang.Compile(`UPDATE SET a2 = "z" WHERE a1 == 1`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	records := []value.Record{recOf(1, "a"), recOf(2, "b"), recOf(1, "c")}
	out, _, _ := runSync(t, cq, nil, records)

	want := [][2]any{{1, "z"}, {2, "b"}, {1, "z"}}
	if len(out.rows) != len(want) {
		t.Fatalf("got %d rows, want %d", len(out.rows), len(want))
	}
	for i, row := range out.rows {
		if row[0].V != want[i][0] || row[1].V != want[i][1] {
			t.Fatalf("row %d = %v, want %v", i, row, want[i])
		}
	}
}

func TestStrictLeftJoinErrorsAreClassifiedAsExecution(t *testing.T) {
	jm := &fakeJoinMap{buckets: map[string][]value.Record{"1": {recOf(1, "R1"), recOf(1, "R2")}}}
	cq := &iface.CompiledQuery{
		IsSelectQuery: true,
		JoinOperation: iface.JoinStrictLeft,
		LHSJoinVar: func(left value.Record) (string, error) {
			return fmt.Sprint(left[0].V), nil
		},
		Select: func(rc *iface.RowContext) ([]value.Value, error) {
			return []value.Value{rc.LeftFields[0]}, nil
		},
	}
	_, kind, _ := runSync(t, cq, jm, []value.Record{recOf(1)})
	if kind != "query execution" {
		t.Fatalf("kind = %q, want query execution", kind)
	}
}

func TestRunRejectsSecondCallOnSameContext(t *testing.T) {
	cq, _, err := exprlang.Compile(`SELECT a1`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	input := &sliceInput{records: []value.Record{recOf(1)}}
	output := &sliceOutput{}
	ctx := &ExecutionContext{query: cq, input: input, output: output}

	if err := ctx.markUsed(); err != nil {
		t.Fatalf("first markUsed: %v", err)
	}
	if err := ctx.markUsed(); err == nil {
		t.Fatalf("expected second markUsed to fail")
	}
}

func TestDistinctWithLimitCountsOnlyForwardedRows(t *testing.T) {
	cq, _, err := exprlang.Compile(`SELECT DISTINCT a1 LIMIT 2`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	records := []value.Record{recOf("x"), recOf("x"), recOf("x"), recOf("y"), recOf("z")}
	out, _, _ := runSync(t, cq, nil, records)

	if len(out.rows) != 2 || out.rows[0][0].V != "x" || out.rows[1][0].V != "y" {
		t.Fatalf("unexpected rows: %v, want [[x] [y]]", out.rows)
	}
}

func TestProcessUpdateZeroMatchesEmitsRowUnchanged(t *testing.T) {
	jm := &fakeJoinMap{buckets: map[string][]value.Record{"1": {recOf(1, "R1")}}}
	cq := &iface.CompiledQuery{
		IsSelectQuery: false,
		JoinOperation: iface.JoinInner,
		LHSJoinVar: func(left value.Record) (string, error) {
			return fmt.Sprint(left[0].V), nil
		},
		Update: func(rc *iface.RowContext) error {
			return value.SafeSet(rc.UpFields, 2, value.Scalar{V: "z"})
		},
	}
	records := []value.Record{recOf(1, "a"), recOf(2, "b")}
	out, _, _ := runSync(t, cq, jm, records)

	if len(out.rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(out.rows))
	}
	if out.rows[0][1].V != "z" {
		t.Fatalf("matched row = %v, want field 2 = z", out.rows[0])
	}
	if out.rows[1][1].V != "b" {
		t.Fatalf("zero-match row = %v, want left unchanged (b)", out.rows[1])
	}
}

func TestRunSecondCallReportsModuleReusedMessage(t *testing.T) {
	ctx := &ExecutionContext{}
	if err := ctx.markUsed(); err != nil {
		t.Fatalf("first markUsed: %v", err)
	}
	reuseErr := ctx.markUsed()
	if reuseErr == nil {
		t.Fatalf("expected second markUsed to fail")
	}

	var gotKind, gotMsg string
	reportModuleReused(reuseErr, func(kind, message string) { gotKind, gotMsg = kind, message })

	if gotKind != "unexpected" || gotMsg != "Module can only be used once" {
		t.Fatalf("got (%q, %q), want (%q, %q)", gotKind, gotMsg, "unexpected", "Module can only be used once")
	}
}

func TestReportModuleReusedIgnoresOtherErrors(t *testing.T) {
	called := false
	reportModuleReused(fmt.Errorf("some other failure"), func(kind, message string) { called = true })
	if called {
		t.Fatalf("expected reportModuleReused to ignore an unrelated error")
	}
}

var _ = join.NewVoid // keep pkg/join imported for Joiner type alias users
