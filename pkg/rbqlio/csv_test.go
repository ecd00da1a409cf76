package rbqlio

import (
	"strings"
	"testing"

	"rbql/pkg/value"
)

func TestSmartSplitQuotedHandlesEmbeddedDelimiter(t *testing.T) {
	fields, err := smartSplit(`1,"hello, world",3`, ",", PolicyQuoted)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	want := []string{"1", "hello, world", "3"}
	for i, f := range fields {
		if f != want[i] {
			t.Fatalf("field %d = %q, want %q", i, f, want[i])
		}
	}
}

func TestSmartSplitQuotedUnescapesDoubledQuotes(t *testing.T) {
	fields, err := smartSplit(`a,"say ""hi""",c`, ",", PolicyQuoted)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if fields[1] != `say "hi"` {
		t.Fatalf("field 1 = %q, want %q", fields[1], `say "hi"`)
	}
}

func TestSmartJoinQuotesOnlyFieldsNeedingIt(t *testing.T) {
	out, err := smartJoin([]string{"plain", "has,comma", `has"quote`}, ",", PolicyQuoted)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if out != `plain,"has,comma","has""quote"` {
		t.Fatalf("join = %q", out)
	}
}

func TestQuoteUnquoteRoundTrip(t *testing.T) {
	src := `a "tricky, field"`
	quoted := quoteField(src, ",")
	if unquoteField(quoted) != src {
		t.Fatalf("round trip failed: %q -> %q -> %q", src, quoted, unquoteField(quoted))
	}
}

func TestMonocolumnSplitIgnoresDelimiter(t *testing.T) {
	fields, err := smartSplit("a,b,c", ",", PolicyMonocolumn)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(fields) != 1 || fields[0] != "a,b,c" {
		t.Fatalf("monocolumn split = %v", fields)
	}
}

func TestCSVInputIteratorDeliversAllRecordsThenFinishes(t *testing.T) {
	it := NewCSVInputIterator(strings.NewReader("1,a\n2,b\n"), ",", PolicyQuoted)
	var got []value.Record
	finished := false
	it.SetRecordCallback(func(rec value.Record) error {
		got = append(got, rec)
		return nil
	})
	it.SetFinishCallback(func() { finished = true })

	if err := it.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !finished {
		t.Fatalf("finish callback never fired")
	}
	if len(got) != 2 || got[0][0].V != "1" || got[1][1].V != "b" {
		t.Fatalf("unexpected records: %v", got)
	}
}

func TestCSVOutputWriterQuotesAsNeeded(t *testing.T) {
	var buf strings.Builder
	ow := NewCSVOutputWriter(&buf, ",", PolicyQuoted)
	if ok, err := ow.Write(value.Record{{V: "x"}, {V: "has,comma"}}); err != nil || !ok {
		t.Fatalf("write: ok=%v err=%v", ok, err)
	}
	ow.Finish(nil)
	if buf.String() != "x,\"has,comma\"\n" {
		t.Fatalf("output = %q", buf.String())
	}
}
