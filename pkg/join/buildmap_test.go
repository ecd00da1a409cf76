package join

import (
	"fmt"
	"testing"

	"rbql/pkg/value"
)

// fakeRHSInput is a minimal iface.InputIterator backed by a fixed slice,
// enough to drive InMemoryMap.Build/load without a real file source.
type fakeRHSInput struct {
	records  []value.Record
	failWith error
	warnings []string
	onRecord func(rec value.Record) error
	onFinish func()
}

func (f *fakeRHSInput) SetRecordCallback(fn func(rec value.Record) error) { f.onRecord = fn }
func (f *fakeRHSInput) SetFinishCallback(fn func())                       { f.onFinish = fn }
func (f *fakeRHSInput) GetWarnings() []string                             { return f.warnings }
func (f *fakeRHSInput) Finish()                                           {}

func (f *fakeRHSInput) Start() error {
	if f.failWith != nil {
		return f.failWith
	}
	for _, rec := range f.records {
		if err := f.onRecord(rec); err != nil {
			return err
		}
	}
	if f.onFinish != nil {
		f.onFinish()
	}
	return nil
}

func keyByFirstField(rec value.Record) (string, error) {
	return fmt.Sprint(rec[0].V), nil
}

func TestInMemoryMapBucketsRecordsByKey(t *testing.T) {
	rhs := &fakeRHSInput{
		records: []value.Record{
			{{V: "1"}, {V: "r1a"}},
			{{V: "2"}, {V: "r2"}},
			{{V: "1"}, {V: "r1b"}},
		},
		warnings: []string{"a warning"},
	}
	m := NewInMemoryMap(rhs, keyByFirstField)

	done := make(chan error, 1)
	m.Build(func() { done <- nil }, func(err error) { done <- err })
	if err := <-done; err != nil {
		t.Fatalf("build: %v", err)
	}

	got := m.GetJoinRecords("1")
	if len(got) != 2 {
		t.Fatalf("key 1 matches = %v, want 2", got)
	}
	if m.MaxRecordLen() != 2 {
		t.Fatalf("maxRecordLen = %d, want 2", m.MaxRecordLen())
	}
	if len(m.GetWarnings()) != 1 || m.GetWarnings()[0] != "a warning" {
		t.Fatalf("warnings = %v", m.GetWarnings())
	}
}

func TestInMemoryMapBuildReportsStartError(t *testing.T) {
	rhs := &fakeRHSInput{failWith: fmt.Errorf("boom")}
	m := NewInMemoryMap(rhs, keyByFirstField)

	done := make(chan error, 1)
	m.Build(func() { done <- nil }, func(err error) { done <- err })
	if err := <-done; err == nil {
		t.Fatalf("expected build to report the iterator's Start error")
	}
}
