// Package writer implements the composable output-transform stack from
// spec section 4.5: Top (LIMIT), Uniq (DISTINCT), UniqCount (DISTINCT
// COUNT), Sorted (ORDER BY), and Aggregate. Every writer shares the
// capability set {Write, Finish}; they compose by wrapping the next writer
// in the chain, the same "wrap the child and delegate" shape the teacher
// uses for every operator (pkg/execution/setops/distinct.go wraps a child
// DbIterator; these wrap a child Writer instead, because spec section 5
// drives the pipeline by push, not pull).
package writer

import (
	"sort"

	"rbql/pkg/value"
)

// Writer is the shared contract for every stage of the output chain.
type Writer interface {
	// Write emits one record downstream. Returning false means the
	// downstream stage is saturated and the pipeline should stop feeding
	// it further records.
	Write(rec value.Record) (bool, error)

	// Finish flushes any buffered state and cascades Finish to the next
	// writer in the chain, then invokes after.
	Finish(after func()) error
}

// Sink is the iface.OutputWriter-shaped terminal a sinkWriter adapts into
// a Writer, declared here so this package does not depend on iface.
type Sink interface {
	Write(rec value.Record) (bool, error)
	Finish(after func())
}

type sinkWriter struct {
	sink Sink
}

// NewSinkWriter wraps the terminal OutputWriter as the innermost Writer of
// the chain.
func NewSinkWriter(s Sink) Writer {
	return &sinkWriter{sink: s}
}

func (w *sinkWriter) Write(rec value.Record) (bool, error) {
	return w.sink.Write(rec)
}

func (w *sinkWriter) Finish(after func()) error {
	w.sink.Finish(after)
	return nil
}

// TopWriter enforces LIMIT. It must be the innermost wrapper around the
// output sink so that LIMIT counts rows actually produced — for
// aggregation that means post-aggregation rows, since AggregateWriter only
// emits during Finish (spec section 4.5, "TopWriter").
type TopWriter struct {
	next     Writer
	topCount int // 0 means unlimited
	nw       int
}

// NewTopWriter wraps next with a LIMIT cutoff. topCount == 0 means
// unlimited.
func NewTopWriter(next Writer, topCount int) *TopWriter {
	return &TopWriter{next: next, topCount: topCount}
}

// Write implements Writer.
func (w *TopWriter) Write(rec value.Record) (bool, error) {
	if w.topCount > 0 && w.nw >= w.topCount {
		return false, nil
	}
	ok, err := w.next.Write(rec)
	if err != nil {
		return false, err
	}
	if ok {
		w.nw++
	}
	if w.topCount > 0 && w.nw >= w.topCount {
		return false, nil
	}
	return ok, nil
}

// Finish implements Writer.
func (w *TopWriter) Finish(after func()) error {
	return w.next.Finish(after)
}

// UniqWriter implements DISTINCT: it tracks canonical encodings of every
// record written and silently drops duplicates while keeping the pipeline
// alive (spec section 4.5, "UniqWriter").
type UniqWriter struct {
	next Writer
	seen map[string]struct{}
}

// NewUniqWriter wraps next with DISTINCT semantics.
func NewUniqWriter(next Writer) *UniqWriter {
	return &UniqWriter{next: next, seen: map[string]struct{}{}}
}

// Write implements Writer.
func (w *UniqWriter) Write(rec value.Record) (bool, error) {
	key := value.CanonicalKey(rec)
	if _, dup := w.seen[key]; dup {
		return true, nil
	}
	w.seen[key] = struct{}{}
	return w.next.Write(rec)
}

// Finish implements Writer.
func (w *UniqWriter) Finish(after func()) error {
	return w.next.Finish(after)
}

// UniqCountWriter implements DISTINCT COUNT: it tallies occurrences of each
// distinct record and, on Finish, emits each one prefixed by its count, in
// the order it was first seen (spec section 4.5, "UniqCountWriter"; spec
// section 9 calls out that the presence check must be explicit rather than
// a truthy check on the count, which this implementation honors via the
// `index` map's ok-form lookup).
type UniqCountWriter struct {
	next   Writer
	order  []string
	counts map[string]int64
	index  map[string]value.Record
}

// NewUniqCountWriter wraps next with DISTINCT COUNT semantics.
func NewUniqCountWriter(next Writer) *UniqCountWriter {
	return &UniqCountWriter{
		next:   next,
		counts: map[string]int64{},
		index:  map[string]value.Record{},
	}
}

// Write implements Writer. It never signals stop; counting is unbounded
// and the actual emission happens in Finish.
func (w *UniqCountWriter) Write(rec value.Record) (bool, error) {
	key := value.CanonicalKey(rec)
	if _, present := w.index[key]; !present {
		w.index[key] = rec
		w.order = append(w.order, key)
	}
	w.counts[key]++
	return true, nil
}

// Finish implements Writer: emits each distinct record prefixed by its
// occurrence count, in first-seen order.
func (w *UniqCountWriter) Finish(after func()) error {
	for _, key := range w.order {
		rec := w.index[key]
		out := make(value.Record, 0, len(rec)+1)
		out = append(out, value.Scalar{V: w.counts[key]})
		out = append(out, rec...)
		if ok, err := w.next.Write(out); err != nil {
			return err
		} else if !ok {
			break
		}
	}
	return w.next.Finish(after)
}

// sortEntry pairs a sort key (with the NR tiebreaker already appended)
// with its payload record.
type sortEntry struct {
	key     []value.Scalar
	payload value.Record
}

// SortedWriter implements ORDER BY: it buffers every row, then on Finish
// sorts by the leading sort-key components with a stable element-wise
// comparison — the caller is required to append an NR tiebreaker to the
// key so ties resolve by input order (spec section 4.5, "SortedWriter";
// spec section 9, open question on prefix-relation keys: resolved by
// padding never being required because the NR tiebreaker always
// disambiguates unless two entirely identical prefixes collide, in which
// case they are treated as equal and sort.SliceStable keeps their input
// order).
type SortedWriter struct {
	next    Writer
	reverse bool
	entries []sortEntry
}

// NewSortedWriter wraps next with ORDER BY semantics. reverse toggles
// ASC/DESC for the already-computed key (spec test property 4: ORDER BY
// ASC then reverse equals ORDER BY DESC for the same key).
func NewSortedWriter(next Writer, reverse bool) *SortedWriter {
	return &SortedWriter{next: next, reverse: reverse}
}

// Push buffers one (sortKey, payload) pair. The engine calls this in place
// of Write for every select_simple/select_unnested row when ORDER BY is
// active, since Write carries no sort key.
func (w *SortedWriter) Push(sortKey []value.Scalar, payload value.Record) {
	w.entries = append(w.entries, sortEntry{key: sortKey, payload: payload})
}

// Write implements Writer by buffering rec with an empty sort key. An
// empty key compares equal to every other key, so rows buffered through
// Write keep their input order. Write exists so SortedWriter still
// satisfies Writer for composition in writer chains.
func (w *SortedWriter) Write(rec value.Record) (bool, error) {
	w.entries = append(w.entries, sortEntry{payload: rec})
	return true, nil
}

// Finish implements Writer: sorts the buffered entries and streams the
// payloads downstream.
func (w *SortedWriter) Finish(after func()) error {
	sort.SliceStable(w.entries, func(i, j int) bool {
		cmp := compareKeys(w.entries[i].key, w.entries[j].key)
		if w.reverse {
			return cmp > 0
		}
		return cmp < 0
	})
	for _, e := range w.entries {
		if ok, err := w.next.Write(e.payload); err != nil {
			return err
		} else if !ok {
			break
		}
	}
	return w.next.Finish(after)
}

// compareKeys implements the lexicographic elementwise sort-key comparison
// rule from spec section 4.5: the first differing component decides via
// value.Compare; equal-length keys are guaranteed by the compiler, and a
// shorter key exhausted before a difference is found compares as equal
// (spec section 9's resolution for the prefix-relation open question).
func compareKeys(a, b []value.Scalar) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := value.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return 0
}
