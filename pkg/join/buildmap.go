package join

import (
	"golang.org/x/sync/errgroup"

	"rbql/pkg/iface"
	"rbql/pkg/value"
)

// InMemoryMap is a JoinMap that holds every right-hand record bucketed by
// its canonical join key. It implements iface.JoinMapImpl so it can be
// built asynchronously through the Build(on_success, on_error) protocol
// from spec section 6; the right-hand source and its key extractor are
// fixed at construction, matching the shape Build's two-parameter
// signature on iface.JoinMapImpl requires.
type InMemoryMap struct {
	rhs   iface.InputIterator
	keyFn func(rec value.Record) (string, error)

	buckets  map[string][]value.Record
	maxLen   int
	warnings []string
}

var _ iface.JoinMapImpl = (*InMemoryMap)(nil)

// NewInMemoryMap constructs a JoinMap that, once Build runs, holds every
// record rhs produces, bucketed by keyFn's result.
func NewInMemoryMap(rhs iface.InputIterator, keyFn func(rec value.Record) (string, error)) *InMemoryMap {
	return &InMemoryMap{rhs: rhs, keyFn: keyFn, buckets: map[string][]value.Record{}}
}

// GetJoinRecords implements JoinMap.
func (m *InMemoryMap) GetJoinRecords(key string) []value.Record {
	return m.buckets[key]
}

// MaxRecordLen implements JoinMap.
func (m *InMemoryMap) MaxRecordLen() int {
	return m.maxLen
}

// GetWarnings implements iface.JoinMapImpl.
func (m *InMemoryMap) GetWarnings() []string {
	return m.warnings
}

// Build implements iface.JoinMapImpl by draining the right-hand iterator
// on a background goroutine supervised by an errgroup.Group, then invoking
// exactly one of onSuccess/onError. A single-task errgroup is overkill for
// its own sake, but it is the same supervision shape the rest of the pack
// uses for a background unit of work with a single error channel (see
// DESIGN.md), rather than hand-rolling a channel+select pair here.
func (m *InMemoryMap) Build(onSuccess func(), onError func(error)) {
	var g errgroup.Group
	g.Go(m.load)

	go func() {
		if err := g.Wait(); err != nil {
			onError(err)
			return
		}
		onSuccess()
	}()
}

func (m *InMemoryMap) load() error {
	done := make(chan error, 1)
	m.rhs.SetRecordCallback(func(rec value.Record) error {
		if rec.NF() > m.maxLen {
			m.maxLen = rec.NF()
		}
		key, err := m.keyFn(rec)
		if err != nil {
			return err
		}
		m.buckets[key] = append(m.buckets[key], rec)
		return nil
	})
	m.rhs.SetFinishCallback(func() {
		done <- nil
	})

	if err := m.rhs.Start(); err != nil {
		return err
	}
	err := <-done
	m.warnings = m.rhs.GetWarnings()
	return err
}
