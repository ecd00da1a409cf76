// Package join implements the four joiner variants consumed by the record
// driver (spec section 4.2) and the JoinMap contract they read from. The
// actual table scan that fills a JoinMap is an external collaborator per
// spec section 1; this package only implements the lookup/fallback
// semantics on top of whatever JoinMap the caller supplies, plus a small
// in-memory builder (buildmap.go) useful for tests and the CLI demo.
//
// The hash-keyed lookup shape is grounded on the teacher's
// pkg/execution/join package (JoinPredicate/JoinAlgorithm interfaces,
// hash_join.go's map[string][]*tuple.Tuple pattern).
package join

import (
	"rbql/pkg/rbqlerror"
	"rbql/pkg/value"
)

// JoinMap is the external collaborator exposing keyed lookup into the
// preloaded right-hand-side table (spec section 3, "JoinMap").
type JoinMap interface {
	// GetJoinRecords returns every right-hand record whose join key equals
	// key, or nil if there is no match.
	GetJoinRecords(key string) []value.Record

	// MaxRecordLen returns the width used to synthesize a null-filled
	// right-hand record for LEFT JOIN when no match exists.
	MaxRecordLen() int
}

// Joiner is the contract the four join variants implement: given a
// left-hand join key, produce the list of right-hand records to pair with
// the current left row.
type Joiner interface {
	GetRHS(leftKey string) ([]value.Record, error)
}

// voidJoiner backs queries with no JOIN clause: it always returns a single
// synthetic nil record so downstream processing runs exactly once per left
// row (spec section 4.2, "Void").
type voidJoiner struct{}

// NewVoid constructs the no-JOIN joiner.
func NewVoid() Joiner { return voidJoiner{} }

func (voidJoiner) GetRHS(string) ([]value.Record, error) {
	return []value.Record{nil}, nil
}

// innerJoiner returns matches verbatim, possibly none — a left row with no
// match is simply skipped downstream (spec section 4.2, "Inner").
type innerJoiner struct {
	m JoinMap
}

// NewInner constructs an INNER JOIN joiner over m.
func NewInner(m JoinMap) Joiner { return innerJoiner{m: m} }

func (j innerJoiner) GetRHS(leftKey string) ([]value.Record, error) {
	return j.m.GetJoinRecords(leftKey), nil
}

// leftJoiner returns matches, or a single null-filled record of width
// MaxRecordLen when there are none (spec section 4.2, "Left").
type leftJoiner struct {
	m JoinMap
}

// NewLeft constructs a LEFT JOIN joiner over m.
func NewLeft(m JoinMap) Joiner { return leftJoiner{m: m} }

func (j leftJoiner) GetRHS(leftKey string) ([]value.Record, error) {
	matches := j.m.GetJoinRecords(leftKey)
	if len(matches) > 0 {
		return matches, nil
	}
	return []value.Record{value.NullFilledRecord(j.m.MaxRecordLen())}, nil
}

// strictLeftJoiner requires exactly one match per left key; any other
// count is a RuntimeError naming the offending key (spec section 4.2,
// "StrictLeft").
type strictLeftJoiner struct {
	m JoinMap
}

// NewStrictLeft constructs a STRICT LEFT JOIN joiner over m.
func NewStrictLeft(m JoinMap) Joiner { return strictLeftJoiner{m: m} }

func (j strictLeftJoiner) GetRHS(leftKey string) ([]value.Record, error) {
	matches := j.m.GetJoinRecords(leftKey)
	if len(matches) != 1 {
		return nil, rbqlerror.NewRuntimeError(
			"In 'STRICT LEFT JOIN' each key in A must have exactly one match in B. Bad A key: '%s'", leftKey)
	}
	return matches, nil
}
