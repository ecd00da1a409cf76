package exprlang

import (
	"strconv"
	"strings"

	"rbql/pkg/iface"
	"rbql/pkg/rbqlerror"
	"rbql/pkg/value"
)

// JoinInfo describes the right-hand source a JOIN/LEFT JOIN/STRICT LEFT
// JOIN clause named, for a caller that needs to open it and build a real
// iface.JoinMapImpl (pkg/join.InMemoryMap, typically) before calling
// pkg/engine.Run — Compile itself only produces the CompiledQuery side of
// the join (JoinOperation/LHSJoinVar); building the map from an external
// source is the same external-collaborator boundary spec.md section 1
// draws around JoinMap construction.
type JoinInfo struct {
	// Path is the quoted string literal following JOIN, naming the
	// right-hand source.
	Path string
	// KeyFn extracts a right-hand record's canonical join key, using the
	// b<N> field named after ON ... == b<N>.
	KeyFn func(rec value.Record) (string, error)
}

// Compile parses src into an iface.CompiledQuery. It supports a small
// subset of RBQL: SELECT [DISTINCT [COUNT]] exprList / UPDATE SET
// assignList, an optional [INNER|LEFT|STRICT LEFT] JOIN "<path>" ON
// a<N> == b<M> clause, an optional WHERE clause, an optional GROUP BY, an
// optional ORDER BY clause with DESC/ASC, and an optional LIMIT. The
// returned *JoinInfo is nil unless the query had a JOIN clause; actually
// opening Path and building the JoinMap is left to the caller (e.g.
// cmd/rbql), matching spec.md section 1's boundary around JoinMap
// construction.
func Compile(src string) (*iface.CompiledQuery, *JoinInfo, error) {
	p, err := parseAll(src)
	if err != nil {
		return nil, nil, wrapParseErr(err)
	}

	cq := &iface.CompiledQuery{}

	switch {
	case p.identEquals("SELECT"):
		p.advance()
		if err := p.parseSelectClause(cq); err != nil {
			return nil, nil, wrapParseErr(err)
		}
	case p.identEquals("UPDATE"):
		p.advance()
		if err := p.parseUpdateClause(cq); err != nil {
			return nil, nil, wrapParseErr(err)
		}
	default:
		return nil, nil, rbqlerror.NewParsingError("query must start with SELECT or UPDATE")
	}

	joinInfo, err := p.parseJoinClause(cq)
	if err != nil {
		return nil, nil, wrapParseErr(err)
	}

	if p.identEquals("WHERE") {
		p.advance()
		where, err := p.parseExpr()
		if err != nil {
			return nil, nil, wrapParseErr(err)
		}
		cq.Where = func(rc *iface.RowContext) (bool, error) {
			v, err := evalScalar(where, &evalContext{row: rc})
			if err != nil {
				return false, wrapParseErr(err)
			}
			b, ok := v.V.(bool)
			if !ok {
				return false, rbqlerror.NewRuntimeError("WHERE expression did not evaluate to a boolean")
			}
			return b, nil
		}
	}

	if cq.IsSelectQuery && p.identEquals("GROUP") {
		p.advance()
		if !p.identEquals("BY") {
			return nil, nil, rbqlerror.NewParsingError("expected BY after GROUP")
		}
		p.advance()
		groupExpr, err := p.parseExpr()
		if err != nil {
			return nil, nil, wrapParseErr(err)
		}
		cq.AggregationKey = func(rc *iface.RowContext) (value.Scalar, error) {
			v, err := evalScalar(groupExpr, &evalContext{row: rc})
			if err != nil {
				return value.Scalar{}, wrapParseErr(err)
			}
			return v, nil
		}
	}

	if cq.IsSelectQuery && p.identEquals("ORDER") {
		p.advance()
		if !p.identEquals("BY") {
			return nil, nil, rbqlerror.NewParsingError("expected BY after ORDER")
		}
		p.advance()
		sortExpr, err := p.parseExpr()
		if err != nil {
			return nil, nil, wrapParseErr(err)
		}
		cq.SortFlag = true
		if p.identEquals("DESC") {
			p.advance()
			cq.ReverseFlag = true
		} else if p.identEquals("ASC") {
			p.advance()
		}
		cq.SortKey = func(rc *iface.RowContext, _ []value.Scalar) ([]value.Scalar, error) {
			v, err := evalScalar(sortExpr, &evalContext{row: rc})
			if err != nil {
				return nil, wrapParseErr(err)
			}
			return []value.Scalar{v}, nil
		}
	}

	if p.identEquals("LIMIT") {
		p.advance()
		if p.cur().kind != tokNumber {
			return nil, nil, rbqlerror.NewParsingError("expected a number after LIMIT")
		}
		n, err := strconv.Atoi(p.advance().text)
		if err != nil {
			return nil, nil, rbqlerror.NewParsingError("invalid LIMIT value")
		}
		cq.TopCount = n
	}

	if p.cur().kind != tokEOF {
		return nil, nil, rbqlerror.NewParsingError("unexpected trailing input: '" + p.cur().text + "'")
	}

	return cq, joinInfo, nil
}

// parseJoinClause recognizes an optional "[INNER|LEFT|STRICT LEFT] JOIN
// <quoted path> ON a<N> == b<M>" clause right after the SELECT/UPDATE
// item list. It sets cq.JoinOperation/cq.LHSJoinVar and returns the
// *JoinInfo the caller needs to open Path and build the matching JoinMap;
// returns a nil *JoinInfo, no error, and no parser advancement when no
// join keyword is present.
func (p *parser) parseJoinClause(cq *iface.CompiledQuery) (*JoinInfo, error) {
	op := iface.JoinInner
	switch {
	case p.identEquals("JOIN"):
		p.advance()
	case p.identEquals("INNER"):
		p.advance()
		if !p.identEquals("JOIN") {
			return nil, &ParseError{Msg: "expected JOIN after INNER"}
		}
		p.advance()
	case p.identEquals("LEFT"):
		p.advance()
		if !p.identEquals("JOIN") {
			return nil, &ParseError{Msg: "expected JOIN after LEFT"}
		}
		p.advance()
		op = iface.JoinLeft
	case p.identEquals("STRICT"):
		p.advance()
		if !p.identEquals("LEFT") {
			return nil, &ParseError{Msg: "expected LEFT after STRICT"}
		}
		p.advance()
		if !p.identEquals("JOIN") {
			return nil, &ParseError{Msg: "expected JOIN after STRICT LEFT"}
		}
		p.advance()
		op = iface.JoinStrictLeft
	default:
		return nil, nil
	}

	if p.cur().kind != tokString {
		return nil, &ParseError{Msg: "expected a quoted path after JOIN"}
	}
	path := p.advance().text

	if !p.identEquals("ON") {
		return nil, &ParseError{Msg: "expected ON after JOIN path"}
	}
	p.advance()

	if p.cur().kind != tokIdent {
		return nil, &ParseError{Msg: "expected a left field reference in JOIN ON"}
	}
	leftSide, leftIdx, ok := splitFieldRef(p.advance().text)
	if !ok || leftSide != 'a' {
		return nil, &ParseError{Msg: "JOIN ON's left side must be an a<N> field reference"}
	}

	if err := p.expectOp("=="); err != nil {
		return nil, err
	}

	if p.cur().kind != tokIdent {
		return nil, &ParseError{Msg: "expected a right field reference in JOIN ON"}
	}
	rightSide, rightIdx, ok := splitFieldRef(p.advance().text)
	if !ok || rightSide != 'b' {
		return nil, &ParseError{Msg: "JOIN ON's right side must be a b<N> field reference"}
	}

	cq.JoinOperation = op
	cq.LHSJoinVar = func(left value.Record) (string, error) {
		s, err := value.SafeJoinGet(left, leftIdx-1)
		if err != nil {
			return "", err
		}
		return value.CanonicalKey([]value.Scalar{s}), nil
	}

	return &JoinInfo{
		Path: path,
		KeyFn: func(rec value.Record) (string, error) {
			s, err := value.SafeJoinGet(rec, rightIdx-1)
			if err != nil {
				return "", err
			}
			return value.CanonicalKey([]value.Scalar{s}), nil
		},
	}, nil
}

// parseSelectClause parses the comma-separated output expression list,
// recognizing the DISTINCT / DISTINCT COUNT / UNNEST forms.
func (p *parser) parseSelectClause(cq *iface.CompiledQuery) error {
	cq.IsSelectQuery = true

	if p.identEquals("DISTINCT") {
		p.advance()
		cq.WriterKind = iface.WriterUniq
		if p.identEquals("COUNT") {
			p.advance()
			cq.WriterKind = iface.WriterUniqCount
		}
	}

	var exprs []compiledExpr
	for {
		e, err := p.parseSelectItem()
		if err != nil {
			return err
		}
		exprs = append(exprs, e)
		if p.cur().kind == tokComma {
			p.advance()
			continue
		}
		break
	}

	cq.Select = func(rc *iface.RowContext) ([]value.Value, error) {
		out := make([]value.Value, len(exprs))
		ectx := &evalContext{row: rc}
		for i, e := range exprs {
			v, err := e(ectx)
			if err != nil {
				return nil, wrapParseErr(err)
			}
			out[i] = v
		}
		return out, nil
	}
	return nil
}

// parseSelectItem special-cases UNNEST(expr) at the top level of a SELECT
// output item: the inner expression must evaluate to a "|"-joined string
// (the same delimiter ArrayAgg's default post-processor joins with),
// which is split back into a value.UnnestMarker's element list. A bare
// list literal syntax is out of scope for this minimal language.
func (p *parser) parseSelectItem() (compiledExpr, error) {
	if p.identEquals("UNNEST") {
		save := p.pos
		p.advance()
		if p.cur().kind == tokLParen {
			p.advance()
			inner, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectRParen(); err != nil {
				return nil, err
			}
			return func(rc *evalContext) (value.Value, error) {
				s, err := evalScalar(inner, rc)
				if err != nil {
					return nil, err
				}
				str, _ := s.V.(string)
				parts := strings.Split(str, "|")
				list := make([]value.Scalar, len(parts))
				for i, part := range parts {
					list[i] = value.Scalar{V: part}
				}
				return value.UnnestMarker{List: list}, nil
			}, nil
		}
		p.pos = save
	}
	return p.parseExpr()
}

// parseUpdateClause parses "SET a1 = expr, a2 = expr, ...".
func (p *parser) parseUpdateClause(cq *iface.CompiledQuery) error {
	cq.IsSelectQuery = false

	if !p.identEquals("SET") {
		return &ParseError{Msg: "expected SET after UPDATE"}
	}
	p.advance()

	type assignment struct {
		index int // 1-based
		expr  compiledExpr
	}
	var assigns []assignment

	for {
		if p.cur().kind != tokIdent {
			return &ParseError{Msg: "expected a field reference on the left of an UPDATE assignment"}
		}
		name := p.advance().text
		idx, ok := updateTargetIndex(name)
		if !ok {
			return &ParseError{Msg: "UPDATE target must be a left-record field reference (a1, a2, ...): " + name}
		}
		if err := p.expectOp("="); err != nil {
			return err
		}
		rhs, err := p.parseExpr()
		if err != nil {
			return err
		}
		assigns = append(assigns, assignment{index: idx, expr: rhs})

		if p.cur().kind == tokComma {
			p.advance()
			continue
		}
		break
	}

	cq.Update = func(rc *iface.RowContext) error {
		ectx := &evalContext{row: rc}
		for _, a := range assigns {
			v, err := evalScalar(a.expr, ectx)
			if err != nil {
				return wrapParseErr(err)
			}
			if err := value.SafeSet(rc.UpFields, a.index, v); err != nil {
				return err
			}
		}
		return nil
	}
	return nil
}

func updateTargetIndex(name string) (int, bool) {
	if len(name) < 2 || (name[0] != 'a' && name[0] != 'A') {
		return 0, false
	}
	idx, err := strconv.Atoi(name[1:])
	if err != nil || idx < 1 {
		return 0, false
	}
	return idx, true
}

// wrapParseErr converts this package's internal *ParseError into the
// core's *rbqlerror.ParsingError so Compile's callers only ever see the
// taxonomy from spec.md section 7; any other error (already an
// *rbqlerror type, surfaced from a nested evaluation) passes through
// unchanged.
func wrapParseErr(err error) error {
	if pe, ok := err.(*ParseError); ok {
		return rbqlerror.NewParsingError(pe.Msg)
	}
	return err
}
