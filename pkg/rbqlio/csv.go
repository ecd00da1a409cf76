// Package rbqlio implements a minimal quoted-delimited InputIterator and
// OutputWriter so cmd/rbql has a real record source/sink to drive
// pkg/engine with, instead of a synthetic in-memory-only demo.
//
// The quoting rules are grounded on the reference test suite's
// quote_field/unquote_field/smart_split/smart_join helpers
// (original_source/test_rbql.py): a field is quoted only when it contains
// the delimiter or a double quote, embedded quotes are doubled, and
// "monocolumn" input (no delimiter at all) yields one field per line.
package rbqlio

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"rbql/pkg/iface"
	"rbql/pkg/value"
)

// Policy selects the field-splitting/joining dialect, mirroring the
// reference's smart_split/smart_join policy argument.
type Policy int

const (
	// PolicySimple splits/joins on the delimiter with no quoting at all.
	PolicySimple Policy = iota
	// PolicyQuoted understands double-quoted fields containing the
	// delimiter or embedded (doubled) quotes.
	PolicyQuoted
	// PolicyMonocolumn treats every line as a single field, regardless of
	// delimiter.
	PolicyMonocolumn
)

// CSVInputIterator reads delimited records from an io.Reader, line by
// line, and drives them through the engine's push callback protocol.
type CSVInputIterator struct {
	scanner   *bufio.Scanner
	delim     string
	policy    Policy
	onRecord  func(rec value.Record) error
	onFinish  func()
	warnings  []string
	finishing bool
}

// NewCSVInputIterator wraps r as an iface.InputIterator using the given
// delimiter and splitting policy.
func NewCSVInputIterator(r io.Reader, delim string, policy Policy) *CSVInputIterator {
	return &CSVInputIterator{
		scanner: bufio.NewScanner(r),
		delim:   delim,
		policy:  policy,
	}
}

// SetRecordCallback implements iface.InputIterator.
func (it *CSVInputIterator) SetRecordCallback(fn func(rec value.Record) error) {
	it.onRecord = fn
}

// SetFinishCallback implements iface.InputIterator.
func (it *CSVInputIterator) SetFinishCallback(fn func()) {
	it.onFinish = fn
}

// Start drives every line through the record callback, stopping early if
// Finish was called from within a callback, the callback returned an error
// (which Start returns after the finish callback fires), or the scanner
// runs out. Lines that fail to split cleanly under PolicyQuoted are
// recorded as a warning and skipped, rather than aborting the whole scan,
// matching the reference's tolerance for malformed input rows.
func (it *CSVInputIterator) Start() error {
	var cbErr error
	for !it.finishing && it.scanner.Scan() {
		line := it.scanner.Text()
		fields, err := smartSplit(line, it.delim, it.policy)
		if err != nil {
			it.warnings = append(it.warnings, fmt.Sprintf("skipped malformed line: %v", err))
			continue
		}
		rec := make(value.Record, len(fields))
		for i, f := range fields {
			rec[i] = value.Scalar{V: f}
		}
		if err := it.onRecord(rec); err != nil {
			cbErr = err
			it.finishing = true
			break
		}
	}
	if err := it.scanner.Err(); err != nil {
		it.warnings = append(it.warnings, fmt.Sprintf("scan error: %v", err))
	}
	if it.onFinish != nil {
		it.onFinish()
	}
	return cbErr
}

// Finish implements iface.InputIterator: Start is synchronous here, so
// Finish only needs to stop the in-progress scan loop on its next
// iteration; the finish callback has already fired by the time Start
// returns for any caller driving this iterator directly.
func (it *CSVInputIterator) Finish() {
	it.finishing = true
}

// GetWarnings implements iface.InputIterator.
func (it *CSVInputIterator) GetWarnings() []string {
	return it.warnings
}

// CSVOutputWriter writes output records to an io.Writer using the same
// quoting policy as the input side.
type CSVOutputWriter struct {
	w        *bufio.Writer
	delim    string
	policy   Policy
	warnings []string
}

// NewCSVOutputWriter wraps w as an iface.OutputWriter.
func NewCSVOutputWriter(w io.Writer, delim string, policy Policy) *CSVOutputWriter {
	return &CSVOutputWriter{w: bufio.NewWriter(w), delim: delim, policy: policy}
}

// Write implements iface.OutputWriter. It never signals saturation; a
// bounded sink (e.g. a fixed-size buffer) would return false once full.
func (ow *CSVOutputWriter) Write(rec value.Record) (bool, error) {
	fields := make([]string, len(rec))
	for i, s := range rec {
		fields[i] = s.String()
	}
	line, err := smartJoin(fields, ow.delim, ow.policy)
	if err != nil {
		return false, err
	}
	if _, err := ow.w.WriteString(line); err != nil {
		return false, err
	}
	if _, err := ow.w.WriteString("\n"); err != nil {
		return false, err
	}
	return true, nil
}

// Finish implements iface.OutputWriter.
func (ow *CSVOutputWriter) Finish(afterFinish func()) {
	ow.w.Flush()
	if afterFinish != nil {
		afterFinish()
	}
}

// GetWarnings implements iface.OutputWriter.
func (ow *CSVOutputWriter) GetWarnings() []string {
	return ow.warnings
}

var _ iface.InputIterator = (*CSVInputIterator)(nil)
var _ iface.OutputWriter = (*CSVOutputWriter)(nil)

// quoteField doubles embedded quotes and wraps the field in quotes only
// when it contains the delimiter or a quote (quote_field in the
// reference).
func quoteField(src, delim string) string {
	if strings.Contains(src, "\"") || strings.Contains(src, delim) {
		escaped := strings.ReplaceAll(src, "\"", "\"\"")
		return "\"" + escaped + "\""
	}
	return src
}

// unquoteField strips a surrounding quote pair and un-doubles embedded
// quotes (unquote_field in the reference). Fields that aren't
// quote-wrapped pass through unchanged.
func unquoteField(field string) string {
	trimmed := strings.TrimSpace(field)
	if len(trimmed) < 2 || trimmed[0] != '"' || trimmed[len(trimmed)-1] != '"' {
		return field
	}
	inner := trimmed[1 : len(trimmed)-1]
	return strings.ReplaceAll(inner, "\"\"", "\"")
}

// smartSplit implements the three splitting policies from the reference's
// smart_split: monocolumn treats the whole line as one field, simple
// splits on the bare delimiter, quoted walks the line honoring
// double-quoted spans that may themselves contain the delimiter.
func smartSplit(src, delim string, policy Policy) ([]string, error) {
	switch policy {
	case PolicyMonocolumn:
		return []string{src}, nil
	case PolicySimple:
		return strings.Split(src, delim), nil
	case PolicyQuoted:
		return splitQuoted(src, delim)
	default:
		return nil, fmt.Errorf("unknown split policy")
	}
}

// smartJoin is smart_split's inverse, implementing smart_join's simple,
// quoted, and monocolumn policies.
func smartJoin(fields []string, delim string, policy Policy) (string, error) {
	switch policy {
	case PolicyMonocolumn:
		if len(fields) != 1 {
			return "", fmt.Errorf("monocolumn output requires exactly one field, got %d", len(fields))
		}
		return fields[0], nil
	case PolicySimple:
		return strings.Join(fields, delim), nil
	case PolicyQuoted:
		quoted := make([]string, len(fields))
		for i, f := range fields {
			quoted[i] = quoteField(f, delim)
		}
		return strings.Join(quoted, delim), nil
	default:
		return "", fmt.Errorf("unknown join policy")
	}
}

// splitQuoted walks src rune by rune, honoring a double-quoted span (with
// "" as an escaped literal quote) that may itself contain delim, and
// splitting on every other occurrence of delim. It mirrors
// rbql_utils.split_quoted_str's behavior for the 'quoted' policy.
func splitQuoted(src, delim string) ([]string, error) {
	var fields []string
	var cur strings.Builder
	inQuotes := false
	runes := []rune(src)
	delimRunes := []rune(delim)

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if inQuotes {
			if r == '"' {
				if i+1 < len(runes) && runes[i+1] == '"' {
					cur.WriteRune('"')
					i++
					continue
				}
				inQuotes = false
				cur.WriteRune(r)
				continue
			}
			cur.WriteRune(r)
			continue
		}
		if r == '"' && cur.Len() == 0 {
			inQuotes = true
			cur.WriteRune(r)
			continue
		}
		if matchesAt(runes, i, delimRunes) {
			fields = append(fields, unquoteField(cur.String()))
			cur.Reset()
			i += len(delimRunes) - 1
			continue
		}
		cur.WriteRune(r)
	}
	if inQuotes {
		return nil, fmt.Errorf("unterminated quoted field")
	}
	fields = append(fields, unquoteField(cur.String()))
	return fields, nil
}

func matchesAt(runes []rune, pos int, sub []rune) bool {
	if pos+len(sub) > len(runes) {
		return false
	}
	for i, r := range sub {
		if runes[pos+i] != r {
			return false
		}
	}
	return true
}
