package messagestore

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// quoteSyntax identifies a filter-expression quoting convention. Older scan
// engines only accepted single-quoted string literals; newer ones accept
// double quotes as well. The store probes once at open time and caches the
// working convention instead of retrying syntaxes on every call.
type quoteSyntax int

const (
	syntaxSingleQuote quoteSyntax = iota
	syntaxDoubleQuote
)

// String returns the syntax name for logging.
func (q quoteSyntax) String() string {
	if q == syntaxDoubleQuote {
		return "double-quote"
	}
	return "single-quote"
}

// quoteValue renders a string literal in the given convention, escaping
// embedded quote characters by doubling them.
func (q quoteSyntax) quoteValue(v string) string {
	if q == syntaxDoubleQuote {
		return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
	}
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

var (
	singleQuoteExpr = regexp.MustCompile(`^\s*([^\s=]+)\s*=\s*'((?:[^']|'')*)'\s*$`)
	doubleQuoteExpr = regexp.MustCompile(`^\s*([^\s=]+)\s*=\s*"((?:[^"]|"")*)"\s*$`)
)

// filterExpr is a parsed equality predicate over one column.
type filterExpr struct {
	field string
	value string
}

// parseFilter parses a simple `field = <quoted value>` expression in the
// given quoting convention.
func parseFilter(expr string, syntax quoteSyntax) (filterExpr, error) {
	re := singleQuoteExpr
	unescape := func(s string) string { return strings.ReplaceAll(s, "''", "'") }
	if syntax == syntaxDoubleQuote {
		re = doubleQuoteExpr
		unescape = func(s string) string { return strings.ReplaceAll(s, `""`, `"`) }
	}

	m := re.FindStringSubmatch(expr)
	if m == nil {
		return filterExpr{}, fmt.Errorf("%w: cannot parse filter expression %q with %s syntax",
			ErrQueryFailure, expr, syntax)
	}
	return filterExpr{field: m[1], value: unescape(m[2])}, nil
}

// matches reports whether a row satisfies the predicate. Unknown fields never
// match.
func (f filterExpr) matches(row fragmentRow) bool {
	switch f.field {
	case "id":
		return row.ID == f.value
	case "content":
		return row.Content == f.value
	case "userId":
		return row.UserID == f.value
	default:
		return false
	}
}

// probeFilterSyntax determines which quoting convention the scan engine
// accepts, preferring single quotes. Performed once per store open.
func probeFilterSyntax() quoteSyntax {
	if _, err := parseFilter("id = 'probe'", syntaxSingleQuote); err == nil {
		return syntaxSingleQuote
	}
	return syntaxDoubleQuote
}

// filterScan evaluates a filter expression during a fragment scan, stopping
// once limit matching rows have been collected. Results come back in storage
// order. A parse failure or unreadable fragment raises ErrQueryFailure so
// the caller can fall through to the next tier.
func (s *Store) filterScan(ctx context.Context, expr string, syntax quoteSyntax, limit int) ([]Message, error) {
	pred, err := parseFilter(expr, syntax)
	if err != nil {
		return nil, err
	}

	names, err := s.fragmentNames()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailure, err)
	}

	var msgs []Message
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrQueryFailure, err)
		}

		rows, err := readFragment(filepath.Join(s.tableDir, name))
		if err != nil {
			return nil, fmt.Errorf("%w: reading fragment %s: %v", ErrQueryFailure, name, err)
		}
		for _, row := range rows {
			if !pred.matches(row) {
				continue
			}
			msg, _ := decodeRow(row)
			msgs = append(msgs, msg)
			if limit > 0 && len(msgs) >= limit {
				return msgs, nil
			}
		}
	}
	return msgs, nil
}
