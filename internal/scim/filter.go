package scim

import "strings"

// FilterOp is the comparison a list filter applies.
type FilterOp int

const (
	// FilterEq matches the attribute exactly (case-sensitive).
	FilterEq FilterOp = iota
	// FilterContains matches the literal as a substring of the attribute.
	FilterContains
)

// Filter is the two-node AST of the supported filter grammar:
// `<attr> eq "<literal>"` or `<attr> co "<literal>"` against the single
// canonical attribute of the resource type.
type Filter struct {
	Attr    string
	Op      FilterOp
	Literal string
}

// ParseFilter parses a SCIM filter string against the one attribute this
// engine supports for the resource type. The attribute and operator keyword
// match case-insensitively; the literal must be double-quoted, non-empty, and
// free of embedded quotes.
//
// Anything that does not match either form returns nil, and callers treat
// nil as "no filter": the query returns the unfiltered paginated set. IDPs
// probe with filters this engine does not support and still expect a 200
// with the full set, so the fallback is part of the contract.
func ParseFilter(attr, raw string) *Filter {
	rest := strings.TrimSpace(raw)
	if rest == "" {
		return nil
	}

	next := func() string {
		i := strings.IndexAny(rest, " \t")
		if i < 0 {
			tok := rest
			rest = ""
			return tok
		}
		tok := rest[:i]
		rest = strings.TrimLeft(rest[i:], " \t")
		return tok
	}

	if !strings.EqualFold(next(), attr) {
		return nil
	}

	var op FilterOp
	switch kw := next(); {
	case strings.EqualFold(kw, "eq"):
		op = FilterEq
	case strings.EqualFold(kw, "co"):
		op = FilterContains
	default:
		return nil
	}

	literal, ok := unquote(rest)
	if !ok {
		return nil
	}

	return &Filter{Attr: attr, Op: op, Literal: literal}
}

// unquote strips surrounding double quotes, rejecting empty literals,
// embedded quotes, and trailing garbage after the closing quote.
func unquote(s string) (string, bool) {
	if len(s) < 3 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", false
	}
	inner := s[1 : len(s)-1]
	if strings.Contains(inner, `"`) {
		return "", false
	}
	return inner, true
}
