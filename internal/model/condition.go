package model

import "strings"

// Comparison classifies the comparison operator found in a predicate.
type Comparison uint8

const (
	// ComparisonNone means no <, > or = operator was found.
	ComparisonNone Comparison = iota
	// ComparisonRange covers <, >, <=, >= and <>.
	ComparisonRange
	// ComparisonEquality covers a bare =.
	ComparisonEquality
)

func (c Comparison) String() string {
	switch c {
	case ComparisonRange:
		return "range"
	case ComparisonEquality:
		return "equality"
	default:
		return "none"
	}
}

const comparisonOperators = "<>="

// ClassifyComparison reports which selectivity case a predicate falls into.
// Any < or > wins over =, so "a >= 1" is a range predicate.
func ClassifyComparison(expr string) Comparison {
	switch {
	case strings.ContainsAny(expr, "<>"):
		return ComparisonRange
	case strings.Contains(expr, "="):
		return ComparisonEquality
	default:
		return ComparisonNone
	}
}

// ExtractAttribute returns the column referenced on the left-hand side of a predicate, e.g.
// "(o_custkey < 1000000)" yields "o_custkey". The text before the earliest comparison operator
// is taken, enclosing parentheses and casts are dropped and a table qualifier is removed.
func ExtractAttribute(expr string) (string, bool) {
	idx := strings.IndexAny(expr, comparisonOperators)
	if idx < 0 {
		return "", false
	}
	attr := strings.TrimSpace(expr[:idx])
	attr = strings.TrimLeft(attr, "( ")
	if cast := strings.Index(attr, "::"); cast >= 0 {
		attr = attr[:cast]
	}
	attr = strings.TrimRight(attr, ") ")
	if dot := strings.LastIndexByte(attr, '.'); dot >= 0 {
		attr = attr[dot+1:]
	}
	attr = strings.Trim(attr, `"`)
	if attr == "" {
		return "", false
	}
	return attr, true
}
