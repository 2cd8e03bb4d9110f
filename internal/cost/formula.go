package cost

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/mickamy/plancost/internal/model"
)

// FormulaID identifies which manual cost formula applies to a node.
type FormulaID uint8

const (
	// FormulaNone means no manual formula applies; the node falls to the null strategy.
	FormulaNone FormulaID = iota
	// FormulaFullScan is B(rel): the whole relation is read, selectivity 1.
	FormulaFullScan
	// FormulaRangeScan is B(rel) / 3: a range predicate, selectivity 1/3.
	FormulaRangeScan
	// FormulaEqualityScan is B(rel) / V(rel, attr): an exact match, selectivity 1/V.
	FormulaEqualityScan
	// FormulaDefaultScan is B(rel) / 3 for filters without a recognised comparison operator.
	FormulaDefaultScan
	// FormulaIndexLookup is T(rel) / V(rel, attr).
	FormulaIndexLookup
	// FormulaBitmapCombine is 0.
	FormulaBitmapCombine
)

// Formula is a manual cost formula together with the statistics it consumed.
// Blocks, Tuples and Distinct are only meaningful when Resolved is true.
type Formula struct {
	ID        FormulaID
	Kind      model.Kind
	Relation  string
	Attribute string
	Blocks    int64
	Tuples    int64
	Distinct  int64
	Resolved  bool
}

// rangeSelectivityDivisor is the heuristic 1/3 selectivity of a range predicate.
const rangeSelectivityDivisor = 3

// Cost evaluates the formula. Unresolved formulas cost 0.
func (f Formula) Cost() float64 {
	if !f.Resolved {
		return 0
	}
	var c float64
	switch f.ID {
	case FormulaFullScan:
		c = float64(f.Blocks)
	case FormulaRangeScan, FormulaDefaultScan:
		c = float64(f.Blocks) / rangeSelectivityDivisor
	case FormulaEqualityScan:
		if f.Distinct > 0 {
			c = float64(f.Blocks) / float64(f.Distinct)
		}
	case FormulaIndexLookup:
		if f.Distinct > 0 {
			c = float64(f.Tuples) / float64(f.Distinct)
		}
	}
	if c < 0 {
		return 0
	}
	return c
}

// Render describes the formula, the case it models and, once resolved, the values it consumed.
func Render(f Formula) string {
	rel, attr := f.Relation, f.Attribute
	if rel == "" {
		rel = "?"
	}
	if attr == "" {
		attr = "?"
	}

	var head, symbolic, numeric string
	switch f.ID {
	case FormulaFullScan:
		head = "Retrieving the entire relation. Selectivity = 1"
		symbolic = fmt.Sprintf("B(%s)", rel)
		numeric = humanize.Comma(f.Blocks)
	case FormulaRangeScan:
		head = "Finding a range of values. Selectivity = 1/3"
		symbolic = fmt.Sprintf("B(%s) / 3", rel)
		numeric = fmt.Sprintf("%s / 3", humanize.Comma(f.Blocks))
	case FormulaDefaultScan:
		head = "No comparison operator recognised in the filter, assuming a range. Selectivity = 1/3"
		symbolic = fmt.Sprintf("B(%s) / 3", rel)
		numeric = fmt.Sprintf("%s / 3", humanize.Comma(f.Blocks))
	case FormulaEqualityScan:
		head = fmt.Sprintf("Finding an exact match on '%s'. Selectivity = 1 / V(%s, %s)", attr, rel, attr)
		symbolic = fmt.Sprintf("B(%s) / V(%s, %s)", rel, rel, attr)
		numeric = fmt.Sprintf("%s / %s", humanize.Comma(f.Blocks), humanize.Comma(f.Distinct))
	case FormulaIndexLookup:
		head = fmt.Sprintf("Index on attribute '%s' of relation '%s'", attr, rel)
		symbolic = fmt.Sprintf("T(%s) / V(%s, %s)", rel, rel, attr)
		numeric = fmt.Sprintf("%s / %s", humanize.Comma(f.Tuples), humanize.Comma(f.Distinct))
	case FormulaBitmapCombine:
		op := "AND"
		if f.Kind == model.KindBitmapOr {
			op = "OR"
		}
		return fmt.Sprintf("%s operation on bitmaps is negligible\nCost Formula: 0", op)
	default:
		return fmt.Sprintf("No manual cost formula is defined for %s", f.Kind)
	}

	var b strings.Builder
	b.WriteString(head)
	b.WriteString("\nCost Formula: ")
	b.WriteString(symbolic)
	if f.Resolved {
		b.WriteString(" = ")
		b.WriteString(numeric)
	}
	return b.String()
}
