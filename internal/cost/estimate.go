package cost

import (
	"context"
	"errors"
	"fmt"

	"github.com/mickamy/plancost/internal/model"
	"github.com/mickamy/plancost/internal/stats"
)

// Estimate is the manual cost reconstructed for one plan node.
type Estimate struct {
	Kind        model.Kind
	Variant     Variant
	Formula     Formula
	ManualCost  float64
	Description string
	Rationale   string
}

// Defined reports whether a manual formula exists for the node's kind.
func (e Estimate) Defined() bool {
	return e.Variant != VariantNone
}

// Compute dispatches the node to its strategy and evaluates it against the provider.
// A statistics failure is returned as-is; the estimate still carries the symbolic formula and
// the rationale so callers can report what could not be computed.
func Compute(ctx context.Context, node *model.PlanNode, provider stats.Provider) (Estimate, error) {
	if node == nil {
		return Estimate{}, errors.New("cost: nil node")
	}
	est := Estimate{Kind: node.Kind, Variant: VariantFor(node.Kind)}

	var err error
	switch est.Variant {
	case VariantScan:
		est.Formula, err = scanFormula(ctx, node, provider)
	case VariantIndex:
		est.Formula, err = indexFormula(ctx, node, provider)
	case VariantBitmapCombine:
		est.Formula = Formula{ID: FormulaBitmapCombine, Kind: node.Kind, Resolved: true}
	case VariantNone:
		est.Formula = Formula{ID: FormulaNone, Kind: node.Kind, Resolved: true}
	}

	est.Description = Render(est.Formula)
	est.Rationale = Rationale(node.Kind, est.Formula.ID)
	if err != nil {
		return est, err
	}
	est.ManualCost = est.Formula.Cost()
	return est, nil
}

// scanRelation is the relation a scan reads. A CTE scan reads the CTE's intermediate result.
func scanRelation(node *model.PlanNode) string {
	if node.RelationName != "" {
		return node.RelationName
	}
	return node.CTEName
}

func scanFormula(ctx context.Context, node *model.PlanNode, provider stats.Provider) (Formula, error) {
	f := Formula{Kind: node.Kind, Relation: scanRelation(node)}

	switch model.ClassifyComparison(node.Filter) {
	case model.ComparisonRange:
		f.ID = FormulaRangeScan
	case model.ComparisonEquality:
		f.ID = FormulaEqualityScan
		f.Attribute, _ = model.ExtractAttribute(node.Filter)
	case model.ComparisonNone:
		f.ID = FormulaFullScan
		if node.Filter != "" {
			f.ID = FormulaDefaultScan
		}
	}

	if f.Relation == "" {
		return f, &stats.UnavailableError{Statistic: stats.StatBlocks, Err: errors.New("node has no relation")}
	}
	blocks, err := nonNegative(provider.BlockCount(ctx, f.Relation))
	if err != nil {
		return f, withTarget(err, stats.StatBlocks, f.Relation, "")
	}
	f.Blocks = blocks

	if f.ID == FormulaEqualityScan {
		distinct, err := distinctCount(ctx, provider, f.Relation, f.Attribute)
		if err != nil {
			return f, err
		}
		f.Distinct = distinct
	}
	f.Resolved = true
	return f, nil
}

func indexFormula(ctx context.Context, node *model.PlanNode, provider stats.Provider) (Formula, error) {
	f := Formula{ID: FormulaIndexLookup, Kind: node.Kind, Relation: node.RelationName, Attribute: node.Attribute}
	if f.Relation == "" {
		return f, &stats.UnavailableError{Statistic: stats.StatTuples, Err: errors.New("node has no relation")}
	}
	tuples, err := nonNegative(provider.TupleCount(ctx, f.Relation))
	if err != nil {
		return f, withTarget(err, stats.StatTuples, f.Relation, "")
	}
	f.Tuples = tuples

	distinct, err := distinctCount(ctx, provider, f.Relation, f.Attribute)
	if err != nil {
		return f, err
	}
	f.Distinct = distinct
	f.Resolved = true
	return f, nil
}

// distinctCount resolves V(rel, attr), treating zero as unavailable so formulas never divide by it.
func distinctCount(ctx context.Context, provider stats.Provider, relation, attribute string) (int64, error) {
	if attribute == "" {
		return 0, &stats.UnavailableError{
			Statistic: stats.StatDistinct,
			Relation:  relation,
			Err:       errors.New("attribute could not be determined"),
		}
	}
	v, err := nonNegative(provider.DistinctCount(ctx, relation, attribute))
	if err != nil {
		return 0, withTarget(err, stats.StatDistinct, relation, attribute)
	}
	if v == 0 {
		return 0, &stats.UnavailableError{
			Statistic: stats.StatDistinct,
			Relation:  relation,
			Attribute: attribute,
			Err:       errors.New("no distinct values recorded"),
		}
	}
	return v, nil
}

func nonNegative(v int64, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("negative statistic %d", v)
	}
	return v, nil
}

// withTarget makes sure err matches stats.ErrUnavailable. Provider errors that already do are kept.
func withTarget(err error, stat, relation, attribute string) error {
	if errors.Is(err, stats.ErrUnavailable) {
		return err
	}
	return &stats.UnavailableError{Statistic: stat, Relation: relation, Attribute: attribute, Err: err}
}
