package analyzer

import (
	"context"
	"errors"

	"github.com/mickamy/plancost/internal/cost"
	"github.com/mickamy/plancost/internal/model"
	"github.com/mickamy/plancost/internal/stats"
)

// Status classifies how a node's manual cost was obtained.
type Status uint8

const (
	// StatusEstimated means a formula applied and every statistic resolved.
	StatusEstimated Status = iota
	// StatusNoFormula means the operator kind has no manual formula.
	StatusNoFormula
	// StatusStatisticsUnavailable means a formula applied but a statistic could not be resolved.
	StatusStatisticsUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusEstimated:
		return "estimated"
	case StatusNoFormula:
		return "no-formula"
	case StatusStatisticsUnavailable:
		return "statistics-unavailable"
	default:
		return "unknown"
	}
}

// Report compares the manual cost of one node with the cost PostgreSQL reported for it.
type Report struct {
	Node         *model.PlanNode
	Kind         model.Kind
	Status       Status
	Formula      cost.Formula
	Description  string
	ManualCost   float64
	ReportedCost float64
	// Matches is exact equality of the manual and reported cost.
	Matches bool
	// Rationale is set whenever Matches is false.
	Rationale string
	Err       error
}

// Delta is the manual cost minus the reported cost.
func (r Report) Delta() float64 {
	return r.ManualCost - r.ReportedCost
}

// ExplainNode builds the discrepancy report for a single node. It only reads the node and asks
// the provider, so repeated calls with the same answers yield the same report.
func ExplainNode(ctx context.Context, node *model.PlanNode, provider stats.Provider) Report {
	if node == nil {
		return Report{Status: StatusStatisticsUnavailable, Err: errors.New("analyzer: nil node")}
	}
	r := Report{Node: node, Kind: node.Kind, ReportedCost: node.TotalCost}

	est, err := cost.Compute(ctx, node, provider)
	r.Formula = est.Formula
	r.Description = est.Description

	switch {
	case err != nil:
		r.Status = StatusStatisticsUnavailable
		r.Err = err
	case !est.Defined():
		r.Status = StatusNoFormula
		r.ManualCost = est.ManualCost
		r.Matches = r.ManualCost == r.ReportedCost
	default:
		r.Status = StatusEstimated
		r.ManualCost = est.ManualCost
		r.Matches = r.ManualCost == r.ReportedCost
	}
	if !r.Matches {
		r.Rationale = est.Rationale
	}
	return r
}
