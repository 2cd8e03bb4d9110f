package analyzer_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/plancost/internal/analyzer"
	"github.com/mickamy/plancost/internal/model"
	"github.com/mickamy/plancost/internal/parser"
	"github.com/mickamy/plancost/internal/stats"
	"github.com/mickamy/plancost/test"
)

func TestExplainNodeRegionScenario(t *testing.T) {
	plan, err := parser.ParseDocument(test.ReadSample(t, "region_seqscan.json"))
	require.NoError(t, err)
	provider := test.LoadSampleStats(t)

	report := analyzer.ExplainNode(context.Background(), plan.Plan, provider)

	assert.Equal(t, analyzer.StatusEstimated, report.Status)
	assert.Equal(t, 5.0, report.ManualCost)
	assert.Equal(t, 20.0, report.ReportedCost)
	assert.False(t, report.Matches)
	assert.Equal(t, -15.0, report.Delta())
	assert.Contains(t, report.Description, "B(region) = 5")
	assert.NotEmpty(t, report.Rationale)
	assert.NoError(t, report.Err)
}

func TestExplainNodeIsIdempotent(t *testing.T) {
	plan := test.LoadSamplePlan(t, "tpch_join.json")
	provider := test.LoadSampleStats(t)

	plan.Plan.Walk(func(node *model.PlanNode) {
		first := analyzer.ExplainNode(context.Background(), node, provider)
		second := analyzer.ExplainNode(context.Background(), node, provider)
		if diff := cmp.Diff(first, second); diff != "" {
			t.Fatalf("report for %s changed (-first +second):\n%s", node.Label(), diff)
		}
	})
}

func TestExplainNodeMatchesExactly(t *testing.T) {
	provider := test.LoadSampleStats(t)
	node := &model.PlanNode{Kind: model.KindSeqScan, RelationName: "region", TotalCost: 5}

	report := analyzer.ExplainNode(context.Background(), node, provider)
	assert.True(t, report.Matches)
	assert.Empty(t, report.Rationale)

	node = &model.PlanNode{Kind: model.KindSeqScan, RelationName: "region", TotalCost: 5.0000001}
	report = analyzer.ExplainNode(context.Background(), node, provider)
	assert.False(t, report.Matches)
	assert.NotEmpty(t, report.Rationale)
}

func TestExplainNodeDistinguishesFailureKinds(t *testing.T) {
	provider := test.LoadSampleStats(t)

	noFormula := analyzer.ExplainNode(context.Background(),
		&model.PlanNode{Kind: model.KindHashJoin, NodeType: "Hash Join", TotalCost: 24.43}, provider)
	assert.Equal(t, analyzer.StatusNoFormula, noFormula.Status)
	assert.Zero(t, noFormula.ManualCost)
	assert.False(t, noFormula.Matches)
	assert.Contains(t, noFormula.Rationale, "No manual cost formula is defined for Hash Join")
	assert.NoError(t, noFormula.Err)

	unavailable := analyzer.ExplainNode(context.Background(),
		&model.PlanNode{Kind: model.KindSeqScan, RelationName: "lineitem", TotalCost: 100}, provider)
	assert.Equal(t, analyzer.StatusStatisticsUnavailable, unavailable.Status)
	assert.ErrorIs(t, unavailable.Err, stats.ErrUnavailable)
	assert.False(t, unavailable.Matches)
	assert.NotEmpty(t, unavailable.Rationale)
}

func TestAnalyzeJoinPlan(t *testing.T) {
	plan := test.LoadSamplePlan(t, "tpch_join.json")

	analysis, err := analyzer.Analyze(context.Background(), plan, test.LoadSampleStats(t))
	require.NoError(t, err)

	assert.Equal(t, 5, analysis.NodeCount)
	assert.Equal(t, 24.5, analysis.TotalCost)
	assert.Equal(t, 0.214, analysis.PlanningTimeMs)
	assert.Equal(t, int64(16384), analysis.BufferSize)
	assert.Equal(t, 0, analysis.Matched)
	assert.Equal(t, 2, analysis.Mismatched)
	assert.Equal(t, 3, analysis.NoFormula)
	assert.Equal(t, 0, analysis.Unavailable)
	assert.InDelta(t, 5.2, analysis.ManualTotal, 1e-9)

	require.Len(t, analysis.DivergentNodes, 2)
	assert.Equal(t, "region", analysis.DivergentNodes[0].Node.RelationName)
	assert.Equal(t, "nation", analysis.DivergentNodes[1].Node.RelationName)
	assert.InDelta(t, 0.2, analysis.DivergentNodes[1].ManualCost, 1e-12)

	require.Len(t, analysis.HotNodes, 2)
	assert.Equal(t, model.KindHashJoin, analysis.HotNodes[0].Kind)
	assert.InDelta(t, 11.72, analysis.HotNodes[0].SelfCost, 1e-9)

	hash := analysis.Root.Children[0].Children[1]
	require.Equal(t, model.KindHash, hash.Kind)
	assert.Zero(t, hash.SelfCost)
	assert.Same(t, analysis.Root.Children[0], hash.Parent)
	assert.Equal(t, 2, hash.Depth)
}

func TestAnalyzeBitmapPlan(t *testing.T) {
	plan := test.LoadSamplePlan(t, "orders_bitmap.json")

	analysis, err := analyzer.Analyze(context.Background(), plan, test.LoadSampleStats(t))
	require.NoError(t, err)

	heap := analysis.Root
	assert.InDelta(t, 1500000.0/99996.0, heap.ManualCost, 1e-9)

	or := heap.Children[0]
	assert.Equal(t, analyzer.StatusEstimated, or.Status)
	assert.Zero(t, or.ManualCost)
	assert.Contains(t, or.Warnings, "manual cost is zero")

	date := or.Children[1]
	assert.Equal(t, "o_orderdate", date.Formula.Attribute)
	assert.InDelta(t, 1500000.0/2406.0, date.ManualCost, 1e-9)
	assert.Equal(t, 4, analysis.Mismatched)
}

func TestAnalyzeKeepsFailuresLocal(t *testing.T) {
	plan := test.LoadSamplePlan(t, "tpch_join.json")
	provider := &stats.Static{Relations: map[string]stats.RelationStats{
		"region": {Blocks: 5, Tuples: 5},
	}}

	analysis, err := analyzer.Analyze(context.Background(), plan, provider)
	require.NoError(t, err)

	assert.Equal(t, 1, analysis.Unavailable)
	assert.Equal(t, 1, analysis.Mismatched)
	assert.Zero(t, analysis.BufferSize)

	nation := analysis.Root.Children[0].Children[0]
	assert.Equal(t, analyzer.StatusStatisticsUnavailable, nation.Status)
	assert.Contains(t, nation.Warnings, "statistics unavailable")

	region := analysis.Root.Children[0].Children[1].Children[0]
	assert.Equal(t, 5.0, region.ManualCost)
}

func TestAnalyzeRejectsMissingInput(t *testing.T) {
	_, err := analyzer.Analyze(context.Background(), nil, &stats.Static{})
	require.Error(t, err)

	_, err = analyzer.Analyze(context.Background(), test.LoadSamplePlan(t, "tpch_join.json"), nil)
	require.Error(t, err)
}

func TestRatio(t *testing.T) {
	assert.Equal(t, 4.0, analyzer.Ratio(analyzer.Report{ManualCost: 5, ReportedCost: 20}))
	assert.Equal(t, 1.0, analyzer.Ratio(analyzer.Report{}))
	assert.True(t, analyzer.Ratio(analyzer.Report{ReportedCost: 3}) > 1e300)
}
