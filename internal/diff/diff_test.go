package diff_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/plancost/internal/analyzer"
	"github.com/mickamy/plancost/internal/config"
	"github.com/mickamy/plancost/internal/diff"
	"github.com/mickamy/plancost/test"
)

func TestCompareSeqScanWithIndexScan(t *testing.T) {
	config.Use(config.Default())
	base := test.LoadSampleAnalysis(t, "orders_seqscan.json")
	target := test.LoadSampleAnalysis(t, "orders_index.json")

	report, err := diff.Compare(base, target, diff.Options{BaseLabel: "QEP", TargetLabel: "AQP 1"})
	require.NoError(t, err)

	assert.Equal(t, 45136.0, report.Summary.BaseTotalCost)
	assert.Equal(t, 8.45, report.Summary.TargetTotalCost)
	assert.InDelta(t, -99.98, report.Summary.PercentTotalCost, 0.01)

	require.Len(t, report.Improvements, 1)
	assert.Equal(t, "Seq Scan · orders", report.Improvements[0].Signature)
	assert.Equal(t, -45136.0, report.Improvements[0].DeltaSelfCost)
	assert.InDelta(t, 26136.0/1500000.0, report.Improvements[0].BaseManual, 1e-12)

	require.Len(t, report.Regressions, 1)
	assert.Equal(t, "Index Scan · orders · orders_pkey", report.Regressions[0].Signature)
	assert.Equal(t, 100.0, report.Regressions[0].PercentChange)
	assert.Equal(t, 1.0, report.Regressions[0].TargetManual)

	md := report.Markdown()
	assert.Contains(t, md, "Comparing **QEP** → **AQP 1**")
	assert.Contains(t, md, "- Total cost: 45,136 → 8.45")
	assert.Contains(t, md, "| Index Scan · orders · orders_pkey | 0.00 | 8.45 | +8.45 | +100.0% | 0 → 1 |")
	assert.Contains(t, md, "🔥 Index Scan · orders · orders_pkey")

	payload, err := report.JSON()
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Contains(t, decoded, "regressions")
	assert.Contains(t, decoded, "summary")
}

func TestCompareIdenticalPlans(t *testing.T) {
	config.Use(config.Default())
	plan := test.LoadSampleAnalysis(t, "tpch_join.json")

	report, err := diff.Compare(plan, plan, diff.Options{})
	require.NoError(t, err)
	assert.Empty(t, report.Regressions)
	assert.Empty(t, report.Improvements)
	assert.Empty(t, report.Insights)
	assert.Contains(t, report.Markdown(), "No notable plan changes detected")
}

func TestCompareHonoursThresholds(t *testing.T) {
	config.Use(config.Default())
	base := test.LoadSampleAnalysis(t, "orders_seqscan.json")
	target := test.LoadSampleAnalysis(t, "orders_index.json")

	report, err := diff.Compare(base, target, diff.Options{MinCostDelta: 10})
	require.NoError(t, err)
	assert.Empty(t, report.Regressions, "+8.45 is below the delta threshold")
	assert.Len(t, report.Improvements, 1)
}

func TestCompareRejectsMissingAnalysis(t *testing.T) {
	_, err := diff.Compare(nil, &analyzer.PlanAnalysis{}, diff.Options{})
	require.Error(t, err)
}
