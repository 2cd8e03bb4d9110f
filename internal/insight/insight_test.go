package insight_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/plancost/internal/analyzer"
	"github.com/mickamy/plancost/internal/config"
	"github.com/mickamy/plancost/internal/insight"
	"github.com/mickamy/plancost/internal/stats"
	"github.com/mickamy/plancost/test"
)

func analyze(t *testing.T, sample string, provider stats.Provider) *analyzer.PlanAnalysis {
	t.Helper()
	analysis, err := analyzer.Analyze(context.Background(), test.LoadSamplePlan(t, sample), provider)
	require.NoError(t, err)
	return analysis
}

func TestBuildMessagesForJoinPlan(t *testing.T) {
	config.Use(config.Default())
	analysis := analyze(t, "tpch_join.json", test.LoadSampleStats(t))

	msgs := insight.BuildMessages(analysis)
	require.Len(t, msgs, 4)

	assert.Equal(t, insight.SeverityWarning, msgs[0].Severity)
	assert.True(t, strings.HasPrefix(msgs[0].Text, "Cost hot spot: Hash Join self cost 11.72"), msgs[0].Text)
	assert.Equal(t, "node-0-0", msgs[0].Anchor)

	assert.Equal(t, "Cost mismatch: Seq Scan on region manual 5, reported 11.4 (x2.28)", msgs[1].Text)
	assert.Equal(t, insight.SeverityWarning, msgs[1].Severity)
	assert.Contains(t, msgs[2].Text, "Seq Scan on nation")
	assert.Equal(t, insight.SeverityWarning, msgs[2].Severity, "x6.55 is below the critical ratio")

	assert.Equal(t, "No manual formula for 3 of 5 nodes (Sort, Hash Join, Hash); their manual cost is 0", msgs[3].Text)
}

func TestBuildMessagesSeparatesUnavailableFromNoFormula(t *testing.T) {
	config.Use(config.Default())
	provider := &stats.Static{Relations: map[string]stats.RelationStats{"region": {Blocks: 5}}}
	msgs := insight.BuildMessages(analyze(t, "tpch_join.json", provider))

	var unavailable, noFormula int
	for _, msg := range msgs {
		switch {
		case strings.HasPrefix(msg.Text, "Statistics unavailable: Seq Scan on nation"):
			unavailable++
			assert.Contains(t, msg.Text, "run ANALYZE")
			assert.Equal(t, insight.SeverityWarning, msg.Severity)
		case strings.HasPrefix(msg.Text, "No manual formula"):
			noFormula++
		}
	}
	assert.Equal(t, 1, unavailable)
	assert.Equal(t, 1, noFormula)
}

func TestMismatchSeverityFollowsConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Insights.MismatchCriticalRatio = 2
	config.Use(cfg)
	t.Cleanup(func() { config.Use(config.Default()) })

	msgs := insight.BuildMessages(analyze(t, "region_seqscan.json", test.LoadSampleStats(t)))
	require.NotEmpty(t, msgs)
	for _, msg := range msgs {
		if strings.HasPrefix(msg.Text, "Cost mismatch") {
			assert.Equal(t, insight.SeverityCritical, msg.Severity)
			return
		}
	}
	t.Fatalf("no mismatch message in %v", msgs)
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "26,136", insight.FormatCost(26136))
	assert.Equal(t, "15", insight.FormatCost(15.0000))
	assert.Equal(t, "128 MiB", insight.HumanizeBlocks(16384))
	assert.Equal(t, "a b c", insight.NormalizeWhitespace(" a \n b\tc "))
}
