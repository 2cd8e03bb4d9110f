package parser_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/plancost/internal/model"
	"github.com/mickamy/plancost/internal/parser"
	"github.com/mickamy/plancost/test"
)

func TestParseBareNode(t *testing.T) {
	plan, err := parser.ParseDocument([]byte(`{"Node Type": "Seq Scan", "Relation Name": "region", "Total Cost": 20}`))
	require.NoError(t, err)

	root := plan.Plan
	assert.Equal(t, model.KindSeqScan, root.Kind)
	assert.Equal(t, "region", root.RelationName)
	assert.Equal(t, 20.0, root.TotalCost)
	assert.Empty(t, root.Filter)
	assert.Empty(t, root.Children)
}

func TestParseSampleTree(t *testing.T) {
	f, err := os.Open(filepath.Join(test.RootPath(t), "samples", "tpch_join.json"))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	plan, err := parser.ParseJSON(f)
	require.NoError(t, err)

	assert.Equal(t,
		[]model.Kind{model.KindSort, model.KindHashJoin, model.KindSeqScan, model.KindHash, model.KindSeqScan},
		plan.Plan.Kinds())
	assert.Equal(t, 0.214, plan.PlanningTime)

	nation := plan.Plan.Children[0].Children[0]
	assert.Equal(t, "0.0.0", nation.ID)
	assert.Equal(t, "(n_regionkey = 1)", nation.Filter)
	assert.Equal(t, false, plan.Plan.Extra["Parallel Aware"])
	assert.Contains(t, plan.Plan.Extra, "Sort Key")
}

func TestParseBitmapInheritsRelationAndAttribute(t *testing.T) {
	plan := test.LoadSamplePlan(t, "orders_bitmap.json")

	heap := plan.Plan
	assert.Equal(t, "orders", heap.RelationName)
	assert.Equal(t, "o_custkey", heap.Attribute)

	or := heap.Children[0]
	assert.Equal(t, model.KindBitmapOr, or.Kind)
	assert.Equal(t, "orders", or.RelationName)

	byDate := or.Children[1]
	assert.Equal(t, model.KindBitmapIndexScan, byDate.Kind)
	assert.Equal(t, "orders", byDate.RelationName)
	assert.Equal(t, "o_orderdate", byDate.Attribute)
}

func TestParseExplicitAttributeWins(t *testing.T) {
	plan, err := parser.ParseDocument([]byte(`{"Node Type": "Index Scan", "Relation Name": "orders",
		"Attribute": "o_custkey", "Index Cond": "(o_orderkey = 1)", "Total Cost": 8}`))
	require.NoError(t, err)
	assert.Equal(t, "o_custkey", plan.Plan.Attribute)
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		path string
	}{
		{"invalid json", `{"Node Type": `, ""},
		{"empty array", `[]`, ""},
		{"scalar", `42`, ""},
		{"no plan", `[{"Planning Time": 1}]`, ""},
		{"missing root kind", `{"Plan": {"Total Cost": 1}}`, "0"},
		{"missing child kind", `{"Node Type": "Limit", "Plans": [{"Node Type": "Sort", "Plans": [{"Total Cost": 3}]}]}`, "0.0.0"},
		{"child not object", `{"Node Type": "Limit", "Plans": [7]}`, "0.0"},
		{"plans not array", `{"Node Type": "Limit", "Plans": {"Node Type": "Sort"}}`, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parser.ParseJSON(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, parser.ErrMalformedPlan)

			var malformed *parser.MalformedPlanError
			require.True(t, errors.As(err, &malformed))
			assert.Equal(t, tt.path, malformed.Path)
		})
	}
}
