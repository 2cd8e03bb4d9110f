package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractAttribute(t *testing.T) {
	tests := []struct {
		expr string
		want string
		ok   bool
	}{
		{"(o_custkey < 1000000)", "o_custkey", true},
		{"(n_regionkey = 1)", "n_regionkey", true},
		{"(l_quantity >= 24)", "l_quantity", true},
		{"((o_orderstatus)::text = 'F'::text)", "o_orderstatus", true},
		{"(orders.o_totalprice > 1000)", "o_totalprice", true},
		{"(a = 1) AND (b < 2)", "a", true},
		{"(name ~~ 'abc%'::text)", "", false},
		{"(= 1)", "", false},
	}
	for _, tt := range tests {
		got, ok := ExtractAttribute(tt.expr)
		assert.Equal(t, tt.ok, ok, tt.expr)
		assert.Equal(t, tt.want, got, tt.expr)
	}
}

func TestClassifyComparison(t *testing.T) {
	assert.Equal(t, ComparisonRange, ClassifyComparison("(o_custkey < 10)"))
	assert.Equal(t, ComparisonRange, ClassifyComparison("(o_custkey <> 10)"))
	assert.Equal(t, ComparisonRange, ClassifyComparison("(a = 1) AND (b > 2)"))
	assert.Equal(t, ComparisonEquality, ClassifyComparison("(n_regionkey = 1)"))
	assert.Equal(t, ComparisonNone, ClassifyComparison("(r_comment IS NULL)"))
	assert.Equal(t, "equality", ComparisonEquality.String())
}
