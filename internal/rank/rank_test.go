package rank_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/mickamy/plancost/internal/explore"
	"github.com/mickamy/plancost/internal/rank"
)

func samples(costs ...float64) []explore.Sample {
	out := make([]explore.Sample, len(costs))
	for i, c := range costs {
		id := explore.BaselineID
		if i > 0 {
			id = fmt.Sprintf("AQP %d", i)
		}
		out[i] = explore.Sample{ID: id, Baseline: i == 0, TotalCost: c}
	}
	return out
}

func TestRankSpreadsAcrossBins(t *testing.T) {
	r, err := rank.Rank(samples(20, 10, 30), 10)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"QEP": 4, "AQP 1": 0, "AQP 2": 9}, r.Bins)
	assert.Equal(t, []string{"AQP 1", "QEP", "AQP 2"}, r.Order)
	assert.Equal(t, 10.0, r.Min)
	assert.Equal(t, 30.0, r.Max)
}

func TestRankEqualCosts(t *testing.T) {
	r, err := rank.Rank(samples(42, 42, 42), 10)
	require.NoError(t, err)
	for id, bin := range r.Bins {
		assert.Zero(t, bin, id)
	}
	assert.Equal(t, []string{"QEP", "AQP 1", "AQP 2"}, r.Order)
}

func TestRankSingleBin(t *testing.T) {
	r, err := rank.Rank(samples(1, 1000), 1)
	require.NoError(t, err)
	assert.Equal(t, 0, r.Bins["AQP 1"])
}

func TestRankErrors(t *testing.T) {
	_, err := rank.Rank(nil, 10)
	require.ErrorIs(t, err, rank.ErrNoSamples)

	_, err = rank.Rank(samples(1), 0)
	require.Error(t, err)

	dup := samples(1, 2)
	dup[1].ID = dup[0].ID
	_, err = rank.Rank(dup, 10)
	require.ErrorContains(t, err, "duplicate sample id")
}

func TestRankBinsStayInRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		costs := rapid.SliceOfN(rapid.Float64Range(0, 1e9), 1, 40).Draw(t, "costs")
		bins := rapid.IntRange(1, 64).Draw(t, "bins")

		r, err := rank.Rank(samples(costs...), bins)
		if err != nil {
			t.Fatalf("rank: %v", err)
		}
		for i, s := range samples(costs...) {
			bin := r.Bins[s.ID]
			if bin < 0 || bin >= bins {
				t.Fatalf("bin %d out of range [0,%d)", bin, bins)
			}
			if costs[i] == r.Min && bin != 0 {
				t.Fatalf("cheapest sample in bin %d", bin)
			}
			if costs[i] == r.Max && r.Max > r.Min && bin != bins-1 {
				t.Fatalf("most expensive sample in bin %d, want %d", bin, bins-1)
			}
		}
	})
}
