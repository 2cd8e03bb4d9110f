// Package rank maps plan costs onto ordered bins for side-by-side presentation.
package rank

import (
	"errors"
	"fmt"
	"sort"

	"github.com/mickamy/plancost/internal/explore"
)

// DefaultBins is the number of bins used when the caller does not choose one.
const DefaultBins = 10

// ErrNoSamples is returned when there is nothing to rank.
var ErrNoSamples = errors.New("rank: no samples")

// Ranking assigns every sample a bin between 0 (cheapest) and bins-1 (most expensive).
type Ranking struct {
	NumBins int
	Min     float64
	Max     float64
	// Bins maps a sample ID to its bin.
	Bins map[string]int
	// Order lists sample IDs by ascending total cost, ties kept in input order.
	Order []string
}

// Rank places each sample proportionally to its cost between the cheapest and the most
// expensive sample. When every sample costs the same, all land in bin 0.
func Rank(samples []explore.Sample, bins int) (Ranking, error) {
	if len(samples) == 0 {
		return Ranking{}, ErrNoSamples
	}
	if bins < 1 {
		return Ranking{}, fmt.Errorf("rank: bins must be at least 1, got %d", bins)
	}

	lo, hi := samples[0].TotalCost, samples[0].TotalCost
	for _, s := range samples[1:] {
		lo = min(lo, s.TotalCost)
		hi = max(hi, s.TotalCost)
	}
	spread := hi - lo

	r := Ranking{
		NumBins: bins,
		Min:     lo,
		Max:     hi,
		Bins:    make(map[string]int, len(samples)),
		Order:   make([]string, 0, len(samples)),
	}
	for _, s := range samples {
		if _, dup := r.Bins[s.ID]; dup {
			return Ranking{}, fmt.Errorf("rank: duplicate sample id %q", s.ID)
		}
		bin := 0
		if spread > 0 {
			bin = int((s.TotalCost - lo) / spread * float64(bins-1))
		}
		r.Bins[s.ID] = bin
	}

	ordered := make([]explore.Sample, len(samples))
	copy(ordered, samples)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].TotalCost < ordered[j].TotalCost
	})
	for _, s := range ordered {
		r.Order = append(r.Order, s.ID)
	}
	return r, nil
}
