package elo

import (
	"math"
	"testing"
)

func TestRunSingleBootstrap_TwoModelsOneMatch(t *testing.T) {
	// model 0 has the lower (better) MASE, so it must gain rating and
	// model 1 must lose the same amount (zero-sum under K=4).
	matrix := [][]float64{{1.0, 2.0}}

	ratings := runSingleBootstrap(matrix, DefaultKFactor, DefaultBaseRating)
	if ratings[0] <= DefaultBaseRating {
		t.Errorf("winner rating = %v, want > %v", ratings[0], DefaultBaseRating)
	}
	if ratings[1] >= DefaultBaseRating {
		t.Errorf("loser rating = %v, want < %v", ratings[1], DefaultBaseRating)
	}
	if diff := (ratings[0] - DefaultBaseRating) + (ratings[1] - DefaultBaseRating); math.Abs(diff) > 1e-9 {
		t.Errorf("rating changes should be zero-sum, got delta sum %v", diff)
	}
}

func TestRunSingleBootstrap_TieGivesEqualRatings(t *testing.T) {
	matrix := [][]float64{{1.5, 1.5}}

	ratings := runSingleBootstrap(matrix, DefaultKFactor, DefaultBaseRating)
	if ratings[0] != DefaultBaseRating || ratings[1] != DefaultBaseRating {
		t.Errorf("tied ratings = %v, want both unchanged at %v", ratings, DefaultBaseRating)
	}
}

func TestRunSingleBootstrap_SkipsMatchWithOneParticipant(t *testing.T) {
	matrix := [][]float64{{1.0, math.NaN()}}

	ratings := runSingleBootstrap(matrix, DefaultKFactor, DefaultBaseRating)
	if ratings[0] != DefaultBaseRating {
		t.Errorf("lone participant rating = %v, want unchanged at %v", ratings[0], DefaultBaseRating)
	}
}

func TestRunSingleBootstrap_VisitsEveryMatch(t *testing.T) {
	// Three matches all favoring model 0; every one must contribute to the
	// final rating, not just the last one visited in the permutation.
	matrix := [][]float64{
		{1.0, 2.0},
		{1.0, 2.0},
		{1.0, 2.0},
	}

	single := runSingleBootstrap(matrix[:1], DefaultKFactor, DefaultBaseRating)
	all := runSingleBootstrap(matrix, DefaultKFactor, DefaultBaseRating)

	singleGain := single[0] - DefaultBaseRating
	allGain := all[0] - DefaultBaseRating
	if allGain <= singleGain {
		t.Errorf("gain after 3 matches (%v) should exceed gain after 1 match (%v)", allGain, singleGain)
	}
}

func TestPercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5}

	if got := percentile(sorted, 50); got != 3 {
		t.Errorf("median = %v, want 3", got)
	}
	if got := percentile(sorted, 0); got != 1 {
		t.Errorf("0th percentile = %v, want 1", got)
	}
	if got := percentile(sorted, 100); got != 5 {
		t.Errorf("100th percentile = %v, want 5", got)
	}
}

func TestMedianAndCI_BoundsOrdering(t *testing.T) {
	samples := []float64{900, 950, 1000, 1050, 1100, 1150, 1200}

	median, lower, upper := medianAndCI(samples)
	if !(lower <= median && median <= upper) {
		t.Errorf("expected lower <= median <= upper, got %v <= %v <= %v", lower, median, upper)
	}
}
