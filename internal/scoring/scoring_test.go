package scoring

import (
	"math"
	"testing"
)

func TestComputeMetrics_PerfectForecast(t *testing.T) {
	yTrue := []float64{10, 20, 30}
	yPred := []float64{10, 20, 30}

	mase, rmse := ComputeMetrics(yTrue, yPred, 15)
	if mase != 0 {
		t.Errorf("mase = %v, want 0", mase)
	}
	if rmse != 0 {
		t.Errorf("rmse = %v, want 0", rmse)
	}
}

func TestComputeMetrics_ZeroOverZero(t *testing.T) {
	// baseline equals every actual and every forecast: mae_naive and
	// mae_model are both 0, so mase must be exactly 0, not NaN.
	yTrue := []float64{5, 5, 5}
	yPred := []float64{5, 5, 5}

	mase, _ := ComputeMetrics(yTrue, yPred, 5)
	if mase != 0 {
		t.Errorf("mase = %v, want 0 for zero/zero case", mase)
	}
}

func TestComputeMetrics_DivergentBaselineIsInfinite(t *testing.T) {
	// baseline matches every actual (mae_naive=0) but the model disagrees
	// (mae_model>0): mase must diverge to +Inf rather than panic or be NaN.
	yTrue := []float64{5, 5, 5}
	yPred := []float64{6, 4, 7}

	mase, _ := ComputeMetrics(yTrue, yPred, 5)
	if !math.IsInf(mase, 1) {
		t.Errorf("mase = %v, want +Inf", mase)
	}
}

func TestComputeMetrics_RMSE(t *testing.T) {
	yTrue := []float64{10, 20}
	yPred := []float64{12, 18}

	_, rmse := ComputeMetrics(yTrue, yPred, 15)
	want := 2.0
	if math.Abs(rmse-want) > 1e-9 {
		t.Errorf("rmse = %v, want %v", rmse, want)
	}
}

func TestComputeMetrics_MASEAgainstNaiveBaseline(t *testing.T) {
	yTrue := []float64{10, 20, 30}
	yPred := []float64{11, 19, 31}
	baseline := 5.0

	mase, _ := ComputeMetrics(yTrue, yPred, baseline)
	// mae_model = (1+1+1)/3 = 1; mae_naive = (5+15+25)/3 = 15
	want := 1.0 / 15.0
	if math.Abs(mase-want) > 1e-9 {
		t.Errorf("mase = %v, want %v", mase, want)
	}
}

func TestDetermineStatus(t *testing.T) {
	tests := []struct {
		name     string
		coverage float64
		want     Status
	}{
		{"zero coverage", 0, StatusPending},
		{"partial coverage", 0.5, StatusPartial},
		{"full coverage", 1.0, StatusComplete},
		{"over-full coverage", 1.2, StatusComplete},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetermineStatus(tt.coverage)
			if got != tt.want {
				t.Errorf("DetermineStatus(%v) = %v, want %v", tt.coverage, got, tt.want)
			}
		})
	}
}
