package rounds

import (
	"testing"
	"time"
)

func TestComputeStatus(t *testing.T) {
	registrationStart := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	startTime := registrationStart.Add(30 * time.Minute)
	endTime := startTime.Add(24 * time.Hour)

	tests := []struct {
		name        string
		now         time.Time
		isCancelled bool
		want        Status
	}{
		{"before registration", registrationStart.Add(-time.Minute), false, StatusAnnounced},
		{"at registration start", registrationStart, false, StatusRegistration},
		{"during registration", registrationStart.Add(10 * time.Minute), false, StatusRegistration},
		{"at start time", startTime, false, StatusActive},
		{"during active", startTime.Add(time.Hour), false, StatusActive},
		{"at end time", endTime, false, StatusCompleted},
		{"after end time", endTime.Add(time.Hour), false, StatusCompleted},
		{"cancelled overrides active", startTime.Add(time.Hour), true, StatusCancelled},
		{"cancelled overrides announced", registrationStart.Add(-time.Hour), true, StatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeStatus(tt.now, registrationStart, startTime, endTime, tt.isCancelled)
			if got != tt.want {
				t.Errorf("ComputeStatus(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestPseudonym_RequiredReturnsPlaintext(t *testing.T) {
	got := Pseudonym(1, 2, "ERCOT Load", true)
	if got != "ERCOT Load" {
		t.Errorf("Pseudonym for required series = %q, want plaintext name", got)
	}
}

func TestPseudonym_NonRequiredIsDeterministicDigest(t *testing.T) {
	a := Pseudonym(1, 2, "ERCOT Load", false)
	b := Pseudonym(1, 2, "a different name entirely", false)
	if a != b {
		t.Errorf("Pseudonym for non-required series should ignore seriesName, got %q vs %q", a, b)
	}
	if len(a) != len("series_")+12 {
		t.Errorf("Pseudonym length = %d, want %d", len(a), len("series_")+12)
	}
	if a[:7] != "series_" {
		t.Errorf("Pseudonym = %q, want series_ prefix", a)
	}
}

func TestPseudonym_DiffersByRoundOrSeries(t *testing.T) {
	base := Pseudonym(1, 2, "x", false)
	if Pseudonym(1, 3, "x", false) == base {
		t.Error("Pseudonym should differ when seriesID differs")
	}
	if Pseudonym(9, 2, "x", false) == base {
		t.Error("Pseudonym should differ when roundID differs")
	}
}

func TestSelectSeries_RequiredFirst(t *testing.T) {
	required := []int64{1, 2}
	candidates := []int64{1, 2, 3, 4, 5, 6}

	got := selectSeries(required, candidates, 4)
	if len(got) != 4 {
		t.Fatalf("selectSeries returned %d ids, want 4", len(got))
	}
	if got[0] != 1 || got[1] != 2 {
		t.Errorf("selectSeries = %v, want required ids first", got)
	}
	seen := make(map[int64]bool)
	for _, id := range got {
		if seen[id] {
			t.Errorf("selectSeries returned duplicate id %d", id)
		}
		seen[id] = true
	}
}

func TestSelectSeries_TopsUpWithFewerWhenCandidatesShort(t *testing.T) {
	required := []int64{1}
	candidates := []int64{1, 2}

	got := selectSeries(required, candidates, 10)
	if len(got) != 2 {
		t.Fatalf("selectSeries returned %d ids, want 2 (short of requested 10)", len(got))
	}
}

func TestSelectSeries_NoRequired(t *testing.T) {
	candidates := []int64{1, 2, 3}
	got := selectSeries(nil, candidates, 2)
	if len(got) != 2 {
		t.Fatalf("selectSeries returned %d ids, want 2", len(got))
	}
}

func TestComputeStats(t *testing.T) {
	v := func(f float64) *float64 { return &f }
	ts0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	points := []contextPoint{
		{TS: ts0, Value: v(10)},
		{TS: ts0.Add(time.Hour), Value: v(20)},
		{TS: ts0.Add(2 * time.Hour), Value: v(30)},
	}

	stats := computeStats(points)
	if stats.ValueAvg != 20 {
		t.Errorf("ValueAvg = %v, want 20", stats.ValueAvg)
	}
	wantStd := 8.16496580927726
	if diff := stats.ValueStd - wantStd; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("ValueStd = %v, want %v", stats.ValueStd, wantStd)
	}
	if !stats.MinTS.Equal(ts0) || !stats.MaxTS.Equal(ts0.Add(2*time.Hour)) {
		t.Errorf("MinTS/MaxTS = %v/%v, want %v/%v", stats.MinTS, stats.MaxTS, ts0, ts0.Add(2*time.Hour))
	}
}

func TestComputeStats_AllNullValues(t *testing.T) {
	ts0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	points := []contextPoint{
		{TS: ts0, Value: nil},
		{TS: ts0.Add(time.Hour), Value: nil},
	}

	stats := computeStats(points)
	if stats.ValueAvg != 0 || stats.ValueStd != 0 {
		t.Errorf("computeStats with all-null values = %+v, want zero averages", stats)
	}
	if !stats.MinTS.Equal(ts0) {
		t.Errorf("MinTS should still track timestamps even with null values")
	}
}

func TestComputeStats_Empty(t *testing.T) {
	stats := computeStats(nil)
	if stats != (seriesStats{}) {
		t.Errorf("computeStats(nil) = %+v, want zero value", stats)
	}
}
