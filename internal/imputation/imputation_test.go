package imputation

import (
	"testing"
	"time"

	"github.com/dag-upb/ts-arena-core/internal/duration"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse time %q: %v", s, err)
	}
	return ts
}

func f(v float64) *float64 { return &v }

func TestImpute_SmallGap(t *testing.T) {
	freq, err := duration.ParseISO8601("PT1H")
	if err != nil {
		t.Fatalf("ParseISO8601: %v", err)
	}

	input := []Point{
		{TS: mustTime(t, "2024-01-01T00:00:00Z"), Value: f(10.0)},
		{TS: mustTime(t, "2024-01-01T03:00:00Z"), Value: f(13.0)},
	}

	result := Impute(input, Options{Frequency: freq})

	if len(result.Points) != 4 {
		t.Fatalf("expected 4 points, got %d", len(result.Points))
	}
	expected := []struct {
		hour    int
		value   float64
		quality int
	}{
		{0, 10.0, QualityOriginal},
		{1, 11.0, QualityImputed},
		{2, 12.0, QualityImputed},
		{3, 13.0, QualityOriginal},
	}
	for i, want := range expected {
		got := result.Points[i]
		if got.Value == nil {
			t.Fatalf("point %d: expected value %v, got nil", i, want.value)
		}
		if *got.Value != want.value {
			t.Errorf("point %d: value = %v, want %v", i, *got.Value, want.value)
		}
		if got.Quality != want.quality {
			t.Errorf("point %d: quality = %d, want %d", i, got.Quality, want.quality)
		}
		if got.TS.Hour() != want.hour {
			t.Errorf("point %d: hour = %d, want %d", i, got.TS.Hour(), want.hour)
		}
	}
	if result.Interpolated != 2 {
		t.Errorf("Interpolated = %d, want 2", result.Interpolated)
	}
	if result.NullMarkers != 0 {
		t.Errorf("NullMarkers = %d, want 0", result.NullMarkers)
	}
}

func TestImpute_LargeGap(t *testing.T) {
	freq, err := duration.ParseISO8601("PT1H")
	if err != nil {
		t.Fatalf("ParseISO8601: %v", err)
	}

	input := []Point{
		{TS: mustTime(t, "2024-01-01T00:00:00Z"), Value: f(10.0)},
		{TS: mustTime(t, "2024-01-01T10:00:00Z"), Value: f(20.0)},
	}

	result := Impute(input, Options{Frequency: freq, MaxGapFactor: DefaultMaxGapFactor})

	if len(result.Points) != 11 {
		t.Fatalf("expected 11 points, got %d", len(result.Points))
	}
	for i := 1; i < 10; i++ {
		p := result.Points[i]
		if p.Value != nil {
			t.Errorf("point %d: expected nil value, got %v", i, *p.Value)
		}
		if p.Quality != QualityImputed {
			t.Errorf("point %d: quality = %d, want IMPUTED", i, p.Quality)
		}
	}
	if result.NullMarkers != 9 {
		t.Errorf("NullMarkers = %d, want 9", result.NullMarkers)
	}
	if result.Interpolated != 0 {
		t.Errorf("Interpolated = %d, want 0", result.Interpolated)
	}
}

func TestImpute_Disabled(t *testing.T) {
	freq, _ := duration.ParseISO8601("PT1H")
	input := []Point{
		{TS: mustTime(t, "2024-01-01T00:00:00Z"), Value: f(10.0)},
		{TS: mustTime(t, "2024-01-01T10:00:00Z"), Value: f(20.0)},
	}
	result := Impute(input, Options{Frequency: freq, Disabled: true})
	if len(result.Points) != 2 {
		t.Fatalf("expected passthrough of 2 points, got %d", len(result.Points))
	}
	for _, p := range result.Points {
		if p.Quality != QualityOriginal {
			t.Errorf("disabled mode: quality = %d, want ORIGINAL", p.Quality)
		}
	}
}

func TestImpute_NoGap(t *testing.T) {
	freq, _ := duration.ParseISO8601("PT1H")
	input := []Point{
		{TS: mustTime(t, "2024-01-01T00:00:00Z"), Value: f(10.0)},
		{TS: mustTime(t, "2024-01-01T01:00:00Z"), Value: f(11.0)},
	}
	result := Impute(input, Options{Frequency: freq})
	if len(result.Points) != 2 {
		t.Fatalf("expected 2 points (no gap), got %d", len(result.Points))
	}
	if result.Interpolated != 0 || result.NullMarkers != 0 {
		t.Errorf("expected no imputation, got interpolated=%d nullMarkers=%d", result.Interpolated, result.NullMarkers)
	}
}
