package timeseries

import (
	"testing"
	"time"
)

func TestDedupeByTS_KeepsLastOccurrence(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	v1, v2 := 1.0, 2.0

	input := []DataPoint{
		{TS: t0, Value: &v1},
		{TS: t0, Value: &v2},
	}

	got := dedupeByTS(input)
	if len(got) != 1 {
		t.Fatalf("expected 1 deduped point, got %d", len(got))
	}
	if *got[0].Value != v2 {
		t.Errorf("expected last occurrence (%v), got %v", v2, *got[0].Value)
	}
}

func TestDedupeByTS_PreservesOrder(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	v1, v2 := 1.0, 2.0

	input := []DataPoint{
		{TS: t1, Value: &v2},
		{TS: t0, Value: &v1},
	}

	got := dedupeByTS(input)
	if len(got) != 2 {
		t.Fatalf("expected 2 points, got %d", len(got))
	}
	if !got[0].TS.Equal(t1) {
		t.Errorf("expected first-seen order preserved, got ts=%v first", got[0].TS)
	}
}

func TestDedupeByTS_Empty(t *testing.T) {
	if got := dedupeByTS(nil); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}
}

func TestSCD2Counts(t *testing.T) {
	tests := []struct {
		name      string
		batchSize int
		inserted  int
		updated   int
		want      SCD2UpsertResult
	}{
		// A changed row is counted by both closed and new_records, so it
		// contributes to inserted AND updated without shrinking unchanged
		// twice.
		{"mixed batch of unchanged and changed", 2, 1, 1, SCD2UpsertResult{Inserted: 1, Updated: 1, Unchanged: 1}},
		{"replayed batch", 3, 0, 0, SCD2UpsertResult{Inserted: 0, Updated: 0, Unchanged: 3}},
		{"all new rows", 4, 4, 0, SCD2UpsertResult{Inserted: 4, Updated: 0, Unchanged: 0}},
		{"all changed rows", 2, 2, 2, SCD2UpsertResult{Inserted: 2, Updated: 2, Unchanged: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scd2Counts(tt.batchSize, tt.inserted, tt.updated)
			if got != tt.want {
				t.Errorf("scd2Counts(%d, %d, %d) = %+v, want %+v", tt.batchSize, tt.inserted, tt.updated, got, tt.want)
			}
		})
	}
}
