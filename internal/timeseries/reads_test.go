package timeseries

import (
	"testing"
	"time"
)

func TestAppendDateFilters(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		startDate *time.Time
		endDate   *time.Time
		wantSQL   string
		wantArgs  int
	}{
		{"no filters", nil, nil, "SELECT 1 WHERE series_id = $1", 1},
		{"start only", &start, nil, "SELECT 1 WHERE series_id = $1 AND ts >= $2", 2},
		{"end only", nil, &end, "SELECT 1 WHERE series_id = $1 AND ts <= $2", 2},
		{"both", &start, &end, "SELECT 1 WHERE series_id = $1 AND ts >= $2 AND ts <= $3", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := appendDateFilters("SELECT 1 WHERE series_id = $1", []any{int64(7)}, tt.startDate, tt.endDate)
			if query != tt.wantSQL {
				t.Errorf("query = %q, want %q", query, tt.wantSQL)
			}
			if len(args) != tt.wantArgs {
				t.Errorf("got %d args, want %d", len(args), tt.wantArgs)
			}
		})
	}
}
