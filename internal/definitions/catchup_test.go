package definitions

import (
	"testing"
	"time"
)

func TestCountMissedRuns_DailyFixedTime(t *testing.T) {
	lastRun := time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)
	now := time.Date(2024, 1, 4, 6, 0, 0, 0, time.UTC)

	count, err := CountMissedRuns("0 6 * * *", lastRun, now)
	if err != nil {
		t.Fatalf("CountMissedRuns returned error: %v", err)
	}
	if count != 3 {
		t.Errorf("CountMissedRuns = %d, want 3", count)
	}
}

func TestCountMissedRuns_EveryTenMinutes(t *testing.T) {
	lastRun := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)

	count, err := CountMissedRuns("*/10 * * * *", lastRun, now)
	if err != nil {
		t.Fatalf("CountMissedRuns returned error: %v", err)
	}
	if count != 6 {
		t.Errorf("CountMissedRuns = %d, want 6", count)
	}
}

func TestCountMissedRuns_NoMissedRuns(t *testing.T) {
	lastRun := time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)
	now := time.Date(2024, 1, 1, 6, 30, 0, 0, time.UTC)

	count, err := CountMissedRuns("0 6 * * *", lastRun, now)
	if err != nil {
		t.Fatalf("CountMissedRuns returned error: %v", err)
	}
	if count != 0 {
		t.Errorf("CountMissedRuns = %d, want 0", count)
	}
}

func TestCountMissedRuns_InvalidCron(t *testing.T) {
	if _, err := CountMissedRuns("not a cron", time.Now(), time.Now()); err == nil {
		t.Fatal("expected an error for an invalid cron expression")
	}
}
