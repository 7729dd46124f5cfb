package definitions

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "schedules.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_Valid(t *testing.T) {
	path := writeTempConfig(t, `
schedules:
  - id: electricity-daily
    cron: "0 6 * * *"
    run_on_startup: true
    description: "Daily electricity forecast"
    context_length: 168
    forecast_horizon: "1 day"
    frequency: "1 hour"
    announce_lead: "10 minutes"
    registration_duration: "30 minutes"
    n_time_series: 10
    required_time_series: [1, 2, 3]
    domain: "energy"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if len(cfg.Schedules) != 1 {
		t.Fatalf("expected 1 schedule, got %d", len(cfg.Schedules))
	}
	s := cfg.Schedules[0]
	if s.ID != "electricity-daily" || s.Domain != "energy" || s.NTimeSeries != 10 {
		t.Errorf("unexpected schedule contents: %+v", s)
	}
	if len(s.RequiredTimeSeries) != 3 {
		t.Errorf("expected 3 required series, got %d", len(s.RequiredTimeSeries))
	}
}

func TestLoadConfig_DuplicateScheduleIDRejected(t *testing.T) {
	path := writeTempConfig(t, `
schedules:
  - id: dup
    cron: "0 6 * * *"
    description: "first"
  - id: dup
    cron: "0 12 * * *"
    description: "second"
`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected an error for duplicate schedule ids")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/path/schedules.yaml"); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
