// Package definitions implements the challenge definition registry: loading
// a YAML schedule file, upserting challenge definition rows keyed by
// scheduleId, and reconciling series assignments under SCD2 semantics.
package definitions

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dag-upb/ts-arena-core/internal/apperr"
)

// ScheduleEntry is one entry under `schedules:` in the challenges YAML file.
type ScheduleEntry struct {
	ID                   string  `yaml:"id"`
	Cron                 string  `yaml:"cron"`
	RunOnStartup         bool    `yaml:"run_on_startup"`
	Description          string  `yaml:"description"`
	ContextLength        int     `yaml:"context_length"`
	ForecastHorizon      string  `yaml:"forecast_horizon"`
	Frequency            string  `yaml:"frequency"`
	AnnounceLead         string  `yaml:"announce_lead"`
	RegistrationDuration string  `yaml:"registration_duration"`
	NTimeSeries          int     `yaml:"n_time_series"`
	RequiredTimeSeries   []int64 `yaml:"required_time_series"`
	Domain               string  `yaml:"domain"`
	Subdomain            string  `yaml:"subdomain"`
}

// Config is the top-level YAML document.
type Config struct {
	Schedules []ScheduleEntry `yaml:"schedules"`
}

// LoadConfig reads and decodes the schedule file, rejecting duplicate
// scheduleIds.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, apperr.InvalidConfig(fmt.Errorf("read schedule file %s: %w", path, err))
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, apperr.InvalidConfig(fmt.Errorf("parse schedule file %s: %w", path, err))
	}

	seen := make(map[string]bool, len(cfg.Schedules))
	for _, s := range cfg.Schedules {
		if seen[s.ID] {
			return Config{}, apperr.InvalidConfig(fmt.Errorf("duplicate schedule id %q in %s", s.ID, path))
		}
		seen[s.ID] = true
	}

	return cfg, nil
}
