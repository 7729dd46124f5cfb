package collector

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dag-upb/ts-arena-core/internal/adapter"
	"github.com/dag-upb/ts-arena-core/internal/apperr"
	"github.com/dag-upb/ts-arena-core/internal/duration"
)

// metadataEntry mirrors the `metadata:` block under a `timeseries:` or
// `request_groups:*.timeseries:` entry in the sources YAML file.
type metadataEntry struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Frequency   string `yaml:"frequency"`
	Unit        string `yaml:"unit"`
	Domain      string `yaml:"domain"`
	Category    string `yaml:"category"`
	Subcategory string `yaml:"subcategory"`
}

// singleEntry is one entry under the top-level `timeseries:` map.
type singleEntry struct {
	Module        string         `yaml:"module"`
	Class         string         `yaml:"class"`
	Metadata      metadataEntry  `yaml:"metadata"`
	DefaultParams map[string]any `yaml:"default_params"`
}

// groupSeriesEntry is one entry under a request group's `timeseries:` list.
type groupSeriesEntry struct {
	UniqueID      string         `yaml:"unique_id"`
	ExtractFilter map[string]any `yaml:"extract_filter"`
	Metadata      metadataEntry  `yaml:"metadata"`
}

// groupEntry is one entry under the top-level `request_groups:` map.
type groupEntry struct {
	Module        string             `yaml:"module"`
	Class         string             `yaml:"class"`
	Schedule      string             `yaml:"schedule"`
	RequestParams map[string]any     `yaml:"request_params"`
	Timeseries    []groupSeriesEntry `yaml:"timeseries"`
}

// Config is the top-level sources YAML document.
type Config struct {
	Timeseries    map[string]singleEntry `yaml:"timeseries"`
	RequestGroups map[string]groupEntry  `yaml:"request_groups"`
}

// LoadConfig reads and decodes the adapter configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, apperr.InvalidConfig(fmt.Errorf("read adapter config %s: %w", path, err))
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, apperr.InvalidConfig(fmt.Errorf("parse adapter config %s: %w", path, err))
	}
	return cfg, nil
}

func buildMetadata(uniqueID string, m metadataEntry) (adapter.Metadata, error) {
	freq, err := duration.Parse(defaultString(m.Frequency, "1 hour"))
	if err != nil {
		return adapter.Metadata{}, fmt.Errorf("series %s: parse frequency %q: %w", uniqueID, m.Frequency, err)
	}
	return adapter.Metadata{
		UniqueID:        uniqueID,
		Name:            defaultString(m.Name, uniqueID),
		Description:     m.Description,
		Frequency:       freq,
		UpdateFrequency: freq.QuarterFrequency(),
		Unit:            m.Unit,
		Domain:          m.Domain,
		Category:        m.Category,
		Subcategory:     m.Subcategory,
	}, nil
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// RegisterFromConfig builds every adapter the config names via the
// compile-time registry and registers it with sched. A single adapter
// failing to build (unknown class tag, missing credential env var) is
// logged and skipped rather than aborting the whole process.
func RegisterFromConfig(sched *Scheduler, cfg Config, onError func(name string, err error)) {
	for uniqueID, entry := range cfg.Timeseries {
		md, err := buildMetadata(uniqueID, entry.Metadata)
		if err != nil {
			onError(uniqueID, err)
			continue
		}
		a, err := adapter.BuildSingle(entry.Class, md, entry.DefaultParams)
		if err != nil {
			onError(uniqueID, err)
			continue
		}
		sched.RegisterSingle(a)
	}

	for groupID, entry := range cfg.RequestGroups {
		defs := make([]adapter.SeriesDefinition, 0, len(entry.Timeseries))
		for _, s := range entry.Timeseries {
			md, err := buildMetadata(s.UniqueID, s.Metadata)
			if err != nil {
				onError(groupID+"/"+s.UniqueID, err)
				continue
			}
			defs = append(defs, adapter.SeriesDefinition{
				UniqueID:      s.UniqueID,
				Metadata:      md,
				ExtractFilter: s.ExtractFilter,
			})
		}
		a, err := adapter.BuildMulti(entry.Class, groupID, entry.Schedule, entry.RequestParams, defs)
		if err != nil {
			onError(groupID, err)
			continue
		}
		sched.RegisterMulti(a)
	}
}
