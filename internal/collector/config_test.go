package collector

import (
	"testing"

	"github.com/dag-upb/ts-arena-core/internal/adapter"
)

func TestRegisterFromConfig_SingleAdapterError(t *testing.T) {
	adapter.RegisterSingle("config_test_single", func(md adapter.Metadata, params map[string]any) (adapter.SingleSeriesAdapter, error) {
		return nil, errUnused
	})

	cfg := Config{
		Timeseries: map[string]singleEntry{
			"bad_series": {
				Class:    "config_test_single",
				Metadata: metadataEntry{Frequency: "1 hour"},
			},
			"unknown_class": {
				Class:    "never_registered",
				Metadata: metadataEntry{Frequency: "1 hour"},
			},
		},
	}

	sched := New(nil, nil, 1)
	var failures []string
	RegisterFromConfig(sched, cfg, func(name string, err error) {
		failures = append(failures, name)
	})

	if len(failures) != 2 {
		t.Fatalf("expected 2 failed adapters, got %d: %v", len(failures), failures)
	}
}

func TestBuildMetadata_InvalidFrequency(t *testing.T) {
	_, err := buildMetadata("s1", metadataEntry{Frequency: "not a duration"})
	if err == nil {
		t.Fatal("expected error for unparseable frequency, got nil")
	}
}

func TestBuildMetadata_DefaultsName(t *testing.T) {
	md, err := buildMetadata("series_1", metadataEntry{Frequency: "1 hour"})
	if err != nil {
		t.Fatalf("buildMetadata returned error: %v", err)
	}
	if md.Name != "series_1" {
		t.Errorf("got name %q, want fallback to uniqueId", md.Name)
	}
}

var errUnused = errConfigTest("adapter construction failed")

type errConfigTest string

func (e errConfigTest) Error() string { return string(e) }
