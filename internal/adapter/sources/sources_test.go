package sources

import (
	"os"
	"testing"

	"github.com/dag-upb/ts-arena-core/internal/adapter"
)

func TestNewEIAAdapter_MissingAPIKey(t *testing.T) {
	os.Unsetenv("API_KEY_SOURCE_EIA_TEST")
	_, err := newEIAAdapter(adapter.Metadata{UniqueID: "eia_test"}, map[string]any{
		"api_key_env": "API_KEY_SOURCE_EIA_TEST",
	})
	if err == nil {
		t.Fatal("expected error when api key env var is unset, got nil")
	}
}

func TestNewEIAAdapter_BuildsWithAPIKey(t *testing.T) {
	t.Setenv("API_KEY_SOURCE_EIA_TEST", "dummy-key")
	a, err := newEIAAdapter(adapter.Metadata{UniqueID: "eia_test"}, map[string]any{
		"api_key_env": "API_KEY_SOURCE_EIA_TEST",
		"sub_id":      "electric-power-operational-data",
	})
	if err != nil {
		t.Fatalf("newEIAAdapter returned error: %v", err)
	}
	if a.Metadata().UniqueID != "eia_test" {
		t.Errorf("got uniqueId %q, want %q", a.Metadata().UniqueID, "eia_test")
	}
}

func TestNormalizeEIAPeriod(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2024-01-01T05", "2024-01-01T05:00:00Z"},
		{"2024-01-01", "2024-01-01T00:00:00Z"},
		{"2024-01-01T05:00:00Z", "2024-01-01T05:00:00Z"},
	}
	for _, tt := range tests {
		if got := normalizeEIAPeriod(tt.in); got != tt.want {
			t.Errorf("normalizeEIAPeriod(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewFingridMultiAdapter_MissingAPIKey(t *testing.T) {
	os.Unsetenv("API_KEY_SOURCE_FINGRID_TEST")
	_, err := newFingridMultiAdapter("group1", "1 hour", map[string]any{
		"api_key_env": "API_KEY_SOURCE_FINGRID_TEST",
	}, nil)
	if err == nil {
		t.Fatal("expected error when no api key configured, got nil")
	}
}

func TestNewFingridMultiAdapter_BuildsWithAPIKey(t *testing.T) {
	series := []adapter.SeriesDefinition{
		{UniqueID: "s1", ExtractFilter: map[string]any{"dataset_id": "123"}},
	}
	a, err := newFingridMultiAdapter("group1", "15 minutes", map[string]any{"api_key": "dummy"}, series)
	if err != nil {
		t.Fatalf("newFingridMultiAdapter returned error: %v", err)
	}
	if a.GroupID() != "group1" {
		t.Errorf("got groupId %q, want %q", a.GroupID(), "group1")
	}
	if len(a.SeriesDefinitions()) != 1 {
		t.Errorf("got %d series definitions, want 1", len(a.SeriesDefinitions()))
	}
}
