package adapter

import (
	"context"
	"testing"
	"time"
)

type fakeSingle struct{ md Metadata }

func (f fakeSingle) Metadata() Metadata { return f.md }
func (f fakeSingle) FetchHistorical(ctx context.Context, start, end time.Time) (FetchResult, error) {
	return FetchResult{}, nil
}

func TestRegisterSingle_BuildRoundtrip(t *testing.T) {
	RegisterSingle("test_single", func(md Metadata, params map[string]any) (SingleSeriesAdapter, error) {
		return fakeSingle{md: md}, nil
	})

	got, err := BuildSingle("test_single", Metadata{UniqueID: "x"}, nil)
	if err != nil {
		t.Fatalf("BuildSingle returned error: %v", err)
	}
	if got.Metadata().UniqueID != "x" {
		t.Errorf("got uniqueId %q, want %q", got.Metadata().UniqueID, "x")
	}
}

func TestBuildSingle_UnknownTag(t *testing.T) {
	_, err := BuildSingle("does_not_exist", Metadata{}, nil)
	if err == nil {
		t.Fatal("expected error for unregistered tag, got nil")
	}
}

func TestBuildMulti_UnknownTag(t *testing.T) {
	_, err := BuildMulti("does_not_exist", "group", "1 hour", nil, nil)
	if err == nil {
		t.Fatal("expected error for unregistered tag, got nil")
	}
}
