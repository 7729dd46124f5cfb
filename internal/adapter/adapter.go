// Package adapter defines the uniform contract single-series and
// multi-series data providers implement, plus the shared rate-limiting and
// pagination helpers those providers use.
package adapter

import (
	"context"
	"time"

	"github.com/dag-upb/ts-arena-core/internal/duration"
)

// Sample is a single (ts, value) observation returned by an adapter, prior
// to imputation or persistence.
type Sample struct {
	TS    time.Time
	Value float64
}

// Metadata describes a single time series: its identity, cadence, and
// classification. The surrogate seriesId is absent here; the sink assigns
// it on first sight.
type Metadata struct {
	UniqueID        string
	Name            string
	Description     string
	Frequency       duration.Duration
	UpdateFrequency duration.Duration
	Unit            string
	Domain          string
	Category        string
	Subcategory     string
}

// FetchResult is what a single-series adapter's historical fetch returns:
// the samples, plus an optionally detected IANA timezone the sink records
// on the series.
type FetchResult struct {
	Data             []Sample
	DetectedTimezone string
}

// SingleSeriesAdapter is the uniform contract for a data source that
// produces exactly one time series.
type SingleSeriesAdapter interface {
	Metadata() Metadata
	// FetchHistorical returns data in [start, end). end may be the zero
	// time, meaning "no explicit upper bound"; the adapter supplies its
	// own (e.g. "now").
	FetchHistorical(ctx context.Context, start time.Time, end time.Time) (FetchResult, error)
}

// SeriesDefinition is one series a multi-series adapter's single fetch call
// populates.
type SeriesDefinition struct {
	UniqueID      string
	Metadata      Metadata
	ExtractFilter map[string]any
}

// MultiFetchResult maps each series' uniqueId to its samples.
type MultiFetchResult map[string][]Sample

// MultiSeriesAdapter is the uniform contract for a data source whose single
// API call populates many series at once.
type MultiSeriesAdapter interface {
	GroupID() string
	Schedule() duration.Duration
	SeriesDefinitions() []SeriesDefinition
	FetchHistoricalMulti(ctx context.Context, start time.Time, end time.Time) (MultiFetchResult, error)
}
