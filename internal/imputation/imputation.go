// Package imputation detects and fills gaps in a time-ordered sequence of
// time-series points relative to an expected sampling frequency.
package imputation

import (
	"sort"
	"time"

	"github.com/dag-upb/ts-arena-core/internal/duration"
)

// Quality codes tagging whether a point was observed or synthesized.
const (
	QualityOriginal = 0
	QualityImputed  = 1
)

// DefaultMaxGapFactor is the multiple of frequency beyond which a gap is
// filled with null markers instead of linear interpolation.
const DefaultMaxGapFactor = 6

// toleranceFactor is the multiple of frequency below which a gap between
// consecutive points is not considered a gap at all.
const toleranceFactor = 1.5

// Point is a single time-series sample, pre- or post-imputation.
type Point struct {
	TS      time.Time
	Value   *float64 // nil represents a null (large-gap) marker
	Quality int
}

// Result is the outcome of running Impute over an input sequence.
type Result struct {
	Points       []Point
	Interpolated int
	NullMarkers  int
}

// Options configures gap handling. MaxGapFactor defaults to
// DefaultMaxGapFactor when zero or negative. Disabled passes input straight
// through, tagging every point ORIGINAL.
type Options struct {
	Frequency    duration.Duration
	MaxGapFactor int
	Disabled     bool
}

// Impute sorts points by timestamp, then walks consecutive pairs filling
// gaps: small gaps get linearly interpolated points, gaps wider than
// MaxGapFactor times the frequency get null markers. It is deterministic
// and pure: the same input and options always produce the same output.
func Impute(input []Point, opts Options) Result {
	sorted := make([]Point, len(input))
	copy(sorted, input)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TS.Before(sorted[j].TS) })

	for i := range sorted {
		sorted[i].Quality = QualityOriginal
	}

	if opts.Disabled || len(sorted) < 2 {
		return Result{Points: sorted}
	}

	maxGapFactor := opts.MaxGapFactor
	if maxGapFactor <= 0 {
		maxGapFactor = DefaultMaxGapFactor
	}
	freq := opts.Frequency.AsTimeDuration()
	if freq <= 0 {
		return Result{Points: sorted}
	}

	out := make([]Point, 0, len(sorted))
	var interpolated, nullMarkers int

	out = append(out, sorted[0])
	for i := 0; i < len(sorted)-1; i++ {
		cur := sorted[i]
		next := sorted[i+1]
		delta := next.TS.Sub(cur.TS)

		if delta <= time.Duration(float64(freq)*toleranceFactor) {
			out = append(out, next)
			continue
		}

		n := int(delta/freq) - 1
		if n <= 0 {
			out = append(out, next)
			continue
		}

		large := delta > time.Duration(maxGapFactor)*freq
		for k := 1; k <= n; k++ {
			ts := cur.TS.Add(time.Duration(k) * freq)
			if large || cur.Value == nil || next.Value == nil {
				out = append(out, Point{TS: ts, Value: nil, Quality: QualityImputed})
				nullMarkers++
				continue
			}
			v := *cur.Value + (*next.Value-*cur.Value)*float64(k)/float64(n+1)
			out = append(out, Point{TS: ts, Value: &v, Quality: QualityImputed})
			interpolated++
		}

		out = append(out, next)
	}

	return Result{Points: out, Interpolated: interpolated, NullMarkers: nullMarkers}
}
