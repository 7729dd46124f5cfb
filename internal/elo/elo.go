// Package elo implements bootstrapped pairwise ELO ratings over finalized
// MASE matrices, across global and per-definition scopes and five time
// windows.
package elo

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	DefaultKFactor     = 4.0
	DefaultBaseRating  = 1000.0
	DefaultNBootstraps = 500
)

// TimePeriods are the scoring windows evaluated for every scope: nil means
// all-time, otherwise a lookback in days.
var TimePeriods = []*int{nil, days(7), days(30), days(90), days(365)}

func days(n int) *int { return &n }

// Rating is one elo_ratings row.
type Rating struct {
	ModelID               int64
	DefinitionID          *int64
	TimePeriodDays        *int
	EloScore              float64
	EloCILower            float64
	EloCIUpper            float64
	NMatches              int
	NBootstraps           int
	CalculationDurationMs int64
}

// Summary reports what CalculateAndStoreAll computed, for logging.
type Summary struct {
	GlobalScopes        int
	PerDefinitionScopes int
	TotalDurationMs     int64
}

// Engine owns ELO calculation against the shared pool.
type Engine struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Engine { return &Engine{db: db} }

// CalculateAndStoreAll computes and stores global ELO for every time period,
// then per-definition ELO for every definition with finalized scores and
// every time period. Each scope is isolated: a failure in one never stops
// the rest.
func (e *Engine) CalculateAndStoreAll(ctx context.Context, nBootstraps int) (Summary, error) {
	start := time.Now()
	var summary Summary

	for _, period := range TimePeriods {
		ratings, err := e.CalculateEloRatings(ctx, nil, period, nBootstraps, DefaultKFactor, DefaultBaseRating)
		if err != nil {
			log.Printf("[ELO] global ELO (%s) failed: %v", periodLabel(period), err)
			continue
		}
		if len(ratings) == 0 {
			continue
		}
		if err := e.storeRatings(ctx, ratings); err != nil {
			log.Printf("[ELO] storing global ELO (%s) failed: %v", periodLabel(period), err)
			continue
		}
		summary.GlobalScopes++
		log.Printf("[ELO] global (%s): %d models rated", periodLabel(period), len(ratings))
	}

	definitionIDs, err := e.GetDefinitionsWithScores(ctx)
	if err != nil {
		return summary, err
	}
	log.Printf("[ELO] %d definitions with finalized scores", len(definitionIDs))

	for _, defID := range definitionIDs {
		defID := defID
		for _, period := range TimePeriods {
			ratings, err := e.CalculateEloRatings(ctx, &defID, period, nBootstraps, DefaultKFactor, DefaultBaseRating)
			if err != nil {
				log.Printf("[ELO] definition %d ELO (%s) failed: %v", defID, periodLabel(period), err)
				continue
			}
			if len(ratings) == 0 {
				continue
			}
			if err := e.storeRatings(ctx, ratings); err != nil {
				log.Printf("[ELO] storing definition %d ELO (%s) failed: %v", defID, periodLabel(period), err)
				continue
			}
			summary.PerDefinitionScopes++
		}
	}

	summary.TotalDurationMs = time.Since(start).Milliseconds()
	log.Printf("[ELO] calculation complete: %d global scopes, %d per-definition scopes, %dms",
		summary.GlobalScopes, summary.PerDefinitionScopes, summary.TotalDurationMs)
	return summary, nil
}

func periodLabel(days *int) string {
	if days == nil {
		return "all-time"
	}
	return fmt.Sprintf("%dd", *days)
}

// CalculateEloRatings builds the MASE pivot matrix for one scope and runs
// nBootstraps bootstrap seasons, returning per-model median rating and 95%
// CI sorted by score descending.
func (e *Engine) CalculateEloRatings(ctx context.Context, definitionID *int64, timePeriodDays *int, nBootstraps int, kFactor, baseRating float64) ([]Rating, error) {
	start := time.Now()

	matrix, modelIDs, err := e.scoresMatrix(ctx, definitionID, timePeriodDays)
	if err != nil {
		return nil, err
	}
	if len(matrix) == 0 || len(modelIDs) < 2 {
		return nil, nil
	}

	nModels := len(modelIDs)
	allFinalRatings := make([][]float64, nBootstraps)
	for b := 0; b < nBootstraps; b++ {
		allFinalRatings[b] = runSingleBootstrap(matrix, kFactor, baseRating)
	}

	durationMs := time.Since(start).Milliseconds()

	ratings := make([]Rating, nModels)
	column := make([]float64, nBootstraps)
	for i := 0; i < nModels; i++ {
		for b := 0; b < nBootstraps; b++ {
			column[b] = allFinalRatings[b][i]
		}
		median, lower, upper := medianAndCI(column)

		nMatches := 0
		for _, row := range matrix {
			if !math.IsNaN(row[i]) {
				nMatches++
			}
		}

		ratings[i] = Rating{
			ModelID:               modelIDs[i],
			DefinitionID:          definitionID,
			TimePeriodDays:        timePeriodDays,
			EloScore:              median,
			EloCILower:            lower,
			EloCIUpper:            upper,
			NMatches:              nMatches,
			NBootstraps:           nBootstraps,
			CalculationDurationMs: durationMs,
		}
	}

	sort.Slice(ratings, func(i, j int) bool { return ratings[i].EloScore > ratings[j].EloScore })
	return ratings, nil
}

// runSingleBootstrap runs one ELO season: models start at baseRating, matches
// (matrix rows) are visited in a uniformly random permutation, and every
// match updates all participating (non-NaN) models pairwise.
func runSingleBootstrap(matrix [][]float64, kFactor, baseRating float64) []float64 {
	nModels := len(matrix[0])
	ratings := make([]float64, nModels)
	for i := range ratings {
		ratings[i] = baseRating
	}

	order := rand.Perm(len(matrix))
	for _, matchIdx := range order {
		row := matrix[matchIdx]

		var valid []int
		for j, v := range row {
			if !math.IsNaN(v) {
				valid = append(valid, j)
			}
		}
		if len(valid) < 2 {
			continue
		}

		changes := make([]float64, len(valid))
		for ii, i := range valid {
			var actualSum, expectedSum float64
			for jj, j := range valid {
				if ii == jj {
					continue
				}
				var outcome float64
				switch {
				case row[i] < row[j]:
					outcome = 1.0
				case row[i] == row[j]:
					outcome = 0.5
				default:
					outcome = 0.0
				}
				ra, rb := ratings[i], ratings[j]
				expected := 1.0 / (1.0 + math.Pow(10, (rb-ra)/400.0))
				actualSum += outcome
				expectedSum += expected
			}
			changes[ii] = kFactor * (actualSum - expectedSum)
		}
		for ii, i := range valid {
			ratings[i] += changes[ii]
		}
	}
	return ratings
}

// medianAndCI returns the median and 2.5th/97.5th percentiles of samples,
// using linear interpolation between closest ranks.
func medianAndCI(samples []float64) (median, lower, upper float64) {
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	return percentile(sorted, 50), percentile(sorted, 2.5), percentile(sorted, 97.5)
}

func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	rank := p / 100.0 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
