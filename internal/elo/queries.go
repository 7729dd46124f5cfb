package elo

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/dag-upb/ts-arena-core/internal/apperr"
)

type matchKey struct {
	RoundID  int64
	SeriesID int64
}

// scoresMatrix builds the pivot matrix for one scope: rows are matches
// (roundId, seriesId), columns are model ids in sorted order, values are
// MASE with math.NaN() for absent entries.
func (e *Engine) scoresMatrix(ctx context.Context, definitionID *int64, timePeriodDays *int) ([][]float64, []int64, error) {
	query := `
		SELECT fs.round_id, fs.series_id, fs.model_id, fs.mase
		FROM forecasts.scores fs
		JOIN rounds.challenge_round cr ON fs.round_id = cr.id
		WHERE fs.final_evaluation = TRUE
		  AND fs.mase IS NOT NULL
		  AND fs.mase != 'NaN'
		  AND fs.mase != 'Infinity'
		  AND fs.mase != '-Infinity'
	`
	var args []any
	argIdx := 1
	if definitionID != nil {
		query += fmt.Sprintf(" AND cr.definition_id = $%d", argIdx)
		args = append(args, *definitionID)
		argIdx++
	}
	if timePeriodDays != nil {
		query += fmt.Sprintf(" AND cr.end_time >= now() - ($%d || ' days')::interval", argIdx)
		args = append(args, *timePeriodDays)
		argIdx++
	}
	query += " ORDER BY fs.round_id, fs.series_id, fs.model_id"

	rows, err := e.db.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, apperr.Database(fmt.Errorf("query scores matrix: %w", err))
	}
	defer rows.Close()

	type cell struct {
		match   matchKey
		modelID int64
		mase    float64
	}
	var cells []cell
	matchSet := make(map[matchKey]bool)
	modelSet := make(map[int64]bool)

	for rows.Next() {
		var c cell
		if err := rows.Scan(&c.match.RoundID, &c.match.SeriesID, &c.modelID, &c.mase); err != nil {
			return nil, nil, apperr.Database(fmt.Errorf("scan scores matrix row: %w", err))
		}
		matchSet[c.match] = true
		modelSet[c.modelID] = true
		cells = append(cells, c)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, apperr.Database(err)
	}
	if len(cells) == 0 {
		return nil, nil, nil
	}

	matchIDs := make([]matchKey, 0, len(matchSet))
	for m := range matchSet {
		matchIDs = append(matchIDs, m)
	}
	sort.Slice(matchIDs, func(i, j int) bool {
		if matchIDs[i].RoundID != matchIDs[j].RoundID {
			return matchIDs[i].RoundID < matchIDs[j].RoundID
		}
		return matchIDs[i].SeriesID < matchIDs[j].SeriesID
	})
	modelIDs := make([]int64, 0, len(modelSet))
	for m := range modelSet {
		modelIDs = append(modelIDs, m)
	}
	sort.Slice(modelIDs, func(i, j int) bool { return modelIDs[i] < modelIDs[j] })

	matchIdx := make(map[matchKey]int, len(matchIDs))
	for i, m := range matchIDs {
		matchIdx[m] = i
	}
	modelIdx := make(map[int64]int, len(modelIDs))
	for i, m := range modelIDs {
		modelIdx[m] = i
	}

	matrix := make([][]float64, len(matchIDs))
	for i := range matrix {
		matrix[i] = make([]float64, len(modelIDs))
		for j := range matrix[i] {
			matrix[i][j] = math.NaN()
		}
	}
	for _, c := range cells {
		matrix[matchIdx[c.match]][modelIdx[c.modelID]] = c.mase
	}

	return matrix, modelIDs, nil
}

// GetDefinitionsWithScores returns every definition id that has at least one
// finalized, non-null MASE score.
func (e *Engine) GetDefinitionsWithScores(ctx context.Context) ([]int64, error) {
	rows, err := e.db.Query(ctx, `
		SELECT DISTINCT cr.definition_id
		FROM forecasts.scores fs
		JOIN rounds.challenge_round cr ON fs.round_id = cr.id
		WHERE fs.final_evaluation = TRUE
		  AND fs.mase IS NOT NULL
		  AND cr.definition_id IS NOT NULL
		ORDER BY cr.definition_id
	`)
	if err != nil {
		return nil, apperr.Database(fmt.Errorf("query definitions with scores: %w", err))
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Database(fmt.Errorf("scan definition id: %w", err))
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// storeRatings upserts ratings keyed on (modelId, COALESCE(definitionId,-1),
// COALESCE(timePeriodDays,0)), the expression behind the table's unique
// index.
func (e *Engine) storeRatings(ctx context.Context, ratings []Rating) error {
	if len(ratings) == 0 {
		return nil
	}
	tx, err := e.db.Begin(ctx)
	if err != nil {
		return apperr.Database(fmt.Errorf("begin elo rating upsert tx: %w", err))
	}
	defer tx.Rollback(ctx)

	for _, r := range ratings {
		_, err := tx.Exec(ctx, `
			INSERT INTO forecasts.elo_ratings
				(model_id, definition_id, time_period_days, elo_score, elo_ci_lower, elo_ci_upper,
				 n_matches, n_bootstraps, calculation_duration_ms, calculated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
			ON CONFLICT (model_id, COALESCE(definition_id, -1), COALESCE(time_period_days, 0))
			DO UPDATE SET
				elo_score = excluded.elo_score,
				elo_ci_lower = excluded.elo_ci_lower,
				elo_ci_upper = excluded.elo_ci_upper,
				n_matches = excluded.n_matches,
				n_bootstraps = excluded.n_bootstraps,
				calculation_duration_ms = excluded.calculation_duration_ms,
				calculated_at = excluded.calculated_at
		`, r.ModelID, r.DefinitionID, r.TimePeriodDays, r.EloScore, r.EloCILower, r.EloCIUpper,
			r.NMatches, r.NBootstraps, r.CalculationDurationMs)
		if err != nil {
			return apperr.Database(fmt.Errorf("upsert elo rating (model=%d): %w", r.ModelID, err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Database(fmt.Errorf("commit elo rating upserts: %w", err))
	}
	return nil
}

// HasCalculatedToday reports whether global ELO has already run today, used
// to skip the startup back-check when a periodic run already covered it.
func (e *Engine) HasCalculatedToday(ctx context.Context) (bool, error) {
	var exists bool
	err := e.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM forecasts.elo_ratings
			WHERE definition_id IS NULL
			  AND calculated_at::date = CURRENT_DATE
		)
	`).Scan(&exists)
	if err != nil {
		return false, apperr.Database(fmt.Errorf("check elo calculated today: %w", err))
	}
	return exists, nil
}
