package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dag-upb/ts-arena-core/internal/apperr"
	"github.com/dag-upb/ts-arena-core/internal/duration"
	"github.com/dag-upb/ts-arena-core/internal/rounds"
)

// roundInfo is the subset of rounds.Round this package needs; scoring reads
// its own copy directly from rounds.challenge_round rather than depending on
// the rounds package's Round-loading internals.
type roundInfo struct {
	ID        int64
	Frequency duration.Duration
	EndTime   time.Time
}

type forecastStatsRow struct {
	Count int
}

func (e *Evaluator) loadRound(ctx context.Context, roundID int64) (roundInfo, error) {
	var r roundInfo
	var freqSeconds float64
	err := e.db.QueryRow(ctx, `
		SELECT id, EXTRACT(EPOCH FROM frequency), end_time
		FROM rounds.challenge_round
		WHERE id = $1
	`, roundID).Scan(&r.ID, &freqSeconds, &r.EndTime)
	if err != nil {
		return roundInfo{}, apperr.Database(fmt.Errorf("load round %d: %w", roundID, err))
	}
	freq, err := duration.Parse(fmt.Sprintf("%d seconds", int64(freqSeconds)))
	if err != nil {
		return roundInfo{}, apperr.Database(fmt.Errorf("parse frequency for round %d: %w", roundID, err))
	}
	r.Frequency = freq
	return r, nil
}

// roundsNeedingEvaluation returns active or completed rounds that haven't
// been finalized yet, re-evaluated on every tick until every score reaches
// status=complete.
func (e *Evaluator) roundsNeedingEvaluation(ctx context.Context) ([]int64, error) {
	rows, err := e.db.Query(ctx, `
		SELECT cr.id
		FROM rounds.challenge_round cr
		WHERE cr.start_time <= now()
		  AND cr.is_cancelled = FALSE
		  AND EXISTS (SELECT 1 FROM forecasts.forecasts f WHERE f.round_id = cr.id)
		  AND NOT (
		      EXISTS (SELECT 1 FROM forecasts.scores s WHERE s.round_id = cr.id)
		      AND NOT EXISTS (SELECT 1 FROM forecasts.scores s WHERE s.round_id = cr.id AND s.final_evaluation = FALSE)
		  )
		ORDER BY cr.id
	`)
	if err != nil {
		return nil, apperr.Database(fmt.Errorf("query rounds needing evaluation: %w", err))
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Database(fmt.Errorf("scan candidate round id: %w", err))
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (e *Evaluator) participantModelIDs(ctx context.Context, roundID int64) ([]int64, error) {
	rows, err := e.db.Query(ctx, `SELECT DISTINCT model_id FROM forecasts.forecasts WHERE round_id = $1`, roundID)
	if err != nil {
		return nil, apperr.Database(fmt.Errorf("query participant models for round %d: %w", roundID, err))
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Database(fmt.Errorf("scan participant model id: %w", err))
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (e *Evaluator) roundSeriesIDs(ctx context.Context, roundID int64) ([]int64, error) {
	rows, err := e.db.Query(ctx, `SELECT series_id FROM rounds.round_series_pseudo WHERE round_id = $1`, roundID)
	if err != nil {
		return nil, apperr.Database(fmt.Errorf("query round series for round %d: %w", roundID, err))
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Database(fmt.Errorf("scan round series id: %w", err))
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (e *Evaluator) forecastStats(ctx context.Context, roundID, modelID, seriesID int64) (forecastStatsRow, error) {
	var count int
	err := e.db.QueryRow(ctx, `
		SELECT count(*) FROM forecasts.forecasts
		WHERE round_id = $1 AND model_id = $2 AND series_id = $3
	`, roundID, modelID, seriesID).Scan(&count)
	if err != nil {
		return forecastStatsRow{}, apperr.Database(fmt.Errorf("count forecasts (round=%d, model=%d, series=%d): %w", roundID, modelID, seriesID, err))
	}
	return forecastStatsRow{Count: count}, nil
}

func (e *Evaluator) roundSeriesMaxTS(ctx context.Context, roundID, seriesID int64) (time.Time, bool, error) {
	var maxTS time.Time
	err := e.db.QueryRow(ctx, `
		SELECT max_ts FROM rounds.round_series_pseudo WHERE round_id = $1 AND series_id = $2
	`, roundID, seriesID).Scan(&maxTS)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, apperr.Database(fmt.Errorf("load max_ts (round=%d, series=%d): %w", roundID, seriesID, err))
	}
	return maxTS, true, nil
}

// readResolutionValue reads the last known value at or before asOf from the
// resolution view, used as the naive-forecast baseline (the last observed
// context value held constant).
func (e *Evaluator) readResolutionValue(ctx context.Context, resolution rounds.Resolution, seriesID int64, asOf time.Time) (float64, bool, error) {
	query := fmt.Sprintf(`
		SELECT value FROM %s
		WHERE series_id = $1 AND ts <= $2 AND value IS NOT NULL
		ORDER BY ts DESC
		LIMIT 1
	`, resolution.ViewName())

	var value float64
	err := e.db.QueryRow(ctx, query, seriesID, asOf).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, apperr.Database(fmt.Errorf("load baseline value for series %d: %w", seriesID, err))
	}
	return value, true, nil
}

// alignedEvaluationData joins forecasts against actuals by minute-truncated
// timestamp, returning only the pairs where both sides have a non-null
// value.
func (e *Evaluator) alignedEvaluationData(ctx context.Context, resolution rounds.Resolution, roundID, modelID, seriesID int64) (yTrue, yPred []float64, err error) {
	query := fmt.Sprintf(`
		SELECT actual.value, f.value
		FROM forecasts.forecasts f
		JOIN %s actual
		  ON actual.series_id = f.series_id
		 AND date_trunc('minute', actual.ts) = date_trunc('minute', f.ts)
		WHERE f.round_id = $1 AND f.model_id = $2 AND f.series_id = $3
		  AND f.value IS NOT NULL AND actual.value IS NOT NULL
		ORDER BY f.ts
	`, resolution.ViewName())

	rows, err := e.db.Query(ctx, query, roundID, modelID, seriesID)
	if err != nil {
		return nil, nil, apperr.Database(fmt.Errorf("query aligned evaluation data (round=%d, model=%d, series=%d): %w", roundID, modelID, seriesID, err))
	}
	defer rows.Close()

	for rows.Next() {
		var actual, predicted float64
		if err := rows.Scan(&actual, &predicted); err != nil {
			return nil, nil, apperr.Database(fmt.Errorf("scan aligned evaluation row: %w", err))
		}
		yTrue = append(yTrue, actual)
		yPred = append(yPred, predicted)
	}
	return yTrue, yPred, rows.Err()
}

func (e *Evaluator) bulkUpsertScores(ctx context.Context, scores []Score) error {
	if len(scores) == 0 {
		return nil
	}
	tx, err := e.db.Begin(ctx)
	if err != nil {
		return apperr.Database(fmt.Errorf("begin score upsert tx: %w", err))
	}
	defer tx.Rollback(ctx)

	for _, s := range scores {
		_, err := tx.Exec(ctx, `
			INSERT INTO forecasts.scores
				(round_id, model_id, series_id, mase, rmse, forecast_count, actual_count,
				 evaluated_count, data_coverage, status, error_message, final_evaluation, evaluated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, FALSE, now())
			ON CONFLICT (round_id, model_id, series_id) DO UPDATE SET
				mase = excluded.mase,
				rmse = excluded.rmse,
				forecast_count = excluded.forecast_count,
				actual_count = excluded.actual_count,
				evaluated_count = excluded.evaluated_count,
				data_coverage = excluded.data_coverage,
				status = excluded.status,
				error_message = excluded.error_message,
				evaluated_at = excluded.evaluated_at
			WHERE forecasts.scores.final_evaluation = FALSE
		`, s.RoundID, s.ModelID, s.SeriesID, s.MASE, s.RMSE, s.ForecastCount, s.ActualCount,
			s.EvaluatedCount, s.DataCoverage, string(s.Status), s.ErrorMessage)
		if err != nil {
			return apperr.Database(fmt.Errorf("upsert score (round=%d, model=%d, series=%d): %w", s.RoundID, s.ModelID, s.SeriesID, err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Database(fmt.Errorf("commit score upserts: %w", err))
	}
	return nil
}

func (e *Evaluator) allScoresComplete(ctx context.Context, roundID int64) (bool, error) {
	var incomplete int
	err := e.db.QueryRow(ctx, `
		SELECT count(*) FROM forecasts.scores
		WHERE round_id = $1 AND status != $2
	`, roundID, string(StatusComplete)).Scan(&incomplete)
	if err != nil {
		return false, apperr.Database(fmt.Errorf("count incomplete scores for round %d: %w", roundID, err))
	}
	return incomplete == 0, nil
}

func (e *Evaluator) markScoresFinal(ctx context.Context, roundID int64) error {
	_, err := e.db.Exec(ctx, `UPDATE forecasts.scores SET final_evaluation = TRUE WHERE round_id = $1`, roundID)
	if err != nil {
		return apperr.Database(fmt.Errorf("mark scores final for round %d: %w", roundID, err))
	}
	return nil
}
