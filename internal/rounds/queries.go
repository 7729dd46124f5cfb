package rounds

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dag-upb/ts-arena-core/internal/apperr"
	"github.com/dag-upb/ts-arena-core/internal/duration"
)

// contextPoint is one snapshot-bound sample read from a resolution view.
type contextPoint struct {
	TS    time.Time
	Value *float64
}

// filterRecentlyActive returns series ids matching the domain/subdomain
// filters whose metadata frequency matches freq and which have recent data
// per the server-side availability view.
func (m *Materializer) filterRecentlyActive(ctx context.Context, domain, subdomain string, freq duration.Duration, asOf time.Time) ([]int64, error) {
	query := `
		SELECT ts.id
		FROM data_portal.time_series ts
		JOIN data_portal.v_series_recent_data av ON av.series_id = ts.id
		WHERE ts.frequency = $1::interval
		  AND ($2 = 'mixed' OR ts.domain = $2)
		  AND ($3 = '' OR ts.subcategory = $3)
	`
	rows, err := m.db.Query(ctx, query, freq.PGInterval(), domain, subdomain)
	if err != nil {
		return nil, apperr.Database(fmt.Errorf("filter recently active series: %w", err))
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Database(fmt.Errorf("scan candidate series id: %w", err))
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (m *Materializer) seriesName(ctx context.Context, seriesID int64) (string, error) {
	var name string
	err := m.db.QueryRow(ctx, `SELECT name FROM data_portal.time_series WHERE id = $1`, seriesID).Scan(&name)
	if err != nil {
		return "", apperr.Database(fmt.Errorf("load name for series %d: %w", seriesID, err))
	}
	return name, nil
}

// copyContextPoints reads the last contextLength points per series from the
// resolution view, constrained to ts < startTime and to data as it existed
// at asOf: a point only qualifies if the SCD2 history already held a
// version of it at that instant, so late-arriving revisions never leak into
// a round's snapshot. The resolution view name has already been validated
// by the caller via internal/sqlident.
func (m *Materializer) copyContextPoints(ctx context.Context, resolution Resolution, seriesID int64, startTime, asOf time.Time, contextLength int) ([]contextPoint, error) {
	query := fmt.Sprintf(`
		SELECT v.ts, v.value FROM %s v
		WHERE v.series_id = $1 AND v.ts < $2 AND v.ts <= $3
		  AND EXISTS (
		      SELECT 1 FROM data_portal.time_series_data_scd2 h
		      WHERE h.series_id = v.series_id AND h.ts = v.ts AND h.valid_from <= $3
		  )
		ORDER BY v.ts DESC
		LIMIT $4
	`, resolution.ViewName())

	rows, err := m.db.Query(ctx, query, seriesID, startTime, asOf, contextLength)
	if err != nil {
		return nil, apperr.Database(fmt.Errorf("copy context points for series %d: %w", seriesID, err))
	}
	defer rows.Close()

	var points []contextPoint
	for rows.Next() {
		var p contextPoint
		if err := rows.Scan(&p.TS, &p.Value); err != nil {
			return nil, apperr.Database(fmt.Errorf("scan context point for series %d: %w", seriesID, err))
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Database(err)
	}

	// Rows come back DESC (most recent first); restore chronological order.
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	return points, nil
}

// LoadRoundForPreparation reads back a round's time windows and its
// preparation_params, recovering the original creation instant from the
// params' cutoffTime field so PrepareRoundContextData's time-travel read
// lands exactly where CreateRoundFromDefinition left it.
func (m *Materializer) LoadRoundForPreparation(ctx context.Context, roundID int64) (Round, time.Time, error) {
	var r Round
	var horizonSeconds, freqSeconds float64
	var paramsJSON []byte

	row := m.db.QueryRow(ctx, `
		SELECT id, context_length, EXTRACT(EPOCH FROM horizon), EXTRACT(EPOCH FROM frequency),
		       registration_start, registration_end, start_time, end_time, preparation_params
		FROM rounds.challenge_round
		WHERE id = $1
	`, roundID)
	if err := row.Scan(&r.ID, &r.ContextLength, &horizonSeconds, &freqSeconds,
		&r.RegistrationStart, &r.RegistrationEnd, &r.StartTime, &r.EndTime, &paramsJSON); err != nil {
		return Round{}, time.Time{}, apperr.Database(fmt.Errorf("load round %d for preparation: %w", roundID, err))
	}

	var err error
	if r.Horizon, err = duration.Parse(fmt.Sprintf("%d seconds", int64(horizonSeconds))); err != nil {
		return Round{}, time.Time{}, err
	}
	if r.Frequency, err = duration.Parse(fmt.Sprintf("%d seconds", int64(freqSeconds))); err != nil {
		return Round{}, time.Time{}, err
	}

	var params PreparationParams
	if err := json.Unmarshal(paramsJSON, &params); err != nil {
		return Round{}, time.Time{}, apperr.Database(fmt.Errorf("unmarshal preparation params for round %d: %w", roundID, err))
	}
	createdAt, err := time.Parse(time.RFC3339, params.CutoffTime)
	if err != nil {
		return Round{}, time.Time{}, apperr.Database(fmt.Errorf("parse cutoffTime for round %d: %w", roundID, err))
	}

	return r, createdAt, nil
}

func (m *Materializer) upsertRoundSeriesPseudo(ctx context.Context, tx pgx.Tx, roundID, seriesID int64, pseudo string, stats seriesStats) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO rounds.round_series_pseudo
			(round_id, series_id, challenge_series_name, min_ts, max_ts, value_avg, value_std)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (round_id, series_id) DO UPDATE SET
			challenge_series_name = excluded.challenge_series_name,
			min_ts = excluded.min_ts,
			max_ts = excluded.max_ts,
			value_avg = excluded.value_avg,
			value_std = excluded.value_std
	`, roundID, seriesID, pseudo, stats.MinTS, stats.MaxTS, stats.ValueAvg, stats.ValueStd)
	if err != nil {
		return apperr.Database(fmt.Errorf("upsert round_series_pseudo (round=%d, series=%d): %w", roundID, seriesID, err))
	}
	return nil
}

func (m *Materializer) insertContextSnapshot(ctx context.Context, tx pgx.Tx, roundID, seriesID int64, points []contextPoint) error {
	for _, p := range points {
		_, err := tx.Exec(ctx, `
			INSERT INTO rounds.round_context_snapshot (round_id, series_id, ts, value)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (round_id, series_id, ts) DO NOTHING
		`, roundID, seriesID, p.TS, p.Value)
		if err != nil {
			return apperr.Database(fmt.Errorf("insert context snapshot (round=%d, series=%d, ts=%s): %w", roundID, seriesID, p.TS, err))
		}
	}
	return nil
}
