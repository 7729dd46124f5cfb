// Package timeseries implements the idempotent bulk sink operations this
// system persists data through: a latest-wins operational upsert and a
// single-transaction SCD Type 2 upsert with quality codes.
package timeseries

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dag-upb/ts-arena-core/internal/apperr"
)

// DataPoint is a single (ts, value) sample to persist. Value is nil for
// large-gap null markers.
type DataPoint struct {
	TS      time.Time
	Value   *float64
	Quality int
}

// Sink writes time-series data into the operational table and the SCD2
// history table against a shared pool.
type Sink struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Sink { return &Sink{db: db} }

// UpsertOperational deduplicates points by timestamp (last occurrence wins),
// then atomically upserts (seriesId, ts) -> value via ON CONFLICT DO UPDATE.
// Null-valued points are never written to the operational table; only the
// SCD2 history records null markers.
func (s *Sink) UpsertOperational(ctx context.Context, seriesID int64, points []DataPoint) (rowsAffected int, err error) {
	deduped := dedupeByTS(points)
	if len(deduped) == 0 {
		return 0, nil
	}

	type row struct {
		TS    time.Time `json:"ts"`
		Value float64   `json:"value"`
	}
	rows := make([]row, 0, len(deduped))
	for _, p := range deduped {
		if p.Value == nil {
			continue
		}
		rows = append(rows, row{TS: p.TS, Value: *p.Value})
	}
	if len(rows) == 0 {
		return 0, nil
	}

	payload, err := json.Marshal(rows)
	if err != nil {
		return 0, apperr.Database(fmt.Errorf("marshal operational payload: %w", err))
	}

	tag, err := s.db.Exec(ctx, `
		INSERT INTO data_portal.time_series_data (series_id, ts, value)
		SELECT $1, (d->>'ts')::timestamptz, (d->>'value')::double precision
		FROM jsonb_array_elements($2::jsonb) d
		ON CONFLICT (series_id, ts) DO UPDATE SET value = excluded.value
	`, seriesID, payload)
	if err != nil {
		return 0, apperr.Database(fmt.Errorf("upsert operational rows for series %d: %w", seriesID, err))
	}
	return int(tag.RowsAffected()), nil
}

// SCD2UpsertResult reports how many input rows were inserted (new current
// version), updated (prior current version closed), or left unchanged.
type SCD2UpsertResult struct {
	Inserted  int
	Updated   int
	Unchanged int
}

// UpsertSCD2 performs a close-then-insert in a single statement: any
// (seriesId, ts) whose incoming (value, qualityCode) differs from the current
// row gets that row closed and a new current row inserted; rows with no
// current version at all get one inserted; everything else is left untouched.
// One statement means one transaction, which keeps the one-current-row
// invariant under concurrent writers.
func (s *Sink) UpsertSCD2(ctx context.Context, seriesID int64, points []DataPoint) (SCD2UpsertResult, error) {
	deduped := dedupeByTS(points)
	if len(deduped) == 0 {
		return SCD2UpsertResult{}, nil
	}

	type row struct {
		SeriesID    int64    `json:"series_id"`
		TS          string   `json:"ts"`
		Value       *float64 `json:"value"`
		QualityCode int      `json:"quality_code"`
	}
	rows := make([]row, 0, len(deduped))
	for _, p := range deduped {
		rows = append(rows, row{
			SeriesID:    seriesID,
			TS:          p.TS.Format(time.RFC3339),
			Value:       p.Value,
			QualityCode: p.Quality,
		})
	}

	payload, err := json.Marshal(rows)
	if err != nil {
		return SCD2UpsertResult{}, apperr.Database(fmt.Errorf("marshal scd2 payload: %w", err))
	}

	const upsertQuery = `
WITH input_data(series_id, ts, value, quality_code) AS (
  SELECT (d->>'series_id')::int,
         (d->>'ts')::timestamptz,
         (d->>'value')::double precision,
         COALESCE((d->>'quality_code')::smallint, 0)
  FROM jsonb_array_elements($1::jsonb) d
),
closed AS (
  UPDATE data_portal.time_series_data_scd2 t
  SET valid_to = NOW(),
      is_current = FALSE,
      updated_at = NOW()
  FROM input_data i
  WHERE t.series_id = i.series_id
    AND t.ts = i.ts
    AND t.is_current = TRUE
    AND (t.value IS DISTINCT FROM i.value OR t.quality_code IS DISTINCT FROM i.quality_code)
  RETURNING t.series_id, t.ts
),
new_records AS (
  INSERT INTO data_portal.time_series_data_scd2
    (series_id, ts, value, quality_code, valid_from, valid_to, is_current, created_at)
  SELECT i.series_id, i.ts, i.value, i.quality_code, NOW(), NULL, TRUE, NOW()
  FROM input_data i
  WHERE EXISTS (SELECT 1 FROM closed c WHERE c.series_id = i.series_id AND c.ts = i.ts)
     OR NOT EXISTS (
       SELECT 1 FROM data_portal.time_series_data_scd2 t
       WHERE t.series_id = i.series_id
         AND t.ts = i.ts
         AND t.is_current = TRUE
     )
  RETURNING 1
)
SELECT
  (SELECT COUNT(*) FROM new_records) AS inserted_count,
  (SELECT COUNT(*) FROM closed) AS updated_count;
`

	row0 := s.db.QueryRow(ctx, upsertQuery, payload)
	var inserted, updated int
	if err := row0.Scan(&inserted, &updated); err != nil {
		return SCD2UpsertResult{}, apperr.Database(fmt.Errorf("scd2 upsert for series %d: %w", seriesID, err))
	}

	return scd2Counts(len(deduped), inserted, updated), nil
}

// scd2Counts derives the per-batch outcome from the statement's two
// counters. new_records covers both brand-new rows and closed-and-reinserted
// ones, so updated is a subset of inserted; a row was left untouched exactly
// when it produced no insert.
func scd2Counts(batchSize, inserted, updated int) SCD2UpsertResult {
	return SCD2UpsertResult{Inserted: inserted, Updated: updated, Unchanged: batchSize - inserted}
}

// dedupeByTS keeps the last occurrence of each timestamp.
func dedupeByTS(points []DataPoint) []DataPoint {
	if len(points) == 0 {
		return nil
	}
	byTS := make(map[int64]DataPoint, len(points))
	order := make([]int64, 0, len(points))
	for _, p := range points {
		key := p.TS.Unix()
		if _, exists := byTS[key]; !exists {
			order = append(order, key)
		}
		byTS[key] = p
	}
	out := make([]DataPoint, 0, len(order))
	for _, key := range order {
		out = append(out, byTS[key])
	}
	return out
}
