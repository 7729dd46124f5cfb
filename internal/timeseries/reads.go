package timeseries

import (
	"context"
	"fmt"
	"time"

	"github.com/dag-upb/ts-arena-core/internal/apperr"
)

// VersionedPoint is a single physical SCD2 row, including its validity
// window, as read back by the time-travel and history queries below.
type VersionedPoint struct {
	TS        time.Time
	Value     *float64
	ValidFrom time.Time
	ValidTo   *time.Time
}

// GetCurrentData returns the current (isCurrent=true) version of every
// point for a series, optionally bounded by [startDate, endDate].
func (s *Sink) GetCurrentData(ctx context.Context, seriesID int64, startDate, endDate *time.Time) ([]VersionedPoint, error) {
	query := `
		SELECT ts, value, valid_from, valid_to
		FROM data_portal.time_series_data_scd2
		WHERE series_id = $1 AND is_current = TRUE`
	args := []any{seriesID}
	query, args = appendDateFilters(query, args, startDate, endDate)
	query += " ORDER BY ts"

	return s.queryVersioned(ctx, query, args...)
}

// GetDataAtTime performs a time-travel read: the version of each point whose
// validity interval contained asOfTime, via the valid_during tstzrange
// column's containment operator.
func (s *Sink) GetDataAtTime(ctx context.Context, seriesID int64, asOfTime time.Time, startDate, endDate *time.Time) ([]VersionedPoint, error) {
	query := `
		SELECT ts, value, valid_from, valid_to
		FROM data_portal.time_series_data_scd2
		WHERE series_id = $1 AND valid_during @> $2::timestamptz`
	args := []any{seriesID, asOfTime}
	query, args = appendDateFilters(query, args, startDate, endDate)
	query += " ORDER BY ts"

	return s.queryVersioned(ctx, query, args...)
}

// GetValueHistory returns every physical version of a single (seriesId, ts)
// logical row, ordered by validFrom.
func (s *Sink) GetValueHistory(ctx context.Context, seriesID int64, ts time.Time) ([]VersionedPoint, error) {
	return s.queryVersioned(ctx, `
		SELECT ts, value, valid_from, valid_to
		FROM data_portal.time_series_data_scd2
		WHERE series_id = $1 AND ts = $2
		ORDER BY valid_from`, seriesID, ts)
}

// ChangesSummary reports aggregate change statistics for a series.
type ChangesSummary struct {
	TotalDataPoints    int
	TotalVersions      int
	TotalChanges       int
	HistoricalVersions int
}

func (s *Sink) GetChangesSummary(ctx context.Context, seriesID int64, startDate, endDate *time.Time) (ChangesSummary, error) {
	query := `
		SELECT
			COUNT(DISTINCT ts) AS total_datapoints,
			COUNT(*) AS total_versions,
			COUNT(*) - COUNT(DISTINCT ts) AS total_changes,
			COUNT(CASE WHEN is_current = FALSE THEN 1 END) AS historical_versions
		FROM data_portal.time_series_data_scd2
		WHERE series_id = $1`
	args := []any{seriesID}
	query, args = appendDateFilters(query, args, startDate, endDate)

	var out ChangesSummary
	row := s.db.QueryRow(ctx, query, args...)
	if err := row.Scan(&out.TotalDataPoints, &out.TotalVersions, &out.TotalChanges, &out.HistoricalVersions); err != nil {
		return ChangesSummary{}, apperr.Database(fmt.Errorf("changes summary for series %d: %w", seriesID, err))
	}
	return out, nil
}

func appendDateFilters(query string, args []any, startDate, endDate *time.Time) (string, []any) {
	if startDate != nil {
		args = append(args, *startDate)
		query += fmt.Sprintf(" AND ts >= $%d", len(args))
	}
	if endDate != nil {
		args = append(args, *endDate)
		query += fmt.Sprintf(" AND ts <= $%d", len(args))
	}
	return query, args
}

func (s *Sink) queryVersioned(ctx context.Context, query string, args ...any) ([]VersionedPoint, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Database(fmt.Errorf("query versioned points: %w", err))
	}
	defer rows.Close()

	var out []VersionedPoint
	for rows.Next() {
		var p VersionedPoint
		if err := rows.Scan(&p.TS, &p.Value, &p.ValidFrom, &p.ValidTo); err != nil {
			return nil, apperr.Database(fmt.Errorf("scan versioned point: %w", err))
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
