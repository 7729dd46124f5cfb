package timeseries

import (
	"context"
	"fmt"

	"github.com/dag-upb/ts-arena-core/internal/adapter"
	"github.com/dag-upb/ts-arena-core/internal/apperr"
)

// GetOrCreateSeriesID resolves the stable textual uniqueId to its integer
// surrogate seriesId, inserting a new TimeSeries row with the given metadata
// if one doesn't exist yet. Identity (uniqueId) is immutable; name,
// description, unit, domain, category and subcategory are updated on every
// call so config edits propagate. Frequency and update frequency keep the
// values they were first inserted with.
func (s *Sink) GetOrCreateSeriesID(ctx context.Context, md adapter.Metadata) (int64, error) {
	var seriesID int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO data_portal.time_series
			(unique_id, name, description, frequency, update_frequency, unit, domain, category, subcategory)
		VALUES ($1, $2, $3, $4::interval, $5::interval, $6, $7, $8, $9)
		ON CONFLICT (unique_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			unit = excluded.unit,
			domain = excluded.domain,
			category = excluded.category,
			subcategory = excluded.subcategory
		RETURNING id
	`, md.UniqueID, md.Name, md.Description, md.Frequency.PGInterval(), md.UpdateFrequency.PGInterval(),
		md.Unit, md.Domain, md.Category, md.Subcategory).Scan(&seriesID)
	if err != nil {
		return 0, apperr.Database(fmt.Errorf("get or create series %q: %w", md.UniqueID, err))
	}
	return seriesID, nil
}

// UpdateDetectedTimezone records a timezone an adapter detected from its
// upstream payload.
func (s *Sink) UpdateDetectedTimezone(ctx context.Context, seriesID int64, timezone string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE data_portal.time_series SET timezone = $2 WHERE id = $1
	`, seriesID, timezone)
	if err != nil {
		return apperr.Database(fmt.Errorf("update detected timezone for series %d: %w", seriesID, err))
	}
	return nil
}
