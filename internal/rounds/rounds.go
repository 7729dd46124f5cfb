// Package rounds implements round materialization: creating a round from a
// definition, computing its time windows, and, at the scheduled instant,
// resolving selected series, pseudonymizing them, and snapshotting context
// data.
package rounds

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dag-upb/ts-arena-core/internal/apperr"
	"github.com/dag-upb/ts-arena-core/internal/definitions"
	"github.com/dag-upb/ts-arena-core/internal/duration"
	"github.com/dag-upb/ts-arena-core/internal/sqlident"
)

// Status is the closed set of round lifecycle states.
type Status string

const (
	StatusAnnounced    Status = "announced"
	StatusRegistration Status = "registration"
	StatusActive       Status = "active"
	StatusCompleted    Status = "completed"
	StatusCancelled    Status = "cancelled"
)

// ComputeStatus derives the round status from its timestamps and cancelled
// flag. Cancellation wins over every timestamp-derived state.
func ComputeStatus(now, registrationStart, startTime, endTime time.Time, isCancelled bool) Status {
	if isCancelled {
		return StatusCancelled
	}
	switch {
	case !now.Before(endTime):
		return StatusCompleted
	case !now.Before(startTime):
		return StatusActive
	case !now.Before(registrationStart):
		return StatusRegistration
	default:
		return StatusAnnounced
	}
}

// Round is the ChallengeRound entity.
type Round struct {
	ID                int64
	DefinitionID      *int64
	Name              string
	ContextLength     int
	Horizon           duration.Duration
	Frequency         duration.Duration
	RegistrationStart time.Time
	RegistrationEnd   time.Time
	StartTime         time.Time
	EndTime           time.Time
	IsCancelled       bool
}

// PreparationParams is the free-form snapshot persisted at creation time and
// consumed by PrepareRoundContextData.
type PreparationParams struct {
	Domain            string  `json:"domain"`
	Subdomain         string  `json:"subdomain,omitempty"`
	RequiredSeriesIDs []int64 `json:"requiredSeriesIds"`
	NSeries           int     `json:"nSeries"`
	ContextLength     int     `json:"contextLength"`
	CutoffTime        string  `json:"cutoffTime"`
}

// Materializer owns round creation and preparation against the shared pool.
type Materializer struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Materializer { return &Materializer{db: db} }

// CreateRoundFromDefinition computes the round's time windows relative to
// now and upserts it keyed by its unique name, so firing the creating job
// twice within the same second returns the same round.
func (m *Materializer) CreateRoundFromDefinition(ctx context.Context, def definitions.Definition, now time.Time) (Round, error) {
	registrationStart := now.Add(def.AnnounceLead.AsTimeDuration())
	registrationEnd := registrationStart.Add(def.RegistrationDuration.AsTimeDuration())
	startTime := registrationEnd
	endTime := startTime.Add(def.Horizon.AsTimeDuration())

	name := fmt.Sprintf("%s - %s", def.Name, now.UTC().Truncate(time.Second).Format("2006-01-02 15:04:05")+" UTC")

	requiredIDs, err := m.requiredSeriesIDs(ctx, def.ID)
	if err != nil {
		return Round{}, err
	}

	params := PreparationParams{
		Domain:            def.Domain,
		Subdomain:         def.Subdomain,
		RequiredSeriesIDs: requiredIDs,
		NSeries:           def.NSeries,
		ContextLength:     def.ContextLength,
		CutoffTime:        now.UTC().Format(time.RFC3339),
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return Round{}, apperr.Database(fmt.Errorf("marshal preparation params: %w", err))
	}

	var round Round
	row := m.db.QueryRow(ctx, `
		INSERT INTO rounds.challenge_round
			(definition_id, name, context_length, horizon, frequency,
			 registration_start, registration_end, start_time, end_time,
			 preparation_params, is_cancelled)
		VALUES ($1, $2, $3, $4::interval, $5::interval, $6, $7, $8, $9, $10::jsonb, FALSE)
		ON CONFLICT (name) DO UPDATE SET name = rounds.challenge_round.name
		RETURNING id, registration_start, registration_end, start_time, end_time
	`, def.ID, name, def.ContextLength, def.Horizon.PGInterval(), def.Frequency.PGInterval(),
		registrationStart, registrationEnd, startTime, endTime, paramsJSON)

	if err := row.Scan(&round.ID, &round.RegistrationStart, &round.RegistrationEnd, &round.StartTime, &round.EndTime); err != nil {
		return Round{}, apperr.Database(fmt.Errorf("upsert round %q: %w", name, err))
	}

	round.DefinitionID = &def.ID
	round.Name = name
	round.ContextLength = def.ContextLength
	round.Horizon = def.Horizon
	round.Frequency = def.Frequency

	return round, nil
}

func (m *Materializer) requiredSeriesIDs(ctx context.Context, definitionID int64) ([]int64, error) {
	rows, err := m.db.Query(ctx, `
		SELECT series_id FROM rounds.definition_series_assignment
		WHERE definition_id = $1 AND is_current = TRUE AND is_required = TRUE AND NOT is_excluded
	`, definitionID)
	if err != nil {
		return nil, apperr.Database(fmt.Errorf("query required series for definition %d: %w", definitionID, err))
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Database(fmt.Errorf("scan required series id: %w", err))
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Pseudonym returns the challengeSeriesName for a series within a round:
// plaintext for required series, a deterministic 12-hex digest otherwise.
// The digest hides series identity from participants while keeping joins
// stable.
func Pseudonym(roundID, seriesID int64, seriesName string, isRequired bool) string {
	if isRequired {
		return seriesName
	}
	sum := sha1.Sum([]byte(fmt.Sprintf("%d:%d", roundID, seriesID)))
	return fmt.Sprintf("series_%x", sum)[:len("series_")+12]
}

// seriesStats mirrors the round_series_pseudo statistics columns.
type seriesStats struct {
	MinTS    time.Time
	MaxTS    time.Time
	ValueAvg float64
	ValueStd float64
}

// PrepareRoundContextData executes at registrationStart: resolves selected
// series (required first, then randomly sampled top-up filtered by domain/
// frequency and recent-data availability), computes pseudonyms and
// per-series stats, and snapshots the last contextLength points per series,
// as of round creation time, into the round context snapshot table.
func (m *Materializer) PrepareRoundContextData(ctx context.Context, round Round, createdAt time.Time) error {
	var paramsJSON []byte
	if err := m.db.QueryRow(ctx, `SELECT preparation_params FROM rounds.challenge_round WHERE id = $1`, round.ID).Scan(&paramsJSON); err != nil {
		return apperr.Database(fmt.Errorf("load preparation params for round %d: %w", round.ID, err))
	}
	var params PreparationParams
	if err := json.Unmarshal(paramsJSON, &params); err != nil {
		return apperr.Database(fmt.Errorf("unmarshal preparation params for round %d: %w", round.ID, err))
	}

	resolution := ResolveFrequency(round.Frequency)
	if err := sqlident.ValidateRelationName(resolution.ViewName()); err != nil {
		return fmt.Errorf("round %d: %w", round.ID, err)
	}

	candidateIDs, err := m.filterRecentlyActive(ctx, params.Domain, params.Subdomain, round.Frequency, createdAt)
	if err != nil {
		return err
	}

	selected := selectSeries(params.RequiredSeriesIDs, candidateIDs, params.NSeries)
	if len(selected) < params.NSeries {
		log.Printf("[Rounds] round %d: only %d/%d candidate series available, continuing with fewer", round.ID, len(selected), params.NSeries)
	}

	requiredSet := make(map[int64]bool, len(params.RequiredSeriesIDs))
	for _, id := range params.RequiredSeriesIDs {
		requiredSet[id] = true
	}

	tx, err := m.db.Begin(ctx)
	if err != nil {
		return apperr.Database(fmt.Errorf("begin preparation tx for round %d: %w", round.ID, err))
	}
	defer tx.Rollback(ctx)

	for _, seriesID := range selected {
		name, err := m.seriesName(ctx, seriesID)
		if err != nil {
			return err
		}
		pseudo := Pseudonym(round.ID, seriesID, name, requiredSet[seriesID])

		points, err := m.copyContextPoints(ctx, resolution, seriesID, round.StartTime, createdAt, round.ContextLength)
		if err != nil {
			return err
		}
		stats := computeStats(points)

		if err := m.upsertRoundSeriesPseudo(ctx, tx, round.ID, seriesID, pseudo, stats); err != nil {
			return err
		}
		if err := m.insertContextSnapshot(ctx, tx, round.ID, seriesID, points); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Database(fmt.Errorf("commit preparation for round %d: %w", round.ID, err))
	}
	return nil
}

// selectSeries returns requiredIDs followed by enough randomly sampled
// candidates (excluding required ones already included) to reach total,
// topping up with fewer if candidates run short.
func selectSeries(requiredIDs, candidateIDs []int64, total int) []int64 {
	required := make(map[int64]bool, len(requiredIDs))
	for _, id := range requiredIDs {
		required[id] = true
	}

	pool := make([]int64, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		if !required[id] {
			pool = append(pool, id)
		}
	}
	rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	selected := append([]int64(nil), requiredIDs...)
	need := total - len(selected)
	if need > len(pool) {
		need = len(pool)
	}
	if need > 0 {
		selected = append(selected, pool[:need]...)
	}
	return selected
}

func computeStats(points []contextPoint) seriesStats {
	if len(points) == 0 {
		return seriesStats{}
	}
	stats := seriesStats{MinTS: points[0].TS, MaxTS: points[0].TS}
	var sum, sumSq float64
	n := 0
	for _, p := range points {
		if p.TS.Before(stats.MinTS) {
			stats.MinTS = p.TS
		}
		if p.TS.After(stats.MaxTS) {
			stats.MaxTS = p.TS
		}
		if p.Value == nil {
			continue
		}
		sum += *p.Value
		sumSq += *p.Value * *p.Value
		n++
	}
	if n == 0 {
		return stats
	}
	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	if variance < 0 {
		variance = 0
	}
	stats.ValueAvg = mean
	stats.ValueStd = math.Sqrt(variance)
	return stats
}
