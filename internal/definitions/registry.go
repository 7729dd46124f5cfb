package definitions

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dag-upb/ts-arena-core/internal/apperr"
	"github.com/dag-upb/ts-arena-core/internal/duration"
)

// Definition is the in-memory challenge definition entity.
type Definition struct {
	ID                   int64
	ScheduleID           string
	Name                 string
	Domain               string
	Subdomain            string
	ContextLength        int
	Horizon              duration.Duration
	Frequency            duration.Duration
	CronExpression       string
	NSeries              int
	RegistrationDuration duration.Duration
	AnnounceLead         duration.Duration
	IsActive             bool
	RunOnStartup         bool
}

// Registry reconciles YAML schedule entries into the definitions store.
type Registry struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Registry { return &Registry{db: db} }

// Reconcile upserts every entry in cfg into the ChallengeDefinition table,
// keyed by scheduleId (preserving the surrogate id on update), then
// reconciles each entry's required-series assignments under SCD2 semantics
// and deactivates any definition no longer present in cfg.
func (r *Registry) Reconcile(ctx context.Context, cfg Config) ([]Definition, error) {
	var defs []Definition
	activeScheduleIDs := make([]string, 0, len(cfg.Schedules))

	for _, entry := range cfg.Schedules {
		def, err := r.upsertDefinition(ctx, entry)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
		activeScheduleIDs = append(activeScheduleIDs, entry.ID)

		if err := r.reconcileSeriesAssignments(ctx, def.ID, entry.RequiredTimeSeries); err != nil {
			return nil, err
		}
	}

	if err := r.deactivateMissing(ctx, activeScheduleIDs); err != nil {
		return nil, err
	}

	return defs, nil
}

// ReportMissedRuns is the catch-up sweep run at startup: for each
// definition it recovers the last fire time from the most recent round
// (registrationStart minus the announce lead) and logs how many cron fires
// elapsed since. Fires are never replayed; missed slots coalesce into the
// schedule's next regular run, so the log line is what an operator sees of
// an outage.
func (r *Registry) ReportMissedRuns(ctx context.Context, defs []Definition, now time.Time) {
	for _, def := range defs {
		var lastStart *time.Time
		err := r.db.QueryRow(ctx, `
			SELECT MAX(registration_start) FROM rounds.challenge_round WHERE definition_id = $1
		`, def.ID).Scan(&lastStart)
		if err != nil {
			log.Printf("[Registry] definition %s: failed to load last round for catch-up sweep: %v", def.ScheduleID, err)
			continue
		}
		if lastStart == nil {
			continue
		}

		lastFire := lastStart.Add(-def.AnnounceLead.AsTimeDuration())
		missed, err := CountMissedRuns(def.CronExpression, lastFire, now)
		if err != nil {
			log.Printf("[Registry] definition %s: catch-up sweep failed: %v", def.ScheduleID, err)
			continue
		}
		if missed > 0 {
			log.Printf("[Registry] definition %s: %d scheduled fire(s) elapsed since its last round at %s; coalescing into the next run",
				def.ScheduleID, missed, lastFire.Format(time.RFC3339))
		}
	}
}

// GetByID loads a single active-or-not definition by its surrogate id, used
// by the supervisor's create-round job to re-resolve a definition at fire
// time rather than carrying a stale copy in River job args.
func (r *Registry) GetByID(ctx context.Context, id int64) (Definition, error) {
	var def Definition
	var horizonSeconds, freqSeconds, regSeconds, announceSeconds float64
	row := r.db.QueryRow(ctx, `
		SELECT id, schedule_id, name, domain, subdomain, context_length,
		       EXTRACT(EPOCH FROM horizon), EXTRACT(EPOCH FROM frequency),
		       cron_expression, n_series, EXTRACT(EPOCH FROM registration_duration),
		       EXTRACT(EPOCH FROM announce_lead), is_active, run_on_startup
		FROM rounds.challenge_definition
		WHERE id = $1
	`, id)
	if err := row.Scan(&def.ID, &def.ScheduleID, &def.Name, &def.Domain, &def.Subdomain, &def.ContextLength,
		&horizonSeconds, &freqSeconds, &def.CronExpression, &def.NSeries, &regSeconds,
		&announceSeconds, &def.IsActive, &def.RunOnStartup); err != nil {
		return Definition{}, apperr.Database(fmt.Errorf("load definition %d: %w", id, err))
	}

	var err error
	if def.Horizon, err = duration.Parse(fmt.Sprintf("%d seconds", int64(horizonSeconds))); err != nil {
		return Definition{}, err
	}
	if def.Frequency, err = duration.Parse(fmt.Sprintf("%d seconds", int64(freqSeconds))); err != nil {
		return Definition{}, err
	}
	if def.RegistrationDuration, err = duration.Parse(fmt.Sprintf("%d seconds", int64(regSeconds))); err != nil {
		return Definition{}, err
	}
	if def.AnnounceLead, err = duration.Parse(fmt.Sprintf("%d seconds", int64(announceSeconds))); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// ActiveDefinitions returns every definition currently marked active, used
// to register one cron schedule per definition at supervisor startup.
func (r *Registry) ActiveDefinitions(ctx context.Context) ([]Definition, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM rounds.challenge_definition WHERE is_active = TRUE`)
	if err != nil {
		return nil, apperr.Database(fmt.Errorf("query active definitions: %w", err))
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, apperr.Database(fmt.Errorf("scan active definition id: %w", err))
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, apperr.Database(err)
	}
	rows.Close()

	defs := make([]Definition, 0, len(ids))
	for _, id := range ids {
		def, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (r *Registry) upsertDefinition(ctx context.Context, e ScheduleEntry) (Definition, error) {
	horizon, err := duration.Parse(e.ForecastHorizon)
	if err != nil {
		return Definition{}, err
	}
	freq, err := duration.Parse(e.Frequency)
	if err != nil {
		return Definition{}, err
	}
	regDuration, err := duration.Parse(e.RegistrationDuration)
	if err != nil {
		return Definition{}, err
	}

	var announceLead duration.Duration
	if e.AnnounceLead == "" {
		announceLead = duration.AnnounceLeadDefault()
	} else {
		announceLead, err = duration.Parse(e.AnnounceLead)
		if err != nil {
			return Definition{}, err
		}
	}

	var def Definition
	row := r.db.QueryRow(ctx, `
		INSERT INTO rounds.challenge_definition
			(schedule_id, name, domain, subdomain, context_length, horizon, frequency,
			 cron_expression, n_series, registration_duration, announce_lead, is_active, run_on_startup)
		VALUES ($1, $2, $3, $4, $5, $6::interval, $7::interval, $8, $9, $10::interval, $11::interval, TRUE, $12)
		ON CONFLICT (schedule_id) DO UPDATE SET
			name = excluded.name,
			domain = excluded.domain,
			subdomain = excluded.subdomain,
			context_length = excluded.context_length,
			horizon = excluded.horizon,
			frequency = excluded.frequency,
			cron_expression = excluded.cron_expression,
			n_series = excluded.n_series,
			registration_duration = excluded.registration_duration,
			announce_lead = excluded.announce_lead,
			is_active = TRUE,
			run_on_startup = excluded.run_on_startup
		RETURNING id
	`, e.ID, e.Description, e.Domain, e.Subdomain, e.ContextLength, horizon.PGInterval(), freq.PGInterval(),
		e.Cron, e.NTimeSeries, regDuration.PGInterval(), announceLead.PGInterval(), e.RunOnStartup)

	if err := row.Scan(&def.ID); err != nil {
		return Definition{}, apperr.Database(fmt.Errorf("upsert definition %q: %w", e.ID, err))
	}

	def.ScheduleID = e.ID
	def.Name = e.Description
	def.Domain = e.Domain
	def.Subdomain = e.Subdomain
	def.ContextLength = e.ContextLength
	def.Horizon = horizon
	def.Frequency = freq
	def.CronExpression = e.Cron
	def.NSeries = e.NTimeSeries
	def.RegistrationDuration = regDuration
	def.AnnounceLead = announceLead
	def.IsActive = true
	def.RunOnStartup = e.RunOnStartup
	return def, nil
}

// reconcileSeriesAssignments closes out assignments no longer listed as
// required and opens new ones, under SCD2 semantics, in one transaction.
// An empty requiredSeriesIDs list is a precondition-checked no-op: it never
// closes every existing assignment.
func (r *Registry) reconcileSeriesAssignments(ctx context.Context, definitionID int64, requiredSeriesIDs []int64) error {
	if len(requiredSeriesIDs) == 0 {
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return apperr.Database(fmt.Errorf("begin series reconciliation tx: %w", err))
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE rounds.definition_series_assignment
		SET valid_to = NOW(), is_current = FALSE
		WHERE definition_id = $1 AND is_current = TRUE
		  AND series_id <> ALL($2::bigint[])
	`, definitionID, requiredSeriesIDs); err != nil {
		return apperr.Database(fmt.Errorf("close removed series assignments for definition %d: %w", definitionID, err))
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO rounds.definition_series_assignment
			(definition_id, series_id, is_required, is_excluded, valid_from, valid_to, is_current)
		SELECT $1, s, TRUE, FALSE, NOW(), NULL, TRUE
		FROM unnest($2::bigint[]) AS s
		WHERE NOT EXISTS (
			SELECT 1 FROM rounds.definition_series_assignment a
			WHERE a.definition_id = $1 AND a.series_id = s AND a.is_current = TRUE
		)
	`, definitionID, requiredSeriesIDs); err != nil {
		return apperr.Database(fmt.Errorf("open new series assignments for definition %d: %w", definitionID, err))
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Database(fmt.Errorf("commit series reconciliation for definition %d: %w", definitionID, err))
	}
	return nil
}

func (r *Registry) deactivateMissing(ctx context.Context, activeScheduleIDs []string) error {
	if len(activeScheduleIDs) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `
		UPDATE rounds.challenge_definition
		SET is_active = FALSE
		WHERE schedule_id <> ALL($1::text[]) AND is_active = TRUE
	`, activeScheduleIDs)
	if err != nil {
		return apperr.Database(fmt.Errorf("deactivate removed definitions: %w", err))
	}
	return nil
}
