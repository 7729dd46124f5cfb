// Package supervisor implements the challenge scheduler: a durable
// cron/one-shot job scheduler with crash detection and automatic restart.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river/rivertype"

	"github.com/dag-upb/ts-arena-core/internal/apperr"
)

// Schedule is one registered periodic trigger: when Trigger fires, Runner
// enqueues a durable River job built by BuildArgs.
type Schedule struct {
	ID          string
	Trigger     Trigger
	Queue       string
	Kind        string
	Priority    int
	MaxAttempts int
	BuildArgs   func(scheduledFor time.Time) ([]byte, error)

	lastRun time.Time
}

// Runner is one "scheduler instance": it owns a set of schedules and a
// ticker loop that checks them once a minute. A crashed Runner is always
// replaced by a fresh instance (see Supervisor), never resumed in place.
type Runner struct {
	db           *pgxpool.Pool
	tickInterval time.Duration

	mu        sync.Mutex
	schedules map[string]*Schedule
}

func NewRunner(db *pgxpool.Pool) *Runner {
	return &Runner{
		db:           db,
		tickInterval: time.Minute,
		schedules:    make(map[string]*Schedule),
	}
}

// AddSchedule registers or replaces a schedule, keyed by ID. Re-adding an
// existing ID is an upsert, not an error.
func (r *Runner) AddSchedule(s *Schedule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schedules[s.ID] = s
}

// Run checks every registered schedule immediately, then once per tick
// interval, until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.checkDue(ctx)

	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.checkDue(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

type dueFire struct {
	schedule *Schedule
	firedAt  time.Time
}

// checkDue snapshots due schedules under the lock, then enqueues outside of
// it so a slow database call never blocks AddSchedule.
func (r *Runner) checkDue(ctx context.Context) {
	now := time.Now()

	r.mu.Lock()
	var due []dueFire
	for _, s := range r.schedules {
		base := s.lastRun
		if base.IsZero() {
			base = now.Add(-24 * time.Hour)
		}
		next := s.Trigger.Next(base)
		if next.IsZero() || next.After(now) {
			continue
		}
		// coalesce=latest: collapse any missed intermediate fires while the
		// process was down into a single execution for the latest one.
		for {
			following := s.Trigger.Next(next)
			if following.IsZero() || following.After(now) {
				break
			}
			next = following
		}
		s.lastRun = now
		due = append(due, dueFire{schedule: s, firedAt: next})
	}
	r.mu.Unlock()

	for _, d := range due {
		if err := r.enqueue(ctx, d.schedule, d.firedAt); err != nil {
			log.Printf("[Supervisor] schedule %s: failed to enqueue: %v", d.schedule.ID, err)
			continue
		}
		log.Printf("[Supervisor] schedule %s: enqueued for %s", d.schedule.ID, d.firedAt.Format(time.RFC3339))
	}
}

// enqueue inserts a durable River job row directly, deduplicated on
// (kind, unique_key) so firing the same schedule slot twice is a no-op.
func (r *Runner) enqueue(ctx context.Context, s *Schedule, scheduledFor time.Time) error {
	argsJSON, err := s.BuildArgs(scheduledFor)
	if err != nil {
		return fmt.Errorf("build args for schedule %s: %w", s.ID, err)
	}
	uniqueKey := fmt.Sprintf("%s:%s", s.ID, scheduledFor.Format(time.RFC3339))

	_, err = r.db.Exec(ctx, `
		INSERT INTO metadata.river_job (state, queue, kind, args, priority, max_attempts, scheduled_at, unique_key)
		VALUES ($1, $2, $3, $4, $5, $6, now(), $7)
		ON CONFLICT (kind, unique_key) WHERE unique_key IS NOT NULL DO NOTHING
	`, string(rivertype.JobStateAvailable), s.Queue, s.Kind, argsJSON, s.Priority, s.MaxAttempts, uniqueKey)
	if err != nil {
		return apperr.Database(fmt.Errorf("insert river job for schedule %s: %w", s.ID, err))
	}
	return nil
}
