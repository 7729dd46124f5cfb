package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/dag-upb/ts-arena-core/internal/apperr"
	"github.com/dag-upb/ts-arena-core/internal/definitions"
	"github.com/dag-upb/ts-arena-core/internal/elo"
	"github.com/dag-upb/ts-arena-core/internal/rounds"
	"github.com/dag-upb/ts-arena-core/internal/scoring"
)

// CreateRoundArgs triggers round creation for one active definition; each
// definition gets its own cron schedule.
type CreateRoundArgs struct {
	DefinitionID int64 `json:"definition_id"`
}

func (CreateRoundArgs) Kind() string { return "create_round" }
func (CreateRoundArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{Queue: "create_round", MaxAttempts: 3, Priority: 2}
}

// PrepareRoundArgs is the per-round one-shot job fired at registrationStart
// (trigger id prepare_challenge_{roundId}).
type PrepareRoundArgs struct {
	RoundID int64 `json:"round_id"`
}

func (PrepareRoundArgs) Kind() string { return "prepare_round" }
func (PrepareRoundArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{Queue: "prepare_round", MaxAttempts: 3, Priority: 2}
}

// EvaluateScoresArgs is the periodic_challenge_scores_evaluation trigger.
type EvaluateScoresArgs struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

func (EvaluateScoresArgs) Kind() string { return "evaluate_scores" }
func (EvaluateScoresArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{Queue: "evaluate_scores", MaxAttempts: 3, Priority: 3}
}

// CalculateEloArgs is the periodic_elo_ranking_calculation trigger. Its
// queue is configured with MaxWorkers=1 at the river.Client level so runs
// never overlap without any in-process locking.
type CalculateEloArgs struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

func (CalculateEloArgs) Kind() string { return "calculate_elo" }
func (CalculateEloArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{Queue: "calculate_elo", MaxAttempts: 1, Priority: 3}
}

// CreateRoundWorker materializes a round from its definition and schedules
// that round's one-shot preparation job at registrationStart.
type CreateRoundWorker struct {
	river.WorkerDefaults[CreateRoundArgs]
	DB          *pgxpool.Pool
	Definitions *definitions.Registry
	Rounds      *rounds.Materializer
}

func (w *CreateRoundWorker) Work(ctx context.Context, job *river.Job[CreateRoundArgs]) error {
	def, err := w.Definitions.GetByID(ctx, job.Args.DefinitionID)
	if err != nil {
		return err
	}

	round, err := w.Rounds.CreateRoundFromDefinition(ctx, def, time.Now())
	if err != nil {
		return err
	}

	return w.schedulePreparation(ctx, round)
}

// schedulePreparation inserts a one-shot, durable River job for
// PrepareRoundWorker at round.RegistrationStart, deduplicated on the round
// id so a retried CreateRoundWorker execution never double-schedules it.
func (w *CreateRoundWorker) schedulePreparation(ctx context.Context, round rounds.Round) error {
	args := PrepareRoundArgs{RoundID: round.ID}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal prepare round args: %w", err)
	}
	uniqueKey := fmt.Sprintf("prepare_challenge_%d", round.ID)

	_, err = w.DB.Exec(ctx, `
		INSERT INTO metadata.river_job (state, queue, kind, args, priority, max_attempts, scheduled_at, unique_key)
		VALUES ($1, 'prepare_round', $2, $3, 2, 3, $4, $5)
		ON CONFLICT (kind, unique_key) WHERE unique_key IS NOT NULL DO NOTHING
	`, string(rivertype.JobStateScheduled), PrepareRoundArgs{}.Kind(), argsJSON, round.RegistrationStart, uniqueKey)
	if err != nil {
		return apperr.Database(fmt.Errorf("schedule preparation for round %d: %w", round.ID, err))
	}
	return nil
}

// PrepareRoundWorker resolves a round's series and snapshots its context
// data at registrationStart.
type PrepareRoundWorker struct {
	river.WorkerDefaults[PrepareRoundArgs]
	Rounds *rounds.Materializer
}

func (w *PrepareRoundWorker) Work(ctx context.Context, job *river.Job[PrepareRoundArgs]) error {
	round, createdAt, err := w.Rounds.LoadRoundForPreparation(ctx, job.Args.RoundID)
	if err != nil {
		return err
	}
	return w.Rounds.PrepareRoundContextData(ctx, round, createdAt)
}

// EvaluateScoresWorker runs the score evaluator over every round needing
// evaluation.
type EvaluateScoresWorker struct {
	river.WorkerDefaults[EvaluateScoresArgs]
	Evaluator *scoring.Evaluator
}

func (w *EvaluateScoresWorker) Work(ctx context.Context, job *river.Job[EvaluateScoresArgs]) error {
	_, _, err := w.Evaluator.EvaluatePending(ctx)
	return err
}

// CalculateEloWorker runs the full ELO calculation across every scope and
// time window.
type CalculateEloWorker struct {
	river.WorkerDefaults[CalculateEloArgs]
	Engine      *elo.Engine
	NBootstraps int
}

func (w *CalculateEloWorker) Work(ctx context.Context, job *river.Job[CalculateEloArgs]) error {
	n := w.NBootstraps
	if n == 0 {
		n = elo.DefaultNBootstraps
	}
	_, err := w.Engine.CalculateAndStoreAll(ctx, n)
	return err
}
