// Command supervisor runs the challenge scheduler: it materializes rounds
// from active challenge definitions, runs periodic score evaluation and ELO
// ranking, and self-heals its run loop on crash.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"

	"github.com/dag-upb/ts-arena-core/internal/config"
	"github.com/dag-upb/ts-arena-core/internal/dbpool"
	"github.com/dag-upb/ts-arena-core/internal/definitions"
	"github.com/dag-upb/ts-arena-core/internal/elo"
	"github.com/dag-upb/ts-arena-core/internal/rounds"
	"github.com/dag-upb/ts-arena-core/internal/schemawatch"
	"github.com/dag-upb/ts-arena-core/internal/scoring"
	"github.com/dag-upb/ts-arena-core/internal/supervisor"
)

var version = "dev"

// Exit codes: 0 on clean shutdown, non-zero on initialization failure.
const (
	exitOK             = 0
	exitMissingDBURL   = 1
	exitBadConfig      = 2
	exitDatabaseFailed = 3
)

// resourceCloseTimeout bounds the final resource teardown (River client,
// connection pool) after the run loop and its runner have stopped; a hang
// here is logged and abandoned rather than blocking process exit.
const resourceCloseTimeout = 3 * time.Second

func main() {
	log.Println("========================================")
	log.Println("  Forecasting Competition - Supervisor")
	log.Printf("  Version: %s", version)
	log.Println("========================================")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Println("[Init] DATABASE_URL is required")
		os.Exit(exitMissingDBURL)
	}
	challengesConfigPath := config.Env("CHALLENGES_CONFIG_PATH", "challenges.yaml")
	schemaWatchChannel := config.Env("SCHEMA_WATCH_CHANNEL", "ts_arena_schema")
	dbMaxConns := config.EnvInt("DB_MAX_CONNS", 10)
	dbMinConns := config.EnvInt("DB_MIN_CONNS", 2)
	nBootstraps := config.EnvInt("ELO_N_BOOTSTRAPS", elo.DefaultNBootstraps)

	log.Printf("[Init] Database: %s", config.MaskPassword(databaseURL))
	log.Printf("[Init] Challenges config: %s", challengesConfigPath)

	defCfg, err := definitions.LoadConfig(challengesConfigPath)
	if err != nil {
		log.Printf("[Init] Failed to load challenge definitions: %v", err)
		os.Exit(exitBadConfig)
	}

	dbPool, err := dbpool.Open(ctx, dbpool.Options{
		DatabaseURL:     databaseURL,
		MaxConns:        dbMaxConns,
		MinConns:        dbMinConns,
		ApplicationName: "ts-arena-supervisor " + version,
	})
	if err != nil {
		log.Printf("[Init] Failed to open database pool: %v", err)
		os.Exit(exitDatabaseFailed)
	}
	log.Println("[Init] ✓ database connection pool established")

	defRegistry := definitions.New(dbPool)
	defs, err := defRegistry.Reconcile(ctx, defCfg)
	if err != nil {
		log.Printf("[Init] Failed to reconcile challenge definitions: %v", err)
		os.Exit(exitBadConfig)
	}
	log.Printf("[Init] ✓ reconciled %d challenge definition(s)", len(defCfg.Schedules))
	defRegistry.ReportMissedRuns(ctx, defs, time.Now())

	roundsMat := rounds.New(dbPool)
	evaluator := scoring.New(dbPool)
	eloEngine := elo.New(dbPool)

	riverClient, err := newRiverClient(dbPool, riverWorkers{
		definitions: defRegistry,
		rounds:      roundsMat,
		evaluator:   evaluator,
		elo:         eloEngine,
		nBootstraps: nBootstraps,
	})
	if err != nil {
		log.Printf("[Init] Failed to create River client: %v", err)
		os.Exit(exitDatabaseFailed)
	}
	if err := riverClient.Start(ctx); err != nil {
		log.Printf("[Init] Failed to start River client: %v", err)
		os.Exit(exitDatabaseFailed)
	}
	log.Println("[Init] ✓ River client started")

	watcher := schemawatch.NewWatcher(databaseURL, schemaWatchChannel)
	watcher.Start(ctx)

	sv := supervisor.New(func(ctx context.Context) (supervisor.Runnable, error) {
		return buildRunner(ctx, dbPool, defRegistry, challengesConfigPath)
	})

	runStartupTriggers(ctx, dbPool, defRegistry, eloEngine, nBootstraps)

	log.Println("[Init] supervisor running, press Ctrl+C to shut down")
	runErr := sv.Run(ctx)

	// Shutdown order: the run loop (monitor, then runner with its own stop
	// timeout) has already wound down inside sv.Run; resources close last,
	// under their own bound.
	closeResources(riverClient, dbPool)

	if runErr != nil && ctx.Err() == nil {
		log.Printf("[Shutdown] supervisor stopped with error: %v", runErr)
		os.Exit(exitDatabaseFailed)
	}

	log.Println("[Shutdown] clean shutdown complete")
	os.Exit(exitOK)
}

// closeResources stops the River client and closes the pool under a single
// resourceCloseTimeout. The schema watcher needs no explicit teardown; its
// listen loop already exited with the signal context.
func closeResources(riverClient *river.Client[pgx.Tx], dbPool *pgxpool.Pool) {
	closeCtx, cancel := context.WithTimeout(context.Background(), resourceCloseTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := riverClient.Stop(closeCtx); err != nil {
			log.Printf("[Shutdown] error stopping River client: %v", err)
		}
		dbPool.Close()
	}()

	select {
	case <-done:
	case <-closeCtx.Done():
		log.Printf("[Shutdown] resource close did not finish within %s, proceeding", resourceCloseTimeout)
	}
}

// buildRunner constructs a fresh supervisor.Runner with every periodic
// schedule re-registered. The restart protocol treats a crashed runner's
// internal state as corrupt, so nothing is carried over from the old one.
func buildRunner(ctx context.Context, dbPool *pgxpool.Pool, defRegistry *definitions.Registry, challengesConfigPath string) (supervisor.Runnable, error) {
	runner := supervisor.NewRunner(dbPool)

	defCfg, err := definitions.LoadConfig(challengesConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reload challenge definitions: %w", err)
	}
	if _, err := defRegistry.Reconcile(ctx, defCfg); err != nil {
		return nil, fmt.Errorf("reconcile challenge definitions: %w", err)
	}

	defs, err := defRegistry.ActiveDefinitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active definitions: %w", err)
	}
	for _, def := range defs {
		trigger, err := supervisor.NewCronTrigger(def.CronExpression)
		if err != nil {
			log.Printf("[Supervisor] definition %s: invalid cron expression %q, skipping: %v", def.ScheduleID, def.CronExpression, err)
			continue
		}
		definitionID := def.ID
		runner.AddSchedule(&supervisor.Schedule{
			ID:          def.ScheduleID,
			Trigger:     trigger,
			Queue:       "create_round",
			Kind:        "create_round",
			Priority:    2,
			MaxAttempts: 3,
			BuildArgs: func(time.Time) ([]byte, error) {
				return json.Marshal(struct {
					DefinitionID int64 `json:"definition_id"`
				}{DefinitionID: definitionID})
			},
		})
	}

	evalTrigger, err := supervisor.NewCronTrigger("0,10,20,30,40,50 * * * *")
	if err != nil {
		return nil, err
	}
	runner.AddSchedule(&supervisor.Schedule{
		ID:          "periodic_challenge_scores_evaluation",
		Trigger:     evalTrigger,
		Queue:       "evaluate_scores",
		Kind:        "evaluate_scores",
		Priority:    3,
		MaxAttempts: 3,
		BuildArgs: func(scheduledFor time.Time) ([]byte, error) {
			return json.Marshal(struct {
				ScheduledFor time.Time `json:"scheduled_for"`
			}{ScheduledFor: scheduledFor})
		},
	})

	eloTrigger, err := supervisor.NewCronTrigger("0 0,6,12,18 * * *")
	if err != nil {
		return nil, err
	}
	runner.AddSchedule(&supervisor.Schedule{
		ID:          "periodic_elo_ranking_calculation",
		Trigger:     eloTrigger,
		Queue:       "calculate_elo",
		Kind:        "calculate_elo",
		Priority:    3,
		MaxAttempts: 1,
		BuildArgs: func(scheduledFor time.Time) ([]byte, error) {
			return json.Marshal(struct {
				ScheduledFor time.Time `json:"scheduled_for"`
			}{ScheduledFor: scheduledFor})
		},
	})

	log.Printf("[Supervisor] fresh runner built with %d definition schedule(s)", len(defs))
	return runner, nil
}

// runStartupTriggers fires the one-time startup work: definitions with
// runOnStartup=true get an immediate create_round job, and ELO recomputes
// unless it already ran today for the global scope.
func runStartupTriggers(ctx context.Context, dbPool *pgxpool.Pool, defRegistry *definitions.Registry, eloEngine *elo.Engine, nBootstraps int) {
	defs, err := defRegistry.ActiveDefinitions(ctx)
	if err != nil {
		log.Printf("[Startup] failed to load active definitions: %v", err)
		return
	}
	for _, def := range defs {
		if !def.RunOnStartup {
			continue
		}
		args, err := json.Marshal(struct {
			DefinitionID int64 `json:"definition_id"`
		}{DefinitionID: def.ID})
		if err != nil {
			continue
		}
		if _, err := dbPool.Exec(ctx, `
			INSERT INTO metadata.river_job (state, queue, kind, args, priority, max_attempts, scheduled_at)
			VALUES ($1, 'create_round', 'create_round', $2, 2, 3, now())
		`, string(rivertype.JobStateAvailable), args); err != nil {
			log.Printf("[Startup] failed to enqueue startup create_round for %s: %v", def.ScheduleID, err)
		}
	}

	calculatedToday, err := eloEngine.HasCalculatedToday(ctx)
	if err != nil {
		log.Printf("[Startup] failed to check ELO startup guard: %v", err)
		return
	}
	if calculatedToday {
		log.Println("[Startup] ELO already calculated today, skipping startup run")
		return
	}
	go func() {
		if _, err := eloEngine.CalculateAndStoreAll(ctx, nBootstraps); err != nil {
			log.Printf("[Startup] ELO startup calculation failed: %v", err)
		}
	}()
}

type riverWorkers struct {
	definitions *definitions.Registry
	rounds      *rounds.Materializer
	evaluator   *scoring.Evaluator
	elo         *elo.Engine
	nBootstraps int
}

// newRiverClient registers the four job kinds the supervisor drives (round
// creation, round preparation, score evaluation, ELO) on a single River
// client with one queue per kind.
func newRiverClient(dbPool *pgxpool.Pool, w riverWorkers) (*river.Client[pgx.Tx], error) {
	workers := river.NewWorkers()
	river.AddWorker(workers, &supervisor.CreateRoundWorker{DB: dbPool, Definitions: w.definitions, Rounds: w.rounds})
	river.AddWorker(workers, &supervisor.PrepareRoundWorker{Rounds: w.rounds})
	river.AddWorker(workers, &supervisor.EvaluateScoresWorker{Evaluator: w.evaluator})
	river.AddWorker(workers, &supervisor.CalculateEloWorker{Engine: w.elo, NBootstraps: w.nBootstraps})

	return river.NewClient(riverpgxv5.New(dbPool), &river.Config{
		Queues: map[string]river.QueueConfig{
			"create_round":    {MaxWorkers: 5},
			"prepare_round":   {MaxWorkers: 5},
			"evaluate_scores": {MaxWorkers: 3},
			"calculate_elo":   {MaxWorkers: 1}, // ELO runs never overlap
		},
		Workers: workers,
		Logger:  slog.Default(),
		Schema:  "metadata",
	})
}
