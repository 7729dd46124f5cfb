// Command collector runs the data-portal collection engine: it loads the
// adapter configuration, builds every registered source adapter, runs an
// initial batched fetch, then starts the per-adapter ticker loop that pipes
// fetched samples through gap imputation into the time-series sink.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/dag-upb/ts-arena-core/internal/adapter/sources" // registers concrete adapter factories
	"github.com/dag-upb/ts-arena-core/internal/collector"
	"github.com/dag-upb/ts-arena-core/internal/config"
	"github.com/dag-upb/ts-arena-core/internal/dbpool"
	"github.com/dag-upb/ts-arena-core/internal/schemawatch"
	"github.com/dag-upb/ts-arena-core/internal/timeseries"
)

var version = "dev"

const (
	exitOK             = 0
	exitMissingDBURL   = 1
	exitBadConfig      = 2
	exitDatabaseFailed = 3
)

func main() {
	log.Println("========================================")
	log.Println("  Forecasting Competition - Collector")
	log.Printf("  Version: %s", version)
	log.Println("========================================")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Println("[Init] DATABASE_URL is required")
		os.Exit(exitMissingDBURL)
	}
	sourcesConfigPath := config.Env("SOURCES_CONFIG_PATH", "sources.yaml")
	schemaWatchChannel := config.Env("SCHEMA_WATCH_CHANNEL", "ts_arena_schema")
	dbMaxConns := config.EnvInt("DB_MAX_CONNS", 10)
	dbMinConns := config.EnvInt("DB_MIN_CONNS", 2)
	maxConcurrent := config.EnvInt("COLLECTOR_MAX_CONCURRENT", collector.DefaultMaxConcurrent)

	archiveBucket := config.Env("ARCHIVE_S3_BUCKET", "")
	archiveAccessKey := config.Env("ARCHIVE_S3_ACCESS_KEY", "")
	archiveSecretKey := config.Env("ARCHIVE_S3_SECRET_KEY", "")
	archiveRegion := config.Env("ARCHIVE_S3_REGION", "us-east-1")
	archiveEndpoint := config.Env("ARCHIVE_S3_ENDPOINT", "")

	log.Printf("[Init] Database: %s", config.MaskPassword(databaseURL))
	log.Printf("[Init] Sources config: %s", sourcesConfigPath)

	srcCfg, err := collector.LoadConfig(sourcesConfigPath)
	if err != nil {
		log.Printf("[Init] Failed to load adapter configuration: %v", err)
		os.Exit(exitBadConfig)
	}

	dbPool, err := dbpool.Open(ctx, dbpool.Options{
		DatabaseURL:     databaseURL,
		MaxConns:        dbMaxConns,
		MinConns:        dbMinConns,
		ApplicationName: "ts-arena-collector " + version,
	})
	if err != nil {
		log.Printf("[Init] Failed to open database pool: %v", err)
		os.Exit(exitDatabaseFailed)
	}
	log.Println("[Init] ✓ database connection pool established")

	sink := timeseries.New(dbPool)
	archive := collector.NewArchiveClient(ctx, archiveBucket, archiveAccessKey, archiveSecretKey, archiveRegion, archiveEndpoint)

	sched := collector.New(sink, archive, maxConcurrent)
	sched.ImputationDisabled = config.EnvBool("IMPUTATION_DISABLED", false)
	collector.RegisterFromConfig(sched, srcCfg, func(name string, err error) {
		log.Printf("[Init] failed to build adapter %s: %v", name, err)
	})
	log.Println("[Init] ✓ adapters registered")

	watcher := schemawatch.NewWatcher(databaseURL, schemaWatchChannel)
	watcher.Start(ctx)

	sched.RunInitialFetch(ctx)
	sched.Start(ctx)

	log.Println("[Init] collector running, press Ctrl+C to shut down")
	<-ctx.Done()

	log.Println("[Shutdown] signal received, stopping gracefully...")
	stopDone := make(chan struct{})
	go func() {
		sched.Stop()
		close(stopDone)
	}()
	select {
	case <-stopDone:
	case <-time.After(30 * time.Second):
		log.Println("[Shutdown] scheduler did not stop within timeout, proceeding")
	}

	// Close the pool last, bounded so a held connection can't hang exit.
	poolDone := make(chan struct{})
	go func() {
		dbPool.Close()
		close(poolDone)
	}()
	select {
	case <-poolDone:
	case <-time.After(3 * time.Second):
		log.Println("[Shutdown] pool close did not finish within 3s, proceeding")
	}

	log.Println("[Shutdown] clean shutdown complete")
	os.Exit(exitOK)
}
