// Package schemawatch listens on a Postgres LISTEN/NOTIFY channel for
// schema-change notifications and debounces them into a single reconcile
// check, in case an operator manually edits the continuous-aggregate view
// definitions round preparation and scoring read through
// (time_series_data_15min/_1h/_1d).
package schemawatch

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dag-upb/ts-arena-core/internal/rounds"
	"github.com/dag-upb/ts-arena-core/internal/sqlident"
)

// DefaultDebounce collapses a burst of notifications into one reconcile.
const DefaultDebounce = 5 * time.Second

// DefaultReconnectDelay is how long to wait before re-establishing the
// LISTEN connection after it drops.
const DefaultReconnectDelay = 5 * time.Second

// Watcher listens on a configurable channel and runs ReconcileViews whenever
// a notification arrives, debounced so a burst of DDL statements in one
// migration only triggers one reconcile pass.
type Watcher struct {
	DatabaseURL string
	Channel     string
	Debounce    time.Duration

	mu       sync.Mutex
	lastFire time.Time
}

// NewWatcher builds a Watcher for the given channel, defaulting Debounce if
// unset.
func NewWatcher(databaseURL, channel string) *Watcher {
	return &Watcher{DatabaseURL: databaseURL, Channel: channel, Debounce: DefaultDebounce}
}

// Start launches the listen loop in a goroutine and returns immediately. The
// loop reconnects on any error until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	go func() {
		for {
			err := w.listenAndDispatch(ctx)
			if ctx.Err() != nil {
				return
			}
			log.Printf("[SchemaWatch] reconnecting in %s: %v", DefaultReconnectDelay, err)
			select {
			case <-time.After(DefaultReconnectDelay):
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (w *Watcher) listenAndDispatch(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, w.DatabaseURL)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{w.Channel}.Sanitize()); err != nil {
		return err
	}
	log.Printf("[SchemaWatch] listening on channel: %s", w.Channel)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}

		payload := strings.TrimSpace(notification.Payload)
		if payload != "" && payload != "reload schema" && payload != "reload config" {
			continue
		}

		if !w.shouldFire() {
			log.Println("[SchemaWatch] debounced notification")
			continue
		}

		log.Printf("[SchemaWatch] notification received (payload %q), reconciling resolution views", payload)
		if err := ReconcileViews(); err != nil {
			log.Printf("[SchemaWatch] reconcile failed: %v", err)
		}
	}
}

func (w *Watcher) shouldFire() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if time.Since(w.lastFire) < debounce {
		return false
	}
	w.lastFire = time.Now()
	return true
}

// ReconcileViews validates that the name of every resolution view parses as
// a single valid relation reference. It checks the names only: it does not
// query the database or inspect the view definitions themselves.
func ReconcileViews() error {
	for _, res := range []rounds.Resolution{rounds.Resolution15Min, rounds.Resolution1Hour, rounds.Resolution1Day} {
		if err := sqlident.ValidateRelationName(res.ViewName()); err != nil {
			return err
		}
	}
	return nil
}
