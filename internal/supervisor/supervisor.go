package supervisor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dag-upb/ts-arena-core/internal/apperr"
)

// Runnable is anything the Supervisor can run and monitor for unexpected
// completion: normally a *Runner, but tests substitute fakes.
type Runnable interface {
	Run(ctx context.Context) error
}

// Supervisor drives the crash-detection/restart protocol: a tracked run
// loop, a monitor that wakes periodically, and fresh-instance recreation
// with a bounded number of restart attempts.
type Supervisor struct {
	MaxRestartAttempts int
	RestartDelay       time.Duration
	MonitorInterval    time.Duration
	RunnerStopTimeout  time.Duration

	// HealthyUptime is how long a restarted instance must stay up before its
	// restart is considered clean and the counter resets. A runner that
	// crashes immediately on every attempt keeps incrementing the counter
	// and exhausts the restart budget; only attempts that actually recovered
	// are forgiven.
	HealthyUptime time.Duration

	// NewRunner builds a fresh Runnable, re-registering periodic jobs and
	// reloading the definition schedule file each time it's called. A
	// crashed runner's internal state is presumed corrupt and never reused.
	NewRunner func(ctx context.Context) (Runnable, error)
}

func New(newRunner func(ctx context.Context) (Runnable, error)) *Supervisor {
	return &Supervisor{
		MaxRestartAttempts: 5,
		RestartDelay:       5 * time.Second,
		MonitorInterval:    10 * time.Second,
		RunnerStopTimeout:  5 * time.Second,
		HealthyUptime:      time.Minute,
		NewRunner:          newRunner,
	}
}

// Run blocks until ctx is cancelled or the restart budget is exhausted.
func (sv *Supervisor) Run(ctx context.Context) error {
	runnerCtx, cancelRunner := context.WithCancel(ctx)
	runner, err := sv.NewRunner(runnerCtx)
	if err != nil {
		cancelRunner()
		return fmt.Errorf("create initial scheduler instance: %w", err)
	}
	done := sv.startRunner(runnerCtx, runner)
	startedAt := time.Now()

	monitor := time.NewTicker(sv.MonitorInterval)
	defer monitor.Stop()

	restartCount := 0
	for {
		select {
		case <-ctx.Done():
			cancelRunner()
			sv.awaitShutdown(done)
			return ctx.Err()

		case <-monitor.C:
			select {
			case <-done:
				if time.Since(startedAt) >= sv.HealthyUptime {
					// The previous instance ran long enough to count as a
					// clean recovery; this crash starts a fresh streak.
					restartCount = 0
				}
				restartCount++
				if restartCount > sv.MaxRestartAttempts {
					log.Printf("[Supervisor] run loop crashed %d times in a row, exceeding max restart attempts (%d); giving up",
						restartCount, sv.MaxRestartAttempts)
					cancelRunner()
					return apperr.SchedulerCrash(fmt.Errorf("crashed %d times in a row, exceeding max restart attempts (%d)",
						restartCount, sv.MaxRestartAttempts))
				}
				log.Printf("[Supervisor] run loop ended unexpectedly, restart attempt %d/%d in %s",
					restartCount, sv.MaxRestartAttempts, sv.RestartDelay)
				cancelRunner()

				select {
				case <-time.After(sv.RestartDelay):
				case <-ctx.Done():
					return ctx.Err()
				}

				runnerCtx, cancelRunner = context.WithCancel(ctx)
				runner, err = sv.NewRunner(runnerCtx)
				if err != nil {
					log.Printf("[Supervisor] failed to create fresh scheduler instance: %v", err)
					startedAt = time.Now()
					continue
				}
				done = sv.startRunner(runnerCtx, runner)
				startedAt = time.Now()
				log.Printf("[Supervisor] fresh scheduler instance started, restart attempt %d/%d", restartCount, sv.MaxRestartAttempts)
			default:
			}
		}
	}
}

func (sv *Supervisor) startRunner(ctx context.Context, runner Runnable) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[Supervisor] run loop panicked: %v", r)
			}
		}()
		if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[Supervisor] run loop exited with error: %v", err)
		}
	}()
	return done
}

func (sv *Supervisor) awaitShutdown(done <-chan struct{}) {
	select {
	case <-done:
	case <-time.After(sv.RunnerStopTimeout):
		log.Printf("[Supervisor] runner did not stop within %s, proceeding with shutdown", sv.RunnerStopTimeout)
	}
}
