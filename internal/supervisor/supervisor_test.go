package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// crashingRunner always returns an error immediately, simulating an
// unexpected run-loop completion.
type crashingRunner struct{}

func (crashingRunner) Run(ctx context.Context) error {
	return errors.New("simulated crash")
}

// blockingRunner runs until ctx is cancelled, simulating a healthy scheduler
// that only stops on shutdown.
type blockingRunner struct{}

func (blockingRunner) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestSupervisor_GivesUpAfterMaxRestartAttempts(t *testing.T) {
	var newRunnerCalls int32

	sv := New(func(ctx context.Context) (Runnable, error) {
		atomic.AddInt32(&newRunnerCalls, 1)
		return crashingRunner{}, nil
	})
	sv.MonitorInterval = 10 * time.Millisecond
	sv.RestartDelay = 5 * time.Millisecond
	sv.MaxRestartAttempts = 2
	sv.HealthyUptime = time.Hour // crashingRunner never runs long enough to earn a reset

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := sv.Run(ctx)
	if err == nil {
		t.Fatal("expected Run to return an error after exhausting restart attempts")
	}

	wantCalls := int32(sv.MaxRestartAttempts + 1)
	if got := atomic.LoadInt32(&newRunnerCalls); got != wantCalls {
		t.Errorf("NewRunner called %d times, want %d (1 initial + %d restarts)", got, wantCalls, sv.MaxRestartAttempts)
	}
}

func TestSupervisor_RestartsThenRecovers(t *testing.T) {
	var newRunnerCalls int32

	sv := New(func(ctx context.Context) (Runnable, error) {
		n := atomic.AddInt32(&newRunnerCalls, 1)
		if n == 1 {
			return crashingRunner{}, nil
		}
		return blockingRunner{}, nil
	})
	sv.MonitorInterval = 10 * time.Millisecond
	sv.RestartDelay = 5 * time.Millisecond
	sv.MaxRestartAttempts = 5

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	err := sv.Run(ctx)
	cancel()

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() error = %v, want context.DeadlineExceeded (clean shutdown after recovery)", err)
	}
	if got := atomic.LoadInt32(&newRunnerCalls); got != 2 {
		t.Errorf("NewRunner called %d times, want 2 (1 crash + 1 successful restart)", got)
	}
}

func TestSupervisor_ShutsDownWithoutRestarting(t *testing.T) {
	var newRunnerCalls int32

	sv := New(func(ctx context.Context) (Runnable, error) {
		atomic.AddInt32(&newRunnerCalls, 1)
		return blockingRunner{}, nil
	})
	sv.MonitorInterval = 10 * time.Millisecond
	sv.RestartDelay = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	err := sv.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if got := atomic.LoadInt32(&newRunnerCalls); got != 1 {
		t.Errorf("NewRunner called %d times, want 1 (no restarts on graceful shutdown)", got)
	}
}
