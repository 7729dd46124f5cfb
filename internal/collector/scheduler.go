// Package collector implements the data collection scheduler: a
// bounded-concurrency periodic runner that invokes source adapters, pipes
// their output through gap imputation, and persists via the time-series
// sink.
package collector

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dag-upb/ts-arena-core/internal/adapter"
	"github.com/dag-upb/ts-arena-core/internal/duration"
	"github.com/dag-upb/ts-arena-core/internal/imputation"
	"github.com/dag-upb/ts-arena-core/internal/timeseries"
)

const (
	// DefaultMaxConcurrent bounds in-flight adapter jobs so they cannot
	// exhaust the shared connection pool.
	DefaultMaxConcurrent = 10

	initialFetchBatchSize  = 5
	initialFetchBatchPause = 2 * time.Second
	initialFetchMultiPause = 300 * time.Millisecond
	lookbackMultiplier     = 1000
	multiSeriesLookback24h = 24 * time.Hour
)

// registeredSingle pairs an adapter with its ticker-driven job state.
type registeredSingle struct {
	adapter adapter.SingleSeriesAdapter
	running atomic.Bool // enforces maxInstances=1 per job
}

type registeredMulti struct {
	adapter adapter.MultiSeriesAdapter
	running atomic.Bool
}

// Scheduler owns the bounded semaphore, the per-adapter registrations, and
// the shared sink/imputation pipeline.
type Scheduler struct {
	sink    *timeseries.Sink
	archive *ArchiveClient
	sem     chan struct{}

	// ImputationDisabled passes fetched samples through untouched, all
	// tagged as original. Set before Start.
	ImputationDisabled bool

	maxRetries int
	retryDelay time.Duration

	mu      sync.Mutex
	singles []*registeredSingle
	multis  []*registeredMulti

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func New(sink *timeseries.Sink, archive *ArchiveClient, maxConcurrent int) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Scheduler{
		sink:       sink,
		archive:    archive,
		sem:        make(chan struct{}, maxConcurrent),
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		stopCh:     make(chan struct{}),
	}
}

// RegisterSingle adds a single-series adapter job, ticking at its declared
// update frequency.
func (s *Scheduler) RegisterSingle(a adapter.SingleSeriesAdapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.singles = append(s.singles, &registeredSingle{adapter: a})
}

// RegisterMulti adds a multi-series adapter job, ticking at its declared
// schedule.
func (s *Scheduler) RegisterMulti(a adapter.MultiSeriesAdapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.multis = append(s.multis, &registeredMulti{adapter: a})
}

// RunInitialFetch runs every registered adapter once, in batches, before the
// ticker loop takes over.
func (s *Scheduler) RunInitialFetch(ctx context.Context) {
	log.Println("[Collector] Running initial fetch for all adapters...")

	s.mu.Lock()
	singles := append([]*registeredSingle(nil), s.singles...)
	multis := append([]*registeredMulti(nil), s.multis...)
	s.mu.Unlock()

	for i := 0; i < len(singles); i += initialFetchBatchSize {
		end := i + initialFetchBatchSize
		if end > len(singles) {
			end = len(singles)
		}
		var wg sync.WaitGroup
		for _, r := range singles[i:end] {
			wg.Add(1)
			go func(r *registeredSingle) {
				defer wg.Done()
				s.runSingleJob(ctx, r)
			}(r)
		}
		wg.Wait()
		if end < len(singles) {
			select {
			case <-time.After(initialFetchBatchPause):
			case <-ctx.Done():
				return
			}
		}
	}

	for _, r := range multis {
		s.runMultiJob(ctx, r)
		select {
		case <-time.After(initialFetchMultiPause):
		case <-ctx.Done():
			return
		}
	}

	log.Println("[Collector] Initial fetch complete")
}

// Start launches one ticker goroutine per registered adapter and returns
// immediately; call Stop to tear them down.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.singles {
		s.wg.Add(1)
		go s.tickSingle(ctx, r)
	}
	for _, r := range s.multis {
		s.wg.Add(1)
		go s.tickMulti(ctx, r)
	}
	log.Printf("[Collector] Scheduler started (%d single-series, %d multi-series jobs)", len(s.singles), len(s.multis))
}

// Stop signals every ticker goroutine to exit and waits for in-flight jobs
// to finish.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Scheduler) tickSingle(ctx context.Context, r *registeredSingle) {
	defer s.wg.Done()
	interval := r.adapter.Metadata().UpdateFrequency.AsTimeDuration()
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runSingleJob(ctx, r)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) tickMulti(ctx context.Context, r *registeredMulti) {
	defer s.wg.Done()
	interval := r.adapter.Schedule().AsTimeDuration()
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runMultiJob(ctx, r)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// runSingleJob is the single-series job body: acquire the semaphore,
// resolve the series id, fetch with retry, impute, write both sinks, update
// any detected timezone, release regardless of outcome. Unhandled errors are
// logged and swallowed so the scheduler keeps running.
func (s *Scheduler) runSingleJob(ctx context.Context, r *registeredSingle) {
	if !r.running.CompareAndSwap(false, true) {
		log.Printf("[Collector] Skipping overlapping run for %s (previous instance still running)", r.adapter.Metadata().UniqueID)
		return
	}
	defer r.running.Store(false)

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-s.sem }()

	md := r.adapter.Metadata()
	seriesID, err := s.sink.GetOrCreateSeriesID(ctx, md)
	if err != nil {
		log.Printf("[Collector] %s: failed to resolve series id: %v", md.UniqueID, err)
		return
	}

	startDate := time.Now().Add(-lookbackMultiplier * md.UpdateFrequency.AsTimeDuration())

	var result adapter.FetchResult
	err = withRetry(ctx, md.UniqueID, s.maxRetries, s.retryDelay, func(ctx context.Context) error {
		var fetchErr error
		result, fetchErr = r.adapter.FetchHistorical(ctx, startDate, time.Time{})
		return fetchErr
	})
	if err != nil {
		log.Printf("[Collector] %s: fetch failed after retries, abandoning until next tick: %v", md.UniqueID, err)
		return
	}

	if s.archive != nil {
		s.archive.ArchiveRawPayload(ctx, md.UniqueID, time.Now(), result.Data)
	}

	s.writeSeries(ctx, seriesID, md.Frequency, result.Data)

	if result.DetectedTimezone != "" {
		if err := s.sink.UpdateDetectedTimezone(ctx, seriesID, result.DetectedTimezone); err != nil {
			log.Printf("[Collector] %s: failed to update detected timezone: %v", md.UniqueID, err)
		}
	}
}

// runMultiJob is the multi-series analogue: one adapter call populates many
// series, each passed through imputation independently.
func (s *Scheduler) runMultiJob(ctx context.Context, r *registeredMulti) {
	if !r.running.CompareAndSwap(false, true) {
		log.Printf("[Collector] Skipping overlapping run for group %s (previous instance still running)", r.adapter.GroupID())
		return
	}
	defer r.running.Store(false)

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-s.sem }()

	startDate := time.Now().Add(-multiSeriesLookback24h)

	var result adapter.MultiFetchResult
	err := withRetry(ctx, r.adapter.GroupID(), s.maxRetries, s.retryDelay, func(ctx context.Context) error {
		var fetchErr error
		result, fetchErr = r.adapter.FetchHistoricalMulti(ctx, startDate, time.Time{})
		return fetchErr
	})
	if err != nil {
		log.Printf("[Collector] group %s: fetch failed after retries, abandoning until next tick: %v", r.adapter.GroupID(), err)
		return
	}

	for _, def := range r.adapter.SeriesDefinitions() {
		samples, ok := result[def.UniqueID]
		if !ok {
			continue
		}
		seriesID, err := s.sink.GetOrCreateSeriesID(ctx, def.Metadata)
		if err != nil {
			log.Printf("[Collector] %s: failed to resolve series id: %v", def.UniqueID, err)
			continue
		}
		if s.archive != nil {
			s.archive.ArchiveRawPayload(ctx, def.UniqueID, time.Now(), samples)
		}
		s.writeSeries(ctx, seriesID, def.Metadata.Frequency, samples)
	}
}

// writeSeries runs gap imputation and writes both the operational table
// (nulls dropped) and the SCD2 history (nulls kept, quality-tagged).
func (s *Scheduler) writeSeries(ctx context.Context, seriesID int64, freq duration.Duration, samples []adapter.Sample) {
	points := make([]imputation.Point, len(samples))
	for i, smpl := range samples {
		v := smpl.Value
		points[i] = imputation.Point{TS: smpl.TS, Value: &v}
	}

	result := imputation.Impute(points, imputation.Options{Frequency: freq, Disabled: s.ImputationDisabled})

	sinkPoints := make([]timeseries.DataPoint, len(result.Points))
	for i, p := range result.Points {
		sinkPoints[i] = timeseries.DataPoint{TS: p.TS, Value: p.Value, Quality: p.Quality}
	}

	if _, err := s.sink.UpsertOperational(ctx, seriesID, sinkPoints); err != nil {
		log.Printf("[Collector] series %d: operational upsert failed: %v", seriesID, err)
	}
	if _, err := s.sink.UpsertSCD2(ctx, seriesID, sinkPoints); err != nil {
		log.Printf("[Collector] series %d: scd2 upsert failed: %v", seriesID, err)
	}
}
