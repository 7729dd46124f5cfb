// Package scoring implements the score evaluator: for each round needing
// evaluation, it computes MASE and RMSE per (model, series) pair against
// the naive last-observed-value baseline, and finalizes a round's scores
// once its data is complete and its evaluation window has closed.
package scoring

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dag-upb/ts-arena-core/internal/apperr"
	"github.com/dag-upb/ts-arena-core/internal/rounds"
	"github.com/dag-upb/ts-arena-core/internal/sqlident"
)

// Status is the closed set of per-(model,series) evaluation outcomes.
type Status string

const (
	StatusPending     Status = "pending"
	StatusNoForecasts Status = "no_forecasts"
	StatusNoOverlap   Status = "no_overlap"
	StatusPartial     Status = "partial"
	StatusComplete    Status = "complete"
	StatusError       Status = "error"
)

// maxErrorMessageLen bounds what goes into the error_message column.
const maxErrorMessageLen = 500

// finalizationBuffer is the grace period after a round's endTime before its
// scores are eligible for finalization.
const finalizationBuffer = time.Hour

// Score is one (round, model, series) evaluation result. MASE and RMSE are
// nil whenever Status never reached a metrics-bearing outcome.
type Score struct {
	RoundID         int64
	ModelID         int64
	SeriesID        int64
	MASE            *float64
	RMSE            *float64
	ForecastCount   int
	ActualCount     int
	EvaluatedCount  int
	DataCoverage    float64
	Status          Status
	ErrorMessage    string
	FinalEvaluation bool
}

// Evaluator owns periodic and on-demand score evaluation against the shared
// pool.
type Evaluator struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Evaluator { return &Evaluator{db: db} }

// EvaluatePending discovers every round needing evaluation with a single
// short query, then evaluates each in its own isolated scope so that one
// round's failure never stalls the others.
func (e *Evaluator) EvaluatePending(ctx context.Context) (evaluated, finalized int, err error) {
	roundIDs, err := e.roundsNeedingEvaluation(ctx)
	if err != nil {
		return 0, 0, err
	}
	if len(roundIDs) == 0 {
		log.Println("[Scoring] no rounds need evaluation")
		return 0, 0, nil
	}

	log.Printf("[Scoring] %d round(s) need evaluation", len(roundIDs))
	for _, id := range roundIDs {
		didFinalize, evalErr := e.evaluateRoundIsolated(ctx, id)
		if evalErr != nil {
			log.Printf("[Scoring] round %d: evaluation failed: %v", id, evalErr)
			continue
		}
		evaluated++
		if didFinalize {
			finalized++
		}
	}
	log.Printf("[Scoring] evaluation complete: %d evaluated, %d finalized", evaluated, finalized)
	return evaluated, finalized, nil
}

// evaluateRoundIsolated wraps EvaluateRound in a recover so that a bug in
// one round's evaluation (a panic, not just a returned error) can never take
// down the periodic job that drives the rest of the rounds.
func (e *Evaluator) evaluateRoundIsolated(ctx context.Context, roundID int64) (finalized bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("round %d: panic during evaluation: %v", roundID, r)
		}
	}()
	return e.EvaluateRound(ctx, roundID)
}

// EvaluateRound computes scores for every (model, series) pair that has
// appeared in this round's forecasts, bulk-upserts them, and finalizes the
// round if its data is complete and its evaluation window has closed.
func (e *Evaluator) EvaluateRound(ctx context.Context, roundID int64) (bool, error) {
	round, err := e.loadRound(ctx, roundID)
	if err != nil {
		return false, err
	}

	resolution := rounds.ResolveFrequency(round.Frequency)
	if err := sqlident.ValidateRelationName(resolution.ViewName()); err != nil {
		return false, fmt.Errorf("round %d: %w", roundID, err)
	}

	modelIDs, err := e.participantModelIDs(ctx, roundID)
	if err != nil {
		return false, err
	}
	seriesIDs, err := e.roundSeriesIDs(ctx, roundID)
	if err != nil {
		return false, err
	}
	if len(modelIDs) == 0 || len(seriesIDs) == 0 {
		log.Printf("[Scoring] round %d: no participants or no series yet, skipping", roundID)
		return false, nil
	}

	scores := make([]Score, 0, len(modelIDs)*len(seriesIDs))
	for _, modelID := range modelIDs {
		for _, seriesID := range seriesIDs {
			scores = append(scores, e.scoreModelSeries(ctx, roundID, modelID, seriesID, resolution))
		}
	}

	if err := e.bulkUpsertScores(ctx, scores); err != nil {
		return false, err
	}

	return e.maybeFinalize(ctx, round)
}

// scoreModelSeries computes one (model, series) score. Any database error
// encountered mid-calculation is captured as an `error` status rather than
// propagated, so one pair's failure never aborts the round's other pairs.
func (e *Evaluator) scoreModelSeries(ctx context.Context, roundID, modelID, seriesID int64, resolution rounds.Resolution) Score {
	base := Score{RoundID: roundID, ModelID: modelID, SeriesID: seriesID}

	fail := func(err error) Score {
		base.Status = StatusError
		base.ErrorMessage = apperr.TruncateMessage(err.Error(), maxErrorMessageLen)
		return base
	}

	stats, err := e.forecastStats(ctx, roundID, modelID, seriesID)
	if err != nil {
		return fail(err)
	}
	if stats.Count == 0 {
		base.Status = StatusNoForecasts
		return base
	}
	base.ForecastCount = stats.Count

	maxTS, ok, err := e.roundSeriesMaxTS(ctx, roundID, seriesID)
	if err != nil {
		return fail(err)
	}
	if !ok {
		base.Status = StatusError
		base.ErrorMessage = "no context stats recorded for this series in this round"
		return base
	}

	baseline, ok, err := e.readResolutionValue(ctx, resolution, seriesID, maxTS)
	if err != nil {
		return fail(err)
	}
	if !ok {
		base.Status = StatusError
		base.ErrorMessage = "no context point available for naive forecast baseline"
		return base
	}

	yTrue, yPred, err := e.alignedEvaluationData(ctx, resolution, roundID, modelID, seriesID)
	if err != nil {
		return fail(err)
	}

	base.ActualCount = len(yTrue)
	base.EvaluatedCount = len(yTrue)
	if len(yTrue) == 0 {
		base.Status = StatusNoOverlap
		return base
	}

	base.DataCoverage = float64(len(yTrue)) / float64(base.ForecastCount)
	base.Status = DetermineStatus(base.DataCoverage)

	mase, rmse := ComputeMetrics(yTrue, yPred, baseline)
	base.MASE = &mase
	base.RMSE = &rmse
	return base
}

// ComputeMetrics computes RMSE and MASE over aligned (yTrue, yPred) arrays
// against a constant naive baseline:
//
//	rmse = sqrt(mean((y_pred-y_true)^2))
//	mase = mae_model/mae_naive, 0 if both are 0, +Inf otherwise.
func ComputeMetrics(yTrue, yPred []float64, baseline float64) (mase, rmse float64) {
	n := float64(len(yTrue))
	var sqErrSum, maeModelSum, maeNaiveSum float64
	for i := range yTrue {
		diff := yPred[i] - yTrue[i]
		sqErrSum += diff * diff
		maeModelSum += math.Abs(yTrue[i] - yPred[i])
		maeNaiveSum += math.Abs(yTrue[i] - baseline)
	}
	rmse = math.Sqrt(sqErrSum / n)

	maeModel := maeModelSum / n
	maeNaive := maeNaiveSum / n
	switch {
	case maeNaive > 0:
		mase = maeModel / maeNaive
	case maeNaive == 0 && maeModel == 0:
		mase = 0
	default:
		mase = math.Inf(1)
	}
	return mase, rmse
}

// DetermineStatus maps data coverage (evaluatedCount/forecastCount) to an
// evaluation status.
func DetermineStatus(dataCoverage float64) Status {
	switch {
	case dataCoverage >= 1.0:
		return StatusComplete
	case dataCoverage > 0:
		return StatusPartial
	default:
		return StatusPending
	}
}

// maybeFinalize sets final_evaluation=true for every score of round if its
// evaluation window closed at least finalizationBuffer ago and every score
// row for it has reached status=complete.
func (e *Evaluator) maybeFinalize(ctx context.Context, round roundInfo) (bool, error) {
	if time.Now().Before(round.EndTime.Add(finalizationBuffer)) {
		return false, nil
	}
	allComplete, err := e.allScoresComplete(ctx, round.ID)
	if err != nil {
		return false, err
	}
	if !allComplete {
		return false, nil
	}
	if err := e.markScoresFinal(ctx, round.ID); err != nil {
		return false, err
	}
	log.Printf("[Scoring] round %d: all scores complete, marked final", round.ID)
	return true, nil
}
