package timeline

import (
	"context"
	"errors"
	"time"

	"github.com/wonny/loflimit/internal/contracts"
	"github.com/wonny/loflimit/internal/worker"
	"github.com/wonny/loflimit/pkg/logger"
)

// GetError lets FundResult travel through the worker pool.
func (r *FundResult) GetError() error {
	return r.Err
}

// FundFailure is one fund that could not be rebuilt.
type FundFailure struct {
	Ticker string `json:"ticker"`
	Reason string `json:"reason"`
}

// BatchSummary reports a whole rebuild run: funds processed, funds
// skipped with reasons, assertions ignored, and integrity violations
// needing manual review.
type BatchSummary struct {
	Funds               int           `json:"funds"`
	Changed             int           `json:"changed"`
	Invalid             int           `json:"invalid_assertions"`
	Ambiguous           int           `json:"ambiguous_assertions"`
	Failures            []FundFailure `json:"failures,omitempty"`
	IntegrityViolations []string      `json:"integrity_violations,omitempty"`
	Elapsed             time.Duration `json:"elapsed_ms"`
}

// recordFailure files one fund's error, unwrapping the chain to route
// integrity violations onto the manual-review list. Reports whether
// the error carried a violation.
func (s *BatchSummary) recordFailure(ticker string, err error) bool {
	s.Failures = append(s.Failures, FundFailure{Ticker: ticker, Reason: err.Error()})

	var iv *contracts.IntegrityViolation
	if errors.As(err, &iv) {
		s.IntegrityViolations = append(s.IntegrityViolations, iv.Ticker)
		return true
	}
	return false
}

// BatchRunner rebuilds many funds concurrently. Each fund is one job;
// a fund's failure never stops the rest of the batch.
type BatchRunner struct {
	pipeline    *Pipeline
	concurrency int
	log         *logger.Logger
}

func NewBatchRunner(pipeline *Pipeline, concurrency int, log *logger.Logger) *BatchRunner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &BatchRunner{pipeline: pipeline, concurrency: concurrency, log: log}
}

type fundJob struct {
	pipeline *Pipeline
	ticker   string
	asOf     time.Time
}

func (j *fundJob) Execute(ctx context.Context) worker.Result {
	return j.pipeline.RunFund(ctx, j.ticker, j.asOf)
}

// Run rebuilds every given fund. onProgress, when non-nil, is invoked
// from the collecting goroutine as each fund finishes; it must not
// block for long.
func (b *BatchRunner) Run(ctx context.Context, tickers []string, asOf time.Time, onProgress func(*FundResult)) *BatchSummary {
	start := time.Now()
	summary := &BatchSummary{Funds: len(tickers)}

	pool := worker.NewPool(ctx, b.concurrency)
	pool.Start()

	go func() {
		for _, t := range tickers {
			pool.Submit(&fundJob{pipeline: b.pipeline, ticker: t, asOf: asOf})
		}
		pool.Done()
	}()

	for r := range pool.Results() {
		result, ok := r.(*FundResult)
		if !ok {
			continue
		}

		summary.Invalid += result.Invalid
		summary.Ambiguous += result.Ambiguous

		if result.Err != nil {
			if summary.recordFailure(result.Ticker, result.Err) {
				b.log.WithTicker(result.Ticker).WithError(result.Err).Error("integrity violation, manual review required")
			} else {
				b.log.WithTicker(result.Ticker).WithError(result.Err).Error("fund rebuild failed")
			}
		} else if result.Changed() {
			summary.Changed++
		}

		if onProgress != nil {
			onProgress(result)
		}
	}

	summary.Elapsed = time.Since(start)

	b.log.WithFields(map[string]interface{}{
		"funds":     summary.Funds,
		"changed":   summary.Changed,
		"failed":    len(summary.Failures),
		"invalid":   summary.Invalid,
		"ambiguous": summary.Ambiguous,
		"elapsed":   summary.Elapsed.String(),
	}).Info("batch rebuild finished")

	return summary
}
