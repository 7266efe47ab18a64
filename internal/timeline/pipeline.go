package timeline

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/loflimit/internal/contracts"
	"github.com/wonny/loflimit/pkg/logger"
)

// FundResult summarizes one fund's pipeline run.
type FundResult struct {
	Ticker     string        `json:"ticker"`
	Assertions int           `json:"assertions"`
	Invalid    int           `json:"invalid"`    // dropped by the validator
	Ambiguous  int           `json:"ambiguous"`  // end-only with no context
	Intervals  int           `json:"intervals"`  // canonical count after the run
	Upserts    int           `json:"upserts"`    // created or updated rows
	Removals   int           `json:"removals"`   // rows absorbed by merges
	Elapsed    time.Duration `json:"elapsed_ms"` // wall time for the fund
	Err        error         `json:"-"`
}

// Changed reports whether the run touched storage.
func (r *FundResult) Changed() bool {
	return r.Upserts > 0 || r.Removals > 0
}

// Pipeline runs the full per-fund computation: validate, sequence,
// merge, reconcile. Funds are independent; one Pipeline is safe for
// concurrent RunFund calls because all fold state is local to a call.
type Pipeline struct {
	parses     contracts.ParseRepository
	reconciler *Reconciler
	log        *logger.Logger
}

func NewPipeline(parses contracts.ParseRepository, reconciler *Reconciler, log *logger.Logger) *Pipeline {
	return &Pipeline{parses: parses, reconciler: reconciler, log: log}
}

// RunFund loads the stored assertions for one fund and rebuilds its
// timeline from scratch.
func (p *Pipeline) RunFund(ctx context.Context, ticker string, asOf time.Time) *FundResult {
	assertions, err := p.parses.GetAssertions(ctx, ticker, asOf)
	if err != nil {
		return &FundResult{Ticker: ticker, Err: fmt.Errorf("load assertions for %s: %w", ticker, err)}
	}
	return p.Run(ctx, ticker, assertions)
}

// Run rebuilds one fund's timeline from the given assertions. The
// computation is a pure fold up to the reconciler; only the final
// delta touches storage.
func (p *Pipeline) Run(ctx context.Context, ticker string, assertions []*contracts.RawAssertion) *FundResult {
	start := time.Now()
	result := &FundResult{Ticker: ticker, Assertions: len(assertions)}

	valid := make([]*contracts.RawAssertion, 0, len(assertions))
	for _, a := range assertions {
		if err := Validate(a); err != nil {
			result.Invalid++
			p.log.WithTicker(ticker).WithError(err).Warn("assertion rejected")
			continue
		}
		valid = append(valid, a)
	}

	seq := Sequence(valid)
	result.Ambiguous = len(seq.Ambiguous)
	for _, amb := range seq.Ambiguous {
		p.log.WithTicker(ticker).WithError(amb).Warn("ambiguous assertion skipped")
	}

	rec := NewRecorder(p.log)
	merged, err := Merge(ticker, seq.Drafts, rec)
	if err != nil {
		result.Err = err
		result.Elapsed = time.Since(start)
		return result
	}
	result.Intervals = len(merged)

	delta, err := p.reconciler.Reconcile(ctx, ticker, merged, rec)
	if err != nil {
		result.Err = err
		result.Elapsed = time.Since(start)
		return result
	}

	result.Upserts = len(delta.Upserts)
	result.Removals = len(delta.Removals)
	result.Elapsed = time.Since(start)

	p.log.WithFields(map[string]interface{}{
		"ticker":    ticker,
		"intervals": result.Intervals,
		"upserts":   result.Upserts,
		"removals":  result.Removals,
		"invalid":   result.Invalid,
		"ambiguous": result.Ambiguous,
	}).Info("timeline rebuilt")

	return result
}
