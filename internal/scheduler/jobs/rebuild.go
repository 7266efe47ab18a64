package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/loflimit/internal/contracts"
	"github.com/wonny/loflimit/internal/project"
	"github.com/wonny/loflimit/internal/timeline"
	"github.com/wonny/loflimit/pkg/logger"
)

// TimelineRebuildJob replays stored assertions into the canonical
// timeline for every fund, nightly after announcement sync
type TimelineRebuildJob struct {
	runner    *timeline.BatchRunner
	parses    contracts.ParseRepository
	projector *project.Service
	logger    *logger.Logger
}

// NewTimelineRebuildJob creates a new timeline rebuild job
func NewTimelineRebuildJob(
	runner *timeline.BatchRunner,
	parses contracts.ParseRepository,
	projector *project.Service,
	log *logger.Logger,
) *TimelineRebuildJob {
	return &TimelineRebuildJob{
		runner:    runner,
		parses:    parses,
		projector: projector,
		logger:    log,
	}
}

// Name returns the job name
func (j *TimelineRebuildJob) Name() string {
	return "timeline_rebuild"
}

// Schedule returns the cron schedule (every day at 7 PM, after
// announcement sync has landed)
func (j *TimelineRebuildJob) Schedule() string {
	return "0 0 19 * * *"
}

// Run executes the timeline rebuild
func (j *TimelineRebuildJob) Run(ctx context.Context) error {
	tickers, err := j.parses.ListTickers(ctx)
	if err != nil {
		return fmt.Errorf("list funds: %w", err)
	}
	if len(tickers) == 0 {
		j.logger.Info("No funds with stored assertions, skipping rebuild")
		return nil
	}

	summary := j.runner.Run(ctx, tickers, time.Now().UTC(), func(r *timeline.FundResult) {
		if r.Changed() {
			j.projector.Invalidate(ctx, r.Ticker)
		}
	})

	if len(summary.IntegrityViolations) > 0 {
		j.logger.WithField("tickers", summary.IntegrityViolations).
			Error("Funds left with overlapping open intervals, manual review required")
	}

	if len(summary.Failures) == len(tickers) {
		return fmt.Errorf("rebuild failed for all %d funds", len(tickers))
	}

	return nil
}
