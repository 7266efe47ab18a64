package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/loflimit/internal/external/eastmoney"
	"github.com/wonny/loflimit/internal/extract"
	"github.com/wonny/loflimit/pkg/logger"
)

// AnnouncementSyncJob pulls fresh announcements for every tracked fund
// and extracts purchase-limit assertions from them
type AnnouncementSyncJob struct {
	fetcher   *eastmoney.Client
	extractor *extract.Service
	parses    *extract.Repository
	logger    *logger.Logger
}

// NewAnnouncementSyncJob creates a new announcement sync job
func NewAnnouncementSyncJob(
	fetcher *eastmoney.Client,
	extractor *extract.Service,
	parses *extract.Repository,
	log *logger.Logger,
) *AnnouncementSyncJob {
	return &AnnouncementSyncJob{
		fetcher:   fetcher,
		extractor: extractor,
		parses:    parses,
		logger:    log,
	}
}

// Name returns the job name
func (j *AnnouncementSyncJob) Name() string {
	return "announcement_sync"
}

// Schedule returns the cron schedule (every day at 6:30 PM, after the
// disclosure sites publish the day's announcements)
func (j *AnnouncementSyncJob) Schedule() string {
	return "0 30 18 * * *"
}

// Run executes the announcement sync
func (j *AnnouncementSyncJob) Run(ctx context.Context) error {
	tickers, err := j.parses.ListTickers(ctx)
	if err != nil {
		return fmt.Errorf("list tracked funds: %w", err)
	}
	if len(tickers) == 0 {
		j.logger.Info("No tracked funds, skipping announcement sync")
		return nil
	}

	since := time.Now().AddDate(0, 0, -7)
	var anns []*extract.Announcement

	for _, ticker := range tickers {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		list, err := j.fetcher.FetchAnnouncementList(ctx, ticker, since, 5)
		if err != nil {
			j.logger.WithTicker(ticker).WithError(err).Warn("Failed to fetch announcement list")
			continue
		}

		for _, ann := range list {
			seen, err := j.parses.HasParse(ctx, ann.SourceID)
			if err != nil {
				return fmt.Errorf("check parse %s: %w", ann.SourceID, err)
			}
			if seen {
				continue
			}

			text, err := j.fetcher.FetchAnnouncementText(ctx, ann.URL)
			if err != nil {
				j.logger.WithTicker(ticker).WithField("source_id", ann.SourceID).
					WithError(err).Warn("Failed to fetch announcement text")
				continue
			}

			anns = append(anns, &extract.Announcement{
				Ticker:      ann.Ticker,
				SourceID:    ann.SourceID,
				PublishedAt: ann.PublishedAt,
				Text:        text,
			})
		}
	}

	if len(anns) == 0 {
		j.logger.Info("No new announcements")
		return nil
	}

	stats := j.extractor.ExtractBatch(ctx, anns)

	j.logger.WithFields(map[string]interface{}{
		"funds":     len(tickers),
		"new":       stats.Total,
		"extracted": stats.Extracted,
		"failed":    stats.Failed,
	}).Info("Announcement sync completed")

	return nil
}
