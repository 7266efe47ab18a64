package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/loflimit/internal/extract"
	"github.com/wonny/loflimit/pkg/logger"
)

// Raw text this old has been parsed long since; the extracted
// assertion is what replays use, the text is only kept for re-parsing.
const rawTextRetention = 180 * 24 * time.Hour

// ParsePruneJob drops stored raw announcement text from old processed
// parses. The assertions themselves are never touched.
type ParsePruneJob struct {
	parses *extract.Repository
	logger *logger.Logger
}

// NewParsePruneJob creates a new parse prune job
func NewParsePruneJob(parses *extract.Repository, log *logger.Logger) *ParsePruneJob {
	return &ParsePruneJob{
		parses: parses,
		logger: log,
	}
}

// Name returns the job name
func (j *ParsePruneJob) Name() string {
	return "parse_prune"
}

// Schedule returns the cron schedule (every Sunday at 3 AM)
func (j *ParsePruneJob) Schedule() string {
	return "0 0 3 * * 0"
}

// Run executes the parse prune
func (j *ParsePruneJob) Run(ctx context.Context) error {
	cutoff := time.Now().Add(-rawTextRetention)

	trimmed, err := j.parses.PruneRawText(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune raw text: %w", err)
	}

	if trimmed > 0 {
		j.logger.WithField("trimmed", trimmed).Info("Raw announcement text pruned")
	}

	return nil
}
