package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/loflimit/internal/extract"
	"github.com/wonny/loflimit/internal/project"
	"github.com/wonny/loflimit/internal/timeline"
	"github.com/wonny/loflimit/pkg/config"
	"github.com/wonny/loflimit/pkg/database"
	"github.com/wonny/loflimit/pkg/logger"
	"github.com/wonny/loflimit/pkg/redis"
)

// rebuildCmd represents the rebuild command
var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the canonical timeline from stored assertions",
	Long: `Replays every stored assertion through the validate, sequence,
merge and reconcile stages, and writes the resulting intervals.

Rebuilding is idempotent: running it twice without new announcements
changes nothing and logs nothing.

Example:
  go run ./cmd/loflimit rebuild
  go run ./cmd/loflimit rebuild --tickers 161130,160632
  go run ./cmd/loflimit rebuild --as-of 2024-06-30`,
	RunE: runRebuild,
}

var (
	rebuildTickers []string
	rebuildAsOf    string
)

func init() {
	rootCmd.AddCommand(rebuildCmd)

	rebuildCmd.Flags().StringSliceVar(&rebuildTickers, "tickers", nil, "funds to rebuild (default: all with parses)")
	rebuildCmd.Flags().StringVar(&rebuildAsOf, "as-of", "", "only replay announcements up to this date (YYYY-MM-DD)")
}

func runRebuild(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg)

	asOf := time.Now().UTC()
	if rebuildAsOf != "" {
		asOf, err = time.Parse("2006-01-02", rebuildAsOf)
		if err != nil {
			return fmt.Errorf("invalid --as-of date: %w", err)
		}
	}

	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	var cache *redis.Cache
	redisClient, err := redis.New(cfg)
	if err == nil && redisClient.Enabled() {
		defer redisClient.Close()
		cache = redis.NewCache(redisClient, "loflimit")
	}

	intervalRepo := timeline.NewRepository(db.Pool)
	parseRepo := extract.NewParseRepository(db.Pool)
	reconciler := timeline.NewReconciler(intervalRepo, log, cfg.Pipeline.ReconcileRetries)
	pipeline := timeline.NewPipeline(parseRepo, reconciler, log)
	runner := timeline.NewBatchRunner(pipeline, cfg.Pipeline.Concurrency, log)
	projector := project.NewService(intervalRepo, cache, cfg.Redis.ProjectionTTL, log)

	ctx := context.Background()

	tickers := rebuildTickers
	if len(tickers) == 0 {
		tickers, err = parseRepo.ListTickers(ctx)
		if err != nil {
			return fmt.Errorf("list funds: %w", err)
		}
	}
	if len(tickers) == 0 {
		fmt.Println("No funds with stored assertions")
		return nil
	}

	fmt.Printf("Rebuilding %d funds (as of %s)\n", len(tickers), asOf.Format("2006-01-02"))

	done := 0
	summary := runner.Run(ctx, tickers, asOf, func(r *timeline.FundResult) {
		done++
		mark := " "
		if r.Err != nil {
			mark = "!"
		} else if r.Changed() {
			mark = "*"
		}
		fmt.Printf("[%d/%d] %s %s  intervals=%d upserts=%d removals=%d\n",
			done, len(tickers), mark, r.Ticker, r.Intervals, r.Upserts, r.Removals)

		if r.Changed() {
			projector.Invalidate(ctx, r.Ticker)
		}
	})

	fmt.Println()
	fmt.Printf("Funds:     %d\n", summary.Funds)
	fmt.Printf("Changed:   %d\n", summary.Changed)
	fmt.Printf("Invalid:   %d assertions\n", summary.Invalid)
	fmt.Printf("Ambiguous: %d assertions\n", summary.Ambiguous)
	fmt.Printf("Elapsed:   %s\n", summary.Elapsed.Round(time.Millisecond))

	if len(summary.IntegrityViolations) > 0 {
		fmt.Printf("\nIntegrity violations (manual review): %v\n", summary.IntegrityViolations)
	}
	for _, f := range summary.Failures {
		fmt.Printf("FAILED %s: %s\n", f.Ticker, f.Reason)
	}
	if len(summary.Failures) > 0 {
		return fmt.Errorf("%d funds failed", len(summary.Failures))
	}

	return nil
}
