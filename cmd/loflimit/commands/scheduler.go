package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/loflimit/internal/external/eastmoney"
	"github.com/wonny/loflimit/internal/extract"
	"github.com/wonny/loflimit/internal/project"
	"github.com/wonny/loflimit/internal/scheduler"
	"github.com/wonny/loflimit/internal/scheduler/jobs"
	"github.com/wonny/loflimit/internal/timeline"
	"github.com/wonny/loflimit/pkg/config"
	"github.com/wonny/loflimit/pkg/database"
	"github.com/wonny/loflimit/pkg/httputil"
	"github.com/wonny/loflimit/pkg/logger"
	"github.com/wonny/loflimit/pkg/redis"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run the scheduled jobs",
	Long: `Starts the job scheduler and blocks.

Jobs:
  announcement_sync - fetch and extract new announcements (daily 18:30)
  timeline_rebuild  - replay assertions into the timeline (daily 19:00)
  parse_prune       - drop raw text from old processed parses (weekly)

Example:
  go run ./cmd/loflimit scheduler`,
	RunE: runScheduler,
}

func init() {
	rootCmd.AddCommand(schedulerCmd)
}

func runScheduler(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	var cache *redis.Cache
	var limiter *redis.RateLimiter
	redisClient, err := redis.New(cfg)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, caching and rate limiting disabled")
	} else if redisClient.Enabled() {
		defer redisClient.Close()
		cache = redis.NewCache(redisClient, "loflimit")
		limiter = redis.NewRateLimiter(redisClient, "loflimit")
	}

	// Timeline stack
	intervalRepo := timeline.NewRepository(db.Pool)
	parseRepo := extract.NewParseRepository(db.Pool)
	reconciler := timeline.NewReconciler(intervalRepo, log, cfg.Pipeline.ReconcileRetries)
	pipeline := timeline.NewPipeline(parseRepo, reconciler, log)
	runner := timeline.NewBatchRunner(pipeline, cfg.Pipeline.Concurrency, log)
	projector := project.NewService(intervalRepo, cache, cfg.Redis.ProjectionTTL, log)

	// Extraction stack
	httpClient := httputil.New(cfg, log)
	fetcher := eastmoney.NewClient(cfg, httpClient, log)
	llm := extract.NewOllamaClient(cfg, limiter, log)
	extractor := extract.NewService(llm, parseRepo, log)

	sched := scheduler.New(log)

	jobList := []scheduler.Job{
		jobs.NewAnnouncementSyncJob(fetcher, extractor, parseRepo, log),
		jobs.NewTimelineRebuildJob(runner, parseRepo, projector, log),
		jobs.NewParsePruneJob(parseRepo, log),
	}
	for _, job := range jobList {
		if err := sched.AddJob(job); err != nil {
			return fmt.Errorf("add job %s: %w", job.Name(), err)
		}
	}

	sched.Start()

	fmt.Println("Scheduler running, press Ctrl+C to stop")
	for _, job := range jobList {
		fmt.Printf("  %-18s %s\n", job.Name(), job.Schedule())
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	sched.Stop()

	stats := sched.GetJobStats()
	if len(stats) > 0 {
		fmt.Println("\nJob runs this session:")
		for name, s := range stats {
			fmt.Printf("  %-18s runs=%d ok=%d failed=%d\n",
				name, s.TotalRuns, s.SuccessCount, s.FailureCount)
		}
	}

	return nil
}
