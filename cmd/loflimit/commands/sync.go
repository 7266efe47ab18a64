package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/loflimit/internal/external/eastmoney"
	"github.com/wonny/loflimit/internal/extract"
	"github.com/wonny/loflimit/pkg/config"
	"github.com/wonny/loflimit/pkg/database"
	"github.com/wonny/loflimit/pkg/httputil"
	"github.com/wonny/loflimit/pkg/logger"
	"github.com/wonny/loflimit/pkg/redis"
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch announcements and extract purchase-limit assertions",
	Long: `Fetches fund announcements from the disclosure site, runs the
local LLM extraction over any not seen before, and stores the resulting
assertions. Run rebuild afterwards to fold them into the timeline.

Example:
  go run ./cmd/loflimit sync --tickers 161130
  go run ./cmd/loflimit sync --tickers 161130,160632 --days 30`,
	RunE: runSync,
}

var (
	syncTickers []string
	syncDays    int
	syncPages   int
)

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().StringSliceVar(&syncTickers, "tickers", nil, "funds to sync (default: all with parses)")
	syncCmd.Flags().IntVar(&syncDays, "days", 7, "how far back to look")
	syncCmd.Flags().IntVar(&syncPages, "pages", 5, "max announcement list pages per fund")
}

func runSync(cmd *cobra.Command, args []string) error {
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

	// LLM calls go through the shared rate limiter when Redis is up.
	var limiter *redis.RateLimiter
	redisClient, err := redis.New(cfg)
	if err == nil && redisClient.Enabled() {
		defer redisClient.Close()
		limiter = redis.NewRateLimiter(redisClient, "loflimit")
	}

	httpClient := httputil.New(cfg, log)
	fetcher := eastmoney.NewClient(cfg, httpClient, log)
	llm := extract.NewOllamaClient(cfg, limiter, log)
	parseRepo := extract.NewParseRepository(db.Pool)
	extractor := extract.NewService(llm, parseRepo, log)

	ctx := context.Background()

	if !llm.Available(ctx) {
		return fmt.Errorf("ollama not reachable at %s", cfg.Ollama.BaseURL)
	}

	tickers := syncTickers
	if len(tickers) == 0 {
		tickers, err = parseRepo.ListTickers(ctx)
		if err != nil {
			return fmt.Errorf("list funds: %w", err)
		}
	}
	if len(tickers) == 0 {
		fmt.Println("No funds to sync (pass --tickers)")
		return nil
	}

	since := time.Now().AddDate(0, 0, -syncDays)
	fmt.Printf("Syncing %d funds since %s\n", len(tickers), since.Format("2006-01-02"))

	var anns []*extract.Announcement
	for _, ticker := range tickers {
		list, err := fetcher.FetchAnnouncementList(ctx, ticker, since, syncPages)
		if err != nil {
			log.WithTicker(ticker).WithError(err).Warn("Failed to fetch announcement list")
			continue
		}

		fresh := 0
		for _, ann := range list {
			seen, err := parseRepo.HasParse(ctx, ann.SourceID)
			if err != nil {
				return fmt.Errorf("check parse %s: %w", ann.SourceID, err)
			}
			if seen {
				continue
			}

			text, err := fetcher.FetchAnnouncementText(ctx, ann.URL)
			if err != nil {
				log.WithTicker(ticker).WithError(err).Warn("Failed to fetch announcement text")
				continue
			}

			anns = append(anns, &extract.Announcement{
				Ticker:      ann.Ticker,
				SourceID:    ann.SourceID,
				PublishedAt: ann.PublishedAt,
				Text:        text,
			})
			fresh++
		}

		fmt.Printf("  %s: %d announcements, %d new\n", ticker, len(list), fresh)
	}

	if len(anns) == 0 {
		fmt.Println("Nothing new to extract")
		return nil
	}

	stats := extractor.ExtractBatch(ctx, anns)

	fmt.Println()
	fmt.Printf("Extracted: %d\n", stats.Extracted)
	fmt.Printf("Non-limit: %d\n", stats.NonLimit)
	fmt.Printf("Failed:    %d\n", stats.Failed)

	return nil
}
