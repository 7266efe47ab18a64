package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/loflimit/internal/project"
	"github.com/wonny/loflimit/internal/timeline"
	"github.com/wonny/loflimit/pkg/config"
	"github.com/wonny/loflimit/pkg/database"
	"github.com/wonny/loflimit/pkg/logger"
	"github.com/wonny/loflimit/pkg/redis"
)

// projectCmd represents the project command
var projectCmd = &cobra.Command{
	Use:   "project <ticker>",
	Short: "Project the timeline onto daily purchase limits",
	Long: `Answers "how much of this fund could I buy per day" over a date
range. A blank ceiling means unlimited, 0 means suspended.

Example:
  go run ./cmd/loflimit project 161130
  go run ./cmd/loflimit project 161130 --from 2024-01-01 --to 2024-01-31`,
	Args: cobra.ExactArgs(1),
	RunE: runProject,
}

var (
	projectFrom string
	projectTo   string
)

func init() {
	rootCmd.AddCommand(projectCmd)

	projectCmd.Flags().StringVar(&projectFrom, "from", "", "range start (YYYY-MM-DD, default today)")
	projectCmd.Flags().StringVar(&projectTo, "to", "", "range end (YYYY-MM-DD, default from+30d)")
}

func runProject(cmd *cobra.Command, args []string) error {
	ticker := args[0]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg)

	from := time.Now().UTC()
	if projectFrom != "" {
		from, err = time.Parse("2006-01-02", projectFrom)
		if err != nil {
			return fmt.Errorf("invalid --from date: %w", err)
		}
	}
	to := from.AddDate(0, 0, 30)
	if projectTo != "" {
		to, err = time.Parse("2006-01-02", projectTo)
		if err != nil {
			return fmt.Errorf("invalid --to date: %w", err)
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
	projector := project.NewService(intervalRepo, cache, cfg.Redis.ProjectionTTL, log)

	ctx := context.Background()

	limits, err := projector.Project(ctx, ticker, from, to)
	if err != nil {
		return fmt.Errorf("project %s: %w", ticker, err)
	}

	fmt.Printf("Daily purchase limits for %s\n\n", ticker)
	for _, l := range limits {
		switch {
		case l.Unlimited():
			fmt.Printf("  %s  unlimited\n", l.Date.Format("2006-01-02"))
		case l.Ceiling == 0:
			fmt.Printf("  %s  suspended\n", l.Date.Format("2006-01-02"))
		default:
			fmt.Printf("  %s  %.2f\n", l.Date.Format("2006-01-02"), l.Ceiling)
		}
	}

	return nil
}
