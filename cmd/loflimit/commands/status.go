package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/loflimit/internal/extract"
	"github.com/wonny/loflimit/internal/timeline"
	"github.com/wonny/loflimit/pkg/config"
	"github.com/wonny/loflimit/pkg/database"
	"github.com/wonny/loflimit/pkg/redis"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show service health and data coverage",
	Long: `Checks the database and Redis connections and summarizes what is
stored: funds with parsed announcements and funds with a built timeline.

Example:
  go run ./cmd/loflimit status`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Database
	db, err := database.New(cfg)
	if err != nil {
		fmt.Printf("Database: DOWN (%v)\n", err)
		return err
	}
	defer db.Close()

	health, err := db.HealthCheck(ctx)
	if err != nil {
		fmt.Printf("Database: DOWN (%v)\n", err)
		return err
	}
	fmt.Printf("Database: OK (%s, %d/%d conns)\n",
		health.ResponseTime.Round(time.Millisecond),
		health.Stats.TotalConns, health.Stats.MaxConns)

	// Redis
	redisClient, err := redis.New(cfg)
	switch {
	case err != nil:
		fmt.Printf("Redis:    DOWN (%v)\n", err)
	case !redisClient.Enabled():
		fmt.Println("Redis:    disabled")
	default:
		defer redisClient.Close()
		fmt.Println("Redis:    OK")
	}

	// Data coverage
	parseRepo := extract.NewParseRepository(db.Pool)
	intervalRepo := timeline.NewRepository(db.Pool)

	parsed, err := parseRepo.ListTickers(ctx)
	if err != nil {
		return fmt.Errorf("list parsed funds: %w", err)
	}
	built, err := intervalRepo.ListTickers(ctx)
	if err != nil {
		return fmt.Errorf("list timeline funds: %w", err)
	}

	fmt.Println()
	fmt.Printf("Funds with parsed announcements: %d\n", len(parsed))
	fmt.Printf("Funds with a built timeline:     %d\n", len(built))

	// Funds parsed but never rebuilt point at a pending rebuild.
	builtSet := make(map[string]bool, len(built))
	for _, t := range built {
		builtSet[t] = true
	}
	var pending []string
	for _, t := range parsed {
		if !builtSet[t] {
			pending = append(pending, t)
		}
	}
	if len(pending) > 0 {
		fmt.Printf("Pending rebuild:                 %v\n", pending)
	}

	return nil
}
