package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/loflimit/internal/schema"
	"github.com/wonny/loflimit/pkg/config"
	"github.com/wonny/loflimit/pkg/database"
	"github.com/wonny/loflimit/pkg/logger"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Long: `Applies the database schema: the limits schema (intervals, audit
log, announcement parses) and the market schema (prices, NAV).

All statements are idempotent, running migrate twice is safe.

Example:
  go run ./cmd/loflimit migrate`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := schema.EnsureSchema(ctx, db.Pool); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	log.Info("Schema applied")
	fmt.Println("Schema applied")
	return nil
}
