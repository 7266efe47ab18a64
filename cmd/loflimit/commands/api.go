package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/loflimit/internal/api"
	"github.com/wonny/loflimit/internal/api/handlers"
	"github.com/wonny/loflimit/internal/extract"
	"github.com/wonny/loflimit/internal/project"
	"github.com/wonny/loflimit/internal/timeline"
	"github.com/wonny/loflimit/pkg/config"
	"github.com/wonny/loflimit/pkg/database"
	"github.com/wonny/loflimit/pkg/logger"
	"github.com/wonny/loflimit/pkg/redis"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long: `Starts the REST API server.

Endpoints:
  GET  /health                       - Health check
  GET  /api/funds                    - Funds with a timeline
  GET  /api/funds/{ticker}/intervals - Canonical intervals
  GET  /api/funds/{ticker}/limits    - Daily limit projection
  GET  /api/funds/{ticker}/audit     - Audit log
  POST /api/pipeline/rebuild         - Trigger a timeline rebuild
  GET  /api/pipeline/stream          - Rebuild progress (websocket)

Example:
  go run ./cmd/loflimit api
  go run ./cmd/loflimit api --port 8080`,
	RunE: runAPIServer,
}

var apiPort string

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API server port (default from PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if apiPort != "" {
		cfg.Port = apiPort
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	log.WithFields(map[string]interface{}{
		"port": cfg.Port,
		"env":  cfg.Env,
	}).Info("Initializing API server")

	// 3. Connect to database
	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	log.Info("Connected to database")

	// 4. Connect to Redis (optional, projections work without caching)
	var cache *redis.Cache
	redisClient, err := redis.New(cfg)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, projection caching disabled")
	} else if redisClient.Enabled() {
		defer redisClient.Close()
		cache = redis.NewCache(redisClient, "loflimit")
	}

	// 5. Create repositories
	intervalRepo := timeline.NewRepository(db.Pool)
	parseRepo := extract.NewParseRepository(db.Pool)

	// 6. Create timeline pipeline
	reconciler := timeline.NewReconciler(intervalRepo, log, cfg.Pipeline.ReconcileRetries)
	pipeline := timeline.NewPipeline(parseRepo, reconciler, log)
	runner := timeline.NewBatchRunner(pipeline, cfg.Pipeline.Concurrency, log)

	// 7. Create projection service
	projector := project.NewService(intervalRepo, cache, cfg.Redis.ProjectionTTL, log)

	// 8. Create handlers
	stream := handlers.NewStream(log)
	limitsHandler := handlers.NewLimitsHandler(projector, intervalRepo, intervalRepo, log)
	pipelineHandler := handlers.NewPipelineHandler(runner, parseRepo, projector, stream, log)

	// 9. Create router and server
	router := api.NewRouter(limitsHandler, pipelineHandler, stream, log)
	server := api.New(cfg, log, router)

	// 10. Start server with graceful shutdown
	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	fmt.Printf("Server running on http://localhost:%s\n", cfg.Port)
	fmt.Println("Press Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
