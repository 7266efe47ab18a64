package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/loflimit/internal/backtest"
	"github.com/wonny/loflimit/internal/project"
	"github.com/wonny/loflimit/internal/timeline"
	"github.com/wonny/loflimit/pkg/config"
	"github.com/wonny/loflimit/pkg/database"
	"github.com/wonny/loflimit/pkg/logger"
	"github.com/wonny/loflimit/pkg/redis"
)

// backtestCmd represents the backtest command
var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run the LOF premium arbitrage simulation",
	Long: `Simulates the premium arbitrage strategy over historical data:
subscribe at NAV when the exchange price trades above it, redeem after
T+2 settlement, every buy capped by the projected daily purchase limit.

Requires price/NAV history (see the import command) and a built
timeline (see rebuild).

Example:
  go run ./cmd/loflimit backtest --tickers 161130 --from 2024-01-01 --to 2024-06-30
  go run ./cmd/loflimit backtest --tickers 161130,160632 --cash 2000000`,
	RunE: runBacktest,
}

var (
	backtestTickers   []string
	backtestFrom      string
	backtestTo        string
	backtestCash      float64
	backtestThreshold float64
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringSliceVar(&backtestTickers, "tickers", nil, "funds to trade (required)")
	backtestCmd.Flags().StringVar(&backtestFrom, "from", "", "simulation start (YYYY-MM-DD, required)")
	backtestCmd.Flags().StringVar(&backtestTo, "to", "", "simulation end (YYYY-MM-DD, required)")
	backtestCmd.Flags().Float64Var(&backtestCash, "cash", 1_000_000, "initial cash")
	backtestCmd.Flags().Float64Var(&backtestThreshold, "threshold", 0.02, "minimum premium rate to subscribe")

	backtestCmd.MarkFlagRequired("tickers")
	backtestCmd.MarkFlagRequired("from")
	backtestCmd.MarkFlagRequired("to")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg)

	from, err := time.Parse("2006-01-02", backtestFrom)
	if err != nil {
		return fmt.Errorf("invalid --from date: %w", err)
	}
	to, err := time.Parse("2006-01-02", backtestTo)
	if err != nil {
		return fmt.Errorf("invalid --to date: %w", err)
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
	marketRepo := backtest.NewMarketRepository(db.Pool)
	engine := backtest.NewEngine(marketRepo, projector, log)

	btCfg := backtest.DefaultConfig()
	btCfg.Tickers = backtestTickers
	btCfg.StartDate = from
	btCfg.EndDate = to
	btCfg.InitialCash = backtestCash
	btCfg.BuyThreshold = backtestThreshold

	result, err := engine.Run(context.Background(), btCfg)
	if err != nil {
		return fmt.Errorf("run backtest: %w", err)
	}

	fmt.Printf("Backtest %s ~ %s (%d funds)\n\n",
		from.Format("2006-01-02"), to.Format("2006-01-02"), len(backtestTickers))
	fmt.Printf("Total return:      %8.2f%%\n", result.TotalReturn*100)
	fmt.Printf("Annualized return: %8.2f%%\n", result.AnnualizedReturn*100)
	fmt.Printf("Max drawdown:      %8.2f%%\n", result.MaxDrawdown*100)
	fmt.Printf("Sharpe ratio:      %8.2f\n", result.SharpeRatio)
	fmt.Printf("Trades:            %d buys, %d sells\n", result.BuyTrades, result.SellTrades)

	return nil
}
