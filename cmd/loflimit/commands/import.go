package commands

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/loflimit/internal/backtest"
	"github.com/wonny/loflimit/pkg/config"
	"github.com/wonny/loflimit/pkg/database"
	"github.com/wonny/loflimit/pkg/logger"
)

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Import price/NAV history from CSV",
	Long: `Loads daily bars into the market schema for backtesting.

Expected columns (header required):
  ticker,date,open,high,low,close,volume,nav

Example:
  go run ./cmd/loflimit import bars.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg)

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open %s: %w", args[0], err)
	}
	defer f.Close()

	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	marketRepo := backtest.NewMarketRepository(db.Pool)
	ctx := context.Background()

	r := csv.NewReader(f)
	if _, err := r.Read(); err != nil { // header
		return fmt.Errorf("read header: %w", err)
	}

	imported, skipped := 0, 0
	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read line %d: %w", line, err)
		}

		bar, err := parseBarRecord(record)
		if err != nil {
			log.WithField("line", line).WithError(err).Warn("Skipping bad row")
			skipped++
			continue
		}

		if err := marketRepo.SaveBar(ctx, bar); err != nil {
			return fmt.Errorf("save bar at line %d: %w", line, err)
		}
		imported++
	}

	fmt.Printf("Imported %d bars, skipped %d\n", imported, skipped)
	return nil
}

func parseBarRecord(record []string) (backtest.Bar, error) {
	var bar backtest.Bar

	if len(record) != 8 {
		return bar, fmt.Errorf("expected 8 columns, got %d", len(record))
	}

	date, err := time.Parse("2006-01-02", record[1])
	if err != nil {
		return bar, fmt.Errorf("invalid date %q", record[1])
	}

	fields := make([]float64, 4)
	for i, idx := range []int{2, 3, 4, 5} {
		fields[i], err = strconv.ParseFloat(record[idx], 64)
		if err != nil {
			return bar, fmt.Errorf("invalid price %q", record[idx])
		}
	}

	volume, err := strconv.ParseInt(record[6], 10, 64)
	if err != nil {
		return bar, fmt.Errorf("invalid volume %q", record[6])
	}

	nav, err := strconv.ParseFloat(record[7], 64)
	if err != nil {
		return bar, fmt.Errorf("invalid nav %q", record[7])
	}
	if nav <= 0 {
		return bar, fmt.Errorf("nav must be positive, got %v", nav)
	}

	bar = backtest.Bar{
		Ticker: record[0],
		Date:   date,
		Open:   fields[0],
		High:   fields[1],
		Low:    fields[2],
		Close:  fields[3],
		Volume: volume,
		NAV:    nav,
	}
	return bar, nil
}
