package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Bar is one trading day of price and NAV data for a fund.
type Bar struct {
	Ticker string
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
	NAV    float64
}

// PremiumRate is the traded-price premium over NAV, the signal the
// arbitrage strategy buys on.
func (b Bar) PremiumRate() float64 {
	if b.NAV <= 0 {
		return 0
	}
	return b.Close/b.NAV - 1
}

// MarketRepository reads and writes market.fund_prices and
// market.fund_nav.
type MarketRepository struct {
	pool *pgxpool.Pool
}

func NewMarketRepository(pool *pgxpool.Pool) *MarketRepository {
	return &MarketRepository{pool: pool}
}

// GetBars returns price bars joined with NAV for one fund, ordered by
// date. Days missing either side are skipped: both are needed to
// price a premium.
func (r *MarketRepository) GetBars(ctx context.Context, ticker string, from, to time.Time) ([]Bar, error) {
	query := `
		SELECT p.ticker, p.trade_date, p.open, p.high, p.low, p.close, p.volume, n.nav
		FROM market.fund_prices p
		JOIN market.fund_nav n ON n.ticker = p.ticker AND n.trade_date = p.trade_date
		WHERE p.ticker = $1 AND p.trade_date BETWEEN $2 AND $3
		ORDER BY p.trade_date
	`

	rows, err := r.pool.Query(ctx, query, ticker, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()

	var bars []Bar
	for rows.Next() {
		var b Bar
		err := rows.Scan(&b.Ticker, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.NAV)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		bars = append(bars, b)
	}

	return bars, rows.Err()
}

// SaveBar upserts one day of price and NAV data.
func (r *MarketRepository) SaveBar(ctx context.Context, b Bar) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO market.fund_prices (ticker, trade_date, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (ticker, trade_date) DO UPDATE SET
			open = EXCLUDED.open, high = EXCLUDED.high,
			low = EXCLUDED.low, close = EXCLUDED.close, volume = EXCLUDED.volume
	`, b.Ticker, b.Date, b.Open, b.High, b.Low, b.Close, b.Volume)
	if err != nil {
		return fmt.Errorf("failed to save price: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO market.fund_nav (ticker, trade_date, nav)
		VALUES ($1, $2, $3)
		ON CONFLICT (ticker, trade_date) DO UPDATE SET nav = EXCLUDED.nav
	`, b.Ticker, b.Date, b.NAV)
	if err != nil {
		return fmt.Errorf("failed to save nav: %w", err)
	}

	return nil
}
