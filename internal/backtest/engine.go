package backtest

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/wonny/loflimit/internal/contracts"
	"github.com/wonny/loflimit/pkg/logger"
)

// Config holds backtest parameters.
type Config struct {
	Tickers     []string
	StartDate   time.Time
	EndDate     time.Time
	InitialCash float64

	BuyThreshold    float64 // minimum premium rate to subscribe
	LiquidityRatio  float64 // share of daily volume we can absorb
	CommissionRate  float64 // redemption side
	UseMA5Liquidity bool    // cap liquidity by 5-day average volume too

	// Tiered subscription fee: below Tier1Limit at Tier1Rate, below
	// Tier2Limit at Tier2Rate, above that a flat fee.
	FeeTier1Limit float64
	FeeTier2Limit float64
	FeeTier1Rate  float64
	FeeTier2Rate  float64
	FeeFixed      float64
}

// DefaultConfig mirrors common LOF subscription terms.
func DefaultConfig() Config {
	return Config{
		InitialCash:     1_000_000,
		BuyThreshold:    0.02,
		LiquidityRatio:  0.05,
		CommissionRate:  0.005,
		UseMA5Liquidity: true,
		FeeTier1Limit:   500_000,
		FeeTier2Limit:   2_000_000,
		FeeTier1Rate:    0.015,
		FeeTier2Rate:    0.01,
		FeeFixed:        1000,
	}
}

// SubscriptionFee applies the tiered fee schedule to one amount.
func SubscriptionFee(amount float64, cfg Config) float64 {
	switch {
	case amount < cfg.FeeTier1Limit:
		return amount * cfg.FeeTier1Rate
	case amount < cfg.FeeTier2Limit:
		return amount * cfg.FeeTier2Rate
	default:
		return cfg.FeeFixed
	}
}

// Trade is one executed order.
type Trade struct {
	Date      time.Time `json:"date"`
	Action    string    `json:"action"` // buy or sell
	Ticker    string    `json:"ticker"`
	Shares    float64   `json:"shares"`
	Price     float64   `json:"price"`
	Amount    float64   `json:"amount"`
	Fee       float64   `json:"fee"`
	NetAmount float64   `json:"net_amount"`
}

// EquityPoint is one day of the equity curve.
type EquityPoint struct {
	Date           time.Time `json:"date"`
	TotalAssets    float64   `json:"total_assets"`
	Cash           float64   `json:"cash"`
	PositionsValue float64   `json:"positions_value"`
}

// Result holds the simulation output and derived metrics.
type Result struct {
	Config      Config        `json:"config"`
	EquityCurve []EquityPoint `json:"equity_curve"`
	Trades      []Trade       `json:"trades"`

	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	BuyTrades        int     `json:"buy_trades"`
	SellTrades       int     `json:"sell_trades"`
}

// MarketData supplies price/NAV bars.
type MarketData interface {
	GetBars(ctx context.Context, ticker string, from, to time.Time) ([]Bar, error)
}

// LimitSource answers the daily purchase ceiling, unlimited as
// math.Inf(1). Satisfied by the projection service.
type LimitSource interface {
	Project(ctx context.Context, ticker string, from, to time.Time) ([]contracts.DailyLimit, error)
}

// Engine simulates LOF premium arbitrage: redeem everything that has
// settled, then subscribe greedily into the highest-premium funds,
// capped by the daily purchase limit, liquidity and cash.
type Engine struct {
	market MarketData
	limits LimitSource
	log    *logger.Logger
}

func NewEngine(market MarketData, limits LimitSource, log *logger.Logger) *Engine {
	return &Engine{market: market, limits: limits, log: log}
}

type fundData struct {
	bars      map[time.Time]Bar
	ma5Volume map[time.Time]float64
	limit     map[time.Time]float64
}

type buyCandidate struct {
	ticker  string
	premium float64
	bar     Bar
	limit   float64
}

// Run executes the simulation over the configured funds and window.
// All funds share one capital pool.
func (e *Engine) Run(ctx context.Context, cfg Config) (*Result, error) {
	if len(cfg.Tickers) == 0 {
		return nil, fmt.Errorf("no tickers configured")
	}

	e.log.WithFields(map[string]interface{}{
		"tickers": cfg.Tickers,
		"from":    cfg.StartDate.Format("2006-01-02"),
		"to":      cfg.EndDate.Format("2006-01-02"),
	}).Info("starting backtest")

	data, tradingDays, err := e.loadData(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if len(tradingDays) == 0 {
		return nil, fmt.Errorf("no aligned trading days for %v", cfg.Tickers)
	}

	account := NewAccount(cfg.InitialCash)
	result := &Result{Config: cfg}

	for i, date := range tradingDays {
		account.AdvanceDate(date)

		// Redeem everything that has settled.
		for _, ticker := range cfg.Tickers {
			bar, ok := data[ticker].bars[date]
			if !ok {
				continue
			}
			shares := account.AvailableShares(ticker)
			if shares <= 0 {
				continue
			}
			net := account.Sell(ticker, shares, bar.Close, cfg.CommissionRate)
			result.Trades = append(result.Trades, Trade{
				Date: date, Action: "sell", Ticker: ticker,
				Shares: shares, Price: bar.Close,
				Amount: shares * bar.Close, Fee: shares * bar.Close * cfg.CommissionRate,
				NetAmount: net,
			})
			result.SellTrades++
		}

		// Collect buy candidates above the premium threshold with a
		// positive purchase limit, best premium first.
		var candidates []buyCandidate
		for _, ticker := range cfg.Tickers {
			fd := data[ticker]
			bar, ok := fd.bars[date]
			if !ok {
				continue
			}
			limit, ok := fd.limit[date]
			if !ok {
				limit = math.Inf(1)
			}
			if bar.PremiumRate() > cfg.BuyThreshold && limit > 0 {
				candidates = append(candidates, buyCandidate{
					ticker:  ticker,
					premium: bar.PremiumRate(),
					bar:     bar,
					limit:   limit,
				})
			}
		}
		sort.Slice(candidates, func(a, b int) bool {
			return candidates[a].premium > candidates[b].premium
		})

		settleDate := settleDateT2(tradingDays, i)
		for _, c := range candidates {
			if account.Cash <= 0 {
				break
			}
			if trade := e.executeBuy(account, c, cfg, date, settleDate, data[c.ticker]); trade != nil {
				result.Trades = append(result.Trades, *trade)
				result.BuyTrades++
			}
		}

		prices := make(map[string]float64, len(cfg.Tickers))
		for _, ticker := range cfg.Tickers {
			if bar, ok := data[ticker].bars[date]; ok {
				prices[ticker] = bar.Close
			}
		}
		result.EquityCurve = append(result.EquityCurve, EquityPoint{
			Date:           date,
			TotalAssets:    account.TotalValue(prices),
			Cash:           account.Cash,
			PositionsValue: account.PositionsValue(prices),
		})
	}

	computeMetrics(result)

	e.log.WithFields(map[string]interface{}{
		"trading_days": len(tradingDays),
		"trades":       len(result.Trades),
		"total_return": result.TotalReturn,
	}).Info("backtest finished")

	return result, nil
}

func (e *Engine) executeBuy(account *Account, c buyCandidate, cfg Config, date, settleDate time.Time, fd *fundData) *Trade {
	liquidVolume := float64(c.bar.Volume)
	if cfg.UseMA5Liquidity {
		if ma5, ok := fd.ma5Volume[date]; ok && ma5 < liquidVolume {
			liquidVolume = ma5
		}
	}
	liquidCap := liquidVolume * cfg.LiquidityRatio * c.bar.Close

	amount := math.Min(c.limit, liquidCap)
	amount = math.Min(amount, account.Cash)
	if amount <= 0 {
		return nil
	}

	fee := SubscriptionFee(amount, cfg)
	if amount <= fee {
		return nil
	}

	shares := account.Buy(c.ticker, amount, c.bar.NAV, fee, settleDate)
	if shares <= 0 {
		return nil
	}

	return &Trade{
		Date: date, Action: "buy", Ticker: c.ticker,
		Shares: shares, Price: c.bar.NAV,
		Amount: amount, Fee: fee, NetAmount: amount - fee,
	}
}

func (e *Engine) loadData(ctx context.Context, cfg Config) (map[string]*fundData, []time.Time, error) {
	data := make(map[string]*fundData, len(cfg.Tickers))
	var common map[time.Time]int

	for _, ticker := range cfg.Tickers {
		bars, err := e.market.GetBars(ctx, ticker, cfg.StartDate, cfg.EndDate)
		if err != nil {
			return nil, nil, fmt.Errorf("load bars for %s: %w", ticker, err)
		}

		fd := &fundData{
			bars:      make(map[time.Time]Bar, len(bars)),
			ma5Volume: make(map[time.Time]float64, len(bars)),
			limit:     make(map[time.Time]float64),
		}
		for i, b := range bars {
			fd.bars[b.Date] = b

			window := bars[max(0, i-4) : i+1]
			sum := 0.0
			for _, w := range window {
				sum += float64(w.Volume)
			}
			fd.ma5Volume[b.Date] = sum / float64(len(window))
		}

		limits, err := e.limits.Project(ctx, ticker, cfg.StartDate, cfg.EndDate)
		if err != nil {
			return nil, nil, fmt.Errorf("load limits for %s: %w", ticker, err)
		}
		for _, l := range limits {
			fd.limit[l.Date] = l.Ceiling
		}

		data[ticker] = fd

		if common == nil {
			common = make(map[time.Time]int, len(fd.bars))
		}
		for d := range fd.bars {
			common[d]++
		}
	}

	// Trade only days where every fund has data.
	var tradingDays []time.Time
	for d, n := range common {
		if n == len(cfg.Tickers) {
			tradingDays = append(tradingDays, d)
		}
	}
	sort.Slice(tradingDays, func(i, j int) bool { return tradingDays[i].Before(tradingDays[j]) })

	return data, tradingDays, nil
}

// settleDateT2 returns the second trading day after index i. Past the
// end of the calendar the shares never settle within the simulation,
// which prices them as pending until the window closes.
func settleDateT2(tradingDays []time.Time, i int) time.Time {
	if i+2 < len(tradingDays) {
		return tradingDays[i+2]
	}
	return tradingDays[len(tradingDays)-1].AddDate(0, 0, 365)
}

func computeMetrics(r *Result) {
	curve := r.EquityCurve
	if len(curve) == 0 {
		return
	}

	start := curve[0].TotalAssets
	end := curve[len(curve)-1].TotalAssets
	if start > 0 {
		r.TotalReturn = end/start - 1
	}

	if n := len(curve); n > 1 && start > 0 && end > 0 {
		r.AnnualizedReturn = math.Pow(end/start, 252.0/float64(n)) - 1
	}

	// Max drawdown against the running peak.
	peak := curve[0].TotalAssets
	for _, p := range curve {
		if p.TotalAssets > peak {
			peak = p.TotalAssets
		}
		if peak > 0 {
			if dd := (peak - p.TotalAssets) / peak; dd > r.MaxDrawdown {
				r.MaxDrawdown = dd
			}
		}
	}

	// Sharpe from daily returns, 252 trading days, zero risk-free.
	if len(curve) > 2 {
		returns := make([]float64, 0, len(curve)-1)
		for i := 1; i < len(curve); i++ {
			prev := curve[i-1].TotalAssets
			if prev > 0 {
				returns = append(returns, curve[i].TotalAssets/prev-1)
			}
		}
		mean := 0.0
		for _, x := range returns {
			mean += x
		}
		mean /= float64(len(returns))

		variance := 0.0
		for _, x := range returns {
			variance += (x - mean) * (x - mean)
		}
		variance /= float64(len(returns) - 1)

		if vol := math.Sqrt(variance) * math.Sqrt(252); vol > 1e-10 {
			r.SharpeRatio = r.AnnualizedReturn / vol
		}
	}
}
