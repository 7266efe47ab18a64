package backtest

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/loflimit/internal/contracts"
	"github.com/wonny/loflimit/pkg/config"
	"github.com/wonny/loflimit/pkg/logger"
)

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

type stubMarket struct {
	bars map[string][]Bar
}

func (m *stubMarket) GetBars(_ context.Context, ticker string, from, to time.Time) ([]Bar, error) {
	var out []Bar
	for _, b := range m.bars[ticker] {
		if !b.Date.Before(from) && !b.Date.After(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

type stubLimits struct {
	byTicker map[string]map[string]float64 // ticker -> date -> ceiling
}

func (s *stubLimits) Project(_ context.Context, ticker string, from, to time.Time) ([]contracts.DailyLimit, error) {
	var out []contracts.DailyLimit
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		ceiling := math.Inf(1)
		if v, ok := s.byTicker[ticker][d.Format("2006-01-02")]; ok {
			ceiling = v
		}
		out = append(out, contracts.DailyLimit{Date: d, Ceiling: ceiling})
	}
	return out, nil
}

func testEngine(market *stubMarket, limits *stubLimits) *Engine {
	return NewEngine(market, limits,
		logger.New(&config.Config{LogLevel: "error", LogFormat: "json", Env: "development"}))
}

func flatBars(ticker string, days []string, close, nav float64, volume int64) []Bar {
	bars := make([]Bar, 0, len(days))
	for _, d := range days {
		bars = append(bars, Bar{
			Ticker: ticker, Date: day(d),
			Open: close, High: close, Low: close, Close: close,
			Volume: volume, NAV: nav,
		})
	}
	return bars
}

var week = []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"}

func TestSubscriptionFeeTiers(t *testing.T) {
	cfg := DefaultConfig()

	assert.InDelta(t, 1500.0, SubscriptionFee(100_000, cfg), 1e-9, "tier 1 rate")
	assert.InDelta(t, 10_000.0, SubscriptionFee(1_000_000, cfg), 1e-9, "tier 2 rate")
	assert.InDelta(t, 1000.0, SubscriptionFee(5_000_000, cfg), 1e-9, "flat fee above tier 2")
}

func TestRunBuysOnPremiumAndSettlesT2(t *testing.T) {
	// Traded at 1.10 against NAV 1.00: a 10% premium every day.
	market := &stubMarket{bars: map[string][]Bar{
		"F1": flatBars("F1", week, 1.10, 1.00, 10_000_000),
	}}
	limits := &stubLimits{byTicker: map[string]map[string]float64{}}

	cfg := DefaultConfig()
	cfg.Tickers = []string{"F1"}
	cfg.StartDate, cfg.EndDate = day(week[0]), day(week[len(week)-1])
	cfg.UseMA5Liquidity = false

	result, err := testEngine(market, limits).Run(context.Background(), cfg)
	require.NoError(t, err)

	require.NotEmpty(t, result.Trades)
	first := result.Trades[0]
	assert.Equal(t, "buy", first.Action)
	assert.Equal(t, day("2024-01-01"), first.Date)
	assert.Equal(t, 1.00, first.Price, "subscription executes at NAV")

	// Shares settle on the second trading day after the buy and are
	// redeemed at the traded price on day 3.
	var firstSell *Trade
	for i := range result.Trades {
		if result.Trades[i].Action == "sell" {
			firstSell = &result.Trades[i]
			break
		}
	}
	require.NotNil(t, firstSell)
	assert.Equal(t, day("2024-01-03"), firstSell.Date)
	assert.Equal(t, 1.10, firstSell.Price)

	assert.Positive(t, result.TotalReturn, "a persistent premium should profit after fees")
	require.Len(t, result.EquityCurve, 5)
}

func TestRunRespectsDailyLimit(t *testing.T) {
	market := &stubMarket{bars: map[string][]Bar{
		"F1": flatBars("F1", week, 1.10, 1.00, 10_000_000),
	}}
	// Hard cap of 100 CNY per day for the whole window.
	capped := map[string]float64{}
	for _, d := range week {
		capped[d] = 100
	}
	limits := &stubLimits{byTicker: map[string]map[string]float64{"F1": capped}}

	cfg := DefaultConfig()
	cfg.Tickers = []string{"F1"}
	cfg.StartDate, cfg.EndDate = day(week[0]), day(week[len(week)-1])

	result, err := testEngine(market, limits).Run(context.Background(), cfg)
	require.NoError(t, err)

	for _, tr := range result.Trades {
		if tr.Action == "buy" {
			assert.LessOrEqual(t, tr.Amount, 100.0, "buy capped by the projected daily limit")
		}
	}
}

func TestRunSuspensionBlocksBuys(t *testing.T) {
	market := &stubMarket{bars: map[string][]Bar{
		"F1": flatBars("F1", week, 1.10, 1.00, 10_000_000),
	}}
	suspended := map[string]float64{}
	for _, d := range week {
		suspended[d] = 0 // full suspension
	}
	limits := &stubLimits{byTicker: map[string]map[string]float64{"F1": suspended}}

	cfg := DefaultConfig()
	cfg.Tickers = []string{"F1"}
	cfg.StartDate, cfg.EndDate = day(week[0]), day(week[len(week)-1])

	result, err := testEngine(market, limits).Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Empty(t, result.Trades)
	assert.InDelta(t, cfg.InitialCash, result.EquityCurve[len(result.EquityCurve)-1].TotalAssets, 1e-9)
}

func TestRunBelowThresholdDoesNotBuy(t *testing.T) {
	// 1% premium, threshold 2%.
	market := &stubMarket{bars: map[string][]Bar{
		"F1": flatBars("F1", week, 1.01, 1.00, 10_000_000),
	}}
	limits := &stubLimits{byTicker: map[string]map[string]float64{}}

	cfg := DefaultConfig()
	cfg.Tickers = []string{"F1"}
	cfg.StartDate, cfg.EndDate = day(week[0]), day(week[len(week)-1])

	result, err := testEngine(market, limits).Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Empty(t, result.Trades)
}

func TestRunPrefersHigherPremium(t *testing.T) {
	market := &stubMarket{bars: map[string][]Bar{
		"LOW":  flatBars("LOW", week, 1.05, 1.00, 10_000_000),
		"HIGH": flatBars("HIGH", week, 1.20, 1.00, 10_000_000),
	}}
	limits := &stubLimits{byTicker: map[string]map[string]float64{}}

	cfg := DefaultConfig()
	cfg.Tickers = []string{"LOW", "HIGH"}
	cfg.StartDate, cfg.EndDate = day(week[0]), day(week[len(week)-1])

	result, err := testEngine(market, limits).Run(context.Background(), cfg)
	require.NoError(t, err)

	require.NotEmpty(t, result.Trades)
	assert.Equal(t, "HIGH", result.Trades[0].Ticker, "greedy buy starts at the highest premium")
}

func TestRunNoTickers(t *testing.T) {
	_, err := testEngine(&stubMarket{}, &stubLimits{}).Run(context.Background(), DefaultConfig())
	assert.Error(t, err)
}

func TestAccountT2Settlement(t *testing.T) {
	a := NewAccount(1000)

	a.AdvanceDate(day("2024-01-01"))
	shares := a.Buy("F1", 500, 1.0, 5, day("2024-01-03"))
	assert.InDelta(t, 495.0, shares, 1e-9)
	assert.InDelta(t, 500.0, a.Cash, 1e-9)
	assert.Zero(t, a.AvailableShares("F1"), "unsettled shares cannot be sold")

	a.AdvanceDate(day("2024-01-02"))
	assert.Zero(t, a.AvailableShares("F1"))

	a.AdvanceDate(day("2024-01-03"))
	assert.InDelta(t, 495.0, a.AvailableShares("F1"), 1e-9)

	// Pending shares still count toward total value.
	prices := map[string]float64{"F1": 1.0}
	assert.InDelta(t, 995.0, a.TotalValue(prices), 1e-9)
}
