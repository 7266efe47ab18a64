package backtest

import "time"

// pendingSettlement is a subscription waiting for T+2 settlement.
type pendingSettlement struct {
	settleDate time.Time
	ticker     string
	shares     float64
}

// Account tracks cash, settled positions and pending T+2 settlements.
// Subscribed shares cannot be redeemed until they settle; sale
// proceeds are available the same day.
type Account struct {
	Cash      float64
	positions map[string]float64
	pending   []pendingSettlement
	today     time.Time
}

func NewAccount(cash float64) *Account {
	return &Account{Cash: cash, positions: make(map[string]float64)}
}

// AdvanceDate moves the simulation to a new day and settles every
// matured subscription.
func (a *Account) AdvanceDate(date time.Time) {
	a.today = date

	var still []pendingSettlement
	for _, p := range a.pending {
		if !p.settleDate.After(date) {
			a.positions[p.ticker] += p.shares
			continue
		}
		still = append(still, p)
	}
	a.pending = still
}

// AvailableShares returns the settled share count for one fund.
func (a *Account) AvailableShares(ticker string) float64 {
	return a.positions[ticker]
}

// Buy subscribes for amount CNY at the given NAV. The net amount
// converts to shares that settle on the T+2 trading day.
func (a *Account) Buy(ticker string, amount, nav, fee float64, settleDate time.Time) float64 {
	net := amount - fee
	if net <= 0 || nav <= 0 {
		return 0
	}
	shares := net / nav

	a.Cash -= amount
	a.pending = append(a.pending, pendingSettlement{
		settleDate: settleDate,
		ticker:     ticker,
		shares:     shares,
	})
	return shares
}

// Sell redeems settled shares at the given price. Proceeds net of
// commission are credited immediately.
func (a *Account) Sell(ticker string, shares, price, commissionRate float64) float64 {
	held := a.positions[ticker]
	if shares > held {
		shares = held
	}
	if shares <= 0 {
		return 0
	}

	gross := shares * price
	net := gross * (1 - commissionRate)

	a.positions[ticker] = held - shares
	a.Cash += net
	return net
}

// PositionsValue prices all settled and pending shares.
func (a *Account) PositionsValue(prices map[string]float64) float64 {
	total := 0.0
	for ticker, shares := range a.positions {
		total += shares * prices[ticker]
	}
	for _, p := range a.pending {
		total += p.shares * prices[p.ticker]
	}
	return total
}

// TotalValue is cash plus all position value.
func (a *Account) TotalValue(prices map[string]float64) float64 {
	return a.Cash + a.PositionsValue(prices)
}
