// Package perf computes trading performance metrics over the history of
// closed trades plus the live book. It is a read path only and never
// mutates trading state.
package perf

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/kalshi-trader/internal/model"
)

// Tracker accumulates closed trades and derives metrics on demand.
type Tracker struct {
	mu     sync.Mutex
	trades []model.ClosedTrade
	logger *slog.Logger
}

// NewTracker creates an empty tracker.
func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{logger: logger.With("component", "perf")}
}

// Seed replaces the trade history with persisted trades, oldest first.
func (t *Tracker) Seed(trades []model.ClosedTrade) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trades = append([]model.ClosedTrade(nil), trades...)
	t.logger.Info("performance history seeded", "trades", len(t.trades))
}

// Record appends one settled trade.
func (t *Tracker) Record(trade model.ClosedTrade) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trades = append(t.trades, trade)
}

// TradeCount returns the number of recorded trades.
func (t *Tracker) TradeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.trades)
}

// Report is a point-in-time view of trading performance. TotalReturn is
// realized PnL over the gross entry cost of all closed trades; Sharpe is
// the mean over standard deviation of per-trade returns; MaxDrawdown is
// the deepest peak-to-trough fall of the realized equity curve, in
// dollars.
type Report struct {
	TradeCount    int             `json:"trade_count"`
	Wins          int             `json:"wins"`
	Losses        int             `json:"losses"`
	WinRate       float64         `json:"win_rate"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	Equity        decimal.Decimal `json:"equity"`
	TotalReturn   float64         `json:"total_return"`
	Sharpe        float64         `json:"sharpe"`
	MaxDrawdown   decimal.Decimal `json:"max_drawdown"`
	AvgWin        decimal.Decimal `json:"avg_win"`
	AvgLoss       decimal.Decimal `json:"avg_loss"`
	BestTrade     decimal.Decimal `json:"best_trade"`
	WorstTrade    decimal.Decimal `json:"worst_trade"`
	GeneratedAt   time.Time       `json:"generated_at"`
}

// Report computes metrics over the recorded trades and the live book.
func (t *Tracker) Report(bankroll model.Bankroll, unrealized decimal.Decimal) Report {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := Report{
		TradeCount:    len(t.trades),
		RealizedPnL:   decimal.Zero,
		UnrealizedPnL: unrealized,
		Equity:        bankroll.Total.Add(unrealized),
		MaxDrawdown:   decimal.Zero,
		AvgWin:        decimal.Zero,
		AvgLoss:       decimal.Zero,
		BestTrade:     decimal.Zero,
		WorstTrade:    decimal.Zero,
		GeneratedAt:   time.Now().UTC(),
	}
	if len(t.trades) == 0 {
		return r
	}

	var (
		winSum    = decimal.Zero
		lossSum   = decimal.Zero
		grossCost = decimal.Zero
		cum       = decimal.Zero
		peak      = decimal.Zero
		returns   []float64
	)

	for i, trade := range t.trades {
		pnl := trade.RealizedPnL
		r.RealizedPnL = r.RealizedPnL.Add(pnl)

		switch {
		case pnl.IsPositive():
			r.Wins++
			winSum = winSum.Add(pnl)
		case pnl.IsNegative():
			r.Losses++
			lossSum = lossSum.Add(pnl)
		}

		if i == 0 || pnl.GreaterThan(r.BestTrade) {
			r.BestTrade = pnl
		}
		if i == 0 || pnl.LessThan(r.WorstTrade) {
			r.WorstTrade = pnl
		}

		cost := trade.AvgEntryPrice.Mul(decimal.NewFromInt(int64(trade.Quantity)))
		if cost.IsPositive() {
			grossCost = grossCost.Add(cost)
			returns = append(returns, pnl.Div(cost).InexactFloat64())
		}

		// Realized equity curve: deepest fall from a running peak.
		cum = cum.Add(pnl)
		if cum.GreaterThan(peak) {
			peak = cum
		}
		if dd := peak.Sub(cum); dd.GreaterThan(r.MaxDrawdown) {
			r.MaxDrawdown = dd
		}
	}

	r.WinRate = float64(r.Wins) / float64(r.TradeCount)
	if r.Wins > 0 {
		r.AvgWin = winSum.Div(decimal.NewFromInt(int64(r.Wins)))
	}
	if r.Losses > 0 {
		r.AvgLoss = lossSum.Div(decimal.NewFromInt(int64(r.Losses)))
	}
	if grossCost.IsPositive() {
		r.TotalReturn = r.RealizedPnL.Div(grossCost).InexactFloat64()
	}
	r.Sharpe = sharpe(returns)
	return r
}

// sharpe is the mean over population standard deviation of per-trade
// returns. Zero when there are fewer than two returns or no variance.
func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	var sum float64
	for _, x := range returns {
		sum += x
	}
	mean := sum / float64(len(returns))

	var sq float64
	for _, x := range returns {
		d := x - mean
		sq += d * d
	}
	stdev := math.Sqrt(sq / float64(len(returns)))
	if stdev == 0 {
		return 0
	}
	return mean / stdev
}
