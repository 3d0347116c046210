package store

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rickgao/kalshi-trader/internal/model"
)

// SaveClosedTrade appends one settled trade to the history.
func (s *Store) SaveClosedTrade(ctx context.Context, trade model.ClosedTrade) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO closed_trades
			(event_id, side, quantity, avg_entry_price, avg_exit_price, realized_pnl, opened_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, trade.EventID, string(trade.Side), trade.Quantity, trade.AvgEntryPrice.String(),
		trade.AvgExitPrice.String(), trade.RealizedPnL.String(), trade.OpenedAt, trade.ClosedAt)
	if err != nil {
		return fmt.Errorf("save closed trade %s %s: %w", trade.EventID, trade.Side, err)
	}
	return nil
}

const closedTradeColumns = `event_id, side, quantity, avg_entry_price::text,
	avg_exit_price::text, realized_pnl::text, opened_at, closed_at`

// LoadClosedTrades returns closed trades oldest first. A positive limit
// restricts the result to the most recent trades, still oldest first.
func (s *Store) LoadClosedTrades(ctx context.Context, limit int) ([]model.ClosedTrade, error) {
	query := `SELECT ` + closedTradeColumns + ` FROM closed_trades ORDER BY closed_at, id`
	args := []any{}
	if limit > 0 {
		query = `SELECT ` + closedTradeColumns + ` FROM (
			SELECT id, ` + closedTradeColumns + ` FROM closed_trades
			ORDER BY closed_at DESC, id DESC LIMIT $1
		) recent ORDER BY closed_at, id`
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load closed trades: %w", err)
	}
	defer rows.Close()

	var trades []model.ClosedTrade
	for rows.Next() {
		var (
			t                model.ClosedTrade
			side             string
			entry, exit, pnl string
		)
		if err := rows.Scan(&t.EventID, &side, &t.Quantity, &entry, &exit, &pnl,
			&t.OpenedAt, &t.ClosedAt); err != nil {
			return nil, fmt.Errorf("scan closed trade: %w", err)
		}
		t.Side = model.Side(side)
		if t.AvgEntryPrice, err = decimal.NewFromString(entry); err != nil {
			return nil, fmt.Errorf("parse avg entry price %q: %w", entry, err)
		}
		if t.AvgExitPrice, err = decimal.NewFromString(exit); err != nil {
			return nil, fmt.Errorf("parse avg exit price %q: %w", exit, err)
		}
		if t.RealizedPnL, err = decimal.NewFromString(pnl); err != nil {
			return nil, fmt.Errorf("parse realized pnl %q: %w", pnl, err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
