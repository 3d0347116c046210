package store

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rickgao/kalshi-trader/internal/model"
)

// SnapshotPositions replaces the persisted open positions with the given
// set, atomically. Called at the end of each cycle so a restart can
// restore cost bases.
func (s *Store) SnapshotPositions(ctx context.Context, positions []model.Position) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM positions`); err != nil {
		return fmt.Errorf("clear positions: %w", err)
	}
	for _, p := range positions {
		if _, err := tx.Exec(ctx, `
			INSERT INTO positions
				(event_id, side, quantity, avg_entry_price, realized_pnl, cluster_id, opened_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, p.EventID, string(p.Side), p.Quantity, p.AvgEntryPrice.String(),
			p.RealizedPnL.String(), p.ClusterID, p.OpenedAt, p.UpdatedAt); err != nil {
			return fmt.Errorf("insert position %s %s: %w", p.EventID, p.Side, err)
		}
	}
	return tx.Commit(ctx)
}

// LoadPositions returns the persisted open positions.
func (s *Store) LoadPositions(ctx context.Context) ([]model.Position, error) {
	rows, err := s.db.Query(ctx, `
		SELECT event_id, side, quantity, avg_entry_price::text, realized_pnl::text,
		       cluster_id, opened_at, updated_at
		FROM positions
		ORDER BY event_id, side
	`)
	if err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		var (
			p        model.Position
			side     string
			avg, pnl string
		)
		if err := rows.Scan(&p.EventID, &side, &p.Quantity, &avg, &pnl,
			&p.ClusterID, &p.OpenedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		p.Side = model.Side(side)
		if p.AvgEntryPrice, err = decimal.NewFromString(avg); err != nil {
			return nil, fmt.Errorf("parse avg entry price %q: %w", avg, err)
		}
		if p.RealizedPnL, err = decimal.NewFromString(pnl); err != nil {
			return nil, fmt.Errorf("parse realized pnl %q: %w", pnl, err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}
