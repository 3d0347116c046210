package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/rickgao/kalshi-trader/internal/model"
)

// ReconciliationError reports exchange positions that have no local cost
// basis. Sizing against them would corrupt the ledger, so trading stays
// disabled until an operator resolves them and reconciles again.
type ReconciliationError struct {
	Unknown []model.ExchangePosition
}

func (e *ReconciliationError) Error() string {
	ids := make([]string, len(e.Unknown))
	for i, p := range e.Unknown {
		ids[i] = fmt.Sprintf("%s/%s", p.EventID, p.Side)
	}
	return fmt.Sprintf("%d exchange positions with no local basis: %s",
		len(e.Unknown), strings.Join(ids, ", "))
}

// Reconcile aligns the local ledger with the exchange. The exchange's
// positions and balance win; local state supplies cost basis. Positions
// restored from the store seed the first pass. Reconcile refuses to run
// while orders are in flight because their fills would race the reset.
func (e *Engine) Reconcile(ctx context.Context) error {
	e.recMu.Lock()
	defer e.recMu.Unlock()

	if n := e.orders.Inflight(); n > 0 {
		return fmt.Errorf("%w: %d unfinished", ErrOrdersInflight, n)
	}

	positions, err := e.exchange.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("fetch exchange positions: %w", err)
	}
	balance, err := e.exchange.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("fetch exchange balance: %w", err)
	}

	local := e.risk.Positions()
	if len(local) == 0 && len(e.restored) > 0 {
		local = e.restored
	}

	unknown := e.risk.Reconcile(local, positions, balance)
	if len(unknown) > 0 {
		e.reconciled.Store(false)
		e.logger.Error("reconciliation found unknown exchange positions",
			"count", len(unknown),
		)
		return &ReconciliationError{Unknown: unknown}
	}

	e.restored = nil
	e.reconciled.Store(true)
	e.logger.Info("positions reconciled",
		"positions", len(e.risk.Positions()),
		"balance", balance,
	)
	return nil
}
