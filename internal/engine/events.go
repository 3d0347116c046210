package engine

import (
	"github.com/shopspring/decimal"

	"github.com/rickgao/kalshi-trader/internal/model"
)

// Event payloads for the control-plane stream.
type orderEvent struct {
	RequestID      string `json:"request_id"`
	ExchangeID     string `json:"exchange_id,omitempty"`
	EventID        string `json:"event_id"`
	Side           string `json:"side"`
	Direction      string `json:"direction"`
	Quantity       int    `json:"quantity"`
	FilledQuantity int    `json:"filled_quantity"`
	LimitPrice     int    `json:"limit_price"`
	State          string `json:"state"`
	Reason         string `json:"reason"`
}

type tradeEvent struct {
	EventID       string          `json:"event_id"`
	Side          string          `json:"side"`
	Quantity      int             `json:"quantity"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	AvgExitPrice  decimal.Decimal `json:"avg_exit_price"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
}

type stopLossEvent struct {
	EventID    string `json:"event_id"`
	Side       string `json:"side"`
	Quantity   int    `json:"quantity"`
	LimitPrice int    `json:"limit_price"`
}

// OrderUpdated receives every order state change from the order manager.
// Updates stream to the control plane; terminal fills and rejections also
// notify.
func (e *Engine) OrderUpdated(o model.Order) {
	e.publish(eventOrderUpdated, orderEvent{
		RequestID:      o.RequestID.String(),
		ExchangeID:     o.ExchangeID,
		EventID:        o.EventID,
		Side:           string(o.Side),
		Direction:      string(o.Direction),
		Quantity:       o.Quantity,
		FilledQuantity: o.FilledQuantity,
		LimitPrice:     o.LimitPrice,
		State:          string(o.State),
		Reason:         string(o.Reason),
	})

	if e.notifier == nil {
		return
	}
	switch o.State {
	case model.OrderFilled:
		e.notifier.OrderFilled(e.baseCtx(), o)
	case model.OrderRejected:
		e.notifier.OrderRejected(e.baseCtx(), o)
	}
}

// TradeClosed receives realized trades from the order manager and fans
// them out: performance history, persistence, event stream, notification.
func (e *Engine) TradeClosed(t model.ClosedTrade) {
	if e.perf != nil {
		e.perf.Record(t)
	}
	if e.store != nil {
		if err := e.store.SaveClosedTrade(e.baseCtx(), t); err != nil {
			e.logger.Warn("closed trade not persisted",
				"event", t.EventID,
				"error", err,
			)
		}
	}

	e.publish(eventTradeClosed, tradeEvent{
		EventID:       t.EventID,
		Side:          string(t.Side),
		Quantity:      t.Quantity,
		AvgEntryPrice: t.AvgEntryPrice,
		AvgExitPrice:  t.AvgExitPrice,
		RealizedPnL:   t.RealizedPnL,
	})

	if e.notifier != nil {
		e.notifier.TradeClosed(e.baseCtx(), t)
	}
}
