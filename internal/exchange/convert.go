package exchange

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/kalshi-trader/internal/model"
)

// quoteFromMarket extracts the top-of-book quote from a market payload.
func quoteFromMarket(m *apiMarket, fetchedAt time.Time) *model.Quote {
	return &model.Quote{
		EventID:   m.Ticker,
		YesBid:    m.YesBid,
		YesAsk:    m.YesAsk,
		NoBid:     m.NoBid,
		NoAsk:     m.NoAsk,
		FetchedAt: fetchedAt,
	}
}

// statusFromOrder maps a Kalshi order payload onto the lifecycle status
// view consumed by the order manager.
func statusFromOrder(o *apiOrder) (*model.OrderStatus, error) {
	filled := o.Count - o.RemainingCount
	if filled < 0 {
		return nil, fmt.Errorf("order %s: remaining %d exceeds count %d", o.OrderID, o.RemainingCount, o.Count)
	}

	state, err := stateFromStatus(o.Status, filled)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", o.OrderID, err)
	}

	return &model.OrderStatus{
		ExchangeID:     o.OrderID,
		State:          state,
		FilledQuantity: filled,
		AvgFillPrice:   avgFillPrice(o, filled),
	}, nil
}

func stateFromStatus(status string, filled int) (model.OrderState, error) {
	switch status {
	case orderStatusResting, orderStatusPending:
		if filled > 0 {
			return model.OrderPartiallyFilled, nil
		}
		return model.OrderAcknowledged, nil
	case orderStatusExecuted:
		return model.OrderFilled, nil
	case orderStatusCanceled:
		return model.OrderCanceled, nil
	default:
		return "", fmt.Errorf("unknown status %q", status)
	}
}

// avgFillPrice derives the average price paid per contract in dollars.
// Taker fills carry an exact cost; maker fills settle at the limit price.
func avgFillPrice(o *apiOrder, filled int) decimal.Decimal {
	if filled <= 0 {
		return decimal.Zero
	}
	if o.TakerFillCount >= filled && o.TakerFillCount > 0 {
		return model.CentsToDollars(o.TakerFillCost).Div(decimal.NewFromInt(int64(o.TakerFillCount)))
	}
	return model.CentsToDollars(limitPriceCents(o))
}

// limitPriceCents returns the order's limit price in cents for its side.
func limitPriceCents(o *apiOrder) int {
	if o.Side == string(model.SideYes) {
		return o.YesPrice
	}
	return o.NoPrice
}

// positionsFromAPI converts signed exchange positions into per-side
// holdings. Flat positions are dropped.
func positionsFromAPI(in []apiPosition) []model.ExchangePosition {
	out := make([]model.ExchangePosition, 0, len(in))
	for _, p := range in {
		switch {
		case p.Position > 0:
			out = append(out, model.ExchangePosition{
				EventID:  p.Ticker,
				Side:     model.SideYes,
				Quantity: p.Position,
			})
		case p.Position < 0:
			out = append(out, model.ExchangePosition{
				EventID:  p.Ticker,
				Side:     model.SideNo,
				Quantity: -p.Position,
			})
		}
	}
	return out
}
