package exchange

import (
	"context"
	"fmt"

	"github.com/rickgao/kalshi-trader/internal/model"
)

// PlaceOrder submits a limit order for the given request. The request ID
// is sent as the client order ID so a replay after a lost response is
// deduplicated server-side. Single-shot: the order lifecycle manager owns
// the retry policy for placement.
func (c *Client) PlaceOrder(ctx context.Context, req *model.OrderRequest) (*model.OrderStatus, error) {
	body := createOrderRequest{
		Ticker:        req.EventID,
		ClientOrderID: req.ID.String(),
		Side:          string(req.Side),
		Action:        string(req.Direction),
		Count:         req.Quantity,
		Type:          "limit",
	}
	switch req.Side {
	case model.SideYes:
		body.YesPrice = req.LimitPrice
	case model.SideNo:
		body.NoPrice = req.LimitPrice
	}

	var resp orderResponse
	if err := c.post(ctx, "/portfolio/orders", body, &resp); err != nil {
		return nil, fmt.Errorf("place order %s: %w", req.ID, err)
	}

	status, err := statusFromOrder(&resp.Order)
	if err != nil {
		return nil, fmt.Errorf("place order %s: %w", req.ID, err)
	}
	return status, nil
}

// GetOrder fetches the exchange's current view of an order.
func (c *Client) GetOrder(ctx context.Context, exchangeID string) (*model.OrderStatus, error) {
	var resp orderResponse
	if err := c.get(ctx, "/portfolio/orders/"+exchangeID, nil, &resp); err != nil {
		return nil, fmt.Errorf("get order %s: %w", exchangeID, err)
	}

	status, err := statusFromOrder(&resp.Order)
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", exchangeID, err)
	}
	return status, nil
}

// CancelOrder asks the exchange to cancel the unfilled remainder of an
// order. Best-effort: a fill can land before the cancel.
func (c *Client) CancelOrder(ctx context.Context, exchangeID string) error {
	if err := c.del(ctx, "/portfolio/orders/"+exchangeID); err != nil {
		return fmt.Errorf("cancel order %s: %w", exchangeID, err)
	}
	return nil
}
