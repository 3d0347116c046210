package exchange

import (
	"context"
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/rickgao/kalshi-trader/internal/model"
)

// GetBalance returns the account's available balance in dollars.
func (c *Client) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	var resp balanceResponse
	if err := c.get(ctx, "/portfolio/balance", nil, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}
	return model.CentsToDollars(int(resp.Balance)), nil
}

// GetPositions fetches all non-flat market positions by paginating
// through results.
func (c *Client) GetPositions(ctx context.Context) ([]model.ExchangePosition, error) {
	var all []model.ExchangePosition
	cursor := ""

	for {
		query := url.Values{}
		query.Set("limit", "200")
		if cursor != "" {
			query.Set("cursor", cursor)
		}

		var resp positionsResponse
		if err := c.get(ctx, "/portfolio/positions", query, &resp); err != nil {
			return nil, fmt.Errorf("get positions: %w", err)
		}

		all = append(all, positionsFromAPI(resp.MarketPositions)...)

		if resp.Cursor == "" {
			break
		}
		cursor = resp.Cursor
	}

	return all, nil
}
