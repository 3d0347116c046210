package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/rickgao/kalshi-trader/internal/model"
)

// GetMarket fetches the current top-of-book quote for a market ticker.
func (c *Client) GetMarket(ctx context.Context, ticker string) (*model.Quote, error) {
	if ticker == "" {
		return nil, fmt.Errorf("ticker is required")
	}

	var resp marketResponse
	if err := c.get(ctx, "/markets/"+ticker, nil, &resp); err != nil {
		return nil, fmt.Errorf("get market %s: %w", ticker, err)
	}

	return quoteFromMarket(&resp.Market, time.Now().UTC()), nil
}

// GetExchangeStatus reports whether the exchange is open and accepting
// trades.
func (c *Client) GetExchangeStatus(ctx context.Context) (*Status, error) {
	var resp exchangeStatusResponse
	if err := c.get(ctx, "/exchange/status", nil, &resp); err != nil {
		return nil, fmt.Errorf("get exchange status: %w", err)
	}

	return &Status{
		ExchangeActive: resp.ExchangeActive,
		TradingActive:  resp.TradingActive,
	}, nil
}
