package exchange

// Status reports whether the exchange is open for business. Trading
// halts gate the decision cycle.
type Status struct {
	ExchangeActive bool
	TradingActive  bool
}

// -----------------------------------------------------------------------------
// Wire types (Kalshi trade API v2)
// -----------------------------------------------------------------------------

type marketResponse struct {
	Market apiMarket `json:"market"`
}

type apiMarket struct {
	Ticker       string `json:"ticker"`
	EventTicker  string `json:"event_ticker"`
	Status       string `json:"status"`
	YesBid       int    `json:"yes_bid"`
	YesAsk       int    `json:"yes_ask"`
	NoBid        int    `json:"no_bid"`
	NoAsk        int    `json:"no_ask"`
	LastPrice    int    `json:"last_price"`
	Volume       int    `json:"volume"`
	OpenInterest int    `json:"open_interest"`
	CloseTime    string `json:"close_time"`
}

type createOrderRequest struct {
	Ticker        string `json:"ticker"`
	ClientOrderID string `json:"client_order_id"`
	Side          string `json:"side"`
	Action        string `json:"action"`
	Count         int    `json:"count"`
	Type          string `json:"type"`
	YesPrice      int    `json:"yes_price,omitempty"`
	NoPrice       int    `json:"no_price,omitempty"`
}

type orderResponse struct {
	Order apiOrder `json:"order"`
}

type apiOrder struct {
	OrderID        string `json:"order_id"`
	ClientOrderID  string `json:"client_order_id"`
	Ticker         string `json:"ticker"`
	Status         string `json:"status"`
	Action         string `json:"action"`
	Side           string `json:"side"`
	Count          int    `json:"count"`
	RemainingCount int    `json:"remaining_count"`
	YesPrice       int    `json:"yes_price"`
	NoPrice        int    `json:"no_price"`
	TakerFillCount int    `json:"taker_fill_count"`
	TakerFillCost  int    `json:"taker_fill_cost"`
	CreatedTime    string `json:"created_time"`
}

// Kalshi order status strings.
const (
	orderStatusResting  = "resting"
	orderStatusPending  = "pending"
	orderStatusExecuted = "executed"
	orderStatusCanceled = "canceled"
)

type balanceResponse struct {
	Balance int64 `json:"balance"` // cents
}

type positionsResponse struct {
	MarketPositions []apiPosition `json:"market_positions"`
	Cursor          string        `json:"cursor"`
}

type apiPosition struct {
	Ticker         string `json:"ticker"`
	Position       int    `json:"position"` // signed contracts: >0 yes, <0 no
	MarketExposure int    `json:"market_exposure"`
	RealizedPnL    int    `json:"realized_pnl"`
	TotalTraded    int    `json:"total_traded"`
}

type exchangeStatusResponse struct {
	ExchangeActive bool `json:"exchange_active"`
	TradingActive  bool `json:"trading_active"`
}
