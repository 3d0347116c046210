package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Enums
// -----------------------------------------------------------------------------

// Side identifies which side of an event contract is traded.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// Direction is the trade direction of an order.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionBuy || d == DirectionSell
}

// OrderState is a state in the order lifecycle.
type OrderState string

const (
	OrderCreated         OrderState = "created"
	OrderSubmitted       OrderState = "submitted"
	OrderAcknowledged    OrderState = "acknowledged"
	OrderPartiallyFilled OrderState = "partially_filled"
	OrderFilled          OrderState = "filled"
	OrderRejected        OrderState = "rejected"
	OrderCanceled        OrderState = "canceled"
)

// Terminal reports whether the state ends the order's lifecycle.
func (s OrderState) Terminal() bool {
	return s == OrderFilled || s == OrderRejected || s == OrderCanceled
}

// RequestReason records why an OrderRequest was created.
type RequestReason string

const (
	ReasonEntry    RequestReason = "entry"
	ReasonStopLoss RequestReason = "stop_loss"
)

// -----------------------------------------------------------------------------
// Market data
// -----------------------------------------------------------------------------

// Quote holds the current top-of-book prices for one event contract.
// Prices are integer cents; a missing level is 0.
type Quote struct {
	EventID   string
	YesBid    int
	YesAsk    int
	NoBid     int
	NoAsk     int
	FetchedAt time.Time
}

// Ask returns the execution price in cents for buying the given side.
func (q *Quote) Ask(side Side) int {
	if side == SideYes {
		return q.YesAsk
	}
	return q.NoAsk
}

// Bid returns the price in cents for selling the given side.
func (q *Quote) Bid(side Side) int {
	if side == SideYes {
		return q.YesBid
	}
	return q.NoBid
}

// Implied returns the market-implied probability of the given side paying
// out, derived from the two ask prices. Values outside (0,1) are a
// data-quality problem, reported as an error rather than a probability.
func (q *Quote) Implied(side Side) (float64, error) {
	if q.YesAsk <= 0 || q.NoAsk <= 0 {
		return 0, fmt.Errorf("quote %s: non-positive ask (yes=%d no=%d)", q.EventID, q.YesAsk, q.NoAsk)
	}
	pYes := float64(q.YesAsk) / float64(q.YesAsk+q.NoAsk)
	if pYes <= 0 || pYes >= 1 {
		return 0, fmt.Errorf("quote %s: implied probability %.4f outside (0,1)", q.EventID, pYes)
	}
	if side == SideYes {
		return pYes, nil
	}
	return 1 - pYes, nil
}

// -----------------------------------------------------------------------------
// Signals and decisions
// -----------------------------------------------------------------------------

// Signal is one strategy's probability estimate for one contract side.
// Immutable once produced.
type Signal struct {
	EventID              string
	Side                 Side
	EstimatedProbability float64 // strategy's estimate, exclusive (0,1)
	Confidence           float64 // weight in [0,1]; 0 contributes nothing
	SourceStrategy       string
	ClusterID            string // optional correlation cluster tag
	GeneratedAt          time.Time
	ExpiresAt            time.Time
}

// Validate checks the signal's invariants.
func (s *Signal) Validate() error {
	if s.EventID == "" {
		return fmt.Errorf("signal: empty event id")
	}
	if !s.Side.Valid() {
		return fmt.Errorf("signal %s: invalid side %q", s.EventID, s.Side)
	}
	if s.EstimatedProbability <= 0 || s.EstimatedProbability >= 1 {
		return fmt.Errorf("signal %s: probability %.4f outside (0,1)", s.EventID, s.EstimatedProbability)
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("signal %s: confidence %.4f outside [0,1]", s.EventID, s.Confidence)
	}
	if s.SourceStrategy == "" {
		return fmt.Errorf("signal %s: empty source strategy", s.EventID)
	}
	if !s.ExpiresAt.After(s.GeneratedAt) {
		return fmt.Errorf("signal %s: expires_at not after generated_at", s.EventID)
	}
	return nil
}

// Expired reports whether the signal is past its expiry at the given time.
func (s *Signal) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Decision is the aggregator's fused view of one contract side.
type Decision struct {
	EventID            string
	Side               Side
	BlendedProbability float64
	Supporting         []Signal
	ClusterID          string
	LowConfidence      bool
}

// -----------------------------------------------------------------------------
// Orders
// -----------------------------------------------------------------------------

// OrderRequest is an immutable sizing decision handed to the order lifecycle
// manager. A changed quantity requires a new request.
type OrderRequest struct {
	ID          uuid.UUID
	EventID     string
	Side        Side
	Direction   Direction
	Quantity    int // contracts
	LimitPrice  int // cents
	MaxSlippage int // cents of adverse movement tolerated at submit time
	ClusterID   string
	Reason      RequestReason
	CreatedAt   time.Time
}

// Notional returns the reserved dollar notional (limit price x quantity).
func (r *OrderRequest) Notional() decimal.Decimal {
	return CentsToDollars(r.LimitPrice).Mul(decimal.NewFromInt(int64(r.Quantity)))
}

// Order is the exchange-side lifecycle record bound 1:1 to an OrderRequest.
type Order struct {
	RequestID      uuid.UUID
	ExchangeID     string
	EventID        string
	Side           Side
	Direction      Direction
	Quantity       int
	LimitPrice     int // cents
	FilledQuantity int
	AvgFillPrice   decimal.Decimal // dollars, zero until first fill
	State          OrderState
	Reason         RequestReason
	Attempts       int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// OrderStatus is the exchange's authoritative view of one order.
type OrderStatus struct {
	ExchangeID     string
	State          OrderState // acknowledged, partially_filled, filled, canceled, rejected
	FilledQuantity int
	AvgFillPrice   decimal.Decimal // dollars, zero when unknown
}

// Fill is one confirmed execution against an order.
type Fill struct {
	OrderID   string // exchange order id
	RequestID uuid.UUID
	EventID   string
	Side      Side
	Direction Direction
	Quantity  int
	Price     decimal.Decimal // dollars per contract
	FilledAt  time.Time
}

// -----------------------------------------------------------------------------
// Positions and bankroll
// -----------------------------------------------------------------------------

// PositionKey identifies a position: one holding per (event, side).
type PositionKey struct {
	EventID string
	Side    Side
}

// Position is an aggregated holding, mutated only by confirmed fills.
type Position struct {
	EventID       string
	Side          Side
	Quantity      int
	AvgEntryPrice decimal.Decimal // dollars
	RealizedPnL   decimal.Decimal // dollars, settled on close
	ClusterID     string
	Mark          int // last observed bid in cents, 0 until first quote
	OpenedAt      time.Time
	UpdatedAt     time.Time
}

// Key returns the position's map key.
func (p *Position) Key() PositionKey {
	return PositionKey{EventID: p.EventID, Side: p.Side}
}

// UnrealizedPnL values the position against its mark. Zero when no mark has
// been observed yet.
func (p *Position) UnrealizedPnL() decimal.Decimal {
	if p.Mark <= 0 || p.Quantity == 0 {
		return decimal.Zero
	}
	return CentsToDollars(p.Mark).Sub(p.AvgEntryPrice).Mul(decimal.NewFromInt(int64(p.Quantity)))
}

// ExchangePosition is the exchange's view of a holding, as reported by
// the portfolio endpoint. It carries no cost basis.
type ExchangePosition struct {
	EventID  string
	Side     Side
	Quantity int
}

// ClosedTrade is the settled record of a position that crossed zero.
type ClosedTrade struct {
	EventID       string
	Side          Side
	Quantity      int
	AvgEntryPrice decimal.Decimal
	AvgExitPrice  decimal.Decimal
	RealizedPnL   decimal.Decimal
	OpenedAt      time.Time
	ClosedAt      time.Time
}

// Bankroll is the capital ledger. Total changes only when PnL is realized;
// Available and Committed otherwise move in paired transfers so that
// Available + Committed == Total holds after every mutation.
type Bankroll struct {
	Available decimal.Decimal
	Committed decimal.Decimal
	Total     decimal.Decimal
}

// Balanced reports whether the bankroll identity holds.
func (b Bankroll) Balanced() bool {
	return b.Available.Add(b.Committed).Equal(b.Total)
}

// -----------------------------------------------------------------------------
// Conversions
// -----------------------------------------------------------------------------

var centsPerDollar = decimal.NewFromInt(100)

// CentsToDollars converts an integer cent price to decimal dollars.
func CentsToDollars(cents int) decimal.Decimal {
	return decimal.NewFromInt(int64(cents)).Div(centsPerDollar)
}
