package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rickgao/kalshi-trader/internal/exchange"
	"github.com/rickgao/kalshi-trader/internal/model"
)

// maxFinishedOrders bounds how many terminal orders the book retains for
// the control plane's order listing.
const maxFinishedOrders = 256

// Exchange is the order-facing surface of the exchange client.
type Exchange interface {
	GetMarket(ctx context.Context, ticker string) (*model.Quote, error)
	PlaceOrder(ctx context.Context, req *model.OrderRequest) (*model.OrderStatus, error)
	GetOrder(ctx context.Context, exchangeID string) (*model.OrderStatus, error)
	CancelOrder(ctx context.Context, exchangeID string) error
}

// Ledger is the capital book that fills settle against.
type Ledger interface {
	ApplyFill(fill model.Fill) (*model.ClosedTrade, error)
	Release(requestID uuid.UUID)
}

// Sink receives lifecycle events as they happen.
type Sink interface {
	OrderUpdated(o model.Order)
	TradeClosed(trade model.ClosedTrade)
}

// Manager owns the set of live orders and their lifecycle goroutines.
type Manager struct {
	exchange Exchange
	ledger   Ledger
	sink     Sink
	logger   *slog.Logger

	pollInterval time.Duration
	maxRetries   int
	retryBackoff time.Duration

	mu   sync.Mutex
	book *book

	wg sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithPollInterval sets how often in-flight orders are polled for fills.
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) {
		m.pollInterval = d
	}
}

// WithRetries sets the placement retry policy.
func WithRetries(maxRetries int, backoff time.Duration) Option {
	return func(m *Manager) {
		m.maxRetries = maxRetries
		m.retryBackoff = backoff
	}
}

// WithSink sets the lifecycle event receiver.
func WithSink(s Sink) Option {
	return func(m *Manager) {
		m.sink = s
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates an order manager bound to an exchange and a ledger.
func NewManager(ex Exchange, ledger Ledger, opts ...Option) *Manager {
	m := &Manager{
		exchange:     ex,
		ledger:       ledger,
		logger:       slog.Default(),
		pollInterval: 2 * time.Second,
		maxRetries:   3,
		retryBackoff: 1 * time.Second,
		book:         newBook(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "order")
	return m
}

// SetSink wires the lifecycle sink after construction, for consumers that
// are themselves built around the manager. Call it before the first
// Submit; emits do not synchronize with it.
func (m *Manager) SetSink(s Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink = s
}

// Submit registers the request and drives its lifecycle on a background
// goroutine. The request's capital must already be reserved; every
// terminal outcome releases whatever reservation remains.
func (m *Manager) Submit(ctx context.Context, req *model.OrderRequest) (*model.Order, error) {
	m.mu.Lock()
	o, err := m.book.add(req)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	snapshot := *o
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.drive(ctx, req)
	}()
	return &snapshot, nil
}

// Cancel asks the exchange to cancel an order. Fills that land before
// the cancel is processed still settle; the poll loop records whichever
// final state the exchange reports.
func (m *Manager) Cancel(ctx context.Context, requestID uuid.UUID) error {
	m.mu.Lock()
	o, err := m.book.get(requestID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if o.State.Terminal() {
		m.mu.Unlock()
		return nil
	}
	exchangeID := o.ExchangeID
	m.mu.Unlock()

	if exchangeID == "" {
		return fmt.Errorf("order %s not yet submitted", requestID)
	}
	if err := m.exchange.CancelOrder(ctx, exchangeID); err != nil {
		return fmt.Errorf("cancel order %s: %w", requestID, err)
	}
	return nil
}

// Order returns a copy of one tracked order.
func (m *Manager) Order(requestID uuid.UUID) (model.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.book.orders[requestID]
	if !ok {
		return model.Order{}, false
	}
	return *o, true
}

// Orders returns copies of all tracked orders, oldest first.
func (m *Manager) Orders() []model.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Order, 0, len(m.book.orders))
	for _, o := range m.book.orders {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].RequestID.String() < out[j].RequestID.String()
	})
	return out
}

// Inflight counts orders that have not reached a terminal state.
func (m *Manager) Inflight() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, o := range m.book.orders {
		if !o.State.Terminal() {
			n++
		}
	}
	return n
}

// Wait blocks until all lifecycle goroutines have exited. Cancel their
// context first.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// drive runs one order from submission to a terminal state.
func (m *Manager) drive(ctx context.Context, req *model.OrderRequest) {
	logger := m.logger.With(
		"request", req.ID,
		"event", req.EventID,
		"side", req.Side,
		"direction", req.Direction,
	)

	if req.Direction == model.DirectionBuy && !m.priceWithinTolerance(ctx, req, logger) {
		m.reject(req.ID, logger, "price moved beyond slippage tolerance")
		return
	}

	m.update(req.ID, model.OrderSubmitted, logger)

	status, attempts, err := m.place(ctx, req)
	if err != nil {
		logger.Error("placement failed", "attempts", attempts, "error", err)
		m.setAttempts(req.ID, attempts)
		m.reject(req.ID, logger, rejectReason(err))
		return
	}

	m.acknowledge(req.ID, status.ExchangeID, attempts, logger)
	if m.absorb(req, status, logger) {
		return
	}

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Warn("shutting down with order in flight", "exchange_id", status.ExchangeID)
			return
		case <-ticker.C:
		}

		latest, err := m.exchange.GetOrder(ctx, status.ExchangeID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("order poll failed", "error", err)
			continue
		}
		if m.absorb(req, latest, logger) {
			return
		}
	}
}

// priceWithinTolerance re-quotes the contract just before submission and
// compares the live ask to the request's limit plus slippage allowance.
// A failed quote does not block: the limit price still bounds the fill.
func (m *Manager) priceWithinTolerance(ctx context.Context, req *model.OrderRequest, logger *slog.Logger) bool {
	quote, err := m.exchange.GetMarket(ctx, req.EventID)
	if err != nil {
		logger.Warn("slippage check skipped", "error", err)
		return true
	}
	ask := quote.Ask(req.Side)
	if ask <= 0 {
		return true
	}
	if ask > req.LimitPrice+req.MaxSlippage {
		logger.Warn("entry aborted on adverse price move",
			"ask", ask,
			"limit", req.LimitPrice,
			"tolerance", req.MaxSlippage,
		)
		return false
	}
	return true
}

// place submits the order, retrying transient failures with jittered
// exponential backoff. The attempt count is returned alongside.
func (m *Manager) place(ctx context.Context, req *model.OrderRequest) (*model.OrderStatus, int, error) {
	backoff := m.retryBackoff
	var lastErr error

	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		if attempt > 0 {
			// Add jitter: backoff * (0.5 to 1.5)
			sleep := backoff/2 + time.Duration(rand.Int64N(int64(backoff)))
			m.logger.Debug("retrying placement",
				"attempt", attempt,
				"backoff", sleep,
				"request", req.ID,
			)
			select {
			case <-time.After(sleep):
			case <-ctx.Done():
				return nil, attempt, ctx.Err()
			}
			backoff *= 2
		}

		status, err := m.exchange.PlaceOrder(ctx, req)
		if err == nil {
			return status, attempt + 1, nil
		}
		lastErr = err
		if !exchange.IsRetryable(err) {
			return nil, attempt + 1, err
		}
	}
	return nil, m.maxRetries + 1, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// rejectReason renders a placement failure for the rejection record,
// preferring the exchange's own message when one came back.
func rejectReason(err error) string {
	var apiErr *exchange.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Reason()
	}
	return err.Error()
}

// absorb folds an exchange status report into the book, settles any new
// fills against the ledger, and finishes the lifecycle on a terminal
// state. Returns true when the order is done.
func (m *Manager) absorb(req *model.OrderRequest, status *model.OrderStatus, logger *slog.Logger) bool {
	m.mu.Lock()
	o, err := m.book.get(req.ID)
	if err != nil {
		m.mu.Unlock()
		logger.Error("order vanished from book", "error", err)
		return true
	}

	var fill *model.Fill
	delta := status.FilledQuantity - o.FilledQuantity
	if delta > 0 {
		price := deltaPrice(o, status, delta)
		if _, err := m.book.applyFill(req.ID, status.FilledQuantity, status.AvgFillPrice); err != nil {
			logger.Error("fill not recorded", "error", err)
		} else {
			fill = &model.Fill{
				OrderID:   status.ExchangeID,
				RequestID: req.ID,
				EventID:   req.EventID,
				Side:      req.Side,
				Direction: req.Direction,
				Quantity:  delta,
				Price:     price,
				FilledAt:  time.Now().UTC(),
			}
		}
	} else if delta < 0 {
		logger.Error("exchange reported shrinking fills",
			"had", o.FilledQuantity,
			"reported", status.FilledQuantity,
		)
	}

	terminal := false
	switch status.State {
	case model.OrderFilled, model.OrderCanceled, model.OrderRejected:
		if o.State != status.State {
			if _, err := m.book.transition(req.ID, status.State); err != nil {
				logger.Error("terminal transition failed", "to", status.State, "error", err)
			}
		}
		terminal = true
	}
	snapshot := *o
	if terminal {
		m.book.prune(maxFinishedOrders)
	}
	m.mu.Unlock()

	if fill != nil {
		trade, err := m.ledger.ApplyFill(*fill)
		if err != nil {
			logger.Error("fill settlement failed", "error", err)
		}
		if trade != nil {
			m.emitTrade(*trade)
		}
	}
	m.emitOrder(snapshot)

	if terminal {
		logger.Info("order finished",
			"state", snapshot.State,
			"filled", snapshot.FilledQuantity,
			"of", snapshot.Quantity,
		)
		m.ledger.Release(req.ID)
	}
	return terminal
}

// deltaPrice prices newly observed contracts so the cumulative cost
// matches the exchange's running average exactly.
func deltaPrice(o *model.Order, status *model.OrderStatus, delta int) decimal.Decimal {
	newAvg := status.AvgFillPrice
	if newAvg.IsZero() {
		newAvg = model.CentsToDollars(o.LimitPrice)
	}
	newCost := newAvg.Mul(decimal.NewFromInt(int64(status.FilledQuantity)))
	prevCost := o.AvgFillPrice.Mul(decimal.NewFromInt(int64(o.FilledQuantity)))
	return newCost.Sub(prevCost).Div(decimal.NewFromInt(int64(delta)))
}

// update transitions an order and publishes the new state.
func (m *Manager) update(id uuid.UUID, next model.OrderState, logger *slog.Logger) {
	m.mu.Lock()
	o, err := m.book.transition(id, next)
	var snapshot model.Order
	if o != nil {
		snapshot = *o
	}
	m.mu.Unlock()

	if err != nil {
		logger.Error("state transition failed", "to", next, "error", err)
		return
	}
	logger.Debug("order state", "state", next)
	m.emitOrder(snapshot)
}

// acknowledge records the exchange id and attempt count, then moves the
// order to acknowledged.
func (m *Manager) acknowledge(id uuid.UUID, exchangeID string, attempts int, logger *slog.Logger) {
	m.mu.Lock()
	o, err := m.book.get(id)
	if err == nil {
		o.ExchangeID = exchangeID
		o.Attempts = attempts
	}
	m.mu.Unlock()
	if err != nil {
		logger.Error("order vanished from book", "error", err)
		return
	}
	m.update(id, model.OrderAcknowledged, logger)
}

// reject ends a lifecycle that never reached the exchange and frees its
// reserved capital.
func (m *Manager) reject(id uuid.UUID, logger *slog.Logger, why string) {
	m.mu.Lock()
	o, err := m.book.transition(id, model.OrderRejected)
	var snapshot model.Order
	if o != nil {
		snapshot = *o
	}
	m.book.prune(maxFinishedOrders)
	m.mu.Unlock()

	if err != nil {
		logger.Error("reject transition failed", "error", err)
	} else {
		logger.Warn("order rejected", "reason", why)
		m.emitOrder(snapshot)
	}
	m.ledger.Release(id)
}

func (m *Manager) setAttempts(id uuid.UUID, attempts int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, err := m.book.get(id); err == nil {
		o.Attempts = attempts
	}
}

func (m *Manager) emitOrder(o model.Order) {
	if m.sink != nil {
		m.sink.OrderUpdated(o)
	}
}

func (m *Manager) emitTrade(trade model.ClosedTrade) {
	if m.sink != nil {
		m.sink.TradeClosed(trade)
	}
}
