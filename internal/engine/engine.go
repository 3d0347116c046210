package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/kalshi-trader/internal/config"
	"github.com/rickgao/kalshi-trader/internal/exchange"
	"github.com/rickgao/kalshi-trader/internal/model"
	"github.com/rickgao/kalshi-trader/internal/perf"
	"github.com/rickgao/kalshi-trader/internal/risk"
	"github.com/rickgao/kalshi-trader/internal/settings"
	"github.com/rickgao/kalshi-trader/internal/signal"
	"github.com/rickgao/kalshi-trader/internal/store"
)

// ErrNotReconciled is returned by StartTrading before the local ledger has
// been reconciled against the exchange.
var ErrNotReconciled = errors.New("positions not reconciled")

// ErrOrdersInflight is returned by Reconcile while order goroutines are
// still driving exchange orders.
var ErrOrdersInflight = errors.New("orders in flight")

// Event types published to the control-plane stream.
const (
	eventOrderUpdated = "order_updated"
	eventTradeClosed  = "trade_closed"
	eventStopLoss     = "stop_loss"
	eventTradingState = "trading_state"
)

// Exchange is the slice of the exchange client the engine calls directly.
// Order placement goes through the order manager, which retries and polls
// on its own terms.
type Exchange interface {
	GetMarket(ctx context.Context, ticker string) (*model.Quote, error)
	GetExchangeStatus(ctx context.Context) (*exchange.Status, error)
	GetPositions(ctx context.Context) ([]model.ExchangePosition, error)
	GetBalance(ctx context.Context) (decimal.Decimal, error)
}

// Orders submits accepted requests and reports in-flight work.
type Orders interface {
	Submit(ctx context.Context, req *model.OrderRequest) (*model.Order, error)
	Inflight() int
}

// Journal records risk verdicts for the async batch writer.
type Journal interface {
	Record(entry store.JournalEntry)
}

// Persistence is the slice of the store the engine writes to. Failures
// degrade to log lines; they never stop a cycle.
type Persistence interface {
	SnapshotPositions(ctx context.Context, positions []model.Position) error
	SaveClosedTrade(ctx context.Context, trade model.ClosedTrade) error
}

// Notifier pushes human-facing trading events.
type Notifier interface {
	OrderFilled(ctx context.Context, o model.Order)
	OrderRejected(ctx context.Context, o model.Order)
	TradeClosed(ctx context.Context, t model.ClosedTrade)
	StopLoss(ctx context.Context, req *model.OrderRequest)
	Error(ctx context.Context, scope string, err error)
}

// Publisher streams events to connected control-plane clients.
type Publisher interface {
	Broadcast(eventType string, payload any)
}

// Status is a point-in-time view of the engine.
type Status struct {
	TradingActive  bool
	Reconciled     bool
	Uptime         time.Duration
	LastCycle      time.Time
	CycleCount     int64
	InflightOrders int
	Queue          signal.QueueStats
}

// Engine runs the serialized decision cycle.
type Engine struct {
	cfg      config.EngineConfig
	exchange Exchange
	risk     *risk.Manager
	orders   Orders
	queue    *signal.Queue
	settings *settings.Store
	logger   *slog.Logger

	// Optional observers.
	perf      *perf.Tracker
	journal   Journal
	store     Persistence
	notifier  Notifier
	events    Publisher

	tradingActive atomic.Bool
	reconciled    atomic.Bool
	cycleCount    atomic.Int64
	startedAt     time.Time

	statusMu  sync.Mutex
	lastCycle time.Time

	// restored carries positions loaded from the store; the first
	// reconciliation consumes them as the local cost-basis source.
	recMu    sync.Mutex
	restored []model.Position

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithPerf wires the performance tracker into the closed-trade path.
func WithPerf(t *perf.Tracker) Option {
	return func(e *Engine) { e.perf = t }
}

// WithJournal wires the verdict journal.
func WithJournal(j Journal) Option {
	return func(e *Engine) { e.journal = j }
}

// WithPersistence wires position snapshots and closed-trade persistence.
func WithPersistence(p Persistence) Option {
	return func(e *Engine) { e.store = p }
}

// WithNotifier wires trade and error notifications.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithPublisher wires the control-plane event stream.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.events = p }
}

// WithRestoredPositions seeds the first reconciliation with positions
// loaded from the store, preserving their cost basis across restarts.
func WithRestoredPositions(positions []model.Position) Option {
	return func(e *Engine) { e.restored = positions }
}

// New creates an engine. Trading starts disabled and unreconciled.
func New(cfg config.EngineConfig, ex Exchange, riskMgr *risk.Manager, orders Orders, queue *signal.Queue, settingsStore *settings.Store, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = config.DefaultCycleInterval
	}
	if cfg.QuoteConcurrency <= 0 {
		cfg.QuoteConcurrency = config.DefaultQuoteConcurrency
	}
	if cfg.QuoteTimeout <= 0 {
		cfg.QuoteTimeout = config.DefaultQuoteTimeout
	}

	e := &Engine{
		cfg:       cfg,
		exchange:  ex,
		risk:      riskMgr,
		orders:    orders,
		queue:     queue,
		settings:  settingsStore,
		logger:    logger.With("component", "engine"),
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start begins the cycle loop.
func (e *Engine) Start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.startedAt = time.Now()

	e.wg.Add(1)
	go e.run()

	e.logger.Info("engine started", "cycle_interval", e.cfg.CycleInterval)
	return nil
}

// Stop shuts the cycle loop down. In-flight orders are owned by the order
// manager and are not touched here.
func (e *Engine) Stop(ctx context.Context) error {
	if e.cancel != nil {
		e.cancel()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("engine stopped", "cycles", e.cycleCount.Load())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) run() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.CycleInterval)
	defer ticker.Stop()

	// First cycle immediately; the skip guard makes it a no-op until
	// trading is enabled.
	e.runCycle()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.runCycle()
		}
	}
}

// StartTrading enables decision cycles. The ledger must have been
// reconciled against the exchange first.
func (e *Engine) StartTrading() error {
	if !e.reconciled.Load() {
		return ErrNotReconciled
	}
	if e.tradingActive.CompareAndSwap(false, true) {
		e.logger.Info("trading enabled")
		e.publish(eventTradingState, map[string]bool{"trading_active": true})
	}
	return nil
}

// StopTrading halts new decision cycles. Orders already in flight keep
// running to their terminal state.
func (e *Engine) StopTrading() {
	if e.tradingActive.CompareAndSwap(true, false) {
		e.logger.Info("trading disabled")
		e.publish(eventTradingState, map[string]bool{"trading_active": false})
	}
}

// Status reports the engine's current state.
func (e *Engine) Status() Status {
	e.statusMu.Lock()
	last := e.lastCycle
	e.statusMu.Unlock()

	return Status{
		TradingActive:  e.tradingActive.Load(),
		Reconciled:     e.reconciled.Load(),
		Uptime:         time.Since(e.startedAt),
		LastCycle:      last,
		CycleCount:     e.cycleCount.Load(),
		InflightOrders: e.orders.Inflight(),
		Queue:          e.queue.Stats(),
	}
}

func (e *Engine) publish(eventType string, payload any) {
	if e.events == nil {
		return
	}
	e.events.Broadcast(eventType, payload)
}

// baseCtx is the engine's lifetime context, or Background before Start.
func (e *Engine) baseCtx() context.Context {
	if e.ctx != nil {
		return e.ctx
	}
	return context.Background()
}
