package risk

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rickgao/kalshi-trader/internal/model"
	"github.com/rickgao/kalshi-trader/internal/settings"
)

// holding is the manager's internal position record. basis is the exact
// remaining cost in dollars and is the primitive the ledger moves;
// AvgEntryPrice is derived from it so partial-close rounding never
// drifts the committed pool.
type holding struct {
	pos          model.Position
	basis        decimal.Decimal
	bought       int
	cost         decimal.Decimal // lifetime buy dollars
	sold         int
	proceeds     decimal.Decimal // lifetime sell dollars
	realizedBase decimal.Decimal // realized PnL carried in at reconcile
}

func (h *holding) unrealized() decimal.Decimal {
	if h.pos.Mark <= 0 || h.pos.Quantity == 0 {
		return decimal.Zero
	}
	mark := model.CentsToDollars(h.pos.Mark)
	return mark.Mul(decimal.NewFromInt(int64(h.pos.Quantity))).Sub(h.basis)
}

func (h *holding) refreshRealized() {
	h.pos.RealizedPnL = h.realizedBase.Add(h.proceeds.Sub(h.cost.Sub(h.basis)))
}

// reservation tracks capital committed to an in-flight buy order.
type reservation struct {
	key       model.PositionKey
	cluster   string
	limit     decimal.Decimal // limit price in dollars
	remaining decimal.Decimal // unconsumed notional
}

// Manager owns bankroll and position state. Every mutation serializes
// through its mutex; Evaluate reserving capital under that same lock is
// what keeps concurrent order flow from double-spending.
type Manager struct {
	mu sync.Mutex

	bankroll     model.Bankroll
	holdings     map[model.PositionKey]*holding
	reservations map[uuid.UUID]*reservation
	pendingClose map[model.PositionKey]uuid.UUID
	closeKeys    map[uuid.UUID]model.PositionKey

	maxBankroll decimal.Decimal // cap on deployable cash, zero = uncapped
	maxSlippage int             // cents tolerated on entries, stop limit buffer

	logger *slog.Logger
}

// NewManager creates an empty manager. Positions and bankroll arrive via
// Reconcile before any sizing happens.
func NewManager(maxBankroll decimal.Decimal, maxSlippage int, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		holdings:     make(map[model.PositionKey]*holding),
		reservations: make(map[uuid.UUID]*reservation),
		pendingClose: make(map[model.PositionKey]uuid.UUID),
		closeKeys:    make(map[uuid.UUID]model.PositionKey),
		maxBankroll:  maxBankroll,
		maxSlippage:  maxSlippage,
		logger:       logger.With("component", "risk"),
	}
}

// Evaluate sizes a decision against the quote under current settings. On
// a Place or Downsized outcome the request's notional has already moved
// from available to committed; callers must pair every returned request
// with fills or a Release.
func (m *Manager) Evaluate(d model.Decision, quote *model.Quote, snap *settings.Snapshot) Verdict {
	m.mu.Lock()
	defer m.mu.Unlock()

	if quote == nil {
		return skip(d.EventID, d.Side, ReasonBadQuote, 0)
	}
	pMarket, err := quote.Implied(d.Side)
	if err != nil {
		m.logger.Warn("unusable quote", "event", d.EventID, "error", err)
		return skip(d.EventID, d.Side, ReasonBadQuote, 0)
	}
	ask := quote.Ask(d.Side)
	if ask < 1 || ask > 99 {
		return skip(d.EventID, d.Side, ReasonBadQuote, 0)
	}

	edge := d.BlendedProbability - pMarket

	key := model.PositionKey{EventID: d.EventID, Side: d.Side}
	if _, ok := m.pendingClose[key]; ok {
		return skip(d.EventID, d.Side, ReasonPendingClose, edge)
	}
	if _, ok := m.holdings[key]; ok {
		return skip(d.EventID, d.Side, ReasonPositionOpen, edge)
	}
	for _, res := range m.reservations {
		if res.key == key {
			// An entry for this contract is already in flight.
			return skip(d.EventID, d.Side, ReasonPositionOpen, edge)
		}
	}

	if edge <= snap.MinEdge {
		return skip(d.EventID, d.Side, ReasonInsufficientEdge, edge)
	}

	applied := Applied(pMarket, d.BlendedProbability, snap.KellyFraction)
	if applied <= 0 {
		return skip(d.EventID, d.Side, ReasonNoPositiveKelly, edge)
	}

	if !m.bankroll.Available.IsPositive() {
		return skip(d.EventID, d.Side, ReasonBankrollExhausted, edge)
	}

	stake := m.bankroll.Available.Mul(decimal.NewFromFloat(applied))
	maxStake := m.bankroll.Total.Mul(decimal.NewFromFloat(snap.MaxPositionSizePct / 100))
	if stake.GreaterThan(maxStake) {
		stake = maxStake
	}
	if d.LowConfidence {
		stake = stake.Mul(decimal.NewFromFloat(snap.LowConfidenceScale))
	}
	if !stake.IsPositive() {
		return skip(d.EventID, d.Side, ReasonBankrollExhausted, edge)
	}

	askDollars := model.CentsToDollars(ask)
	quantity := int(stake.Div(askDollars).IntPart())
	if quantity <= 0 {
		return skip(d.EventID, d.Side, ReasonZeroQuantity, edge)
	}

	outcome := OutcomePlace
	reason := ReasonNone

	cluster := d.ClusterID
	if cluster == "" {
		cluster = d.EventID
	}
	headroom := m.clusterHeadroomLocked(cluster, snap)
	notional := askDollars.Mul(decimal.NewFromInt(int64(quantity)))
	if notional.GreaterThan(headroom) {
		reduced := int(headroom.Div(askDollars).IntPart())
		if reduced <= 0 {
			return skip(d.EventID, d.Side, ReasonClusterLimit, edge)
		}
		quantity = reduced
		outcome = OutcomeDownsized
		reason = ReasonClusterLimit
	}

	req := &model.OrderRequest{
		ID:          uuid.New(),
		EventID:     d.EventID,
		Side:        d.Side,
		Direction:   model.DirectionBuy,
		Quantity:    quantity,
		LimitPrice:  ask,
		MaxSlippage: m.maxSlippage,
		ClusterID:   cluster,
		Reason:      model.ReasonEntry,
		CreatedAt:   time.Now().UTC(),
	}
	m.reserveLocked(req)
	m.checkLocked("evaluate")

	return Verdict{
		EventID: d.EventID,
		Side:    d.Side,
		Outcome: outcome,
		Reason:  reason,
		Edge:    edge,
		Request: req,
	}
}

// clusterHeadroomLocked returns the notional still open to a cluster
// under the exposure cap: cost basis of its holdings plus unconsumed
// reservations, against cluster_limit_pct of total equity.
func (m *Manager) clusterHeadroomLocked(cluster string, snap *settings.Snapshot) decimal.Decimal {
	limit := m.bankroll.Total.Mul(decimal.NewFromFloat(snap.ClusterLimitPct / 100))

	exposure := decimal.Zero
	for _, h := range m.holdings {
		if h.pos.ClusterID == cluster {
			exposure = exposure.Add(h.basis)
		}
	}
	for _, res := range m.reservations {
		if res.cluster == cluster {
			exposure = exposure.Add(res.remaining)
		}
	}

	headroom := limit.Sub(exposure)
	if headroom.IsNegative() {
		return decimal.Zero
	}
	return headroom
}

// StopLosses scans open positions and emits full-quantity closing sells
// for any breaching the stop threshold. At most one close per position
// is in flight; the latch clears when its order terminates. Limits are
// priced through the mark by the slippage allowance so they cross the
// book.
func (m *Manager) StopLosses(snap *settings.Snapshot) []*model.OrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	threshold := decimal.NewFromFloat(-snap.StopLossPct / 100)
	now := time.Now().UTC()

	var requests []*model.OrderRequest
	for key, h := range m.holdings {
		if h.pos.Mark <= 0 || h.pos.Quantity <= 0 || !h.basis.IsPositive() {
			continue
		}
		if _, ok := m.pendingClose[key]; ok {
			continue
		}
		if h.unrealized().Div(h.basis).GreaterThan(threshold) {
			continue
		}

		limit := h.pos.Mark - m.maxSlippage
		if limit < 1 {
			limit = 1
		}
		req := &model.OrderRequest{
			ID:         uuid.New(),
			EventID:    key.EventID,
			Side:       key.Side,
			Direction:  model.DirectionSell,
			Quantity:   h.pos.Quantity,
			LimitPrice: limit,
			ClusterID:  h.pos.ClusterID,
			Reason:     model.ReasonStopLoss,
			CreatedAt:  now,
		}
		m.pendingClose[key] = req.ID
		m.closeKeys[req.ID] = key
		requests = append(requests, req)

		m.logger.Warn("stop loss triggered",
			"event", key.EventID,
			"side", key.Side,
			"quantity", h.pos.Quantity,
			"mark", h.pos.Mark,
			"unrealized", h.unrealized(),
		)
	}

	sort.Slice(requests, func(i, j int) bool {
		return requests[i].EventID < requests[j].EventID
	})
	return requests
}

// Reserve commits capital for a buy request. Reserving an already
// reserved request ID is a no-op, so duplicate submissions cannot
// double-spend.
func (m *Manager) Reserve(req *model.OrderRequest) {
	if req.Direction != model.DirectionBuy {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reserveLocked(req)
	m.checkLocked("reserve")
}

func (m *Manager) reserveLocked(req *model.OrderRequest) {
	if _, ok := m.reservations[req.ID]; ok {
		return
	}
	notional := req.Notional()
	m.reservations[req.ID] = &reservation{
		key:       model.PositionKey{EventID: req.EventID, Side: req.Side},
		cluster:   req.ClusterID,
		limit:     model.CentsToDollars(req.LimitPrice),
		remaining: notional,
	}
	m.bankroll.Available = m.bankroll.Available.Sub(notional)
	m.bankroll.Committed = m.bankroll.Committed.Add(notional)
}

// Release returns a request's unconsumed reservation to available and
// clears any pending-close latch. Call it on every terminal order state;
// duplicate calls are no-ops.
func (m *Manager) Release(requestID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if res, ok := m.reservations[requestID]; ok {
		m.bankroll.Committed = m.bankroll.Committed.Sub(res.remaining)
		m.bankroll.Available = m.bankroll.Available.Add(res.remaining)
		delete(m.reservations, requestID)
	}

	if key, ok := m.closeKeys[requestID]; ok {
		delete(m.closeKeys, requestID)
		delete(m.pendingClose, key)
	}

	m.checkLocked("release")
}

// ApplyFill applies one confirmed execution to the book. The returned
// ClosedTrade is non-nil when the fill takes its position to zero.
func (m *Manager) ApplyFill(fill model.Fill) (*model.ClosedTrade, error) {
	if fill.Quantity <= 0 {
		return nil, fmt.Errorf("fill %s: non-positive quantity %d", fill.OrderID, fill.Quantity)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.checkLocked("apply fill")

	switch fill.Direction {
	case model.DirectionBuy:
		m.applyBuyLocked(fill)
		return nil, nil
	case model.DirectionSell:
		return m.applySellLocked(fill)
	default:
		return nil, fmt.Errorf("fill %s: invalid direction %q", fill.OrderID, fill.Direction)
	}
}

func (m *Manager) applyBuyLocked(fill model.Fill) {
	qty := decimal.NewFromInt(int64(fill.Quantity))
	cost := fill.Price.Mul(qty)

	cluster := fill.EventID
	if res, ok := m.reservations[fill.RequestID]; ok {
		if res.cluster != "" {
			cluster = res.cluster
		}
		// Consume reserved capital at the limit price and refund the
		// difference to what was actually paid.
		consume := res.limit.Mul(qty)
		if consume.GreaterThan(res.remaining) {
			consume = res.remaining
		}
		res.remaining = res.remaining.Sub(consume)
		refund := consume.Sub(cost)
		m.bankroll.Committed = m.bankroll.Committed.Sub(refund)
		m.bankroll.Available = m.bankroll.Available.Add(refund)
	} else {
		// Late fill after release: fund the basis straight from available.
		m.bankroll.Available = m.bankroll.Available.Sub(cost)
		m.bankroll.Committed = m.bankroll.Committed.Add(cost)
	}

	key := model.PositionKey{EventID: fill.EventID, Side: fill.Side}
	h, ok := m.holdings[key]
	if !ok {
		h = &holding{
			pos: model.Position{
				EventID:   fill.EventID,
				Side:      fill.Side,
				ClusterID: cluster,
				OpenedAt:  fill.FilledAt,
			},
		}
		m.holdings[key] = h
	}

	h.basis = h.basis.Add(cost)
	h.cost = h.cost.Add(cost)
	h.bought += fill.Quantity
	h.pos.Quantity += fill.Quantity
	h.pos.AvgEntryPrice = h.basis.Div(decimal.NewFromInt(int64(h.pos.Quantity)))
	h.refreshRealized()
	h.pos.UpdatedAt = fill.FilledAt
}

func (m *Manager) applySellLocked(fill model.Fill) (*model.ClosedTrade, error) {
	key := model.PositionKey{EventID: fill.EventID, Side: fill.Side}
	h, ok := m.holdings[key]
	if !ok {
		return nil, fmt.Errorf("sell fill %s: no open position for %s %s", fill.OrderID, fill.EventID, fill.Side)
	}
	if fill.Quantity > h.pos.Quantity {
		return nil, fmt.Errorf("sell fill %s: quantity %d exceeds position %d", fill.OrderID, fill.Quantity, h.pos.Quantity)
	}

	qty := decimal.NewFromInt(int64(fill.Quantity))
	gross := fill.Price.Mul(qty)

	// Remove cost proportionally; the final slice takes the exact
	// remainder so the committed pool returns to zero dust-free.
	var removed decimal.Decimal
	if fill.Quantity == h.pos.Quantity {
		removed = h.basis
	} else {
		removed = h.basis.Mul(qty).Div(decimal.NewFromInt(int64(h.pos.Quantity)))
	}
	realized := gross.Sub(removed)

	m.bankroll.Available = m.bankroll.Available.Add(gross)
	m.bankroll.Committed = m.bankroll.Committed.Sub(removed)
	m.bankroll.Total = m.bankroll.Total.Add(realized)

	h.basis = h.basis.Sub(removed)
	h.sold += fill.Quantity
	h.proceeds = h.proceeds.Add(gross)
	h.pos.Quantity -= fill.Quantity
	h.refreshRealized()
	h.pos.UpdatedAt = fill.FilledAt

	if h.pos.Quantity > 0 {
		h.pos.AvgEntryPrice = h.basis.Div(decimal.NewFromInt(int64(h.pos.Quantity)))
		return nil, nil
	}

	delete(m.holdings, key)

	return &model.ClosedTrade{
		EventID:       fill.EventID,
		Side:          fill.Side,
		Quantity:      h.sold,
		AvgEntryPrice: h.cost.Div(decimal.NewFromInt(int64(h.bought))),
		AvgExitPrice:  h.proceeds.Div(decimal.NewFromInt(int64(h.sold))),
		RealizedPnL:   h.pos.RealizedPnL,
		OpenedAt:      h.pos.OpenedAt,
		ClosedAt:      fill.FilledAt,
	}, nil
}

// UpdateMarks refreshes position marks from the latest quotes. A side's
// mark is its bid, the price a close would execute against.
func (m *Manager) UpdateMarks(quotes map[string]*model.Quote) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, h := range m.holdings {
		q, ok := quotes[key.EventID]
		if !ok {
			continue
		}
		if bid := q.Bid(key.Side); bid > 0 {
			h.pos.Mark = bid
		}
	}
}

// Reconcile rebuilds the book from the exchange's view, keeping cost
// bases from locally persisted positions. Exchange holdings with no
// local basis are returned for operator resolution; local positions the
// exchange no longer reports are dropped with a warning. Callers must
// ensure no orders are in flight.
func (m *Manager) Reconcile(local []model.Position, exch []model.ExchangePosition, balance decimal.Decimal) []model.ExchangePosition {
	m.mu.Lock()
	defer m.mu.Unlock()

	known := make(map[model.PositionKey]model.Position, len(local))
	for _, p := range local {
		known[p.Key()] = p
	}

	m.holdings = make(map[model.PositionKey]*holding, len(exch))
	m.reservations = make(map[uuid.UUID]*reservation)
	m.pendingClose = make(map[model.PositionKey]uuid.UUID)
	m.closeKeys = make(map[uuid.UUID]model.PositionKey)

	var unknown []model.ExchangePosition
	committed := decimal.Zero
	now := time.Now().UTC()

	for _, ep := range exch {
		if ep.Quantity <= 0 {
			continue
		}
		key := model.PositionKey{EventID: ep.EventID, Side: ep.Side}
		lp, ok := known[key]
		if !ok {
			unknown = append(unknown, ep)
			continue
		}
		delete(known, key)

		if lp.Quantity != ep.Quantity {
			m.logger.Warn("position quantity adjusted to exchange",
				"event", ep.EventID,
				"side", ep.Side,
				"local", lp.Quantity,
				"exchange", ep.Quantity,
			)
		}

		basis := lp.AvgEntryPrice.Mul(decimal.NewFromInt(int64(ep.Quantity)))
		m.holdings[key] = &holding{
			pos: model.Position{
				EventID:       ep.EventID,
				Side:          ep.Side,
				Quantity:      ep.Quantity,
				AvgEntryPrice: lp.AvgEntryPrice,
				RealizedPnL:   lp.RealizedPnL,
				ClusterID:     lp.ClusterID,
				OpenedAt:      lp.OpenedAt,
				UpdatedAt:     now,
			},
			basis:        basis,
			bought:       ep.Quantity,
			cost:         basis,
			realizedBase: lp.RealizedPnL,
		}
		committed = committed.Add(basis)
	}

	for key := range known {
		m.logger.Warn("dropping local position absent on exchange",
			"event", key.EventID,
			"side", key.Side,
		)
	}

	available := balance
	if m.maxBankroll.IsPositive() && available.GreaterThan(m.maxBankroll) {
		available = m.maxBankroll
	}

	m.bankroll = model.Bankroll{
		Available: available,
		Committed: committed,
		Total:     available.Add(committed),
	}
	m.checkLocked("reconcile")

	sort.Slice(unknown, func(i, j int) bool {
		if unknown[i].EventID != unknown[j].EventID {
			return unknown[i].EventID < unknown[j].EventID
		}
		return unknown[i].Side < unknown[j].Side
	})
	return unknown
}

// Bankroll returns the current capital ledger.
func (m *Manager) Bankroll() model.Bankroll {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bankroll
}

// Positions returns a stable-ordered snapshot of open positions.
func (m *Manager) Positions() []model.Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Position, 0, len(m.holdings))
	for _, h := range m.holdings {
		out = append(out, h.pos)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EventID != out[j].EventID {
			return out[i].EventID < out[j].EventID
		}
		return out[i].Side < out[j].Side
	})
	return out
}

// Position returns one position by key.
func (m *Manager) Position(key model.PositionKey) (model.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.holdings[key]
	if !ok {
		return model.Position{}, false
	}
	return h.pos, true
}

// Unrealized sums unrealized PnL across open positions with live marks.
func (m *Manager) Unrealized() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := decimal.Zero
	for _, h := range m.holdings {
		total = total.Add(h.unrealized())
	}
	return total
}

// OpenEvents lists the distinct event tickers of open positions, for the
// per-cycle quote refresh.
func (m *Manager) OpenEvents() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool, len(m.holdings))
	var events []string
	for key := range m.holdings {
		if !seen[key.EventID] {
			seen[key.EventID] = true
			events = append(events, key.EventID)
		}
	}
	sort.Strings(events)
	return events
}

// Check verifies the bankroll identity. A violation is a programming
// error in the ledger, not an operational condition.
func (m *Manager) Check() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.bankroll.Balanced() {
		return fmt.Errorf("bankroll identity violated: available %s + committed %s != total %s",
			m.bankroll.Available, m.bankroll.Committed, m.bankroll.Total)
	}
	return nil
}

func (m *Manager) checkLocked(op string) {
	if !m.bankroll.Balanced() {
		m.logger.Error("bankroll identity violated",
			"op", op,
			"available", m.bankroll.Available,
			"committed", m.bankroll.Committed,
			"total", m.bankroll.Total,
		)
	}
}
