package risk

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rickgao/kalshi-trader/internal/model"
	"github.com/rickgao/kalshi-trader/internal/settings"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// newFunded returns a manager with a flat book and the given cash balance.
func newFunded(t *testing.T, balance string) *Manager {
	t.Helper()
	m := NewManager(decimal.Zero, 2, nil)
	m.Reconcile(nil, nil, d(balance))
	return m
}

// fortyCentQuote prices yes at 40 with a tight book, so the implied yes
// probability is exactly 0.40.
func fortyCentQuote(event string) *model.Quote {
	return &model.Quote{
		EventID:   event,
		YesBid:    38,
		YesAsk:    40,
		NoBid:     58,
		NoAsk:     60,
		FetchedAt: time.Now().UTC(),
	}
}

func yesDecision(event string, p float64) model.Decision {
	return model.Decision{EventID: event, Side: model.SideYes, BlendedProbability: p}
}

func checkBankroll(t *testing.T, m *Manager, available, committed, total string) {
	t.Helper()
	b := m.Bankroll()
	if !b.Available.Equal(d(available)) {
		t.Errorf("available = %s, want %s", b.Available, available)
	}
	if !b.Committed.Equal(d(committed)) {
		t.Errorf("committed = %s, want %s", b.Committed, committed)
	}
	if !b.Total.Equal(d(total)) {
		t.Errorf("total = %s, want %s", b.Total, total)
	}
	if err := m.Check(); err != nil {
		t.Errorf("Check() = %v", err)
	}
}

// seedBuy reserves and fully fills a buy, opening or extending a position.
func seedBuy(t *testing.T, m *Manager, event string, side model.Side, qty, limitCents int, price string) *model.OrderRequest {
	t.Helper()
	req := &model.OrderRequest{
		ID:         uuid.New(),
		EventID:    event,
		Side:       side,
		Direction:  model.DirectionBuy,
		Quantity:   qty,
		LimitPrice: limitCents,
		ClusterID:  event,
		Reason:     model.ReasonEntry,
		CreatedAt:  time.Now().UTC(),
	}
	m.Reserve(req)
	if _, err := m.ApplyFill(model.Fill{
		OrderID:   "EX-" + event,
		RequestID: req.ID,
		EventID:   event,
		Side:      side,
		Direction: model.DirectionBuy,
		Quantity:  qty,
		Price:     d(price),
		FilledAt:  time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed buy fill: %v", err)
	}
	return req
}

func TestManager_Evaluate_Places(t *testing.T) {
	m := newFunded(t, "1000")
	snap := settings.Defaults()

	v := m.Evaluate(yesDecision("FED-DEC", 0.60), fortyCentQuote("FED-DEC"), snap)

	if v.Outcome != OutcomePlace {
		t.Fatalf("outcome = %q, want %q (reason %q)", v.Outcome, OutcomePlace, v.Reason)
	}
	if v.Reason != ReasonNone {
		t.Errorf("reason = %q, want none", v.Reason)
	}
	if !almostEqual(v.Edge, 0.20) {
		t.Errorf("edge = %v, want 0.20", v.Edge)
	}
	if v.Request == nil {
		t.Fatal("request is nil on a place outcome")
	}

	// Half Kelly at a 20-point edge wants 1/6 of cash, but the 10%
	// per-position cap binds first: $100 at 40 cents is 250 contracts.
	req := v.Request
	if req.Quantity != 250 {
		t.Errorf("quantity = %d, want 250", req.Quantity)
	}
	if req.LimitPrice != 40 {
		t.Errorf("limit price = %d, want 40", req.LimitPrice)
	}
	if req.Direction != model.DirectionBuy {
		t.Errorf("direction = %q, want buy", req.Direction)
	}
	if req.Reason != model.ReasonEntry {
		t.Errorf("reason = %q, want entry", req.Reason)
	}
	if req.MaxSlippage != 2 {
		t.Errorf("max slippage = %d, want 2", req.MaxSlippage)
	}
	if req.ClusterID != "FED-DEC" {
		t.Errorf("cluster = %q, want event id fallback", req.ClusterID)
	}

	checkBankroll(t, m, "900", "100", "1000")
}

func TestManager_Evaluate_Skips(t *testing.T) {
	tests := []struct {
		name string
		run  func(t *testing.T) Verdict
		want Reason
	}{
		{
			name: "nil quote",
			run: func(t *testing.T) Verdict {
				m := newFunded(t, "1000")
				return m.Evaluate(yesDecision("A", 0.60), nil, settings.Defaults())
			},
			want: ReasonBadQuote,
		},
		{
			name: "zero ask",
			run: func(t *testing.T) Verdict {
				m := newFunded(t, "1000")
				q := fortyCentQuote("A")
				q.YesAsk = 0
				return m.Evaluate(yesDecision("A", 0.60), q, settings.Defaults())
			},
			want: ReasonBadQuote,
		},
		{
			name: "ask above 99",
			run: func(t *testing.T) Verdict {
				m := newFunded(t, "1000")
				q := fortyCentQuote("A")
				q.YesAsk = 100
				return m.Evaluate(yesDecision("A", 0.99), q, settings.Defaults())
			},
			want: ReasonBadQuote,
		},
		{
			name: "edge below minimum",
			run: func(t *testing.T) Verdict {
				m := newFunded(t, "1000")
				return m.Evaluate(yesDecision("A", 0.44), fortyCentQuote("A"), settings.Defaults())
			},
			want: ReasonInsufficientEdge,
		},
		{
			name: "edge equal to minimum",
			run: func(t *testing.T) Verdict {
				m := newFunded(t, "1000")
				snap := settings.Defaults()
				snap.MinEdge = 0.60 - 0.40 // exactly the computed edge
				return m.Evaluate(yesDecision("A", 0.60), fortyCentQuote("A"), snap)
			},
			want: ReasonInsufficientEdge,
		},
		{
			name: "position open",
			run: func(t *testing.T) Verdict {
				m := newFunded(t, "1000")
				seedBuy(t, m, "A", model.SideYes, 10, 40, "0.40")
				return m.Evaluate(yesDecision("A", 0.60), fortyCentQuote("A"), settings.Defaults())
			},
			want: ReasonPositionOpen,
		},
		{
			name: "entry in flight",
			run: func(t *testing.T) Verdict {
				m := newFunded(t, "1000")
				snap := settings.Defaults()
				if v := m.Evaluate(yesDecision("A", 0.60), fortyCentQuote("A"), snap); v.Outcome != OutcomePlace {
					t.Fatalf("first evaluate outcome = %q", v.Outcome)
				}
				return m.Evaluate(yesDecision("A", 0.60), fortyCentQuote("A"), snap)
			},
			want: ReasonPositionOpen,
		},
		{
			name: "pending close",
			run: func(t *testing.T) Verdict {
				m := newFunded(t, "1000")
				snap := settings.Defaults()
				seedBuy(t, m, "A", model.SideYes, 100, 40, "0.40")
				m.UpdateMarks(map[string]*model.Quote{"A": {EventID: "A", YesBid: 30, YesAsk: 32, NoBid: 66, NoAsk: 68}})
				if got := len(m.StopLosses(snap)); got != 1 {
					t.Fatalf("stop losses = %d, want 1", got)
				}
				return m.Evaluate(yesDecision("A", 0.60), fortyCentQuote("A"), snap)
			},
			want: ReasonPendingClose,
		},
		{
			name: "bankroll exhausted",
			run: func(t *testing.T) Verdict {
				m := NewManager(decimal.Zero, 2, nil)
				local := []model.Position{{EventID: "A", Side: model.SideYes, Quantity: 10, AvgEntryPrice: d("0.50")}}
				exch := []model.ExchangePosition{{EventID: "A", Side: model.SideYes, Quantity: 10}}
				m.Reconcile(local, exch, decimal.Zero)
				return m.Evaluate(yesDecision("B", 0.60), fortyCentQuote("B"), settings.Defaults())
			},
			want: ReasonBankrollExhausted,
		},
		{
			name: "zero quantity",
			run: func(t *testing.T) Verdict {
				m := newFunded(t, "1")
				return m.Evaluate(yesDecision("A", 0.60), fortyCentQuote("A"), settings.Defaults())
			},
			want: ReasonZeroQuantity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := tt.run(t)
			if v.Outcome != OutcomeSkip {
				t.Fatalf("outcome = %q, want skip", v.Outcome)
			}
			if v.Reason != tt.want {
				t.Errorf("reason = %q, want %q", v.Reason, tt.want)
			}
			if v.Request != nil {
				t.Error("request must be nil on a skip")
			}
		})
	}
}

func TestManager_Evaluate_LowConfidenceScales(t *testing.T) {
	m := newFunded(t, "1000")
	dec := yesDecision("A", 0.60)
	dec.LowConfidence = true

	v := m.Evaluate(dec, fortyCentQuote("A"), settings.Defaults())

	if v.Outcome != OutcomePlace {
		t.Fatalf("outcome = %q, want place (reason %q)", v.Outcome, v.Reason)
	}
	// Quarter of the capped $100 stake buys 62 contracts at 40 cents.
	if v.Request.Quantity != 62 {
		t.Errorf("quantity = %d, want 62", v.Request.Quantity)
	}
	checkBankroll(t, m, "975.2", "24.8", "1000")
}

func TestManager_Evaluate_ClusterDownsizing(t *testing.T) {
	m := newFunded(t, "1000")
	snap := settings.Defaults()
	snap.MaxPositionSizePct = 50 // let Kelly size freely, cluster cap binds

	first := yesDecision("A", 0.60)
	first.ClusterID = "politics"
	v1 := m.Evaluate(first, fortyCentQuote("A"), snap)
	if v1.Outcome != OutcomePlace {
		t.Fatalf("first outcome = %q (reason %q)", v1.Outcome, v1.Reason)
	}
	if v1.Request.Quantity != 416 {
		t.Errorf("first quantity = %d, want 416", v1.Request.Quantity)
	}

	second := yesDecision("B", 0.60)
	second.ClusterID = "politics"
	v2 := m.Evaluate(second, fortyCentQuote("B"), snap)
	if v2.Outcome != OutcomeDownsized {
		t.Fatalf("second outcome = %q (reason %q), want downsized", v2.Outcome, v2.Reason)
	}
	if v2.Reason != ReasonClusterLimit {
		t.Errorf("second reason = %q, want cluster_limit", v2.Reason)
	}
	// $33.60 of headroom remains under the 20% cluster cap.
	if v2.Request.Quantity != 84 {
		t.Errorf("second quantity = %d, want 84", v2.Request.Quantity)
	}
	checkBankroll(t, m, "800", "200", "1000")

	third := yesDecision("C", 0.60)
	third.ClusterID = "politics"
	v3 := m.Evaluate(third, fortyCentQuote("C"), snap)
	if v3.Outcome != OutcomeSkip || v3.Reason != ReasonClusterLimit {
		t.Errorf("third = %q/%q, want skip/cluster_limit", v3.Outcome, v3.Reason)
	}
	checkBankroll(t, m, "800", "200", "1000")
}

func TestManager_Reserve_Idempotent(t *testing.T) {
	m := newFunded(t, "1000")
	req := &model.OrderRequest{
		ID:         uuid.New(),
		EventID:    "A",
		Side:       model.SideYes,
		Direction:  model.DirectionBuy,
		Quantity:   100,
		LimitPrice: 50,
		Reason:     model.ReasonEntry,
	}

	m.Reserve(req)
	checkBankroll(t, m, "950", "50", "1000")

	// Re-reserving the same request ID must not move capital again.
	m.Reserve(req)
	checkBankroll(t, m, "950", "50", "1000")

	m.Release(req.ID)
	checkBankroll(t, m, "1000", "0", "1000")

	m.Release(req.ID)
	checkBankroll(t, m, "1000", "0", "1000")
}

func TestManager_Reserve_IgnoresSells(t *testing.T) {
	m := newFunded(t, "1000")
	m.Reserve(&model.OrderRequest{
		ID:         uuid.New(),
		EventID:    "A",
		Side:       model.SideYes,
		Direction:  model.DirectionSell,
		Quantity:   100,
		LimitPrice: 50,
	})
	checkBankroll(t, m, "1000", "0", "1000")
}

func TestManager_Release_OnRejection(t *testing.T) {
	m := newFunded(t, "1000")
	v := m.Evaluate(yesDecision("A", 0.60), fortyCentQuote("A"), settings.Defaults())
	if v.Outcome != OutcomePlace {
		t.Fatalf("outcome = %q", v.Outcome)
	}
	checkBankroll(t, m, "900", "100", "1000")

	m.Release(v.Request.ID)
	checkBankroll(t, m, "1000", "0", "1000")
}

func TestManager_ApplyFill_BuyRefundsPriceImprovement(t *testing.T) {
	m := newFunded(t, "1000")
	v := m.Evaluate(yesDecision("A", 0.60), fortyCentQuote("A"), settings.Defaults())
	if v.Outcome != OutcomePlace {
		t.Fatalf("outcome = %q", v.Outcome)
	}

	// Reserved 250 contracts at the 40-cent limit; filled two cents better.
	_, err := m.ApplyFill(model.Fill{
		OrderID:   "EX-1",
		RequestID: v.Request.ID,
		EventID:   "A",
		Side:      model.SideYes,
		Direction: model.DirectionBuy,
		Quantity:  250,
		Price:     d("0.38"),
		FilledAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("ApplyFill: %v", err)
	}
	checkBankroll(t, m, "905", "95", "1000")

	pos, ok := m.Position(model.PositionKey{EventID: "A", Side: model.SideYes})
	if !ok {
		t.Fatal("position not found")
	}
	if pos.Quantity != 250 {
		t.Errorf("quantity = %d, want 250", pos.Quantity)
	}
	if !pos.AvgEntryPrice.Equal(d("0.38")) {
		t.Errorf("avg entry = %s, want 0.38", pos.AvgEntryPrice)
	}
}

func TestManager_ApplyFill_PartialBuyThenRelease(t *testing.T) {
	m := newFunded(t, "1000")
	v := m.Evaluate(yesDecision("A", 0.60), fortyCentQuote("A"), settings.Defaults())

	_, err := m.ApplyFill(model.Fill{
		OrderID:   "EX-1",
		RequestID: v.Request.ID,
		EventID:   "A",
		Side:      model.SideYes,
		Direction: model.DirectionBuy,
		Quantity:  100,
		Price:     d("0.40"),
		FilledAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("ApplyFill: %v", err)
	}
	checkBankroll(t, m, "900", "100", "1000")

	// Canceling the rest returns only the unconsumed notional.
	m.Release(v.Request.ID)
	checkBankroll(t, m, "960", "40", "1000")

	pos, _ := m.Position(model.PositionKey{EventID: "A", Side: model.SideYes})
	if pos.Quantity != 100 {
		t.Errorf("quantity = %d, want 100", pos.Quantity)
	}
}

func TestManager_ApplyFill_LateFillAfterRelease(t *testing.T) {
	m := newFunded(t, "1000")
	v := m.Evaluate(yesDecision("A", 0.60), fortyCentQuote("A"), settings.Defaults())
	m.Release(v.Request.ID)
	checkBankroll(t, m, "1000", "0", "1000")

	_, err := m.ApplyFill(model.Fill{
		OrderID:   "EX-1",
		RequestID: v.Request.ID,
		EventID:   "A",
		Side:      model.SideYes,
		Direction: model.DirectionBuy,
		Quantity:  10,
		Price:     d("0.40"),
		FilledAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("ApplyFill: %v", err)
	}
	checkBankroll(t, m, "996", "4", "1000")
}

func TestManager_ApplyFill_AvgEntryOrderInsensitive(t *testing.T) {
	fills := []struct {
		qty   int
		limit int
		price string
	}{
		{10, 40, "0.40"},
		{30, 60, "0.60"},
		{20, 50, "0.50"},
	}

	apply := func(order ...int) *Manager {
		m := newFunded(t, "1000")
		for _, i := range order {
			f := fills[i]
			seedBuy(t, m, "A", model.SideYes, f.qty, f.limit, f.price)
		}
		return m
	}

	key := model.PositionKey{EventID: "A", Side: model.SideYes}
	first, _ := apply(0, 1, 2).Position(key)
	second, _ := apply(2, 0, 1).Position(key)

	if first.Quantity != 60 || second.Quantity != 60 {
		t.Errorf("quantities = %d, %d, want 60", first.Quantity, second.Quantity)
	}
	if !first.AvgEntryPrice.Equal(second.AvgEntryPrice) {
		t.Errorf("avg entry depends on arrival order: %s vs %s",
			first.AvgEntryPrice, second.AvgEntryPrice)
	}

	// Basis 10*0.40 + 30*0.60 + 20*0.50 = 32 dollars over 60 contracts.
	want := d("32").Div(d("60"))
	if !first.AvgEntryPrice.Equal(want) {
		t.Errorf("avg entry = %s, want %s", first.AvgEntryPrice, want)
	}
}

func TestManager_ApplyFill_SellCrossesZero(t *testing.T) {
	m := newFunded(t, "1000")
	seedBuy(t, m, "A", model.SideYes, 10, 40, "0.40")
	seedBuy(t, m, "A", model.SideYes, 30, 60, "0.60")

	key := model.PositionKey{EventID: "A", Side: model.SideYes}
	pos, _ := m.Position(key)
	if !pos.AvgEntryPrice.Equal(d("0.55")) {
		t.Fatalf("avg entry = %s, want 0.55", pos.AvgEntryPrice)
	}
	checkBankroll(t, m, "978", "22", "1000")

	// Partial close at 70 cents realizes against the average entry.
	trade, err := m.ApplyFill(model.Fill{
		OrderID:   "EX-S1",
		EventID:   "A",
		Side:      model.SideYes,
		Direction: model.DirectionSell,
		Quantity:  20,
		Price:     d("0.70"),
		FilledAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("partial sell: %v", err)
	}
	if trade != nil {
		t.Fatal("partial sell must not return a closed trade")
	}
	checkBankroll(t, m, "992", "11", "1003")

	pos, _ = m.Position(key)
	if pos.Quantity != 20 {
		t.Errorf("quantity = %d, want 20", pos.Quantity)
	}
	if !pos.AvgEntryPrice.Equal(d("0.55")) {
		t.Errorf("avg entry after partial close = %s, want 0.55", pos.AvgEntryPrice)
	}
	if !pos.RealizedPnL.Equal(d("3")) {
		t.Errorf("realized = %s, want 3", pos.RealizedPnL)
	}

	closedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	trade, err = m.ApplyFill(model.Fill{
		OrderID:   "EX-S2",
		EventID:   "A",
		Side:      model.SideYes,
		Direction: model.DirectionSell,
		Quantity:  20,
		Price:     d("0.30"),
		FilledAt:  closedAt,
	})
	if err != nil {
		t.Fatalf("final sell: %v", err)
	}
	if trade == nil {
		t.Fatal("crossing zero must return a closed trade")
	}
	checkBankroll(t, m, "998", "0", "998")

	if trade.Quantity != 40 {
		t.Errorf("closed quantity = %d, want 40", trade.Quantity)
	}
	if !trade.AvgEntryPrice.Equal(d("0.55")) {
		t.Errorf("closed avg entry = %s, want 0.55", trade.AvgEntryPrice)
	}
	if !trade.AvgExitPrice.Equal(d("0.5")) {
		t.Errorf("closed avg exit = %s, want 0.5", trade.AvgExitPrice)
	}
	if !trade.RealizedPnL.Equal(d("-2")) {
		t.Errorf("closed realized = %s, want -2", trade.RealizedPnL)
	}
	if !trade.ClosedAt.Equal(closedAt) {
		t.Errorf("closed at = %v, want %v", trade.ClosedAt, closedAt)
	}
	if _, ok := m.Position(key); ok {
		t.Error("position still present after crossing zero")
	}
}

func TestManager_ApplyFill_Errors(t *testing.T) {
	m := newFunded(t, "1000")
	seedBuy(t, m, "A", model.SideYes, 10, 40, "0.40")

	tests := []struct {
		name string
		fill model.Fill
	}{
		{
			name: "sell without position",
			fill: model.Fill{OrderID: "X", EventID: "B", Side: model.SideYes, Direction: model.DirectionSell, Quantity: 5, Price: d("0.50")},
		},
		{
			name: "sell exceeds position",
			fill: model.Fill{OrderID: "X", EventID: "A", Side: model.SideYes, Direction: model.DirectionSell, Quantity: 20, Price: d("0.50")},
		},
		{
			name: "non-positive quantity",
			fill: model.Fill{OrderID: "X", EventID: "A", Side: model.SideYes, Direction: model.DirectionBuy, Quantity: 0, Price: d("0.50")},
		},
		{
			name: "invalid direction",
			fill: model.Fill{OrderID: "X", EventID: "A", Side: model.SideYes, Direction: "hold", Quantity: 5, Price: d("0.50")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.ApplyFill(tt.fill); err == nil {
				t.Error("expected error, got nil")
			}
			if err := m.Check(); err != nil {
				t.Errorf("Check() after rejected fill = %v", err)
			}
		})
	}
}

func TestManager_StopLosses(t *testing.T) {
	m := newFunded(t, "1000")
	snap := settings.Defaults()

	seedBuy(t, m, "DOWN", model.SideYes, 100, 40, "0.40")
	seedBuy(t, m, "FLAT", model.SideYes, 100, 40, "0.40")
	seedBuy(t, m, "DARK", model.SideYes, 100, 40, "0.40")

	// DOWN marks at 38, a 5% loss on its 40-cent basis, exactly at the
	// stop threshold. FLAT is down 2.5%. DARK has no mark yet.
	m.UpdateMarks(map[string]*model.Quote{
		"DOWN": {EventID: "DOWN", YesBid: 38, YesAsk: 40, NoBid: 58, NoAsk: 60},
		"FLAT": {EventID: "FLAT", YesBid: 39, YesAsk: 41, NoBid: 57, NoAsk: 59},
	})

	reqs := m.StopLosses(snap)
	if len(reqs) != 1 {
		t.Fatalf("stop losses = %d, want 1", len(reqs))
	}
	req := reqs[0]
	if req.EventID != "DOWN" {
		t.Errorf("event = %q, want DOWN", req.EventID)
	}
	if req.Direction != model.DirectionSell {
		t.Errorf("direction = %q, want sell", req.Direction)
	}
	if req.Quantity != 100 {
		t.Errorf("quantity = %d, want 100 (full close)", req.Quantity)
	}
	if req.LimitPrice != 36 {
		t.Errorf("limit = %d, want 36 (mark less slippage buffer)", req.LimitPrice)
	}
	if req.Reason != model.ReasonStopLoss {
		t.Errorf("reason = %q, want stop_loss", req.Reason)
	}

	t.Run("latched while close in flight", func(t *testing.T) {
		if got := len(m.StopLosses(snap)); got != 0 {
			t.Errorf("second scan = %d requests, want 0", got)
		}
	})

	t.Run("release clears latch", func(t *testing.T) {
		m.Release(req.ID)
		again := m.StopLosses(snap)
		if len(again) != 1 || again[0].EventID != "DOWN" {
			t.Errorf("scan after release = %+v, want one DOWN close", again)
		}
	})
}

func TestManager_Reconcile(t *testing.T) {
	m := newFunded(t, "0")
	opened := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

	local := []model.Position{
		{EventID: "A", Side: model.SideYes, Quantity: 10, AvgEntryPrice: d("0.40"), RealizedPnL: d("1.50"), ClusterID: "alpha", OpenedAt: opened},
		{EventID: "B", Side: model.SideNo, Quantity: 5, AvgEntryPrice: d("0.20")},
	}
	exch := []model.ExchangePosition{
		{EventID: "C", Side: model.SideYes, Quantity: 7},
		{EventID: "A", Side: model.SideYes, Quantity: 12},
	}

	unknown := m.Reconcile(local, exch, d("500"))

	if len(unknown) != 1 || unknown[0].EventID != "C" {
		t.Fatalf("unknown = %+v, want only C", unknown)
	}

	// A adopts the exchange quantity at the local basis; B is dropped.
	pos, ok := m.Position(model.PositionKey{EventID: "A", Side: model.SideYes})
	if !ok {
		t.Fatal("position A missing after reconcile")
	}
	if pos.Quantity != 12 {
		t.Errorf("quantity = %d, want exchange's 12", pos.Quantity)
	}
	if !pos.AvgEntryPrice.Equal(d("0.40")) {
		t.Errorf("avg entry = %s, want 0.40", pos.AvgEntryPrice)
	}
	if pos.ClusterID != "alpha" {
		t.Errorf("cluster = %q, want alpha", pos.ClusterID)
	}
	if !pos.OpenedAt.Equal(opened) {
		t.Errorf("opened at = %v, want %v", pos.OpenedAt, opened)
	}
	if _, ok := m.Position(model.PositionKey{EventID: "B", Side: model.SideNo}); ok {
		t.Error("position B survived reconcile despite missing on exchange")
	}

	checkBankroll(t, m, "500", "4.8", "504.8")

	t.Run("close after adoption carries prior realized", func(t *testing.T) {
		trade, err := m.ApplyFill(model.Fill{
			OrderID:   "EX-C1",
			EventID:   "A",
			Side:      model.SideYes,
			Direction: model.DirectionSell,
			Quantity:  12,
			Price:     d("0.50"),
			FilledAt:  time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("close: %v", err)
		}
		if trade == nil {
			t.Fatal("expected closed trade")
		}
		if !trade.RealizedPnL.Equal(d("2.7")) {
			t.Errorf("realized = %s, want 2.7 (1.50 carried + 1.20 new)", trade.RealizedPnL)
		}
		checkBankroll(t, m, "506", "0", "506")
	})
}

func TestManager_Reconcile_CapsBankroll(t *testing.T) {
	m := NewManager(d("300"), 2, nil)
	m.Reconcile(nil, nil, d("500"))
	checkBankroll(t, m, "300", "0", "300")
}

func TestManager_UnrealizedAndMarks(t *testing.T) {
	m := newFunded(t, "1000")
	seedBuy(t, m, "A", model.SideYes, 10, 40, "0.40")
	seedBuy(t, m, "B", model.SideNo, 20, 60, "0.60")

	m.UpdateMarks(map[string]*model.Quote{
		"A": {EventID: "A", YesBid: 45, YesAsk: 47, NoBid: 51, NoAsk: 53},
		"B": {EventID: "B", YesBid: 43, YesAsk: 45, NoBid: 55, NoAsk: 57},
	})

	pos, _ := m.Position(model.PositionKey{EventID: "A", Side: model.SideYes})
	if pos.Mark != 45 {
		t.Errorf("A mark = %d, want 45 (yes bid)", pos.Mark)
	}
	pos, _ = m.Position(model.PositionKey{EventID: "B", Side: model.SideNo})
	if pos.Mark != 55 {
		t.Errorf("B mark = %d, want 55 (no bid)", pos.Mark)
	}

	// A is up $0.50, B is down $1.00.
	if got := m.Unrealized(); !got.Equal(d("-0.5")) {
		t.Errorf("Unrealized() = %s, want -0.5", got)
	}
}

func TestManager_OpenEvents(t *testing.T) {
	m := newFunded(t, "1000")
	seedBuy(t, m, "B", model.SideNo, 10, 40, "0.40")
	seedBuy(t, m, "A", model.SideYes, 10, 40, "0.40")
	seedBuy(t, m, "A", model.SideNo, 10, 40, "0.40")

	got := m.OpenEvents()
	if len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Errorf("OpenEvents() = %v, want [A B]", got)
	}
}
