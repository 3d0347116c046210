package engine

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/kalshi-trader/internal/aggregate"
	"github.com/rickgao/kalshi-trader/internal/model"
	"github.com/rickgao/kalshi-trader/internal/risk"
	"github.com/rickgao/kalshi-trader/internal/settings"
	"github.com/rickgao/kalshi-trader/internal/store"
)

// runCycle executes one decision cycle. Stop losses go out before entries;
// entries are evaluated largest edge first so cluster headroom always goes
// to the strongest candidates.
func (e *Engine) runCycle() {
	if !e.tradingActive.Load() || !e.reconciled.Load() {
		return
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(e.baseCtx(), e.cfg.CycleInterval)
	defer cancel()

	status, err := e.exchange.GetExchangeStatus(ctx)
	if err != nil {
		e.logger.Warn("exchange status check failed, skipping cycle", "error", err)
		return
	}
	if !status.ExchangeActive || !status.TradingActive {
		e.logger.Warn("exchange halted, skipping cycle",
			"exchange_active", status.ExchangeActive,
			"trading_active", status.TradingActive,
		)
		return
	}

	snap := e.settings.Get()
	signals := e.queue.Drain(0)

	quotes := e.fetchQuotes(ctx, e.quoteTargets(signals))
	e.risk.UpdateMarks(quotes)

	stopLosses := e.submitStopLosses(ctx, snap)

	decisions := aggregate.Aggregate(signals, snap, time.Now().UTC())
	placed, skipped := e.evaluateDecisions(ctx, snap, decisions, quotes)

	e.persistPositions(ctx)

	e.statusMu.Lock()
	e.lastCycle = time.Now().UTC()
	e.statusMu.Unlock()

	e.logger.Info("cycle complete",
		"cycle", e.cycleCount.Add(1),
		"signals", len(signals),
		"decisions", len(decisions),
		"stop_losses", stopLosses,
		"placed", placed,
		"skipped", skipped,
		"duration", time.Since(start),
	)
}

// quoteTargets is the set of events needing a fresh quote this cycle: every
// open position plus every event with queued signals.
func (e *Engine) quoteTargets(signals []model.Signal) []string {
	seen := make(map[string]struct{})
	for _, eventID := range e.risk.OpenEvents() {
		seen[eventID] = struct{}{}
	}
	for _, sig := range signals {
		seen[sig.EventID] = struct{}{}
	}

	events := make([]string, 0, len(seen))
	for eventID := range seen {
		events = append(events, eventID)
	}
	sort.Strings(events)
	return events
}

// fetchQuotes pulls quotes concurrently with bounded parallelism. A failed
// fetch costs only that event's decisions; the cycle keeps going.
func (e *Engine) fetchQuotes(ctx context.Context, events []string) map[string]*model.Quote {
	quotes := make(map[string]*model.Quote, len(events))
	if len(events) == 0 {
		return quotes
	}

	var (
		mu     sync.Mutex
		failed atomic.Int64
	)

	g := new(errgroup.Group)
	g.SetLimit(e.cfg.QuoteConcurrency)

	for _, eventID := range events {
		g.Go(func() error {
			qctx, qcancel := context.WithTimeout(ctx, e.cfg.QuoteTimeout)
			defer qcancel()

			quote, err := e.exchange.GetMarket(qctx, eventID)
			if err != nil {
				e.logger.Warn("quote fetch failed", "event", eventID, "error", err)
				failed.Add(1)
				return nil
			}

			mu.Lock()
			quotes[eventID] = quote
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	if n := failed.Load(); n > 0 {
		e.logger.Warn("cycle missing quotes", "failed", n, "requested", len(events))
	}
	return quotes
}

// submitStopLosses fires the exits the risk manager demands. Exits run
// before entries so freed capital and cluster headroom are never consumed
// by new positions first.
func (e *Engine) submitStopLosses(ctx context.Context, snap *settings.Snapshot) int {
	submitted := 0
	for _, req := range e.risk.StopLosses(snap) {
		// Orders outlive the cycle; their lifecycle runs on the engine
		// context and ends only with the engine itself.
		if _, err := e.orders.Submit(e.baseCtx(), req); err != nil {
			e.logger.Error("stop loss submit failed",
				"event", req.EventID,
				"side", req.Side,
				"error", err,
			)
			e.risk.Release(req.ID)
			if e.notifier != nil {
				e.notifier.Error(ctx, "stop loss submit", err)
			}
			continue
		}
		submitted++

		e.publish(eventStopLoss, stopLossEvent{
			EventID:    req.EventID,
			Side:       string(req.Side),
			Quantity:   req.Quantity,
			LimitPrice: req.LimitPrice,
		})
		if e.notifier != nil {
			e.notifier.StopLoss(ctx, req)
		}
	}
	return submitted
}

// scoredDecision pairs a decision with its quote and precomputed edge for
// the contention sort.
type scoredDecision struct {
	decision model.Decision
	quote    *model.Quote
	edge     float64
}

// decisionEdge mirrors the risk manager's edge: model probability minus the
// market's implied probability for the decision's side. Decisions without a
// usable quote score zero and sort last.
func decisionEdge(d model.Decision, quote *model.Quote) float64 {
	if quote == nil {
		return 0
	}
	pMarket, err := quote.Implied(d.Side)
	if err != nil {
		return 0
	}
	return d.BlendedProbability - pMarket
}

func (e *Engine) evaluateDecisions(ctx context.Context, snap *settings.Snapshot, decisions []model.Decision, quotes map[string]*model.Quote) (placed, skipped int) {
	scored := make([]scoredDecision, 0, len(decisions))
	for _, d := range decisions {
		quote := quotes[d.EventID]
		scored = append(scored, scoredDecision{
			decision: d,
			quote:    quote,
			edge:     decisionEdge(d, quote),
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].edge != scored[j].edge {
			return scored[i].edge > scored[j].edge
		}
		if scored[i].decision.EventID != scored[j].decision.EventID {
			return scored[i].decision.EventID < scored[j].decision.EventID
		}
		return scored[i].decision.Side < scored[j].decision.Side
	})

	for _, sc := range scored {
		verdict := e.risk.Evaluate(sc.decision, sc.quote, snap)
		e.journalVerdict(verdict)

		if verdict.Request == nil {
			skipped++
			continue
		}

		if _, err := e.orders.Submit(e.baseCtx(), verdict.Request); err != nil {
			e.logger.Error("order submit failed",
				"event", verdict.EventID,
				"side", verdict.Side,
				"error", err,
			)
			e.risk.Release(verdict.Request.ID)
			if e.notifier != nil {
				e.notifier.Error(ctx, "order submit", err)
			}
			skipped++
			continue
		}
		placed++
	}
	return placed, skipped
}

func (e *Engine) journalVerdict(v risk.Verdict) {
	if e.journal == nil {
		return
	}

	entry := store.JournalEntry{
		EventID:   v.EventID,
		Side:      string(v.Side),
		Outcome:   string(v.Outcome),
		Reason:    string(v.Reason),
		Edge:      v.Edge,
		DecidedAt: time.Now().UTC(),
	}
	if v.Request != nil {
		entry.RequestID = v.Request.ID.String()
		entry.Quantity = v.Request.Quantity
		entry.LimitPrice = v.Request.LimitPrice
	}
	e.journal.Record(entry)
}

// persistPositions snapshots the ledger at the cycle boundary. Fills landed
// between snapshots are recovered from the exchange at the next startup
// reconciliation, so a failed write only costs freshness.
func (e *Engine) persistPositions(ctx context.Context) {
	if e.store == nil {
		return
	}
	if err := e.store.SnapshotPositions(ctx, e.risk.Positions()); err != nil {
		e.logger.Warn("position snapshot failed", "error", err)
	}
}
