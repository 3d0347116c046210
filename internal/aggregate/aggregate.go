// Package aggregate fuses strategy signals into per-contract decisions.
package aggregate

import (
	"time"

	"github.com/rickgao/kalshi-trader/internal/model"
	"github.com/rickgao/kalshi-trader/internal/settings"
)

// group accumulates the signals for one (event, side) contract.
type group struct {
	weightSum   float64
	weightedSum float64
	minEstimate float64
	maxEstimate float64
	strategies  map[string]struct{}
	cluster     string
	supporting  []model.Signal
}

// Aggregate collects signals per contract and emits at most one decision
// candidate per (event, side). Signals from disabled strategies and expired
// signals are discarded. The blended probability is the confidence-weighted
// average of the group's estimates; a group with zero total confidence
// produces no decision.
//
// A decision is flagged low-confidence, not dropped, when it rests on fewer
// independent strategies than min_strategies or when the estimates spread
// wider than max_divergence. Output order is unspecified.
func Aggregate(signals []model.Signal, snap *settings.Snapshot, now time.Time) []model.Decision {
	groups := make(map[model.PositionKey]*group)

	for _, sig := range signals {
		if sig.Expired(now) {
			continue
		}
		if !snap.StrategyEnabled(sig.SourceStrategy) {
			continue
		}

		key := model.PositionKey{EventID: sig.EventID, Side: sig.Side}
		g := groups[key]
		if g == nil {
			g = &group{strategies: make(map[string]struct{})}
			groups[key] = g
		}

		g.supporting = append(g.supporting, sig)
		if g.cluster == "" {
			g.cluster = sig.ClusterID
		}

		// A zero-confidence estimate rides along but carries no weight and
		// does not count toward strategy agreement.
		if sig.Confidence == 0 {
			continue
		}

		if len(g.strategies) == 0 {
			g.minEstimate = sig.EstimatedProbability
			g.maxEstimate = sig.EstimatedProbability
		} else {
			if sig.EstimatedProbability < g.minEstimate {
				g.minEstimate = sig.EstimatedProbability
			}
			if sig.EstimatedProbability > g.maxEstimate {
				g.maxEstimate = sig.EstimatedProbability
			}
		}
		g.strategies[sig.SourceStrategy] = struct{}{}
		g.weightSum += sig.Confidence
		g.weightedSum += sig.Confidence * sig.EstimatedProbability
	}

	decisions := make([]model.Decision, 0, len(groups))
	for key, g := range groups {
		if g.weightSum == 0 {
			continue
		}

		cluster := g.cluster
		if cluster == "" {
			cluster = key.EventID
		}

		lowConfidence := len(g.strategies) < snap.MinStrategies ||
			g.maxEstimate-g.minEstimate > snap.MaxDivergence

		decisions = append(decisions, model.Decision{
			EventID:            key.EventID,
			Side:               key.Side,
			BlendedProbability: g.weightedSum / g.weightSum,
			Supporting:         g.supporting,
			ClusterID:          cluster,
			LowConfidence:      lowConfidence,
		})
	}
	return decisions
}
