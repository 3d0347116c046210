package settings

import "time"

// Snapshot is one immutable version of the runtime settings. Holders of a
// snapshot are unaffected by later updates.
type Snapshot struct {
	Version   int64     `json:"version"`
	AppliedAt time.Time `json:"applied_at"`

	// Sizing
	KellyFraction      float64 `json:"kelly_fraction"`        // [0.05, 1]
	MaxPositionSizePct float64 `json:"max_position_size_pct"` // (0, 100], % of total equity
	StopLossPct        float64 `json:"stop_loss_pct"`         // [0.5, 50], % of cost basis
	MinEdge            float64 `json:"min_edge"`              // [0, 0.5), model vs market probability
	ClusterLimitPct    float64 `json:"cluster_limit_pct"`     // (0, 100], % of total equity per cluster
	LowConfidenceScale float64 `json:"low_confidence_scale"`  // (0, 1], stake multiplier

	// Aggregation
	MinStrategies int     `json:"min_strategies"` // [1, 10]
	MaxDivergence float64 `json:"max_divergence"` // (0, 1], pairwise estimate spread

	// Strategy toggles
	SentimentEnabled  bool `json:"sentiment_enabled"`
	ArbitrageEnabled  bool `json:"arbitrage_enabled"`
	VolatilityEnabled bool `json:"volatility_enabled"`

	// Notification toggles
	NotifyTrades bool `json:"notify_trades"`
	NotifyErrors bool `json:"notify_errors"`
}

// Defaults returns the design-default settings as version 1.
func Defaults() *Snapshot {
	return &Snapshot{
		Version:            1,
		AppliedAt:          time.Now().UTC(),
		KellyFraction:      0.5,
		MaxPositionSizePct: 10,
		StopLossPct:        5,
		MinEdge:            0.05,
		ClusterLimitPct:    20,
		LowConfidenceScale: 0.25,
		MinStrategies:      2,
		MaxDivergence:      0.25,
		SentimentEnabled:   true,
		ArbitrageEnabled:   true,
		VolatilityEnabled:  true,
		NotifyTrades:       true,
		NotifyErrors:       true,
	}
}

// StrategyEnabled reports whether signals from the named strategy should be
// consumed. Strategies without a toggle are always enabled.
func (s *Snapshot) StrategyEnabled(strategy string) bool {
	switch strategy {
	case "sentiment":
		return s.SentimentEnabled
	case "arbitrage":
		return s.ArbitrageEnabled
	case "volatility":
		return s.VolatilityEnabled
	default:
		return true
	}
}
