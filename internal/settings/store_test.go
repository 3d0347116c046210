package settings

import (
	"context"
	"errors"
	"testing"
)

func TestDefaults(t *testing.T) {
	snap := Defaults()

	if snap.Version != 1 {
		t.Errorf("Version = %d, want 1", snap.Version)
	}
	if snap.KellyFraction != 0.5 {
		t.Errorf("KellyFraction = %v, want 0.5", snap.KellyFraction)
	}
	if snap.StopLossPct != 5 {
		t.Errorf("StopLossPct = %v, want 5", snap.StopLossPct)
	}
	if !snap.SentimentEnabled || !snap.ArbitrageEnabled || !snap.VolatilityEnabled {
		t.Error("strategy toggles should default to enabled")
	}
}

func TestSetAppliesAndBumpsVersion(t *testing.T) {
	s := New(nil, nil, nil)
	ctx := context.Background()

	snap, err := s.Set(ctx, map[string]any{
		"kelly_fraction":    0.25,
		"stop_loss_pct":     10,
		"sentiment_enabled": false,
	})
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if snap.Version != 2 {
		t.Errorf("Version = %d, want 2", snap.Version)
	}
	if snap.KellyFraction != 0.25 {
		t.Errorf("KellyFraction = %v, want 0.25", snap.KellyFraction)
	}
	if snap.StopLossPct != 10 {
		t.Errorf("StopLossPct = %v, want 10", snap.StopLossPct)
	}
	if snap.SentimentEnabled {
		t.Error("SentimentEnabled = true, want false")
	}

	// Untouched keys keep their defaults.
	if snap.MinEdge != 0.05 {
		t.Errorf("MinEdge = %v, want 0.05", snap.MinEdge)
	}
}

func TestSetOutOfBoundsRejectsAtomically(t *testing.T) {
	s := New(nil, nil, nil)
	ctx := context.Background()
	before := s.Get()

	_, err := s.Set(ctx, map[string]any{"kelly_fraction": 2.0})
	if err == nil {
		t.Fatal("Set accepted kelly_fraction=2.0, want rejection")
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}
	if _, ok := verr.Fields["kelly_fraction"]; !ok {
		t.Errorf("Fields = %v, want kelly_fraction entry", verr.Fields)
	}

	// Prior snapshot still active, version unchanged.
	after := s.Get()
	if after != before {
		t.Error("snapshot replaced after rejected Set")
	}
	if after.Version != before.Version {
		t.Errorf("Version = %d, want unchanged %d", after.Version, before.Version)
	}
}

func TestSetPartiallyValidBatchRejected(t *testing.T) {
	s := New(nil, nil, nil)
	ctx := context.Background()

	// stop_loss_pct is valid here; the bad kelly_fraction must reject both.
	_, err := s.Set(ctx, map[string]any{
		"stop_loss_pct":  20,
		"kelly_fraction": 0.01,
	})
	if err == nil {
		t.Fatal("Set accepted partially valid batch")
	}

	if got := s.Get().StopLossPct; got != 5 {
		t.Errorf("StopLossPct = %v after rejected batch, want default 5", got)
	}
}

func TestSetValidationMessages(t *testing.T) {
	s := New(nil, nil, nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		changes map[string]any
	}{
		{"unknown key", map[string]any{"max_leverage": 2}},
		{"wrong type for float", map[string]any{"kelly_fraction": "half"}},
		{"wrong type for bool", map[string]any{"notify_trades": 1}},
		{"fractional int", map[string]any{"min_strategies": 1.5}},
		{"min_strategies too high", map[string]any{"min_strategies": 11}},
		{"stop loss below range", map[string]any{"stop_loss_pct": 0.1}},
		{"min_edge at exclusive bound", map[string]any{"min_edge": 0.5}},
		{"cluster limit zero", map[string]any{"cluster_limit_pct": 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Set(ctx, tt.changes); err == nil {
				t.Errorf("Set(%v) accepted, want rejection", tt.changes)
			}
		})
	}
}

func TestSetAcceptsJSONNumbers(t *testing.T) {
	s := New(nil, nil, nil)
	ctx := context.Background()

	// JSON decoding hands over float64 for every number.
	snap, err := s.Set(ctx, map[string]any{
		"min_strategies": float64(3),
		"min_edge":       float64(0),
	})
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if snap.MinStrategies != 3 {
		t.Errorf("MinStrategies = %d, want 3", snap.MinStrategies)
	}
	if snap.MinEdge != 0 {
		t.Errorf("MinEdge = %v, want 0 (inclusive lower bound)", snap.MinEdge)
	}
}

func TestOldSnapshotUnaffectedByUpdate(t *testing.T) {
	s := New(nil, nil, nil)
	ctx := context.Background()

	held := s.Get()
	if _, err := s.Set(ctx, map[string]any{"kelly_fraction": 0.1}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if held.KellyFraction != 0.5 {
		t.Errorf("held snapshot KellyFraction = %v, want 0.5", held.KellyFraction)
	}
	if got := s.Get().KellyFraction; got != 0.1 {
		t.Errorf("current KellyFraction = %v, want 0.1", got)
	}
}

func TestReset(t *testing.T) {
	s := New(nil, nil, nil)
	ctx := context.Background()

	if _, err := s.Set(ctx, map[string]any{"kelly_fraction": 0.1, "notify_trades": false}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	snap := s.Reset(ctx)
	if snap.KellyFraction != 0.5 {
		t.Errorf("KellyFraction after reset = %v, want 0.5", snap.KellyFraction)
	}
	if !snap.NotifyTrades {
		t.Error("NotifyTrades after reset = false, want true")
	}
	if snap.Version != 3 {
		t.Errorf("Version after reset = %d, want 3", snap.Version)
	}
}

func TestStrategyEnabled(t *testing.T) {
	snap := Defaults()
	snap.ArbitrageEnabled = false

	if !snap.StrategyEnabled("sentiment") {
		t.Error("sentiment should be enabled")
	}
	if snap.StrategyEnabled("arbitrage") {
		t.Error("arbitrage should be disabled")
	}
	if !snap.StrategyEnabled("weather-model") {
		t.Error("unknown strategies have no toggle and stay enabled")
	}
}

type capturePersister struct {
	saved []int64
	err   error
}

func (p *capturePersister) SaveSettings(_ context.Context, snap *Snapshot) error {
	p.saved = append(p.saved, snap.Version)
	return p.err
}

func TestPersisterCalledOnSetAndReset(t *testing.T) {
	p := &capturePersister{}
	s := New(nil, p, nil)
	ctx := context.Background()

	if _, err := s.Set(ctx, map[string]any{"min_edge": 0.1}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	s.Reset(ctx)

	if len(p.saved) != 2 || p.saved[0] != 2 || p.saved[1] != 3 {
		t.Errorf("persisted versions = %v, want [2 3]", p.saved)
	}
}

func TestPersistFailureDoesNotBlockUpdate(t *testing.T) {
	p := &capturePersister{err: errors.New("db down")}
	s := New(nil, p, nil)

	snap, err := s.Set(context.Background(), map[string]any{"min_edge": 0.1})
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if snap.Version != 2 {
		t.Errorf("Version = %d, want 2 despite persist failure", snap.Version)
	}
}
