package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// ValidationError reports every offending key of a rejected update batch.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("invalid settings:")
	for _, k := range keys {
		fmt.Fprintf(&b, " %s: %s;", k, e.Fields[k])
	}
	return strings.TrimSuffix(b.String(), ";")
}

// Persister saves applied snapshots. Persist failures never block an update.
type Persister interface {
	SaveSettings(ctx context.Context, snap *Snapshot) error
}

// Store publishes immutable settings snapshots with a monotonically
// increasing version.
type Store struct {
	mu        sync.RWMutex
	current   *Snapshot
	persister Persister
	logger    *slog.Logger
}

// New creates a store. A nil initial snapshot starts from Defaults; a
// persisted snapshot restored at startup continues its version sequence.
func New(initial *Snapshot, persister Persister, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if initial == nil {
		initial = Defaults()
	}
	return &Store{
		current:   initial,
		persister: persister,
		logger:    logger,
	}
}

// Get returns the current snapshot. The snapshot is immutable; callers keep
// using it for a whole decision cycle regardless of concurrent updates.
func (s *Store) Get() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set validates and applies a batch of changes atomically. Any invalid key,
// type, or bound rejects the whole batch with a *ValidationError and leaves
// the current snapshot and version untouched.
func (s *Store) Set(ctx context.Context, changes map[string]any) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(changes) == 0 {
		return s.current, nil
	}

	next := *s.current
	fields := make(map[string]string)
	for key, val := range changes {
		if msg := applyChange(&next, key, val); msg != "" {
			fields[key] = msg
		}
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	next.Version = s.current.Version + 1
	next.AppliedAt = time.Now().UTC()
	s.current = &next

	s.persist(ctx, s.current)
	s.logger.Info("settings updated",
		"version", s.current.Version,
		"changed", len(changes),
	)
	return s.current, nil
}

// Reset replaces the current snapshot with the defaults under a new version.
func (s *Store) Reset(ctx context.Context) *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := Defaults()
	next.Version = s.current.Version + 1
	s.current = next

	s.persist(ctx, s.current)
	s.logger.Info("settings reset to defaults", "version", s.current.Version)
	return s.current
}

func (s *Store) persist(ctx context.Context, snap *Snapshot) {
	if s.persister == nil {
		return
	}
	if err := s.persister.SaveSettings(ctx, snap); err != nil {
		s.logger.Error("failed to persist settings", "version", snap.Version, "error", err)
	}
}

// applyChange validates one key/value pair and applies it to the candidate
// snapshot. Returns an empty string on success, the validation message
// otherwise.
func applyChange(next *Snapshot, key string, val any) string {
	switch key {
	case "kelly_fraction":
		return setFloat(&next.KellyFraction, val, 0.05, true, 1, true)
	case "max_position_size_pct":
		return setFloat(&next.MaxPositionSizePct, val, 0, false, 100, true)
	case "stop_loss_pct":
		return setFloat(&next.StopLossPct, val, 0.5, true, 50, true)
	case "min_edge":
		return setFloat(&next.MinEdge, val, 0, true, 0.5, false)
	case "cluster_limit_pct":
		return setFloat(&next.ClusterLimitPct, val, 0, false, 100, true)
	case "low_confidence_scale":
		return setFloat(&next.LowConfidenceScale, val, 0, false, 1, true)
	case "max_divergence":
		return setFloat(&next.MaxDivergence, val, 0, false, 1, true)
	case "min_strategies":
		return setInt(&next.MinStrategies, val, 1, 10)
	case "sentiment_enabled":
		return setBool(&next.SentimentEnabled, val)
	case "arbitrage_enabled":
		return setBool(&next.ArbitrageEnabled, val)
	case "volatility_enabled":
		return setBool(&next.VolatilityEnabled, val)
	case "notify_trades":
		return setBool(&next.NotifyTrades, val)
	case "notify_errors":
		return setBool(&next.NotifyErrors, val)
	default:
		return "unknown key"
	}
}

func setFloat(dst *float64, val any, min float64, minIncl bool, max float64, maxIncl bool) string {
	f, ok := floatValue(val)
	if !ok {
		return "must be a number"
	}
	if f < min || (f == min && !minIncl) || f > max || (f == max && !maxIncl) {
		lo, hi := "(", ")"
		if minIncl {
			lo = "["
		}
		if maxIncl {
			hi = "]"
		}
		return fmt.Sprintf("must be in %s%g, %g%s", lo, min, max, hi)
	}
	*dst = f
	return ""
}

func setInt(dst *int, val any, min, max int) string {
	n, ok := intValue(val)
	if !ok {
		return "must be an integer"
	}
	if n < min || n > max {
		return fmt.Sprintf("must be in [%d, %d]", min, max)
	}
	*dst = n
	return ""
}

func setBool(dst *bool, val any) string {
	b, ok := val.(bool)
	if !ok {
		return "must be a boolean"
	}
	*dst = b
	return ""
}

// floatValue coerces JSON-decoded and native numeric values.
func floatValue(val any) (float64, bool) {
	switch x := val.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// intValue accepts integers and whole-valued floats (JSON decodes all
// numbers as float64).
func intValue(val any) (int, bool) {
	switch x := val.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		if x != float64(int(x)) {
			return 0, false
		}
		return int(x), true
	case json.Number:
		n, err := x.Int64()
		return int(n), err == nil
	default:
		return 0, false
	}
}
