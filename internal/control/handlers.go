package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rickgao/kalshi-trader/internal/engine"
	"github.com/rickgao/kalshi-trader/internal/model"
	"github.com/rickgao/kalshi-trader/internal/order"
	"github.com/rickgao/kalshi-trader/internal/settings"
	"github.com/rickgao/kalshi-trader/internal/version"
)

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

type queueStatus struct {
	Len      int   `json:"len"`
	Capacity int   `json:"capacity"`
	Dropped  int64 `json:"dropped"`
}

type statusResponse struct {
	TradingActive  bool        `json:"trading_active"`
	Reconciled     bool        `json:"reconciled"`
	UptimeSeconds  int64       `json:"uptime_seconds"`
	LastCycle      *time.Time  `json:"last_cycle,omitempty"`
	CycleCount     int64       `json:"cycle_count"`
	InflightOrders int         `json:"inflight_orders"`
	Queue          queueStatus `json:"queue"`
	EventClients   int         `json:"event_clients"`
	Version        string      `json:"version"`
}

type positionEntry struct {
	EventID       string          `json:"event_id"`
	Side          model.Side      `json:"side"`
	Quantity      int             `json:"quantity"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	MarkCents     int             `json:"mark_cents"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	ClusterID     string          `json:"cluster_id"`
	OpenedAt      time.Time       `json:"opened_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type positionsResponse struct {
	Positions []positionEntry `json:"positions"`
	Count     int             `json:"count"`
}

type orderEntry struct {
	RequestID      uuid.UUID           `json:"request_id"`
	ExchangeID     string              `json:"exchange_id,omitempty"`
	EventID        string              `json:"event_id"`
	Side           model.Side          `json:"side"`
	Direction      model.Direction     `json:"direction"`
	Quantity       int                 `json:"quantity"`
	FilledQuantity int                 `json:"filled_quantity"`
	LimitPrice     int                 `json:"limit_price"`
	AvgFillPrice   decimal.Decimal     `json:"avg_fill_price"`
	State          model.OrderState    `json:"state"`
	Reason         model.RequestReason `json:"reason"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

type ordersResponse struct {
	Orders []orderEntry `json:"orders"`
	Count  int          `json:"count"`
}

type balanceResponse struct {
	Available     decimal.Decimal `json:"available"`
	Committed     decimal.Decimal `json:"committed"`
	Total         decimal.Decimal `json:"total"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	Equity        decimal.Decimal `json:"equity"`
}

type unknownPositionEntry struct {
	EventID  string     `json:"event_id"`
	Side     model.Side `json:"side"`
	Quantity int        `json:"quantity"`
}

type reconcileConflict struct {
	Error   string                 `json:"error"`
	Unknown []unknownPositionEntry `json:"unknown_positions"`
}

// handleHealth reports aggregate health: unhealthy when a dependency
// probe fails, degraded while positions are unreconciled.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := struct {
		Status     string         `json:"status"`
		Components map[string]any `json:"components"`
	}{
		Status:     "healthy",
		Components: make(map[string]any),
	}

	for _, check := range s.checks {
		if err := check.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components[check.Name] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components[check.Name] = "connected"
		}
	}

	st := s.engine.Status()
	health.Components["engine"] = map[string]any{
		"trading_active": st.TradingActive,
		"reconciled":     st.Reconciled,
		"cycle_count":    st.CycleCount,
	}
	if !st.Reconciled && health.Status == "healthy" {
		health.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	if health.Status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(health)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.engine.Status()

	resp := statusResponse{
		TradingActive:  st.TradingActive,
		Reconciled:     st.Reconciled,
		UptimeSeconds:  int64(st.Uptime.Seconds()),
		CycleCount:     st.CycleCount,
		InflightOrders: st.InflightOrders,
		Queue: queueStatus{
			Len:      st.Queue.Len,
			Capacity: st.Queue.Capacity,
			Dropped:  st.Queue.Dropped,
		},
		EventClients: s.hub.ClientCount(),
		Version:      version.Version,
	}
	if !st.LastCycle.IsZero() {
		lc := st.LastCycle
		resp.LastCycle = &lc
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions := s.risk.Positions()
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].EventID != positions[j].EventID {
			return positions[i].EventID < positions[j].EventID
		}
		return positions[i].Side < positions[j].Side
	})

	entries := make([]positionEntry, 0, len(positions))
	for _, p := range positions {
		unrealized := p.UnrealizedPnL()
		entries = append(entries, positionEntry{
			EventID:       p.EventID,
			Side:          p.Side,
			Quantity:      p.Quantity,
			AvgEntryPrice: p.AvgEntryPrice,
			MarkCents:     p.Mark,
			UnrealizedPnL: unrealized,
			ClusterID:     p.ClusterID,
			OpenedAt:      p.OpenedAt,
			UpdatedAt:     p.UpdatedAt,
		})
	}
	s.respondJSON(w, http.StatusOK, positionsResponse{Positions: entries, Count: len(entries)})
}

// handleOrders lists tracked orders, live ones plus the retained tail of
// finished ones, oldest first.
func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	orders := s.orders.Orders()

	entries := make([]orderEntry, 0, len(orders))
	for _, o := range orders {
		entries = append(entries, orderEntry{
			RequestID:      o.RequestID,
			ExchangeID:     o.ExchangeID,
			EventID:        o.EventID,
			Side:           o.Side,
			Direction:      o.Direction,
			Quantity:       o.Quantity,
			FilledQuantity: o.FilledQuantity,
			LimitPrice:     o.LimitPrice,
			AvgFillPrice:   o.AvgFillPrice,
			State:          o.State,
			Reason:         o.Reason,
			CreatedAt:      o.CreatedAt,
			UpdatedAt:      o.UpdatedAt,
		})
	}
	s.respondJSON(w, http.StatusOK, ordersResponse{Orders: entries, Count: len(entries)})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	bankroll := s.risk.Bankroll()
	unrealized := s.risk.Unrealized()

	s.respondJSON(w, http.StatusOK, balanceResponse{
		Available:     bankroll.Available,
		Committed:     bankroll.Committed,
		Total:         bankroll.Total,
		UnrealizedPnL: unrealized,
		Equity:        bankroll.Total.Add(unrealized),
	})
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	report := s.perf.Report(s.risk.Bankroll(), s.risk.Unrealized())
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.settings.Get())
}

// handleUpdateSettings applies a partial update. The whole batch is
// rejected when any field fails validation.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var changes map[string]any
	if err := json.NewDecoder(r.Body).Decode(&changes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	snap, err := s.settings.Set(r.Context(), changes)
	if err != nil {
		var verr *settings.ValidationError
		if errors.As(err, &verr) {
			s.respondJSON(w, http.StatusBadRequest, errorResponse{
				Error:  "validation failed",
				Fields: verr.Fields,
			})
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.hub.Broadcast(eventSettingsUpdated, snap)
	s.respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleResetSettings(w http.ResponseWriter, r *http.Request) {
	snap := s.settings.Reset(r.Context())
	s.hub.Broadcast(eventSettingsUpdated, snap)
	s.respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleStartTrading(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.StartTrading(); err != nil {
		if errors.Is(err, engine.ErrNotReconciled) {
			s.respondError(w, http.StatusConflict, err.Error())
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"trading_active": true})
}

func (s *Server) handleStopTrading(w http.ResponseWriter, r *http.Request) {
	s.engine.StopTrading()
	s.respondJSON(w, http.StatusOK, map[string]bool{"trading_active": false})
}

// handleCancelOrder requests a cancel; 202 because fills racing the
// cancel still settle through the normal poll path.
func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	if err := s.orders.Cancel(r.Context(), id); err != nil {
		if errors.Is(err, order.ErrUnknownOrder) {
			s.respondError(w, http.StatusNotFound, err.Error())
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]string{"status": "cancel_requested"})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	err := s.engine.Reconcile(r.Context())
	if err == nil {
		s.respondJSON(w, http.StatusOK, map[string]bool{"reconciled": true})
		return
	}

	var recErr *engine.ReconciliationError
	switch {
	case errors.As(err, &recErr):
		unknown := make([]unknownPositionEntry, 0, len(recErr.Unknown))
		for _, p := range recErr.Unknown {
			unknown = append(unknown, unknownPositionEntry{
				EventID:  p.EventID,
				Side:     p.Side,
				Quantity: p.Quantity,
			})
		}
		s.respondJSON(w, http.StatusConflict, reconcileConflict{
			Error:   recErr.Error(),
			Unknown: unknown,
		})
	case errors.Is(err, engine.ErrOrdersInflight):
		s.respondError(w, http.StatusConflict, err.Error())
	default:
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// handleEvents upgrades the connection and attaches it to the hub.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newWSClient(s.hub, conn, s.logger)
	if !s.hub.attach(c) {
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()

	s.logger.Debug("event stream opened", "client_id", c.id, "remote", r.RemoteAddr)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("response encode failed", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, errorResponse{Error: message})
}
