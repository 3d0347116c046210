// Package notify pushes trading events to a Telegram chat. Delivery is
// best effort: failures are logged and never propagate into the trading
// path, and a per-minute token bucket keeps a busy cycle from flooding
// the chat. The notifier is a no-op when no bot token is configured.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/kalshi-trader/internal/config"
	"github.com/rickgao/kalshi-trader/internal/model"
	"github.com/rickgao/kalshi-trader/internal/settings"
)

const defaultAPIBase = "https://api.telegram.org"

// Notifier sends formatted trading events to Telegram via the bot
// sendMessage endpoint. Trade events honor the notify_trades setting
// and error events honor notify_errors.
type Notifier struct {
	apiBase  string
	token    string
	chatID   string
	client   *http.Client
	bucket   *bucket
	settings *settings.Store
	logger   *slog.Logger
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithAPIBase overrides the Telegram API base URL.
func WithAPIBase(base string) Option {
	return func(n *Notifier) {
		n.apiBase = strings.TrimRight(base, "/")
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(n *Notifier) {
		n.client = client
	}
}

// NewNotifier creates a Telegram notifier. When cfg.TelegramToken is
// empty every method returns immediately without sending.
func NewNotifier(cfg config.NotifyConfig, store *settings.Store, logger *slog.Logger, opts ...Option) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	perMinute := cfg.PerMinute
	if perMinute <= 0 {
		perMinute = config.DefaultNotifyPerMinute
	}
	n := &Notifier{
		apiBase:  defaultAPIBase,
		token:    cfg.TelegramToken,
		chatID:   cfg.TelegramChatID,
		client:   &http.Client{Timeout: 10 * time.Second},
		bucket:   newBucket(perMinute),
		settings: store,
		logger:   logger.With("component", "notify"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Enabled reports whether a bot token is configured.
func (n *Notifier) Enabled() bool {
	return n.token != ""
}

// OrderFilled announces a completely filled order.
func (n *Notifier) OrderFilled(ctx context.Context, o model.Order) {
	if !n.Enabled() || !n.settings.Get().NotifyTrades {
		return
	}
	n.send(ctx, fmt.Sprintf("✅ Filled: %s %d %s %s @ $%s",
		strings.ToUpper(string(o.Direction)), o.FilledQuantity, o.Side, o.EventID,
		o.AvgFillPrice.StringFixed(2)))
}

// OrderRejected announces an order the exchange refused.
func (n *Notifier) OrderRejected(ctx context.Context, o model.Order) {
	if !n.Enabled() || !n.settings.Get().NotifyErrors {
		return
	}
	n.send(ctx, fmt.Sprintf("⚠️ Rejected: %s %d %s %s @ $%s after %d attempts",
		strings.ToUpper(string(o.Direction)), o.Quantity, o.Side, o.EventID,
		model.CentsToDollars(o.LimitPrice).StringFixed(2), o.Attempts))
}

// TradeClosed announces a fully closed position with its realized PnL.
func (n *Notifier) TradeClosed(ctx context.Context, t model.ClosedTrade) {
	if !n.Enabled() || !n.settings.Get().NotifyTrades {
		return
	}
	n.send(ctx, fmt.Sprintf("💰 Closed %s %s: %d contracts, $%s → $%s, PnL %s",
		t.Side, t.EventID, t.Quantity,
		t.AvgEntryPrice.StringFixed(2), t.AvgExitPrice.StringFixed(2),
		formatPnL(t.RealizedPnL)))
}

// StopLoss announces a stop-loss exit being submitted.
func (n *Notifier) StopLoss(ctx context.Context, req *model.OrderRequest) {
	if !n.Enabled() || !n.settings.Get().NotifyTrades {
		return
	}
	n.send(ctx, fmt.Sprintf("🛑 Stop loss: selling %d %s %s, limit $%s",
		req.Quantity, req.Side, req.EventID,
		model.CentsToDollars(req.LimitPrice).StringFixed(2)))
}

// Error announces an operational failure.
func (n *Notifier) Error(ctx context.Context, scope string, err error) {
	if !n.Enabled() || !n.settings.Get().NotifyErrors {
		return
	}
	n.send(ctx, fmt.Sprintf("⚠️ %s: %v", scope, err))
}

type message struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

func (n *Notifier) send(ctx context.Context, text string) {
	if !n.bucket.allow() {
		n.logger.Debug("notification rate limited", "remaining", n.bucket.remaining())
		return
	}

	payload, err := json.Marshal(message{ChatID: n.chatID, Text: text})
	if err != nil {
		n.logger.Warn("marshal notification", "error", err)
		return
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		n.logger.Warn("build notification request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("send notification", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		n.logger.Warn("notification rejected", "status", resp.StatusCode)
	}
}

// formatPnL renders a signed dollar amount, keeping the plus sign on
// gains so they read unambiguously in chat.
func formatPnL(pnl decimal.Decimal) string {
	s := pnl.StringFixed(2)
	if strings.HasPrefix(s, "-") {
		return "-$" + strings.TrimPrefix(s, "-")
	}
	return "+$" + s
}
