package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultRestURL           = "https://api.elections.kalshi.com/trade-api/v2"
	DefaultAPITimeout        = 30 * time.Second
	DefaultMaxRetries        = 3
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 10
	DefaultMinConns          = 2
	DefaultSignalStream      = "signals"
	DefaultSignalGroup       = "trader"
	DefaultQueueSize         = 1024
	DefaultCycleInterval     = 60 * time.Second
	DefaultQuoteConcurrency  = 8
	DefaultQuoteTimeout      = 10 * time.Second
	DefaultOrderPollInterval = 2 * time.Second
	DefaultOrderMaxRetries   = 3
	DefaultOrderRetryBackoff = 1 * time.Second
	DefaultMaxSlippageCents  = 2
	DefaultControlPort       = 8080
	DefaultNotifyPerMinute   = 20
)

func (c *Config) applyDefaults() {
	// API defaults
	if c.API.RestURL == "" {
		c.API.RestURL = DefaultRestURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}

	// Database defaults
	applyDBDefaults(&c.Database.Postgres)

	// Signal feed defaults
	if c.Signals.Stream == "" {
		c.Signals.Stream = DefaultSignalStream
	}
	if c.Signals.Group == "" {
		c.Signals.Group = DefaultSignalGroup
	}
	if c.Signals.Consumer == "" {
		c.Signals.Consumer = c.Instance.ID
	}
	if c.Signals.QueueSize == 0 {
		c.Signals.QueueSize = DefaultQueueSize
	}

	// Engine defaults
	if c.Engine.CycleInterval == 0 {
		c.Engine.CycleInterval = DefaultCycleInterval
	}
	if c.Engine.QuoteConcurrency == 0 {
		c.Engine.QuoteConcurrency = DefaultQuoteConcurrency
	}
	if c.Engine.QuoteTimeout == 0 {
		c.Engine.QuoteTimeout = DefaultQuoteTimeout
	}
	if c.Engine.OrderPollInterval == 0 {
		c.Engine.OrderPollInterval = DefaultOrderPollInterval
	}
	if c.Engine.OrderMaxRetries == 0 {
		c.Engine.OrderMaxRetries = DefaultOrderMaxRetries
	}
	if c.Engine.OrderRetryBackoff == 0 {
		c.Engine.OrderRetryBackoff = DefaultOrderRetryBackoff
	}
	if c.Engine.MaxSlippageCents == 0 {
		c.Engine.MaxSlippageCents = DefaultMaxSlippageCents
	}

	// Control defaults
	if c.Control.Port == 0 {
		c.Control.Port = DefaultControlPort
	}

	// Notify defaults
	if c.Notify.PerMinute == 0 {
		c.Notify.PerMinute = DefaultNotifyPerMinute
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
