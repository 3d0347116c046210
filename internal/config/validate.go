package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.API.APIKey == "" {
		return errors.New("api.api_key is required")
	}
	if c.API.PrivateKeyPath == "" {
		return errors.New("api.private_key_path is required")
	}

	if err := c.Database.Postgres.validate("database.postgres"); err != nil {
		return err
	}

	if c.Signals.RedisURL == "" {
		return errors.New("signals.redis_url is required")
	}
	if c.Signals.QueueSize < 1 {
		return errors.New("signals.queue_size must be >= 1")
	}

	if c.Engine.CycleInterval <= 0 {
		return errors.New("engine.cycle_interval must be positive")
	}
	if c.Engine.QuoteConcurrency < 1 {
		return errors.New("engine.quote_concurrency must be >= 1")
	}
	if c.Engine.OrderMaxRetries < 0 {
		return errors.New("engine.order_max_retries must be >= 0")
	}
	if c.Engine.MaxSlippageCents < 0 {
		return errors.New("engine.max_slippage_cents must be >= 0")
	}
	if c.Engine.MaxBankroll < 0 {
		return errors.New("engine.max_bankroll must be >= 0")
	}

	if c.Control.Port < 1 || c.Control.Port > 65535 {
		return fmt.Errorf("control.port must be between 1 and 65535, got %d", c.Control.Port)
	}

	if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == "" {
		return errors.New("notify.telegram_chat_id is required when telegram_token is set")
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
