package config

import "time"

// Config is the root configuration for a trader instance.
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	API      APIConfig      `yaml:"api"`
	Database DatabaseConfig `yaml:"database"`
	Signals  SignalsConfig  `yaml:"signals"`
	Engine   EngineConfig   `yaml:"engine"`
	Control  ControlConfig  `yaml:"control"`
	Notify   NotifyConfig   `yaml:"notify"`
}

// InstanceConfig identifies this trader.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// APIConfig holds Kalshi API settings.
type APIConfig struct {
	RestURL        string        `yaml:"rest_url"`
	APIKey         string        `yaml:"api_key"`          // API key ID (for KALSHI-ACCESS-KEY header)
	PrivateKeyPath string        `yaml:"private_key_path"` // Path to RSA private key PEM file
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
}

// DatabaseConfig holds the Postgres connection for trader state.
type DatabaseConfig struct {
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// SignalsConfig holds the Redis Streams signal feed settings.
type SignalsConfig struct {
	RedisURL  string `yaml:"redis_url"`
	Stream    string `yaml:"stream"`
	Group     string `yaml:"group"`
	Consumer  string `yaml:"consumer"` // defaults to instance id
	QueueSize int    `yaml:"queue_size"`
}

// EngineConfig holds decision-cycle and order-lifecycle settings.
type EngineConfig struct {
	CycleInterval     time.Duration `yaml:"cycle_interval"`
	QuoteConcurrency  int           `yaml:"quote_concurrency"`
	QuoteTimeout      time.Duration `yaml:"quote_timeout"`
	OrderPollInterval time.Duration `yaml:"order_poll_interval"`
	OrderMaxRetries   int           `yaml:"order_max_retries"`
	OrderRetryBackoff time.Duration `yaml:"order_retry_backoff"`
	MaxSlippageCents  int           `yaml:"max_slippage_cents"`
	MaxBankroll       float64       `yaml:"max_bankroll"` // dollars deployable; 0 = full exchange balance
	AutoStart         bool          `yaml:"auto_start"`
}

// ControlConfig holds the control-plane HTTP server settings.
type ControlConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// NotifyConfig holds Telegram notification settings. Notifications are
// disabled when the bot token is empty.
type NotifyConfig struct {
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID string `yaml:"telegram_chat_id"`
	PerMinute      int    `yaml:"per_minute"`
}
