package store

import (
	"net"
	"net/url"
	"strconv"

	"github.com/rickgao/kalshi-trader/internal/config"
)

// connString renders the pgx connection URL. Credentials pass through
// url.URL so passwords with reserved characters survive; pool sizing is
// applied programmatically in New, not here.
func connString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Name,
		RawQuery: "sslmode=" + sslMode,
	}
	return u.String()
}
