package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/rickgao/papertrade/internal/config"
)

// BuildConnString returns the postgres:// URL for cfg. User and password are
// escaped as URL userinfo; sslmode falls back to "prefer".
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Name,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	return u.String()
}
