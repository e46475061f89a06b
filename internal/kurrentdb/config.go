package kurrentdb

import (
	"net"
	"net/url"
	"strconv"

	"github.com/sos-villages/signalement/internal/shared/config"
)

// Config describes how to reach the event store node.
type Config struct {
	Address string
	User    *url.Userinfo
	TLS     bool
}

// FromConfig maps the application configuration onto a client Config.
// Credentials are only used when both username and password are set.
func FromConfig(cfg config.KurrentDBConfig) *Config {
	c := &Config{
		Address: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		TLS:     !cfg.Insecure,
	}
	if cfg.Username != "" && cfg.Password != "" {
		c.User = url.UserPassword(cfg.Username, cfg.Password)
	}
	return c
}

// ConnectionString renders the esdb:// URL understood by esdb.ParseConnectionString.
func (c *Config) ConnectionString() string {
	u := url.URL{Scheme: "esdb", User: c.User, Host: c.Address}
	if !c.TLS {
		u.RawQuery = "tls=false"
	}
	return u.String()
}
