// Package api exposes the retrieval core over HTTP: owner-scoped
// embedding and search endpoints, plus the explicit administrative
// surface for unscoped search and index maintenance.
package api

import "time"

// RateLimitConfig configures per-credential request rate limiting
type RateLimitConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	PerSecond float64 `mapstructure:"per_second"`
	Burst     int     `mapstructure:"burst"`
}

// Config holds HTTP server configuration. APIKeys maps each caller
// credential to the single owner it may act as; AdminAPIKey unlocks the
// administrative route group. JWTSecret optionally enables bearer
// tokens whose owner_id claim selects the owner.
type Config struct {
	ListenAddress string            `mapstructure:"listen_address"`
	ReadTimeout   time.Duration     `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration     `mapstructure:"write_timeout"`
	IdleTimeout   time.Duration     `mapstructure:"idle_timeout"`
	BasePath      string            `mapstructure:"base_path"`
	APIKeys       map[string]string `mapstructure:"api_keys"`
	AdminAPIKey   string            `mapstructure:"admin_api_key"`
	JWTSecret     string            `mapstructure:"jwt_secret"`
	RateLimit     RateLimitConfig   `mapstructure:"rate_limit"`
}
