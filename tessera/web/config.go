// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

// Package web runs the HTTP API server: routing, authentication,
// rate limiting and the middleware every request passes through.
package web

// Config holds the server settings.
type Config struct {
	// Address is the listen address, e.g. ":8080".
	Address string `mapstructure:"listen_addr"`
	// Environment is one of development, test, production. Production
	// enables HSTS.
	Environment string `mapstructure:"environment"`
	// BootstrapAPIKey grants full access before any team key exists.
	// Empty disables it.
	BootstrapAPIKey string `mapstructure:"bootstrap_api_key"`
	// AuthDisabled turns every request into an admin request. Never
	// set outside development.
	AuthDisabled bool `mapstructure:"auth_disabled"`
	// SessionSecret signs browser session cookies. Empty disables
	// cookie auth.
	SessionSecret string `mapstructure:"session_secret"`
	// RateLimitEnabled toggles per-caller throttling.
	RateLimitEnabled bool `mapstructure:"rate_limit_enabled"`
	// RateLimitPerMinute is the sustained request budget per caller.
	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute"`
	// GitSyncPath is the directory the sync push/pull endpoints use.
	GitSyncPath string `mapstructure:"git_sync_path"`
	// Version is reported by the health endpoint.
	Version string `mapstructure:"-"`
}
