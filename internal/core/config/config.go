// Package config provides configuration management for ratekeeper services.
package config

import (
	"net/url"
	"time"
)

// QuoteAPIConfig holds configuration for the gRPC and HTTP quote API.
type QuoteAPIConfig struct {
	Host              string
	GRPCPort          int
	HTTPPort          int
	RequestTimeout    time.Duration
	MaxRequestBytes   int
	CompileCacheSize  int
	PersistQuotes     bool
	InsuranceFallback bool
	DatabaseURL       string
}

// DefaultQuoteAPIConfig returns configuration with default values.
func DefaultQuoteAPIConfig() *QuoteAPIConfig {
	return &QuoteAPIConfig{
		Host:              "0.0.0.0",
		GRPCPort:          50051,
		HTTPPort:          8080,
		RequestTimeout:    5 * time.Second,
		MaxRequestBytes:   1024 * 1024,
		CompileCacheSize:  256,
		PersistQuotes:     false,
		InsuranceFallback: false,
	}
}

// urlHasPassword reports whether a database URL embeds a password.
// Plain file paths (sqlite) never do.
func urlHasPassword(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return false
	}
	_, ok := u.User.Password()
	return ok
}
