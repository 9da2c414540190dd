package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. RK_QUOTE_API_GRPC_PORT.
const EnvPrefix = "RK"

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*QuoteAPIConfig, error) {
	v := viper.New()

	d := DefaultQuoteAPIConfig()
	v.SetDefault("quote_api.host", d.Host)
	v.SetDefault("quote_api.grpc_port", d.GRPCPort)
	v.SetDefault("quote_api.http_port", d.HTTPPort)
	v.SetDefault("quote_api.request_timeout", d.RequestTimeout.String())
	v.SetDefault("quote_api.max_request_bytes", d.MaxRequestBytes)
	v.SetDefault("quote_api.compile_cache_size", d.CompileCacheSize)
	v.SetDefault("quote_api.persist_quotes", d.PersistQuotes)
	v.SetDefault("quote_api.insurance_fallback", d.InsuranceFallback)
	v.SetDefault("database.url", "")

	// Bind environment variables with RK_ prefix
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Credentials must come from the environment or a flag, never a file.
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	cfg := &QuoteAPIConfig{
		Host:              v.GetString("quote_api.host"),
		GRPCPort:          v.GetInt("quote_api.grpc_port"),
		HTTPPort:          v.GetInt("quote_api.http_port"),
		RequestTimeout:    v.GetDuration("quote_api.request_timeout"),
		MaxRequestBytes:   v.GetInt("quote_api.max_request_bytes"),
		CompileCacheSize:  v.GetInt("quote_api.compile_cache_size"),
		PersistQuotes:     v.GetBool("quote_api.persist_quotes"),
		InsuranceFallback: v.GetBool("quote_api.insurance_fallback"),
		DatabaseURL:       v.GetString("database.url"),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig checks port ranges and positive limits.
func validateConfig(cfg *QuoteAPIConfig) error {
	if cfg.GRPCPort <= 0 || cfg.GRPCPort > 65535 {
		return fmt.Errorf("grpc_port must be between 1 and 65535, got %d", cfg.GRPCPort)
	}
	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be between 1 and 65535, got %d", cfg.HTTPPort)
	}
	if cfg.GRPCPort == cfg.HTTPPort {
		return fmt.Errorf("grpc_port and http_port must differ, both %d", cfg.GRPCPort)
	}
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.RequestTimeout)
	}
	if cfg.MaxRequestBytes <= 0 {
		return fmt.Errorf("max_request_bytes must be positive, got %d", cfg.MaxRequestBytes)
	}
	if cfg.CompileCacheSize <= 0 {
		return fmt.Errorf("compile_cache_size must be positive, got %d", cfg.CompileCacheSize)
	}
	return nil
}

// validateNoSecretsInConfig rejects a database password read from a config
// file. The environment variable wins over the file, so a file value only
// matters when RK_DATABASE_URL is unset.
func validateNoSecretsInConfig(v *viper.Viper) error {
	if !v.InConfig("database.url") || os.Getenv(EnvPrefix+"_DATABASE_URL") != "" {
		return nil
	}
	if urlHasPassword(v.GetString("database.url")) {
		return fmt.Errorf("database passwords not allowed in config files (use %s_DATABASE_URL environment variable or --db-url)", EnvPrefix)
	}
	return nil
}
