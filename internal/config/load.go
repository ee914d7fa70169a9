package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/dgellow/bid-front/internal/emailutil"
)

// Load reads the configuration from the process environment
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	normalize(&cfg)
	return cfg, nil
}

// LoadFrom reads the configuration from environ instead of the process environment
func LoadFrom(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	normalize(&cfg)
	return cfg, nil
}

func normalize(cfg *Config) {
	cfg.Identity.URL = strings.TrimRight(strings.TrimSpace(cfg.Identity.URL), "/")
	cfg.Identity.AnonKey = Secret(strings.TrimSpace(string(cfg.Identity.AnonKey)))
	cfg.SiteURL = strings.TrimSpace(cfg.SiteURL)
	cfg.UpstreamURL = strings.TrimRight(strings.TrimSpace(cfg.UpstreamURL), "/")
	cfg.AdminEmails = emailutil.NormalizeList(cfg.AdminEmails)
	cfg.Ledger.Storage = LedgerStorage(strings.ToLower(strings.TrimSpace(string(cfg.Ledger.Storage))))

	origins := cfg.AllowedOrigins[:0]
	for _, o := range cfg.AllowedOrigins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			origins = append(origins, o)
		}
	}
	cfg.AllowedOrigins = origins
}
