package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromDefaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 720*time.Hour, cfg.Session.MaxAge)
	assert.Equal(t, LedgerMemory, cfg.Ledger.Storage)
	assert.Equal(t, "(default)", cfg.Ledger.Database)
	assert.Equal(t, 5.0, cfg.RateLimit.PerSecond)
	assert.Equal(t, 20, cfg.RateLimit.Burst)
	assert.Zero(t, cfg.RateLimit.TrustedProxies)
	assert.False(t, cfg.IdentityConfigured())
}

func TestLoadFromNormalizes(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"SUPABASE_URL":      " https://abcd.supabase.co/ ",
		"SUPABASE_ANON_KEY": "anon",
		"ADMIN_EMAILS":      "Admin@Example.com, ops@example.com,,",
		"ALLOWED_ORIGINS":   "https://example.com/, ,http://localhost:3000",
		"LEDGER_STORAGE":    "Firestore",
		"HTTP_TIMEOUT":      "3s",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://abcd.supabase.co", cfg.Identity.URL)
	assert.True(t, cfg.IdentityConfigured())
	assert.Equal(t, []string{"admin@example.com", "ops@example.com"}, cfg.AdminEmails)
	assert.Equal(t, []string{"https://example.com", "http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, LedgerFirestore, cfg.Ledger.Storage)
	assert.Equal(t, 3*time.Second, cfg.HTTPTimeout)
}

func TestLoadFromParseError(t *testing.T) {
	_, err := LoadFrom(map[string]string{"HTTP_TIMEOUT": "soon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestLoad(t *testing.T) {
	t.Setenv("BID_FRONT_ADDR", ":9999")
	t.Setenv("SUPABASE_URL", "https://ref.supabase.co")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, "https://ref.supabase.co", cfg.Identity.URL)
}

func TestSessionCookieName(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"explicit", Config{Session: SessionConfig{CookieName: "custom"}}, "custom"},
		{"identity project ref is not borrowed", Config{Identity: IdentityConfig{URL: "https://abcd.supabase.co"}}, ""},
		{"unset", Config{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.SessionCookieName())
		})
	}
}

func validConfig() Config {
	return Config{
		Addr:        ":8080",
		HTTPTimeout: 10 * time.Second,
		Identity:    IdentityConfig{URL: "https://ref.supabase.co", AnonKey: "anon"},
		Session:     SessionConfig{MaxAge: time.Hour, EncryptionKey: "0123456789abcdef0123456789abcdef"},
		Ledger:      LedgerConfig{Storage: LedgerMemory},
		RateLimit:   RateLimitConfig{PerSecond: 5, Burst: 20},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		wantError   string
		wantWarning string
	}{
		{name: "valid"},
		{
			name:        "missing identity is a warning",
			mutate:      func(c *Config) { c.Identity = IdentityConfig{} },
			wantWarning: "SUPABASE_URL",
		},
		{
			name:        "missing anon key is a warning",
			mutate:      func(c *Config) { c.Identity.AnonKey = "" },
			wantWarning: "SUPABASE_ANON_KEY",
		},
		{
			name:      "relative identity url",
			mutate:    func(c *Config) { c.Identity.URL = "ref.supabase.co" },
			wantError: "SUPABASE_URL",
		},
		{
			name:        "bad site url falls back",
			mutate:      func(c *Config) { c.SiteURL = "example.com" },
			wantWarning: "SITE_URL",
		},
		{
			name:      "short encryption key",
			mutate:    func(c *Config) { c.Session.EncryptionKey = "short" },
			wantError: "SESSION_ENCRYPTION_KEY",
		},
		{
			name:        "no encryption key",
			mutate:      func(c *Config) { c.Session.EncryptionKey = "" },
			wantWarning: "SESSION_ENCRYPTION_KEY",
		},
		{
			name:      "firestore needs project",
			mutate:    func(c *Config) { c.Ledger = LedgerConfig{Storage: LedgerFirestore, Collection: "x"} },
			wantError: "GCP_PROJECT",
		},
		{
			name:      "unknown ledger",
			mutate:    func(c *Config) { c.Ledger.Storage = "redis" },
			wantError: "LEDGER_STORAGE",
		},
		{
			name:      "bad upstream",
			mutate:    func(c *Config) { c.UpstreamURL = "/app" },
			wantError: "UPSTREAM_URL",
		},
		{
			name:      "bad allowed origin",
			mutate:    func(c *Config) { c.AllowedOrigins = []string{"example.com"} },
			wantError: "ALLOWED_ORIGINS[0]",
		},
		{
			name:      "zero rate",
			mutate:    func(c *Config) { c.RateLimit.PerSecond = 0 },
			wantError: "CALLBACK_RATE_LIMIT",
		},
		{
			name:      "negative trusted proxies",
			mutate:    func(c *Config) { c.RateLimit.TrustedProxies = -1 },
			wantError: "TRUSTED_PROXY_COUNT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			result := Validate(&cfg)

			if tt.wantError == "" {
				assert.True(t, result.IsValid(), "unexpected errors: %+v", result.Errors)
				assert.NoError(t, result.Err())
			} else {
				require.False(t, result.IsValid())
				assert.Equal(t, tt.wantError, result.Errors[0].Path)
				assert.ErrorContains(t, result.Err(), tt.wantError)
			}

			if tt.wantWarning != "" {
				var paths []string
				for _, w := range result.Warnings {
					paths = append(paths, w.Path)
				}
				assert.Contains(t, paths, tt.wantWarning)
			}
		})
	}
}
