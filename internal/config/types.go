package config

import (
	"encoding/json"
	"time"
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// LedgerStorage selects the sign-in ledger backend
type LedgerStorage string

const (
	LedgerMemory    LedgerStorage = "memory"
	LedgerFirestore LedgerStorage = "firestore"
)

// IdentityConfig points at the managed identity service
type IdentityConfig struct {
	URL     string `env:"SUPABASE_URL" json:"url"`
	AnonKey Secret `env:"SUPABASE_ANON_KEY" json:"anonKey"`
}

// SessionConfig controls the session cookie
type SessionConfig struct {
	CookieName    string        `env:"SESSION_COOKIE_NAME" json:"cookieName"`
	EncryptionKey Secret        `env:"SESSION_ENCRYPTION_KEY" json:"encryptionKey"`
	MaxAge        time.Duration `env:"SESSION_MAX_AGE" envDefault:"720h" json:"maxAge"`
}

// LedgerConfig selects where sign-ins are recorded
type LedgerConfig struct {
	Storage    LedgerStorage `env:"LEDGER_STORAGE" envDefault:"memory" json:"storage"`
	GCPProject string        `env:"GCP_PROJECT" json:"gcpProject,omitempty"`
	Database   string        `env:"FIRESTORE_DATABASE" envDefault:"(default)" json:"database,omitempty"`
	Collection string        `env:"FIRESTORE_COLLECTION" envDefault:"bid_front_sign_ins" json:"collection,omitempty"`
}

// RateLimitConfig bounds login and callback traffic per client IP
type RateLimitConfig struct {
	PerSecond float64 `env:"CALLBACK_RATE_LIMIT" envDefault:"5" json:"perSecond"`
	Burst     int     `env:"CALLBACK_RATE_BURST" envDefault:"20" json:"burst"`

	// TrustedProxies counts the proxies in front of the service that append
	// to X-Forwarded-For. Zero keys clients on the socket address.
	TrustedProxies int `env:"TRUSTED_PROXY_COUNT" envDefault:"0" json:"trustedProxies"`
}

// Config is the whole runtime configuration, read from the environment once at start
type Config struct {
	Addr           string        `env:"BID_FRONT_ADDR" envDefault:":8080" json:"addr"`
	Env            string        `env:"BID_FRONT_ENV" envDefault:"production" json:"env"`
	SiteURL        string        `env:"SITE_URL" json:"siteURL,omitempty"`
	UpstreamURL    string        `env:"UPSTREAM_URL" json:"upstreamURL,omitempty"`
	AdminEmails    []string      `env:"ADMIN_EMAILS" envSeparator:"," json:"adminEmails,omitempty"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envSeparator:"," json:"allowedOrigins,omitempty"`
	HTTPTimeout    time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s" json:"httpTimeout"`

	Identity  IdentityConfig  `json:"identity"`
	Session   SessionConfig   `json:"session"`
	Ledger    LedgerConfig    `json:"ledger"`
	RateLimit RateLimitConfig `json:"rateLimit"`
}

// IdentityConfigured reports whether the identity service can be reached.
// Without it the edge gate lets every request through.
func (c *Config) IdentityConfigured() bool {
	return c.Identity.URL != "" && c.Identity.AnonKey != ""
}

// SessionCookieName returns the configured cookie name, or "" for the jar's
// default. The cookie holds bid-front's own encoding of the session and is
// never shared with the identity service's browser SDK.
func (c *Config) SessionCookieName() string {
	return c.Session.CookieName
}
