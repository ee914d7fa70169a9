package config

import (
	"fmt"
	"net/url"
)

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

func (v *ValidationResult) addError(path, format string, args ...any) {
	v.Errors = append(v.Errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *ValidationResult) addWarning(path, format string, args ...any) {
	v.Warnings = append(v.Warnings, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

// Err returns the first error as an error value, or nil
func (v *ValidationResult) Err() error {
	if v.IsValid() {
		return nil
	}
	first := v.Errors[0]
	if len(v.Errors) == 1 {
		return fmt.Errorf("%s: %s", first.Path, first.Message)
	}
	return fmt.Errorf("%s: %s (and %d more)", first.Path, first.Message, len(v.Errors)-1)
}

// Validate checks cfg. A missing identity service is only a warning: the gate
// then runs open, which is what local development relies on.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	if cfg.Addr == "" {
		result.addError("BID_FRONT_ADDR", "listen address is required")
	}

	switch {
	case cfg.Identity.URL == "" && cfg.Identity.AnonKey == "":
		result.addWarning("SUPABASE_URL", "identity service not configured; every request will pass the edge gate unauthenticated")
	case cfg.Identity.URL == "":
		result.addWarning("SUPABASE_URL", "SUPABASE_ANON_KEY is set but SUPABASE_URL is not; the edge gate is disabled")
	case cfg.Identity.AnonKey == "":
		result.addWarning("SUPABASE_ANON_KEY", "SUPABASE_URL is set but SUPABASE_ANON_KEY is not; the edge gate is disabled")
	}
	if cfg.Identity.URL != "" && !isAbsoluteHTTP(cfg.Identity.URL) {
		result.addError("SUPABASE_URL", "must be an absolute http(s) URL, got %q", cfg.Identity.URL)
	}

	if cfg.SiteURL != "" && !isAbsoluteHTTP(cfg.SiteURL) {
		result.addWarning("SITE_URL", "not an absolute URL; redirects will use the request origin")
	}
	if cfg.UpstreamURL != "" && !isAbsoluteHTTP(cfg.UpstreamURL) {
		result.addError("UPSTREAM_URL", "must be an absolute http(s) URL, got %q", cfg.UpstreamURL)
	}
	for i, origin := range cfg.AllowedOrigins {
		if !isAbsoluteHTTP(origin) {
			result.addError(fmt.Sprintf("ALLOWED_ORIGINS[%d]", i), "must be an absolute http(s) origin, got %q", origin)
		}
	}
	if cfg.HTTPTimeout <= 0 {
		result.addError("HTTP_TIMEOUT", "must be positive")
	}

	if cfg.Session.MaxAge <= 0 {
		result.addError("SESSION_MAX_AGE", "must be positive")
	}
	switch n := len(cfg.Session.EncryptionKey); {
	case n == 0:
		result.addWarning("SESSION_ENCRYPTION_KEY", "not set; session cookies are encoded but not encrypted")
	case n != 32:
		result.addError("SESSION_ENCRYPTION_KEY", "must be exactly 32 bytes, got %d", n)
	}

	switch cfg.Ledger.Storage {
	case LedgerMemory:
	case LedgerFirestore:
		if cfg.Ledger.GCPProject == "" {
			result.addError("GCP_PROJECT", "required when LEDGER_STORAGE=firestore")
		}
		if cfg.Ledger.Collection == "" {
			result.addError("FIRESTORE_COLLECTION", "required when LEDGER_STORAGE=firestore")
		}
	default:
		result.addError("LEDGER_STORAGE", "unsupported storage %q - use 'memory' or 'firestore'", cfg.Ledger.Storage)
	}

	if cfg.RateLimit.PerSecond <= 0 {
		result.addError("CALLBACK_RATE_LIMIT", "must be positive")
	}
	if cfg.RateLimit.Burst <= 0 {
		result.addError("CALLBACK_RATE_BURST", "must be positive")
	}
	if cfg.RateLimit.TrustedProxies < 0 {
		result.addError("TRUSTED_PROXY_COUNT", "must not be negative")
	}

	if len(cfg.AdminEmails) > 0 && !cfg.IdentityConfigured() {
		result.addWarning("ADMIN_EMAILS", "admin allow-list has no effect while the identity service is not configured")
	}

	return result
}

func isAbsoluteHTTP(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
