// Package loginflow builds the URLs that carry return path and error state
// across the login redirects, and the messages the login page shows.
package loginflow

import (
	"net/url"
	"strings"

	"github.com/dgellow/bid-front/internal/idp"
	"github.com/dgellow/bid-front/internal/urlutil"
)

// ErrorCode is a user-facing login failure category. Upstream details never
// reach the browser; they collapse into one of these.
type ErrorCode string

const (
	ErrOAuthFailed       ErrorCode = "oauth_failed"
	ErrMissingCode       ErrorCode = "missing_code"
	ErrBrokerFailed      ErrorCode = "broker_failed"
	ErrBrokerUnavailable ErrorCode = "broker_unavailable"
)

const (
	LoginPath    = "/login"
	CallbackPath = "/auth-callback"
)

type LoginParams struct {
	ReturnTo  string
	ErrorCode ErrorCode
	Provider  string
}

// BuildLoginHref returns /login?returnTo=...[&error=...][&provider=...].
func BuildLoginHref(p LoginParams) string {
	var b strings.Builder
	b.WriteString(LoginPath)
	b.WriteString("?returnTo=")
	b.WriteString(url.QueryEscape(urlutil.SanitizeReturnToDefault(p.ReturnTo)))
	if p.ErrorCode != "" {
		b.WriteString("&error=")
		b.WriteString(url.QueryEscape(string(p.ErrorCode)))
	}
	if p.Provider != "" {
		b.WriteString("&provider=")
		b.WriteString(url.QueryEscape(p.Provider))
	}
	return b.String()
}

// BuildCallbackURL returns the absolute redirect target handed to the identity
// service for a native login.
func BuildCallbackURL(origin, returnTo, provider string) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(origin, "/"))
	b.WriteString(CallbackPath)
	b.WriteString("?returnTo=")
	b.WriteString(url.QueryEscape(urlutil.SanitizeReturnToDefault(returnTo)))
	if provider != "" {
		b.WriteString("&provider=")
		b.WriteString(url.QueryEscape(provider))
	}
	return b.String()
}

// ProviderLabel returns a display name for any provider id.
func ProviderLabel(provider string) string {
	return idp.Label(provider)
}

// LoginErrorMessage returns the message for code, or false when there is
// nothing to show.
func LoginErrorMessage(code, provider string) (string, bool) {
	if code == "" {
		return "", false
	}
	label := ProviderLabel(provider)
	switch ErrorCode(code) {
	case ErrOAuthFailed:
		return label + " sign-in failed. Please try again.", true
	case ErrMissingCode:
		return label + " sign-in did not return an authorization code. Please try again.", true
	case ErrBrokerFailed:
		return label + " sign-in could not be completed. Please try again.", true
	case ErrBrokerUnavailable:
		return label + " sign-in is temporarily unavailable.", true
	default:
		return "Sign-in failed. Please try again.", true
	}
}
