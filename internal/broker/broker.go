// Package broker drives logins for providers the identity service cannot
// proxy itself. A "{provider}-oauth" function runs the provider's OAuth dance
// and redirects back with a single-use exchange code; "{provider}-oauth-complete"
// redeems that code for a refresh token.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/dgellow/bid-front/internal/idp"
	"github.com/dgellow/bid-front/internal/ioutil"
	"github.com/dgellow/bid-front/internal/log"
	"github.com/dgellow/bid-front/internal/urlutil"
)

var (
	ErrInvalidWebOriginProtocol = errors.New("invalid_web_origin_protocol")
	ErrInvalidWebOrigin         = errors.New("invalid_web_origin")
	ErrCompleteFailed           = errors.New("broker_complete_failed")
	ErrInvalidResponse          = errors.New("broker_complete_invalid_response")
	ErrRequestFailed            = errors.New("broker_complete_request_failed")
)

const responseBodyLimit = 64 << 10

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type StartParams struct {
	BaseURL   string
	Provider  idp.BrokerProvider
	WebOrigin string
	ReturnTo  string
}

// BuildStartURL returns the URL that starts a broker login. The query is
// assembled by hand so the parameter order stays login_type, web_origin,
// return_to.
func BuildStartURL(p StartParams) (string, error) {
	origin, err := url.Parse(p.WebOrigin)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidWebOrigin, err)
	}
	if origin.Scheme != "http" && origin.Scheme != "https" {
		return "", ErrInvalidWebOriginProtocol
	}
	if origin.Host == "" {
		return "", ErrInvalidWebOrigin
	}

	base := strings.TrimRight(p.BaseURL, "/")
	returnTo := urlutil.SanitizeReturnToDefault(p.ReturnTo)

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("/functions/v1/")
	b.WriteString(url.PathEscape(string(p.Provider)))
	b.WriteString("-oauth?login_type=web&web_origin=")
	b.WriteString(url.QueryEscape(origin.Scheme + "://" + origin.Host))
	b.WriteString("&return_to=")
	b.WriteString(url.QueryEscape(returnTo))
	return b.String(), nil
}

type ExchangeParams struct {
	BaseURL      string
	AnonKey      string
	Provider     idp.BrokerProvider
	ExchangeCode string
}

type completeRequest struct {
	ExchangeCode string `json:"exchange_code"`
}

type completeResponse struct {
	Success      bool   `json:"success"`
	RefreshToken string `json:"refresh_token"`
	Error        string `json:"error"`
}

// ExchangeCode redeems a broker exchange code and returns the refresh token.
// The caller installs the token through the identity service's refresh grant;
// it is never stored as is.
func ExchangeCode(ctx context.Context, p ExchangeParams, doer Doer) (string, error) {
	endpoint := strings.TrimRight(p.BaseURL, "/") + "/functions/v1/" + url.PathEscape(string(p.Provider)) + "-oauth-complete"

	body, err := json.Marshal(completeRequest{ExchangeCode: p.ExchangeCode})
	if err != nil {
		return "", fmt.Errorf("%w:%s: %v", ErrRequestFailed, p.Provider, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w:%s: %v", ErrRequestFailed, p.Provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", p.AnonKey)
	req.Header.Set("Authorization", "Bearer "+p.AnonKey)

	resp, err := doer.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w:%s: %w", ErrRequestFailed, p.Provider, err)
	}
	defer resp.Body.Close()

	raw := ioutil.ReadLimited(resp.Body, responseBodyLimit)
	var payload completeResponse
	decodeErr := json.Unmarshal([]byte(raw), &payload)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reason := payload.Error
		if decodeErr != nil || reason == "" {
			reason = fmt.Sprintf("http_%d", resp.StatusCode)
		}
		log.LogWarnWithFields("broker", "Exchange code rejected", map[string]any{
			"provider": string(p.Provider),
			"status":   resp.StatusCode,
			"reason":   reason,
		})
		return "", fmt.Errorf("%w:%s:%s", ErrCompleteFailed, p.Provider, reason)
	}

	if decodeErr != nil || !payload.Success || payload.RefreshToken == "" {
		return "", fmt.Errorf("%w:%s", ErrInvalidResponse, p.Provider)
	}
	return payload.RefreshToken, nil
}
