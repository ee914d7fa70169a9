package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgellow/bid-front/internal/ioutil"
	"github.com/dgellow/bid-front/internal/log"
	"github.com/dgellow/bid-front/internal/urlutil"
)

// ErrUnauthorized means the identity service rejected the credential outright:
// an expired or revoked access token, an unknown refresh token, a spent auth code.
// Transport failures and 5xx responses never match it.
var ErrUnauthorized = errors.New("identity service rejected credentials")

const errorBodyLimit = 1024

// APIError is a non-2xx answer from the identity service.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("identity service returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("identity service returned %d: %s", e.StatusCode, e.Message)
}

// Is reports 400, 401 and 403 as ErrUnauthorized; the token endpoint answers
// an invalid grant with 400.
func (e *APIError) Is(target error) bool {
	if target != ErrUnauthorized {
		return false
	}
	switch e.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return false
}

type errorBody struct {
	ErrorCode        string `json:"error_code"`
	Error            string `json:"error"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrorDescription string `json:"error_description"`
}

// Client talks to the identity service's REST auth API.
type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a client for the identity service at baseURL. anonKey is
// sent as the apikey header on every call.
func NewClient(baseURL, anonKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
		httpClient: httpClient,
		now:        time.Now,
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) AnonKey() string { return c.anonKey }

// HTTPClient returns the client used for identity calls, so the broker exchange
// shares its timeout.
func (c *Client) HTTPClient() *http.Client { return c.httpClient }

// AuthorizeURL is where a browser starts a native provider login.
func (c *Client) AuthorizeURL(provider NativeProvider, redirectTo, codeChallenge string) (string, error) {
	endpoint, err := urlutil.JoinPath(c.baseURL, "auth/v1/authorize")
	if err != nil {
		return "", fmt.Errorf("building authorize url: %w", err)
	}
	q := url.Values{}
	q.Set("provider", string(provider))
	q.Set("redirect_to", redirectTo)
	q.Set("code_challenge", codeChallenge)
	q.Set("code_challenge_method", "s256")
	return endpoint + "?" + q.Encode(), nil
}

// GetUser returns the user owning accessToken.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "auth/v1/user", nil, nil, accessToken, &user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, fmt.Errorf("user response without id")
	}
	return &user, nil
}

// RefreshSession trades a refresh token for a new session.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh: %w", ErrUnauthorized)
	}
	return c.grant(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
}

// ExchangeCodeForSession completes a PKCE authorization-code login.
func (c *Client) ExchangeCodeForSession(ctx context.Context, authCode, codeVerifier string) (*Session, error) {
	return c.grant(ctx, "pkce", map[string]string{
		"auth_code":     authCode,
		"code_verifier": codeVerifier,
	})
}

// SignOut revokes the session behind accessToken. A rejected token already
// counts as signed out.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	err := c.do(ctx, http.MethodPost, "auth/v1/logout", nil, nil, accessToken, nil)
	if errors.Is(err, ErrUnauthorized) {
		return nil
	}
	return err
}

func (c *Client) grant(ctx context.Context, grantType string, body map[string]string) (*Session, error) {
	var resp tokenResponse
	q := url.Values{"grant_type": {grantType}}
	if err := c.do(ctx, http.MethodPost, "auth/v1/token", q, body, "", &resp); err != nil {
		return nil, err
	}
	return resp.session(c.now())
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, bearer string, out any) error {
	endpoint, err := urlutil.JoinPath(c.baseURL, path)
	if err != nil {
		return fmt.Errorf("building %s url: %w", path, err)
	}
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", path, err)
		}
		reqBody = bytes.NewReader(b)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("creating %s request: %w", path, err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		raw := ioutil.ReadLimited(resp.Body, errorBodyLimit)
		var eb errorBody
		if json.Unmarshal([]byte(raw), &eb) == nil {
			apiErr.Code = firstNonEmpty(eb.ErrorCode, eb.Error)
			apiErr.Message = firstNonEmpty(eb.Msg, eb.Message, eb.ErrorDescription)
		}
		if apiErr.Message == "" {
			apiErr.Message = raw
		}
		log.LogDebugWithFields("idp", "Identity service call failed", map[string]any{
			"path":   path,
			"status": resp.StatusCode,
			"code":   apiErr.Code,
		})
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
