package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// IdentityUser is a user known to the fake identity service.
type IdentityUser struct {
	ID       string
	Email    string
	Provider string
	Name     string
}

type issuedToken struct {
	userID  string
	expires time.Time
}

type authCode struct {
	verifier string
	userID   string
}

// IdentityServer is an in-memory stand-in for the identity service's REST auth
// API. Refresh tokens rotate on use, auth codes are single-use.
type IdentityServer struct {
	*httptest.Server

	AnonKey string

	mu         sync.Mutex
	users      map[string]IdentityUser
	access     map[string]issuedToken
	refresh    map[string]string
	codes      map[string]authCode
	calls      map[string]int
	failStatus int
	seq        int
}

// NewIdentityServer starts a fake identity service and closes it when t ends.
func NewIdentityServer(t *testing.T) *IdentityServer {
	t.Helper()
	s := &IdentityServer{
		AnonKey: "anon-key",
		users:   make(map[string]IdentityUser),
		access:  make(map[string]issuedToken),
		refresh: make(map[string]string),
		codes:   make(map[string]authCode),
		calls:   make(map[string]int),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/v1/user", s.handleUser)
	mux.HandleFunc("POST /auth/v1/token", s.handleToken)
	mux.HandleFunc("POST /auth/v1/logout", s.handleLogout)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *IdentityServer) AddUser(u IdentityUser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// IssueSession mints an access/refresh pair for userID. A non-positive ttl
// yields an access token that is already expired.
func (s *IdentityServer) IssueSession(userID string, ttl time.Duration) (accessToken, refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(userID, ttl)
}

// AddAuthCode registers a PKCE auth code redeemable with verifier.
func (s *IdentityServer) AddAuthCode(code, verifier, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[code] = authCode{verifier: verifier, userID: userID}
}

// AddRefreshToken registers a refresh token without an access token, the way
// a broker function hands one over.
func (s *IdentityServer) AddRefreshToken(token, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh[token] = userID
}

// RevokeAccess makes the identity service reject accessToken.
func (s *IdentityServer) RevokeAccess(accessToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.access, accessToken)
}

// FailWith makes every subsequent call answer status. Zero restores normal behavior.
func (s *IdentityServer) FailWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStatus = status
}

// Calls returns how often an endpoint was hit, keyed like "user",
// "token:refresh_token", "token:pkce" or "logout".
func (s *IdentityServer) Calls(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[key]
}

func (s *IdentityServer) issueLocked(userID string, ttl time.Duration) (string, string) {
	s.seq++
	access := fmt.Sprintf("access-%d", s.seq)
	refresh := fmt.Sprintf("refresh-%d", s.seq)
	s.access[access] = issuedToken{userID: userID, expires: time.Now().Add(ttl)}
	s.refresh[refresh] = userID
	return access, refresh
}

func (s *IdentityServer) begin(w http.ResponseWriter, r *http.Request, key string) bool {
	s.calls[key]++
	if s.failStatus != 0 {
		writeJSON(w, s.failStatus, map[string]any{"code": s.failStatus, "msg": "forced failure"})
		return false
	}
	if r.Header.Get("apikey") != s.AnonKey {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Invalid API key"})
		return false
	}
	return true
}

func (s *IdentityServer) handleUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.begin(w, r, "user") {
		return
	}
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	issued, ok := s.access[token]
	if !ok || time.Now().After(issued.expires) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"code": 401, "error_code": "bad_jwt", "msg": "invalid JWT",
		})
		return
	}
	writeJSON(w, http.StatusOK, s.userJSON(issued.userID))
}

func (s *IdentityServer) handleToken(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	grant := r.URL.Query().Get("grant_type")
	if !s.begin(w, r, "token:"+grant) {
		return
	}

	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error_code": "bad_json", "msg": err.Error()})
		return
	}

	var userID string
	switch grant {
	case "refresh_token":
		id, ok := s.refresh[body["refresh_token"]]
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"code": 400, "error_code": "refresh_token_not_found", "msg": "Invalid Refresh Token: Refresh Token Not Found",
			})
			return
		}
		delete(s.refresh, body["refresh_token"])
		userID = id
	case "pkce":
		code, ok := s.codes[body["auth_code"]]
		if !ok || code.verifier != body["code_verifier"] {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"code": 400, "error_code": "flow_state_not_found", "msg": "invalid flow state, no valid flow state found",
			})
			return
		}
		delete(s.codes, body["auth_code"])
		userID = code.userID
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error_code": "unsupported_grant_type"})
		return
	}

	access, refresh := s.issueLocked(userID, time.Hour)
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  access,
		"token_type":    "bearer",
		"expires_in":    3600,
		"expires_at":    time.Now().Add(time.Hour).Unix(),
		"refresh_token": refresh,
		"user":          s.userJSON(userID),
	})
}

func (s *IdentityServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.begin(w, r, "logout") {
		return
	}
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	delete(s.access, token)
	w.WriteHeader(http.StatusNoContent)
}

func (s *IdentityServer) userJSON(userID string) map[string]any {
	u := s.users[userID]
	if u.ID == "" {
		u.ID = userID
	}
	return map[string]any{
		"id":    u.ID,
		"email": u.Email,
		"app_metadata": map[string]any{
			"provider": u.Provider,
		},
		"user_metadata": map[string]any{
			"full_name": u.Name,
		},
		"last_sign_in_at": time.Now().UTC().Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
