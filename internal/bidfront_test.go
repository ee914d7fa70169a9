package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/dgellow/bid-front/internal/authsync"
	"github.com/dgellow/bid-front/internal/config"
	"github.com/dgellow/bid-front/internal/cookie"
	jsonwriter "github.com/dgellow/bid-front/internal/json"
	"github.com/dgellow/bid-front/internal/proxy"
	"github.com/dgellow/bid-front/internal/server"
	"github.com/dgellow/bid-front/internal/storage"
	"github.com/dgellow/bid-front/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upstreamHit struct {
	path   string
	userID string
}

type testApp struct {
	handler http.Handler
	jar     *cookie.Jar
	ledger  storage.Ledger
	hits    chan upstreamHit
}

func newTestApp(t *testing.T, identity *testutil.IdentityServer) *testApp {
	t.Helper()

	hits := make(chan upstreamHit, 16)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits <- upstreamHit{path: r.URL.RequestURI(), userID: r.Header.Get(proxy.HeaderUserID)}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("page"))
	}))
	t.Cleanup(upstream.Close)

	cfg := config.Config{
		Addr:        ":0",
		SiteURL:     "https://bid.example.com",
		UpstreamURL: upstream.URL,
		AdminEmails: []string{"admin@example.com"},
		HTTPTimeout: 5 * time.Second,
		Session:     config.SessionConfig{MaxAge: time.Hour},
		Ledger:      config.LedgerConfig{Storage: config.LedgerMemory},
		RateLimit:   config.RateLimitConfig{PerSecond: 100, Burst: 100},
	}
	if identity != nil {
		cfg.Identity = config.IdentityConfig{URL: identity.URL, AnonKey: config.Secret(identity.AnonKey)}
	}

	jar, err := setupCookieJar(cfg)
	require.NoError(t, err)
	ledger, err := setupLedger(context.Background(), cfg)
	require.NoError(t, err)
	hub := authsync.NewHub()
	t.Cleanup(hub.Close)

	handler, err := buildHTTPHandler(cfg, jar, setupSessions(cfg, jar), hub, ledger,
		server.NewRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst, cfg.RateLimit.TrustedProxies))
	require.NoError(t, err)

	return &testApp{handler: handler, jar: jar, ledger: ledger, hits: hits}
}

func (a *testApp) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

func (a *testApp) nextHit(t *testing.T) upstreamHit {
	t.Helper()
	select {
	case hit := <-a.hits:
		return hit
	case <-time.After(2 * time.Second):
		t.Fatal("upstream was not called")
		return upstreamHit{}
	}
}

func responseCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestGateScenarios(t *testing.T) {
	identity := testutil.NewIdentityServer(t)
	app := newTestApp(t, identity)

	t.Run("anonymous protected page", func(t *testing.T) {
		w := app.do(httptest.NewRequest(http.MethodGet, "/challenge/ranking?tab=weekly", nil))
		assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
		assert.Equal(t, "/login?returnTo=%2Fchallenge%2Franking%3Ftab%3Dweekly", w.Header().Get("Location"))
	})

	t.Run("anonymous protected api", func(t *testing.T) {
		w := app.do(httptest.NewRequest(http.MethodPost, "/api/bookmarks/toggle", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		var body jsonwriter.AuthRequiredResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "AUTH_REQUIRED", body.Code)
		assert.NotEmpty(t, body.Error.RequestID)
		assert.Equal(t, body.Error.RequestID, w.Header().Get("x-request-id"))
	})

	t.Run("anonymous public listing", func(t *testing.T) {
		w := app.do(httptest.NewRequest(http.MethodGet, "/bid_notice", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		hit := app.nextHit(t)
		assert.Equal(t, "/bid_notice", hit.path)
		assert.Empty(t, hit.userID)
	})

	t.Run("health", func(t *testing.T) {
		w := app.do(httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	})

	t.Run("every response carries a device cookie", func(t *testing.T) {
		w := app.do(httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.NotNil(t, responseCookie(w, cookie.DeviceCookie))
	})
}

func TestNativeLoginRoundTrip(t *testing.T) {
	identity := testutil.NewIdentityServer(t)
	identity.AddUser(testutil.IdentityUser{ID: "u1", Email: "kim@example.com", Provider: "google"})
	app := newTestApp(t, identity)

	start := app.do(httptest.NewRequest(http.MethodGet, "/auth/login/google?returnTo=%2Fchallenge%2Franking%3Ftab%3Dweekly", nil))
	require.Equal(t, http.StatusFound, start.Code)
	authorize, err := url.Parse(start.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "https://bid.example.com/auth-callback?returnTo=%2Fchallenge%2Franking%3Ftab%3Dweekly&provider=google",
		authorize.Query().Get("redirect_to"))

	verifier := responseCookie(start, app.jar.CodeVerifierName())
	require.NotNil(t, verifier)
	device := responseCookie(start, cookie.DeviceCookie)
	require.NotNil(t, device)

	// The identity service would now send the browser back with a code.
	identity.AddAuthCode("code-1", verifier.Value, "u1")
	callback := httptest.NewRequest(http.MethodGet, "/auth-callback?code=code-1&provider=google&returnTo=%2Fchallenge%2Franking%3Ftab%3Dweekly", nil)
	callback.AddCookie(verifier)
	callback.AddCookie(device)
	done := app.do(callback)

	require.Equal(t, http.StatusFound, done.Code)
	assert.Equal(t, "https://bid.example.com/challenge/ranking?tab=weekly", done.Header().Get("Location"))
	session := responseCookie(done, app.jar.SessionName())
	require.NotNil(t, session)

	page := httptest.NewRequest(http.MethodGet, "/challenge/ranking?tab=weekly", nil)
	page.AddCookie(session)
	w := app.do(page)
	assert.Equal(t, http.StatusOK, w.Code)
	hit := app.nextHit(t)
	assert.Equal(t, "/challenge/ranking?tab=weekly", hit.path)
	assert.Equal(t, "u1", hit.userID)

	signIn, err := app.ledger.GetSignIn(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), signIn.Count)

	// Non-admins are turned away from the admin area.
	admin := httptest.NewRequest(http.MethodGet, "/admin/api/sign-ins", nil)
	admin.AddCookie(session)
	w = app.do(admin)
	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t, "/admin/unauthorized", w.Header().Get("Location"))
}

func TestAdminSignInsThroughGate(t *testing.T) {
	identity := testutil.NewIdentityServer(t)
	identity.AddUser(testutil.IdentityUser{ID: "a1", Email: "admin@example.com"})
	identity.AddRefreshToken("rt-admin", "a1")
	app := newTestApp(t, identity)

	sessions := setupSessions(config.Config{
		Identity: config.IdentityConfig{URL: identity.URL, AnonKey: config.Secret(identity.AnonKey)},
	}, app.jar)
	_, muts, err := sessions.InstallRefreshToken(context.Background(), "rt-admin")
	require.NoError(t, err)
	require.Len(t, muts, 1)

	req := httptest.NewRequest(http.MethodGet, "/admin/api/sign-ins?limit=5", nil)
	req.AddCookie(muts[0])
	w := app.do(req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true,"signIns":[]}`, w.Body.String())
}

func TestUnconfiguredIdentityFailsOpen(t *testing.T) {
	app := newTestApp(t, nil)

	w := app.do(httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/dashboard", app.nextHit(t).path)

	w = app.do(httptest.NewRequest(http.MethodGet, "/auth/login/naver", nil))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?returnTo=%2Fdashboard&error=broker_unavailable&provider=naver", w.Header().Get("Location"))
}
