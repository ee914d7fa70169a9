package integration

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/dgellow/bid-front/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "upstream:"+r.URL.Path+":"+r.Header.Get("X-Bid-User-Id"))
	}))
	t.Cleanup(upstream.Close)
	return upstream
}

func TestEdgeGate(t *testing.T) {
	identity := testutil.NewIdentityServer(t)
	upstream := startUpstream(t)
	startBidFront(t, cleanEnv(
		"SUPABASE_URL="+identity.URL,
		"SUPABASE_ANON_KEY="+identity.AnonKey,
		"UPSTREAM_URL="+upstream.URL,
	)...)

	t.Run("protected page redirects to login", func(t *testing.T) {
		resp, err := noRedirectClient.Get(testBaseURL + "/challenge/ranking?tab=weekly")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
		assert.Equal(t, "/login?returnTo=%2Fchallenge%2Franking%3Ftab%3Dweekly", resp.Header.Get("Location"))
	})

	t.Run("protected api answers AUTH_REQUIRED", func(t *testing.T) {
		resp, err := noRedirectClient.Post(testBaseURL+"/api/bookmarks/toggle", "application/json", nil)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "AUTH_REQUIRED", body["code"])
		detail, ok := body["error"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, resp.Header.Get("x-request-id"), detail["requestId"])
	})

	t.Run("public listing reaches upstream", func(t *testing.T) {
		resp, err := noRedirectClient.Get(testBaseURL + "/bid_notice")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "upstream:/bid_notice:", string(body))
	})
}

func TestLoginFlow(t *testing.T) {
	identity := testutil.NewIdentityServer(t)
	identity.AddUser(testutil.IdentityUser{ID: "u1", Email: "kim@example.com", Provider: "kakao"})
	upstream := startUpstream(t)
	startBidFront(t, cleanEnv(
		"SUPABASE_URL="+identity.URL,
		"SUPABASE_ANON_KEY="+identity.AnonKey,
		"UPSTREAM_URL="+upstream.URL,
		"SITE_URL="+testBaseURL,
	)...)

	resp, err := noRedirectClient.Get(testBaseURL + "/auth/login/kakao?returnTo=%2Fhistory")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	authorize, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "kakao", authorize.Query().Get("provider"))
	verifier := responseCookie(resp, "bid_session-code-verifier")
	require.NotNil(t, verifier)

	identity.AddAuthCode("code-1", verifier.Value, "u1")
	req, err := http.NewRequest(http.MethodGet, testBaseURL+"/auth-callback?code=code-1&provider=kakao&returnTo=%2Fhistory", nil)
	require.NoError(t, err)
	req.AddCookie(verifier)
	resp, err = noRedirectClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, testBaseURL+"/history", resp.Header.Get("Location"))
	session := responseCookie(resp, "bid_session")
	require.NotNil(t, session)

	req, err = http.NewRequest(http.MethodGet, testBaseURL+"/history", nil)
	require.NoError(t, err)
	req.AddCookie(session)
	resp, err = noRedirectClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "upstream:/history:u1", string(body))
}
