package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgellow/bid-front/internal/authsync"
	"github.com/dgellow/bid-front/internal/cookie"
	"github.com/dgellow/bid-front/internal/idp"
	"github.com/dgellow/bid-front/internal/storage"
	"github.com/dgellow/bid-front/internal/testutil"
	"github.com/stretchr/testify/require"
)

const testSiteURL = "https://bid.example.com"

// doerFunc adapts a function to broker.Doer.
type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

type testEnv struct {
	srv    *testutil.IdentityServer
	deps   AuthDeps
	hub    *authsync.Hub
	ledger *storage.MemoryLedger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	srv := testutil.NewIdentityServer(t)
	jar := cookie.NewJar("", time.Hour, nil)
	hub := authsync.NewHub()
	t.Cleanup(hub.Close)
	ledger := storage.NewMemoryLedger()

	client := idp.NewClient(srv.URL, srv.AnonKey, srv.Client())
	return &testEnv{
		srv: srv,
		deps: AuthDeps{
			Sessions: idp.NewSessionStore(client, jar),
			Jar:      jar,
			SiteURL:  testSiteURL,
			Hub:      hub,
			Ledger:   ledger,
		},
		hub:    hub,
		ledger: ledger,
	}
}

// sessionCookie returns a session cookie for a fresh session of userID.
func (e *testEnv) sessionCookie(t *testing.T, userID string) *http.Cookie {
	t.Helper()
	_, refresh := e.srv.IssueSession(userID, time.Hour)
	_, muts, err := e.deps.Sessions.InstallRefreshToken(context.Background(), refresh)
	require.NoError(t, err)
	require.Len(t, muts, 1)
	return muts[0]
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func recorderCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	return findCookie(w.Result(), name)
}

func receiveEvent(t *testing.T, ch <-chan authsync.Event) authsync.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sync event")
		return authsync.Event{}
	}
}

func assertNoEvent(t *testing.T, ch <-chan authsync.Event) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected sync event %q", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}
