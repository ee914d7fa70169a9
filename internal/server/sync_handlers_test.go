package server

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgellow/bid-front/internal/authsync"
	"github.com/dgellow/bid-front/internal/cookie"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishHandler(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		device    string
		delivered bool
	}{
		{"valid event", `{"type":"SIGNED_OUT"}`, "device-1", true},
		{"type is normalized", `{"type":" session_expired "}`, "device-1", true},
		{"unknown type", `{"type":"PASSWORD_CHANGED"}`, "device-1", false},
		{"not json", `SIGNED_OUT`, "device-1", false},
		{"array payload", `[{"type":"SIGNED_OUT"}]`, "device-1", false},
		{"no device cookie", `{"type":"SIGNED_OUT"}`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jar := cookie.NewJar("", time.Hour, nil)
			hub := authsync.NewHub()
			defer hub.Close()
			events, cancel := hub.Subscribe("device-1")
			defer cancel()

			req := httptest.NewRequest(http.MethodPost, "/auth/sync/publish", strings.NewReader(tt.body))
			if tt.device != "" {
				req.AddCookie(&http.Cookie{Name: cookie.DeviceCookie, Value: tt.device})
			}
			w := httptest.NewRecorder()
			NewSyncHandlers(hub, jar, 0).PublishHandler(w, req)

			assert.Equal(t, http.StatusNoContent, w.Code)
			if tt.delivered {
				receiveEvent(t, events)
			} else {
				assertNoEvent(t, events)
			}
		})
	}
}

func TestPublishHandlerStaysWithinDevice(t *testing.T) {
	jar := cookie.NewJar("", time.Hour, nil)
	hub := authsync.NewHub()
	defer hub.Close()
	mine, cancelMine := hub.Subscribe("device-1")
	defer cancelMine()
	other, cancelOther := hub.Subscribe("device-2")
	defer cancelOther()

	req := httptest.NewRequest(http.MethodPost, "/auth/sync/publish", strings.NewReader(`{"type":"SIGNED_OUT"}`))
	req.AddCookie(&http.Cookie{Name: cookie.DeviceCookie, Value: "device-1"})
	NewSyncHandlers(hub, jar, 0).PublishHandler(httptest.NewRecorder(), req)

	assert.Equal(t, authsync.SignedOut, receiveEvent(t, mine).Type)
	assertNoEvent(t, other)
}

func TestEventsHandlerRequiresDevice(t *testing.T) {
	jar := cookie.NewJar("", time.Hour, nil)
	hub := authsync.NewHub()
	defer hub.Close()

	w := httptest.NewRecorder()
	NewSyncHandlers(hub, jar, 0).EventsHandler(w, httptest.NewRequest(http.MethodGet, "/auth/sync/events", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEventsHandlerStreams(t *testing.T) {
	jar := cookie.NewJar("", time.Hour, nil)
	hub := authsync.NewHub()
	defer hub.Close()

	ts := httptest.NewServer(http.HandlerFunc(NewSyncHandlers(hub, jar, 20*time.Millisecond).EventsHandler))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL, nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: cookie.DeviceCookie, Value: "device-1"})

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)

	require.Eventually(t, func() bool {
		return hub.Subscribers("device-1") == 1
	}, time.Second, 10*time.Millisecond)
	hub.Publish("device-1", authsync.Event{Type: authsync.SessionExpired})

	var eventLine, dataLine string
	for eventLine == "" || dataLine == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		switch {
		case strings.HasPrefix(line, "event: "):
			eventLine = line
		case strings.HasPrefix(line, "data: ") && eventLine != "":
			dataLine = line
		}
	}
	assert.Equal(t, "event: bid-auth-sync\n", eventLine)
	assert.Equal(t, "data: {\"type\":\"SESSION_EXPIRED\"}\n", dataLine)

	cancel()
	require.Eventually(t, func() bool {
		return hub.Subscribers("device-1") == 0
	}, 2*time.Second, 10*time.Millisecond)
}
