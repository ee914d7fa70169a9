package server

import (
	"net/http"
	"time"

	"github.com/dgellow/bid-front/internal/authsync"
	"github.com/dgellow/bid-front/internal/cookie"
	"github.com/dgellow/bid-front/internal/ioutil"
	jsonwriter "github.com/dgellow/bid-front/internal/json"
	"github.com/dgellow/bid-front/internal/log"
	"github.com/dgellow/bid-front/internal/sse"
)

const (
	defaultSyncKeepAlive = 25 * time.Second
	syncPayloadLimit     = 4 << 10
)

// SyncHandlers expose the per-browser session sync channel
type SyncHandlers struct {
	hub       *authsync.Hub
	jar       *cookie.Jar
	keepAlive time.Duration
}

// NewSyncHandlers creates the sync handlers. A zero keepAlive uses the default.
func NewSyncHandlers(hub *authsync.Hub, jar *cookie.Jar, keepAlive time.Duration) *SyncHandlers {
	if keepAlive <= 0 {
		keepAlive = defaultSyncKeepAlive
	}
	return &SyncHandlers{hub: hub, jar: jar, keepAlive: keepAlive}
}

// EventsHandler streams sync events for the requesting browser on GET /auth/sync/events
func (h *SyncHandlers) EventsHandler(w http.ResponseWriter, r *http.Request) {
	device, ok := h.jar.ReadDevice(r)
	if !ok {
		jsonwriter.WriteBadRequest(w, "Missing device cookie")
		return
	}

	flusher, err := sse.Prepare(w)
	if err != nil {
		jsonwriter.WriteInternalServerError(w, "Streaming unsupported")
		return
	}

	events, cancel := h.hub.Subscribe(device)
	defer cancel()

	w.WriteHeader(http.StatusOK)
	if err := sse.WriteComment(w, flusher, "connected"); err != nil {
		return
	}

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := sse.WriteEvent(w, flusher, authsync.ChannelName, ev); err != nil {
				log.LogDebugWithFields("authsync", "Sync stream write failed", map[string]any{
					"error": err.Error(),
				})
				return
			}
		case <-ticker.C:
			if err := sse.WriteComment(w, flusher, "keepalive"); err != nil {
				return
			}
		}
	}
}

// PublishHandler relays a tab's event to its sibling tabs on POST /auth/sync/publish.
// Malformed payloads are dropped silently.
func (h *SyncHandlers) PublishHandler(w http.ResponseWriter, r *http.Request) {
	raw := ioutil.ReadLimited(r.Body, syncPayloadLimit)

	device, ok := h.jar.ReadDevice(r)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	ev, ok := authsync.ParseEvent([]byte(raw))
	if !ok {
		log.LogTraceWithFields("authsync", "Discarded malformed sync payload", nil)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.hub.Publish(device, ev)
	w.WriteHeader(http.StatusNoContent)
}
