// Package authsync propagates session changes to every open tab of a browser.
// Tabs of one browser share a device cookie; the Hub fans events out per
// device, and a Listener decides per tab whether the event forces a login.
package authsync

import (
	"encoding/json"
	"strings"

	"github.com/dgellow/bid-front/internal/routeaccess"
)

// ChannelName names the sync channel. It is also the SSE event name.
const ChannelName = "bid-auth-sync"

type EventType string

const (
	SignedIn          EventType = "SIGNED_IN"
	SignedOut         EventType = "SIGNED_OUT"
	SessionExpired    EventType = "SESSION_EXPIRED"
	AuthRefreshFailed EventType = "AUTH_REFRESH_FAILED"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case SignedIn, SignedOut, SessionExpired, AuthRefreshFailed:
		return true
	}
	return false
}

type Event struct {
	Type EventType `json:"type"`
}

// ParseEvent decodes a sync payload. Anything that is not an object with a
// known type yields false; malformed payloads are "no event", never an error.
func ParseEvent(raw []byte) (Event, bool) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Event{}, false
	}
	s, ok := payload["type"].(string)
	if !ok {
		return Event{}, false
	}
	t := EventType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return Event{}, false
	}
	return Event{Type: t}, true
}

// ShouldForceLoginRedirect reports whether a tab showing currentPath must go
// to the login page after ev. Only protected pages are affected.
func ShouldForceLoginRedirect(currentPath string, ev Event) bool {
	if ev.Type == SignedIn {
		return false
	}
	return routeaccess.IsProtectedPagePath(currentPath)
}
