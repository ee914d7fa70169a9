package server

import (
	"context"
	"net/http"
	"time"

	"github.com/dgellow/bid-front/internal/authsync"
	"github.com/dgellow/bid-front/internal/broker"
	"github.com/dgellow/bid-front/internal/cookie"
	"github.com/dgellow/bid-front/internal/idp"
	"github.com/dgellow/bid-front/internal/log"
	"github.com/dgellow/bid-front/internal/storage"
)

const ledgerWriteTimeout = 5 * time.Second

// AuthDeps are the collaborators shared by the login, callback and session
// handlers.
type AuthDeps struct {
	// Sessions is nil when the identity service is not configured.
	Sessions *idp.SessionStore
	Jar      *cookie.Jar
	SiteURL  string

	// Broker sends the exchange-code redemption for broker providers.
	Broker broker.Doer
	Hub    *authsync.Hub
	Ledger storage.Ledger
}

func (d AuthDeps) identityConfigured() bool {
	if d.Sessions == nil {
		return false
	}
	c := d.Sessions.Client()
	return c.BaseURL() != "" && c.AnonKey() != ""
}

// publish sends ev to every tab of the requesting browser.
func (d AuthDeps) publish(r *http.Request, ev authsync.EventType) {
	if d.Hub == nil || d.Jar == nil {
		return
	}
	device, ok := d.Jar.ReadDevice(r)
	if !ok {
		return
	}
	n := d.Hub.Publish(device, authsync.Event{Type: ev})
	log.LogTraceWithFields("authsync", "Published event", map[string]any{
		"type":      string(ev),
		"delivered": n,
	})
}

// recordSignIn writes the ledger entry. Failures are logged only.
func (d AuthDeps) recordSignIn(ctx context.Context, user *idp.User, provider string) {
	if d.Ledger == nil || user == nil {
		return
	}
	if provider == "" {
		provider = user.AppMetadata.Provider
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerWriteTimeout)
	defer cancel()

	err := d.Ledger.RecordSignIn(ctx, storage.SignInEvent{
		UserID:   user.ID,
		Email:    user.Email,
		Provider: provider,
		At:       time.Now(),
	})
	if err != nil {
		log.LogWarnWithFields("callback", "Failed to record sign-in", map[string]any{
			"user":  log.MaskEmail(user.Email),
			"error": err.Error(),
		})
	}
}

func (d AuthDeps) brokerDoer() broker.Doer {
	if d.Broker != nil {
		return d.Broker
	}
	return d.Sessions.Client().HTTPClient()
}
