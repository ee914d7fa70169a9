package server

import (
	"context"
	"net/http"

	"github.com/dgellow/bid-front/internal/adminauth"
	"github.com/dgellow/bid-front/internal/cookie"
	"github.com/dgellow/bid-front/internal/crypto"
	"github.com/dgellow/bid-front/internal/idp"
	jsonwriter "github.com/dgellow/bid-front/internal/json"
	"github.com/dgellow/bid-front/internal/log"
	"github.com/dgellow/bid-front/internal/loginflow"
	"github.com/dgellow/bid-front/internal/routeaccess"
)

// SessionResolver resolves the signed-in user of a request. *idp.SessionStore
// implements it.
type SessionResolver interface {
	CurrentUser(ctx context.Context, r *http.Request) (*idp.User, cookie.Mutations)
}

type GateConfig struct {
	// Sessions is nil when the identity service is not configured.
	Sessions SessionResolver
	Admins   adminauth.AllowList
}

// AuthGate decides, before any handler runs, whether a request may proceed.
type AuthGate struct {
	sessions SessionResolver
	admins   adminauth.AllowList
}

func NewAuthGate(cfg GateConfig) *AuthGate {
	if cfg.Sessions == nil {
		log.LogWarnWithFields("gate", "Identity service not configured, all routes are open", nil)
	}
	return &AuthGate{sessions: cfg.Sessions, admins: cfg.Admins}
}

// Middleware wraps next with the gate.
func (g *AuthGate) Middleware() MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		if g.sessions == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			g.serve(w, r, next)
		})
	}
}

func (g *AuthGate) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	path := r.URL.Path
	user, muts := g.sessions.CurrentUser(r.Context(), r)
	// Refreshed or cleared cookies go to the browser and to whatever handles
	// the request next, so both see the same session.
	muts.Apply(w)
	muts.ApplyToRequest(r)

	if user == nil {
		switch routeaccess.Classify(path) {
		case routeaccess.ProtectedAPI:
			requestID := crypto.NewRequestID()
			log.LogDebugWithFields("gate", "Rejected unauthenticated API request", map[string]any{
				"path":       path,
				"request_id": requestID,
			})
			jsonwriter.WriteAuthRequired(w, requestID)
			return
		case routeaccess.ProtectedPage:
			href := loginflow.BuildLoginHref(loginflow.LoginParams{
				ReturnTo: routeaccess.BuildReturnToFromPath(path, r.URL.RawQuery),
			})
			http.Redirect(w, r, href, http.StatusTemporaryRedirect)
			return
		}
	}

	if routeaccess.IsAdminPath(path) && !routeaccess.IsAdminExemptPath(path) {
		if user == nil {
			http.Redirect(w, r, routeaccess.AdminLoginPath, http.StatusTemporaryRedirect)
			return
		}
		if !g.admins.IsAdmin(user.Email) {
			log.LogInfoWithFields("gate", "Denied admin access", map[string]any{
				"user": log.MaskEmail(user.Email),
				"path": path,
			})
			http.Redirect(w, r, routeaccess.AdminUnauthorizedPath, http.StatusTemporaryRedirect)
			return
		}
	}

	if user != nil {
		r = r.WithContext(idp.WithUser(r.Context(), user))
	}
	next.ServeHTTP(w, r)
}
