package server

import (
	"errors"
	"net/http"

	"github.com/dgellow/bid-front/internal/authsync"
	"github.com/dgellow/bid-front/internal/broker"
	"github.com/dgellow/bid-front/internal/cookie"
	"github.com/dgellow/bid-front/internal/crypto"
	"github.com/dgellow/bid-front/internal/idp"
	jsonwriter "github.com/dgellow/bid-front/internal/json"
	"github.com/dgellow/bid-front/internal/log"
	"github.com/dgellow/bid-front/internal/loginflow"
	"github.com/dgellow/bid-front/internal/storage"
	"github.com/dgellow/bid-front/internal/urlutil"
)

// AuthHandlers serves the login start, session and logout endpoints
type AuthHandlers struct {
	deps AuthDeps
}

// NewAuthHandlers creates the auth handlers with dependency injection
func NewAuthHandlers(deps AuthDeps) *AuthHandlers {
	return &AuthHandlers{deps: deps}
}

type sessionUser struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Provider string `json:"provider,omitempty"`
}

func newSessionUser(u *idp.User) sessionUser {
	return sessionUser{
		ID:       u.ID,
		Email:    u.Email,
		Name:     u.DisplayName(),
		Provider: u.AppMetadata.Provider,
	}
}

type sessionResponse struct {
	OK         bool            `json:"ok"`
	User       sessionUser     `json:"user"`
	LastSignIn *storage.SignIn `json:"lastSignIn,omitempty"`
}

// LoginHandler starts a provider login on GET /auth/login/{provider}
func (h *AuthHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	returnTo := urlutil.SanitizeReturnToDefault(r.URL.Query().Get("returnTo"))
	origin := ResolvePublicOrigin(r, h.deps.SiteURL)

	fail := func(code loginflow.ErrorCode) {
		http.Redirect(w, r, loginflow.BuildLoginHref(loginflow.LoginParams{
			ReturnTo:  returnTo,
			ErrorCode: code,
			Provider:  provider,
		}), http.StatusFound)
	}

	if native, ok := idp.ParseNativeProvider(provider); ok {
		if !h.deps.identityConfigured() {
			fail(loginflow.ErrBrokerUnavailable)
			return
		}
		pkce, err := crypto.NewPKCE()
		if err != nil {
			log.LogErrorWithFields("login", "Failed to generate PKCE pair", map[string]any{
				"error": err.Error(),
			})
			fail(loginflow.ErrOAuthFailed)
			return
		}
		redirectTo := loginflow.BuildCallbackURL(origin, returnTo, provider)
		authorizeURL, err := h.deps.Sessions.Client().AuthorizeURL(native, redirectTo, pkce.Challenge)
		if err != nil {
			log.LogErrorWithFields("login", "Failed to build authorize URL", map[string]any{
				"error": err.Error(),
			})
			fail(loginflow.ErrOAuthFailed)
			return
		}
		http.SetCookie(w, h.deps.Jar.CodeVerifier(pkce.Verifier))
		http.Redirect(w, r, authorizeURL, http.StatusFound)
		return
	}

	if bp, ok := idp.ParseBrokerProvider(provider); ok {
		if !h.deps.identityConfigured() {
			fail(loginflow.ErrBrokerUnavailable)
			return
		}
		startURL, err := broker.BuildStartURL(broker.StartParams{
			BaseURL:   h.deps.Sessions.Client().BaseURL(),
			Provider:  bp,
			WebOrigin: origin,
			ReturnTo:  returnTo,
		})
		if err != nil {
			log.LogErrorWithFields("login", "Failed to build broker start URL", map[string]any{
				"provider": provider,
				"origin":   origin,
				"error":    err.Error(),
			})
			fail(loginflow.ErrBrokerUnavailable)
			return
		}
		http.Redirect(w, r, startURL, http.StatusFound)
		return
	}

	log.LogWarnWithFields("login", "Unknown provider", map[string]any{
		"provider": provider,
	})
	fail(loginflow.ErrOAuthFailed)
}

// SessionHandler reports the signed-in user on GET /auth/session
func (h *AuthHandlers) SessionHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := idp.UserFromContext(r.Context())
	if !ok {
		jsonwriter.WriteAuthRequired(w, crypto.NewRequestID())
		return
	}

	resp := sessionResponse{OK: true, User: newSessionUser(user)}
	if h.deps.Ledger != nil {
		signIn, err := h.deps.Ledger.GetSignIn(r.Context(), user.ID)
		switch {
		case err == nil:
			resp.LastSignIn = signIn
		case !errors.Is(err, storage.ErrSignInNotFound):
			log.LogWarnWithFields("session", "Failed to read sign-in ledger", map[string]any{
				"error": err.Error(),
			})
		}
	}

	w.Header().Set("Cache-Control", "no-store")
	_ = jsonwriter.Write(w, resp)
}

// RefreshHandler forces a session refresh on POST /auth/refresh
func (h *AuthHandlers) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	if h.deps.Sessions == nil {
		jsonwriter.WriteAuthRequired(w, crypto.NewRequestID())
		return
	}

	sess, muts, err := h.deps.Sessions.Refresh(r.Context(), r)
	if err != nil {
		if errors.Is(err, idp.ErrUnauthorized) {
			h.deps.Sessions.Clear().Apply(w)
		}
		if !errors.Is(err, idp.ErrNoSession) {
			log.LogWarnWithFields("session", "Session refresh failed", map[string]any{
				"error": err.Error(),
			})
		}
		h.deps.publish(r, authsync.AuthRefreshFailed)
		jsonwriter.WriteAuthRequired(w, crypto.NewRequestID())
		return
	}

	muts.Apply(w)
	w.Header().Set("Cache-Control", "no-store")
	_ = jsonwriter.Write(w, sessionResponse{OK: true, User: newSessionUser(sess.User)})
}

// LogoutHandler ends the session on POST /auth/logout
func (h *AuthHandlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	var muts cookie.Mutations
	if h.deps.Sessions != nil {
		muts = h.deps.Sessions.SignOut(r.Context(), r)
	} else {
		muts = cookie.Mutations{h.deps.Jar.ClearSession()}
	}
	muts.Apply(w)
	h.deps.publish(r, authsync.SignedOut)

	if user, ok := idp.UserFromContext(r.Context()); ok {
		log.LogInfoWithFields("session", "User signed out", map[string]any{
			"user": log.MaskEmail(user.Email),
		})
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
