package server

import (
	"context"
	"net/http"
	"net/url"

	"github.com/dgellow/bid-front/internal/authsync"
	"github.com/dgellow/bid-front/internal/broker"
	"github.com/dgellow/bid-front/internal/cookie"
	"github.com/dgellow/bid-front/internal/idp"
	"github.com/dgellow/bid-front/internal/log"
	"github.com/dgellow/bid-front/internal/loginflow"
	"github.com/dgellow/bid-front/internal/urlutil"
)

type callbackState int

const (
	stateOAuthError callbackState = iota
	stateDirectCodeExchange
	stateBrokerExchange
	stateMissingCode
)

func (s callbackState) String() string {
	switch s {
	case stateOAuthError:
		return "oauth_error"
	case stateDirectCodeExchange:
		return "direct_code_exchange"
	case stateBrokerExchange:
		return "broker_exchange"
	default:
		return "missing_code"
	}
}

type callbackQuery struct {
	oauthError       string
	code             string
	exchangeCode     string
	provider         string
	brokerProvider   idp.BrokerProvider
	returnTo         string
	errorDescription string
}

// classifyCallback picks the callback state from the query. An error from
// the provider wins over any code; a code wins over a broker exchange code.
func classifyCallback(q url.Values) (callbackState, callbackQuery) {
	cq := callbackQuery{
		oauthError:       q.Get("error"),
		code:             q.Get("code"),
		exchangeCode:     q.Get("exchange_code"),
		provider:         q.Get("provider"),
		returnTo:         urlutil.SanitizeReturnToDefault(q.Get("returnTo")),
		errorDescription: q.Get("error_description"),
	}
	if bp, ok := idp.ParseBrokerProvider(cq.provider); ok {
		cq.brokerProvider = bp
	}

	switch {
	case cq.oauthError != "":
		return stateOAuthError, cq
	case cq.code != "":
		return stateDirectCodeExchange, cq
	case cq.exchangeCode != "" && cq.brokerProvider != "":
		return stateBrokerExchange, cq
	default:
		return stateMissingCode, cq
	}
}

// callbackOutcome is the result of one callback. Either session is set or
// errCode is.
type callbackOutcome struct {
	session   *idp.Session
	mutations cookie.Mutations
	errCode   loginflow.ErrorCode
}

func failed(code loginflow.ErrorCode) callbackOutcome {
	return callbackOutcome{errCode: code}
}

// CallbackHandler completes logins on GET /auth-callback.
type CallbackHandler struct {
	deps AuthDeps
}

func NewCallbackHandler(deps AuthDeps) *CallbackHandler {
	return &CallbackHandler{deps: deps}
}

func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	state, q := classifyCallback(r.URL.Query())
	origin := ResolvePublicOrigin(r, h.deps.SiteURL)

	outcome := h.runCallback(r.Context(), r, state, q)

	// The verifier is single use whatever happened.
	if _, err := h.deps.Jar.ReadCodeVerifier(r); err == nil {
		http.SetCookie(w, h.deps.Jar.ClearCodeVerifier())
	}

	if outcome.errCode != "" {
		http.Redirect(w, r, origin+loginflow.BuildLoginHref(loginflow.LoginParams{
			ReturnTo:  q.returnTo,
			ErrorCode: outcome.errCode,
			Provider:  q.provider,
		}), http.StatusFound)
		return
	}

	outcome.mutations.Apply(w)
	h.deps.publish(r, authsync.SignedIn)
	h.deps.recordSignIn(r.Context(), outcome.session.User, q.provider)

	log.LogInfoWithFields("callback", "Login completed", map[string]any{
		"user":     log.MaskEmail(outcome.session.User.Email),
		"state":    state.String(),
		"provider": q.provider,
	})
	http.Redirect(w, r, origin+q.returnTo, http.StatusFound)
}

func (h *CallbackHandler) runCallback(ctx context.Context, r *http.Request, state callbackState, q callbackQuery) callbackOutcome {
	switch state {
	case stateOAuthError:
		log.LogWarnWithFields("callback", "Provider returned an error", map[string]any{
			"error":       q.oauthError,
			"description": q.errorDescription,
			"provider":    q.provider,
		})
		return failed(loginflow.ErrOAuthFailed)

	case stateDirectCodeExchange:
		if h.deps.Sessions == nil {
			log.LogWarnWithFields("callback", "Code exchange attempted without identity configuration", nil)
			return failed(loginflow.ErrOAuthFailed)
		}
		verifier, err := h.deps.Jar.ReadCodeVerifier(r)
		if err != nil {
			log.LogWarnWithFields("callback", "Missing PKCE verifier cookie", map[string]any{
				"error": err.Error(),
			})
			return failed(loginflow.ErrOAuthFailed)
		}
		sess, muts, err := h.deps.Sessions.ExchangeCode(ctx, q.code, verifier)
		if err != nil {
			log.LogErrorWithFields("callback", "Code exchange failed", map[string]any{
				"error": err.Error(),
			})
			return failed(loginflow.ErrOAuthFailed)
		}
		return callbackOutcome{session: sess, mutations: muts}

	case stateBrokerExchange:
		if !h.deps.identityConfigured() {
			log.LogWarnWithFields("callback", "Broker exchange without identity configuration", map[string]any{
				"provider": q.provider,
			})
			return failed(loginflow.ErrBrokerUnavailable)
		}
		client := h.deps.Sessions.Client()
		refreshToken, err := broker.ExchangeCode(ctx, broker.ExchangeParams{
			BaseURL:      client.BaseURL(),
			AnonKey:      client.AnonKey(),
			Provider:     q.brokerProvider,
			ExchangeCode: q.exchangeCode,
		}, h.deps.brokerDoer())
		if err != nil {
			log.LogErrorWithFields("callback", "Broker exchange failed", map[string]any{
				"provider": q.provider,
				"error":    err.Error(),
			})
			return failed(loginflow.ErrBrokerFailed)
		}
		sess, muts, err := h.deps.Sessions.InstallRefreshToken(ctx, refreshToken)
		if err != nil {
			log.LogErrorWithFields("callback", "Installing broker session failed", map[string]any{
				"provider": q.provider,
				"error":    err.Error(),
			})
			return failed(loginflow.ErrBrokerFailed)
		}
		return callbackOutcome{session: sess, mutations: muts}

	case stateMissingCode:
		log.LogWarnWithFields("callback", "Callback carried no code", map[string]any{
			"provider": q.provider,
		})
		return failed(loginflow.ErrMissingCode)
	}
	return failed(loginflow.ErrMissingCode)
}
