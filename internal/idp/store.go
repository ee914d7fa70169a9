package idp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dgellow/bid-front/internal/cookie"
	"github.com/dgellow/bid-front/internal/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// ErrNoSession means the request carries no usable session cookie.
var ErrNoSession = errors.New("no session")

// SessionStore keeps the session in a cookie and resolves it against the
// identity service. Every method that changes the session returns the cookie
// mutations instead of writing them, so callers decide where they go.
type SessionStore struct {
	client  *Client
	jar     *cookie.Jar
	refresh singleflight.Group
}

func NewSessionStore(client *Client, jar *cookie.Jar) *SessionStore {
	return &SessionStore{client: client, jar: jar}
}

func (s *SessionStore) Client() *Client { return s.client }

func (s *SessionStore) Jar() *cookie.Jar { return s.jar }

// Token returns the stored token. A missing cookie yields ErrNoSession; an
// unreadable one yields an error that callers should answer by clearing it.
func (s *SessionStore) Token(r *http.Request) (*oauth2.Token, error) {
	payload, err := s.jar.ReadSession(r)
	if err != nil {
		if cookie.IsMissing(err) {
			return nil, ErrNoSession
		}
		return nil, err
	}
	return decodeToken(payload)
}

// CurrentUser answers "is there a user?" for r. An access token the identity
// service rejects, or one already past expiry, is refreshed once. The returned
// mutations carry the refreshed cookie, or a clearing cookie when the session
// is beyond repair. A network failure yields no user and no mutations: the
// cookie is left alone so a transient outage does not sign anyone out.
func (s *SessionStore) CurrentUser(ctx context.Context, r *http.Request) (*User, cookie.Mutations) {
	tok, err := s.Token(r)
	if errors.Is(err, ErrNoSession) {
		return nil, nil
	}
	if err != nil {
		log.LogDebugWithFields("idp", "Discarding unreadable session cookie", map[string]any{
			"error": err.Error(),
		})
		return nil, s.Clear()
	}

	if tok.Valid() {
		user, err := s.client.GetUser(ctx, tok.AccessToken)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, ErrUnauthorized) {
			log.LogWarnWithFields("idp", "Failed to resolve session user", map[string]any{
				"error": err.Error(),
			})
			return nil, nil
		}
	}

	sess, muts, err := s.refreshToken(ctx, tok.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return nil, s.Clear()
		}
		log.LogWarnWithFields("idp", "Session refresh failed", map[string]any{
			"error": err.Error(),
		})
		return nil, nil
	}
	return sess.User, muts
}

// Refresh forces a refresh of the session stored in r.
func (s *SessionStore) Refresh(ctx context.Context, r *http.Request) (*Session, cookie.Mutations, error) {
	tok, err := s.Token(r)
	if err != nil {
		return nil, nil, err
	}
	return s.refreshToken(ctx, tok.RefreshToken)
}

// InstallRefreshToken turns a bare refresh token into a stored session. The
// broker flow hands over nothing else.
func (s *SessionStore) InstallRefreshToken(ctx context.Context, refreshToken string) (*Session, cookie.Mutations, error) {
	return s.refreshToken(ctx, refreshToken)
}

// ExchangeCode completes a PKCE login and stores the resulting session.
func (s *SessionStore) ExchangeCode(ctx context.Context, authCode, codeVerifier string) (*Session, cookie.Mutations, error) {
	sess, err := s.client.ExchangeCodeForSession(ctx, authCode, codeVerifier)
	if err != nil {
		return nil, nil, err
	}
	return s.establish(ctx, sess)
}

// SignOut revokes the session with the identity service, best effort, and
// returns the clearing cookie.
func (s *SessionStore) SignOut(ctx context.Context, r *http.Request) cookie.Mutations {
	if tok, err := s.Token(r); err == nil {
		if err := s.client.SignOut(ctx, tok.AccessToken); err != nil {
			log.LogWarnWithFields("idp", "Identity service logout failed", map[string]any{
				"error": err.Error(),
			})
		}
	}
	return s.Clear()
}

// Clear returns the mutation that drops the session cookie.
func (s *SessionStore) Clear() cookie.Mutations {
	return cookie.Mutations{s.jar.ClearSession()}
}

func (s *SessionStore) refreshToken(ctx context.Context, refreshToken string) (*Session, cookie.Mutations, error) {
	if refreshToken == "" {
		return nil, nil, fmt.Errorf("session has no refresh token: %w", ErrUnauthorized)
	}
	// Parallel requests from one browser carry the same refresh token; the
	// identity service rotates it on first use, so only one call may go out.
	v, err, _ := s.refresh.Do(refreshToken, func() (any, error) {
		return s.client.RefreshSession(context.WithoutCancel(ctx), refreshToken)
	})
	if err != nil {
		return nil, nil, err
	}
	shared := v.(*Session)
	return s.establish(ctx, &Session{Token: shared.Token, User: shared.User})
}

func (s *SessionStore) establish(ctx context.Context, sess *Session) (*Session, cookie.Mutations, error) {
	if sess.User == nil {
		user, err := s.client.GetUser(ctx, sess.Token.AccessToken)
		if err != nil {
			return nil, nil, fmt.Errorf("resolving user for new session: %w", err)
		}
		sess.User = user
	}
	payload, err := encodeToken(sess.Token)
	if err != nil {
		return nil, nil, err
	}
	c, err := s.jar.Session(payload)
	if err != nil {
		return nil, nil, err
	}
	return sess, cookie.Mutations{c}, nil
}
