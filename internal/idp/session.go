package idp

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// User is the identity the identity service reports for a session.
type User struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	AppMetadata  AppMetadata  `json:"app_metadata"`
	UserMetadata UserMetadata `json:"user_metadata"`
	LastSignInAt *time.Time   `json:"last_sign_in_at,omitempty"`
}

type AppMetadata struct {
	Provider  string   `json:"provider,omitempty"`
	Providers []string `json:"providers,omitempty"`
}

type UserMetadata struct {
	Name     string `json:"name,omitempty"`
	FullName string `json:"full_name,omitempty"`
}

// DisplayName prefers the full name, then the short name, then the email.
func (u *User) DisplayName() string {
	switch {
	case u.UserMetadata.FullName != "":
		return u.UserMetadata.FullName
	case u.UserMetadata.Name != "":
		return u.UserMetadata.Name
	default:
		return u.Email
	}
}

// Session is a token set issued by the identity service. The access token is
// opaque here: it is stored, forwarded and refreshed, never decoded.
type Session struct {
	Token *oauth2.Token
	User  *User
}

// tokenResponse is the body of every /auth/v1/token grant.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

func (t *tokenResponse) session(now time.Time) (*Session, error) {
	if t.AccessToken == "" {
		return nil, fmt.Errorf("token response without access_token")
	}
	tok := &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
	}
	switch {
	case t.ExpiresAt > 0:
		tok.Expiry = time.Unix(t.ExpiresAt, 0)
	case t.ExpiresIn > 0:
		tok.Expiry = now.Add(time.Duration(t.ExpiresIn) * time.Second)
	}
	return &Session{Token: tok, User: t.User}, nil
}

// encodeToken is the session cookie payload.
func encodeToken(tok *oauth2.Token) ([]byte, error) {
	b, err := json.Marshal(tok)
	if err != nil {
		return nil, fmt.Errorf("encoding session token: %w", err)
	}
	return b, nil
}

func decodeToken(payload []byte) (*oauth2.Token, error) {
	var tok oauth2.Token
	if err := json.Unmarshal(payload, &tok); err != nil {
		return nil, fmt.Errorf("decoding session token: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("session token without access token")
	}
	return &tok, nil
}
