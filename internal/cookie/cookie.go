package cookie

import (
	"errors"
	"net/http"
	"time"

	"github.com/dgellow/bid-front/internal/envutil"
	"github.com/dgellow/bid-front/internal/log"
)

const (
	// DefaultSessionName is the session cookie owned by bid-front. The identity
	// SDK's sb-<ref>-auth-token cookie uses a different encoding and is left alone.
	DefaultSessionName = "bid_session"

	// CodeVerifierSuffix is appended to the session cookie name for the PKCE verifier.
	CodeVerifierSuffix = "-code-verifier"

	// DeviceCookie identifies one browser across its tabs for session sync.
	DeviceCookie = "bid_device"

	codeVerifierMaxAge = 10 * time.Minute
	deviceMaxAge       = 365 * 24 * time.Hour
)

// Mutations are cookie changes produced while resolving a request's session.
// They must reach the browser, and a request forwarded downstream should see them too.
type Mutations []*http.Cookie

// Apply writes every mutation as a Set-Cookie header.
func (m Mutations) Apply(w http.ResponseWriter) {
	for _, c := range m {
		http.SetCookie(w, c)
	}
}

// ApplyToRequest rewrites r's Cookie header so downstream handlers observe
// refreshed or cleared values instead of the ones the browser sent.
func (m Mutations) ApplyToRequest(r *http.Request) {
	if len(m) == 0 {
		return
	}
	overridden := make(map[string]struct{}, len(m))
	for _, c := range m {
		overridden[c.Name] = struct{}{}
	}

	existing := r.Cookies()
	r.Header.Del("Cookie")
	for _, c := range existing {
		if _, ok := overridden[c.Name]; ok {
			continue
		}
		r.AddCookie(c)
	}
	for _, c := range m {
		if c.MaxAge < 0 || c.Value == "" {
			continue
		}
		r.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
}

// Jar issues and reads the cookies this service owns.
type Jar struct {
	sessionName string
	maxAge      time.Duration
	codec       Codec
	secure      bool
}

// NewJar creates a Jar. An empty sessionName falls back to DefaultSessionName.
func NewJar(sessionName string, maxAge time.Duration, codec Codec) *Jar {
	if sessionName == "" {
		sessionName = DefaultSessionName
	}
	if codec == nil {
		codec = PlainCodec{}
	}
	return &Jar{
		sessionName: sessionName,
		maxAge:      maxAge,
		codec:       codec,
		secure:      !envutil.IsDev(),
	}
}

func (j *Jar) SessionName() string {
	return j.sessionName
}

func (j *Jar) CodeVerifierName() string {
	return j.sessionName + CodeVerifierSuffix
}

// Session returns a cookie holding the encoded session payload.
func (j *Jar) Session(payload []byte) (*http.Cookie, error) {
	value, err := j.codec.Encode(payload)
	if err != nil {
		return nil, err
	}
	log.LogTraceWithFields("cookie", "Session cookie issued", map[string]any{
		"maxAge": j.maxAge.String(),
		"secure": j.secure,
	})
	return j.build(j.sessionName, value, j.maxAge, true), nil
}

// ClearSession returns a cookie that expires the session immediately.
func (j *Jar) ClearSession() *http.Cookie {
	return expired(j.sessionName)
}

// ReadSession returns the decoded session payload, or http.ErrNoCookie when absent.
func (j *Jar) ReadSession(r *http.Request) ([]byte, error) {
	value, err := Get(r, j.sessionName)
	if err != nil {
		return nil, err
	}
	if value == "" {
		return nil, http.ErrNoCookie
	}
	return j.codec.Decode(value)
}

func (j *Jar) CodeVerifier(verifier string) *http.Cookie {
	return j.build(j.CodeVerifierName(), verifier, codeVerifierMaxAge, true)
}

func (j *Jar) ClearCodeVerifier() *http.Cookie {
	return expired(j.CodeVerifierName())
}

func (j *Jar) ReadCodeVerifier(r *http.Request) (string, error) {
	return Get(r, j.CodeVerifierName())
}

// Device returns a long-lived cookie carrying id. Readable by scripts is unnecessary.
func (j *Jar) Device(id string) *http.Cookie {
	return j.build(DeviceCookie, id, deviceMaxAge, true)
}

// ReadDevice returns the device id, if the browser has one.
func (j *Jar) ReadDevice(r *http.Request) (string, bool) {
	v, err := Get(r, DeviceCookie)
	if err != nil || v == "" {
		return "", false
	}
	return v, true
}

func (j *Jar) build(name, value string, maxAge time.Duration, httpOnly bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: httpOnly,
		Secure:   j.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge.Seconds()),
	}
}

func expired(name string) *http.Cookie {
	return &http.Cookie{
		Name:   name,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	}
}

// Clear removes a cookie by setting MaxAge to -1
func Clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, expired(name))
}

// Get retrieves a cookie value from the request
func Get(r *http.Request, name string) (string, error) {
	cookie, err := r.Cookie(name)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}

// IsMissing reports whether err means the cookie was simply not sent.
func IsMissing(err error) bool {
	return errors.Is(err, http.ErrNoCookie)
}
