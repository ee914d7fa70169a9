package server

import (
	"net/http"
	"strings"

	"github.com/dgellow/bid-front/internal/urlutil"
)

// ResolvePublicOrigin returns the scheme://host browsers use to reach us.
//
// Forwarded headers win only when both proto and host are present. Next comes
// the configured site URL, then the request itself.
func ResolvePublicOrigin(r *http.Request, siteURL string) string {
	proto := firstHeaderValue(r.Header.Get("X-Forwarded-Proto"))
	host := firstHeaderValue(r.Header.Get("X-Forwarded-Host"))
	if proto != "" && host != "" {
		return proto + "://" + host
	}

	if siteURL != "" {
		if origin, err := urlutil.Origin(siteURL); err == nil {
			return origin
		}
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// firstHeaderValue returns the first entry of a comma separated header, which
// is the one the outermost proxy saw.
func firstHeaderValue(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}
