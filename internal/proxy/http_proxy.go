package proxy

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgellow/bid-front/internal/idp"
	jsonwriter "github.com/dgellow/bid-front/internal/json"
	"github.com/dgellow/bid-front/internal/log"
)

// Identity headers set for the upstream application. Client-supplied values
// are always stripped first.
const (
	HeaderUserID    = "X-Bid-User-Id"
	HeaderUserEmail = "X-Bid-User-Email"
)

// Upstream forwards requests that passed the edge gate to the web application
type Upstream struct {
	target     *url.URL
	httpClient *http.Client
}

// NewUpstream creates a proxy to baseURL
func NewUpstream(baseURL string, timeout time.Duration) (*Upstream, error) {
	target, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream url: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("upstream url must be absolute: %q", baseURL)
	}
	return &Upstream{
		target: target,
		httpClient: &http.Client{
			Timeout: timeout,
			// Don't follow redirects automatically
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// ServeHTTP proxies r to the upstream, keeping path and query
func (p *Upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	upstreamURL := *p.target
	upstreamURL.Path = strings.TrimRight(p.target.Path, "/") + r.URL.Path
	upstreamURL.RawPath = ""
	upstreamURL.RawQuery = r.URL.RawQuery

	upstreamReq, err := http.NewRequestWithContext(ctx, r.Method, upstreamURL.String(), r.Body)
	if err != nil {
		jsonwriter.WriteInternalServerError(w, "Failed to create upstream request")
		return
	}
	upstreamReq.ContentLength = r.ContentLength

	copyRequestHeaders(upstreamReq.Header, r.Header)
	setForwardedHeaders(upstreamReq.Header, r)
	if user, ok := idp.UserFromContext(ctx); ok {
		upstreamReq.Header.Set(HeaderUserID, user.ID)
		upstreamReq.Header.Set(HeaderUserEmail, user.Email)
	}

	upstreamResp, err := p.httpClient.Do(upstreamReq)
	if err != nil {
		log.LogErrorWithFields("proxy", "Upstream request failed", map[string]any{
			"error":  err.Error(),
			"method": r.Method,
			"path":   r.URL.Path,
		})
		jsonwriter.WriteBadGateway(w, "Failed to reach upstream application")
		return
	}
	defer upstreamResp.Body.Close()

	copyResponseHeaders(w.Header(), upstreamResp.Header)
	w.WriteHeader(upstreamResp.StatusCode)

	if _, err := io.Copy(w, upstreamResp.Body); err != nil {
		log.LogDebugWithFields("proxy", "Failed to copy upstream response body", map[string]any{
			"error": err.Error(),
			"path":  r.URL.Path,
		})
		return
	}

	log.LogTraceWithFields("proxy", "Request proxied", map[string]any{
		"method":      r.Method,
		"path":        r.URL.Path,
		"status":      upstreamResp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

var hopHeaders = map[string]bool{
	"connection":          true,
	"keep-alive":          true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"te":                  true,
	"trailer":             true,
	"transfer-encoding":   true,
	"upgrade":             true,
}

// copyRequestHeaders copies headers from src to dst, excluding hop-by-hop and identity headers
func copyRequestHeaders(dst, src http.Header) {
	for key, values := range src {
		lower := strings.ToLower(key)
		if hopHeaders[lower] || lower == strings.ToLower(HeaderUserID) || lower == strings.ToLower(HeaderUserEmail) {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

// copyResponseHeaders copies headers from src to dst, excluding hop-by-hop headers.
// Set-Cookie values already on dst (from the gate) are kept alongside upstream ones.
func copyResponseHeaders(dst, src http.Header) {
	for key, values := range src {
		if hopHeaders[strings.ToLower(key)] {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

func setForwardedHeaders(h http.Header, r *http.Request) {
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		if prior := h.Get("X-Forwarded-For"); prior != "" {
			ip = prior + ", " + ip
		}
		h.Set("X-Forwarded-For", ip)
	}
	if h.Get("X-Forwarded-Host") == "" {
		h.Set("X-Forwarded-Host", r.Host)
	}
	if h.Get("X-Forwarded-Proto") == "" {
		proto := "http"
		if r.TLS != nil {
			proto = "https"
		}
		h.Set("X-Forwarded-Proto", proto)
	}
}
