// Package authfetch wraps calls to protected JSON APIs with the
// refresh-then-retry protocol: a 401 triggers one session refresh and exactly
// one retry. It never navigates; OnAuthFailure is how callers learn that the
// session is gone.
package authfetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dgellow/bid-front/internal/idp"
	"github.com/dgellow/bid-front/internal/ioutil"
	"github.com/dgellow/bid-front/internal/log"
	"golang.org/x/sync/singleflight"
)

type ErrorCode string

const (
	CodeRefreshFailed  ErrorCode = "AUTH_REFRESH_FAILED"
	CodeSessionExpired ErrorCode = "AUTH_SESSION_EXPIRED"
)

// Error is returned when the session could not be recovered.
type Error struct {
	Code ErrorCode
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Options struct {
	// Doer sends the requests; http.DefaultClient when nil.
	Doer Doer

	// RefreshSession obtains a fresh session. An error or a nil session
	// counts as a failed refresh.
	RefreshSession func(ctx context.Context) (*idp.Session, error)

	// OnAuthFailure runs before the typed error is returned.
	OnAuthFailure func(code ErrorCode)
}

const (
	drainLimit     = 64 << 10
	refreshTimeout = 15 * time.Second
)

// Client is a reusable wrapper. Concurrent 401s on one Client share a single
// in-flight refresh; each request still retries at most once.
type Client struct {
	opts    Options
	refresh singleflight.Group
}

func New(opts Options) *Client {
	if opts.Doer == nil {
		opts.Doer = http.DefaultClient
	}
	return &Client{opts: opts}
}

// Do sends req once with opts. See Client.Do.
func Do(req *http.Request, opts Options) (*http.Response, error) {
	return New(opts).Do(req)
}

// Do sends req. A non-401 response is returned as is. On 401 the session is
// refreshed and the request retried once; the retry's response is returned
// as is unless it is another 401. If req's context ends while the refresh is
// pending, the context error is returned and OnAuthFailure does not run.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	replay, err := replayable(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.opts.Doer.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	ioutil.DrainAndClose(resp.Body, drainLimit)

	sess, err := c.refreshSession(req.Context())
	if ctxErr := req.Context().Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil || sess == nil || sess.Token == nil {
		if err == nil {
			err = fmt.Errorf("refresh returned no session")
		}
		log.LogDebugWithFields("authfetch", "Session refresh failed", map[string]any{
			"url":   req.URL.Redacted(),
			"error": err.Error(),
		})
		return nil, c.fail(CodeRefreshFailed, err)
	}

	retry, err := replay()
	if err != nil {
		return nil, err
	}
	if usesBearer(req) {
		sess.Token.SetAuthHeader(retry)
	}

	resp, err = c.opts.Doer.Do(retry)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		ioutil.DrainAndClose(resp.Body, drainLimit)
		return nil, c.fail(CodeSessionExpired, nil)
	}
	return resp, nil
}

func (c *Client) refreshSession(ctx context.Context) (*idp.Session, error) {
	if c.opts.RefreshSession == nil {
		return nil, fmt.Errorf("no refresh function configured")
	}
	// The shared refresh outlives any single caller; a caller that gives up
	// stops waiting without failing the others.
	ch := c.refresh.DoChan("session", func() (any, error) {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return c.opts.RefreshSession(refreshCtx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		sess, _ := res.Val.(*idp.Session)
		return sess, nil
	}
}

func (c *Client) fail(code ErrorCode, cause error) error {
	if c.opts.OnAuthFailure != nil {
		c.opts.OnAuthFailure(code)
	}
	return &Error{Code: code, Err: cause}
}

func usesBearer(req *http.Request) bool {
	scheme, _, ok := strings.Cut(req.Header.Get("Authorization"), " ")
	return ok && strings.EqualFold(scheme, "bearer")
}

// replayable returns a function producing a fresh copy of req with an unread
// body. Bodies without GetBody are buffered once up front.
func replayable(req *http.Request) (func() (*http.Request, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return func() (*http.Request, error) {
			return req.Clone(req.Context()), nil
		}, nil
	}

	getBody := req.GetBody
	if getBody == nil {
		buf, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("buffering request body: %w", err)
		}
		getBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(buf)), nil
		}
		req.Body, _ = getBody()
		req.GetBody = getBody
	}

	return func() (*http.Request, error) {
		clone := req.Clone(req.Context())
		body, err := getBody()
		if err != nil {
			return nil, fmt.Errorf("replaying request body: %w", err)
		}
		clone.Body = body
		return clone, nil
	}, nil
}
