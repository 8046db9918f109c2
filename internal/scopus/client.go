// Package scopus fetches coauthor lists and author profiles from the Elsevier
// Scopus REST API. Both fetchers satisfy batch.Retriever.
package scopus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/agenthands/snowball/internal/metrics"
)

const (
	DefaultBaseURL  = "https://api.elsevier.com"
	DefaultPageSize = 25

	authorIDPrefix = "AUTHOR_ID:"
)

// StatusError is returned for an unexpected HTTP status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Retryable reports whether the request may succeed when repeated.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

type Options struct {
	BaseURL string
	APIKey  string

	// RequestsPerSecond paces every request made through the client. Set to
	// <=0 to disable.
	RequestsPerSecond float64
	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration
	// MaxElapsed bounds all retries of one request.
	MaxElapsed time.Duration
	// InitialBackoff is the first sleep before a retry.
	InitialBackoff time.Duration
	PageSize       int

	HTTPClient *http.Client
	Logger     *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.MaxElapsed <= 0 {
		o.MaxElapsed = 2 * time.Minute
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 500 * time.Millisecond
	}
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

type Client struct {
	opts    Options
	base    string
	limiter *rate.Limiter
}

func NewClient(opts Options) *Client {
	opts = opts.withDefaults()
	c := &Client{opts: opts, base: strings.TrimRight(opts.BaseURL, "/")}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return c
}

// get performs a paced, retried GET. found is false when the API answers 404.
func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values) (body []byte, found bool, err error) {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.opts.InitialBackoff
	policy.MaxElapsedTime = c.opts.MaxElapsed

	attempt := 1
	op := func() error {
		if c.limiter != nil {
			if werr := c.limiter.Wait(ctx); werr != nil {
				return backoff.Permanent(werr)
			}
		}
		b, code, rerr := c.do(ctx, u)
		if rerr != nil {
			metrics.APIRequests.WithLabelValues(endpoint, "error").Inc()
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			c.opts.Logger.Warn("request failed; retrying", zap.String("endpoint", endpoint), zap.Int("attempt", attempt), zap.Error(rerr))
			attempt++
			return rerr
		}
		metrics.APIRequests.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()

		switch {
		case code == http.StatusOK:
			body, found = b, true
			return nil
		case code == http.StatusNotFound:
			body, found = nil, false
			return nil
		}
		serr := &StatusError{Code: code, Body: truncate(string(b), 200)}
		if !serr.Retryable() {
			return backoff.Permanent(serr)
		}
		c.opts.Logger.Warn("request throttled or failed; retrying", zap.String("endpoint", endpoint), zap.Int("status", code), zap.Int("attempt", attempt))
		attempt++
		return serr
	}

	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		return nil, false, fmt.Errorf("GET %s: %w", path, err)
	}
	return body, found, nil
}

func (c *Client) do(ctx context.Context, u string) ([]byte, int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if c.opts.APIKey != "" {
		req.Header.Set("X-ELS-APIKey", c.opts.APIKey)
	}

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return b, resp.StatusCode, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// trimAuthorID strips the "AUTHOR_ID:" prefix Scopus puts on identifiers.
func trimAuthorID(s string) string {
	return strings.TrimPrefix(strings.TrimSpace(s), authorIDPrefix)
}
