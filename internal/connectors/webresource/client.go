package webresource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"golang.org/x/oauth2"

	"github.com/prequery/prequery-preprocess/internal/logger"
)

const (
	// TokenEnv holds a bearer token sent with downloads.
	TokenEnv = "PREQUERY_TOKEN"

	// TokenHostsEnv lists the comma-separated hosts the token is sent to.
	TokenHostsEnv = "PREQUERY_TOKEN_HOSTS"

	// DefaultUserAgent identifies downloads made by this tool.
	DefaultUserAgent = "prequery-preprocess"
)

// ClientConfig configures HTTP downloads.
type ClientConfig struct {
	// Token, if set, is sent as a bearer token to TokenHosts only.
	Token      string
	TokenHosts []string

	UserAgent string

	// Transport is the base round tripper; defaults to a clone of
	// http.DefaultTransport, which honours proxy environment variables.
	Transport http.RoundTripper
}

// ParseTokenHosts splits a comma-separated host list.
func ParseTokenHosts(s string) []string {
	var hosts []string
	for _, h := range strings.Split(s, ",") {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

// Client downloads web resources.
type Client struct {
	http      *http.Client
	limiter   *RateLimiter
	userAgent string
}

// NewClient creates a download client. Timeouts come from the request context.
func NewClient(cfg ClientConfig, limiter *RateLimiter) *Client {
	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport.(*http.Transport).Clone()
	}
	transport := base
	if cfg.Token != "" && len(cfg.TokenHosts) > 0 {
		transport = &hostAuthTransport{
			hosts: cfg.TokenHosts,
			base:  base,
			auth: &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}),
				Base:   base,
			},
		}
	}
	if limiter == nil {
		limiter = NewRateLimiter(0)
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Client{
		http:      &http.Client{Transport: transport},
		limiter:   limiter,
		userAgent: userAgent,
	}
}

// Download streams the resource at rawURL into dst and returns its content type.
func (c *Client) Download(ctx context.Context, rawURL string, dst io.Writer) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	host := strings.ToLower(u.Hostname())

	if err := c.limiter.Wait(ctx, host); err != nil {
		return "", requestError(ctx, rawURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", requestError(ctx, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		retryAfter := c.limiter.Record(host, resp)
		// drain a little so the connection can be reused
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		err := statusError(rawURL, resp.StatusCode, retryAfter)
		if IsRateLimited(err) {
			logger.Debug("rate limited by %s, retry after %s", host, retryAfter)
		}
		return "", err
	}

	w := &recordingWriter{w: dst}
	if _, err := io.Copy(w, resp.Body); err != nil {
		if w.err != nil {
			return "", w.err
		}
		return "", requestError(ctx, rawURL, fmt.Errorf("reading body: %w", err))
	}
	return resp.Header.Get("Content-Type"), nil
}

// hostAuthTransport attaches credentials only to requests for the listed hosts.
type hostAuthTransport struct {
	hosts []string
	base  http.RoundTripper
	auth  http.RoundTripper
}

func (t *hostAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if slices.Contains(t.hosts, strings.ToLower(req.URL.Hostname())) {
		return t.auth.RoundTrip(req)
	}
	return t.base.RoundTrip(req)
}

// recordingWriter remembers write errors so they are not mistaken for network failures.
type recordingWriter struct {
	w   io.Writer
	err error
}

func (r *recordingWriter) Write(p []byte) (int, error) {
	n, err := r.w.Write(p)
	if err != nil {
		r.err = err
	}
	return n, err
}
