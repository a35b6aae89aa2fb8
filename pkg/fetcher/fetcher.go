package fetcher

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andesco/fluxgate/pkg/config"
	"github.com/andesco/fluxgate/pkg/ruleset"
)

// ErrUpstreamFetch is returned when the target could not be fetched at all
// (DNS, TLS, connection, body read). Non-2xx statuses are not errors.
var ErrUpstreamFetch = errors.New("upstream fetch failed")

const maxHTTPRedirects = 10

// Client issues outbound requests with synthesized browser headers. It holds
// only read-only state and is safe for concurrent use.
type Client struct {
	http  *http.Client
	cfg   *config.Config
	rules ruleset.RuleSet
}

// New builds a Client. When hc is nil a client with cfg.Timeout is created;
// a caller-supplied hc keeps its own transport and timeout.
func New(cfg *config.Config, rules ruleset.RuleSet, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          100,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		}
	}
	base := *hc
	base.CheckRedirect = checkRedirect
	return &Client{http: &base, cfg: cfg, rules: rules}
}

func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxHTTPRedirects {
		return fmt.Errorf("stopped after %d redirects", len(via))
	}
	if !IsHTTPURL(req.URL) {
		return fmt.Errorf("redirect to unsupported scheme %q", req.URL.Scheme)
	}
	return nil
}

// Headers returns the outbound header set for target: browser defaults with
// any matching ruleset overrides applied.
func (c *Client) Headers(target *url.URL) http.Header {
	h := BrowserHeaders(target, c.cfg.UserAgent)
	rule, _ := c.rules.Match(target.Hostname(), target.Path)
	applyRule(h, rule, c.cfg.ForwardedFor)
	return h
}

// Do sends one GET to target. The returned response body is already
// decoded and Content-Encoding/Content-Length are removed accordingly.
// cookie, when non-empty, is appended to any Cookie the ruleset sets.
func (c *Client) Do(ctx context.Context, target *url.URL, cookie string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header = c.Headers(target)
	if cookie != "" {
		if existing := req.Header.Get("Cookie"); existing != "" {
			cookie = existing + "; " + cookie
		}
		req.Header.Set("Cookie", cookie)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}

	body, decoded, err := decodedBody(resp)
	if err != nil {
		resp.Body.Close()
		return nil, err
	}
	if decoded {
		resp.Body = body
		resp.Header.Del("Content-Encoding")
		resp.Header.Del("Content-Length")
		resp.ContentLength = -1
	}
	return resp, nil
}

// Page is one fully-read upstream response.
type Page struct {
	// URL is where the body actually came from, after HTTP redirects.
	URL         *url.URL
	Body        []byte
	ContentType string
	StatusCode  int
}

func (c *Client) fetchPage(ctx context.Context, target *url.URL) (*Page, error) {
	resp, err := c.Do(ctx, target, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := readLimited(resp.Body, c.cfg.MaxBodyBytes)
	if err != nil {
		return nil, err
	}
	return &Page{
		URL:         responseURL(resp, target),
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
	}, nil
}

func responseURL(resp *http.Response, fallback *url.URL) *url.URL {
	if resp.Request != nil && resp.Request.URL != nil {
		return resp.Request.URL
	}
	return fallback
}

// IsHTML reports whether a Content-Type header value denotes an HTML document.
func IsHTML(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(contentType))
	}
	return strings.Contains(mt, "text/html") || mt == "application/xhtml+xml"
}

// IsJSON reports whether a Content-Type header value denotes JSON.
func IsJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// IsHTTPURL reports whether u is an absolute http(s) URL with a host.
func IsHTTPURL(u *url.URL) bool {
	if u == nil || u.Host == "" {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

// resolveRef resolves a redirect candidate against the page it was found on.
func resolveRef(base *url.URL, ref string) (*url.URL, error) {
	next, err := base.Parse(ref)
	if err != nil {
		return nil, err
	}
	if !IsHTTPURL(next) {
		return nil, fmt.Errorf("redirect target %q is not an http(s) URL", next.String())
	}
	return next, nil
}
