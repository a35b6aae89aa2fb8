package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andesco/fluxgate/pkg/config"
	"github.com/andesco/fluxgate/pkg/fetcher"
	"github.com/andesco/fluxgate/pkg/format"
)

type upstream struct {
	status  int
	ctype   string
	body    string
	headers map[string]string
}

// origin answers outbound fetches from a fixed table and counts them.
type origin struct {
	mu    sync.Mutex
	pages map[string]upstream
	seen  []string
}

func (o *origin) RoundTrip(req *http.Request) (*http.Response, error) {
	o.mu.Lock()
	o.seen = append(o.seen, req.URL.String())
	o.mu.Unlock()

	p, ok := o.pages[req.URL.String()]
	if !ok {
		return nil, fmt.Errorf("lookup %s: no such host", req.URL.Host)
	}
	h := make(http.Header)
	if p.ctype != "" {
		h.Set("Content-Type", p.ctype)
	}
	for k, v := range p.headers {
		h.Set(k, v)
	}
	status := p.status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{StatusCode: status, Header: h, Body: io.NopCloser(strings.NewReader(p.body)), Request: req}, nil
}

func (o *origin) calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.seen)
}

func newTestApp(t *testing.T, pages map[string]upstream) (*fiber.App, *origin) {
	t.Helper()
	o := &origin{pages: pages}
	cfg := config.Default()
	client := fetcher.New(&cfg, nil, &http.Client{Transport: o})
	return NewApp(&cfg, client), o
}

func get(t *testing.T, app *fiber.App, path string, params url.Values) *http.Response {
	t.Helper()
	target := path
	if params != nil {
		target += "?" + params.Encode()
	}
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil), -1)
	require.NoError(t, err)
	return resp
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func decode(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	defer resp.Body.Close()
	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env
}

const html = "text/html; charset=utf-8"

var allEndpoints = []string{"/api/proxy", "/api/json", "/api/text", "/api/images", "/api/videos", "/api/links", "/api/class", "/api/id", "/api/html"}

func TestMissingURL(t *testing.T) {
	app, o := newTestApp(t, nil)
	for _, ep := range allEndpoints {
		resp := get(t, app, ep, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, ep)
		env := decode(t, resp)
		assert.False(t, env.Success)
		assert.Equal(t, "URL required", env.Error)
	}
	assert.Zero(t, o.calls())
}

func TestInvalidURLNeverFetches(t *testing.T) {
	app, o := newTestApp(t, nil)
	for _, raw := range []string{"not a url", "/just/a/path", "ftp://x.example/", "http://"} {
		for _, ep := range allEndpoints {
			resp := get(t, app, ep, url.Values{"url": {raw}, "class": {"c"}, "id": {"i"}})
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, ep)
			env := decode(t, resp)
			assert.False(t, env.Success)
			assert.Equal(t, format.ErrInvalidURL.Error(), env.Error)
		}
	}
	assert.Zero(t, o.calls())
}

func TestSelectorRequired(t *testing.T) {
	app, o := newTestApp(t, nil)

	resp := get(t, app, "/api/class", url.Values{"url": {"https://a.example/"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode(t, resp).Error, "selector required")

	resp = get(t, app, "/api/id", url.Values{"url": {"https://a.example/"}, "class": {"wrong-param"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, decode(t, resp).Success)

	assert.Zero(t, o.calls())
}

func TestJSONFollowsScriptRedirect(t *testing.T) {
	app, o := newTestApp(t, map[string]upstream{
		"https://a.example/":  {ctype: html, body: `<script>window.location.href = "https://b.example/x"</script>`},
		"https://b.example/x": {ctype: html, body: `<title> Final  Page </title><img src="/logo.png">`},
	})

	resp := get(t, app, "/api/json", url.Values{"url": {"https://a.example/"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	env := decode(t, resp)
	require.True(t, env.Success)
	var result format.Result
	require.NoError(t, json.Unmarshal(env.Data, &result))

	assert.Equal(t, "https://b.example/x", result.URL)
	assert.Equal(t, "https://b.example/x", result.Status.URL)
	assert.Equal(t, format.JSON, result.Format)
	assert.Equal(t, "Final Page", result.Title)
	assert.Equal(t, []string{"https://b.example/logo.png"}, result.Images)
	assert.Equal(t, 2, o.calls())
}

func TestJSONStopsAfterTwoHops(t *testing.T) {
	pages := map[string]upstream{}
	for i := 0; i < 5; i++ {
		pages[fmt.Sprintf("https://hop.example/%d", i)] = upstream{
			ctype: html,
			body:  fmt.Sprintf(`<script>window.location.href = "https://hop.example/%d"</script>`, i+1),
		}
	}
	app, _ := newTestApp(t, pages)

	env := decode(t, get(t, app, "/api/json", url.Values{"url": {"https://hop.example/0"}}))
	require.True(t, env.Success)
	var result format.Result
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, "https://hop.example/2", result.URL)
}

func TestLinksEndpoint(t *testing.T) {
	app, _ := newTestApp(t, map[string]upstream{
		"https://site.example/p/q": {ctype: html, body: `<a href="#section">s</a><a href="/a">a</a><a href="/a">again</a>`},
	})

	env := decode(t, get(t, app, "/api/links", url.Values{"url": {"https://site.example/p/q"}}))
	require.True(t, env.Success)

	var payload struct {
		Links  []string      `json:"links"`
		Status format.Status `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, []string{"https://site.example/a"}, payload.Links)
	assert.Equal(t, http.StatusOK, payload.Status.HTTPCode)
	assert.Equal(t, html, payload.Status.ContentType)
}

func TestTextEndpoint(t *testing.T) {
	app, _ := newTestApp(t, map[string]upstream{
		"https://a.example/": {ctype: html, body: `<style>p{}</style><p>Hello <b>there</b></p><script>x()</script>`},
	})

	env := decode(t, get(t, app, "/api/text", url.Values{"url": {"https://a.example/"}}))
	require.True(t, env.Success)
	assert.JSONEq(t, `"Hello there"`, string(mustField(t, env.Data, "text")))
}

func TestClassWithoutMatches(t *testing.T) {
	app, _ := newTestApp(t, map[string]upstream{
		"https://a.example/": {ctype: html, body: `<div class="other">x</div>`},
	})

	resp := get(t, app, "/api/class", url.Values{"url": {"https://a.example/"}, "class": {"card"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	env := decode(t, resp)
	require.True(t, env.Success)
	assert.JSONEq(t, `[]`, string(mustField(t, env.Data, "extractedElements")))
}

func TestIDSelector(t *testing.T) {
	app, _ := newTestApp(t, map[string]upstream{
		"https://a.example/": {ctype: html, body: `<main id="content" role="main">x</main>`},
	})

	env := decode(t, get(t, app, "/api/id", url.Values{"url": {"https://a.example/"}, "id": {"content"}}))
	require.True(t, env.Success)
	assert.JSONEq(t,
		`[{"tag":"main","attrs":{"id":"content","role":"main"},"innerText":"","innerHTML":""}]`,
		string(mustField(t, env.Data, "extractedElements")))
}

func TestExtractionUpstreamFailure(t *testing.T) {
	app, _ := newTestApp(t, nil)

	resp := get(t, app, "/api/images", url.Values{"url": {"https://down.example/"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	env := decode(t, resp)
	assert.False(t, env.Success)
	assert.Empty(t, env.Data)
	assert.Contains(t, env.Error, fetcher.ErrUpstreamFetch.Error())
}

func TestProxyJSONPreservesOrigin(t *testing.T) {
	app, _ := newTestApp(t, map[string]upstream{
		"https://api.example/data": {status: http.StatusCreated, ctype: "application/json; charset=utf-8", body: `{"ok":true}`, headers: map[string]string{"X-Upstream": "1"}},
	})

	resp := get(t, app, "/api/proxy", url.Values{"url": {"https://api.example/data"}})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, "1", resp.Header.Get("X-Upstream"))
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, config.ProxiedBy, resp.Header.Get("X-Proxied-By"))

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, `{"ok":true}`, string(body))
}

func TestProxyInjectsCORS(t *testing.T) {
	app, _ := newTestApp(t, map[string]upstream{
		"https://cdn.example/logo.svg": {ctype: "image/svg+xml", body: "<svg/>"},
	})

	resp := get(t, app, "/api/proxy", url.Values{"url": {"https://cdn.example/logo.svg"}})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/svg+xml", resp.Header.Get("Content-Type"))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, OPTIONS", resp.Header.Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type, Authorization", resp.Header.Get("Access-Control-Allow-Headers"))
	assert.Equal(t, config.ProxyMode, resp.Header.Get("X-Proxy-Mode"))

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "<svg/>", string(body))
}

func TestProxyFollowsMetaRefresh(t *testing.T) {
	app, o := newTestApp(t, map[string]upstream{
		"https://a.example/":      {ctype: html, body: `<meta http-equiv="refresh" content="0;url=/landing">`},
		"https://a.example/landing": {ctype: html, body: "<p>landed</p>"},
	})

	resp := get(t, app, "/api/proxy", url.Values{"url": {"https://a.example/"}})
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "<p>landed</p>", string(body))
	assert.Equal(t, 2, o.calls())
}

func TestProxyUpstreamFailure(t *testing.T) {
	app, _ := newTestApp(t, nil)

	resp := get(t, app, "/api/proxy", url.Values{"url": {"https://down.example/"}})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	env := decode(t, resp)
	assert.False(t, env.Success)
	assert.Equal(t, "Fetch failed", env.Error)
}

func TestPreflight(t *testing.T) {
	app, o := newTestApp(t, nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodOptions, "/api/json", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Zero(t, o.calls())
}

func TestDomainAllowList(t *testing.T) {
	o := &origin{}
	cfg := config.Default()
	cfg.AllowedDomains = []string{"allowed.example"}
	app := NewApp(&cfg, fetcher.New(&cfg, nil, &http.Client{Transport: o}))

	resp := get(t, app, "/api/json", url.Values{"url": {"https://blocked.example/"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode(t, resp).Error, "domain not allowed")
	assert.Zero(t, o.calls())
}

func mustField(t *testing.T, data json.RawMessage, key string) json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &m))
	v, ok := m[key]
	require.True(t, ok, "missing field %q", key)
	return v
}
