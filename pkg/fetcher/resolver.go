package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
)

// Resolution is the state of the client-side redirect loop once it stops.
type Resolution struct {
	Page    *Page
	Hops    int
	Elapsed time.Duration
}

// Resolve fetches target and then keeps following client-side redirects
// found in HTML bodies until none is found or maxHops have been taken.
// Only a failure of the very first fetch is an error; a failed hop ends the
// loop with the last page that was fetched successfully.
func (c *Client) Resolve(ctx context.Context, target *url.URL, maxHops int) (*Resolution, error) {
	start := time.Now()

	page, err := c.fetchPage(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFetch, err)
	}

	state := Resolution{Page: page}
	for state.Hops < maxHops && IsHTML(state.Page.ContentType) {
		candidate, ok := DetectRedirect(string(state.Page.Body))
		if !ok {
			break
		}
		next, err := resolveRef(state.Page.URL, candidate)
		if err != nil {
			log.Debug().Err(err).Str("from", state.Page.URL.String()).Msg("ignoring unusable redirect target")
			break
		}
		page, err := c.fetchPage(ctx, next)
		if err != nil {
			log.Warn().Err(err).Str("url", next.String()).Int("hop", state.Hops+1).Msg("redirect hop failed, keeping last page")
			break
		}
		state.Page = page
		state.Hops++
	}

	state.Elapsed = time.Since(start)
	return &state, nil
}

// Passthrough fetches target for verbatim relay, following up to maxHops
// client-side redirects. Cookies set on one hop are sent on the next. Only
// HTML bodies are buffered (to look for a redirect); anything else is
// returned with its body unread so the caller can stream it.
// Any failure, including on a later hop, is returned as ErrUpstreamFetch.
func (c *Client) Passthrough(ctx context.Context, target *url.URL, maxHops int) (*http.Response, error) {
	jar := newCookieCarry()
	current := target

	for hops := 0; ; hops++ {
		resp, err := c.Do(ctx, current, jar.header())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUpstreamFetch, err)
		}
		jar.absorb(resp)

		if hops >= maxHops || !IsHTML(resp.Header.Get("Content-Type")) {
			return resp, nil
		}

		body, err := readLimited(resp.Body, c.cfg.MaxBodyBytes)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUpstreamFetch, err)
		}
		resp.Body = io.NopCloser(bytes.NewReader(body))

		candidate, ok := DetectRedirect(string(body))
		if !ok {
			return resp, nil
		}
		next, err := resolveRef(responseURL(resp, current), candidate)
		if err != nil {
			return resp, nil
		}
		current = next
	}
}
