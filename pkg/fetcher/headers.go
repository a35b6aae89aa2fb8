package fetcher

import (
	"net/http"
	"net/url"

	"github.com/andesco/fluxgate/pkg/ruleset"
)

// BrowserHeaders returns a fresh header set that looks like desktop Chrome
// navigating to u. Origin and Referer point at u's own origin when it has one.
func BrowserHeaders(u *url.URL, userAgent string) http.Header {
	h := make(http.Header, 16)
	h.Set("User-Agent", userAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Accept-Encoding", "gzip, deflate, br")
	h.Set("Cache-Control", "max-age=0")
	h.Set("Sec-Ch-Ua", `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`)
	h.Set("Sec-Ch-Ua-Mobile", "?0")
	h.Set("Sec-Ch-Ua-Platform", `"Windows"`)
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-Site", "none")
	h.Set("Sec-Fetch-User", "?1")
	h.Set("Upgrade-Insecure-Requests", "1")

	if origin := originOf(u); origin != "" {
		h.Set("Origin", origin)
		h.Set("Referer", origin)
	}
	return h
}

// originOf serializes the scheme/host origin of u, or "" for an opaque
// ("null") origin.
func originOf(u *url.URL) string {
	if u == nil || u.Scheme == "" || u.Host == "" || u.Opaque != "" {
		return ""
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss", "ftp":
	default:
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// applyRule layers per-domain overrides on top of the browser defaults.
func applyRule(h http.Header, rule ruleset.Rule, forwardedFor string) {
	if v := rule.Headers.UserAgent; v != "" {
		h.Set("User-Agent", v)
	}

	switch v := rule.Headers.XForwardedFor; v {
	case "":
		if forwardedFor != "" {
			h.Set("X-Forwarded-For", forwardedFor)
		}
	case "none":
	default:
		h.Set("X-Forwarded-For", v)
	}

	switch v := rule.Headers.Referer; v {
	case "":
	case "none":
		h.Del("Referer")
	default:
		h.Set("Referer", v)
	}

	if v := rule.Headers.Cookie; v != "" {
		h.Set("Cookie", v)
	}
}
