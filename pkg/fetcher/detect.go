package fetcher

import (
	"regexp"
	"strings"
)

// Checked in order; the first pattern that matches anywhere wins.
var redirectPatterns = []*regexp.Regexp{
	regexp.MustCompile(`window\.location\.href\s*=\s*["']([^"']+)["']`),
	regexp.MustCompile(`window\.location\s*=\s*["']([^"']+)["']`),
	regexp.MustCompile(`(?i)content\s*=\s*["']\s*\d*(?:\.\d+)?\s*;\s*url\s*=\s*['"]?([^"'>]+?)['"]?\s*["']`),
}

// DetectRedirect looks for a client-side redirect in an HTML body: a
// script assignment to window.location(.href) or a meta refresh. It is a
// text heuristic and never parses the document.
func DetectRedirect(body string) (string, bool) {
	for _, re := range redirectPatterns {
		m := re.FindStringSubmatch(body)
		if m == nil {
			continue
		}
		if target := strings.TrimSpace(m[1]); target != "" {
			return target, true
		}
	}
	return "", false
}
