package fetcher

import (
	"net/http"
	"strings"
)

// cookieCarry forwards cookies set on one hop to the next. A later
// Set-Cookie for the same name replaces the earlier value; attributes
// (Path, Domain, Expires) are not interpreted.
type cookieCarry struct {
	names  []string
	values map[string]string
}

func newCookieCarry() *cookieCarry {
	return &cookieCarry{values: make(map[string]string)}
}

func (c *cookieCarry) absorb(resp *http.Response) {
	for _, ck := range resp.Cookies() {
		if _, seen := c.values[ck.Name]; !seen {
			c.names = append(c.names, ck.Name)
		}
		c.values[ck.Name] = ck.Value
	}
}

// header renders the Cookie request header value, "" when empty.
func (c *cookieCarry) header() string {
	if len(c.names) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(c.names))
	for _, name := range c.names {
		pairs = append(pairs, name+"="+c.values[name])
	}
	return strings.Join(pairs, "; ")
}
