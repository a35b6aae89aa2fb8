package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/andesco/fluxgate/pkg/config"
	"github.com/andesco/fluxgate/pkg/fetcher"
	"github.com/andesco/fluxgate/pkg/format"
)

// hop-by-hop and framing headers that must not be relayed as-is.
var skipHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Proxy-Connection":    true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
	"Content-Length":      true,
}

// ProxySite relays the upstream response for ?url= with its body streamed
// through. JSON keeps the origin's headers untouched; everything else gets
// the CORS table and the observed Content-Type.
func ProxySite(cfg *config.Config, client *fetcher.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Query("url")
		if raw == "" {
			return c.Status(fiber.StatusBadRequest).JSON(format.Fail("URL required"))
		}
		req, err := format.NewRequest(raw, format.Proxy, "", cfg)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(format.Fail(err.Error()))
		}

		if cfg.LogURLs {
			log.Info().Str("url", req.URL.String()).Msg("proxy")
		}

		resp, err := client.Passthrough(c.UserContext(), req.URL, cfg.PassthroughHops)
		if err != nil {
			log.Error().Err(err).Str("url", req.URL.String()).Msg("passthrough fetch failed")
			return c.Status(fiber.StatusBadGateway).JSON(format.Fail("Fetch failed"))
		}

		copyHeaders(c, resp.Header)
		contentType := resp.Header.Get("Content-Type")
		if !fetcher.IsJSON(contentType) {
			setCORS(c, cfg.CORS)
			if contentType != "" {
				c.Set(fiber.HeaderContentType, contentType)
			}
		}
		c.Set("X-Proxied-By", config.ProxiedBy)
		c.Set("X-Proxy-Mode", config.ProxyMode)

		c.Status(resp.StatusCode)
		// fasthttp closes the stream once it has been written out.
		return c.SendStream(resp.Body)
	}
}

func copyHeaders(c *fiber.Ctx, h http.Header) {
	for key, values := range h {
		if skipHeaders[http.CanonicalHeaderKey(key)] {
			continue
		}
		if strings.EqualFold(key, fiber.HeaderSetCookie) {
			for _, v := range values {
				c.Response().Header.Add(key, v)
			}
			continue
		}
		c.Set(key, strings.Join(values, ", "))
	}
}
