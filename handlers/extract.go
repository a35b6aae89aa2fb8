package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/andesco/fluxgate/pkg/config"
	"github.com/andesco/fluxgate/pkg/fetcher"
	"github.com/andesco/fluxgate/pkg/format"
)

// ExtractSite serves one extraction format: resolve client-side redirects,
// tokenize the final page once and answer with the format's payload inside
// the success envelope.
func ExtractSite(cfg *config.Config, client *fetcher.Client, f format.Format) fiber.Handler {
	return func(c *fiber.Ctx) error {
		setCORS(c, cfg.CORS)

		raw := c.Query("url")
		if raw == "" {
			return c.Status(fiber.StatusBadRequest).JSON(format.Fail("URL required"))
		}
		req, err := format.NewRequest(raw, f, selectorParam(c, f), cfg)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(format.Fail(err.Error()))
		}

		if cfg.LogURLs {
			log.Info().Str("url", req.URL.String()).Str("format", string(f)).Msg("extract")
		}

		res, err := client.Resolve(c.UserContext(), req.URL, cfg.ExtractHops)
		if err != nil {
			log.Error().Err(err).Str("url", req.URL.String()).Msg("extraction fetch failed")
			return c.Status(fiber.StatusBadRequest).JSON(format.Fail(err.Error()))
		}

		result, err := format.Build(req, res)
		if err != nil {
			log.Error().Err(err).Str("url", req.URL.String()).Msg("extraction failed")
			return c.Status(fiber.StatusInternalServerError).JSON(format.Fail(err.Error()))
		}

		log.Debug().
			Str("url", result.URL).
			Int("hops", res.Hops).
			Int("status", result.Status.HTTPCode).
			Int64("ms", result.Status.ResponseTimeMS).
			Msg("extracted")

		return c.JSON(format.OK(format.Serialize(f, result)))
	}
}

func selectorParam(c *fiber.Ctx, f format.Format) string {
	switch f {
	case format.Class:
		return c.Query("class")
	case format.ID:
		return c.Query("id")
	}
	return ""
}
