package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/andesco/fluxgate/pkg/config"
	"github.com/andesco/fluxgate/pkg/fetcher"
	"github.com/andesco/fluxgate/pkg/format"
)

// NewApp builds the fiber app with every /api route registered.
func NewApp(cfg *config.Config, client *fetcher.Client) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "FluxGate",
		Prefork:               cfg.Prefork,
		DisableStartupMessage: true,
		// Query values outlive the handler in log fields and upstream URLs.
		Immutable: true,
	})
	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(RequestLogger())

	Register(app, cfg, client)
	return app
}

// Register mounts the passthrough and extraction endpoints on router.
func Register(router fiber.Router, cfg *config.Config, client *fetcher.Client) {
	api := router.Group("/api")
	api.Options("/*", Preflight(cfg))
	api.Get("/proxy", ProxySite(cfg, client))
	for _, f := range format.Extraction {
		api.Get("/"+string(f), ExtractSite(cfg, client, f))
	}
}

// Preflight answers CORS preflight requests for any /api path.
func Preflight(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		setCORS(c, cfg.CORS)
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func setCORS(c *fiber.Ctx, cors config.Headers) {
	for _, h := range cors {
		c.Set(h.Key, h.Value)
	}
}

// RequestLogger writes one access log line per request.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		ev := log.Info()
		if err != nil {
			ev = log.Error().Err(err)
		}
		ev.Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", c.Response().StatusCode()).
			Dur("latency", time.Since(start)).
			Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).
			Msg("request")
		return err
	}
}
