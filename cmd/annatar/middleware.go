package main

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/annatar-tv/annatar/pkg/debrid"
)

// createConfigMiddleware creates a middleware that validates the user's addon
// configuration before the stream handler runs.
func createConfigMiddleware(registry *debrid.Registry, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		udString := c.Params("userData", "")
		if udString == "" {
			return c.SendStatus(fiber.StatusUnauthorized)
		}
		userData, err := decodeUserData(udString, logger)
		if err != nil {
			// It's most likely a client-side encoding error
			return c.SendStatus(fiber.StatusBadRequest)
			// The error is already logged by decodeUserData
		}

		if userData.DebridAPIkey == "" {
			return c.SendStatus(fiber.StatusUnauthorized)
		}
		if _, found := registry.Get(userData.DebridService); !found {
			logger.Info("User data names an unknown debrid service", zap.String("debridService", userData.DebridService))
			return c.SendStatus(fiber.StatusBadRequest)
		}

		// Note: We don't put the decoded config into the context, because the
		// stream handler doesn't have access to the fiber context and decodes
		// the user data itself.

		return c.Next()
	}
}
