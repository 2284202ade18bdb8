package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/givetag/givetag/internal/authgate"
)

// RegisterAuthRoutes wires PIN and biometric verification endpoints. All of
// them are public; access control is the whole point of the handlers.
func RegisterAuthRoutes(api fiber.Router, h *authgate.Handler, pinRateLimit fiber.Handler) {
	auth := api.Group("/auth")
	auth.Post("/pin", pinRateLimit, h.VerifyPIN)
	auth.Post("/biometric/begin", h.BeginBiometric)
	auth.Post("/biometric/complete", h.CompleteBiometric)
}
