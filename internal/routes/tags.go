package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/givetag/givetag/internal/middleware"
	"github.com/givetag/givetag/internal/tag"
)

// RegisterTagRoutes wires tag issuance and the gated balance view. Reading a
// tag requires a session whose subject is that tag.
func RegisterTagRoutes(api fiber.Router, h *tag.Handler, session fiber.Handler) {
	api.Post("/tags", h.Create)
	api.Get("/tag/:code", session, middleware.RequireTagScope(), h.Summary)
}
