package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/givetag/givetag/internal/payments"
)

// RegisterPaymentRoutes wires donation, transfer and provider confirmation
// endpoints. Client-initiated money movements sit behind the idempotency
// middleware; the provider webhook does not, its replay safety lives in the
// ledger's external-reference handling.
func RegisterPaymentRoutes(api fiber.Router, h *payments.Handler, idem fiber.Handler, session fiber.Handler) {
	api.Post("/donate", idem, h.Donate)
	api.Post("/donations/initiate", idem, h.Initiate)
	api.Post("/transfer", session, idem, h.Transfer)
	api.Post("/payments/confirm", h.Confirm)
}
