package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/givetag/givetag/internal/authgate"
	"github.com/givetag/givetag/internal/ledger"
)

// Locals keys set by the session middleware.
const (
	SessionTagKey    = "session_tag"
	SessionMethodKey = "session_method"
)

// Session validates the bearer session token and exposes its subject tag to
// downstream handlers. It does not decide which tag the handler may touch;
// that is the handler's or RequireTagScope's job.
func Session(secret []byte) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		token := strings.TrimSpace(authz[len("Bearer "):])

		session, err := authgate.ParseSession(token, secret)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid session")
		}

		c.Locals(SessionTagKey, session.TagCode)
		c.Locals(SessionMethodKey, session.Method)
		return c.Next()
	}
}

// RequireTagScope rejects requests whose session subject differs from the
// :code route parameter. A session for tag A never reads tag B.
func RequireTagScope() fiber.Handler {
	return func(c *fiber.Ctx) error {
		sessionTag, _ := c.Locals(SessionTagKey).(string)
		if sessionTag == "" || sessionTag != ledger.NormalizeCode(c.Params("code")) {
			return fiber.NewError(http.StatusUnauthorized, "session does not cover this tag")
		}
		return c.Next()
	}
}
