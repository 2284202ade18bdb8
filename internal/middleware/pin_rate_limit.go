package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// PINRateLimit limits PIN verification attempts per tag code or IP using
// Redis if available. Throttling by tag code blunts online PIN guessing
// against a known tag.
func PINRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next() // no-op without Redis
		}
		var req struct {
			TagCode string `json:"tag_code"`
		}
		_ = c.BodyParser(&req)
		subject := strings.ToUpper(strings.TrimSpace(req.TagCode))
		if subject == "" {
			subject = c.IP()
		}
		key := "rl:pin:" + subject
		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err == nil && cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		if err != nil {
			return c.Next() // fail-open on cache errors
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many attempts, try again later")
		}
		return c.Next()
	}
}
