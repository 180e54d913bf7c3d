package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// HandleContextMiddleware extracts the verified Codeforces handle the auth
// layer forwards on each request. The platform trusts the gateway for
// identity; here we only make the handle available to handlers that want a
// requester (creator-only start and delete).
func HandleContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if handle := strings.TrimSpace(c.Get("X-User-Handle")); handle != "" {
			c.Locals("handle", handle)
		}
		return c.Next()
	}
}
