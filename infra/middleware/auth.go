package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"mailminer/pkg/apperr"
)

// BearerAuth guards routes with a static API token. An empty token
// disables the check, for local development.
func BearerAuth(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token == "" {
			return c.Next()
		}

		header := c.Get("Authorization")
		provided, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return apperr.Unauthorized("missing bearer token")
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			return apperr.Unauthorized("invalid token")
		}
		return c.Next()
	}
}
