package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
)

const userIDKey = "user_id"

// JWTMiddleware validates bearer tokens and stores the caller's id in locals.
// Handlers read it back with UserID instead of any process-wide state.
func JWTMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerFromHeader(c.Get(fiber.HeaderAuthorization))
		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		claims, err := ParseToken(secret, token)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}

		c.Locals(userIDKey, claims.UserID)
		return c.Next()
	}
}

// WebsocketUser authenticates a websocket upgrade. Browsers cannot set
// headers on the upgrade request, so the token may also arrive as the
// access_token query parameter.
func WebsocketUser(secret string, c *fiber.Ctx) (string, error) {
	token := bearerFromHeader(c.Get(fiber.HeaderAuthorization))
	if token == "" {
		token = c.Query("access_token")
	}
	if token == "" {
		return "", errors.Wrap(ErrTokenInvalid, "missing token")
	}
	claims, err := ParseToken(secret, token)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

// UserID returns the authenticated caller, or "" on routes without the middleware.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(userIDKey).(string)
	return id
}

func bearerFromHeader(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
