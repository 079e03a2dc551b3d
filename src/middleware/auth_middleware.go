package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang/glog"
	"github.com/theleywin/workkie/src/controllers"
	"github.com/theleywin/workkie/src/lib"
)

// ProtectRoute checks the bearer token and attaches the caller's identity to
// the request
func ProtectRoute(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(lib.MessageResponse("Unauthorized - no token provided"))
		}

		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(lib.MessageResponse("Unauthorized - invalid token format"))
		}

		identity, err := lib.VerifyJWT(secret, token)
		if err != nil {
			glog.V(1).Infof("[auth] rejected token: %v", err)
			return c.Status(fiber.StatusUnauthorized).JSON(lib.MessageResponse("Unauthorized - invalid token"))
		}

		controllers.SetIdentity(c, identity)
		return c.Next()
	}
}
