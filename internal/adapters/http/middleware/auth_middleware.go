package middleware

import (
	"strings"

	"servio-crm/internal/config"
	"servio-crm/internal/core/authz"
	"servio-crm/internal/pkg/jwt"
	"servio-crm/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// AuthMiddleware creates authentication middleware
func AuthMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var accessToken string

		// 1. Try to get token from cookie first
		accessToken = c.Cookies("access_token")

		// 2. If not in cookie, try Authorization header
		if accessToken == "" {
			authHeader := c.Get("Authorization")
			if authHeader != "" && strings.HasPrefix(authHeader, "Bearer ") {
				accessToken = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		// 3. No token found
		if accessToken == "" {
			return response.Unauthorized(c, "Access token required")
		}

		// 4. Validate token
		claims, err := jwt.ValidateAccessToken(accessToken, cfg.JWT.Secret)
		if err != nil {
			if err == jwt.ErrTokenExpired {
				return response.Unauthorized(c, "Access token expired")
			}
			return response.Unauthorized(c, "Invalid access token")
		}

		// 5. Set user info in context
		c.Locals("userID", claims.UserID)
		c.Locals("username", claims.Username)
		c.Locals("role", claims.Role)

		return c.Next()
	}
}

// ActorFromCtx builds the caller identity from the validated token claims
func ActorFromCtx(c *fiber.Ctx) authz.Identity {
	id, _ := c.Locals("userID").(uint)
	username, _ := c.Locals("username").(string)
	role, _ := c.Locals("role").(string)
	return authz.Identity{
		UserID:   id,
		Username: username,
		Role:     strings.ToUpper(role),
	}
}
