// middleware/auth.go
package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog/log"
)

const (
	LocalUserID    = "user_id"
	LocalUserRoles = "user_roles"

	RoleAdmin = "admin"
)

// Claims is the access token payload issued by the identity provider.
type Claims struct {
	Name  string   `json:"name,omitempty"`
	Email string   `json:"email,omitempty"`
	Role  string   `json:"role,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// AllRoles merges the single role claim with the roles list.
func (c *Claims) AllRoles() []string {
	var roles []string
	if r := strings.TrimSpace(c.Role); r != "" {
		roles = append(roles, strings.ToLower(r))
	}
	for _, r := range c.Roles {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, strings.ToLower(r))
		}
	}
	return roles
}

// UserRecorder persists the identity behind a valid token.
type UserRecorder interface {
	EnsureUser(ctx context.Context, id, name, email string) error
}

// ParseToken validates an HS256 token and returns its claims.
func ParseToken(secret, raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// Authenticate requires a Bearer token and attaches the caller's id and roles.
// users may be nil.
func Authenticate(secret string, users UserRecorder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		raw := strings.TrimPrefix(authHeader, "Bearer ")
		if authHeader == "" || raw == authHeader {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing bearer token",
				"code":  "UNAUTHORIZED",
			})
		}

		claims, err := ParseToken(secret, strings.TrimSpace(raw))
		if err != nil {
			log.Debug().Err(err).Str("path", c.Path()).Msg("🚫 [AUTH] rejected token")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid or expired token",
				"code":  "UNAUTHORIZED",
			})
		}

		if users != nil {
			if err := users.EnsureUser(c.UserContext(), claims.Subject, claims.Name, claims.Email); err != nil {
				log.Error().Err(err).Str("user_id", claims.Subject).Msg("❌ [AUTH] failed to record user")
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "Internal server error",
					"code":  "INTERNAL",
				})
			}
		}

		c.Locals(LocalUserID, claims.Subject)
		c.Locals(LocalUserRoles, claims.AllRoles())
		return c.Next()
	}
}

// RequireAdmin must run after Authenticate.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !HasRole(c, RoleAdmin) {
			log.Warn().Str("user_id", UserID(c)).Str("path", c.Path()).Msg("🚫 [AUTH] admin role required")
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "admin role required",
				"code":  "FORBIDDEN",
			})
		}
		return c.Next()
	}
}

func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalUserID).(string)
	return id
}

func HasRole(c *fiber.Ctx, role string) bool {
	roles, _ := c.Locals(LocalUserRoles).([]string)
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
