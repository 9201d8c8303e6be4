package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-desk/internal/domain"
	util "github.com/spec-kit/support-desk/pkg/util"
)

// RequireRole limits a route to the listed roles. It must run after
// AuthMiddleware.Handle.
func RequireRole(roles ...domain.Role) fiber.Handler {
	allowed := make(map[domain.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return util.NewUnauthorized("authentication required")
		}
		if _, ok := allowed[principal.Actor.Role]; !ok {
			return util.NewForbidden("access denied")
		}
		return c.Next()
	}
}

// RequireAnyRole only checks that a principal is present.
func RequireAnyRole() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFromContext(c); !ok {
			return util.NewUnauthorized("authentication required")
		}
		return c.Next()
	}
}
