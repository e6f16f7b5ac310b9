package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/identity-service/internal/domain"
	apperrors "github.com/spec-kit/identity-service/pkg/util"
)

// RequireRole ensures the principal's live role is in the allow-list.
func RequireRole(allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, err := MustPrincipal(c)
		if err != nil {
			return err
		}
		if !RoleAllowed(principal.Role(), allowedSet) {
			return apperrors.NewForbidden("Insufficient permissions")
		}
		return c.Next()
	}
}

// RequireOwner allows only the owner.
func RequireOwner() fiber.Handler {
	return RequireRole(domain.RoleOwner)
}

// RequireAdmin allows owners and admins.
func RequireAdmin() fiber.Handler {
	return RequireRole(domain.RoleOwner, domain.RoleAdmin)
}

// RoleAllowed is the set-membership check behind RequireRole. An empty set
// allows any authenticated role.
func RoleAllowed(role domain.Role, allowed map[domain.Role]struct{}) bool {
	if len(allowed) == 0 {
		return true
	}
	_, ok := allowed[role]
	return ok
}
