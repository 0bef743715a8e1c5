package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/visit-service/internal/domain"
	apperrors "github.com/spec-kit/visit-service/pkg/util/errorutil"
)

// RequireRole rejects sessions outside the allowed roles before the handler
// runs. Services still check the permission matrix on every call.
func RequireRole(allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		session, ok := SessionFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[session.Role]; !exists {
			return apperrors.NewForbidden("insufficient role", map[string]any{"role": session.Role})
		}
		return c.Next()
	}
}
