package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/visit-service/internal/domain"
	"github.com/spec-kit/visit-service/internal/repository"
	apperrors "github.com/spec-kit/visit-service/pkg/util/errorutil"
)

const sessionKey = "auth_session"

// AuthMiddleware validates bearer tokens and stores the caller's session.
type AuthMiddleware struct {
	tokens   *TokenManager
	profiles repository.ProfileRepository
}

// NewAuthMiddleware constructs middleware. When profiles is set, the token
// subject must map to an active profile with the same role.
func NewAuthMiddleware(tokens *TokenManager, profiles repository.ProfileRepository) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, profiles: profiles}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}
	session := claims.Session()

	if m.profiles != nil {
		profile, err := m.profiles.GetByID(c.UserContext(), session.ActorID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NewUnauthorized("profile not found")
			}
			return apperrors.MapError(err)
		}
		if !profile.Active {
			return apperrors.NewUnauthorized("profile inactive")
		}
		if profile.Role != session.Role {
			return apperrors.NewUnauthorized("token role does not match profile")
		}
		if session.OrgID == "" {
			session.OrgID = profile.OrgID
		}
	}

	SetSession(c, session)
	return c.Next()
}

// SetSession stores session on the request.
func SetSession(c *fiber.Ctx, session domain.Session) {
	c.Locals(sessionKey, session)
}

// SessionFromContext retrieves the authenticated session.
func SessionFromContext(c *fiber.Ctx) (domain.Session, bool) {
	session, ok := c.Locals(sessionKey).(domain.Session)
	return session, ok
}
