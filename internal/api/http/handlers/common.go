package handlers

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/visit-service/internal/auth"
	"github.com/spec-kit/visit-service/internal/domain"
	apperrors "github.com/spec-kit/visit-service/pkg/util/errorutil"
)

func requireSession(c *fiber.Ctx) (domain.Session, error) {
	session, ok := auth.SessionFromContext(c)
	if !ok {
		return domain.Session{}, apperrors.NewUnauthorized("authentication required")
	}
	return session, nil
}

func requestContext(c *fiber.Ctx) context.Context {
	return c.UserContext()
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return nil
}

func documentRef(c *fiber.Ctx) (domain.DocumentRef, error) {
	kind := domain.DocumentKind(c.Params("kind"))
	if !kind.Valid() {
		return domain.DocumentRef{}, apperrors.NewValidationError("unknown document kind", map[string]any{"kind": kind})
	}
	return domain.DocumentRef{Kind: kind, ID: c.Params("id")}, nil
}

func splitList(val string) []string {
	if val == "" {
		return nil
	}
	var parts []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

func optionalString(val string) *string {
	if val == "" {
		return nil
	}
	return &val
}

func parseTime(val string) *time.Time {
	if val == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil
	}
	return &t
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
