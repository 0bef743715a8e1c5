package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/visit-service/internal/domain"
	"github.com/spec-kit/visit-service/internal/repository"
	apperrors "github.com/spec-kit/visit-service/pkg/util/errorutil"
)

type stubProfiles map[string]domain.Profile

func (s stubProfiles) GetByID(_ context.Context, id string) (*domain.Profile, error) {
	p, ok := s[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &p, nil
}

func (s stubProfiles) List(context.Context, repository.ProfileFilter) ([]domain.Profile, error) {
	return nil, nil
}

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", "idp", 5)
	session := domain.Session{ActorID: "doc-1", Role: domain.RoleDoctor, OrgID: "org-1"}

	token, expiresAt, err := tm.GenerateToken(session)
	require.NoError(t, err)
	assert.False(t, expiresAt.IsZero())

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, session, claims.Session())
}

func TestParseTokenRejections(t *testing.T) {
	good := NewTokenManager("secret", "idp", 5)

	otherIssuer, _, err := NewTokenManager("secret", "elsewhere", 5).GenerateToken(domain.Session{ActorID: "a", Role: domain.RoleNurse})
	require.NoError(t, err)
	_, err = good.ParseToken(otherIssuer)
	assert.Error(t, err)

	otherSecret, _, err := NewTokenManager("nope", "idp", 5).GenerateToken(domain.Session{ActorID: "a", Role: domain.RoleNurse})
	require.NoError(t, err)
	_, err = good.ParseToken(otherSecret)
	assert.Error(t, err)

	badRole, _, err := good.GenerateToken(domain.Session{ActorID: "a", Role: "janitor"})
	require.NoError(t, err)
	_, err = good.ParseToken(badRole)
	assert.Error(t, err)
}

func newTestApp(m *AuthMiddleware, guards ...fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: func(c *fiber.Ctx, err error) error {
		var domainErr *apperrors.DomainError
		if errors.As(err, &domainErr) {
			return c.Status(domainErr.HTTPStatus).SendString(domainErr.Code)
		}
		return c.SendStatus(http.StatusInternalServerError)
	}})
	handlers := append([]fiber.Handler{m.Handle}, guards...)
	handlers = append(handlers, func(c *fiber.Ctx) error {
		session, ok := SessionFromContext(c)
		if !ok {
			return c.SendStatus(http.StatusInternalServerError)
		}
		return c.SendString(session.ActorID + "|" + string(session.Role) + "|" + session.OrgID)
	})
	app.Get("/me", handlers...)
	return app
}

func TestMiddlewareBuildsSession(t *testing.T) {
	tm := NewTokenManager("secret", "", 5)
	profiles := stubProfiles{
		"nurse-1": {ID: "nurse-1", Role: domain.RoleNurse, OrgID: "org-7", Active: true},
		"nurse-2": {ID: "nurse-2", Role: domain.RoleNurse, Active: false},
	}
	app := newTestApp(NewAuthMiddleware(tm, profiles))

	call := func(header string) (int, string) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	token, _, err := tm.GenerateToken(domain.Session{ActorID: "nurse-1", Role: domain.RoleNurse})
	require.NoError(t, err)
	status, body := call("Bearer " + token)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "nurse-1|nurse|org-7", body)

	status, body = call("")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", body)

	status, _ = call("Token " + token)
	assert.Equal(t, http.StatusUnauthorized, status)

	inactive, _, _ := tm.GenerateToken(domain.Session{ActorID: "nurse-2", Role: domain.RoleNurse})
	status, _ = call("Bearer " + inactive)
	assert.Equal(t, http.StatusUnauthorized, status)

	wrongRole, _, _ := tm.GenerateToken(domain.Session{ActorID: "nurse-1", Role: domain.RoleDoctor})
	status, _ = call("Bearer " + wrongRole)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRequireRole(t *testing.T) {
	tm := NewTokenManager("secret", "", 5)
	app := newTestApp(NewAuthMiddleware(tm, nil), RequireRole(domain.RoleAdmin, domain.RoleControlRoom))

	nurse, _, _ := tm.GenerateToken(domain.Session{ActorID: "n", Role: domain.RoleNurse})
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+nurse)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	control, _, _ := tm.GenerateToken(domain.Session{ActorID: "c", Role: domain.RoleControlRoom})
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+control)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
