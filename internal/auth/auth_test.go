package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-desk/internal/domain"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

const agentID = "3f9a1c52-7e0b-4d8e-9c61-2a4b5d6e7f80"

type recordingAssigner struct {
	calls []string
	err   error
}

func (r *recordingAssigner) TryAssign(_ context.Context, id string) (*domain.Ticket, error) {
	r.calls = append(r.calls, id)
	return nil, r.err
}

func newTestApp(m *AuthMiddleware) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).JSON(fiber.Map{"code": de.Code})
		},
	})
	app.Get("/me", m.Handle, func(c *fiber.Ctx) error {
		p, ok := PrincipalFromContext(c)
		if !ok {
			return errors.New("principal missing")
		}
		return c.JSON(fiber.Map{"id": p.UserID, "role": p.Role})
	})
	app.Get("/clients", m.Handle, RequireClient(), func(c *fiber.Ctx) error { return c.SendStatus(http.StatusNoContent) })
	app.Get("/staff", m.Handle, RequireStaffRole(), func(c *fiber.Ctx) error { return c.SendStatus(http.StatusNoContent) })
	return app
}

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	token, expires, err := tm.GenerateToken(agentID, domain.RoleSupport)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if expires.IsZero() {
		t.Error("expiry not set")
	}

	claims, err := tm.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Subject != agentID || claims.Role != domain.RoleSupport {
		t.Errorf("claims = %s/%s", claims.Subject, claims.Role)
	}

	if _, err := NewTokenManager("other", 5).ParseToken(token); err == nil {
		t.Error("token signed with another secret was accepted")
	}
}

func TestAuthMiddleware(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	supportToken, _, _ := tm.GenerateToken(agentID, domain.RoleSupport)
	clientToken, _, _ := tm.GenerateToken("6b1e2d3c-4a5f-4e6d-8c7b-9a0f1e2d3c4b", domain.RoleClient)
	badSubject, _, _ := tm.GenerateToken("not-a-uuid", domain.RoleClient)
	badRole, _, _ := tm.GenerateToken(agentID, domain.Role("janitor"))

	cases := []struct {
		name   string
		path   string
		header string
		cookie string
		want   int
	}{
		{"no credentials", "/me", "", "", http.StatusUnauthorized},
		{"malformed header", "/me", "Token abc", "", http.StatusUnauthorized},
		{"garbage token", "/me", "Bearer abc", "", http.StatusUnauthorized},
		{"subject not uuid", "/me", "Bearer " + badSubject, "", http.StatusUnauthorized},
		{"unknown role", "/me", "Bearer " + badRole, "", http.StatusUnauthorized},
		{"bearer", "/me", "Bearer " + clientToken, "", http.StatusOK},
		{"cookie", "/me", "", clientToken, http.StatusOK},
		{"client route as client", "/clients", "Bearer " + clientToken, "", http.StatusNoContent},
		{"client route as staff", "/clients", "Bearer " + supportToken, "", http.StatusForbidden},
		{"staff route as client", "/staff", "Bearer " + clientToken, "", http.StatusForbidden},
		{"staff route as staff", "/staff", "Bearer " + supportToken, "", http.StatusNoContent},
	}

	app := newTestApp(NewAuthMiddleware(tm, "access_token", nil, nil))
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "access_token", Value: tc.cookie})
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			if resp.StatusCode != tc.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}

func TestAuthMiddlewareTriggersAssignmentForSupport(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	assigner := &recordingAssigner{err: errors.New("database unavailable")}
	app := newTestApp(NewAuthMiddleware(tm, "access_token", assigner, nil))

	supportToken, _, _ := tm.GenerateToken(agentID, domain.RoleSupport)
	adminToken, _, _ := tm.GenerateToken("7c2d3e4f-5a6b-4c7d-8e9f-0a1b2c3d4e5f", domain.RoleAdmin)

	for _, token := range []string{supportToken, adminToken} {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want 200 even when the queue fails", resp.StatusCode)
		}
	}

	if len(assigner.calls) != 1 || assigner.calls[0] != agentID {
		t.Errorf("assigner calls = %v, want only the support agent", assigner.calls)
	}
}
