package auth

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/domain"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// AssignmentTrigger runs the assignment queue for a support agent.
type AssignmentTrigger interface {
	TryAssign(ctx context.Context, agentID string) (*domain.Ticket, error)
}

// AuthMiddleware validates bearer tokens and stores the principal.
type AuthMiddleware struct {
	tokens     *TokenManager
	cookieName string
	assigner   AssignmentTrigger
	logger     *zap.Logger
}

// NewAuthMiddleware constructs middleware. A nil assigner disables
// assignment on authentication.
func NewAuthMiddleware(tokens *TokenManager, cookieName string, assigner AssignmentTrigger, logger *zap.Logger) *AuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthMiddleware{tokens: tokens, cookieName: cookieName, assigner: assigner, logger: logger}
}

// Handle enforces authentication for protected routes. Authenticated support
// agents are offered the next queued ticket before the request proceeds.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	token, err := m.extractToken(c)
	if err != nil {
		return err
	}

	claims, err := m.tokens.ParseToken(token)
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return apperrors.NewUnauthorized("invalid token subject")
	}
	if !claims.Role.Valid() {
		return apperrors.NewUnauthorized("unknown role")
	}

	principal := domain.Principal{UserID: claims.Subject, Role: claims.Role}
	c.Locals(principalKey, principal)

	if principal.Role == domain.RoleSupport && m.assigner != nil {
		if _, err := m.assigner.TryAssign(c.UserContext(), principal.UserID); err != nil {
			m.logger.Error("assignment queue failed",
				zap.String("agent_id", principal.UserID),
				zap.Error(err))
		}
	}
	return c.Next()
}

func (m *AuthMiddleware) extractToken(c *fiber.Ctx) (string, error) {
	if header := c.Get(fiber.HeaderAuthorization); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			return "", apperrors.NewUnauthorized("invalid authorization header")
		}
		return strings.TrimSpace(parts[1]), nil
	}
	if m.cookieName != "" {
		if cookie := c.Cookies(m.cookieName); cookie != "" {
			return cookie, nil
		}
	}
	return "", apperrors.NewUnauthorized("missing credentials")
}

// PrincipalFromContext retrieves the authenticated caller.
func PrincipalFromContext(c *fiber.Ctx) (domain.Principal, bool) {
	principal, ok := c.Locals(principalKey).(domain.Principal)
	return principal, ok
}
