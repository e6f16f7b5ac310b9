package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/repository"
	apperrors "github.com/spec-kit/identity-service/pkg/util"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller. It is built once per
// request from the live user record; token claims are trusted for identity
// only.
type Principal struct {
	User   *domain.User
	Claims *Claims
}

// ID returns the caller's user id.
func (p *Principal) ID() string { return p.User.ID }

// Role returns the caller's live role.
func (p *Principal) Role() domain.Role { return p.User.Role }

// RevocationList reports whether a token id has been revoked by logout.
type RevocationList interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	tokens  *TokenManager
	users   repository.UserRepository
	revoked RevocationList
	now     func() time.Time
}

// NewAuthMiddleware constructs middleware. revoked may be nil.
func NewAuthMiddleware(tokens *TokenManager, users repository.UserRepository, revoked RevocationList) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, users: users, revoked: revoked, now: time.Now}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	principal, err := m.Authenticate(c.UserContext(), c.Get(fiber.HeaderAuthorization))
	if err != nil {
		return err
	}
	c.Locals(principalKey, principal)
	return c.Next()
}

// Authenticate resolves an Authorization header value to a principal.
func (m *AuthMiddleware) Authenticate(ctx context.Context, authHeader string) (*Principal, error) {
	if authHeader == "" {
		return nil, apperrors.NewUnauthorized("Authentication required")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return nil, apperrors.NewUnauthorized("Invalid authorization header")
	}

	claims, err := m.tokens.VerifyPurpose(strings.TrimSpace(parts[1]), domain.TokenPurposeAccess)
	if err != nil {
		return nil, apperrors.NewUnauthorized("Invalid token")
	}

	if m.revoked != nil {
		revoked, err := m.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, apperrors.NewInfrastructure(err)
		}
		if revoked {
			return nil, apperrors.NewUnauthorized("Invalid token")
		}
	}

	user, err := m.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewUnauthorized("User not found")
		}
		return nil, apperrors.NewInfrastructure(err)
	}

	user, err = repository.ReconcileSuspension(ctx, m.users, user, m.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewUnauthorized("User not found")
		}
		return nil, apperrors.NewInfrastructure(err)
	}

	if user.IsSuspended() {
		return nil, SuspendedError(user)
	}

	return &Principal{User: user, Claims: claims}, nil
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}

// MustPrincipal returns the principal or an Unauthenticated error.
func MustPrincipal(c *fiber.Ctx) (*Principal, error) {
	principal, ok := PrincipalFromContext(c)
	if !ok || principal == nil || principal.User == nil {
		return nil, apperrors.NewUnauthorized("Authentication required")
	}
	return principal, nil
}

// SuspendedError builds the AccountSuspended error for u.
func SuspendedError(u *domain.User) error {
	details := map[string]any{}
	if u.Suspension != nil {
		details["suspendedAt"] = u.Suspension.SuspendedAt
		details["reason"] = u.Suspension.Reason
		details["category"] = u.Suspension.Category
		if u.Suspension.EndsAt != nil {
			details["suspensionEnd"] = *u.Suspension.EndsAt
		}
	}
	return apperrors.NewAccountSuspended(details)
}
