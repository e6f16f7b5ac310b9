package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/identity-service/internal/auth"
	"github.com/spec-kit/identity-service/internal/config"
	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/events"
	"github.com/spec-kit/identity-service/internal/repository"
	apperrors "github.com/spec-kit/identity-service/pkg/util"
)

const generatedPasswordLength = 12

// SuspendInput describes an administrative suspension. DurationDays of nil
// or zero means indefinite.
type SuspendInput struct {
	Reason       string
	Category     string
	DurationDays *int
}

// AdminService implements account administration for owners and admins.
type AdminService struct {
	deps       Dependencies
	bcryptCost int
}

// NewAdminService builds the service.
func NewAdminService(cfg config.AuthConfig, deps Dependencies) *AdminService {
	return &AdminService{deps: deps.withDefaults(), bcryptCost: cfg.BcryptCost}
}

// ListUsers returns every account for the owner and only user accounts for
// admins.
func (s *AdminService) ListUsers(ctx context.Context, principal *auth.Principal) ([]domain.User, error) {
	filter := repository.UserFilter{}
	if principal.Role() != domain.RoleOwner {
		filter.Roles = []domain.Role{domain.RoleUser}
	}

	users, err := s.deps.Users.List(ctx, filter)
	if err != nil {
		return nil, storeError(err, "User")
	}

	now := s.deps.Clock()
	for i := range users {
		reconciled, err := reconcile(ctx, s.deps.Users, &users[i], now)
		if err != nil {
			return nil, err
		}
		users[i] = *reconciled
	}
	return users, nil
}

// GetUser loads one account visible to the caller.
func (s *AdminService) GetUser(ctx context.Context, principal *auth.Principal, id string) (*domain.User, error) {
	target, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if principal.Role() != domain.RoleOwner && target.Role != domain.RoleUser {
		return nil, apperrors.NewForbidden("Insufficient permissions")
	}
	return target, nil
}

// ChangeRole moves a non-owner account between admin and user.
func (s *AdminService) ChangeRole(ctx context.Context, principal *auth.Principal, id, role string) (*domain.User, error) {
	newRole := domain.Role(strings.ToLower(strings.TrimSpace(role)))
	if newRole != domain.RoleAdmin && newRole != domain.RoleUser {
		return nil, apperrors.NewValidationError("Invalid role", map[string]any{"allowed": []domain.Role{domain.RoleAdmin, domain.RoleUser}})
	}

	target, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := guardTarget(principal, target); err != nil {
		return nil, err
	}
	if target.ID == principal.ID() {
		return nil, apperrors.NewForbidden("Cannot change your own role")
	}

	target, err = s.deps.Users.SetRole(ctx, target.ID, newRole, manageableRoles(principal))
	if err != nil {
		return nil, storeError(err, "User")
	}
	s.deps.Logger.Info("role changed",
		zap.String("user_id", target.ID),
		zap.String("role", string(newRole)),
		zap.String("actor_id", principal.ID()))
	return target, nil
}

// CreateAdmin creates an admin account on behalf of the owner.
func (s *AdminService) CreateAdmin(ctx context.Context, principal *auth.Principal, in RegisterInput) (*domain.User, error) {
	if principal.Role() != domain.RoleOwner {
		return nil, apperrors.NewForbidden("Insufficient permissions")
	}
	if err := validateRegistration(in); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInfrastructure(err)
	}

	user := &domain.User{
		Name:         strings.TrimSpace(in.Name),
		Email:        domain.NormalizeEmail(in.Email),
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
		IsActive:     true,
	}
	if err := s.deps.Users.Create(ctx, user); err != nil {
		return nil, storeError(err, "User")
	}

	s.publishAs(ctx, principal, events.NewEvent(events.EventUserRegistered, user.ID, events.UserRegisteredPayload{
		Recipient: recipient(user),
		Role:      user.Role,
	}))
	return user, nil
}

// DeleteUser removes a non-owner account and everything attached to it.
func (s *AdminService) DeleteUser(ctx context.Context, principal *auth.Principal, id string) error {
	target, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := guardTarget(principal, target); err != nil {
		return err
	}
	if err := s.deps.Users.Delete(ctx, target.ID); err != nil {
		return storeError(err, "User")
	}
	s.deps.Logger.Info("user deleted", zap.String("user_id", target.ID), zap.String("actor_id", principal.ID()))
	return nil
}

// ResetPassword sets a password for the target, generating one when
// newPassword is empty. The password in effect is returned.
func (s *AdminService) ResetPassword(ctx context.Context, principal *auth.Principal, id, newPassword string) (string, error) {
	target, err := s.load(ctx, id)
	if err != nil {
		return "", err
	}
	if err := guardTarget(principal, target); err != nil {
		return "", err
	}

	generated := strings.TrimSpace(newPassword) == ""
	if generated {
		newPassword, err = auth.GeneratePassword(generatedPasswordLength)
		if err != nil {
			return "", apperrors.NewInfrastructure(err)
		}
	}

	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return "", apperrors.NewInfrastructure(err)
	}
	if err := s.deps.Users.UpdatePassword(ctx, target.ID, hash); err != nil {
		return "", storeError(err, "User")
	}

	payload := events.PasswordChangedPayload{Recipient: recipient(target), ByAdmin: true}
	if generated {
		payload.TemporaryPassword = newPassword
	}
	s.publishAs(ctx, principal, events.NewEvent(events.EventPasswordChanged, target.ID, payload))
	return newPassword, nil
}

// Suspend places a hold on the target account.
func (s *AdminService) Suspend(ctx context.Context, principal *auth.Principal, id string, in SuspendInput) (*domain.User, error) {
	if strings.TrimSpace(in.Reason) == "" {
		return nil, apperrors.NewValidationError("Suspension reason is required", map[string]any{"field": "reason"})
	}
	category, ok := domain.ParseSuspensionCategory(in.Category)
	if !ok {
		return nil, apperrors.NewValidationError("Invalid suspension category", map[string]any{"field": "category"})
	}
	var duration time.Duration
	if in.DurationDays != nil {
		if *in.DurationDays < 0 {
			return nil, apperrors.NewValidationError("Duration must not be negative", map[string]any{"field": "duration"})
		}
		duration = time.Duration(*in.DurationDays) * 24 * time.Hour
	}

	target, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if target.ID == principal.ID() {
		return nil, apperrors.NewForbidden("Cannot suspend your own account")
	}
	if err := guardTarget(principal, target); err != nil {
		return nil, err
	}

	if err := target.Suspend(principal.ID(), in.Reason, category, duration, s.deps.Clock()); err != nil {
		return nil, storeError(err, "User")
	}
	target, err = s.deps.Users.Suspend(ctx, target.ID, *target.Suspension, manageableRoles(principal))
	if err != nil {
		return nil, storeError(err, "User")
	}

	s.deps.Logger.Info("account suspended",
		zap.String("user_id", target.ID),
		zap.String("category", string(category)),
		zap.String("actor_id", principal.ID()))
	s.publishAs(ctx, principal, events.NewEvent(events.EventAccountSuspended, target.ID, events.AccountSuspendedPayload{
		Recipient: recipient(target),
		Reason:    target.Suspension.Reason,
		Category:  target.Suspension.Category,
		EndsAt:    target.Suspension.EndsAt,
	}))
	return target, nil
}

// Reactivate lifts any suspension on the target account.
func (s *AdminService) Reactivate(ctx context.Context, principal *auth.Principal, id string) (*domain.User, error) {
	target, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := guardTarget(principal, target); err != nil {
		return nil, err
	}
	if target.IsActive {
		return target, nil
	}

	target, err = s.deps.Users.Reactivate(ctx, target.ID, manageableRoles(principal))
	if err != nil {
		return nil, storeError(err, "User")
	}
	s.publishAs(ctx, principal, events.NewEvent(events.EventAccountReactivated, target.ID, events.AccountReactivatedPayload{Recipient: recipient(target)}))
	return target, nil
}

func (s *AdminService) load(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.deps.Users.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "User")
	}
	return reconcile(ctx, s.deps.Users, user, s.deps.Clock())
}

func (s *AdminService) publishAs(ctx context.Context, principal *auth.Principal, event events.Event) {
	event.Actor = &events.Actor{UserID: principal.ID(), Role: principal.Role()}
	publish(ctx, s.deps, event)
}

// manageableRoles lists the roles a principal may write to. Writes are
// conditional on them so a concurrent role change cannot widen access.
func manageableRoles(principal *auth.Principal) []domain.Role {
	if principal.Role() == domain.RoleOwner {
		return []domain.Role{domain.RoleAdmin, domain.RoleUser}
	}
	return []domain.Role{domain.RoleUser}
}

// guardTarget rejects mutations of the owner and of admins by non-owners.
func guardTarget(principal *auth.Principal, target *domain.User) error {
	switch {
	case target.IsOwner():
		return apperrors.NewForbidden("Cannot modify owner account")
	case target.Role == domain.RoleAdmin && principal.Role() != domain.RoleOwner:
		return apperrors.NewForbidden("Only the owner can manage admin accounts")
	}
	return nil
}
