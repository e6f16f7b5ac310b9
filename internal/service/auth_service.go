package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/mail"
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

// RegisterInput carries account creation fields.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// LoginInput carries credentials and optional second factor.
type LoginInput struct {
	Email        string
	Password     string
	SecondFactor string
	IsBackupCode bool
	UserAgent    string
	IP           string
}

// ProfileInput holds optional profile changes; nil fields are left alone.
type ProfileInput struct {
	Name        *string
	PhoneNumber *string
	Address     *string
	Bio         *string
}

// AuthResult is a freshly issued access token and its owner.
type AuthResult struct {
	Token     string
	ExpiresAt time.Time
	User      *domain.User
	NewDevice bool
}

// AuthService coordinates registration and login flows.
type AuthService struct {
	deps        Dependencies
	tokens      *auth.TokenManager
	twoFactor   *TwoFactorService
	bcryptCost  int
	adminSecret string
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, tokens *auth.TokenManager, twoFactor *TwoFactorService, deps Dependencies) *AuthService {
	return &AuthService{
		deps:        deps.withDefaults(),
		tokens:      tokens,
		twoFactor:   twoFactor,
		bcryptCost:  cfg.BcryptCost,
		adminSecret: cfg.AdminSecret,
	}
}

// Register creates a regular user account and signs them in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	return s.register(ctx, in, domain.RoleUser)
}

// RegisterAdmin creates an admin account when adminSecret matches the
// configured secret. An unset secret disables the operation.
func (s *AuthService) RegisterAdmin(ctx context.Context, in RegisterInput, adminSecret string) (*AuthResult, error) {
	if s.adminSecret == "" || subtle.ConstantTimeCompare([]byte(adminSecret), []byte(s.adminSecret)) != 1 {
		return nil, apperrors.NewForbidden("Invalid admin secret")
	}
	return s.register(ctx, in, domain.RoleAdmin)
}

// BootstrapOwner creates the single owner account.
func (s *AuthService) BootstrapOwner(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	exists, err := s.deps.Users.OwnerExists(ctx)
	if err != nil {
		return nil, storeError(err, "User")
	}
	if exists {
		return nil, storeError(repository.ErrOwnerExists, "User")
	}

	user, err := s.newUser(in, domain.RoleOwner)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Users.CreateOwner(ctx, user); err != nil {
		return nil, storeError(err, "User")
	}
	s.deps.Logger.Info("owner account created", zap.String("user_id", user.ID))
	return s.issue(user)
}

func (s *AuthService) register(ctx context.Context, in RegisterInput, role domain.Role) (*AuthResult, error) {
	user, err := s.createUser(ctx, in, role)
	if err != nil {
		return nil, err
	}
	return s.issue(user)
}

func (s *AuthService) createUser(ctx context.Context, in RegisterInput, role domain.Role) (*domain.User, error) {
	user, err := s.newUser(in, role)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Users.Create(ctx, user); err != nil {
		return nil, storeError(err, "User")
	}
	s.deps.Logger.Info("account registered", zap.String("user_id", user.ID), zap.String("role", string(role)))
	publish(ctx, s.deps, events.NewEvent(events.EventUserRegistered, user.ID, events.UserRegisteredPayload{Recipient: recipient(user), Role: role}))
	return user, nil
}

func (s *AuthService) newUser(in RegisterInput, role domain.Role) (*domain.User, error) {
	if err := validateRegistration(in); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInfrastructure(err)
	}
	return &domain.User{
		Name:         strings.TrimSpace(in.Name),
		Email:        domain.NormalizeEmail(in.Email),
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}, nil
}

// Login authenticates credentials and issues an access token.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	if err := requireFields(map[string]string{"email": in.Email, "password": in.Password}); err != nil {
		return nil, err
	}

	user, err := s.checkCredentials(ctx, in.Email, in.Password)
	if err != nil {
		return nil, err
	}

	now := s.deps.Clock()
	user, err = reconcile(ctx, s.deps.Users, user, now)
	if err != nil {
		return nil, err
	}
	if user.IsSuspended() {
		s.deps.Metrics.RecordAuth("login_suspended")
		return nil, auth.SuspendedError(user)
	}

	enrolled, err := s.twoFactor.Gate(ctx, user, in.SecondFactor, in.IsBackupCode)
	if err != nil {
		return nil, err
	}

	device := domain.LoginDevice{
		UserID:   user.ID,
		Info:     auth.DescribeDevice(in.UserAgent, in.IP),
		LastUsed: now,
	}
	device.DeviceID = auth.DeviceFingerprint(device.Info)
	newDevice := s.recordDevice(ctx, &device, now)

	result, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	result.NewDevice = newDevice

	if enrolled || newDevice {
		publish(ctx, s.deps, events.NewEvent(events.EventLoginAlert, user.ID, events.LoginAlertPayload{
			Recipient:  recipient(user),
			Device:     device.Info,
			NewDevice:  newDevice,
			BackupCode: enrolled && in.IsBackupCode,
		}))
	}
	s.deps.Metrics.RecordAuth("login_success")
	return result, nil
}

func (s *AuthService) checkCredentials(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := s.deps.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			auth.BurnPasswordCompare(password)
			s.deps.Metrics.RecordAuth("login_invalid_credentials")
			return nil, apperrors.NewInvalidCredentials()
		}
		return nil, apperrors.NewInfrastructure(err)
	}

	ok, err := auth.PasswordMatches(user.PasswordHash, password)
	if err != nil {
		return nil, apperrors.NewInfrastructure(err)
	}
	if !ok {
		s.deps.Metrics.RecordAuth("login_invalid_credentials")
		return nil, apperrors.NewInvalidCredentials()
	}
	return user, nil
}

// recordDevice upserts the login device. Failures are logged only since the
// device record never gates access.
func (s *AuthService) recordDevice(ctx context.Context, device *domain.LoginDevice, now time.Time) bool {
	if s.deps.Devices == nil {
		return false
	}
	previous, err := s.deps.Devices.Record(ctx, device)
	if err != nil {
		s.deps.Logger.Warn("record login device failed", zap.String("user_id", device.UserID), zap.Error(err))
		return false
	}
	return previous == nil || now.Sub(*previous) > domain.DeviceStaleAfter
}

func (s *AuthService) issue(user *domain.User) (*AuthResult, error) {
	token, exp, err := s.tokens.Issue(user)
	if err != nil {
		return nil, apperrors.NewInfrastructure(err)
	}
	return &AuthResult{Token: token, ExpiresAt: exp, User: user}, nil
}

// Logout revokes the presented access token for its remaining lifetime.
func (s *AuthService) Logout(ctx context.Context, principal *auth.Principal) error {
	if s.deps.Sessions == nil {
		return apperrors.NewInfrastructure(errors.New("session store not configured"))
	}
	if err := s.deps.Sessions.Revoke(ctx, principal.Claims.ID, s.tokens.Remaining(principal.Claims)); err != nil {
		return apperrors.NewInfrastructure(err)
	}
	s.deps.Metrics.RecordAuth("logout")
	return nil
}

// ChangePassword verifies the current password before updating to new hash.
func (s *AuthService) ChangePassword(ctx context.Context, principal *auth.Principal, currentPassword, newPassword string) error {
	if err := requireFields(map[string]string{"currentPassword": currentPassword, "newPassword": newPassword}); err != nil {
		return err
	}

	user, err := s.deps.Users.GetByID(ctx, principal.ID())
	if err != nil {
		return storeError(err, "User")
	}
	ok, err := auth.PasswordMatches(user.PasswordHash, currentPassword)
	if err != nil {
		return apperrors.NewInfrastructure(err)
	}
	if !ok {
		return apperrors.NewInvalidCredentials()
	}

	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return apperrors.NewInfrastructure(err)
	}
	if err := s.deps.Users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return storeError(err, "User")
	}

	publish(ctx, s.deps, events.NewEvent(events.EventPasswordChanged, user.ID, events.PasswordChangedPayload{Recipient: recipient(user)}))
	return nil
}

// UpdateProfile applies profile changes for the caller.
func (s *AuthService) UpdateProfile(ctx context.Context, principal *auth.Principal, in ProfileInput) (*domain.User, error) {
	changes := repository.ProfileChanges{
		Name:        trimmed(in.Name),
		PhoneNumber: trimmed(in.PhoneNumber),
		Address:     trimmed(in.Address),
		Bio:         trimmed(in.Bio),
	}
	if changes.Name != nil && *changes.Name == "" {
		return nil, apperrors.NewValidationError("Name cannot be empty", nil)
	}

	user, err := s.deps.Users.UpdateProfile(ctx, principal.ID(), changes)
	if err != nil {
		return nil, storeError(err, "User")
	}
	return user, nil
}

// Devices lists the caller's login devices.
func (s *AuthService) Devices(ctx context.Context, principal *auth.Principal) ([]domain.LoginDevice, error) {
	if s.deps.Devices == nil {
		return []domain.LoginDevice{}, nil
	}
	devices, err := s.deps.Devices.ListByUser(ctx, principal.ID())
	if err != nil {
		return nil, storeError(err, "Device")
	}
	if devices == nil {
		devices = []domain.LoginDevice{}
	}
	return devices, nil
}

func validateRegistration(in RegisterInput) error {
	if err := requireFields(map[string]string{"name": in.Name, "email": in.Email, "password": in.Password}); err != nil {
		return err
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(in.Email)); err != nil {
		return apperrors.NewValidationError("Invalid email address", map[string]any{"field": "email"})
	}
	return nil
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}
