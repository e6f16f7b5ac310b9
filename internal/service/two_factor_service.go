package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/identity-service/internal/auth"
	"github.com/spec-kit/identity-service/internal/config"
	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/events"
	"github.com/spec-kit/identity-service/internal/otp"
	"github.com/spec-kit/identity-service/internal/repository"
	apperrors "github.com/spec-kit/identity-service/pkg/util"
)

// TwoFactorSetup is returned once when enrollment starts. The backup codes
// are never retrievable again.
type TwoFactorSetup struct {
	Secret      string
	OTPAuthURL  string
	QRCode      string
	BackupCodes []string
}

// TwoFactorService manages second-factor enrollment and verification.
type TwoFactorService struct {
	deps Dependencies
	totp *otp.TOTP
	cfg  config.AuthConfig
}

// NewTwoFactorService builds the service.
func NewTwoFactorService(cfg config.AuthConfig, totp *otp.TOTP, deps Dependencies) *TwoFactorService {
	return &TwoFactorService{deps: deps.withDefaults(), totp: totp, cfg: cfg}
}

// Setup creates a pending enrollment with a fresh secret and backup codes.
func (s *TwoFactorService) Setup(ctx context.Context, principal *auth.Principal) (*TwoFactorSetup, error) {
	user := principal.User
	existing, err := s.deps.TwoFactor.Get(ctx, user.ID)
	switch {
	case err == nil && existing.Enabled:
		return nil, apperrors.NewConflict("2FA is already enabled", nil)
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		return nil, storeError(err, "2FA")
	}

	enrollment, err := s.totp.GenerateSecret(user.Email)
	if err != nil {
		return nil, apperrors.NewInfrastructure(err)
	}
	codes, err := otp.GenerateBackupCodes(s.cfg.BackupCodeCount)
	if err != nil {
		return nil, apperrors.NewInfrastructure(err)
	}
	hashes, err := otp.HashBackupCodes(codes, s.cfg.BcryptCost)
	if err != nil {
		return nil, apperrors.NewInfrastructure(err)
	}
	qr, err := otp.QRCodeDataURL(enrollment.URL)
	if err != nil {
		return nil, apperrors.NewInfrastructure(err)
	}

	if err := s.deps.TwoFactor.SavePending(ctx, &domain.TwoFactor{
		UserID:      user.ID,
		Secret:      enrollment.Secret,
		BackupCodes: hashes,
	}); err != nil {
		return nil, storeError(err, "2FA")
	}

	publish(ctx, s.deps, events.NewEvent(events.EventBackupCodesGenerated, user.ID, events.TwoFactorPayload{
		Recipient: recipient(user),
		Remaining: len(codes),
	}))

	return &TwoFactorSetup{
		Secret:      enrollment.Secret,
		OTPAuthURL:  enrollment.URL,
		QRCode:      qr,
		BackupCodes: codes,
	}, nil
}

// Verify enables a pending enrollment after a valid TOTP code.
func (s *TwoFactorService) Verify(ctx context.Context, principal *auth.Principal, code string) error {
	user := principal.User
	tf, err := s.deps.TwoFactor.Get(ctx, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("2FA setup", nil)
		}
		return storeError(err, "2FA")
	}
	if tf.Enabled {
		return apperrors.NewConflict("2FA is already enabled", nil)
	}

	code = strings.TrimSpace(code)
	if !otp.IsValidCodeFormat(code) {
		return apperrors.NewValidationError("Invalid token format", nil)
	}
	now := s.deps.Clock()
	if !s.totp.Validate(code, tf.Secret, now) {
		s.deps.Metrics.RecordAuth("totp_rejected")
		return apperrors.NewInvalidSecondFactor()
	}

	if err := s.deps.TwoFactor.Enable(ctx, user.ID, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewConflict("2FA is already enabled", nil)
		}
		return storeError(err, "2FA")
	}

	s.deps.Logger.Info("two-factor enabled", zap.String("user_id", user.ID))
	publish(ctx, s.deps, events.NewEvent(events.EventTwoFactorEnabled, user.ID, events.TwoFactorPayload{Recipient: recipient(user)}))
	return nil
}

// Disable removes an enabled enrollment after a valid TOTP code.
func (s *TwoFactorService) Disable(ctx context.Context, principal *auth.Principal, code string) error {
	user := principal.User
	tf, err := s.deps.TwoFactor.Get(ctx, user.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return storeError(err, "2FA")
	}
	if tf == nil || !tf.Enabled {
		return apperrors.NewValidationError("2FA is not enabled", nil)
	}

	code = strings.TrimSpace(code)
	if !otp.IsValidCodeFormat(code) {
		return apperrors.NewValidationError("Invalid token format", nil)
	}
	if !s.totp.Validate(code, tf.Secret, s.deps.Clock()) {
		s.deps.Metrics.RecordAuth("totp_rejected")
		return apperrors.NewInvalidSecondFactor()
	}

	if err := s.deps.TwoFactor.Delete(ctx, user.ID); err != nil {
		return storeError(err, "2FA")
	}

	s.deps.Logger.Info("two-factor disabled", zap.String("user_id", user.ID))
	publish(ctx, s.deps, events.NewEvent(events.EventTwoFactorDisabled, user.ID, events.TwoFactorPayload{Recipient: recipient(user)}))
	return nil
}

// Validate checks a second factor for userID outside the login flow. Unknown,
// suspended and unenrolled accounts all fail like a wrong code.
func (s *TwoFactorService) Validate(ctx context.Context, userID, code string, isBackupCode bool) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return apperrors.NewValidationError("Verification code is required", nil)
	}
	if isBackupCode && !otp.IsValidBackupCodeFormat(code) {
		return apperrors.NewValidationError("Invalid backup code format", nil)
	}
	if !isBackupCode && !otp.IsValidCodeFormat(code) {
		return apperrors.NewValidationError("Invalid token format", nil)
	}

	user, err := s.deps.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return s.rejectValidation()
		}
		return storeError(err, "User")
	}
	user, err = reconcile(ctx, s.deps.Users, user, s.deps.Clock())
	if err != nil {
		return err
	}
	if user.IsSuspended() {
		return s.rejectValidation()
	}

	tf, err := s.deps.TwoFactor.Get(ctx, user.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return storeError(err, "2FA")
	}
	if tf == nil || !tf.Enabled {
		return s.rejectValidation()
	}
	return s.check(ctx, tf, code, isBackupCode)
}

func (s *TwoFactorService) rejectValidation() error {
	s.deps.Metrics.RecordAuth("second_factor_unavailable")
	return apperrors.NewInvalidSecondFactor()
}

// Gate runs the login-time second factor step for user. enrolled reports
// whether the user has an enabled enrollment.
func (s *TwoFactorService) Gate(ctx context.Context, user *domain.User, code string, isBackupCode bool) (enrolled bool, err error) {
	tf, err := s.deps.TwoFactor.Get(ctx, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, storeError(err, "2FA")
	}
	if !tf.Enabled {
		return false, nil
	}

	code = strings.TrimSpace(code)
	if code == "" {
		s.deps.Metrics.RecordAuth("second_factor_required")
		return true, apperrors.NewSecondFactorRequired(user.ID)
	}
	return true, s.check(ctx, tf, code, isBackupCode)
}

// check verifies code against tf. A TOTP attempt never reads or consumes
// backup codes.
func (s *TwoFactorService) check(ctx context.Context, tf *domain.TwoFactor, code string, isBackupCode bool) error {
	now := s.deps.Clock()

	if isBackupCode {
		if !otp.IsValidBackupCodeFormat(code) {
			return apperrors.NewValidationError("Invalid backup code format", nil)
		}
		hash, ok := otp.MatchBackupCode(code, tf.BackupCodes)
		if !ok {
			s.deps.Metrics.RecordAuth("backup_code_rejected")
			return apperrors.NewInvalidSecondFactor()
		}
		consumed, err := s.deps.TwoFactor.ConsumeBackupCode(ctx, tf.UserID, hash, now)
		if err != nil {
			return apperrors.NewInfrastructure(err)
		}
		if !consumed {
			s.deps.Metrics.RecordAuth("backup_code_replayed")
			return apperrors.NewInvalidSecondFactor()
		}
		s.deps.Metrics.RecordAuth("backup_code_accepted")
		return nil
	}

	if !otp.IsValidCodeFormat(code) {
		return apperrors.NewValidationError("Invalid token format", nil)
	}
	if !s.totp.Validate(code, tf.Secret, now) {
		s.deps.Metrics.RecordAuth("totp_rejected")
		return apperrors.NewInvalidSecondFactor()
	}
	if err := s.deps.TwoFactor.TouchLastUsed(ctx, tf.UserID, now); err != nil {
		return apperrors.NewInfrastructure(err)
	}
	s.deps.Metrics.RecordAuth("totp_accepted")
	return nil
}
