package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
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

// RecoveryNotice is returned by forgot-password and recovery-initiate
// whether or not the address belongs to an account.
const RecoveryNotice = "If an account exists with that email, instructions have been sent"

// RecoveryQuestionInput is one security question with its plaintext answer.
type RecoveryQuestionInput struct {
	Question string
	Answer   string
}

// RecoveryHandoff authorizes a single password change after recovery.
type RecoveryHandoff struct {
	Token     string
	ExpiresAt time.Time
}

// RecoveryService implements password reset and question-based account
// recovery.
type RecoveryService struct {
	deps         Dependencies
	tokens       *auth.TokenManager
	bcryptCost   int
	resetTTL     time.Duration
	recoveryTTL  time.Duration
	minQuestions int
}

// NewRecoveryService builds the service.
func NewRecoveryService(cfg config.AuthConfig, tokens *auth.TokenManager, deps Dependencies) *RecoveryService {
	minQuestions := cfg.MinRecoveryQuestion
	if minQuestions <= 0 {
		minQuestions = 2
	}
	return &RecoveryService{
		deps:         deps.withDefaults(),
		tokens:       tokens,
		bcryptCost:   cfg.BcryptCost,
		resetTTL:     cfg.PasswordResetTTL,
		recoveryTTL:  cfg.AccountRecoveryTTL,
		minQuestions: minQuestions,
	}
}

// ForgotPassword issues a reset token for the account, if there is one.
// Unknown addresses are not reported.
func (s *RecoveryService) ForgotPassword(ctx context.Context, email string) error {
	if err := requireFields(map[string]string{"email": email}); err != nil {
		return err
	}

	user, err := s.deps.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.deps.Logger.Debug("password reset requested for unknown email")
			return nil
		}
		return apperrors.NewInfrastructure(err)
	}

	token, tokenHash, err := newOpaqueToken()
	if err != nil {
		return apperrors.NewInfrastructure(err)
	}
	reset := &domain.PasswordReset{
		UserID:    user.ID,
		TokenHash: tokenHash,
		ExpiresAt: s.deps.Clock().Add(s.resetTTL).UTC(),
	}
	if err := s.deps.Resets.Replace(ctx, reset); err != nil {
		return storeError(err, "Password reset")
	}

	publish(ctx, s.deps, events.NewEvent(events.EventPasswordResetRequested, user.ID, events.PasswordResetRequestedPayload{
		Recipient: recipient(user),
		Token:     token,
		ExpiresAt: reset.ExpiresAt,
	}))
	return nil
}

// ResetPassword redeems a reset token and sets the new password.
func (s *RecoveryService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := requireFields(map[string]string{"token": token, "newPassword": newPassword}); err != nil {
		return err
	}

	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return apperrors.NewInfrastructure(err)
	}

	userID, err := s.deps.Resets.Redeem(ctx, hashToken(token), hash, s.deps.Clock())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewDomainError(apperrors.CodeNotFound, "Invalid or expired reset token", http.StatusNotFound, nil)
		}
		return storeError(err, "Password reset")
	}

	s.deps.Logger.Info("password reset redeemed", zap.String("user_id", userID))
	s.notifyPasswordChanged(ctx, userID)
	return nil
}

// SetupRecovery stores the caller's security questions and optional
// alternate email. No recovery token is live until InitiateRecovery.
func (s *RecoveryService) SetupRecovery(ctx context.Context, principal *auth.Principal, questions []RecoveryQuestionInput, recoveryEmail string) error {
	if len(questions) < s.minQuestions {
		return apperrors.NewValidationError(fmt.Sprintf("At least %d security questions are required", s.minQuestions), map[string]any{"minimum": s.minQuestions})
	}

	recoveryEmail = strings.TrimSpace(recoveryEmail)
	if recoveryEmail != "" {
		if _, err := mail.ParseAddress(recoveryEmail); err != nil {
			return apperrors.NewValidationError("Invalid recovery email", map[string]any{"field": "recoveryEmail"})
		}
		recoveryEmail = domain.NormalizeEmail(recoveryEmail)
	}

	stored := make([]domain.SecurityQuestion, 0, len(questions))
	for i, q := range questions {
		question := strings.TrimSpace(q.Question)
		answer := normalizeAnswer(q.Answer)
		if question == "" || answer == "" {
			return apperrors.NewValidationError("Each question requires a question and an answer", map[string]any{"index": i})
		}
		hash, err := auth.HashPassword(answer, s.bcryptCost)
		if err != nil {
			return apperrors.NewInfrastructure(err)
		}
		stored = append(stored, domain.SecurityQuestion{Question: question, AnswerHash: hash})
	}

	rec := &domain.AccountRecovery{
		UserID:        principal.ID(),
		Questions:     stored,
		RecoveryEmail: recoveryEmail,
		ExpiresAt:     s.deps.Clock().UTC(),
	}
	if err := s.deps.Recoveries.Save(ctx, rec); err != nil {
		return storeError(err, "Account recovery")
	}
	return nil
}

// InitiateRecovery issues a recovery token when the account has recovery
// configured. Unknown addresses and unconfigured accounts are not reported.
func (s *RecoveryService) InitiateRecovery(ctx context.Context, email string) error {
	if err := requireFields(map[string]string{"email": email}); err != nil {
		return err
	}

	user, err := s.deps.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return apperrors.NewInfrastructure(err)
	}

	rec, err := s.deps.Recoveries.Get(ctx, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.deps.Logger.Debug("recovery initiated without setup", zap.String("user_id", user.ID))
			return nil
		}
		return apperrors.NewInfrastructure(err)
	}

	token, tokenHash, err := newOpaqueToken()
	if err != nil {
		return apperrors.NewInfrastructure(err)
	}
	expiresAt := s.deps.Clock().Add(s.recoveryTTL).UTC()
	if err := s.deps.Recoveries.IssueToken(ctx, user.ID, tokenHash, expiresAt); err != nil {
		return storeError(err, "Account recovery")
	}

	publish(ctx, s.deps, events.NewEvent(events.EventAccountRecoveryInitiated, user.ID, events.AccountRecoveryPayload{
		Recipient:     recipient(user),
		RecoveryEmail: rec.RecoveryEmail,
		Token:         token,
		ExpiresAt:     expiresAt,
	}))
	return nil
}

// VerifyRecovery checks the answers for a live recovery token. On success the
// token is consumed and a handoff token is returned; a wrong answer leaves
// the token usable.
func (s *RecoveryService) VerifyRecovery(ctx context.Context, token string, answers []string) (*RecoveryHandoff, error) {
	if err := requireFields(map[string]string{"token": token}); err != nil {
		return nil, err
	}

	tokenHash := hashToken(token)
	rec, err := s.deps.Recoveries.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewDomainError(apperrors.CodeNotFound, "Invalid or expired recovery token", http.StatusNotFound, nil)
		}
		return nil, apperrors.NewInfrastructure(err)
	}

	now := s.deps.Clock()
	if rec.Used {
		return nil, apperrors.NewTokenAlreadyUsed("Recovery token has already been used")
	}
	if !now.Before(rec.ExpiresAt) {
		return nil, apperrors.NewTokenExpired("Recovery token has expired")
	}

	if len(answers) != len(rec.Questions) {
		return nil, apperrors.NewValidationError("Incorrect number of answers", map[string]any{"expected": len(rec.Questions)})
	}
	if !answersMatch(rec.Questions, answers) {
		s.deps.Metrics.RecordAuth("recovery_wrong_answer")
		return nil, apperrors.NewValidationError("Incorrect answers to security questions", nil)
	}

	if err := s.deps.Recoveries.Claim(ctx, rec.ID, tokenHash, now); err != nil {
		return nil, storeError(err, "Account recovery")
	}

	handoff, expiresAt, err := s.tokens.IssueRecoveryHandoff(rec.UserID)
	if err != nil {
		return nil, apperrors.NewInfrastructure(err)
	}
	s.deps.Metrics.RecordAuth("recovery_verified")
	return &RecoveryHandoff{Token: handoff, ExpiresAt: expiresAt}, nil
}

// CompleteRecovery sets a new password using a recovery handoff token. Each
// handoff token works once.
func (s *RecoveryService) CompleteRecovery(ctx context.Context, handoffToken, newPassword string) error {
	if err := requireFields(map[string]string{"tempToken": handoffToken, "newPassword": newPassword}); err != nil {
		return err
	}

	claims, err := s.tokens.VerifyPurpose(handoffToken, domain.TokenPurposeRecovery)
	if err != nil {
		return apperrors.NewUnauthorized("Invalid or expired recovery session")
	}
	if s.deps.Sessions == nil {
		return apperrors.NewInfrastructure(errors.New("session store not configured"))
	}

	user, err := s.deps.Users.GetByID(ctx, claims.UserID)
	if err != nil {
		return storeError(err, "User")
	}
	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return apperrors.NewInfrastructure(err)
	}

	claimed, err := s.deps.Sessions.ClaimOnce(ctx, claims.ID, s.tokens.Remaining(claims))
	if err != nil {
		return apperrors.NewInfrastructure(err)
	}
	if !claimed {
		return apperrors.NewTokenAlreadyUsed("Recovery session has already been used")
	}
	if err := s.deps.Users.UpdatePassword(ctx, user.ID, hash); err != nil {
		// The password was not written, so the handoff stays usable.
		if relErr := s.deps.Sessions.Release(context.WithoutCancel(ctx), claims.ID); relErr != nil {
			s.deps.Logger.Warn("release recovery claim failed", zap.String("user_id", user.ID), zap.Error(relErr))
		}
		return storeError(err, "User")
	}

	s.deps.Logger.Info("account recovery completed", zap.String("user_id", user.ID))
	publish(ctx, s.deps, events.NewEvent(events.EventPasswordChanged, user.ID, events.PasswordChangedPayload{Recipient: recipient(user)}))
	return nil
}

func (s *RecoveryService) notifyPasswordChanged(ctx context.Context, userID string) {
	user, err := s.deps.Users.GetByID(ctx, userID)
	if err != nil {
		s.deps.Logger.Warn("load user for notification failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	publish(ctx, s.deps, events.NewEvent(events.EventPasswordChanged, user.ID, events.PasswordChangedPayload{Recipient: recipient(user)}))
}

// answersMatch compares every answer so timing does not reveal which one
// was wrong.
func answersMatch(questions []domain.SecurityQuestion, answers []string) bool {
	ok := true
	for i, q := range questions {
		match, err := auth.PasswordMatches(q.AnswerHash, normalizeAnswer(answers[i]))
		if err != nil || !match {
			ok = false
		}
	}
	return ok
}

func normalizeAnswer(answer string) string {
	return strings.ToLower(strings.TrimSpace(answer))
}
