package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/events"
	"github.com/spec-kit/identity-service/internal/observability"
	"github.com/spec-kit/identity-service/internal/repository"
	apperrors "github.com/spec-kit/identity-service/pkg/util"
)

const opaqueTokenBytes = 32

// SessionStore tracks revoked access tokens and single-use handoff tokens.
type SessionStore interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	ClaimOnce(ctx context.Context, tokenID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, tokenID string) error
}

// Dependencies bundles the collaborators shared by the services.
type Dependencies struct {
	Users      repository.UserRepository
	TwoFactor  repository.TwoFactorRepository
	Resets     repository.PasswordResetRepository
	Recoveries repository.AccountRecoveryRepository
	Devices    repository.LoginDeviceRepository
	Sessions   SessionStore
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Clock      func() time.Time
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	return d
}

// storeError translates repository errors into domain errors.
func storeError(err error, resource string) error {
	var de *apperrors.DomainError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &de):
		return err
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound(resource, nil)
	case errors.Is(err, repository.ErrDuplicateEmail):
		return apperrors.NewConflict("Email already registered", nil)
	case errors.Is(err, repository.ErrOwnerExists):
		return apperrors.NewConflict("Owner account already exists", nil)
	case errors.Is(err, repository.ErrAlreadyEnabled):
		return apperrors.NewConflict("2FA is already enabled", nil)
	case errors.Is(err, repository.ErrTokenExpired):
		return apperrors.NewTokenExpired("Token has expired")
	case errors.Is(err, repository.ErrTokenAlreadyUsed):
		return apperrors.NewTokenAlreadyUsed("Token has already been used")
	case errors.Is(err, domain.ErrSuspensionInconsistent),
		errors.Is(err, domain.ErrSuspensionReasonRequired),
		errors.Is(err, domain.ErrSuspensionActorRequired):
		return apperrors.NewValidationError(err.Error(), nil)
	case errors.Is(err, domain.ErrOwnerNotSuspendable):
		return apperrors.NewForbidden("Cannot suspend owner account")
	default:
		return apperrors.NewInfrastructure(err)
	}
}

// reconcile lifts an elapsed suspension and persists the change.
func reconcile(ctx context.Context, users repository.UserRepository, user *domain.User, now time.Time) (*domain.User, error) {
	reconciled, err := repository.ReconcileSuspension(ctx, users, user, now)
	if err != nil {
		return nil, storeError(err, "User")
	}
	return reconciled, nil
}

func publish(ctx context.Context, d Dependencies, event events.Event) {
	if d.Dispatcher == nil {
		return
	}
	if err := d.Dispatcher.Publish(ctx, event); err != nil {
		d.Logger.Warn("publish event failed",
			zap.String("event_type", string(event.Type)),
			zap.String("user_id", event.UserID),
			zap.Error(err))
	}
}

func recipient(u *domain.User) events.Recipient {
	return events.Recipient{Email: u.Email, Name: u.Name}
}

// newOpaqueToken returns a random hex token and its SHA-256 hash.
func newOpaqueToken() (string, string, error) {
	buf := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	token := hex.EncodeToString(buf)
	return token, hashToken(token), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:])
}

func requireFields(fields map[string]string) error {
	missing := []string{}
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return apperrors.NewValidationError("Missing required fields", map[string]any{"fields": missing})
}
