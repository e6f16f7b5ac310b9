package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/identity-service/internal/domain"
)

// PasswordResetRepository manages password reset grants.
type PasswordResetRepository interface {
	// Replace stores reset as the user's only grant.
	Replace(ctx context.Context, reset *domain.PasswordReset) error
	// Redeem marks the grant used and sets the new password hash in one
	// transaction, returning the user id.
	Redeem(ctx context.Context, tokenHash, passwordHash string, now time.Time) (string, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type passwordResetRepository struct {
	pgStore
}

// NewPasswordResetRepository constructs repository.
func NewPasswordResetRepository(db DB, timeout time.Duration) PasswordResetRepository {
	return &passwordResetRepository{pgStore: newPGStore(db, timeout)}
}

func (r *passwordResetRepository) Replace(ctx context.Context, reset *domain.PasswordReset) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	if reset.ID == "" {
		reset.ID = uuid.NewString()
	}
	const query = `
        INSERT INTO password_resets (id, user_id, token_hash, expires_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (user_id) DO UPDATE
            SET id=EXCLUDED.id, token_hash=EXCLUDED.token_hash, expires_at=EXCLUDED.expires_at,
                used=FALSE, used_at=NULL, created_at=NOW()
        RETURNING created_at`

	if err := r.db.QueryRow(ctx, query,
		reset.ID,
		reset.UserID,
		reset.TokenHash,
		reset.ExpiresAt,
	).Scan(&reset.CreatedAt); err != nil {
		return fmt.Errorf("replace password reset: %w", err)
	}
	reset.Used = false
	reset.UsedAt = nil
	return nil
}

func (r *passwordResetRepository) Redeem(ctx context.Context, tokenHash, passwordHash string, now time.Time) (string, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var userID string
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		const claim = `
            UPDATE password_resets SET used=TRUE, used_at=$2
            WHERE token_hash=$1 AND NOT used AND expires_at > $2
            RETURNING user_id`
		if err := tx.QueryRow(ctx, claim, tokenHash, now).Scan(&userID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return classifyReset(ctx, tx, tokenHash)
			}
			return err
		}

		cmd, err := tx.Exec(ctx, `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`, userID, passwordHash)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return userID, nil
}

// classifyReset explains why a claim matched no row.
func classifyReset(ctx context.Context, tx pgx.Tx, tokenHash string) error {
	var used bool
	err := tx.QueryRow(ctx, `SELECT used FROM password_resets WHERE token_hash=$1`, tokenHash).Scan(&used)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	case err != nil:
		return err
	case used:
		return ErrTokenAlreadyUsed
	default:
		return ErrTokenExpired
	}
}

func (r *passwordResetRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	cmd, err := r.db.Exec(ctx, `DELETE FROM password_resets WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purge password resets: %w", err)
	}
	return cmd.RowsAffected(), nil
}
