package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/spec-kit/identity-service/internal/domain"
)

// TwoFactorRepository persists second-factor enrollments.
type TwoFactorRepository interface {
	Get(ctx context.Context, userID string) (*domain.TwoFactor, error)
	// SavePending stores a new unverified enrollment, replacing any earlier
	// pending one. It returns ErrAlreadyEnabled for enabled enrollments.
	SavePending(ctx context.Context, tf *domain.TwoFactor) error
	Enable(ctx context.Context, userID string, now time.Time) error
	Delete(ctx context.Context, userID string) error
	TouchLastUsed(ctx context.Context, userID string, now time.Time) error
	// ConsumeBackupCode removes hash from the enrollment if still present.
	// Exactly one concurrent caller observes true for a given hash.
	ConsumeBackupCode(ctx context.Context, userID, hash string, now time.Time) (bool, error)
}

type twoFactorRepository struct {
	pgStore
}

// NewTwoFactorRepository returns a Postgres-backed implementation.
func NewTwoFactorRepository(db DB, timeout time.Duration) TwoFactorRepository {
	return &twoFactorRepository{pgStore: newPGStore(db, timeout)}
}

func (r *twoFactorRepository) Get(ctx context.Context, userID string) (*domain.TwoFactor, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	const query = `
        SELECT user_id, secret, enabled, backup_codes, last_used, verified_at, created_at, updated_at
        FROM two_factor WHERE user_id=$1`

	var tf domain.TwoFactor
	if err := r.db.QueryRow(ctx, query, userID).Scan(
		&tf.UserID,
		&tf.Secret,
		&tf.Enabled,
		&tf.BackupCodes,
		&tf.LastUsed,
		&tf.VerifiedAt,
		&tf.CreatedAt,
		&tf.UpdatedAt,
	); err != nil {
		return nil, mapNoRows(err)
	}
	return &tf, nil
}

func (r *twoFactorRepository) SavePending(ctx context.Context, tf *domain.TwoFactor) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	const query = `
        INSERT INTO two_factor (user_id, secret, enabled, backup_codes)
        VALUES ($1, $2, FALSE, $3)
        ON CONFLICT (user_id) DO UPDATE
            SET secret=EXCLUDED.secret, backup_codes=EXCLUDED.backup_codes,
                last_used=NULL, verified_at=NULL, updated_at=NOW()
            WHERE two_factor.enabled = FALSE`

	cmd, err := r.db.Exec(ctx, query, tf.UserID, tf.Secret, tf.BackupCodes)
	if err != nil {
		return fmt.Errorf("save two-factor: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrAlreadyEnabled
	}
	tf.Enabled = false
	return nil
}

func (r *twoFactorRepository) Enable(ctx context.Context, userID string, now time.Time) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	const query = `
        UPDATE two_factor SET enabled=TRUE, verified_at=$2, updated_at=NOW()
        WHERE user_id=$1 AND enabled=FALSE`

	cmd, err := r.db.Exec(ctx, query, userID, now)
	if err != nil {
		return fmt.Errorf("enable two-factor: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *twoFactorRepository) Delete(ctx context.Context, userID string) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	cmd, err := r.db.Exec(ctx, `DELETE FROM two_factor WHERE user_id=$1`, userID)
	if err != nil {
		return fmt.Errorf("delete two-factor: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *twoFactorRepository) TouchLastUsed(ctx context.Context, userID string, now time.Time) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	_, err := r.db.Exec(ctx, `UPDATE two_factor SET last_used=$2 WHERE user_id=$1`, userID, now)
	if err != nil {
		return fmt.Errorf("touch two-factor: %w", err)
	}
	return nil
}

func (r *twoFactorRepository) ConsumeBackupCode(ctx context.Context, userID, hash string, now time.Time) (bool, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	const query = `
        UPDATE two_factor
        SET backup_codes=array_remove(backup_codes, $2), last_used=$3, updated_at=NOW()
        WHERE user_id=$1 AND enabled AND $2 = ANY(backup_codes)`

	cmd, err := r.db.Exec(ctx, query, userID, hash, now)
	if err != nil {
		return false, fmt.Errorf("consume backup code: %w", err)
	}
	return cmd.RowsAffected() == 1, nil
}
