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

// AccountRecoveryRepository persists security questions and recovery tokens.
type AccountRecoveryRepository interface {
	Get(ctx context.Context, userID string) (*domain.AccountRecovery, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.AccountRecovery, error)
	// Save replaces the user's questions, recovery email and token.
	Save(ctx context.Context, rec *domain.AccountRecovery) error
	// IssueToken installs a fresh token on an existing record.
	IssueToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	// Claim marks the token used if it is still the live, unexpired token.
	Claim(ctx context.Context, id, tokenHash string, now time.Time) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type accountRecoveryRepository struct {
	pgStore
}

// NewAccountRecoveryRepository constructs repository.
func NewAccountRecoveryRepository(db DB, timeout time.Duration) AccountRecoveryRepository {
	return &accountRecoveryRepository{pgStore: newPGStore(db, timeout)}
}

const recoveryColumns = `id, user_id, COALESCE(token_hash, ''), questions, recovery_email,
        expires_at, used, used_at, created_at, updated_at`

func (r *accountRecoveryRepository) Get(ctx context.Context, userID string) (*domain.AccountRecovery, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	query := `SELECT ` + recoveryColumns + ` FROM account_recoveries WHERE user_id=$1`
	return scanRecovery(r.db.QueryRow(ctx, query, userID))
}

func (r *accountRecoveryRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.AccountRecovery, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	query := `SELECT ` + recoveryColumns + ` FROM account_recoveries WHERE token_hash=$1`
	return scanRecovery(r.db.QueryRow(ctx, query, tokenHash))
}

func (r *accountRecoveryRepository) Save(ctx context.Context, rec *domain.AccountRecovery) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	const query = `
        INSERT INTO account_recoveries (id, user_id, token_hash, questions, recovery_email, expires_at)
        VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)
        ON CONFLICT (user_id) DO UPDATE
            SET token_hash=EXCLUDED.token_hash, questions=EXCLUDED.questions,
                recovery_email=EXCLUDED.recovery_email, expires_at=EXCLUDED.expires_at,
                used=FALSE, used_at=NULL, updated_at=NOW()
        RETURNING id, created_at, updated_at`

	if err := r.db.QueryRow(ctx, query,
		rec.ID,
		rec.UserID,
		rec.TokenHash,
		rec.Questions,
		rec.RecoveryEmail,
		rec.ExpiresAt,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return fmt.Errorf("save account recovery: %w", err)
	}
	rec.Used = false
	rec.UsedAt = nil
	return nil
}

func (r *accountRecoveryRepository) IssueToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	const query = `
        UPDATE account_recoveries
        SET token_hash=$2, expires_at=$3, used=FALSE, used_at=NULL, updated_at=NOW()
        WHERE user_id=$1`

	cmd, err := r.db.Exec(ctx, query, userID, tokenHash, expiresAt)
	if err != nil {
		return fmt.Errorf("issue recovery token: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *accountRecoveryRepository) Claim(ctx context.Context, id, tokenHash string, now time.Time) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	const query = `
        UPDATE account_recoveries SET used=TRUE, used_at=$3, updated_at=NOW()
        WHERE id=$1 AND token_hash=$2 AND NOT used AND expires_at > $3`

	cmd, err := r.db.Exec(ctx, query, id, tokenHash, now)
	if err != nil {
		return fmt.Errorf("claim recovery token: %w", err)
	}
	if cmd.RowsAffected() == 1 {
		return nil
	}

	var used bool
	err = r.db.QueryRow(ctx, `SELECT used FROM account_recoveries WHERE id=$1 AND token_hash=$2`, id, tokenHash).Scan(&used)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	case err != nil:
		return fmt.Errorf("classify recovery token: %w", err)
	case used:
		return ErrTokenAlreadyUsed
	default:
		return ErrTokenExpired
	}
}

func (r *accountRecoveryRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	const query = `
        UPDATE account_recoveries SET token_hash=NULL, updated_at=NOW()
        WHERE token_hash IS NOT NULL AND expires_at <= $1`
	cmd, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("purge account recoveries: %w", err)
	}
	return cmd.RowsAffected(), nil
}

func scanRecovery(row pgx.Row) (*domain.AccountRecovery, error) {
	var rec domain.AccountRecovery
	if err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.TokenHash,
		&rec.Questions,
		&rec.RecoveryEmail,
		&rec.ExpiresAt,
		&rec.Used,
		&rec.UsedAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, mapNoRows(err)
	}
	return &rec, nil
}
