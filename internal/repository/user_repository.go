package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/identity-service/internal/domain"
)

// UserFilter narrows List results.
type UserFilter struct {
	Roles []domain.Role
}

// ProfileChanges lists the profile fields to overwrite. Nil fields are kept.
type ProfileChanges struct {
	Name        *string
	PhoneNumber *string
	Address     *string
	Bio         *string
}

// UserRepository defines persistence access for accounts. Every mutation
// writes only its own columns in a single statement, so overlapping writes
// never undo each other. Mutations guarded by roles only match rows whose
// current role is listed; a miss is reported as ErrNotFound.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	CreateOwner(ctx context.Context, user *domain.User) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateProfile(ctx context.Context, id string, changes ProfileChanges) (*domain.User, error)
	SetRole(ctx context.Context, id string, role domain.Role, targetRoles []domain.Role) (*domain.User, error)
	Suspend(ctx context.Context, id string, suspension domain.Suspension, targetRoles []domain.Role) (*domain.User, error)
	Reactivate(ctx context.Context, id string, targetRoles []domain.Role) (*domain.User, error)
	// LiftExpiredSuspension reactivates id only if it is still suspended
	// with an end date at or before now. It reports whether a row changed.
	LiftExpiredSuspension(ctx context.Context, id string, now time.Time) (bool, error)
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	List(ctx context.Context, filter UserFilter) ([]domain.User, error)
	OwnerExists(ctx context.Context) (bool, error)
}

type userRepository struct {
	pgStore
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(db DB, timeout time.Duration) UserRepository {
	return &userRepository{pgStore: newPGStore(db, timeout)}
}

const userColumns = `id, email, password_hash, name, role, is_active,
        suspended_at, suspended_by, suspension_reason, suspension_category, suspension_end,
        phone_number, address, bio, created_at, updated_at`

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	prepareNewUser(user)
	const query = `
        INSERT INTO users (id, email, password_hash, name, role, is_active, phone_number, address, bio)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.Name,
		user.Role,
		user.IsActive,
		user.PhoneNumber,
		user.Address,
		user.Bio,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *userRepository) CreateOwner(ctx context.Context, user *domain.User) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	prepareNewUser(user)
	user.Role = domain.RoleOwner
	const query = `
        INSERT INTO users (id, email, password_hash, name, role, is_active)
        SELECT $1, $2, $3, $4, 'owner', TRUE
        WHERE NOT EXISTS (SELECT 1 FROM users WHERE role = 'owner')
        RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.Name,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return ErrOwnerExists
	case isUniqueViolation(err):
		// owner index or email index; tell them apart by re-checking.
		if exists, checkErr := r.ownerExists(ctx); checkErr == nil && exists {
			return ErrOwnerExists
		}
		return ErrDuplicateEmail
	default:
		return fmt.Errorf("create owner: %w", err)
	}
}

func (r *userRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	const query = `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`
	cmd, err := r.db.Exec(ctx, query, id, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepository) UpdateProfile(ctx context.Context, id string, changes ProfileChanges) (*domain.User, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	query := `
        UPDATE users SET name=COALESCE($2, name), phone_number=COALESCE($3, phone_number),
            address=COALESCE($4, address), bio=COALESCE($5, bio), updated_at=NOW()
        WHERE id=$1
        RETURNING ` + userColumns
	return scanUser(r.db.QueryRow(ctx, query, id, changes.Name, changes.PhoneNumber, changes.Address, changes.Bio))
}

func (r *userRepository) SetRole(ctx context.Context, id string, role domain.Role, targetRoles []domain.Role) (*domain.User, error) {
	if role == domain.RoleOwner {
		return nil, ErrNotFound
	}
	ctx, cancel := r.bound(ctx)
	defer cancel()

	query := `
        UPDATE users SET role=$2, updated_at=NOW()
        WHERE id=$1 AND role <> 'owner' AND role = ANY($3)
        RETURNING ` + userColumns
	return scanUser(r.db.QueryRow(ctx, query, id, role, roleStrings(targetRoles)))
}

func (r *userRepository) Suspend(ctx context.Context, id string, suspension domain.Suspension, targetRoles []domain.Role) (*domain.User, error) {
	switch {
	case strings.TrimSpace(suspension.Reason) == "":
		return nil, domain.ErrSuspensionReasonRequired
	case suspension.SuspendedBy == "":
		return nil, domain.ErrSuspensionActorRequired
	}
	ctx, cancel := r.bound(ctx)
	defer cancel()

	s := suspensionColumns(&suspension)
	query := `
        UPDATE users SET is_active=FALSE, suspended_at=$2, suspended_by=$3, suspension_reason=$4,
            suspension_category=$5, suspension_end=$6, updated_at=NOW()
        WHERE id=$1 AND role <> 'owner' AND role = ANY($7)
        RETURNING ` + userColumns
	return scanUser(r.db.QueryRow(ctx, query, id, s.at, s.by, s.reason, s.category, s.end, roleStrings(targetRoles)))
}

func (r *userRepository) Reactivate(ctx context.Context, id string, targetRoles []domain.Role) (*domain.User, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	query := `
        UPDATE users SET is_active=TRUE, suspended_at=NULL, suspended_by=NULL, suspension_reason=NULL,
            suspension_category=NULL, suspension_end=NULL, updated_at=NOW()
        WHERE id=$1 AND role = ANY($2)
        RETURNING ` + userColumns
	return scanUser(r.db.QueryRow(ctx, query, id, roleStrings(targetRoles)))
}

func (r *userRepository) LiftExpiredSuspension(ctx context.Context, id string, now time.Time) (bool, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	const query = `
        UPDATE users SET is_active=TRUE, suspended_at=NULL, suspended_by=NULL, suspension_reason=NULL,
            suspension_category=NULL, suspension_end=NULL, updated_at=NOW()
        WHERE id=$1 AND NOT is_active AND suspension_end IS NOT NULL AND suspension_end <= $2`
	cmd, err := r.db.Exec(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("lift suspension: %w", err)
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *userRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	const query = `DELETE FROM users WHERE id=$1 AND role <> 'owner'`
	cmd, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	ctx, cancel := r.bound(ctx)
	defer cancel()

	query := `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	return scanUser(r.db.QueryRow(ctx, query, id))
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	query := `SELECT ` + userColumns + ` FROM users WHERE email=$1`
	return scanUser(r.db.QueryRow(ctx, query, domain.NormalizeEmail(email)))
}

func (r *userRepository) List(ctx context.Context, filter UserFilter) ([]domain.User, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	query := `SELECT ` + userColumns + ` FROM users`
	args := []any{}
	if len(filter.Roles) > 0 {
		query += ` WHERE role = ANY($1)`
		args = append(args, roleStrings(filter.Roles))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

func (r *userRepository) OwnerExists(ctx context.Context) (bool, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return r.ownerExists(ctx)
}

func (r *userRepository) ownerExists(ctx context.Context) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM users WHERE role = 'owner')`
	var exists bool
	if err := r.db.QueryRow(ctx, query).Scan(&exists); err != nil {
		return false, fmt.Errorf("owner exists: %w", err)
	}
	return exists, nil
}

// ReconcileSuspension persists the lazy expiry of user's suspension. When
// the conditional write loses to a concurrent change the stored row is
// reloaded instead of trusting the in-memory copy.
func ReconcileSuspension(ctx context.Context, users UserRepository, user *domain.User, now time.Time) (*domain.User, error) {
	reconciled, changed := domain.ReconcileSuspension(*user, now)
	if !changed {
		return user, nil
	}
	lifted, err := users.LiftExpiredSuspension(ctx, user.ID, now)
	if err != nil {
		return nil, err
	}
	if lifted {
		return &reconciled, nil
	}
	return users.GetByID(ctx, user.ID)
}

func roleStrings(roles []domain.Role) []string {
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		out = append(out, string(role))
	}
	return out
}

func prepareNewUser(user *domain.User) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.Email = domain.NormalizeEmail(user.Email)
	user.Name = strings.TrimSpace(user.Name)
	if user.Role == "" {
		user.Role = domain.RoleUser
	}
	user.IsActive = true
	user.Suspension = nil
}

type suspensionRow struct {
	at       *time.Time
	by       *string
	reason   *string
	category *string
	end      *time.Time
}

func suspensionColumns(s *domain.Suspension) suspensionRow {
	if s == nil {
		return suspensionRow{}
	}
	at := s.SuspendedAt
	by := s.SuspendedBy
	reason := s.Reason
	category := string(s.Category)
	return suspensionRow{at: &at, by: &by, reason: &reason, category: &category, end: s.EndsAt}
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user domain.User
		role string
		s    suspensionRow
	)
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Name,
		&role,
		&user.IsActive,
		&s.at,
		&s.by,
		&s.reason,
		&s.category,
		&s.end,
		&user.PhoneNumber,
		&user.Address,
		&user.Bio,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, mapNoRows(err)
	}
	user.Role = domain.Role(role)
	if s.at != nil {
		user.Suspension = &domain.Suspension{
			SuspendedAt: *s.at,
			EndsAt:      s.end,
		}
		if s.by != nil {
			user.Suspension.SuspendedBy = *s.by
		}
		if s.reason != nil {
			user.Suspension.Reason = *s.reason
		}
		if s.category != nil {
			user.Suspension.Category = domain.SuspensionCategory(*s.category)
		}
	}
	return &user, nil
}
