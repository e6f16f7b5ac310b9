// Package memory provides in-process implementations of the repository
// interfaces. A single mutex serializes every operation, which gives the same
// at-most-once guarantees as the conditional statements used in Postgres.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/repository"
)

// Store holds every record kind.
type Store struct {
	mu         sync.Mutex
	users      map[string]domain.User
	twoFactor  map[string]domain.TwoFactor
	resets     map[string]domain.PasswordReset // by user id
	recoveries map[string]domain.AccountRecovery
	devices    map[string]map[string]domain.LoginDevice
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:      map[string]domain.User{},
		twoFactor:  map[string]domain.TwoFactor{},
		resets:     map[string]domain.PasswordReset{},
		recoveries: map[string]domain.AccountRecovery{},
		devices:    map[string]map[string]domain.LoginDevice{},
	}
}

// Users returns the user repository view.
func (s *Store) Users() repository.UserRepository { return &users{s} }

// TwoFactor returns the two-factor repository view.
func (s *Store) TwoFactor() repository.TwoFactorRepository { return &twoFactor{s} }

// PasswordResets returns the password reset repository view.
func (s *Store) PasswordResets() repository.PasswordResetRepository { return &passwordResets{s} }

// AccountRecoveries returns the account recovery repository view.
func (s *Store) AccountRecoveries() repository.AccountRecoveryRepository {
	return &accountRecoveries{s}
}

// LoginDevices returns the login device repository view.
func (s *Store) LoginDevices() repository.LoginDeviceRepository { return &loginDevices{s} }

type users struct{ s *Store }

func (r *users) emailTaken(email, exceptID string) bool {
	for id, u := range r.s.users {
		if id != exceptID && u.Email == email {
			return true
		}
	}
	return false
}

func (r *users) ownerExists() bool {
	for _, u := range r.s.users {
		if u.Role == domain.RoleOwner {
			return true
		}
	}
	return false
}

func (r *users) insert(user *domain.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.Email = domain.NormalizeEmail(user.Email)
	if user.Role == "" {
		user.Role = domain.RoleUser
	}
	user.IsActive = true
	user.Suspension = nil
	if r.emailTaken(user.Email, "") {
		return repository.ErrDuplicateEmail
	}
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	r.s.users[user.ID] = cloneUser(*user)
	return nil
}

func (r *users) Create(_ context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if user.Role == domain.RoleOwner && r.ownerExists() {
		return repository.ErrOwnerExists
	}
	return r.insert(user)
}

func (r *users) CreateOwner(_ context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.ownerExists() {
		return repository.ErrOwnerExists
	}
	user.Role = domain.RoleOwner
	return r.insert(user)
}

func (r *users) UpdatePassword(_ context.Context, id, passwordHash string) error {
	_, err := r.mutate(id, anyRole, func(u *domain.User) { u.PasswordHash = passwordHash })
	return err
}

func (r *users) UpdateProfile(_ context.Context, id string, changes repository.ProfileChanges) (*domain.User, error) {
	return r.mutate(id, anyRole, func(u *domain.User) {
		if changes.Name != nil {
			u.Name = *changes.Name
		}
		if changes.PhoneNumber != nil {
			u.PhoneNumber = *changes.PhoneNumber
		}
		if changes.Address != nil {
			u.Address = *changes.Address
		}
		if changes.Bio != nil {
			u.Bio = *changes.Bio
		}
	})
}

func (r *users) SetRole(_ context.Context, id string, role domain.Role, targetRoles []domain.Role) (*domain.User, error) {
	if role == domain.RoleOwner {
		return nil, repository.ErrNotFound
	}
	return r.mutate(id, targetedRole(targetRoles), func(u *domain.User) { u.Role = role })
}

func (r *users) Suspend(_ context.Context, id string, suspension domain.Suspension, targetRoles []domain.Role) (*domain.User, error) {
	switch {
	case strings.TrimSpace(suspension.Reason) == "":
		return nil, domain.ErrSuspensionReasonRequired
	case suspension.SuspendedBy == "":
		return nil, domain.ErrSuspensionActorRequired
	}
	return r.mutate(id, targetedRole(targetRoles), func(u *domain.User) {
		u.IsActive = false
		s := suspension
		u.Suspension = &s
	})
}

func (r *users) Reactivate(_ context.Context, id string, targetRoles []domain.Role) (*domain.User, error) {
	return r.mutate(id, func(role domain.Role) bool { return hasRole(targetRoles, role) }, func(u *domain.User) { u.Reactivate() })
}

func (r *users) LiftExpiredSuspension(_ context.Context, id string, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok || u.IsActive || u.Suspension == nil || u.Suspension.EndsAt == nil || u.Suspension.EndsAt.After(now) {
		return false, nil
	}
	u.Reactivate()
	u.UpdatedAt = time.Now().UTC()
	r.s.users[id] = u
	return true, nil
}

func anyRole(domain.Role) bool { return true }

// targetedRole matches the listed roles and never the owner.
func targetedRole(roles []domain.Role) func(domain.Role) bool {
	return func(role domain.Role) bool { return role != domain.RoleOwner && hasRole(roles, role) }
}

// mutate applies fn to the stored user under the lock when match accepts
// its current role.
func (r *users) mutate(id string, match func(domain.Role) bool, fn func(*domain.User)) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok || !match(u.Role) {
		return nil, repository.ErrNotFound
	}
	u = cloneUser(u)
	fn(&u)
	u.UpdatedAt = time.Now().UTC()
	r.s.users[id] = cloneUser(u)
	return &u, nil
}

func (r *users) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok || u.Role == domain.RoleOwner {
		return repository.ErrNotFound
	}
	delete(r.s.users, id)
	delete(r.s.twoFactor, id)
	delete(r.s.resets, id)
	delete(r.s.recoveries, id)
	delete(r.s.devices, id)
	return nil
}

func (r *users) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := cloneUser(u)
	return &out, nil
}

func (r *users) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	email = domain.NormalizeEmail(email)
	for _, u := range r.s.users {
		if u.Email == email {
			out := cloneUser(u)
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *users) List(_ context.Context, filter repository.UserFilter) ([]domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.User
	for _, u := range r.s.users {
		if len(filter.Roles) > 0 && !hasRole(filter.Roles, u.Role) {
			continue
		}
		out = append(out, cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *users) OwnerExists(_ context.Context) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.ownerExists(), nil
}

func hasRole(roles []domain.Role, role domain.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func cloneUser(u domain.User) domain.User {
	if u.Suspension != nil {
		s := *u.Suspension
		if s.EndsAt != nil {
			end := *s.EndsAt
			s.EndsAt = &end
		}
		u.Suspension = &s
	}
	return u
}
