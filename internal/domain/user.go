package domain

import (
	"errors"
	"strings"
	"time"
)

// Role enumerates account privilege tiers.
type Role string

const (
	RoleOwner Role = "owner"
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleUser:
		return true
	}
	return false
}

// SuspensionCategory classifies why an account was suspended.
type SuspensionCategory string

const (
	SuspensionViolation SuspensionCategory = "violation"
	SuspensionSpam      SuspensionCategory = "spam"
	SuspensionAbuse     SuspensionCategory = "abuse"
	SuspensionSecurity  SuspensionCategory = "security"
	SuspensionOther     SuspensionCategory = "other"
)

// ParseSuspensionCategory accepts any casing; empty input maps to other.
func ParseSuspensionCategory(raw string) (SuspensionCategory, bool) {
	c := SuspensionCategory(strings.ToLower(strings.TrimSpace(raw)))
	if c == "" {
		return SuspensionOther, true
	}
	switch c {
	case SuspensionViolation, SuspensionSpam, SuspensionAbuse, SuspensionSecurity, SuspensionOther:
		return c, true
	}
	return "", false
}

var (
	ErrSuspensionReasonRequired = errors.New("suspension reason required")
	ErrSuspensionActorRequired  = errors.New("suspension actor required")
	ErrOwnerNotSuspendable      = errors.New("owner account cannot be suspended")
	ErrSuspensionInconsistent   = errors.New("suspension fields inconsistent with active flag")
)

// Suspension holds the administrative hold placed on an account.
type Suspension struct {
	SuspendedAt time.Time
	SuspendedBy string
	Reason      string
	Category    SuspensionCategory
	EndsAt      *time.Time
}

// User is the credential-bearing account.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	Role         Role
	IsActive     bool
	Suspension   *Suspension
	PhoneNumber  string
	Address      string
	Bio          string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NormalizeEmail lower-cases and trims an address so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsOwner reports whether the account holds the owner role.
func (u *User) IsOwner() bool {
	return u.Role == RoleOwner
}

// IsSuspended reports whether the account is barred from authenticating.
// Owners are never considered suspended.
func (u *User) IsSuspended() bool {
	return !u.IsActive && !u.IsOwner()
}

// Suspend places the account on hold. A zero duration means indefinite.
func (u *User) Suspend(actorID, reason string, category SuspensionCategory, duration time.Duration, now time.Time) error {
	if u.IsOwner() {
		return ErrOwnerNotSuspendable
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrSuspensionReasonRequired
	}
	if actorID == "" {
		return ErrSuspensionActorRequired
	}
	if category == "" {
		category = SuspensionOther
	}

	s := &Suspension{
		SuspendedAt: now.UTC(),
		SuspendedBy: actorID,
		Reason:      reason,
		Category:    category,
	}
	if duration > 0 {
		end := now.Add(duration).UTC()
		s.EndsAt = &end
	}

	u.IsActive = false
	u.Suspension = s
	return nil
}

// Reactivate lifts any suspension and clears every suspension field.
func (u *User) Reactivate() {
	u.IsActive = true
	u.Suspension = nil
}

// ValidateSuspension checks that the active flag and suspension fields agree.
func (u *User) ValidateSuspension() error {
	if u.IsActive {
		if u.Suspension != nil {
			return ErrSuspensionInconsistent
		}
		return nil
	}
	if u.Suspension == nil || strings.TrimSpace(u.Suspension.Reason) == "" || u.Suspension.SuspendedBy == "" {
		return ErrSuspensionInconsistent
	}
	return nil
}

// ReconcileSuspension lifts a suspension whose end date has passed. It
// returns the reconciled user and whether anything changed.
func ReconcileSuspension(u User, now time.Time) (User, bool) {
	if u.IsActive || u.Suspension == nil || u.Suspension.EndsAt == nil {
		return u, false
	}
	if now.Before(*u.Suspension.EndsAt) {
		return u, false
	}
	u.Reactivate()
	return u, true
}

// PublicUser is the redacted projection returned to clients.
type PublicUser struct {
	ID          string            `json:"id"`
	Email       string            `json:"email"`
	Name        string            `json:"name"`
	Role        Role              `json:"role"`
	PhoneNumber string            `json:"phoneNumber,omitempty"`
	Address     string            `json:"address,omitempty"`
	Bio         string            `json:"bio,omitempty"`
	Status      *PublicUserStatus `json:"status,omitempty"`
	CreatedAt   *time.Time        `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time        `json:"updatedAt,omitempty"`
}

// PublicUserStatus exposes suspension state to administrators.
type PublicUserStatus struct {
	IsActive           bool               `json:"isActive"`
	SuspendedAt        *time.Time         `json:"suspendedAt,omitempty"`
	SuspendedBy        string             `json:"suspendedBy,omitempty"`
	SuspensionReason   string             `json:"suspensionReason,omitempty"`
	SuspensionCategory SuspensionCategory `json:"suspensionCategory,omitempty"`
	SuspensionEnd      *time.Time         `json:"suspensionEnd,omitempty"`
}

// Public returns the minimal identity projection (no credential hash).
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:    u.ID,
		Email: u.Email,
		Name:  u.Name,
		Role:  u.Role,
	}
}

// Profile returns the identity projection plus profile fields.
func (u *User) Profile() PublicUser {
	p := u.Public()
	p.PhoneNumber = u.PhoneNumber
	p.Address = u.Address
	p.Bio = u.Bio
	return p
}

// AdminView returns the projection shown to administrators.
func (u *User) AdminView() PublicUser {
	p := u.Profile()
	p.Status = u.Status()
	created, updated := u.CreatedAt, u.UpdatedAt
	p.CreatedAt = &created
	p.UpdatedAt = &updated
	return p
}

// Status returns the suspension status projection.
func (u *User) Status() *PublicUserStatus {
	st := &PublicUserStatus{IsActive: u.IsActive}
	if !u.IsActive && u.Suspension != nil {
		at := u.Suspension.SuspendedAt
		st.SuspendedAt = &at
		st.SuspendedBy = u.Suspension.SuspendedBy
		st.SuspensionReason = u.Suspension.Reason
		st.SuspensionCategory = u.Suspension.Category
		st.SuspensionEnd = u.Suspension.EndsAt
	}
	return st
}
