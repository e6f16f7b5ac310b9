package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/identity-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventUserRegistered           EventType = "user_registered"
	EventPasswordResetRequested   EventType = "password_reset_requested"
	EventPasswordChanged          EventType = "password_changed"
	EventAccountSuspended         EventType = "account_suspended"
	EventAccountReactivated       EventType = "account_reactivated"
	EventAccountRecoveryInitiated EventType = "account_recovery_initiated"
	EventTwoFactorEnabled         EventType = "two_factor_enabled"
	EventTwoFactorDisabled        EventType = "two_factor_disabled"
	EventBackupCodesGenerated     EventType = "backup_codes_generated"
	EventLoginAlert               EventType = "login_alert"
)

// Actor identifies who caused an event when it was not the subject user.
type Actor struct {
	UserID string      `json:"user_id"`
	Role   domain.Role `json:"role"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	UserID    string      `json:"user_id"`
	Actor     *Actor      `json:"actor,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// NewEvent stamps an event with an id and time.
func NewEvent(eventType EventType, userID string, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// Recipient is the addressee of a notification.
type Recipient struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// UserRegisteredPayload payload.
type UserRegisteredPayload struct {
	Recipient
	Role domain.Role `json:"role"`
}

// PasswordResetRequestedPayload carries the raw reset token for delivery.
type PasswordResetRequestedPayload struct {
	Recipient
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PasswordChangedPayload payload.
type PasswordChangedPayload struct {
	Recipient
	ByAdmin bool `json:"by_admin"`
	// TemporaryPassword is set when an administrator generated the password.
	TemporaryPassword string `json:"-"`
}

// AccountSuspendedPayload payload.
type AccountSuspendedPayload struct {
	Recipient
	Reason   string                    `json:"reason"`
	Category domain.SuspensionCategory `json:"category"`
	EndsAt   *time.Time                `json:"ends_at,omitempty"`
}

// AccountReactivatedPayload payload.
type AccountReactivatedPayload struct {
	Recipient
}

// AccountRecoveryPayload is delivered to both the account email and the
// alternate recovery email.
type AccountRecoveryPayload struct {
	Recipient
	RecoveryEmail string    `json:"recovery_email,omitempty"`
	Token         string    `json:"-"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// TwoFactorPayload payload.
type TwoFactorPayload struct {
	Recipient
	Remaining int `json:"remaining,omitempty"`
}

// LoginAlertPayload describes a completed login.
type LoginAlertPayload struct {
	Recipient
	Device     domain.DeviceInfo `json:"device"`
	NewDevice  bool              `json:"new_device"`
	BackupCode bool              `json:"backup_code"`
}
