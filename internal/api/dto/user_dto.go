package dto

import (
	"time"

	"github.com/spec-kit/identity-service/internal/domain"
)

// UserRegisterRequest payload for new users.
type UserRegisterRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	AdminSecret string `json:"adminSecret,omitempty"`
}

// UserLoginRequest payload for login.
type UserLoginRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	TwoFactorToken string `json:"twoFactorToken,omitempty"`
	IsBackupCode   bool   `json:"isBackupCode,omitempty"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Message   string            `json:"message"`
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expiresAt"`
	User      domain.PublicUser `json:"user"`
	NewDevice bool              `json:"newDevice,omitempty"`
}

// ProfileUpdateRequest holds optional profile fields.
type ProfileUpdateRequest struct {
	Name        *string `json:"name"`
	PhoneNumber *string `json:"phoneNumber"`
	Address     *string `json:"address"`
	Bio         *string `json:"bio"`
}

// PasswordChangeRequest payload for authenticated password changes.
type PasswordChangeRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}
