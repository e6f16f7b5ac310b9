package dto

// RoleChangeRequest payload.
type RoleChangeRequest struct {
	Role string `json:"role"`
}

// AdminPasswordResetRequest optionally supplies the new password.
type AdminPasswordResetRequest struct {
	NewPassword string `json:"newPassword"`
}

// SuspendRequest payload. Duration is in days.
type SuspendRequest struct {
	Reason   string `json:"reason"`
	Category string `json:"category"`
	Duration *int   `json:"duration"`
}
