package domain

import "time"

// TwoFactor is a user's second-factor enrollment. A record with Enabled
// false is pending: the secret exists but has never been verified.
type TwoFactor struct {
	UserID      string
	Secret      string
	Enabled     bool
	BackupCodes []string
	LastUsed    *time.Time
	VerifiedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
