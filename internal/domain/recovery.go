package domain

import "time"

// PasswordReset is a single-use password reset grant. Only the token hash
// is stored.
type PasswordReset struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	Used      bool
	UsedAt    *time.Time
	CreatedAt time.Time
}

// SecurityQuestion pairs a prompt with the bcrypt hash of its answer.
type SecurityQuestion struct {
	Question   string `json:"question"`
	AnswerHash string `json:"answer_hash"`
}

// AccountRecovery holds a user's recovery questions and the currently
// issued recovery token, if any.
type AccountRecovery struct {
	ID            string
	UserID        string
	TokenHash     string
	Questions     []SecurityQuestion
	RecoveryEmail string
	ExpiresAt     time.Time
	Used          bool
	UsedAt        *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Redeemable reports whether the token may still authorize an action.
func (r *AccountRecovery) Redeemable(now time.Time) bool {
	return r.TokenHash != "" && !r.Used && now.Before(r.ExpiresAt)
}
