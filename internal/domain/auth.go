package domain

// TokenPurpose differentiates bearer access tokens from recovery handoffs.
type TokenPurpose string

const (
	TokenPurposeAccess   TokenPurpose = "access"
	TokenPurposeRecovery TokenPurpose = "recovery"
)
