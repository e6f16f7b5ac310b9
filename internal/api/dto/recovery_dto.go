package dto

// EmailRequest carries a single email address.
type EmailRequest struct {
	Email string `json:"email"`
}

// PasswordResetConfirmRequest payload for confirming reset.
type PasswordResetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// SecurityQuestionRequest is one question with its answer.
type SecurityQuestionRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// RecoverySetupRequest configures account recovery.
type RecoverySetupRequest struct {
	Questions     []SecurityQuestionRequest `json:"questions"`
	RecoveryEmail string                    `json:"recoveryEmail"`
}

// RecoveryVerifyRequest answers the security questions.
type RecoveryVerifyRequest struct {
	Token   string   `json:"token"`
	Answers []string `json:"answers"`
}

// RecoveryCompleteRequest sets the new password after recovery.
type RecoveryCompleteRequest struct {
	TempToken   string `json:"tempToken"`
	NewPassword string `json:"newPassword"`
}

// TwoFactorTokenRequest carries a TOTP code.
type TwoFactorTokenRequest struct {
	Token string `json:"token"`
}

// TwoFactorValidateRequest checks a code outside login.
type TwoFactorValidateRequest struct {
	UserID       string `json:"userId"`
	Token        string `json:"token"`
	IsBackupCode bool   `json:"isBackupCode"`
}
