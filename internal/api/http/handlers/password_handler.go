package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/identity-service/internal/api/dto"
	"github.com/spec-kit/identity-service/internal/auth"
	"github.com/spec-kit/identity-service/internal/service"
)

// PasswordHandler exposes password reset and change.
type PasswordHandler struct {
	auth     *service.AuthService
	recovery *service.RecoveryService
}

// NewPasswordHandler constructs handler.
func NewPasswordHandler(authService *service.AuthService, recovery *service.RecoveryService) *PasswordHandler {
	return &PasswordHandler{auth: authService, recovery: recovery}
}

// Forgot handles POST /api/password/forgot-password.
func (h *PasswordHandler) Forgot(c *fiber.Ctx) error {
	var req dto.EmailRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := h.recovery.ForgotPassword(c.UserContext(), req.Email); err != nil {
		return err
	}
	return respond(c, http.StatusOK, service.RecoveryNotice, nil)
}

// Reset handles POST /api/password/reset-password.
func (h *PasswordHandler) Reset(c *fiber.Ctx) error {
	var req dto.PasswordResetConfirmRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := h.recovery.ResetPassword(c.UserContext(), req.Token, req.NewPassword); err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Password has been reset successfully", nil)
}

// Change handles POST /api/password/change.
func (h *PasswordHandler) Change(c *fiber.Ctx) error {
	principal, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.PasswordChangeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := h.auth.ChangePassword(c.UserContext(), principal, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Password changed successfully", nil)
}
