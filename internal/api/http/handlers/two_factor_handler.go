package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/identity-service/internal/api/dto"
	"github.com/spec-kit/identity-service/internal/auth"
	"github.com/spec-kit/identity-service/internal/service"
	apperrors "github.com/spec-kit/identity-service/pkg/util"
)

// TwoFactorHandler exposes 2FA enrollment endpoints.
type TwoFactorHandler struct {
	twoFactor *service.TwoFactorService
}

// NewTwoFactorHandler constructs handler.
func NewTwoFactorHandler(twoFactor *service.TwoFactorService) *TwoFactorHandler {
	return &TwoFactorHandler{twoFactor: twoFactor}
}

// Setup handles POST /api/2fa/setup.
func (h *TwoFactorHandler) Setup(c *fiber.Ctx) error {
	principal, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	setup, err := h.twoFactor.Setup(c.UserContext(), principal)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "2FA setup initiated", fiber.Map{
		"secret":      setup.Secret,
		"otpauthUrl":  setup.OTPAuthURL,
		"qrCode":      setup.QRCode,
		"backupCodes": setup.BackupCodes,
	})
}

// Verify handles POST /api/2fa/verify.
func (h *TwoFactorHandler) Verify(c *fiber.Ctx) error {
	principal, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.TwoFactorTokenRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := h.twoFactor.Verify(c.UserContext(), principal, req.Token); err != nil {
		return err
	}
	return respond(c, http.StatusOK, "2FA enabled successfully", nil)
}

// Disable handles POST /api/2fa/disable.
func (h *TwoFactorHandler) Disable(c *fiber.Ctx) error {
	principal, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.TwoFactorTokenRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := h.twoFactor.Disable(c.UserContext(), principal, req.Token); err != nil {
		return err
	}
	return respond(c, http.StatusOK, "2FA disabled successfully", nil)
}

// Validate handles POST /api/2fa/validate.
func (h *TwoFactorHandler) Validate(c *fiber.Ctx) error {
	var req dto.TwoFactorValidateRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.UserID == "" {
		return apperrors.NewValidationError("Missing required fields", map[string]any{"fields": []string{"userId"}})
	}
	if err := h.twoFactor.Validate(c.UserContext(), req.UserID, req.Token, req.IsBackupCode); err != nil {
		return err
	}
	return respond(c, http.StatusOK, "2FA token validated", fiber.Map{"valid": true})
}
