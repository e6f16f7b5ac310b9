package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/identity-service/internal/api/dto"
	"github.com/spec-kit/identity-service/internal/auth"
	"github.com/spec-kit/identity-service/internal/service"
)

// RecoveryHandler exposes question-based account recovery.
type RecoveryHandler struct {
	recovery *service.RecoveryService
}

// NewRecoveryHandler constructs handler.
func NewRecoveryHandler(recovery *service.RecoveryService) *RecoveryHandler {
	return &RecoveryHandler{recovery: recovery}
}

// Setup handles POST /api/recovery/setup.
func (h *RecoveryHandler) Setup(c *fiber.Ctx) error {
	principal, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.RecoverySetupRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	questions := make([]service.RecoveryQuestionInput, 0, len(req.Questions))
	for _, q := range req.Questions {
		questions = append(questions, service.RecoveryQuestionInput{Question: q.Question, Answer: q.Answer})
	}
	if err := h.recovery.SetupRecovery(c.UserContext(), principal, questions, req.RecoveryEmail); err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Account recovery configured", nil)
}

// Initiate handles POST /api/recovery/initiate.
func (h *RecoveryHandler) Initiate(c *fiber.Ctx) error {
	var req dto.EmailRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := h.recovery.InitiateRecovery(c.UserContext(), req.Email); err != nil {
		return err
	}
	return respond(c, http.StatusOK, service.RecoveryNotice, nil)
}

// Verify handles POST /api/recovery/verify.
func (h *RecoveryHandler) Verify(c *fiber.Ctx) error {
	var req dto.RecoveryVerifyRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	handoff, err := h.recovery.VerifyRecovery(c.UserContext(), req.Token, req.Answers)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Security questions verified", fiber.Map{
		"tempToken": handoff.Token,
		"expiresAt": handoff.ExpiresAt,
	})
}

// Complete handles POST /api/recovery/complete.
func (h *RecoveryHandler) Complete(c *fiber.Ctx) error {
	var req dto.RecoveryCompleteRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := h.recovery.CompleteRecovery(c.UserContext(), req.TempToken, req.NewPassword); err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Password has been reset successfully", nil)
}
