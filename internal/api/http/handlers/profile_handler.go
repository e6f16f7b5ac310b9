package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/identity-service/internal/api/dto"
	"github.com/spec-kit/identity-service/internal/auth"
	"github.com/spec-kit/identity-service/internal/service"
)

// ProfileHandler exposes the caller's own account.
type ProfileHandler struct {
	auth *service.AuthService
}

// NewProfileHandler constructs handler.
func NewProfileHandler(authService *service.AuthService) *ProfileHandler {
	return &ProfileHandler{auth: authService}
}

// Get handles GET /api/users/profile.
func (h *ProfileHandler) Get(c *fiber.Ctx) error {
	principal, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Profile retrieved", fiber.Map{"user": principal.User.Profile()})
}

// Update handles PUT /api/users/profile.
func (h *ProfileHandler) Update(c *fiber.Ctx) error {
	principal, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.ProfileUpdateRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	user, err := h.auth.UpdateProfile(c.UserContext(), principal, service.ProfileInput{
		Name:        req.Name,
		PhoneNumber: req.PhoneNumber,
		Address:     req.Address,
		Bio:         req.Bio,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Profile updated successfully", fiber.Map{"user": user.Profile()})
}

// Devices handles GET /api/users/devices.
func (h *ProfileHandler) Devices(c *fiber.Ctx) error {
	principal, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	devices, err := h.auth.Devices(c.UserContext(), principal)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Devices retrieved", fiber.Map{"devices": devices})
}
