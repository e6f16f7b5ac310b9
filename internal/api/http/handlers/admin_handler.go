package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/identity-service/internal/api/dto"
	"github.com/spec-kit/identity-service/internal/auth"
	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/service"
)

// AdminHandler exposes account administration.
type AdminHandler struct {
	admin *service.AdminService
}

// NewAdminHandler constructs handler.
func NewAdminHandler(admin *service.AdminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

// ListUsers handles GET /api/admin/users.
func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	principal, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	users, err := h.admin.ListUsers(c.UserContext(), principal)
	if err != nil {
		return err
	}
	views := make([]domain.PublicUser, 0, len(users))
	for i := range users {
		views = append(views, users[i].AdminView())
	}
	return respond(c, http.StatusOK, "Users retrieved", fiber.Map{"users": views, "count": len(views)})
}

// GetUser handles GET /api/admin/users/:id.
func (h *AdminHandler) GetUser(c *fiber.Ctx) error {
	principal, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	user, err := h.admin.GetUser(c.UserContext(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "User retrieved", fiber.Map{"user": user.AdminView()})
}

// ChangeRole handles PATCH /api/admin/users/:id/role.
func (h *AdminHandler) ChangeRole(c *fiber.Ctx) error {
	principal, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.RoleChangeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	user, err := h.admin.ChangeRole(c.UserContext(), principal, c.Params("id"), req.Role)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "User role updated", fiber.Map{"user": user.AdminView()})
}

// CreateAdmin handles POST /api/admin/create-admin.
func (h *AdminHandler) CreateAdmin(c *fiber.Ctx) error {
	principal, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.UserRegisterRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	user, err := h.admin.CreateAdmin(c.UserContext(), principal, registerInput(req))
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, "Admin created successfully", fiber.Map{"user": user.AdminView()})
}

// DeleteUser handles DELETE /api/admin/users/:id.
func (h *AdminHandler) DeleteUser(c *fiber.Ctx) error {
	principal, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	if err := h.admin.DeleteUser(c.UserContext(), principal, c.Params("id")); err != nil {
		return err
	}
	return respond(c, http.StatusOK, "User deleted successfully", nil)
}

// ResetPassword handles POST /api/admin/users/:id/reset-password.
func (h *AdminHandler) ResetPassword(c *fiber.Ctx) error {
	principal, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.AdminPasswordResetRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}
	password, err := h.admin.ResetPassword(c.UserContext(), principal, c.Params("id"), req.NewPassword)
	if err != nil {
		return err
	}
	payload := fiber.Map{}
	if req.NewPassword == "" {
		payload["temporaryPassword"] = password
	}
	return respond(c, http.StatusOK, "Password reset successfully", payload)
}

// Suspend handles POST /api/admin/users/:id/suspend.
func (h *AdminHandler) Suspend(c *fiber.Ctx) error {
	principal, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.SuspendRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	user, err := h.admin.Suspend(c.UserContext(), principal, c.Params("id"), service.SuspendInput{
		Reason:       req.Reason,
		Category:     req.Category,
		DurationDays: req.Duration,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "User suspended successfully", fiber.Map{"user": user.AdminView()})
}

// Reactivate handles POST /api/admin/users/:id/reactivate.
func (h *AdminHandler) Reactivate(c *fiber.Ctx) error {
	principal, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	user, err := h.admin.Reactivate(c.UserContext(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "User reactivated successfully", fiber.Map{"user": user.AdminView()})
}
