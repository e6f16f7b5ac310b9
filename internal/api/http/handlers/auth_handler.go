package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/identity-service/internal/api/dto"
	"github.com/spec-kit/identity-service/internal/auth"
	"github.com/spec-kit/identity-service/internal/service"
)

// AuthHandler exposes registration, login and logout.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.UserRegisterRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	res, err := h.auth.Register(c.UserContext(), registerInput(req))
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(authResponse("User registered successfully", res))
}

// RegisterAdmin handles POST /api/auth/register/admin.
func (h *AuthHandler) RegisterAdmin(c *fiber.Ctx) error {
	var req dto.UserRegisterRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	res, err := h.auth.RegisterAdmin(c.UserContext(), registerInput(req), req.AdminSecret)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(authResponse("Admin registered successfully", res))
}

// SetupOwner handles POST /api/auth/setup-owner.
func (h *AuthHandler) SetupOwner(c *fiber.Ctx) error {
	var req dto.UserRegisterRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	res, err := h.auth.BootstrapOwner(c.UserContext(), registerInput(req))
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(authResponse("Owner account created successfully", res))
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.UserLoginRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	res, err := h.auth.Login(c.UserContext(), service.LoginInput{
		Email:        req.Email,
		Password:     req.Password,
		SecondFactor: req.TwoFactorToken,
		IsBackupCode: req.IsBackupCode,
		UserAgent:    c.Get(fiber.HeaderUserAgent),
		IP:           c.IP(),
	})
	if err != nil {
		return err
	}
	return c.JSON(authResponse("Login successful", res))
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	principal, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	if err := h.auth.Logout(c.UserContext(), principal); err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Logged out successfully", nil)
}

func registerInput(req dto.UserRegisterRequest) service.RegisterInput {
	return service.RegisterInput{Name: req.Name, Email: req.Email, Password: req.Password}
}

func authResponse(message string, res *service.AuthResult) dto.AuthResponse {
	return dto.AuthResponse{
		Message:   message,
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
		User:      res.User.Public(),
		NewDevice: res.NewDevice,
	}
}
