package handlers

import (
	"catalog/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// AuthHandler handles HTTP requests for authentication.
type AuthHandler struct {
	authService *services.AuthService
	log         *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *services.AuthService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		log:         log,
	}
}

// RegisterRoutes registers the authentication routes with the Fiber app.
func (h *AuthHandler) RegisterRoutes(router fiber.Router) {
	authRoutes := router.Group("/auth")
	authRoutes.Post("/register", h.HandleRegister)
	authRoutes.Post("/login", h.HandleLogin)
}

// HandleRegister handles new user registration.
func (h *AuthHandler) HandleRegister(c *fiber.Ctx) error {
	var input services.RegisterInput
	if err := c.BodyParser(&input); err != nil {
		h.log.Debug("invalid register body", zap.Error(err))
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}

	user, err := h.authService.Register(c.UserContext(), input)
	if err != nil {
		return writeError(c, h.log, err)
	}

	return respond(c, fiber.StatusCreated, user, "User registered successfully")
}

// HandleLogin handles user login and returns a JWT token.
func (h *AuthHandler) HandleLogin(c *fiber.Ctx) error {
	var input services.LoginInput
	if err := c.BodyParser(&input); err != nil {
		h.log.Debug("invalid login body", zap.Error(err))
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}

	token, err := h.authService.Login(c.UserContext(), input)
	if err != nil {
		return writeError(c, h.log, err)
	}

	return respond(c, fiber.StatusOK, token, "Login successful")
}
