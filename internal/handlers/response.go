package handlers

import (
	"errors"

	"catalog/internal/models"
	"catalog/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const internalErrorMessage = "Internal server error"

func respond(c *fiber.Ctx, status int, data any, msg string) error {
	return c.Status(status).JSON(models.Response{
		Success: true,
		Data:    data,
		Message: msg,
	})
}

func fail(c *fiber.Ctx, status int, msg string, errs ...string) error {
	return c.Status(status).JSON(models.Response{
		Success: false,
		Message: msg,
		Errors:  errs,
	})
}

// writeError maps service errors onto HTTP statuses. Unexpected errors are
// logged in full and answered with a generic message.
func writeError(c *fiber.Ctx, log *zap.Logger, err error) error {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		return fail(c, fiber.StatusBadRequest, "Validation failed", verr.Errors...)
	case errors.Is(err, services.ErrProductNotFound):
		return fail(c, fiber.StatusNotFound, "Product not found")
	case errors.Is(err, services.ErrUserAlreadyExists):
		return fail(c, fiber.StatusConflict, "Username or Email already exists")
	case errors.Is(err, services.ErrProductConflict):
		return fail(c, fiber.StatusConflict, "Product was modified by another user. Please refresh and try again.")
	case errors.Is(err, services.ErrInvalidCredentials):
		return fail(c, fiber.StatusUnauthorized, "Invalid username or password")
	}

	log.Error("request failed",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Any("request_id", c.Locals("requestid")),
		zap.Error(err))
	return fail(c, fiber.StatusInternalServerError, internalErrorMessage)
}

// ErrorHandler is the Fiber error handler. It answers errors that escaped
// the handlers, including recovered panics and unmatched routes, with the
// response envelope.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return fail(c, fe.Code, fe.Message)
		}
		return writeError(c, log, err)
	}
}
