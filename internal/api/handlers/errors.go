package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/conversa/conversa-backend/internal/errdefs"
)

// respondError maps the error taxonomy to an HTTP status.
func respondError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errdefs.IsValidation(err):
		status = fiber.StatusBadRequest
	case errdefs.IsNotFound(err):
		status = fiber.StatusNotFound
	case errdefs.IsTimeout(err):
		status = fiber.StatusGatewayTimeout
	case errdefs.IsProvider(err):
		status = fiber.StatusBadGateway
	}

	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}
