package handlers

import (
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/identity-service/pkg/util"
)

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError("Invalid request body", nil)
	}
	return nil
}

// respond writes the success envelope: message plus payload fields.
func respond(c *fiber.Ctx, status int, message string, payload fiber.Map) error {
	body := fiber.Map{"message": message}
	for k, v := range payload {
		body[k] = v
	}
	return c.Status(status).JSON(body)
}
