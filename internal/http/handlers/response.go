package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/parkpulse/backend/internal/apperrors"
	"github.com/parkpulse/backend/internal/http/dto"
)

// writeError maps the error taxonomy onto HTTP statuses and the
// {ok:false, error} wire shape.
func writeError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	message := "internal error"

	if appErr, ok := apperrors.As(err); ok {
		message = appErr.Message
		switch appErr.Code {
		case apperrors.CodeAuthentication:
			status = fiber.StatusUnauthorized
		case apperrors.CodeValidation:
			status = fiber.StatusBadRequest
		case apperrors.CodeNotFound:
			status = fiber.StatusNotFound
		case apperrors.CodeConflict:
			status = fiber.StatusConflict
		case apperrors.CodeUpstream:
			status = fiber.StatusBadGateway
		}
	}

	return c.Status(status).JSON(dto.ErrorResponse{OK: false, Error: message})
}
