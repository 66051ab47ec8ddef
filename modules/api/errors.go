package api

import (
	"errors"

	domain "github.com/example/roomchat/domain/chat"
	"github.com/example/roomchat/modules/auth"
	"github.com/gofiber/fiber/v2"
)

// statusFor maps an error kind to an HTTP status and an error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrUserExists):
		return fiber.StatusConflict, auth.CodeUserExists
	case errors.Is(err, domain.ErrUnauthorized):
		return fiber.StatusUnauthorized, domain.CodeUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound, domain.CodeNotFound
	case errors.Is(err, domain.ErrForbidden):
		return fiber.StatusForbidden, domain.CodeForbidden
	case errors.Is(err, domain.ErrValidation):
		return fiber.StatusBadRequest, domain.CodeValidation
	case errors.Is(err, domain.ErrRateLimited):
		return fiber.StatusTooManyRequests, domain.CodeRateLimited
	case errors.Is(err, domain.ErrStorageUnavailable):
		return fiber.StatusServiceUnavailable, domain.CodeStorageUnavailable
	default:
		return fiber.StatusInternalServerError, domain.CodeInternal
	}
}

// clientMessage is the text shown to a client for err. Internal failures are
// not described.
func clientMessage(err error) string {
	if _, code := statusFor(err); code == domain.CodeInternal {
		return "Internal Server Error"
	}
	if errors.Is(err, domain.ErrRateLimited) {
		return RateLimitMessage
	}
	if errors.Is(err, domain.ErrStorageUnavailable) {
		return "Service temporarily unavailable, please retry"
	}
	return err.Error()
}

func writeError(c *fiber.Ctx, err error) error {
	status, code := statusFor(err)
	return c.Status(status).JSON(ErrorResponse{
		Error:   code,
		Message: clientMessage(err),
	})
}

// customErrorHandler handles Fiber errors.
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   "server_error",
		Message: message,
	})
}
