package serverutils

import (
	"errors"
	"fmt"
	"strings"

	"visual-search-be/internal/pkg/logger"
	"visual-search-be/pkg/apperrors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

type Response[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
}

func SuccessResponse[T any](message string, data T) Response[T] {
	return Response[T]{Success: true, Message: message, Data: data}
}

var validate = validator.New()

// ValidateRequest runs struct tag validation and reports failures as input
// errors listing every offending field.
func ValidateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.Input(fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err))
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on '%s'", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return apperrors.Input(fmt.Errorf("%w: %s", apperrors.ErrInvalidInput, strings.Join(msgs, "; ")))
}

// StatusFor maps the error taxonomy onto HTTP statuses.
func StatusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, apperrors.ErrNotFound):
		return fiber.StatusNotFound
	case apperrors.IsInput(err):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorHandler renders every error returned by a handler as
// {success:false, message}. Internal failures are logged and not echoed.
func ErrorHandler(log logger.ILogger) fiber.ErrorHandler {
	return func(ctx *fiber.Ctx, err error) error {
		status := StatusFor(err)
		message := err.Error()
		if status >= fiber.StatusInternalServerError {
			log.Error("HTTP", "Request failed", map[string]interface{}{
				"method": ctx.Method(),
				"path":   ctx.Path(),
				"error":  err.Error(),
			})
			message = "Internal server error"
		}
		return ctx.Status(status).JSON(Response[any]{Success: false, Message: message})
	}
}
