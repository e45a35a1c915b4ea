// services/errors.go
package services

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Error codes surfaced to callers. Stable — clients branch on these.
const (
	CodeNotFound               = "NOT_FOUND"
	CodeForbidden              = "FORBIDDEN"
	CodeInvalidAmount          = "INVALID_AMOUNT"
	CodeInsufficientBudget     = "INSUFFICIENT_BUDGET"
	CodeNoContributors         = "NO_CONTRIBUTORS"
	CodePoolLocked             = "POOL_LOCKED"
	CodeInvalidStateTransition = "INVALID_STATE_TRANSITION"
)

// ServiceError is an expected, user-meaningful failure: a stable code
// plus a human-readable message. Anything else reaching the handler is
// treated as unexpected and returned opaque.
type ServiceError struct {
	Code       string `json:"code"`
	Message    string `json:"error"`
	HTTPStatus int    `json:"-"`
}

func (e *ServiceError) Error() string { return e.Message }

func ErrNotFound(msg string) *ServiceError {
	return &ServiceError{Code: CodeNotFound, Message: msg, HTTPStatus: fiber.StatusNotFound}
}

func ErrForbidden(msg string) *ServiceError {
	return &ServiceError{Code: CodeForbidden, Message: msg, HTTPStatus: fiber.StatusForbidden}
}

func ErrInvalidAmount(msg string) *ServiceError {
	return &ServiceError{Code: CodeInvalidAmount, Message: msg, HTTPStatus: fiber.StatusBadRequest}
}

func ErrInsufficientBudget(msg string) *ServiceError {
	return &ServiceError{Code: CodeInsufficientBudget, Message: msg, HTTPStatus: fiber.StatusConflict}
}

func ErrNoContributors(msg string) *ServiceError {
	return &ServiceError{Code: CodeNoContributors, Message: msg, HTTPStatus: fiber.StatusUnprocessableEntity}
}

func ErrPoolLocked(msg string) *ServiceError {
	return &ServiceError{Code: CodePoolLocked, Message: msg, HTTPStatus: fiber.StatusConflict}
}

func ErrInvalidTransition(msg string) *ServiceError {
	return &ServiceError{Code: CodeInvalidStateTransition, Message: msg, HTTPStatus: fiber.StatusConflict}
}

// respondError maps a service error onto the HTTP response. Unexpected
// errors are logged with a correlation ID and never leak internals.
func respondError(c *fiber.Ctx, err error) error {
	var se *ServiceError
	if errors.As(err, &se) {
		return c.Status(se.HTTPStatus).JSON(fiber.Map{"error": se.Message, "code": se.Code})
	}

	reqID := c.Get("X-Request-ID")
	if reqID == "" {
		reqID = uuid.NewString()
	}
	log.Printf("❌ [req=%s] unexpected error on %s: %v", reqID, c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":      "internal error",
		"code":       "INTERNAL",
		"request_id": reqID,
	})
}
