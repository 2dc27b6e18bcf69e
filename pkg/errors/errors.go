package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors shared across the store services.
var (
	ErrNotFound        = errors.New("resource not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrConflict        = errors.New("conflict")
	ErrInternal        = errors.New("internal error")
	ErrServiceUnavail  = errors.New("service unavailable")
	ErrNotPurchasable  = errors.New("item is not purchasable")
	ErrGiftRecipient   = errors.New("gift recipient missing")
	ErrSessionExpired  = errors.New("checkout session expired")
	ErrSessionMismatch = errors.New("checkout session mismatch")
	ErrRetryExhausted  = errors.New("retry limit reached")
)

// AppError is a structured application error carrying an HTTP status mapping.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// Unauthorized creates a 401 error.
func Unauthorized(message string) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     ErrUnauthorized,
	}
}

// SignInRequired creates the 401 error shown when the store token is missing
// or rejected by the payment provider.
func SignInRequired() *AppError {
	return &AppError{
		Code:    "SIGN_IN_REQUIRED",
		Message: "your session has expired, please sign in with Steam again",
		Status:  http.StatusUnauthorized,
		Err:     ErrUnauthorized,
	}
}

// Forbidden creates a 403 error.
func Forbidden(message string) *AppError {
	return &AppError{
		Code:    "FORBIDDEN",
		Message: message,
		Status:  http.StatusForbidden,
		Err:     ErrForbidden,
	}
}

// Conflict creates a 409 error.
func Conflict(message string) *AppError {
	return &AppError{
		Code:    "CONFLICT",
		Message: message,
		Status:  http.StatusConflict,
		Err:     ErrConflict,
	}
}

// NotPurchasable creates a 422 error for an item without a linked store product.
func NotPurchasable(itemName string) *AppError {
	return &AppError{
		Code:    "NOT_PURCHASABLE",
		Message: fmt.Sprintf("%q is not linked to a store product and cannot be purchased", itemName),
		Status:  http.StatusUnprocessableEntity,
		Err:     ErrNotPurchasable,
	}
}

// GiftRecipientMissing creates a 422 error for a gift item without a recipient.
func GiftRecipientMissing(itemName string) *AppError {
	return &AppError{
		Code:    "GIFT_RECIPIENT_MISSING",
		Message: fmt.Sprintf("gift item %q has no recipient selected", itemName),
		Status:  http.StatusUnprocessableEntity,
		Err:     ErrGiftRecipient,
	}
}

// SessionExpired creates a 410 error for an expired checkout session.
func SessionExpired(message string) *AppError {
	return &AppError{
		Code:    "SESSION_EXPIRED",
		Message: message,
		Status:  http.StatusGone,
		Err:     ErrSessionExpired,
	}
}

// RetryExhausted creates a 409 error for a step whose retry cap is reached.
func RetryExhausted(itemName string) *AppError {
	return &AppError{
		Code:    "RETRY_EXHAUSTED",
		Message: fmt.Sprintf("%q has reached its retry limit and cannot be retried", itemName),
		Status:  http.StatusConflict,
		Err:     ErrRetryExhausted,
	}
}

// ServiceUnavailable creates a 503 error.
func ServiceUnavailable(message string) *AppError {
	return &AppError{
		Code:    "SERVICE_UNAVAILABLE",
		Message: message,
		Status:  http.StatusServiceUnavailable,
		Err:     ErrServiceUnavail,
	}
}

// Internal creates a 500 error.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrNotPurchasable), errors.Is(err, ErrGiftRecipient):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrSessionExpired):
		return http.StatusGone
	case errors.Is(err, ErrServiceUnavail):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
