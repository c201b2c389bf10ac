package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is an error with a stable machine-readable code and the HTTP status it maps to.
// Internal is logged but never rendered.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Internal != nil {
		return fmt.Sprintf("%s (%s): %v", e.Message, e.Code, e.Internal)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// Is compares by code, so copies made by WithInternal still match their sentinel.
func (e *AppError) Is(target error) bool {
	other, ok := target.(*AppError)
	return ok && e != nil && other != nil && e.Code == other.Code
}

// WithInternal returns a copy carrying err as the internal cause.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}
	cpy := *e
	cpy.Internal = err
	return &cpy
}

// WithMessage returns a copy with a more specific client-facing message.
func (e *AppError) WithMessage(format string, args ...any) *AppError {
	if e == nil {
		return nil
	}
	cpy := *e
	cpy.Message = fmt.Sprintf(format, args...)
	return &cpy
}

var (
	ErrUnauthorized = New("auth.unauthorized", "Authentication required", http.StatusUnauthorized)
	ErrTokenInvalid = New("auth.token_invalid", "Access token is invalid or expired", http.StatusUnauthorized)
	ErrForbidden    = New("auth.forbidden", "Permission denied", http.StatusForbidden)

	ErrConversationNotFound = New("conversation.not_found", "Conversation not found", http.StatusNotFound)
	ErrConversationClosed   = New("conversation.closed", "Conversation is closed", http.StatusConflict)
	ErrTicketNotFound       = New("ticket.not_found", "No escalation ticket exists for this conversation", http.StatusNotFound)

	ErrBadRequest    = New("request.invalid", "Invalid request", http.StatusBadRequest)
	ErrRouteNotFound = New("request.route_not_found", "Route not found", http.StatusNotFound)
	ErrRateLimit     = New("request.rate_limited", "Too many requests, please slow down", http.StatusTooManyRequests)

	ErrInternalServer = New("server.internal", "Internal server error", http.StatusInternalServerError)
)

// New builds an application error.
func New(code, message string, statusCode int) *AppError {
	return &AppError{Code: code, Message: message, StatusCode: statusCode}
}

// NewBadRequest is ErrBadRequest with a specific message.
func NewBadRequest(message string) *AppError {
	return ErrBadRequest.WithMessage("%s", message)
}

// FromError returns the AppError in err's chain, or ErrInternalServer wrapping err.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return ErrInternalServer.WithInternal(err)
}
