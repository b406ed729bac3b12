package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrConfig         ErrorType = "CONFIG_ERROR"
	ErrAuthFailed     ErrorType = "AUTH_FAILED"
	ErrSetupRequired  ErrorType = "SETUP_REQUIRED"
	ErrChainRevert    ErrorType = "CHAIN_REVERT"
	ErrUpstream       ErrorType = "UPSTREAM_ERROR"
	ErrBusy           ErrorType = "BUSY"
	ErrInvalidRequest ErrorType = "INVALID_REQUEST"
	ErrNotFound       ErrorType = "NOT_FOUND"
	ErrInternal       ErrorType = "INTERNAL_ERROR"
)

// AppError is the standard error struct for the application. Message is
// always safe to show to the dashboard user.
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

func NewConfig(msg string) *AppError {
	return New(ErrConfig, msg, nil)
}

func NewSetupRequired(msg string) *AppError {
	return New(ErrSetupRequired, msg, nil)
}

func NewInvalidRequest(msg string) *AppError {
	return New(ErrInvalidRequest, msg, nil)
}

func NewBusy(action string) *AppError {
	return New(ErrBusy, fmt.Sprintf("%s already in progress", action), nil)
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

// Is reports whether err carries an AppError of the given type.
func Is(err error, t ErrorType) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == t
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrInvalidRequest:
		return http.StatusBadRequest
	case ErrAuthFailed:
		return http.StatusForbidden
	case ErrSetupRequired:
		return http.StatusPreconditionFailed
	case ErrChainRevert:
		return http.StatusUnprocessableEntity
	case ErrBusy:
		return http.StatusConflict
	case ErrConfig:
		return http.StatusServiceUnavailable
	case ErrNotFound:
		return http.StatusNotFound
	case ErrUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrConfig:
		return "Fix the service configuration and restart."
	case ErrAuthFailed:
		return "Connect with the wallet that created the smart account."
	case ErrSetupRequired:
		return "Create the smart account and issue a session key first."
	case ErrChainRevert:
		return "Adjust the amount, recipient or vault limits and retry."
	case ErrUpstream:
		return "Retry the request."
	case ErrBusy:
		return "Wait for the pending action to finish."
	default:
		return ""
	}
}
