package common

import (
	"errors"
	"net/http"
)

// Machine-readable error codes for the ledger engine. These are stable
// identifiers carried on API responses and matched on by callers; the HTTP
// status is derived from them, never the other way around.
const (
	CodeInvalidAmount        = "invalid_amount"
	CodeInsufficientFunds    = "insufficient_funds"
	CodeAlreadyLinked        = "already_linked"
	CodeAlreadyReversed      = "already_reversed"
	CodeAlreadyTerminal      = "already_terminal"
	CodeStateConflict        = "state_conflict"
	CodeProcessorUnavailable = "processor_unavailable"
	CodeProcessorRejected    = "processor_rejected"
	CodeNotFound             = "not_found"
)

// Common error types
var (
	ErrNotFound       = errors.New("resource not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")
	ErrConflict       = errors.New("resource conflict")
)

// AppError represents an application error with HTTP status code
type AppError struct {
	Code      int    `json:"code"`
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message"`
	Err       error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap exposes the wrapped cause to errors.Is/As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HasCode reports whether err is an AppError carrying the given error code.
func HasCode(err error, errorCode string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.ErrorCode == errorCode
	}
	return false
}

// NewAppError creates a new AppError
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error constructors
func NewNotFoundError(message string, err error) *AppError {
	return &AppError{
		Code:      http.StatusNotFound,
		ErrorCode: CodeNotFound,
		Message:   message,
		Err:       err,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    http.StatusUnauthorized,
		Message: message,
		Err:     ErrUnauthorized,
	}
}

func NewBadRequestError(message string, err error) *AppError {
	return &AppError{
		Code:    http.StatusBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Code:    http.StatusInternalServerError,
		Message: message,
		Err:     err,
	}
}

func NewConflictError(message string) *AppError {
	return &AppError{
		Code:    http.StatusConflict,
		Message: message,
		Err:     ErrConflict,
	}
}

func NewServiceUnavailableError(message string) *AppError {
	return &AppError{
		Code:    http.StatusServiceUnavailable,
		Message: message,
	}
}

// Ledger error constructors. Each carries its taxonomy code.

func NewInvalidAmountError(message string) *AppError {
	return &AppError{
		Code:      http.StatusBadRequest,
		ErrorCode: CodeInvalidAmount,
		Message:   message,
	}
}

func NewInsufficientFundsError(message string) *AppError {
	return &AppError{
		Code:      http.StatusUnprocessableEntity,
		ErrorCode: CodeInsufficientFunds,
		Message:   message,
	}
}

func NewAlreadyLinkedError(message string) *AppError {
	return &AppError{
		Code:      http.StatusConflict,
		ErrorCode: CodeAlreadyLinked,
		Message:   message,
	}
}

func NewAlreadyReversedError(message string) *AppError {
	return &AppError{
		Code:      http.StatusConflict,
		ErrorCode: CodeAlreadyReversed,
		Message:   message,
	}
}

func NewAlreadyTerminalError(message string) *AppError {
	return &AppError{
		Code:      http.StatusConflict,
		ErrorCode: CodeAlreadyTerminal,
		Message:   message,
	}
}

func NewStateConflictError(message string) *AppError {
	return &AppError{
		Code:      http.StatusConflict,
		ErrorCode: CodeStateConflict,
		Message:   message,
	}
}

// NewProcessorUnavailableError marks an external call whose outcome is
// unknown (timeout, network failure, open breaker). Callers must not treat
// it as a definite failure.
func NewProcessorUnavailableError(message string, err error) *AppError {
	return &AppError{
		Code:      http.StatusBadGateway,
		ErrorCode: CodeProcessorUnavailable,
		Message:   message,
		Err:       err,
	}
}

// NewProcessorRejectedError marks a definite synchronous rejection by the
// payment processor.
func NewProcessorRejectedError(message string, err error) *AppError {
	return &AppError{
		Code:      http.StatusUnprocessableEntity,
		ErrorCode: CodeProcessorRejected,
		Message:   message,
		Err:       err,
	}
}
