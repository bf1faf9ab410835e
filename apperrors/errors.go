package apperrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error represents an application error with an HTTP status mapping.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches two application errors by message so that wrapped copies of the
// predeclared sentinels compare equal under errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Message == t.Message
}

// JSON returns the error as a JSON string
func (e *Error) JSON() string {
	b, _ := json.Marshal(e)
	return string(b)
}

// New creates a new Error
func New(code int, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Wrap returns a copy of sentinel carrying err as its cause.
func Wrap(sentinel *Error, err error) *Error {
	return &Error{Code: sentinel.Code, Message: sentinel.Message, Err: err}
}

// Engine error taxonomy. Controllers translate these to HTTP responses and
// the webhook pipeline uses them to decide between "ignored" and "error"
// callback-log outcomes.
var (
	ErrValidation         = New(http.StatusBadRequest, "Validation error", nil)
	ErrConflict           = New(http.StatusConflict, "Conflicting operation in progress", nil)
	ErrInvalidSignature   = New(http.StatusBadRequest, "Invalid gateway signature", nil)
	ErrUnknownTransaction = New(http.StatusNotFound, "Unknown payment transaction", nil)
	ErrStateConflict      = New(http.StatusConflict, "Conflicting terminal state reported", nil)
	ErrGatewayTimeout     = New(http.StatusGatewayTimeout, "Payment gateway timed out", nil)
	ErrInsufficientStock  = New(http.StatusConflict, "Insufficient stock", nil)
	ErrInvalidTransition  = New(http.StatusConflict, "Invalid status transition", nil)
	ErrNotFound           = New(http.StatusNotFound, "Not found", nil)
	ErrUnauthorized       = New(http.StatusUnauthorized, "Unauthorized", nil)
	ErrInternalServer     = New(http.StatusInternalServerError, "Internal server error", nil)
)

// HandleError writes err as a JSON response, mapping unknown errors to 500.
func HandleError(c *gin.Context, err error) {
	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = Wrap(ErrInternalServer, err)
	}
	c.JSON(appErr.Code, gin.H{"error": appErr.Message})
}
