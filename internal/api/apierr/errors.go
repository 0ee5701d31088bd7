package apierr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcoot/tileclaim/internal/model"
)

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// Common error codes
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeProfileNotFound  = "PROFILE_NOT_FOUND"
	CodeTileNotFound     = "TILE_NOT_FOUND"
	CodeAlreadyClaimed   = "ALREADY_CLAIMED"
	CodeOnCooldown       = "ON_COOLDOWN"
	CodeUsernameTaken    = "USERNAME_TAKEN"
	CodeStoreUnavailable = "STORE_UNAVAILABLE"
	CodeResetFailed      = "RESET_FAILED"
	CodeInternalError    = "INTERNAL_ERROR"
)

// RetryAfterSeconds is advertised on responses for retryable store failures
const RetryAfterSeconds = "1"

// httpError combines an HTTP status code with an APIError
type httpError struct {
	status   int
	apiError APIError
}

// Error implements error interface
func (e *httpError) Error() string {
	return e.apiError.Message
}

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	he := toHTTPError(err)
	w.Header().Set("Content-Type", "application/json")
	if he.status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", RetryAfterSeconds)
	}
	w.WriteHeader(he.status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: he.apiError})
}

// Status returns the HTTP status WriteError would use for err
func Status(err error) int {
	return toHTTPError(err).status
}

// toHTTPError converts an error to an httpError
func toHTTPError(err error) *httpError {
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	// A failed reset carries the store cause; report the reset first
	var resetErr *model.ResetError
	if errors.As(err, &resetErr) {
		return &httpError{http.StatusInternalServerError, APIError{CodeResetFailed, resetErr.Error()}}
	}

	switch {
	case errors.Is(err, model.ErrInvalidRequest):
		return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, err.Error()}}
	case errors.Is(err, model.ErrUnauthorized):
		return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, "Invalid or expired token"}}
	case errors.Is(err, model.ErrProfileNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeProfileNotFound, "Profile not found"}}
	case errors.Is(err, model.ErrTileNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeTileNotFound, "Tile not found"}}
	case errors.Is(err, model.ErrAlreadyClaimed):
		return &httpError{http.StatusConflict, APIError{CodeAlreadyClaimed, "Tile is already claimed"}}
	case errors.Is(err, model.ErrOnCooldown):
		return &httpError{http.StatusConflict, APIError{CodeOnCooldown, "You are on cooldown"}}
	case errors.Is(err, model.ErrUsernameTaken):
		return &httpError{http.StatusConflict, APIError{CodeUsernameTaken, "Username is already taken"}}
	case errors.Is(err, model.ErrStoreUnavailable):
		return &httpError{http.StatusServiceUnavailable, APIError{CodeStoreUnavailable, "Store is temporarily unavailable, try again"}}

	default:
		return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, message}}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError() error {
	return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, "Authentication required"}}
}

// NewForbiddenError creates a forbidden error
func NewForbiddenError() error {
	return &httpError{http.StatusForbidden, APIError{CodeForbidden, "Admin token required"}}
}

// NewInternalError creates an internal server error
func NewInternalError() error {
	return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
}
