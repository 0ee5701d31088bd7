package handler

import (
	"encoding/json"
	"net/http"

	"github.com/mcoot/tileclaim/internal/api/apierr"
)

// Re-export from apierr for convenience
type APIError = apierr.APIError
type ErrorResponse = apierr.ErrorResponse

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	apierr.WriteError(w, err)
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return apierr.NewInvalidRequestError(message)
}

// maxBodyBytes bounds every JSON request body
const maxBodyBytes = 64 << 10

// decodeJSON reads a bounded JSON body into v, rejecting unknown fields
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return NewInvalidRequestError("invalid request body")
	}
	return nil
}
