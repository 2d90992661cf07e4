// Package httputil provides JSON request and response helpers for the HTTP API.
package httputil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/R3E-Network/voting_client/internal/errors"
)

// MaxBodyBytes bounds request bodies read by DecodeJSON.
const MaxBodyBytes = 1 << 20

// ErrorResponse is the body written for every failed request.
type ErrorResponse struct {
	Error *errors.ServiceError `json:"error"`
	// Fields carries per-field validation messages, when any.
	Fields map[string]string `json:"fields,omitempty"`
}

// WriteJSON writes data as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes err as an ErrorResponse. Errors that are not a
// *errors.ServiceError are reported as 500 without their text.
func WriteError(w http.ResponseWriter, err error) {
	WriteFieldErrors(w, err, nil)
}

// WriteFieldErrors writes err along with per-field messages.
func WriteFieldErrors(w http.ResponseWriter, err error, fields map[string]string) {
	se := errors.GetServiceError(err)
	if se == nil {
		se = &errors.ServiceError{
			Code:       "Internal",
			Message:    "internal error",
			HTTPStatus: http.StatusInternalServerError,
			Err:        err,
		}
	}
	status := se.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	WriteJSON(w, status, ErrorResponse{Error: se, Fields: fields})
}

// BadRequest writes a 400 with message.
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, errors.BadRequest(message, nil))
}

// NotFound writes a 404 for an unknown route.
func NotFound(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusNotFound, ErrorResponse{Error: &errors.ServiceError{
		Code:    "NotFound",
		Message: "route not found",
	}})
}

// DecodeJSON reads a JSON body into target, rejecting unknown fields and
// bodies larger than MaxBodyBytes.
func DecodeJSON(r *http.Request, target interface{}) error {
	if r.Body == nil {
		return errors.BadRequest("empty request body", nil)
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		if err == io.EOF {
			return errors.BadRequest("empty request body", err)
		}
		return errors.BadRequest(fmt.Sprintf("invalid JSON body: %v", err), err)
	}
	return nil
}
