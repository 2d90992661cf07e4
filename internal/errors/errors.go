// Package errors defines the client's error taxonomy.
//
// Every failure a caller can observe is a *ServiceError carrying a stable Code,
// the Category it belongs to and the HTTP status used by the API surface.
// Validation and auth errors are produced before any network call; remote and
// decode errors wrap the underlying cause.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Category groups codes by where the failure originated.
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryAuth       Category = "auth"
	CategoryRemote     Category = "remote"
	CategoryDecode     Category = "decode"
	CategoryConflict   Category = "conflict"
)

// Code identifies a specific failure.
type Code string

const (
	CodeInvalidLabels      Code = "InvalidLabels"
	CodePastCloseTime      Code = "PastCloseTime"
	CodeInvalidAddressList Code = "InvalidAddressList"
	CodeMalformedAddress   Code = "MalformedAddress"
	CodeChoiceOutOfRange   Code = "ChoiceOutOfRange"
	CodeNoChoiceSelected   Code = "NoChoiceSelected"
	CodeSessionClosed      Code = "SessionClosed"
	CodeInvalidOperation   Code = "InvalidOperation"

	CodeNoWalletConnected Code = "NoWalletConnected"

	CodeFetchFailed        Code = "FetchFailed"
	CodeSessionNotFound    Code = "SessionNotFound"
	CodeSubmissionRejected Code = "SubmissionRejected"
	CodeTransportFailure   Code = "TransportFailure"

	CodeNumericOverflow  Code = "NumericOverflow"
	CodeMalformedAccount Code = "MalformedAccount"

	CodeOperationInFlight Code = "OperationInFlight"
	CodeRateLimited       Code = "RateLimited"
	CodeBadRequest        Code = "BadRequest"
)

// ServiceError is the normalized error type.
type ServiceError struct {
	Code       Code                   `json:"code"`
	Category   Category               `json:"category"`
	Message    string                 `json:"message"`
	Field      string                 `json:"field,omitempty"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Is matches another *ServiceError by code.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetails attaches a key/value detail and returns e.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithField scopes the error to an input field and returns e.
func (e *ServiceError) WithField(field string) *ServiceError {
	e.Field = field
	return e
}

func newError(code Code, category Category, status int, message string, cause error) *ServiceError {
	return &ServiceError{
		Code:       code,
		Category:   category,
		Message:    message,
		HTTPStatus: status,
		Err:        cause,
	}
}

// =============================================================================
// Validation
// =============================================================================

func InvalidLabels(message string) *ServiceError {
	return newError(CodeInvalidLabels, CategoryValidation, http.StatusUnprocessableEntity, message, nil).WithField("labels")
}

func PastCloseTime(closeTime, now int64) *ServiceError {
	return newError(CodePastCloseTime, CategoryValidation, http.StatusUnprocessableEntity,
		"close time must be in the future", nil).
		WithField("closeTime").
		WithDetails("close_time", closeTime).
		WithDetails("now", now)
}

func InvalidAddressList(message string) *ServiceError {
	return newError(CodeInvalidAddressList, CategoryValidation, http.StatusUnprocessableEntity, message, nil).WithField("allowedVoters")
}

func MalformedAddress(field, token string, cause error) *ServiceError {
	return newError(CodeMalformedAddress, CategoryValidation, http.StatusUnprocessableEntity,
		fmt.Sprintf("%q is not a valid address", token), cause).
		WithField(field).
		WithDetails("token", token)
}

func ChoiceOutOfRange(index, options int) *ServiceError {
	return newError(CodeChoiceOutOfRange, CategoryValidation, http.StatusUnprocessableEntity,
		fmt.Sprintf("choice %d is out of range (session has %d options)", index, options), nil).
		WithField("choiceIndex")
}

func NoChoiceSelected() *ServiceError {
	return newError(CodeNoChoiceSelected, CategoryValidation, http.StatusUnprocessableEntity,
		"please select an option", nil).WithField("choiceIndex")
}

func SessionClosed(address string) *ServiceError {
	return newError(CodeSessionClosed, CategoryValidation, http.StatusUnprocessableEntity,
		"this session is closed", nil).WithDetails("address", address)
}

func InvalidOperation(kind string) *ServiceError {
	return newError(CodeInvalidOperation, CategoryValidation, http.StatusUnprocessableEntity,
		fmt.Sprintf("unknown operation kind %q", kind), nil).WithField("kind")
}

// =============================================================================
// Auth
// =============================================================================

func NoWalletConnected() *ServiceError {
	return newError(CodeNoWalletConnected, CategoryAuth, http.StatusUnauthorized, "wallet not connected", nil)
}

// =============================================================================
// Remote
// =============================================================================

func FetchFailed(cause error) *ServiceError {
	return newError(CodeFetchFailed, CategoryRemote, http.StatusBadGateway, "failed to fetch sessions", cause)
}

func SessionNotFound(address string) *ServiceError {
	return newError(CodeSessionNotFound, CategoryRemote, http.StatusNotFound, "session not found", nil).
		WithDetails("address", address)
}

// SubmissionRejected reports a program-level rejection. message is the
// normalized program error text shown to the user.
func SubmissionRejected(message string, cause error) *ServiceError {
	return newError(CodeSubmissionRejected, CategoryRemote, http.StatusBadGateway, message, cause)
}

func TransportFailure(cause error) *ServiceError {
	msg := "transaction submission failed"
	if cause != nil {
		msg = cause.Error()
	}
	return newError(CodeTransportFailure, CategoryRemote, http.StatusBadGateway, msg, cause)
}

// =============================================================================
// Decode
// =============================================================================

func NumericOverflow(field, value string) *ServiceError {
	return newError(CodeNumericOverflow, CategoryDecode, http.StatusBadGateway,
		fmt.Sprintf("%s value %s exceeds the supported integer range", field, value), nil).
		WithDetails("field", field).
		WithDetails("value", value)
}

func MalformedAccount(address string, cause error) *ServiceError {
	return newError(CodeMalformedAccount, CategoryDecode, http.StatusBadGateway, "malformed session account", cause).
		WithDetails("address", address)
}

// =============================================================================
// Conflict
// =============================================================================

func OperationInFlight(kind string) *ServiceError {
	return newError(CodeOperationInFlight, CategoryConflict, http.StatusConflict,
		fmt.Sprintf("a %s operation is already being submitted", kind), nil)
}

// RateLimited reports a client exceeding the API request rate.
func RateLimited(perSecond float64) *ServiceError {
	return newError(CodeRateLimited, CategoryConflict, http.StatusTooManyRequests,
		"rate limit exceeded", nil).WithDetails("limit_per_second", perSecond)
}

// BadRequest reports a request body or parameter that could not be read.
func BadRequest(message string, cause error) *ServiceError {
	return newError(CodeBadRequest, CategoryValidation, http.StatusBadRequest, message, cause)
}

// =============================================================================
// Helpers
// =============================================================================

// GetServiceError returns the first *ServiceError in err's chain, or nil.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se
	}
	return nil
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	se := GetServiceError(err)
	return se != nil && se.Code == code
}

// IsCategory reports whether err belongs to the given category.
func IsCategory(err error, category Category) bool {
	se := GetServiceError(err)
	return se != nil && se.Category == category
}
