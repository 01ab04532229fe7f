// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

// Package apierr contains the closed set of errors that the Altai API reports
// to its clients, and the logic for rendering them into HTTP responses.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sapcc/go-bits/errext"
	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/respondwith"
)

// ErrorType is the closed set of error types that can appear in type Error.
type ErrorType string

// Possible values for ErrorType.
const (
	ErrInvalidArgumentValue ErrorType = "InvalidArgumentValue"
	ErrUnknownArgument      ErrorType = "UnknownArgument"
	ErrInvalidRequest       ErrorType = "InvalidRequest"
	ErrInvalidElementValue  ErrorType = "InvalidElementValue"
	ErrUnknownElement       ErrorType = "UnknownElement"
	ErrMissingElement       ErrorType = "MissingElement"
	ErrNotFound             ErrorType = "NotFound"
	ErrForbidden            ErrorType = "Forbidden"
	ErrUnauthorized         ErrorType = "Unauthorized"
	ErrConflict             ErrorType = "Conflict"
)

var errorStatusCodes = map[ErrorType]int{
	ErrInvalidArgumentValue: http.StatusBadRequest,
	ErrUnknownArgument:      http.StatusBadRequest,
	ErrInvalidRequest:       http.StatusBadRequest,
	ErrInvalidElementValue:  http.StatusBadRequest,
	ErrUnknownElement:       http.StatusBadRequest,
	ErrMissingElement:       http.StatusBadRequest,
	ErrNotFound:             http.StatusNotFound,
	ErrForbidden:            http.StatusForbidden,
	ErrUnauthorized:         http.StatusUnauthorized,
	ErrConflict:             http.StatusConflict,
}

// Error is the error type reported to API clients. Apart from Type and
// Message, all fields are optional and only filled for the error types where
// they make sense.
type Error struct {
	Type          ErrorType
	Message       string
	ElementName   string
	ElementValue  any
	ArgumentName  string
	ArgumentValue string
	ExpectedType  string
	Reason        string
}

// InvalidArgumentValue is returned when a query string argument cannot be
// converted into the type that its element expects.
func InvalidArgumentValue(name, typename, value, reason string) *Error {
	msg := fmt.Sprintf("Invalid value for argument %s", name)
	if reason != "" {
		msg += ": " + reason
	}
	return &Error{
		Type:          ErrInvalidArgumentValue,
		Message:       msg,
		ArgumentName:  name,
		ArgumentValue: value,
		ExpectedType:  typename,
		Reason:        reason,
	}
}

// UnknownArgument is returned when the query string contains an argument that
// the endpoint does not understand.
func UnknownArgument(name string) *Error {
	return &Error{
		Type:         ErrUnknownArgument,
		Message:      "Unknown request argument: " + name,
		ArgumentName: name,
	}
}

// InvalidRequest is returned for structural problems with a request.
func InvalidRequest(reason string, args ...any) *Error {
	if len(args) > 0 {
		reason = fmt.Sprintf(reason, args...)
	}
	return &Error{
		Type:    ErrInvalidRequest,
		Message: "Invalid request: " + reason,
		Reason:  reason,
	}
}

// InvalidElementValue is returned when a value in a request body cannot be
// converted into the type that its element expects.
func InvalidElementValue(name, typename string, value any, reason string) *Error {
	msg := fmt.Sprintf("Invalid value for element %s", name)
	if reason != "" {
		msg += ": " + reason
	}
	return &Error{
		Type:         ErrInvalidElementValue,
		Message:      msg,
		ElementName:  name,
		ElementValue: value,
		ExpectedType: typename,
		Reason:       reason,
	}
}

// UnknownElement is returned when a request body contains an element that is
// not allowed for this request.
func UnknownElement(name string) *Error {
	return &Error{
		Type:        ErrUnknownElement,
		Message:     "Unknown resource element: " + name,
		ElementName: name,
	}
}

// MissingElement is returned when a request body lacks a required element.
func MissingElement(name string) *Error {
	return &Error{
		Type:        ErrMissingElement,
		Message:     "Required element is missing: " + name,
		ElementName: name,
	}
}

// NotFound is returned when the requested resource does not exist, or when
// the user is not allowed to know that it exists.
func NotFound(what string, args ...any) *Error {
	if len(args) > 0 {
		what = fmt.Sprintf(what, args...)
	}
	return &Error{Type: ErrNotFound, Message: what + " not found"}
}

// Forbidden is returned when the user is authenticated, but lacks permission.
func Forbidden(reason string) *Error {
	return &Error{Type: ErrForbidden, Message: "Forbidden", Reason: reason}
}

// Unauthorized is returned when the request could not be authenticated.
func Unauthorized(reason string) *Error {
	return &Error{Type: ErrUnauthorized, Message: "Unauthorized", Reason: reason}
}

// Conflict is returned when the request contradicts the current state of the
// resource.
func Conflict(msg string, args ...any) *Error {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	return &Error{Type: ErrConflict, Message: msg}
}

// Error implements the builtin/error interface.
func (e *Error) Error() string {
	return e.Message
}

// StatusCode returns the HTTP status code that goes with this error.
func (e *Error) StatusCode() int {
	code, ok := errorStatusCodes[e.Type]
	if !ok {
		return http.StatusInternalServerError
	}
	return code
}

// MarshalJSON implements the json.Marshaler interface.
func (e *Error) MarshalJSON() ([]byte, error) {
	data := map[string]any{
		"error-type": string(e.Type),
		"message":    e.Message,
	}
	if e.ElementName != "" {
		data["element-name"] = e.ElementName
		if e.ElementValue != nil {
			data["element-value"] = e.ElementValue
		}
	}
	if e.ArgumentName != "" {
		data["argument-name"] = e.ArgumentName
		if e.Type == ErrInvalidArgumentValue {
			data["argument-value"] = e.ArgumentValue
		}
	}
	if e.ExpectedType != "" {
		data["expected-type"] = e.ExpectedType
	}
	if e.Reason != "" {
		data["reason"] = e.Reason
	}
	return json.Marshal(data)
}

// WriteTo reports this error as a JSON response.
func (e *Error) WriteTo(w http.ResponseWriter) {
	respondwith.JSON(w, e.StatusCode(), e)
}

// Respond writes an error response for the given error and returns true, or
// returns false if the error is nil. Errors of type *Error are reported with
// their respective status code. All other errors are logged and reported as
// 500 Internal Server Error without revealing their message.
func Respond(w http.ResponseWriter, err error) bool {
	if err == nil {
		return false
	}
	if apiErr, ok := errext.As[*Error](err); ok {
		apiErr.WriteTo(w)
		return true
	}
	logg.Error("unexpected error while handling API request: %s", err.Error())
	respondwith.JSON(w, http.StatusInternalServerError, map[string]any{
		"error-type": "InternalServerError",
		"message":    "Internal server error",
	})
	return true
}

// IsType checks whether the given error is an *Error of the given type.
func IsType(err error, t ErrorType) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Type == t
}
