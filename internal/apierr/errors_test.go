// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/sapcc/go-bits/assert"
)

func respondWith(err error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !Respond(w, err) {
			w.WriteHeader(http.StatusNoContent)
		}
	})
}

func TestRespond(t *testing.T) {
	testCases := []struct {
		Error        error
		ExpectStatus int
		ExpectBody   assert.HTTPResponseBody
	}{
		{
			Error:        nil,
			ExpectStatus: http.StatusNoContent,
			ExpectBody:   nil,
		},
		{
			Error:        InvalidArgumentValue("limit", "uint", "-1", `"-1" is not a non-negative integer`),
			ExpectStatus: http.StatusBadRequest,
			ExpectBody: assert.JSONObject{
				"error-type":     "InvalidArgumentValue",
				"message":        `Invalid value for argument limit: "-1" is not a non-negative integer`,
				"argument-name":  "limit",
				"argument-value": "-1",
				"expected-type":  "uint",
				"reason":         `"-1" is not a non-negative integer`,
			},
		},
		{
			Error:        UnknownArgument("colour:eq"),
			ExpectStatus: http.StatusBadRequest,
			ExpectBody: assert.JSONObject{
				"error-type":    "UnknownArgument",
				"message":       "Unknown request argument: colour:eq",
				"argument-name": "colour:eq",
			},
		},
		{
			Error:        InvalidElementValue("enabled", "boolean", "yes", ""),
			ExpectStatus: http.StatusBadRequest,
			ExpectBody: assert.JSONObject{
				"error-type":    "InvalidElementValue",
				"message":       "Invalid value for element enabled",
				"element-name":  "enabled",
				"element-value": "yes",
				"expected-type": "boolean",
			},
		},
		{
			// wrapped errors are still recognized
			Error:        fmt.Errorf("while doing something: %w", NotFound("instance %s", "i-1")),
			ExpectStatus: http.StatusNotFound,
			ExpectBody: assert.JSONObject{
				"error-type": "NotFound",
				"message":    "instance i-1 not found",
			},
		},
		{
			Error:        Conflict("SSH key %s already exists", "laptop"),
			ExpectStatus: http.StatusConflict,
			ExpectBody: assert.JSONObject{
				"error-type": "Conflict",
				"message":    "SSH key laptop already exists",
			},
		},
		{
			// other errors do not leak their message
			Error:        errors.New("connection refused"),
			ExpectStatus: http.StatusInternalServerError,
			ExpectBody: assert.JSONObject{
				"error-type": "InternalServerError",
				"message":    "Internal server error",
			},
		},
	}

	for _, tc := range testCases {
		assert.HTTPRequest{
			Method:       "GET",
			Path:         "/",
			ExpectStatus: tc.ExpectStatus,
			ExpectBody:   tc.ExpectBody,
		}.Check(t, respondWith(tc.Error))
	}
}

func TestIsType(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Forbidden("nope"))
	assert.DeepEqual(t, "IsType(Forbidden)", IsType(err, ErrForbidden), true)
	assert.DeepEqual(t, "IsType(NotFound)", IsType(err, ErrNotFound), false)
	assert.DeepEqual(t, "IsType(plain error)", IsType(errors.New("nope"), ErrForbidden), false)
	assert.DeepEqual(t, "status code", Unauthorized("no token").StatusCode(), http.StatusUnauthorized)
}
