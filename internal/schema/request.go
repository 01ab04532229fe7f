// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"sort"

	"github.com/sapcc/altai-api/internal/apierr"
)

// ParseRequestObject validates and converts a request body that has already
// been decoded into a JSON object. Every element from the required subset must
// be present. Elements that are in neither the required nor the allowed subset
// are rejected. Either subset may be nil.
func ParseRequestObject(data map[string]any, required, allowed *Schema) (map[string]any, error) {
	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := make(map[string]any, len(data))
	for _, key := range keys {
		var (
			value any
			err   error
		)
		switch {
		case required.Has(key):
			value, err = required.FromRequest(key, data[key])
		case allowed.Has(key):
			value, err = allowed.FromRequest(key, data[key])
		default:
			return nil, apierr.UnknownElement(key)
		}
		if err != nil {
			return nil, err
		}
		result[key] = value
	}

	if required != nil {
		for _, name := range required.Names() {
			if _, ok := data[name]; !ok {
				return nil, apierr.MissingElement(name)
			}
		}
	}
	return result, nil
}

// DecodeRequestObject reads a JSON object from the request body and passes it
// through ParseRequestObject.
func DecodeRequestObject(r *http.Request, required, allowed *Schema) (map[string]any, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	return decodeRequestBytes(body, required, allowed)
}

// DecodeOptionalRequestObject is like DecodeRequestObject, but an empty
// request body is treated like an empty JSON object. Whether the body is
// empty is decided by reading it, so this also works for chunked requests
// where the Content-Length is not known in advance.
func DecodeOptionalRequestObject(r *http.Request, required, allowed *Schema) (map[string]any, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return ParseRequestObject(map[string]any{}, required, allowed)
	}
	return decodeRequestBytes(body, required, allowed)
}

func decodeRequestBytes(body []byte, required, allowed *Schema) (map[string]any, error) {
	var data map[string]any
	err := json.Unmarshal(body, &data)
	if err != nil || data == nil {
		return nil, apierr.InvalidRequest("request body must be a JSON object")
	}
	return ParseRequestObject(data, required, allowed)
}
