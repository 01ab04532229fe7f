// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package collection

import (
	"net/http"

	. "github.com/majewsky/gg/option"
	"github.com/sapcc/go-bits/respondwith"

	"github.com/sapcc/altai-api/internal/apierr"
	"github.com/sapcc/altai-api/internal/schema"
)

// Paginate drops the first `offset` resources and keeps at most `limit` of
// the rest.
func Paginate(resources []Resource, limit, offset Option[int]) []Resource {
	if o, ok := offset.Unpack(); ok {
		if o >= len(resources) {
			return []Resource{}
		}
		resources = resources[o:]
	}
	if l, ok := limit.Unpack(); ok && l < len(resources) {
		resources = resources[:l]
	}
	return resources
}

// MakeResponse applies the filters, sorting and pagination from the request
// to the given resources and wraps the result in the collection envelope.
// The reported size counts all resources that matched the filters,
// regardless of pagination.
func MakeResponse(name string, resources []Resource, parentHref Option[string], req Request) (map[string]any, error) {
	if len(req.Filters) > 0 {
		var err error
		resources, err = ApplyFilters(resources, req.Filters, req.Schema)
		if err != nil {
			return nil, err
		}
	}
	size := len(resources)

	if req.Sortby != nil {
		resources = ApplySortby(req.Sortby, resources)
	}
	resources = Paginate(resources, req.Limit, req.Offset)
	if resources == nil {
		resources = []Resource{}
	}

	info := map[string]any{
		"name": name,
		"size": size,
	}
	if href, ok := parentHref.Unpack(); ok {
		info["parent-href"] = href
	}
	return map[string]any{
		"collection": info,
		name:         resources,
	}, nil
}

// Respond builds the collection envelope with MakeResponse and writes it as a
// 200 response, or writes the appropriate error response.
func Respond(w http.ResponseWriter, name string, resources []Resource, parentHref Option[string], req Request) {
	envelope, err := MakeResponse(name, resources, parentHref, req)
	if apierr.Respond(w, err) {
		return
	}
	respondwith.JSON(w, http.StatusOK, schema.ToWire(envelope))
}
