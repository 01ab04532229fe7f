// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

// Package collection implements filtering, sorting and pagination for list
// endpoints, and wraps their results in the collection envelope.
package collection

import (
	"net/http"
	"net/url"
	"slices"
	"sort"
	"strings"

	. "github.com/majewsky/gg/option"

	"github.com/sapcc/altai-api/internal/apierr"
	"github.com/sapcc/altai-api/internal/schema"
)

// Resource is the wire-shaped representation of a single resource. Filters
// and sorting work on this representation.
type Resource = map[string]any

// Argument is a single key-value pair from a query string.
type Argument struct {
	Name  string
	Value string
}

// Request holds everything that was parsed from the query string of a list
// request. It is built once per request by ParseRequest.
type Request struct {
	Schema  *schema.Schema
	Filters Filters
	Sortby  []SortKey // nil if no sorting was requested
	Limit   Option[int]
	Offset  Option[int]
}

var reservedArguments = []string{"limit", "offset", "sortby"}

// ParseRequestFrom is a shorthand for ParseRequest(r.URL.Query(), ...).
func ParseRequestFrom(r *http.Request, s *schema.Schema, extraArgs ...string) (Request, error) {
	return ParseRequest(r.URL.Query(), s, extraArgs...)
}

// ParseRequest parses the filter, sortby, limit and offset arguments from the
// given query string. Any other argument without a colon is rejected unless it
// is listed in extraArgs, since the endpoint would silently ignore it
// otherwise.
func ParseRequest(query url.Values, s *schema.Schema, extraArgs ...string) (Request, error) {
	req := Request{Schema: s}
	args := ArgumentsFromQuery(query)

	var err error
	req.Filters, err = ParseFilters(args, s)
	if err != nil {
		return Request{}, err
	}

	for _, name := range reservedArguments {
		values := query[name]
		switch len(values) {
		case 0:
			continue
		case 1:
			// handled below
		default:
			return Request{}, apierr.InvalidRequest("Duplicated argument: %s", name)
		}

		if name == "sortby" {
			req.Sortby, err = ParseSortby(values[0], s.SortbyNames())
		} else {
			var n int64
			n, err = schema.ParseUint(values[0])
			if err != nil {
				err = apierr.InvalidArgumentValue(name, "uint", values[0], err.Error())
			} else if name == "limit" {
				req.Limit = Some(int(n))
			} else {
				req.Offset = Some(int(n))
			}
		}
		if err != nil {
			return Request{}, err
		}
	}

	for _, arg := range args {
		if strings.Contains(arg.Name, ":") {
			continue
		}
		if !slices.Contains(reservedArguments, arg.Name) && !slices.Contains(extraArgs, arg.Name) {
			return Request{}, apierr.UnknownArgument(arg.Name)
		}
	}
	return req, nil
}

// ArgumentsFromQuery flattens a parsed query string into a list of
// arguments. The result is sorted by name, and repeated names keep the order
// of their values.
func ArgumentsFromQuery(query url.Values) []Argument {
	names := make([]string, 0, len(query))
	for name := range query {
		names = append(names, name)
	}
	sort.Strings(names)

	var result []Argument
	for _, name := range names {
		for _, value := range query[name] {
			result = append(result, Argument{name, value})
		}
	}
	return result
}
