// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package collection

import (
	"slices"
	"strings"

	"github.com/sapcc/altai-api/internal/apierr"
	"github.com/sapcc/altai-api/internal/schema"
)

// SortKey is one item of a parsed "sortby" argument.
type SortKey struct {
	Name      string
	Ascending bool
	Extract   func(Resource) any
}

// ParseSortby parses a "sortby" argument like "name,created:desc". Each name
// must be one of allowedNames. Dotted names refer to fields in nested objects.
func ParseSortby(param string, allowedNames []string) ([]SortKey, error) {
	items := strings.Split(param, ",")
	result := make([]SortKey, 0, len(items))
	for _, item := range items {
		name, direction := item, "asc"
		if idx := strings.LastIndex(item, ":"); idx >= 0 {
			name, direction = item[:idx], item[idx+1:]
		}

		var ascending bool
		switch direction {
		case "asc":
			ascending = true
		case "desc":
			ascending = false
		default:
			return nil, apierr.InvalidRequest("Bad sorting direction %q in sortby parameter", direction)
		}
		if !slices.Contains(allowedNames, name) {
			return nil, apierr.InvalidRequest("Bad parameter for sortby: %q", name)
		}

		result = append(result, SortKey{
			Name:      name,
			Ascending: ascending,
			Extract:   extractorFor(name),
		})
	}
	return result, nil
}

func extractorFor(name string) func(Resource) any {
	if !strings.Contains(name, ".") {
		return func(r Resource) any { return r[name] }
	}
	path := strings.Split(name, ".")
	return func(r Resource) any {
		var current any = r
		for _, segment := range path {
			m, ok := current.(map[string]any)
			if !ok {
				return nil
			}
			current = m[segment]
			if current == nil {
				return nil
			}
		}
		return current
	}
}

// ApplySortby sorts the resources according to the given sort keys. Resources
// that compare equal on all keys keep their relative order. Without sort keys,
// the list is returned untouched. Otherwise, a sorted copy is returned.
func ApplySortby(sortKeys []SortKey, resources []Resource) []Resource {
	if sortKeys == nil {
		return resources
	}
	result := slices.Clone(resources)
	slices.SortStableFunc(result, func(lhs, rhs Resource) int {
		for _, key := range sortKeys {
			c := schema.Compare(key.Extract(lhs), key.Extract(rhs))
			if !key.Ascending {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
	return result
}
