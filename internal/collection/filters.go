// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package collection

import (
	"sort"
	"strings"

	"github.com/sapcc/altai-api/internal/apierr"
	"github.com/sapcc/altai-api/internal/schema"
)

// Filters holds parsed search filters as element name -> operator -> pattern.
type Filters map[string]map[string]any

// ParseFilters converts all arguments of the form "<name>:<operator>" into
// search filters. Arguments without a colon are ignored.
func ParseFilters(args []Argument, s *schema.Schema) (Filters, error) {
	result := make(Filters)
	for _, arg := range args {
		name, operator, ok := strings.Cut(arg.Name, ":")
		if !ok {
			continue
		}
		if !s.Has(name) {
			return nil, apierr.UnknownArgument(arg.Name)
		}
		if _, exists := result[name][operator]; exists {
			return nil, apierr.InvalidRequest("Duplicated filters: %s", arg.Name)
		}

		pattern, err := s.ParseArgument(name, operator, arg.Value)
		if err != nil {
			return nil, err
		}
		if result[name] == nil {
			result[name] = make(map[string]any)
		}
		result[name][operator] = pattern
	}
	return result, nil
}

type filterCheck struct {
	Name    string
	Pattern any
	Matcher schema.Matcher
}

// ApplyFilters returns the resources that match all the given filters, in
// their original order.
func ApplyFilters(resources []Resource, filters Filters, s *schema.Schema) ([]Resource, error) {
	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)

	var checks []filterCheck
	for _, name := range names {
		operators := make([]string, 0, len(filters[name]))
		for operator := range filters[name] {
			operators = append(operators, operator)
		}
		sort.Strings(operators)

		for _, operator := range operators {
			m, err := s.ArgumentMatcher(name, operator)
			if err != nil {
				return nil, err
			}
			checks = append(checks, filterCheck{name, filters[name][operator], m})
		}
	}

	result := make([]Resource, 0, len(resources))
OUTER:
	for _, res := range resources {
		for _, c := range checks {
			if !c.Matcher.Matches(res[c.Name], c.Pattern) {
				continue OUTER
			}
		}
		result = append(result, res)
	}
	return result, nil
}
