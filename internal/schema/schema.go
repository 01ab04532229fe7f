// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"

	"github.com/sapcc/altai-api/internal/apierr"
)

// Subsets declares named subsets of a Schema, e.g. the elements that are
// required or allowed when creating a resource.
type Subsets map[string][]string

// Schema is the ordered set of elements that make up one type of resource.
// A Schema is immutable after construction and can be shared between
// goroutines.
type Schema struct {
	elements    []Element
	byName      map[string]Element
	subsets     map[string]*Schema
	sortbyNames []string
}

// NewSchema builds a Schema from the given elements. Each subset becomes a
// Schema of its own that can be retrieved with Subset().
func NewSchema(elements []Element, subsets Subsets) (*Schema, error) {
	s, err := newSchema(elements)
	if err != nil {
		return nil, err
	}

	subsetNames := make([]string, 0, len(subsets))
	for name := range subsets {
		subsetNames = append(subsetNames, name)
	}
	sort.Strings(subsetNames)

	s.subsets = make(map[string]*Schema, len(subsets))
	for _, subsetName := range subsetNames {
		if collidesWithMethod(subsetName) {
			return nil, fmt.Errorf("subset name %q collides with a method of type Schema", subsetName)
		}
		var members []Element
		for _, name := range subsets[subsetName] {
			e, ok := s.byName[name]
			if !ok {
				return nil, fmt.Errorf("subset %q refers to unknown element %q", subsetName, name)
			}
			members = append(members, e)
		}
		s.subsets[subsetName], err = newSchema(members)
		if err != nil {
			return nil, fmt.Errorf("in subset %q: %w", subsetName, err)
		}
	}
	return s, nil
}

// MustNewSchema is like NewSchema, but panics on error. It is intended for
// schemas declared as package-level variables.
func MustNewSchema(elements []Element, subsets Subsets) *Schema {
	s, err := NewSchema(elements, subsets)
	if err != nil {
		panic(err.Error())
	}
	return s
}

func newSchema(elements []Element) (*Schema, error) {
	s := &Schema{
		elements: slices.Clone(elements),
		byName:   make(map[string]Element, len(elements)),
	}
	for _, e := range elements {
		if _, exists := s.byName[e.Name()]; exists {
			return nil, fmt.Errorf("duplicate element name %q", e.Name())
		}
		s.byName[e.Name()] = e
		for _, name := range e.SortbyNames() {
			if !slices.Contains(s.sortbyNames, name) {
				s.sortbyNames = append(s.sortbyNames, name)
			}
		}
	}
	return s, nil
}

func collidesWithMethod(subsetName string) bool {
	normalized := strings.ReplaceAll(subsetName, "_", "")
	normalized = strings.ReplaceAll(normalized, "-", "")
	t := reflect.TypeOf((*Schema)(nil))
	for idx := range t.NumMethod() {
		if strings.EqualFold(t.Method(idx).Name, normalized) {
			return true
		}
	}
	return false
}

// Elements returns the elements of this Schema in order.
func (s *Schema) Elements() []Element {
	return slices.Clone(s.elements)
}

// Names returns the names of all elements of this Schema in order.
func (s *Schema) Names() []string {
	result := make([]string, len(s.elements))
	for idx, e := range s.elements {
		result[idx] = e.Name()
	}
	return result
}

// Has returns whether this Schema has an element with the given name.
func (s *Schema) Has(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.byName[name]
	return ok
}

// Element returns the element with the given name, or false if there is none.
func (s *Schema) Element(name string) (Element, bool) {
	if s == nil {
		return nil, false
	}
	e, ok := s.byName[name]
	return e, ok
}

// Subset returns the named subset. Asking for a subset that was not declared
// is a programming error, so this panics.
func (s *Schema) Subset(name string) *Schema {
	sub, ok := s.subsets[name]
	if !ok {
		panic(fmt.Sprintf("schema has no subset %q", name))
	}
	return sub
}

// SortbyNames returns the names that may appear in the "sortby" argument for
// this Schema.
func (s *Schema) SortbyNames() []string {
	return slices.Clone(s.sortbyNames)
}

// FromRequest converts a request body value for the named element.
func (s *Schema) FromRequest(name string, value any) (any, error) {
	e, ok := s.Element(name)
	if !ok {
		return nil, apierr.UnknownElement(name)
	}
	return e.FromRequest(value)
}

// ArgumentMatcher returns the matcher for the search filter
// "<name>:<operator>".
func (s *Schema) ArgumentMatcher(name, operator string) (Matcher, error) {
	e, ok := s.Element(name)
	if !ok {
		return Matcher{}, apierr.UnknownArgument(name + ":" + operator)
	}
	return e.SearchMatcher(operator)
}

// ParseArgument converts the value of the search filter
// "<name>:<operator>=<value>".
func (s *Schema) ParseArgument(name, operator, value string) (any, error) {
	e, ok := s.Element(name)
	if !ok {
		return nil, apierr.UnknownArgument(name + ":" + operator)
	}
	return e.ParseSearchArgument(operator, value)
}
