// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

// Package schema contains the typed descriptions of resource elements that
// drive request parsing, search filters and sorting for all collection
// endpoints.
package schema

import (
	"fmt"
	"slices"

	"github.com/majewsky/gg/option"

	"github.com/sapcc/altai-api/internal/apierr"
)

// Element describes a single field of a resource: how to convert it from a
// request body or a query string argument, and which search filters it
// supports.
//
// The set of implementations is closed. Elements are built with the
// constructors String, Boolean, Int, Timestamp, IPv4, CIDR, LinkObject and
// List, and are immutable afterwards.
type Element interface {
	Name() string
	// TypeName is the type tag that appears in error messages.
	TypeName() string
	// SortbyNames lists the names that can be used in the "sortby" argument to
	// sort by this element.
	SortbyNames() []string

	// FromArgument converts a query string argument into a value.
	FromArgument(value string) (any, error)
	// FromRequest converts a value from a parsed JSON request body.
	FromRequest(value any) (any, error)
	// SearchMatcher returns the matcher for the given search operator.
	SearchMatcher(operator string) (Matcher, error)
	// ParseSearchArgument converts the value of the search filter
	// "<name>:<operator>=<value>".
	ParseSearchArgument(operator, value string) (any, error)
}

// ElementOption is an option that can be given to the Element constructors.
type ElementOption func(*elementOptions)

type elementOptions struct {
	Nullable   bool
	AllowEmpty bool
	MinValue   option.Option[int64]
	MaxValue   option.Option[int64]
}

// Nullable makes an element accept JSON null in request bodies.
func Nullable() ElementOption {
	return func(o *elementOptions) { o.Nullable = true }
}

// AllowEmpty makes a String element accept the empty string.
func AllowEmpty() ElementOption {
	return func(o *elementOptions) { o.AllowEmpty = true }
}

// MinValue sets the lower bound for an Int element. The default is 0.
func MinValue(n int64) ElementOption {
	return func(o *elementOptions) { o.MinValue = option.Some(n) }
}

// MaxValue sets the upper bound for an Int element. There is no upper bound
// by default.
func MaxValue(n int64) ElementOption {
	return func(o *elementOptions) { o.MaxValue = option.Some(n) }
}

func collectOptions(opts []ElementOption) elementOptions {
	var result elementOptions
	for _, opt := range opts {
		opt(&result)
	}
	return result
}

// element is the only implementation of type Element. The variants differ
// only in the conversion functions and the matcher table that their
// constructors fill in.
type element struct {
	name         string
	typeName     string
	nullable     bool
	sortbyNames  []string
	matchers     map[string]Matcher
	fromArgument func(e *element, value string) (any, error)
	fromRequest  func(e *element, value any) (any, error)
}

// Name implements the Element interface.
func (e *element) Name() string {
	return e.name
}

// TypeName implements the Element interface.
func (e *element) TypeName() string {
	return e.typeName
}

// SortbyNames implements the Element interface.
func (e *element) SortbyNames() []string {
	return slices.Clone(e.sortbyNames)
}

// FromArgument implements the Element interface.
func (e *element) FromArgument(value string) (any, error) {
	return e.fromArgument(e, value)
}

// FromRequest implements the Element interface.
func (e *element) FromRequest(value any) (any, error) {
	if value == nil {
		if e.nullable {
			return nil, nil
		}
		return nil, e.invalidElement(value, "null is not allowed")
	}
	return e.fromRequest(e, value)
}

// SearchMatcher implements the Element interface.
func (e *element) SearchMatcher(operator string) (Matcher, error) {
	m, ok := e.matchers[operator]
	if !ok {
		return Matcher{}, apierr.InvalidRequest(
			"No search filter %s defined for element %s of type %s",
			operator, e.name, e.typeName)
	}
	return m, nil
}

// ParseSearchArgument implements the Element interface.
func (e *element) ParseSearchArgument(operator, value string) (any, error) {
	_, err := e.SearchMatcher(operator)
	if err != nil {
		return nil, err
	}

	switch operator {
	case "exists":
		return parseBoolean(e.name+":exists", value)
	case "in", "any", "all":
		parts, err := SplitWithEscape(value, '|', '\\')
		if err != nil {
			return nil, apierr.InvalidArgumentValue(e.name+":"+operator, e.typeName, value, err.Error())
		}
		result := make([]any, len(parts))
		for idx, part := range parts {
			result[idx], err = e.FromArgument(part)
			if err != nil {
				return nil, err
			}
		}
		return result, nil
	default:
		return e.FromArgument(value)
	}
}

func (e *element) invalidArgument(value, reason string) error {
	return apierr.InvalidArgumentValue(e.name, e.typeName, value, reason)
}

func (e *element) invalidElement(value any, reason string) error {
	return apierr.InvalidElementValue(e.name, e.typeName, value, reason)
}

func (e *element) String() string {
	return fmt.Sprintf("%s(%s)", e.typeName, e.name)
}
